package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/config"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/internal/models"
	"github.com/joshu-sajeev/transcribeq/middleware"
	"go.uber.org/zap"
)

// IngressStore is the slice of the job store the ingress path writes to.
type IngressStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	MarkCompleted(ctx context.Context, id, text, language string, segments []dto.Segment) error
	MarkWebhookStatus(ctx context.Context, id string, status config.WebhookStatus) error
}

type IngressService struct {
	store  IngressStore
	logger *zap.Logger
}

func NewIngressService(store IngressStore, logger *zap.Logger) *IngressService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngressService{store: store, logger: logger}
}

// Complete applies a pushed result. It shares the conditional completion
// write with the worker, so whichever path lands first wins and the other
// is a no-op.
func (s *IngressService) Complete(ctx context.Context, payload *dto.WebhookPayload) error {
	job, err := s.store.Get(ctx, payload.JobID)
	if err != nil {
		if errors.Is(err, common.ErrJobNotFound) {
			return common.Errf(http.StatusBadRequest, "job not found")
		}
		return fmt.Errorf("ingress get job: %w", err)
	}

	if config.JobStatus(job.Status) != config.JobStatusCompleted {
		r := payload.Result
		if err := s.store.MarkCompleted(ctx, job.ID, r.Text, r.Language, r.Segments); err != nil {
			return fmt.Errorf("ingress mark completed: %w", err)
		}
	}

	if err := s.store.MarkWebhookStatus(ctx, job.ID, config.WebhookStatusDelivered); err != nil {
		return fmt.Errorf("ingress mark webhook status: %w", err)
	}

	s.logger.Info("completion received", zap.String("job_id", job.ID), zap.String("status", payload.Status))
	return nil
}

type IngressHandler struct {
	service *IngressService
	secret  string
	verify  bool
}

// NewIngressHandler builds the POST /webhooks/transcribe handler. When
// verify is set every request must carry a valid signature for secret.
func NewIngressHandler(service *IngressService, secret string, verify bool) *IngressHandler {
	return &IngressHandler{service: service, secret: secret, verify: verify}
}

func (h *IngressHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "read body: %v", err))
		return
	}

	if h.verify && !Verify(h.secret, body, c.GetHeader(config.SignatureHeader)) {
		c.Error(common.Errf(http.StatusUnauthorized, "invalid signature"))
		return
	}

	var payload dto.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid json: %v", err))
		return
	}
	if !middleware.Validate(c, &payload) {
		return
	}

	if err := h.service.Complete(c.Request.Context(), &payload); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

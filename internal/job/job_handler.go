package job

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/transcribeq/common"
	"github.com/joshu-sajeev/transcribeq/internal/dto"
	"github.com/joshu-sajeev/transcribeq/middleware"
)

type JobHandler struct {
	service  JobServiceInterface
	maxBytes int64
}

func NewJobHandler(s JobServiceInterface, maxBytes int64) *JobHandler {
	return &JobHandler{service: s, maxBytes: maxBytes}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles multipart uploads. The audio comes in the "file" field, or
// "audio" for older clients, with an optional "webhook_url".
// Returns HTTP 201 with the queued job.
func (h *JobHandler) Create(c *gin.Context) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)
	}

	var form dto.CreateJobForm
	if err := c.ShouldBind(&form); err != nil {
		c.Error(uploadError(err))
		return
	}
	if !middleware.Validate(c, &form) {
		return
	}

	header, err := formFile(c)
	if err != nil {
		c.Error(uploadError(err))
		return
	}

	data, err := readPart(header)
	if err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "read upload: %v", err))
		return
	}

	resp, err := h.service.CreateJob(c.Request.Context(), &dto.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		WebhookURL:  strings.TrimSpace(form.WebhookURL),
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return
	}

	resp, err := h.service.GetJobByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		header, err = c.FormFile("audio")
	}
	return header, err
}

func readPart(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return common.Errf(http.StatusRequestEntityTooLarge, "upload exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, http.ErrMissingFile):
		return common.NewAPIError(http.StatusBadRequest, "validation failed", map[string]any{
			"file": "failed required",
		})
	default:
		return common.Errf(http.StatusBadRequest, "invalid multipart form: %v", err)
	}
}

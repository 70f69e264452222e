// Package server assembles the HTTP surface of the API process.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/transcribeq/internal/job"
	"github.com/joshu-sajeev/transcribeq/internal/webhook"
	"github.com/joshu-sajeev/transcribeq/middleware"
	"go.uber.org/zap"
)

func NewRouter(jobs job.JobHandlerInterface, ingress *webhook.IngressHandler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.ErrorHandler(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/jobs", jobs.Create)
	r.GET("/jobs/:id", jobs.Get)
	r.POST("/webhooks/transcribe", ingress.Receive)

	return r
}

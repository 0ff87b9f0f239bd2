package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "homebudget/internal/errors"
	"homebudget/internal/logger"
)

const (
	pipelineCallerKey     = "pipelineCaller"
	defaultPipelineCaller = "pipeline"
	maxPipelineCallerLen  = 64
)

// PipelineAuthMiddleware guards the rollover endpoints with the shared
// X-API-Key. Accepted calls are tagged with the X-Pipeline-Caller header so a
// rollover run can be traced back to the cron job or worker that sent it.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			rejectPipelineCall(c, apperrors.ErrPipelineNotConfigured)
			return
		}
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			rejectPipelineCall(c, apperrors.ErrInvalidAPIKey)
			return
		}

		c.Set(pipelineCallerKey, pipelineCaller(c.GetHeader("X-Pipeline-Caller")))
		c.Next()
	}
}

// PipelineCaller returns the caller recorded for an accepted pipeline call.
func PipelineCaller(c *gin.Context) string {
	if caller := c.GetString(pipelineCallerKey); caller != "" {
		return caller
	}
	return defaultPipelineCaller
}

func pipelineCaller(header string) string {
	caller := strings.TrimSpace(header)
	if caller == "" {
		return defaultPipelineCaller
	}
	if len(caller) > maxPipelineCallerLen {
		caller = caller[:maxPipelineCallerLen]
	}
	return caller
}

func rejectPipelineCall(c *gin.Context, appErr *apperrors.AppError) {
	logger.Get().Warnw("pipeline call rejected",
		"code", appErr.Code,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"client_ip", c.ClientIP(),
		"request_id", c.GetString(requestIDKey),
	)
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error": gin.H{"code": appErr.Code, "message": appErr.Message},
	})
}

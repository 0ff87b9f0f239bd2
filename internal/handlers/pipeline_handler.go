package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"homebudget/internal/logger"
	"homebudget/internal/middleware"
	"homebudget/internal/services"
)

// PipelineHandler serves machine-to-machine endpoints guarded by an API key.
type PipelineHandler struct {
	adjustmentService services.AdjustmentServicer
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(adjustmentService services.AdjustmentServicer) *PipelineHandler {
	return &PipelineHandler{adjustmentService: adjustmentService}
}

// ApplyDueRequest optionally overrides the instant used to find due months.
type ApplyDueRequest struct {
	Now *string `json:"now"`
}

// ApplyDueAdjustments applies every household's due adjustments
// @Summary     Apply due adjustments
// @Description Applies pending adjustments whose effective month has started, for every household
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body ApplyDueRequest false "Optional reference time"
// @Success     200 {object} services.RolloverResult "Rollover summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/adjustments/apply [post]
func (h *PipelineHandler) ApplyDueAdjustments(c *gin.Context) {
	now := time.Now()

	var req ApplyDueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, invalidInput(err))
			return
		}
	}
	if req.Now != nil && *req.Now != "" {
		parsed, err := parseFlexibleTime(*req.Now)
		if err != nil {
			respondWithError(c, invalidInput(err))
			return
		}
		now = parsed
	}

	result, err := h.adjustmentService.ApplyDueAdjustments(now)
	if err != nil {
		respondWithError(c, err)
		return
	}

	logger.Get().Infow("pipeline rollover completed",
		"caller", middleware.PipelineCaller(c),
		"households", result.Households,
		"processed", result.Processed,
		"failures", len(result.Failures),
	)

	c.JSON(http.StatusOK, result)
}

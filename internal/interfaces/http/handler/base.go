package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/infrastructure/logger"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/dto"
	"github.com/ryu-qqq/setof-commerce-sub022/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	logger *zap.Logger
}

// getRequestID extracts the request ID assigned by the logging middleware,
// falling back to the inbound header
func getRequestID(c *gin.Context) string {
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		return id
	}
	return c.GetHeader(logger.RequestIDHeader)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindJSON binds and validates the body, answering 400 on failure
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError converts an error to a response with a stable code. Retryable
// errors are flagged so clients can back off and resubmit.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	mapped := dto.MapError(err)
	if mapped.Status >= http.StatusInternalServerError {
		log := h.logger
		if log == nil {
			log = zap.NewNop()
		}
		logger.ForContext(c.Request.Context(), log).Error("request failed",
			zap.String("code", mapped.Code), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(mapped.Status, dto.NewMappedErrorResponse(mapped, getRequestID(c)))
}

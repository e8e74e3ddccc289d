package response

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qmsgov/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response represents standard API response
type Response struct {
	Code      int       `json:"code"`            // HTTP status code
	Message   string    `json:"message"`         // Response message
	Data      any       `json:"data,omitempty"`  // Response data
	Error     string    `json:"error,omitempty"` // Error message if any
	RequestID string    `json:"request_id"`      // Request ID for tracking
	Timestamp time.Time `json:"timestamp"`       // Response timestamp
}

// Handler provides methods for standard API responses
type Handler struct {
	ctx    *gin.Context
	logger *zap.Logger
}

// New creates new response handler
func New(c *gin.Context, logger *zap.Logger) *Handler {
	return &Handler{
		ctx:    c,
		logger: logger,
	}
}

// Success sends success response
func (h *Handler) Success(data any) {
	h.ctx.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// Created sends created response
func (h *Handler) Created(data any) {
	h.ctx.JSON(http.StatusCreated, Response{
		Code:      http.StatusCreated,
		Message:   "created",
		Data:      data,
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// Error sends an error response
func (h *Handler) Error(status int, err error) {
	h.ctx.JSON(status, Response{
		Code:      status,
		Message:   "error",
		Error:     err.Error(),
		RequestID: h.ctx.GetString("request_id"),
		Timestamp: time.Now(),
	})
}

// BadRequest sends bad request error response
func (h *Handler) BadRequest(err error) {
	h.Error(http.StatusBadRequest, err)
}

// Unauthenticated sends an error for requests without an acting user
func (h *Handler) Unauthenticated(err error) {
	h.Error(http.StatusUnauthorized, err)
}

// NotFound sends not found error response
func (h *Handler) NotFound(err error) {
	h.Error(http.StatusNotFound, err)
}

// ValidationError sends validation error response
func (h *Handler) ValidationError(err error) {
	h.Error(http.StatusUnprocessableEntity, err)
}

// InternalError sends an internal server error response
func (h *Handler) InternalError(err error) {
	h.Error(http.StatusInternalServerError, err)
}

// Fail maps a service error to its status. Unexpected errors are logged
// and reported without detail.
func (h *Handler) Fail(op string, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		h.logger.Info("Client canceled request",
			zap.String("op", op),
			zap.String("request_id", h.ctx.GetString("request_id")))
		h.ctx.Abort()
	case errors.Is(err, context.DeadlineExceeded):
		h.Error(http.StatusGatewayTimeout, errors.New("request timeout"))
	case errors.Is(err, types.ErrNotFound):
		h.NotFound(err)
	case errors.Is(err, types.ErrUnauthorized):
		h.Error(http.StatusForbidden, err)
	case errors.Is(err, types.ErrInvalidTransition):
		h.Error(http.StatusConflict, err)
	case errors.Is(err, types.ErrValidation):
		h.ValidationError(err)
	default:
		h.logger.Error("Request failed",
			zap.String("op", op),
			zap.String("request_id", h.ctx.GetString("request_id")),
			zap.Error(err))
		h.InternalError(errors.New("failed to " + op))
	}
}

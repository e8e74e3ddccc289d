package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"qmsgov/internal/api/middleware"
	"qmsgov/internal/api/response"
	"qmsgov/internal/config"
	"qmsgov/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// requestTimeout bounds every handler's service call
const requestTimeout = 30 * time.Second

var errNoActor = errors.New("acting user is required")

// API represents the API
type API struct {
	service *service.Service
	config  *config.Config
	logger  *zap.Logger
}

// NewAPI creates new API
func NewAPI(svc *service.Service, cfg *config.Config, logger *zap.Logger) *API {
	return &API{
		service: svc,
		config:  cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers API routes
func (api *API) RegisterRoutes(r *gin.RouterGroup) {
	api.RegisterChangeRoutes(r)
	api.RegisterApprovalRoutes(r)
	api.RegisterAdminRoutes(r)

	// Health check
	r.GET("/health", api.healthCheck)
}

// actor returns the acting user, answering 401 when there is none
func (api *API) actor(c *gin.Context, resp *response.Handler) (string, bool) {
	actor := c.GetString(middleware.ActorKey)
	if actor == "" {
		resp.Unauthenticated(errNoActor)
		return "", false
	}
	return actor, true
}

func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// healthCheck handles health check requests
func (api *API) healthCheck(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := api.service.HealthCheck(ctx)
	if !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:      http.StatusServiceUnavailable,
			Message:   "service unhealthy",
			Data:      status,
			RequestID: c.GetString("request_id"),
			Timestamp: time.Now(),
		})
		return
	}

	resp.Success(status)
}

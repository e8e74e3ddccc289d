package v1

import (
	"fmt"

	"qmsgov/internal/api/response"
	"qmsgov/internal/types"

	"github.com/gin-gonic/gin"
)

type decisionRequest struct {
	Decision types.ApprovalStatus `json:"decision" binding:"required"`
	Comments string               `json:"comments"`
}

// RegisterApprovalRoutes registers approval routes
func (api *API) RegisterApprovalRoutes(r *gin.RouterGroup) {
	approvals := r.Group("/approvals")
	{
		approvals.GET("/pending", api.pendingApprovals)
		approvals.POST("/:id/decision", api.decide)
	}
}

// pendingApprovals handles listing the acting user's pending approvals
func (api *API) pendingApprovals(c *gin.Context) {
	resp := response.New(c, api.logger)
	actor, ok := api.actor(c, resp)
	if !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	approvals, err := api.service.ListPendingApprovals(ctx, actor)
	if err != nil {
		resp.Fail("list pending approvals", err)
		return
	}

	resp.Success(approvals)
}

// decide handles an approver's decision
func (api *API) decide(c *gin.Context) {
	resp := response.New(c, api.logger)
	actor, ok := api.actor(c, resp)
	if !ok {
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(fmt.Errorf("invalid decision format: %v", err))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	exec, err := api.service.ProcessApprovalDecision(ctx, types.Decision{
		ApprovalID: c.Param("id"),
		Status:     req.Decision,
		Comments:   req.Comments,
		ActorID:    actor,
	})
	if err != nil {
		resp.Fail("process decision", err)
		return
	}

	resp.Success(exec)
}

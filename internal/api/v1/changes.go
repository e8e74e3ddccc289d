package v1

import (
	"errors"
	"fmt"

	"qmsgov/internal/api/middleware"
	"qmsgov/internal/api/response"
	"qmsgov/internal/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// trackResponse is the result of tracking a change
type trackResponse struct {
	ChangeEvent *types.ChangeEvent       `json:"change_event"`
	Execution   *types.WorkflowExecution `json:"execution,omitempty"`
	Degraded    bool                     `json:"degraded"`
	SideEffects []string                 `json:"side_effects,omitempty"`
}

type bypassRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RegisterChangeRoutes registers change event routes
func (api *API) RegisterChangeRoutes(r *gin.RouterGroup) {
	changes := r.Group("/changes")
	{
		changes.POST("", api.trackChange)
		changes.GET("", api.listChanges)
		changes.GET("/:id", api.getChange)
		changes.GET("/:id/workflow", api.getWorkflowStatus)
		changes.POST("/:id/workflow", api.startApproval)
		changes.GET("/:id/approvals", api.listApprovals)
		changes.POST("/:id/bypass", api.bypassApproval)
		changes.GET("/:id/audit", api.changeAudit)
	}
}

// trackChange records a mutation. The acting user header, when present,
// is the change's author.
func (api *API) trackChange(c *gin.Context) {
	resp := response.New(c, api.logger)

	var m types.Mutation
	if err := c.ShouldBindJSON(&m); err != nil {
		resp.BadRequest(fmt.Errorf("invalid change format: %v", err))
		return
	}
	if actor := c.GetString(middleware.ActorKey); actor != "" {
		m.ActorID = actor
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	outcome, err := api.service.TrackChange(ctx, m)
	if err != nil {
		resp.Fail("track change", err)
		return
	}
	if outcome.Degraded() {
		api.logger.Warn("Change tracked with failures",
			zap.String("change_event_id", outcome.ChangeEvent.ID),
			zap.Strings("side_effects", outcome.SideEffectMessages()))
	}

	resp.Created(trackResponse{
		ChangeEvent: outcome.ChangeEvent,
		Execution:   outcome.Execution,
		Degraded:    outcome.Degraded(),
		SideEffects: outcome.SideEffectMessages(),
	})
}

// listChanges handles listing a project's change events
func (api *API) listChanges(c *gin.Context) {
	resp := response.New(c, api.logger)

	var query struct {
		ProjectID      string `form:"project_id" binding:"required"`
		EntityType     string `form:"entity_type"`
		EntityID       string `form:"entity_id"`
		ImpactLevel    string `form:"impact_level"`
		ApprovalStatus string `form:"approval_status"`
		BatchID        string `form:"batch_id"`
		Limit          int    `form:"limit"`
		Offset         int    `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		resp.BadRequest(errors.New("project_id is required"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	events, err := api.service.ListChangeEvents(ctx, query.ProjectID, types.ChangeEventFilter{
		EntityType:     types.EntityType(query.EntityType),
		EntityID:       query.EntityID,
		ImpactLevel:    types.ImpactLevel(query.ImpactLevel),
		ApprovalStatus: types.ChangeApprovalStatus(query.ApprovalStatus),
		BatchID:        query.BatchID,
		Limit:          query.Limit,
		Offset:         query.Offset,
	})
	if err != nil {
		resp.Fail("list change events", err)
		return
	}

	resp.Success(events)
}

// getChange handles retrieving one change event
func (api *API) getChange(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := requestContext(c)
	defer cancel()

	ev, err := api.service.GetChangeEvent(ctx, c.Param("id"))
	if err != nil {
		resp.Fail("get change event", err)
		return
	}

	resp.Success(ev)
}

// getWorkflowStatus handles retrieving a change's workflow execution
func (api *API) getWorkflowStatus(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := requestContext(c)
	defer cancel()

	exec, err := api.service.GetWorkflowStatus(ctx, c.Param("id"))
	if err != nil {
		resp.Fail("get workflow status", err)
		return
	}

	resp.Success(exec)
}

// startApproval starts the workflow of a change whose start failed
// during tracking
func (api *API) startApproval(c *gin.Context) {
	resp := response.New(c, api.logger)
	if _, ok := api.actor(c, resp); !ok {
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	exec, err := api.service.StartApprovalProcess(ctx, c.Param("id"))
	if err != nil {
		resp.Fail("start approval process", err)
		return
	}
	if exec == nil {
		// No workflow applied and the change was approved
		exec, err = api.service.GetWorkflowStatus(ctx, c.Param("id"))
		if err != nil {
			resp.Fail("get workflow status", err)
			return
		}
	}

	resp.Created(exec)
}

// listApprovals handles listing a change's approvals
func (api *API) listApprovals(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := requestContext(c)
	defer cancel()

	approvals, err := api.service.ListApprovals(ctx, c.Param("id"))
	if err != nil {
		resp.Fail("list approvals", err)
		return
	}

	resp.Success(approvals)
}

// bypassApproval handles an emergency bypass by the acting user
func (api *API) bypassApproval(c *gin.Context) {
	resp := response.New(c, api.logger)
	actor, ok := api.actor(c, resp)
	if !ok {
		return
	}

	var req bypassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.BadRequest(errors.New("reason is required"))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	exec, err := api.service.BypassApproval(ctx, c.Param("id"), actor, req.Reason)
	if err != nil {
		resp.Fail("bypass approval", err)
		return
	}

	resp.Success(exec)
}

// changeAudit handles retrieving a change's audit entries
func (api *API) changeAudit(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := api.service.AuditTrail(ctx, "CHANGE_EVENT", c.Param("id"))
	if err != nil {
		resp.Fail("get audit trail", err)
		return
	}

	resp.Success(entries)
}

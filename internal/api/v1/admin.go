package v1

import (
	"fmt"

	"qmsgov/internal/api/middleware"
	"qmsgov/internal/api/response"
	"qmsgov/internal/types"

	"github.com/gin-gonic/gin"
)

// RegisterAdminRoutes registers governance configuration routes. Every
// route requires an acting user with an admin role.
func (api *API) RegisterAdminRoutes(r *gin.RouterGroup) {
	admin := r.Group("", api.requireAdmin)
	{
		admin.POST("/workflows", api.createWorkflow)
		admin.POST("/rules", api.createRule)
		admin.PUT("/users/:id", api.upsertUser)
		admin.POST("/sweeps", api.runSweep)
	}
}

func (api *API) requireAdmin(c *gin.Context) {
	resp := response.New(c, api.logger)
	actor, ok := api.actor(c, resp)
	if !ok {
		c.Abort()
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := api.service.Authorize(ctx, actor, api.service.AdminRoles()...); err != nil {
		resp.Fail("authorize", err)
		c.Abort()
		return
	}
	c.Next()
}

// createWorkflow handles creating a workflow definition
func (api *API) createWorkflow(c *gin.Context) {
	resp := response.New(c, api.logger)

	var def types.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		resp.BadRequest(fmt.Errorf("invalid workflow format: %v", err))
		return
	}
	def.CreatedBy = c.GetString(middleware.ActorKey)

	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := api.service.CreateWorkflow(ctx, &def)
	if err != nil {
		resp.Fail("create workflow", err)
		return
	}

	resp.Created(gin.H{"id": id})
}

// createRule handles creating a propagation rule
func (api *API) createRule(c *gin.Context) {
	resp := response.New(c, api.logger)

	var rule types.PropagationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		resp.BadRequest(fmt.Errorf("invalid rule format: %v", err))
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := api.service.CreatePropagationRule(ctx, &rule, c.GetString(middleware.ActorKey))
	if err != nil {
		resp.Fail("create propagation rule", err)
		return
	}

	resp.Created(gin.H{"id": id})
}

// upsertUser handles creating or updating a user
func (api *API) upsertUser(c *gin.Context) {
	resp := response.New(c, api.logger)

	var user types.User
	if err := c.ShouldBindJSON(&user); err != nil {
		resp.BadRequest(fmt.Errorf("invalid user format: %v", err))
		return
	}
	user.ID = c.Param("id")

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := api.service.UpsertUser(ctx, &user); err != nil {
		resp.Fail("save user", err)
		return
	}

	resp.Success(user)
}

// runSweep handles an on-demand overdue approval sweep
func (api *API) runSweep(c *gin.Context) {
	resp := response.New(c, api.logger)

	ctx, cancel := requestContext(c)
	defer cancel()

	escalated, err := api.service.ProcessOverdueApprovals(ctx)
	if err != nil {
		resp.Fail("process overdue approvals", err)
		return
	}

	resp.Success(gin.H{"escalated": escalated})
}

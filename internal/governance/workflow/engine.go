package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qmsgov/internal/config"
	"qmsgov/internal/metrics"
	"qmsgov/internal/notify"
	"qmsgov/internal/repository"
	"qmsgov/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sweepBatch bounds the approvals escalated per sweep
const sweepBatch = 500

// ApprovedFunc is called after a change event reaches APPROVED through
// completion or bypass. It runs outside the event lock.
type ApprovedFunc func(ctx context.Context, ev *types.ChangeEvent)

// SweepResult summarizes one overdue sweep
type SweepResult struct {
	Overdue   int `json:"overdue"`
	Escalated int `json:"escalated"`
	// Skipped approvals were decided between listing and escalation
	Skipped int `json:"skipped"`
}

// Engine drives approval workflows for change events
type Engine struct {
	store      *repository.Store
	sink       notify.Sink
	config     *config.GovernanceConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
	locks      *keyedMutex
	onApproved ApprovedFunc
	now        func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithMetrics records engine activity
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithApprovedHook sets the callback run when a change is approved
func WithApprovedHook(fn ApprovedFunc) Option {
	return func(e *Engine) { e.onApproved = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates new workflow engine
func NewEngine(store *repository.Store, sink notify.Sink, cfg *config.GovernanceConfig, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		sink:   sink,
		config: cfg,
		logger: logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateWorkflow validates and stores a workflow definition
func (e *Engine) CreateWorkflow(ctx context.Context, def *types.WorkflowDefinition) (string, error) {
	if err := ValidateSteps(def.Steps); err != nil {
		return "", err
	}
	if err := ValidateConditions(def); err != nil {
		return "", err
	}

	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	if def.TriggerConditions == nil {
		def.TriggerConditions = types.Conditions{}
	}
	def.CreatedAt = e.now().UTC()

	if err := e.store.Workflows.Create(ctx, def); err != nil {
		return "", fmt.Errorf("failed to create workflow: %w", err)
	}

	e.audit(ctx, &types.AuditEntry{
		Action:     types.AuditWorkflowCreated,
		EntityType: "WORKFLOW_DEFINITION",
		EntityID:   def.ID,
		ActorID:    def.CreatedBy,
		Details: map[string]any{
			"project_id":  def.ProjectID,
			"name":        def.Name,
			"steps":       len(def.Steps),
			"is_parallel": def.IsParallel,
		},
	})

	e.logger.Info("Workflow created",
		zap.String("workflow_id", def.ID),
		zap.String("project_id", def.ProjectID),
		zap.String("name", def.Name),
		zap.Int("steps", len(def.Steps)))
	return def.ID, nil
}

// SelectWorkflow returns the newest active definition of the change's
// project whose trigger matches, or nil. Definitions with malformed
// conditions are skipped.
func (e *Engine) SelectWorkflow(ctx context.Context, ev *types.ChangeEvent) (*types.WorkflowDefinition, error) {
	defs, err := e.store.Workflows.ListActive(ctx, ev.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, def := range defs {
		ok, err := MatchTrigger(def.TriggerConditions, ev)
		if err != nil {
			e.logger.Warn("Skipping workflow with invalid trigger conditions",
				zap.String("workflow_id", def.ID),
				zap.Error(err))
			continue
		}
		if ok {
			return def, nil
		}
	}
	return nil, nil
}

// StartApprovalProcess selects and instantiates the workflow for a change
// event. It returns nil when no workflow applies, in which case the
// change is approved without review.
func (e *Engine) StartApprovalProcess(ctx context.Context, changeEventID string) (*types.WorkflowExecution, error) {
	unlock := e.locks.Lock(changeEventID)
	exec, ev, err := e.startLocked(ctx, changeEventID)
	unlock()
	if err != nil {
		return nil, err
	}

	if ev != nil && ev.ApprovalStatus == types.ChangeApprovalApproved {
		e.approved(ctx, ev)
	}
	return exec, nil
}

func (e *Engine) startLocked(ctx context.Context, changeEventID string) (*types.WorkflowExecution, *types.ChangeEvent, error) {
	ev, err := e.store.ChangeEvents.Get(ctx, changeEventID)
	if err != nil {
		return nil, nil, err
	}
	if ev.ApprovalStatus != types.ChangeApprovalNone {
		return nil, nil, fmt.Errorf("%w: change event %s already has approval status %s",
			types.ErrInvalidTransition, ev.ID, ev.ApprovalStatus)
	}

	def, err := e.SelectWorkflow(ctx, ev)
	if err != nil {
		return nil, nil, err
	}
	now := e.now().UTC()

	if def == nil {
		if err := e.setStatus(ctx, ev, types.ChangeApprovalApproved, &now); err != nil {
			return nil, nil, err
		}
		e.metrics.WorkflowStarted("no_workflow")
		e.logger.Info("No workflow applies, change approved",
			zap.String("change_event_id", ev.ID),
			zap.String("impact_level", string(ev.ImpactLevel)))
		return nil, ev, nil
	}

	auto, err := AutoApprove(def.AutoApproveConditions, ev)
	if err != nil {
		e.logger.Warn("Ignoring invalid auto-approve conditions",
			zap.String("workflow_id", def.ID),
			zap.Error(err))
	}
	if auto {
		if err := e.setStatus(ctx, ev, types.ChangeApprovalApproved, &now); err != nil {
			return nil, nil, err
		}
		e.metrics.WorkflowStarted("auto_approved")
		e.logger.Info("Change auto-approved",
			zap.String("change_event_id", ev.ID),
			zap.String("workflow_id", def.ID))
		e.emit(ctx, notify.ChangeApproved(ev, now))
		return &types.WorkflowExecution{
			ChangeEventID: ev.ID,
			Definition:    def,
			Approvals:     []*types.Approval{},
			Status:        types.ChangeApprovalApproved,
			AutoApproved:  true,
			Complete:      true,
		}, ev, nil
	}

	approvals := make([]*types.Approval, 0, len(def.Steps))
	for _, step := range def.Steps {
		approvals = append(approvals, &types.Approval{
			ID:            uuid.NewString(),
			ChangeEventID: ev.ID,
			WorkflowID:    def.ID,
			StepNumber:    step.StepNumber,
			StepName:      step.Name,
			ApproverRole:  step.ApproverRole,
			ApproverID:    step.ApproverID,
			Status:        types.ApprovalPending,
			DueDate:       now.Add(time.Duration(e.timeoutHours(def, step)) * time.Hour),
			CreatedAt:     now,
		})
	}
	if err := e.store.Approvals.CreateBatch(ctx, approvals); err != nil {
		return nil, nil, fmt.Errorf("failed to create approvals: %w", err)
	}
	if err := e.setStatus(ctx, ev, types.ChangeApprovalPending, nil); err != nil {
		return nil, nil, err
	}
	e.metrics.WorkflowStarted("instantiated")

	e.logger.Info("Approval workflow started",
		zap.String("change_event_id", ev.ID),
		zap.String("workflow_id", def.ID),
		zap.Int("steps", len(approvals)),
		zap.Bool("parallel", def.IsParallel))

	e.emit(ctx, notify.WorkflowStarted(ev, def, now))
	var first []int
	if def.IsParallel {
		for _, s := range def.Steps {
			first = append(first, s.StepNumber)
		}
	} else {
		first = stage(def, 1)
	}
	e.notifySteps(ctx, ev, approvals, first)

	exec := &types.WorkflowExecution{
		ChangeEventID: ev.ID,
		Definition:    def,
		Approvals:     approvals,
		Status:        types.ChangeApprovalPending,
		CurrentStep:   CurrentStep(def, approvals),
	}
	return exec, ev, nil
}

// ProcessApprovalDecision records an approver's decision and advances the
// workflow
func (e *Engine) ProcessApprovalDecision(ctx context.Context, d types.Decision) (*types.WorkflowExecution, error) {
	if !d.Status.Valid() || d.Status == types.ApprovalPending {
		return nil, fmt.Errorf("%w: unknown decision %q", types.ErrValidation, d.Status)
	}

	approval, err := e.store.Approvals.Get(ctx, d.ApprovalID)
	if err != nil {
		return nil, err
	}
	actor, err := e.store.Users.Get(ctx, d.ActorID)
	if err != nil {
		return nil, err
	}
	if !e.mayDecide(actor, approval) {
		return nil, fmt.Errorf("%w: user %s may not decide approval %s", types.ErrUnauthorized, actor.ID, approval.ID)
	}

	unlock := e.locks.Lock(approval.ChangeEventID)
	exec, ev, err := e.decideLocked(ctx, approval, d)
	unlock()
	if err != nil {
		return nil, err
	}

	e.metrics.ApprovalDecided(string(d.Status))
	if exec.Status == types.ChangeApprovalApproved {
		e.approved(ctx, ev)
	}
	return exec, nil
}

func (e *Engine) decideLocked(ctx context.Context, approval *types.Approval, d types.Decision) (*types.WorkflowExecution, *types.ChangeEvent, error) {
	ev, err := e.store.ChangeEvents.Get(ctx, approval.ChangeEventID)
	if err != nil {
		return nil, nil, err
	}
	if ev.ApprovalStatus != types.ChangeApprovalPending {
		return nil, nil, fmt.Errorf("%w: change event %s is %s", types.ErrInvalidTransition, ev.ID, ev.ApprovalStatus)
	}
	def, err := e.store.Workflows.Get(ctx, approval.WorkflowID)
	if err != nil {
		return nil, nil, err
	}

	now := e.now().UTC()
	update := types.ApprovalUpdate{
		Status:    d.Status,
		DecidedBy: d.ActorID,
		DecidedAt: &now,
		Comments:  d.Comments,
	}
	if d.Status == types.ApprovalEscalated {
		update.EscalatedAt = &now
	}
	decided, err := e.store.Approvals.Transition(ctx, approval.ID, []types.ApprovalStatus{types.ApprovalPending}, update)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to record decision: %w", err)
	}

	e.audit(ctx, &types.AuditEntry{
		Action:     types.AuditApprovalDecision,
		EntityType: "APPROVAL",
		EntityID:   decided.ID,
		ActorID:    d.ActorID,
		Reason:     d.Comments,
		Details: map[string]any{
			"change_event_id": ev.ID,
			"step_number":     decided.StepNumber,
			"decision":        string(d.Status),
		},
	})

	// Read after the write so completion sees the triggering decision
	approvals, err := e.store.Approvals.ListByChangeEvent(ctx, ev.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	logger := e.logger.With(
		zap.String("change_event_id", ev.ID),
		zap.String("approval_id", decided.ID),
		zap.Int("step", decided.StepNumber),
		zap.String("decided_by", d.ActorID))

	switch d.Status {
	case types.ApprovalApproved:
		if Complete(def, approvals) {
			if err := e.setStatus(ctx, ev, types.ChangeApprovalApproved, &now); err != nil {
				return nil, nil, err
			}
			logger.Info("Workflow complete, change approved")
			e.emit(ctx, notify.ChangeApproved(ev, now))
		} else if !def.IsParallel {
			logger.Info("Step approved")
			e.notifySteps(ctx, ev, approvals, nextStage(def, approvals, decided.StepNumber))
		} else {
			logger.Info("Step approved")
		}
	case types.ApprovalRejected:
		if err := e.setStatus(ctx, ev, types.ChangeApprovalRejected, &now); err != nil {
			return nil, nil, err
		}
		logger.Info("Change rejected")
		e.emit(ctx, notify.ChangeRejected(ev, decided, now))
	case types.ApprovalEscalated:
		logger.Info("Approval escalated by decision")
	case types.ApprovalBypassed:
		logger.Info("Approval step bypassed")
	}

	return e.execution(ev, def, approvals), ev, nil
}

// ProcessOverdueApprovals escalates every PENDING approval past its due
// date whose change is still pending, and notifies the escalation roles.
// Errors on single approvals are collected; the sweep continues.
func (e *Engine) ProcessOverdueApprovals(ctx context.Context) (*SweepResult, error) {
	start := time.Now()
	now := e.now().UTC()

	overdue, err := e.store.Approvals.ListOverdue(ctx, now, sweepBatch)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue approvals: %w", err)
	}

	result := &SweepResult{Overdue: len(overdue)}
	var errs []error
	for _, a := range overdue {
		escalated, err := e.escalate(ctx, a, now)
		switch {
		case errors.Is(err, types.ErrInvalidTransition):
			result.Skipped++
		case err != nil:
			errs = append(errs, fmt.Errorf("approval %s: %w", a.ID, err))
		case escalated:
			result.Escalated++
		}
	}

	e.metrics.Escalated(result.Escalated)
	e.metrics.Sweep(time.Since(start), result.Overdue)
	if result.Overdue > 0 {
		e.logger.Info("Overdue approvals processed",
			zap.Int("overdue", result.Overdue),
			zap.Int("escalated", result.Escalated),
			zap.Int("skipped", result.Skipped),
			zap.Int("errors", len(errs)))
	}
	return result, errors.Join(errs...)
}

func (e *Engine) escalate(ctx context.Context, a *types.Approval, now time.Time) (bool, error) {
	unlock := e.locks.Lock(a.ChangeEventID)
	defer unlock()

	// Approvals left open on a closed change can no longer be decided
	ev, err := e.store.ChangeEvents.Get(ctx, a.ChangeEventID)
	if err != nil {
		return false, fmt.Errorf("failed to load change event: %w", err)
	}
	if ev.ApprovalStatus != types.ChangeApprovalPending {
		return false, fmt.Errorf("%w: change event %s is %s", types.ErrInvalidTransition, ev.ID, ev.ApprovalStatus)
	}

	escalated, err := e.store.Approvals.Transition(ctx, a.ID, []types.ApprovalStatus{types.ApprovalPending}, types.ApprovalUpdate{
		Status:      types.ApprovalEscalated,
		EscalatedAt: &now,
	})
	if err != nil {
		return false, err
	}
	def, err := e.store.Workflows.Get(ctx, a.WorkflowID)
	if err != nil {
		return true, fmt.Errorf("escalated but failed to load workflow: %w", err)
	}

	roles := def.EscalationRoles
	if step, ok := def.Step(a.StepNumber); ok && len(step.EscalationRoles) > 0 {
		roles = step.EscalationRoles
	}

	e.logger.Warn("Approval escalated",
		zap.String("change_event_id", ev.ID),
		zap.String("approval_id", a.ID),
		zap.Int("step", a.StepNumber),
		zap.Time("due_date", a.DueDate),
		zap.Strings("roles", roles))

	if len(roles) == 0 {
		e.logger.Warn("No escalation roles configured",
			zap.String("workflow_id", def.ID),
			zap.Int("step", a.StepNumber))
		return true, nil
	}
	e.emit(ctx, notify.ApprovalEscalated(ev, escalated, roles, now))
	return true, nil
}

// BypassApproval resolves every open approval of a change event and
// approves the change. The actor must hold one of the workflow's
// emergency bypass roles or an administrator role.
func (e *Engine) BypassApproval(ctx context.Context, changeEventID, actorID, reason string) (*types.WorkflowExecution, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: bypass reason is required", types.ErrValidation)
	}

	ev, err := e.store.ChangeEvents.Get(ctx, changeEventID)
	if err != nil {
		return nil, err
	}
	actor, err := e.store.Users.Get(ctx, actorID)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(changeEventID)
	exec, err := e.bypassLocked(ctx, ev.ID, actor, reason)
	unlock()
	if err != nil {
		return nil, err
	}

	e.metrics.Bypassed()
	ev, err = e.store.ChangeEvents.Get(ctx, changeEventID)
	if err == nil {
		e.approved(ctx, ev)
	}
	return exec, nil
}

func (e *Engine) bypassLocked(ctx context.Context, changeEventID string, actor *types.User, reason string) (*types.WorkflowExecution, error) {
	ev, err := e.store.ChangeEvents.Get(ctx, changeEventID)
	if err != nil {
		return nil, err
	}
	approvals, err := e.store.Approvals.ListByChangeEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}

	var def *types.WorkflowDefinition
	if len(approvals) > 0 {
		if def, err = e.store.Workflows.Get(ctx, approvals[0].WorkflowID); err != nil {
			return nil, err
		}
	}

	allowed := actor.IsActive && actor.HasRole(e.config.AdminRoles...)
	if def != nil && actor.IsActive && actor.HasRole(def.EmergencyBypassRoles...) {
		allowed = true
	}
	if !allowed {
		e.logger.Warn("Emergency bypass denied",
			zap.String("change_event_id", ev.ID),
			zap.String("actor_id", actor.ID),
			zap.String("role", actor.Role))
		return nil, fmt.Errorf("%w: user %s may not bypass approval of change event %s", types.ErrUnauthorized, actor.ID, ev.ID)
	}
	if ev.ApprovalStatus.Terminal() {
		return nil, fmt.Errorf("%w: change event %s is already %s", types.ErrInvalidTransition, ev.ID, ev.ApprovalStatus)
	}

	now := e.now().UTC()
	open := []types.ApprovalStatus{types.ApprovalPending, types.ApprovalEscalated}
	bypassed := make([]string, 0, len(approvals))
	for i, a := range approvals {
		if a.Status != types.ApprovalPending && a.Status != types.ApprovalEscalated {
			continue
		}
		updated, err := e.store.Approvals.Transition(ctx, a.ID, open, types.ApprovalUpdate{
			Status:    types.ApprovalBypassed,
			DecidedBy: actor.ID,
			DecidedAt: &now,
			Comments:  reason,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to bypass approval %s: %w", a.ID, err)
		}
		approvals[i] = updated
		bypassed = append(bypassed, a.ID)
	}

	previous := ev.ApprovalStatus
	if err := e.setStatus(ctx, ev, types.ChangeApprovalApproved, &now); err != nil {
		return nil, err
	}

	details := map[string]any{
		"approval_ids":    bypassed,
		"previous_status": string(previous),
	}
	if def != nil {
		details["workflow_id"] = def.ID
	}
	e.audit(ctx, &types.AuditEntry{
		Action:     types.AuditEmergencyBypass,
		EntityType: "CHANGE_EVENT",
		EntityID:   ev.ID,
		ActorID:    actor.ID,
		Reason:     reason,
		Details:    details,
	})

	e.logger.Warn("Emergency bypass",
		zap.String("change_event_id", ev.ID),
		zap.String("actor_id", actor.ID),
		zap.Int("bypassed", len(bypassed)),
		zap.String("reason", reason))

	e.emit(ctx, notify.EmergencyBypass(ev, actor.ID, reason, e.config.AdminRoles, now))

	if def == nil {
		return &types.WorkflowExecution{
			ChangeEventID: ev.ID,
			Approvals:     approvals,
			Status:        types.ChangeApprovalApproved,
			Complete:      true,
		}, nil
	}
	exec := e.execution(ev, def, approvals)
	exec.Complete = true
	return exec, nil
}

// GetWorkflowStatus returns the workflow execution of a change event. A
// change without approvals has an execution with no definition.
func (e *Engine) GetWorkflowStatus(ctx context.Context, changeEventID string) (*types.WorkflowExecution, error) {
	ev, err := e.store.ChangeEvents.Get(ctx, changeEventID)
	if err != nil {
		return nil, err
	}
	approvals, err := e.store.Approvals.ListByChangeEvent(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	if len(approvals) == 0 {
		return &types.WorkflowExecution{
			ChangeEventID: ev.ID,
			Approvals:     approvals,
			Status:        ev.ApprovalStatus,
			Complete:      ev.ApprovalStatus == types.ChangeApprovalApproved,
		}, nil
	}

	def, err := e.store.Workflows.Get(ctx, approvals[0].WorkflowID)
	if err != nil {
		return nil, err
	}
	return e.execution(ev, def, approvals), nil
}

func (e *Engine) execution(ev *types.ChangeEvent, def *types.WorkflowDefinition, approvals []*types.Approval) *types.WorkflowExecution {
	exec := &types.WorkflowExecution{
		ChangeEventID: ev.ID,
		Definition:    def,
		Approvals:     approvals,
		Status:        ev.ApprovalStatus,
		Complete:      Complete(def, approvals),
	}
	if ev.ApprovalStatus == types.ChangeApprovalPending {
		exec.CurrentStep = CurrentStep(def, approvals)
	}
	return exec
}

// setStatus moves the change event out of its current open status and
// mirrors the change on ev
func (e *Engine) setStatus(ctx context.Context, ev *types.ChangeEvent, status types.ChangeApprovalStatus, completedAt *time.Time) error {
	from := []types.ChangeApprovalStatus{types.ChangeApprovalNone, types.ChangeApprovalPending}
	if err := e.store.ChangeEvents.UpdateApprovalStatus(ctx, ev.ID, from, status, completedAt); err != nil {
		return fmt.Errorf("failed to set change event status: %w", err)
	}
	ev.ApprovalStatus = status
	if completedAt != nil {
		ev.CompletedAt = completedAt
	}
	return nil
}

// mayDecide reports whether actor is the step's approver
func (e *Engine) mayDecide(actor *types.User, a *types.Approval) bool {
	if !actor.IsActive {
		return false
	}
	if actor.HasRole(e.config.AdminRoles...) {
		return true
	}
	if a.ApproverID != "" {
		return actor.ID == a.ApproverID
	}
	return actor.Role == a.ApproverRole
}

func (e *Engine) timeoutHours(def *types.WorkflowDefinition, step types.WorkflowStep) int {
	switch {
	case step.TimeoutHours > 0:
		return step.TimeoutHours
	case def.DefaultTimeoutHours > 0:
		return def.DefaultTimeoutHours
	default:
		return e.config.DefaultTimeoutHours
	}
}

func (e *Engine) notifySteps(ctx context.Context, ev *types.ChangeEvent, approvals []*types.Approval, steps []int) {
	for _, n := range steps {
		for _, a := range approvals {
			if a.StepNumber == n && a.Status == types.ApprovalPending {
				e.emit(ctx, notify.ApprovalRequired(ev, a, e.now()))
			}
		}
	}
}

// emit hands a request to the sink. Failures are logged, never returned.
func (e *Engine) emit(ctx context.Context, req *notify.Request) {
	err := e.sink.Send(ctx, req)
	e.metrics.Notification(string(req.Kind), err)
	if err != nil {
		e.logger.Warn("Failed to emit notification",
			zap.String("stage", types.StageNotification),
			zap.String("change_event_id", req.ChangeEventID),
			zap.String("kind", string(req.Kind)),
			zap.Error(err))
	}
}

// audit appends to the audit log. Failures are logged, never returned.
func (e *Engine) audit(ctx context.Context, entry *types.AuditEntry) {
	entry.ID = uuid.NewString()
	entry.CreatedAt = e.now().UTC()
	if err := e.store.Audit.Append(ctx, entry); err != nil {
		e.logger.Error("Failed to append audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err))
	}
}

func (e *Engine) approved(ctx context.Context, ev *types.ChangeEvent) {
	if e.onApproved != nil {
		e.onApproved(ctx, ev)
	}
}

package propagation

import (
	"context"
	"fmt"
	"time"

	"qmsgov/internal/repository"
	"qmsgov/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultStatus is the outcome of one rule execution
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "SUCCEEDED"
	ResultFailed    ResultStatus = "FAILED"
	// ResultSkipped marks a rule waiting for the change to be approved
	ResultSkipped ResultStatus = "SKIPPED"
)

// Command is the downstream action issued for a matched rule
type Command struct {
	ID               string           `json:"id"`
	ChangeEventID    string           `json:"change_event_id"`
	ProjectID        string           `json:"project_id"`
	RuleID           string           `json:"rule_id"`
	RuleName         string           `json:"rule_name"`
	SourceEntityType types.EntityType `json:"source_entity_type"`
	SourceEntityID   string           `json:"source_entity_id"`
	ChangeType       types.ChangeKind `json:"change_type"`
	ChangedFields    []string         `json:"changed_fields"`
	NewValue         types.Snapshot   `json:"new_value,omitempty"`
	TargetEntityType types.EntityType `json:"target_entity_type"`
	TargetAction     string           `json:"target_action"`
	IssuedAt         time.Time        `json:"issued_at"`
}

// NewCommand builds the command for rule applied to ev
func NewCommand(ev *types.ChangeEvent, rule *types.PropagationRule) *Command {
	return &Command{
		ID:               uuid.NewString(),
		ChangeEventID:    ev.ID,
		ProjectID:        ev.ProjectID,
		RuleID:           rule.ID,
		RuleName:         rule.Name,
		SourceEntityType: ev.EntityType,
		SourceEntityID:   ev.EntityID,
		ChangeType:       ev.ChangeType,
		ChangedFields:    ev.ChangedFields,
		NewValue:         ev.NewValue,
		TargetEntityType: rule.TargetEntityType,
		TargetAction:     rule.TargetAction,
		IssuedAt:         time.Now().UTC(),
	}
}

// Executor carries out one propagation command
type Executor interface {
	Execute(ctx context.Context, cmd *Command) error
}

// ExecutorFunc adapts a function to Executor
type ExecutorFunc func(ctx context.Context, cmd *Command) error

// Execute calls f
func (f ExecutorFunc) Execute(ctx context.Context, cmd *Command) error {
	return f(ctx, cmd)
}

// RuleResult is the outcome of one rule
type RuleResult struct {
	RuleID   string       `json:"rule_id"`
	RuleName string       `json:"rule_name"`
	Status   ResultStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
}

// Outcome aggregates the rule results of one run
type Outcome struct {
	Status  types.PropagationStatus `json:"status"`
	Results []RuleResult            `json:"results"`
	Errors  []string                `json:"errors,omitempty"`
}

// Failed reports whether any rule failed. A run that also deferred rules
// stays PENDING so the deferred rules still run on approval.
func (o *Outcome) Failed() bool {
	return len(o.Errors) > 0
}

// Engine selects and executes propagation rules
type Engine struct {
	rules    repository.RuleRepository
	executor Executor
	logger   *zap.Logger
}

// NewEngine creates new propagation engine
func NewEngine(rules repository.RuleRepository, executor Executor, logger *zap.Logger) *Engine {
	return &Engine{
		rules:    rules,
		executor: executor,
		logger:   logger,
	}
}

// Load compiles the active rules for the change's source. Stored rules
// with invalid patterns are skipped.
func (e *Engine) Load(ctx context.Context, projectID string, entityType types.EntityType, kind types.ChangeKind) ([]*CompiledRule, error) {
	rules, err := e.rules.ListActive(ctx, projectID, entityType, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to load propagation rules: %w", err)
	}

	compiled := make([]*CompiledRule, 0, len(rules))
	for _, rule := range rules {
		c, err := Compile(rule)
		if err != nil {
			e.logger.Warn("Skipping propagation rule",
				zap.String("rule_id", rule.ID),
				zap.Error(err))
			continue
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

// Match loads and matches the rules for ev
func (e *Engine) Match(ctx context.Context, ev *types.ChangeEvent) ([]*CompiledRule, error) {
	rules, err := e.Load(ctx, ev.ProjectID, ev.EntityType, ev.ChangeType)
	if err != nil {
		return nil, err
	}
	return Match(rules, ev), nil
}

// Execute runs every matched rule in order. A failing rule does not stop
// the others. Rules requiring approval are skipped while ev awaits approval.
func (e *Engine) Execute(ctx context.Context, ev *types.ChangeEvent, matched []*CompiledRule) *Outcome {
	return e.run(ctx, ev, matched, func(*CompiledRule) bool { return true })
}

// ExecuteDeferred runs only the rules that wait for approval
func (e *Engine) ExecuteDeferred(ctx context.Context, ev *types.ChangeEvent, matched []*CompiledRule) *Outcome {
	return e.run(ctx, ev, matched, func(r *CompiledRule) bool { return r.Rule.RequiresApproval })
}

func (e *Engine) run(ctx context.Context, ev *types.ChangeEvent, matched []*CompiledRule, include func(*CompiledRule) bool) *Outcome {
	out := &Outcome{Status: types.PropagationNone, Results: make([]RuleResult, 0, len(matched))}

	var failed, skipped, ran int
	for _, r := range matched {
		if !include(r) {
			continue
		}
		ran++
		result := RuleResult{RuleID: r.Rule.ID, RuleName: r.Rule.Name}

		if r.Rule.RequiresApproval && awaitingApproval(ev) {
			result.Status = ResultSkipped
			skipped++
			out.Results = append(out.Results, result)
			continue
		}

		if err := e.execute(ctx, NewCommand(ev, r.Rule)); err != nil {
			result.Status = ResultFailed
			result.Error = err.Error()
			failed++
			out.Errors = append(out.Errors, fmt.Sprintf("rule %s (%s): %v", r.Rule.Name, r.Rule.ID, err))
			e.logger.Warn("Propagation rule failed",
				zap.String("change_event_id", ev.ID),
				zap.String("rule_id", r.Rule.ID),
				zap.Error(err))
		} else {
			result.Status = ResultSucceeded
		}
		out.Results = append(out.Results, result)
	}

	switch {
	case ran == 0:
		out.Status = types.PropagationNone
	case skipped > 0:
		out.Status = types.PropagationPending
	case failed > 0:
		out.Status = types.PropagationFailed
	default:
		out.Status = types.PropagationCompleted
	}
	return out
}

// execute isolates the executor so a panicking rule counts as a failure
func (e *Engine) execute(ctx context.Context, cmd *Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return e.executor.Execute(ctx, cmd)
}

// A change that needs no approval never holds back gated rules
func awaitingApproval(ev *types.ChangeEvent) bool {
	return ev.ApprovalRequired && ev.ApprovalStatus != types.ChangeApprovalApproved
}

package propagation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/broker"
	"qmsgov/internal/repository"
	"qmsgov/internal/retry"
	"qmsgov/internal/types"
)

func rule(id string, priority int, patterns ...string) *types.PropagationRule {
	return &types.PropagationRule{
		ID:               id,
		ProjectID:        "p-1",
		Name:             "rule " + id,
		SourceEntityType: types.EntityFailureMode,
		SourceChangeType: types.ChangeUpdate,
		TargetEntityType: types.EntityControlItem,
		TargetAction:     "REVIEW",
		FieldPatterns:    patterns,
		Priority:         priority,
		IsActive:         true,
	}
}

func event() *types.ChangeEvent {
	return &types.ChangeEvent{
		ID:               "ce-1",
		ProjectID:        "p-1",
		EntityType:       types.EntityFailureMode,
		EntityID:         "fm-1",
		ChangeType:       types.ChangeUpdate,
		ChangedFields:    []string{"severityRating"},
		ApprovalRequired: true,
		ApprovalStatus:   types.ChangeApprovalPending,
	}
}

func TestCompile(t *testing.T) {
	_, err := Compile(rule("r-1", 0, "^severity", "effects$"))
	require.NoError(t, err)

	_, err = Compile(rule("r-2", 0, "([a-z"))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		rule   *types.PropagationRule
		mutate func(*types.ChangeEvent)
		want   bool
	}{
		{name: "no patterns", rule: rule("r", 0), want: true},
		{name: "pattern hit", rule: rule("r", 0, "Rating$"), want: true},
		{name: "one of many patterns", rule: rule("r", 0, "^cause", "^severity"), want: true},
		{name: "pattern miss", rule: rule("r", 0, "^effects$"), want: false},
		{name: "other entity", rule: rule("r", 0), mutate: func(ev *types.ChangeEvent) {
			ev.EntityType = types.EntityFailureCause
		}, want: false},
		{name: "other kind", rule: rule("r", 0), mutate: func(ev *types.ChangeEvent) {
			ev.ChangeType = types.ChangeDelete
		}, want: false},
		{name: "inactive", rule: func() *types.PropagationRule {
			r := rule("r", 0)
			r.IsActive = false
			return r
		}(), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Compile(tt.rule)
			require.NoError(t, err)
			ev := event()
			if tt.mutate != nil {
				tt.mutate(ev)
			}
			assert.Equal(t, tt.want, c.Matches(ev))
		})
	}
}

func TestMatchOrdersByPriority(t *testing.T) {
	var compiled []*CompiledRule
	for _, r := range []*types.PropagationRule{rule("c", 30), rule("a", 10), rule("miss", 0, "^x"), rule("b", 10)} {
		c, err := Compile(r)
		require.NoError(t, err)
		compiled = append(compiled, c)
	}

	matched := Match(compiled, event())
	require.Len(t, matched, 3)
	assert.Equal(t, "a", matched[0].Rule.ID)
	assert.Equal(t, "b", matched[1].Rule.ID)
	assert.Equal(t, "c", matched[2].Rule.ID)

	target := rule("d", 0)
	target.TargetEntityType = types.EntityProcessStep
	c, err := Compile(target)
	require.NoError(t, err)
	assert.Equal(t, []string{types.ModuleControlPlan, types.ModuleProcessFlow}, TargetModules(append(matched, c)))
}

func TestEngineExecute(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	for _, r := range []*types.PropagationRule{rule("ok", 1), rule("boom", 2), rule("after", 3), rule("bad", 4, "([")} {
		require.NoError(t, store.Rules.Create(ctx, r))
	}

	var ran []string
	exec := ExecutorFunc(func(_ context.Context, cmd *Command) error {
		ran = append(ran, cmd.RuleID)
		if cmd.RuleID == "boom" {
			return errors.New("target unavailable")
		}
		return nil
	})
	engine := NewEngine(store.Rules, exec, zaptest.NewLogger(t))

	ev := event()
	matched, err := engine.Match(ctx, ev)
	require.NoError(t, err)
	require.Len(t, matched, 3, "invalid stored rule is skipped")

	out := engine.Execute(ctx, ev, matched)
	assert.Equal(t, []string{"ok", "boom", "after"}, ran, "a failed rule does not abort the rest")
	assert.Equal(t, types.PropagationFailed, out.Status)
	assert.True(t, out.Failed())
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "target unavailable")
	assert.Equal(t, ResultSucceeded, out.Results[0].Status)
	assert.Equal(t, ResultFailed, out.Results[1].Status)
	assert.Equal(t, ResultSucceeded, out.Results[2].Status)
}

func TestEngineDefersRulesRequiringApproval(t *testing.T) {
	ctx := context.Background()
	gated := rule("gated", 1)
	gated.RequiresApproval = true
	free := rule("free", 2)

	var compiled []*CompiledRule
	for _, r := range []*types.PropagationRule{gated, free} {
		c, err := Compile(r)
		require.NoError(t, err)
		compiled = append(compiled, c)
	}

	var ran []string
	engine := NewEngine(nil, ExecutorFunc(func(_ context.Context, cmd *Command) error {
		ran = append(ran, cmd.RuleID)
		return nil
	}), zaptest.NewLogger(t))

	ev := event()
	out := engine.Execute(ctx, ev, compiled)
	assert.Equal(t, types.PropagationPending, out.Status)
	assert.Equal(t, []string{"free"}, ran)
	assert.Equal(t, ResultSkipped, out.Results[0].Status)

	ev.ApprovalStatus = types.ChangeApprovalApproved
	out = engine.ExecuteDeferred(ctx, ev, compiled)
	assert.Equal(t, types.PropagationCompleted, out.Status)
	assert.Equal(t, []string{"free", "gated"}, ran)
	require.Len(t, out.Results, 1)

	out = engine.Execute(ctx, ev, nil)
	assert.Equal(t, types.PropagationNone, out.Status)

	failing := NewEngine(nil, ExecutorFunc(func(context.Context, *Command) error {
		return errors.New("down")
	}), zaptest.NewLogger(t))
	ev = event()
	out = failing.Execute(ctx, ev, compiled)
	assert.Equal(t, types.PropagationPending, out.Status, "deferred rules keep the run pending")
	assert.True(t, out.Failed())

	ran = nil
	ev = event()
	ev.ApprovalRequired = false
	ev.ApprovalStatus = types.ChangeApprovalNone
	out = engine.Execute(ctx, ev, compiled)
	assert.Equal(t, types.PropagationCompleted, out.Status)
	assert.Equal(t, []string{"gated", "free"}, ran)
}

func TestEngineRecoversExecutorPanic(t *testing.T) {
	c, err := Compile(rule("r", 0))
	require.NoError(t, err)
	engine := NewEngine(nil, ExecutorFunc(func(context.Context, *Command) error {
		panic("nil target")
	}), zaptest.NewLogger(t))

	out := engine.Execute(context.Background(), event(), []*CompiledRule{c})
	assert.Equal(t, types.PropagationFailed, out.Status)
	assert.Contains(t, out.Errors[0], "nil target")
}

func TestBrokerExecutor(t *testing.T) {
	pub := broker.NewMemory()
	fails := 1
	pub.Fail = func(*broker.Message) error {
		if fails > 0 {
			fails--
			return errors.New("leader not available")
		}
		return nil
	}

	cfg := &retry.Config{Enable: true, InitialAttempts: 3, InitialInterval: time.Millisecond}
	x := NewBrokerExecutor(pub, "qmsgov.propagation", cfg, zaptest.NewLogger(t))

	cmd := NewCommand(event(), rule("r-1", 0))
	require.NoError(t, x.Execute(context.Background(), cmd))

	msgs := pub.Messages("qmsgov.propagation")
	require.Len(t, msgs, 1)
	assert.Equal(t, "ce-1", msgs[0].Key)
	assert.Equal(t, "REVIEW", msgs[0].Headers["target-action"])

	var got Command
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	assert.Equal(t, "r-1", got.RuleID)
	assert.Equal(t, types.EntityControlItem, got.TargetEntityType)

	pub.Fail = func(*broker.Message) error { return errors.New("down") }
	err := x.Execute(context.Background(), cmd)
	assert.ErrorIs(t, err, retry.ErrExhausted)
}

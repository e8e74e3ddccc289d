package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/config"
	"qmsgov/internal/database"
	"qmsgov/internal/types"
)

// stores returns a memory store and a store on a migrated sqlite file
func stores(t *testing.T) map[string]*Store {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.Default().Database
	cfg.Driver = "sqlite"
	cfg.DSN = filepath.Join(t.TempDir(), "qmsgov.db")
	cfg.AutoMigrate = true
	cfg.MigrationsPath = filepath.Join("..", "..", "migrations")

	db, err := database.New(&cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return map[string]*Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLStore(db, logger),
	}
}

func testEvent(id string, created time.Time) *types.ChangeEvent {
	return &types.ChangeEvent{
		ID:                id,
		ProjectID:         "p-1",
		EntityType:        types.EntityFailureMode,
		EntityID:          "fm-1",
		ChangeType:        types.ChangeUpdate,
		ChangedFields:     []string{"severityRating", "effects"},
		OldValue:          types.Snapshot{"severityRating": 5, "effects": []any{"a", "b"}},
		NewValue:          types.Snapshot{"severityRating": 9, "effects": []any{"b", "a"}},
		ImpactLevel:       types.ImpactCritical,
		AffectedModules:   []string{types.ModuleFMEA, types.ModuleControlPlan},
		ApprovalRequired:  true,
		ApprovalStatus:    types.ChangeApprovalNone,
		PropagationStatus: types.PropagationNone,
		TriggeredBy:       "u-1",
		CreatedAt:         created,
	}
}

func TestChangeEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			repo := store.ChangeEvents
			require.NoError(t, repo.Create(ctx, testEvent("ce-1", now)))
			second := testEvent("ce-2", now.Add(time.Minute))
			second.ImpactLevel = types.ImpactLow
			second.BatchID = "b-1"
			require.NoError(t, repo.Create(ctx, second))

			got, err := repo.Get(ctx, "ce-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"severityRating", "effects"}, got.ChangedFields)
			assert.Equal(t, float64(9), got.NewValue["severityRating"])
			assert.Equal(t, []any{"b", "a"}, got.NewValue["effects"])
			assert.True(t, got.CreatedAt.Equal(now))
			assert.Nil(t, got.CompletedAt)

			_, err = repo.Get(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrNotFound)

			// conditional status update
			completed := now.Add(time.Hour)
			require.NoError(t, repo.UpdateApprovalStatus(ctx, "ce-1", nil, types.ChangeApprovalPending, nil))
			require.NoError(t, repo.UpdateApprovalStatus(ctx, "ce-1",
				[]types.ChangeApprovalStatus{types.ChangeApprovalPending}, types.ChangeApprovalApproved, &completed))
			err = repo.UpdateApprovalStatus(ctx, "ce-1",
				[]types.ChangeApprovalStatus{types.ChangeApprovalPending}, types.ChangeApprovalRejected, &completed)
			assert.ErrorIs(t, err, types.ErrInvalidTransition)
			err = repo.UpdateApprovalStatus(ctx, "missing", nil, types.ChangeApprovalApproved, nil)
			assert.ErrorIs(t, err, types.ErrNotFound)

			require.NoError(t, repo.UpdatePropagation(ctx, "ce-1", types.PropagationFailed, []string{"rule r-1: boom"}))

			got, err = repo.Get(ctx, "ce-1")
			require.NoError(t, err)
			assert.Equal(t, types.ChangeApprovalApproved, got.ApprovalStatus)
			require.NotNil(t, got.CompletedAt)
			assert.True(t, got.CompletedAt.Equal(completed))
			assert.Equal(t, types.PropagationFailed, got.PropagationStatus)
			assert.Equal(t, []string{"rule r-1: boom"}, got.PropagationErrors)

			list, err := repo.List(ctx, "p-1", types.ChangeEventFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "ce-2", list[0].ID)

			list, err = repo.List(ctx, "p-1", types.ChangeEventFilter{ImpactLevel: types.ImpactCritical})
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "ce-1", list[0].ID)

			list, err = repo.List(ctx, "p-1", types.ChangeEventFilter{BatchID: "b-1", Limit: 10})
			require.NoError(t, err)
			require.Len(t, list, 1)

			list, err = repo.List(ctx, "p-2", types.ChangeEventFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestApprovals(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.ChangeEvents.Create(ctx, testEvent("ce-1", now)))

			approvals := []*types.Approval{
				{ID: "a-2", ChangeEventID: "ce-1", WorkflowID: "wf-1", StepNumber: 2, StepName: "Manager",
					ApproverRole: types.RoleQualityManager, Status: types.ApprovalPending,
					DueDate: now.Add(48 * time.Hour), CreatedAt: now},
				{ID: "a-1", ChangeEventID: "ce-1", WorkflowID: "wf-1", StepNumber: 1, StepName: "Engineer",
					ApproverID: "u-eng", Status: types.ApprovalPending,
					DueDate: now.Add(time.Hour), CreatedAt: now},
			}
			require.NoError(t, store.Approvals.CreateBatch(ctx, approvals))

			list, err := store.Approvals.ListByChangeEvent(ctx, "ce-1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, 1, list[0].StepNumber)
			assert.Equal(t, 2, list[1].StepNumber)

			overdue, err := store.Approvals.ListOverdue(ctx, now.Add(2*time.Hour), 0)
			require.NoError(t, err)
			require.Len(t, overdue, 1)
			assert.Equal(t, "a-1", overdue[0].ID)

			mine, err := store.Approvals.ListPendingFor(ctx, "u-eng", "ENGINEER")
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, "a-1", mine[0].ID)

			mine, err = store.Approvals.ListPendingFor(ctx, "u-qm", types.RoleQualityManager)
			require.NoError(t, err)
			require.Len(t, mine, 1)
			assert.Equal(t, "a-2", mine[0].ID)

			escalatedAt := now.Add(2 * time.Hour)
			a, err := store.Approvals.Transition(ctx, "a-1",
				[]types.ApprovalStatus{types.ApprovalPending},
				types.ApprovalUpdate{Status: types.ApprovalEscalated, EscalatedAt: &escalatedAt})
			require.NoError(t, err)
			assert.Equal(t, types.ApprovalEscalated, a.Status)
			require.NotNil(t, a.EscalatedAt)
			assert.True(t, a.EscalatedAt.Equal(escalatedAt))

			// a decision that arrives after escalation loses
			decidedAt := now.Add(3 * time.Hour)
			a, err = store.Approvals.Transition(ctx, "a-1",
				[]types.ApprovalStatus{types.ApprovalPending},
				types.ApprovalUpdate{Status: types.ApprovalApproved, DecidedBy: "u-eng", DecidedAt: &decidedAt})
			assert.ErrorIs(t, err, types.ErrInvalidTransition)
			require.NotNil(t, a)
			assert.Equal(t, types.ApprovalEscalated, a.Status)

			a, err = store.Approvals.Transition(ctx, "a-2",
				[]types.ApprovalStatus{types.ApprovalPending},
				types.ApprovalUpdate{Status: types.ApprovalRejected, DecidedBy: "u-qm", DecidedAt: &decidedAt, Comments: "no"})
			require.NoError(t, err)
			assert.Equal(t, "u-qm", a.DecidedBy)
			assert.Equal(t, "no", a.Comments)

			_, err = store.Approvals.Transition(ctx, "missing",
				[]types.ApprovalStatus{types.ApprovalPending}, types.ApprovalUpdate{Status: types.ApprovalApproved})
			assert.ErrorIs(t, err, types.ErrNotFound)

			_, err = store.Approvals.Get(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestWorkflowsAndRules(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			older := &types.WorkflowDefinition{
				ID: "wf-old", ProjectID: "p-1", Name: "Old",
				TriggerConditions: types.Conditions{"impactLevel": []any{"HIGH", "CRITICAL"}},
				Steps:             []types.WorkflowStep{{StepNumber: 1, Name: "Review", ApproverRole: "ENGINEER", TimeoutHours: 24}},
				IsActive:          true,
				CreatedAt:         now,
			}
			newer := &types.WorkflowDefinition{
				ID: "wf-new", ProjectID: "p-1", Name: "New",
				Steps: []types.WorkflowStep{
					{StepNumber: 1, Name: "Review", ApproverRole: "ENGINEER"},
					{StepNumber: 2, Name: "Sign-off", ApproverRole: types.RoleQualityManager, IsOptional: true},
				},
				IsParallel:            true,
				AutoApproveConditions: types.Conditions{"impactLevel": "LOW"},
				EmergencyBypassRoles:  []string{types.RoleQualityManager},
				IsActive:              true,
				CreatedAt:             now.Add(time.Minute),
			}
			inactive := &types.WorkflowDefinition{
				ID: "wf-off", ProjectID: "p-1", Name: "Off",
				Steps:     []types.WorkflowStep{{StepNumber: 1, Name: "Review"}},
				CreatedAt: now.Add(time.Hour),
			}
			for _, def := range []*types.WorkflowDefinition{older, newer, inactive} {
				require.NoError(t, store.Workflows.Create(ctx, def))
			}

			defs, err := store.Workflows.ListActive(ctx, "p-1")
			require.NoError(t, err)
			require.Len(t, defs, 2)
			assert.Equal(t, "wf-new", defs[0].ID)
			assert.Equal(t, "wf-old", defs[1].ID)
			assert.Equal(t, []any{"HIGH", "CRITICAL"}, defs[1].TriggerConditions["impactLevel"])
			assert.Empty(t, defs[0].TriggerConditions)
			assert.True(t, defs[0].Steps[1].IsOptional)
			assert.Equal(t, []string{types.RoleQualityManager}, defs[0].EmergencyBypassRoles)

			_, err = store.Workflows.Get(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrNotFound)

			rules := []*types.PropagationRule{
				{ID: "r-2", ProjectID: "p-1", Name: "Update plan", SourceEntityType: types.EntityFailureMode,
					SourceChangeType: types.ChangeUpdate, TargetEntityType: types.EntityControlItem,
					TargetAction: "REVIEW", Priority: 20, IsActive: true, CreatedAt: now},
				{ID: "r-1", ProjectID: "p-1", Name: "Flag flow", SourceEntityType: types.EntityFailureMode,
					SourceChangeType: types.ChangeUpdate, TargetEntityType: types.EntityProcessStep,
					TargetAction: "FLAG", FieldPatterns: []string{"^severity"}, Priority: 10, IsActive: true, CreatedAt: now},
				{ID: "r-3", ProjectID: "p-1", Name: "Inactive", SourceEntityType: types.EntityFailureMode,
					SourceChangeType: types.ChangeUpdate, TargetEntityType: types.EntityControlItem,
					TargetAction: "REVIEW", CreatedAt: now},
			}
			for _, rule := range rules {
				require.NoError(t, store.Rules.Create(ctx, rule))
			}

			active, err := store.Rules.ListActive(ctx, "p-1", types.EntityFailureMode, types.ChangeUpdate)
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, "r-1", active[0].ID)
			assert.Equal(t, []string{"^severity"}, active[0].FieldPatterns)
			assert.Equal(t, "r-2", active[1].ID)

			active, err = store.Rules.ListActive(ctx, "p-1", types.EntityFailureMode, types.ChangeDelete)
			require.NoError(t, err)
			assert.Empty(t, active)
		})
	}
}

func TestUsersAndAudit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Users.Upsert(ctx, &types.User{ID: "u-1", Name: "Ada", Role: types.RoleAdmin, IsActive: true}))
			require.NoError(t, store.Users.Upsert(ctx, &types.User{ID: "u-2", Name: "Bo", Role: types.RoleQualityManager, IsActive: true}))
			require.NoError(t, store.Users.Upsert(ctx, &types.User{ID: "u-3", Name: "Cy", Role: types.RoleQualityManager, IsActive: false}))
			// upsert updates in place
			require.NoError(t, store.Users.Upsert(ctx, &types.User{ID: "u-1", Name: "Ada L", Role: types.RoleAdmin, IsActive: true}))

			u, err := store.Users.Get(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, "Ada L", u.Name)

			_, err = store.Users.Get(ctx, "missing")
			assert.ErrorIs(t, err, types.ErrNotFound)

			users, err := store.Users.ListActiveByRoles(ctx, []string{types.RoleQualityManager})
			require.NoError(t, err)
			require.Len(t, users, 1)
			assert.Equal(t, "u-2", users[0].ID)

			users, err = store.Users.ListActiveByRoles(ctx, nil)
			require.NoError(t, err)
			assert.Empty(t, users)

			entry := &types.AuditEntry{
				ID: "au-1", Action: types.AuditEmergencyBypass, EntityType: "change_event", EntityID: "ce-1",
				ActorID: "u-1", Reason: "line down", Details: map[string]any{"bypassed": float64(2)}, CreatedAt: now,
			}
			require.NoError(t, store.Audit.Append(ctx, entry))

			entries, err := store.Audit.ListByEntity(ctx, "change_event", "ce-1")
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "line down", entries[0].Reason)
			assert.Equal(t, float64(2), entries[0].Details["bypassed"])
		})
	}
}

package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qmsgov/internal/api/middleware"
	"qmsgov/internal/broker"
	"qmsgov/internal/config"
	"qmsgov/internal/governance/propagation"
	"qmsgov/internal/notify"
	"qmsgov/internal/repository"
	"qmsgov/internal/service"
	"qmsgov/internal/types"
)

type testAPI struct {
	engine *gin.Engine
	svc    *service.Service
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	logger := zaptest.NewLogger(t)

	svc, err := service.NewService(cfg, service.Dependencies{
		Store:     repository.NewMemoryStore(),
		Publisher: broker.NewMemory(),
		Sink:      notify.NewRecorder(),
		Executor: propagation.ExecutorFunc(func(context.Context, *propagation.Command) error {
			return nil
		}),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Stop() })

	ctx := context.Background()
	for _, u := range []*types.User{
		{ID: "admin", Name: "Alex", Role: "ADMIN", IsActive: true},
		{ID: "author", Name: "Ada", Role: "ENGINEER", IsActive: true},
		{ID: "qe", Name: "Quinn", Role: "QE", IsActive: true},
	} {
		require.NoError(t, svc.UpsertUser(ctx, u))
	}

	m := middleware.New(cfg, logger)
	engine := gin.New()
	engine.Use(m.RequestID(), m.Actor())
	NewAPI(svc, cfg, logger).RegisterRoutes(engine.Group("/api/v1"))

	return &testAPI{engine: engine, svc: svc}
}

type envelope struct {
	Code  int             `json:"code"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (ta *testAPI) do(t *testing.T, method, path, actor string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	w := httptest.NewRecorder()
	ta.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func severityChange() map[string]any {
	return map[string]any{
		"project_id":  "p1",
		"entity_type": "FAILURE_MODE",
		"entity_id":   "fm-9",
		"change_type": "UPDATE",
		"old_value":   map[string]any{"severityRating": 5},
		"new_value":   map[string]any{"severityRating": 9},
	}
}

func reviewWorkflow() map[string]any {
	return map[string]any{
		"project_id":         "p1",
		"name":               "Critical change review",
		"trigger_conditions": map[string]any{"impactLevel": []string{"HIGH", "CRITICAL"}},
		"steps": []map[string]any{
			{"step_number": 1, "name": "Quality review", "approver_role": "QE"},
			{"step_number": 2, "name": "Admin sign-off", "approver_id": "admin"},
		},
		"is_active": true,
	}
}

// trackReviewed creates the review workflow and tracks a critical change
func (ta *testAPI) trackReviewed(t *testing.T) (*types.ChangeEvent, *types.WorkflowExecution) {
	t.Helper()

	code, _ := ta.do(t, http.MethodPost, "/api/v1/workflows", "admin", reviewWorkflow())
	require.Equal(t, http.StatusCreated, code)

	code, env := ta.do(t, http.MethodPost, "/api/v1/changes", "author", severityChange())
	require.Equal(t, http.StatusCreated, code, env.Error)

	var tracked trackResponse
	require.NoError(t, json.Unmarshal(env.Data, &tracked))
	require.NotNil(t, tracked.Execution)
	return tracked.ChangeEvent, tracked.Execution
}

func TestTrackChange(t *testing.T) {
	ta := newTestAPI(t)

	ev, exec := ta.trackReviewed(t)
	assert.Equal(t, "author", ev.ActorID)
	assert.Equal(t, types.ImpactCritical, ev.ImpactLevel)
	assert.Equal(t, types.ChangeApprovalPending, ev.ApprovalStatus)
	assert.Len(t, exec.Approvals, 2)

	code, env := ta.do(t, http.MethodGet, "/api/v1/changes/"+ev.ID, "", nil)
	require.Equal(t, http.StatusOK, code)
	var stored types.ChangeEvent
	require.NoError(t, json.Unmarshal(env.Data, &stored))
	assert.Equal(t, []string{"severityRating"}, stored.ChangedFields)

	code, env = ta.do(t, http.MethodGet, "/api/v1/changes?project_id=p1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var listed []*types.ChangeEvent
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	assert.Len(t, listed, 1)

	code, _ = ta.do(t, http.MethodGet, "/api/v1/changes", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestTrackChangeErrors(t *testing.T) {
	ta := newTestAPI(t)

	code, _ := ta.do(t, http.MethodPost, "/api/v1/changes", "author", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	invalid := severityChange()
	delete(invalid, "project_id")
	code, _ = ta.do(t, http.MethodPost, "/api/v1/changes", "author", invalid)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	code, _ = ta.do(t, http.MethodGet, "/api/v1/changes/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestApprovalDecisions(t *testing.T) {
	ta := newTestAPI(t)
	ev, exec := ta.trackReviewed(t)
	first := exec.Approvals[0].ID

	tests := []struct {
		name  string
		actor string
		id    string
		body  any
		code  int
	}{
		{name: "no actor", id: first, body: map[string]any{"decision": "APPROVED"}, code: http.StatusUnauthorized},
		{name: "missing decision", actor: "qe", id: first, body: map[string]any{}, code: http.StatusBadRequest},
		{name: "unknown decision", actor: "qe", id: first, body: map[string]any{"decision": "MAYBE"}, code: http.StatusUnprocessableEntity},
		{name: "wrong approver", actor: "author", id: first, body: map[string]any{"decision": "APPROVED"}, code: http.StatusForbidden},
		{name: "unknown approval", actor: "qe", id: "missing", body: map[string]any{"decision": "APPROVED"}, code: http.StatusNotFound},
		{name: "approve", actor: "qe", id: first, body: map[string]any{"decision": "APPROVED", "comments": "ok"}, code: http.StatusOK},
		{name: "already decided", actor: "qe", id: first, body: map[string]any{"decision": "APPROVED"}, code: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := ta.do(t, http.MethodPost, "/api/v1/approvals/"+tt.id+"/decision", tt.actor, tt.body)
			assert.Equal(t, tt.code, code, env.Error)
		})
	}

	code, env := ta.do(t, http.MethodGet, "/api/v1/approvals/pending", "admin", nil)
	require.Equal(t, http.StatusOK, code)
	var pending []*types.Approval
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].StepNumber)

	code, env = ta.do(t, http.MethodGet, "/api/v1/changes/"+ev.ID+"/approvals", "", nil)
	require.Equal(t, http.StatusOK, code)
	var approvals []*types.Approval
	require.NoError(t, json.Unmarshal(env.Data, &approvals))
	assert.Len(t, approvals, 2)
}

func TestBypass(t *testing.T) {
	ta := newTestAPI(t)
	ev, _ := ta.trackReviewed(t)
	path := "/api/v1/changes/" + ev.ID + "/bypass"

	code, _ := ta.do(t, http.MethodPost, path, "admin", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ta.do(t, http.MethodPost, path, "qe", map[string]any{"reason": "line down"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := ta.do(t, http.MethodPost, path, "admin", map[string]any{"reason": "line down"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var exec types.WorkflowExecution
	require.NoError(t, json.Unmarshal(env.Data, &exec))
	assert.Equal(t, types.ChangeApprovalApproved, exec.Status)

	code, _ = ta.do(t, http.MethodPost, path, "admin", map[string]any{"reason": "again"})
	assert.Equal(t, http.StatusConflict, code)

	code, env = ta.do(t, http.MethodGet, "/api/v1/changes/"+ev.ID+"/audit", "", nil)
	require.Equal(t, http.StatusOK, code)
	var entries []*types.AuditEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, types.AuditEmergencyBypass)
}

func TestAdminRoutes(t *testing.T) {
	ta := newTestAPI(t)

	code, _ := ta.do(t, http.MethodPost, "/api/v1/rules", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = ta.do(t, http.MethodPost, "/api/v1/rules", "qe", map[string]any{})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ta.do(t, http.MethodPost, "/api/v1/rules", "nobody", map[string]any{})
	assert.Equal(t, http.StatusNotFound, code)

	rule := map[string]any{
		"project_id":         "p1",
		"name":               "Severity to controls",
		"source_entity_type": "FAILURE_MODE",
		"source_change_type": "UPDATE",
		"target_entity_type": "CONTROL_ITEM",
		"target_action":      "REVIEW_CONTROLS",
		"field_patterns":     []string{"("},
		"is_active":          true,
	}
	code, _ = ta.do(t, http.MethodPost, "/api/v1/rules", "admin", rule)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	rule["field_patterns"] = []string{"severity.*"}
	code, env := ta.do(t, http.MethodPost, "/api/v1/rules", "admin", rule)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.NotEmpty(t, created["id"])

	code, _ = ta.do(t, http.MethodPut, "/api/v1/users/qm", "admin", map[string]any{
		"name": "Morgan", "role": "QUALITY_MANAGER", "is_active": true,
	})
	assert.Equal(t, http.StatusOK, code)

	code, env = ta.do(t, http.MethodPost, "/api/v1/sweeps", "admin", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var swept map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &swept))
	assert.Zero(t, swept["escalated"])
}

func TestHealth(t *testing.T) {
	ta := newTestAPI(t)

	code, env := ta.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	var status types.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Healthy)
}

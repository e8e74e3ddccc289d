package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmsgov/internal/types"
)

func TestMatchTrigger(t *testing.T) {
	ev := &types.ChangeEvent{
		EntityType:  types.EntityFailureMode,
		ChangeType:  types.ChangeUpdate,
		ImpactLevel: types.ImpactCritical,
	}

	tests := []struct {
		name    string
		cond    types.Conditions
		want    bool
		wantErr bool
	}{
		{"empty matches everything", types.Conditions{}, true, false},
		{"nil matches everything", nil, true, false},
		{"single value", types.Conditions{"impactLevel": "CRITICAL"}, true, false},
		{"list value", types.Conditions{"impactLevel": []any{"HIGH", "CRITICAL"}}, true, false},
		{"string slice", types.Conditions{"entityType": []string{"FAILURE_MODE"}}, true, false},
		{"all keys must match", types.Conditions{"impactLevel": "CRITICAL", "changeType": "DELETE"}, false, false},
		{"all keys match", types.Conditions{"impactLevel": "CRITICAL", "changeType": "UPDATE", "entityType": "FAILURE_MODE"}, true, false},
		{"unknown key", types.Conditions{"severity": "9"}, false, true},
		{"non-string value", types.Conditions{"impactLevel": 3}, false, true},
		{"non-string list item", types.Conditions{"entityType": []any{"FMEA", 7}}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchTrigger(tt.cond, ev)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, types.ErrValidation)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutoApprove(t *testing.T) {
	ev := &types.ChangeEvent{EntityType: types.EntityControlItem, ImpactLevel: types.ImpactLow}

	tests := []struct {
		name    string
		cond    types.Conditions
		want    bool
		wantErr bool
	}{
		{"empty is never satisfied", types.Conditions{}, false, false},
		{"impact level matches", types.Conditions{"impactLevel": "LOW"}, true, false},
		{"impact level differs", types.Conditions{"impactLevel": "HIGH"}, false, false},
		{"entity type member", types.Conditions{"entityTypes": []any{"FMEA", "CONTROL_ITEM"}}, true, false},
		{"any criterion suffices", types.Conditions{"impactLevel": "HIGH", "entityTypes": []any{"CONTROL_ITEM"}}, true, false},
		{"impact list rejected", types.Conditions{"impactLevel": []any{"LOW", "MEDIUM"}}, false, true},
		{"unknown key", types.Conditions{"entityType": "CONTROL_ITEM"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AutoApprove(tt.cond, ev)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateConditions(t *testing.T) {
	def := &types.WorkflowDefinition{
		TriggerConditions:     types.Conditions{"impactLevel": "HIGH"},
		AutoApproveConditions: types.Conditions{"entityTypes": []any{"FMEA"}},
	}
	assert.NoError(t, ValidateConditions(def))

	def.AutoApproveConditions = types.Conditions{"approver": "me"}
	err := ValidateConditions(def)
	assert.ErrorIs(t, err, types.ErrValidation)
	assert.Contains(t, err.Error(), "auto_approve_conditions")
}

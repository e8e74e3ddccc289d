package impact

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"qmsgov/internal/types"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		entity   types.EntityType
		kind     types.ChangeKind
		changed  []string
		newValue types.Snapshot
		expected types.ImpactLevel
	}{
		{
			name:     "severity crosses threshold",
			entity:   types.EntityFailureMode,
			kind:     types.ChangeUpdate,
			changed:  []string{"severityRating"},
			newValue: types.Snapshot{"severityRating": 9},
			expected: types.ImpactCritical,
		},
		{
			name:     "severity at threshold",
			entity:   types.EntityFailureMode,
			kind:     types.ChangeUpdate,
			changed:  []string{"severityRating"},
			newValue: types.Snapshot{"severityRating": float64(8)},
			expected: types.ImpactCritical,
		},
		{
			name:     "severity below threshold is high impact",
			entity:   types.EntityFailureMode,
			kind:     types.ChangeUpdate,
			changed:  []string{"severityRating"},
			newValue: types.Snapshot{"severityRating": 7},
			expected: types.ImpactHigh,
		},
		{
			name:     "occurrence as json number",
			entity:   types.EntityFailureCause,
			kind:     types.ChangeUpdate,
			changed:  []string{"occurrenceRating"},
			newValue: types.Snapshot{"occurrenceRating": json.Number("7")},
			expected: types.ImpactCritical,
		},
		{
			name:     "detection crosses threshold on create",
			entity:   types.EntityFailureControl,
			kind:     types.ChangeCreate,
			changed:  []string{"control", "detectionRating"},
			newValue: types.Snapshot{"control": "vision", "detectionRating": 10},
			expected: types.ImpactCritical,
		},
		{
			name:     "critical field of another entity is ignored",
			entity:   types.EntityProcessFlow,
			kind:     types.ChangeUpdate,
			changed:  []string{"severityRating"},
			newValue: types.Snapshot{"severityRating": 10},
			expected: types.ImpactLow,
		},
		{
			name:     "high impact process step field",
			entity:   types.EntityProcessStep,
			kind:     types.ChangeUpdate,
			changed:  []string{"safetyRequirements"},
			newValue: types.Snapshot{"safetyRequirements": []any{"guard"}},
			expected: types.ImpactHigh,
		},
		{
			name:     "many low fields",
			entity:   types.EntityControlItem,
			kind:     types.ChangeUpdate,
			changed:  []string{"characteristic", "frequency", "sampleSize", "extra"},
			expected: types.ImpactMedium,
		},
		{
			name:     "exactly three low fields",
			entity:   types.EntityControlItem,
			kind:     types.ChangeUpdate,
			changed:  []string{"characteristic", "frequency", "sampleSize"},
			expected: types.ImpactLow,
		},
		{
			name:     "non numeric critical value",
			entity:   types.EntityFailureMode,
			kind:     types.ChangeUpdate,
			changed:  []string{"severityRating"},
			newValue: types.Snapshot{"severityRating": "high"},
			expected: types.ImpactHigh,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.entity, tc.kind, tc.changed, tc.newValue))
		})
	}
}

// TestClassifyDeleteAlwaysHigh tests that deletes are HIGH and never CRITICAL
func TestClassifyDeleteAlwaysHigh(t *testing.T) {
	fieldSets := [][]string{
		nil,
		{},
		{"severityRating"},
		{"occurrenceRating", "cause", "mechanism", "a", "b"},
		{"detectionRating"},
	}
	snapshots := []types.Snapshot{
		nil,
		{"severityRating": 10, "occurrenceRating": 10, "detectionRating": 10},
	}

	for _, entity := range types.EntityTypes {
		for _, fields := range fieldSets {
			for _, snap := range snapshots {
				assert.Equal(t, types.ImpactHigh, Classify(entity, types.ChangeDelete, fields, snap),
					"entity=%s fields=%v", entity, fields)
			}
		}
	}
}

func TestRequiresApproval(t *testing.T) {
	assert.True(t, RequiresApproval(types.EntityFMEA, types.ChangeUpdate, types.ImpactHigh))
	assert.True(t, RequiresApproval(types.EntityFMEA, types.ChangeUpdate, types.ImpactCritical))
	assert.True(t, RequiresApproval(types.EntityFMEA, types.ChangeDelete, types.ImpactLow))
	assert.True(t, RequiresApproval(types.EntityFailureMode, types.ChangeUpdate, types.ImpactLow))
	assert.True(t, RequiresApproval(types.EntityFailureControl, types.ChangeCreate, types.ImpactLow))
	assert.True(t, RequiresApproval(types.EntityControlItem, types.ChangeUpdate, types.ImpactMedium))
	assert.False(t, RequiresApproval(types.EntityFMEA, types.ChangeUpdate, types.ImpactMedium))
	assert.False(t, RequiresApproval(types.EntityProcessStep, types.ChangeCreate, types.ImpactLow))
}

func TestAffectedModules(t *testing.T) {
	assert.Equal(t, []string{"PROCESS_FLOW", "FMEA", "CONTROL_PLAN"}, AffectedModules(types.EntityProcessStep))
	assert.Equal(t, []string{}, AffectedModules("UNKNOWN"))

	mods := AffectedModules(types.EntityFMEA)
	mods[0] = "changed"
	assert.Equal(t, []string{"FMEA"}, AffectedModules(types.EntityFMEA))
}

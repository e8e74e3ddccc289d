package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmsgov/internal/types"
)

func TestChangedFields(t *testing.T) {
	testCases := []struct {
		name     string
		entity   types.EntityType
		oldValue types.Snapshot
		newValue types.Snapshot
		expected []string
	}{
		{
			name:     "creation reports every new field",
			entity:   types.EntityFailureMode,
			newValue: types.Snapshot{"severityRating": 9, "failureMode": "crack"},
			expected: []string{"failureMode", "severityRating"},
		},
		{
			name:     "deletion reports every prior field",
			entity:   types.EntityControlItem,
			oldValue: types.Snapshot{"reactionPlan": "stop line", "frequency": "hourly", "sampleSize": 5},
			expected: []string{"frequency", "reactionPlan", "sampleSize"},
		},
		{
			name:     "nothing to compare",
			entity:   types.EntityFMEA,
			expected: []string{},
		},
		{
			name:     "scalar update",
			entity:   types.EntityFailureMode,
			oldValue: types.Snapshot{"severityRating": 5, "failureMode": "crack"},
			newValue: types.Snapshot{"severityRating": 9, "failureMode": "crack"},
			expected: []string{"severityRating"},
		},
		{
			name:     "int and float encodings are equal",
			entity:   types.EntityFailureCause,
			oldValue: types.Snapshot{"occurrenceRating": 4},
			newValue: types.Snapshot{"occurrenceRating": float64(4)},
			expected: []string{},
		},
		{
			name:     "added and removed fields",
			entity:   types.EntityProcessFlow,
			oldValue: types.Snapshot{"name": "Assembly", "description": "old"},
			newValue: types.Snapshot{"name": "Assembly", "status": "ACTIVE"},
			expected: []string{"description", "status"},
		},
		{
			name:     "nested objects compare structurally",
			entity:   types.EntityControlItem,
			oldValue: types.Snapshot{"specification": map[string]any{"min": 1, "max": 2}},
			newValue: types.Snapshot{"specification": map[string]any{"max": 2, "min": 1}},
			expected: []string{},
		},
		{
			name:     "unordered collection reordered",
			entity:   types.EntityProcessStep,
			oldValue: types.Snapshot{"qualityRequirements": []any{"torque", "leak test"}},
			newValue: types.Snapshot{"qualityRequirements": []string{"leak test", "torque"}},
			expected: []string{},
		},
		{
			name:     "ordered collection reordered",
			entity:   types.EntityProcessStep,
			oldValue: types.Snapshot{"name": []any{"a", "b"}},
			newValue: types.Snapshot{"name": []any{"b", "a"}},
			expected: []string{"name"},
		},
		{
			name:     "unordered collection with duplicate changed",
			entity:   types.EntityFailureMode,
			oldValue: types.Snapshot{"effects": []any{"noise", "noise", "leak"}},
			newValue: types.Snapshot{"effects": []any{"noise", "leak", "leak"}},
			expected: []string{"effects"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fields, err := ChangedFields(tc.entity, tc.oldValue, tc.newValue)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, fields)
		})
	}
}

func TestChangedFieldsIdempotent(t *testing.T) {
	oldValue := types.Snapshot{"stepType": "MANUAL", "safetyRequirements": []any{"gloves"}, "cycleTime": 30}
	newValue := types.Snapshot{"stepType": "AUTOMATED", "safetyRequirements": []any{"gloves", "guard"}, "cycleTime": 30}

	first, err := ChangedFields(types.EntityProcessStep, oldValue, newValue)
	require.NoError(t, err)
	second, err := ChangedFields(types.EntityProcessStep, oldValue, newValue)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"safetyRequirements", "stepType"}, first)
}

func TestChangedFieldsUnencodable(t *testing.T) {
	_, err := ChangedFields(types.EntityFMEA,
		types.Snapshot{"title": make(chan int)},
		types.Snapshot{"title": "x"},
	)
	assert.Error(t, err)
}

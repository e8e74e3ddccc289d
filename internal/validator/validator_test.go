package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qmsgov/internal/types"
)

func TestStruct(t *testing.T) {
	v := New()

	t.Run("valid mutation", func(t *testing.T) {
		err := v.Struct(&types.Mutation{
			ProjectID:  "p1",
			EntityType: types.EntityFailureMode,
			EntityID:   "fm-1",
			ChangeType: types.ChangeUpdate,
			ActorID:    "u1",
		})
		assert.NoError(t, err)
	})

	t.Run("unknown entity type and kind", func(t *testing.T) {
		err := v.Struct(&types.Mutation{
			ProjectID:  "p1",
			EntityType: "WIDGET",
			EntityID:   "w-1",
			ChangeType: "MERGE",
			ActorID:    "u1",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Contains(t, err.Error(), `entity_type must be a tracked entity type, got "WIDGET"`)
		assert.Contains(t, err.Error(), "change_type must be CREATE, UPDATE or DELETE")
	})

	t.Run("decision", func(t *testing.T) {
		ok := types.Decision{ApprovalID: "a1", Status: types.ApprovalRejected, ActorID: "u1"}
		assert.NoError(t, v.Struct(&ok))

		pending := types.Decision{ApprovalID: "a1", Status: types.ApprovalPending, ActorID: "u1"}
		err := v.Struct(&pending)
		assert.ErrorIs(t, err, types.ErrValidation)
		assert.Contains(t, err.Error(), "decision must be")

		missing := types.Decision{Status: types.ApprovalApproved}
		err = v.Struct(&missing)
		assert.Contains(t, err.Error(), "approval_id is required")
		assert.Contains(t, err.Error(), "actor_id is required")
	})

	t.Run("workflow steps dive", func(t *testing.T) {
		def := types.WorkflowDefinition{
			ProjectID: "p1",
			Name:      "Review",
			Steps:     []types.WorkflowStep{{StepNumber: 0, Name: ""}},
		}
		err := v.Struct(&def)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "steps[0].step_number must be at least 1")
		assert.Contains(t, err.Error(), "steps[0].name is required")
	})
}

func TestVar(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("FAILURE_CAUSE", "entity_type"))
	assert.Error(t, v.Var("FAILURE", "entity_type"))
	assert.NoError(t, v.Var("", "impact_level"))
	assert.Error(t, v.Var("SEVERE", "impact_level"))
}

package workflow

import (
	"fmt"
	"sort"

	"qmsgov/internal/types"
)

// Complete reports whether the approvals satisfy def.
//
// A REJECTED approval on any step makes the workflow incomplete. A parallel
// workflow is complete once every required step has an APPROVED approval.
// A sequential workflow takes the highest approved step H: it is complete
// when H is the last step and every required step up to H is approved.
func Complete(def *types.WorkflowDefinition, approvals []*types.Approval) bool {
	approved := make(map[int]bool)
	highest := 0
	for _, a := range approvals {
		switch a.Status {
		case types.ApprovalRejected:
			return false
		case types.ApprovalApproved:
			approved[a.StepNumber] = true
			highest = max(highest, a.StepNumber)
		}
	}

	if def.IsParallel {
		for _, s := range def.Steps {
			if !s.IsOptional && !approved[s.StepNumber] {
				return false
			}
		}
		return true
	}

	if highest == 0 || highest != def.LastStep() {
		return false
	}
	for _, s := range def.Steps {
		if s.StepNumber <= highest && !s.IsOptional && !approved[s.StepNumber] {
			return false
		}
	}
	return true
}

// CurrentStep returns the lowest required step still awaiting a
// decision, or 0 when none is.
func CurrentStep(def *types.WorkflowDefinition, approvals []*types.Approval) int {
	current := 0
	for _, a := range approvals {
		if a.Status != types.ApprovalPending && a.Status != types.ApprovalEscalated {
			continue
		}
		if s, ok := def.Step(a.StepNumber); ok && s.IsOptional {
			continue
		}
		if current == 0 || a.StepNumber < current {
			current = a.StepNumber
		}
	}
	return current
}

// ValidateSteps checks that step numbers are unique and contiguous from 1
func ValidateSteps(steps []types.WorkflowStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: workflow needs at least one step", types.ErrValidation)
	}
	numbers := make([]int, 0, len(steps))
	for _, s := range steps {
		if s.ApproverRole == "" && s.ApproverID == "" {
			return fmt.Errorf("%w: step %d has neither approver_role nor approver_id", types.ErrValidation, s.StepNumber)
		}
		numbers = append(numbers, s.StepNumber)
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			return fmt.Errorf("%w: step numbers must be unique and contiguous from 1, got %v", types.ErrValidation, numbers)
		}
	}
	return nil
}

// stage returns the steps notified together with step n: n itself plus
// any directly following steps flagged parallel
func stage(def *types.WorkflowDefinition, n int) []int {
	out := []int{n}
	for next := n + 1; ; next++ {
		s, ok := def.Step(next)
		if !ok || !s.IsParallel {
			return out
		}
		out = append(out, next)
	}
}

// nextStage returns the steps of a sequential workflow to notify after
// step decided was approved. It is the stage of the lowest still pending
// step when that step lies beyond decided and was not already notified
// as part of an earlier stage.
func nextStage(def *types.WorkflowDefinition, approvals []*types.Approval, decided int) []int {
	lowest := 0
	for _, a := range approvals {
		if a.Status == types.ApprovalPending && (lowest == 0 || a.StepNumber < lowest) {
			lowest = a.StepNumber
		}
	}
	if lowest <= decided {
		return nil
	}
	if s, ok := def.Step(lowest); ok && s.IsParallel && lowest > 1 {
		return nil
	}
	return stage(def, lowest)
}

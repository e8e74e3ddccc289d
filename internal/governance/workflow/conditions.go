package workflow

import (
	"fmt"
	"slices"
	"sort"

	"qmsgov/internal/types"
)

// Trigger condition keys
const (
	keyImpactLevel = "impactLevel"
	keyEntityType  = "entityType"
	keyChangeType  = "changeType"
	keyEntityTypes = "entityTypes"
)

// MatchTrigger reports whether ev satisfies a definition's trigger
// conditions. Every present key must match; an empty object matches
// everything. A malformed object returns an error wrapping
// types.ErrValidation and never matches.
func MatchTrigger(cond types.Conditions, ev *types.ChangeEvent) (bool, error) {
	for _, key := range sortedKeys(cond) {
		values, err := stringList(cond, key)
		if err != nil {
			return false, err
		}

		var actual string
		switch key {
		case keyImpactLevel:
			actual = string(ev.ImpactLevel)
		case keyEntityType:
			actual = string(ev.EntityType)
		case keyChangeType:
			actual = string(ev.ChangeType)
		default:
			return false, fmt.Errorf("%w: unknown trigger condition %q", types.ErrValidation, key)
		}

		if !slices.Contains(values, actual) {
			return false, nil
		}
	}
	return true, nil
}

// AutoApprove reports whether ev satisfies a definition's auto-approve
// conditions: impactLevel equal to the change's level, or the change's
// entity type listed in entityTypes. Any present criterion suffices; an
// empty object is never satisfied.
func AutoApprove(cond types.Conditions, ev *types.ChangeEvent) (bool, error) {
	matched := false
	for _, key := range sortedKeys(cond) {
		values, err := stringList(cond, key)
		if err != nil {
			return false, err
		}

		switch key {
		case keyImpactLevel:
			if len(values) != 1 {
				return false, fmt.Errorf("%w: auto-approve impactLevel must be a single level", types.ErrValidation)
			}
			matched = matched || values[0] == string(ev.ImpactLevel)
		case keyEntityTypes:
			matched = matched || slices.Contains(values, string(ev.EntityType))
		default:
			return false, fmt.Errorf("%w: unknown auto-approve condition %q", types.ErrValidation, key)
		}
	}
	return matched, nil
}

// ValidateConditions checks both condition objects of a definition
func ValidateConditions(def *types.WorkflowDefinition) error {
	probe := &types.ChangeEvent{}
	if _, err := MatchTrigger(def.TriggerConditions, probe); err != nil {
		return fmt.Errorf("trigger_conditions: %w", err)
	}
	if _, err := AutoApprove(def.AutoApproveConditions, probe); err != nil {
		return fmt.Errorf("auto_approve_conditions: %w", err)
	}
	return nil
}

// stringList reads a condition value that is a string or a list of strings
func stringList(cond types.Conditions, key string) ([]string, error) {
	switch v := cond[key].(type) {
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: condition %q holds non-string %v", types.ErrValidation, key, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: condition %q must be a string or list of strings, got %T", types.ErrValidation, key, v)
	}
}

// Keys are visited in order so errors are deterministic
func sortedKeys(cond types.Conditions) []string {
	keys := make([]string, 0, len(cond))
	for k := range cond {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package detect computes the set of fields that differ between two
// snapshots of a tracked entity.
package detect

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"qmsgov/internal/types"
)

// ChangedFields returns the sorted names of fields that differ between
// oldValue and newValue. A nil oldValue is a creation and a nil newValue
// a deletion; in both cases every field of the present snapshot counts.
func ChangedFields(entityType types.EntityType, oldValue, newValue types.Snapshot) ([]string, error) {
	switch {
	case oldValue == nil && newValue == nil:
		return []string{}, nil
	case oldValue == nil:
		return newValue.Fields(), nil
	case newValue == nil:
		return oldValue.Fields(), nil
	}

	schema := types.SchemaFor(entityType)

	union := make(map[string]struct{}, len(oldValue)+len(newValue))
	for k := range oldValue {
		union[k] = struct{}{}
	}
	for k := range newValue {
		union[k] = struct{}{}
	}

	changed := make([]string, 0)
	for field := range union {
		ov, inOld := oldValue[field]
		nv, inNew := newValue[field]
		if inOld != inNew {
			changed = append(changed, field)
			continue
		}

		unordered := schema != nil && schema.IsUnordered(field)
		equal, err := Equal(ov, nv, unordered)
		if err != nil {
			return nil, fmt.Errorf("failed to compare field %s: %w", field, err)
		}
		if !equal {
			changed = append(changed, field)
		}
	}

	sort.Strings(changed)
	return changed, nil
}

// Equal compares two field values by their canonical JSON encoding.
// When unordered is set and both values are lists, element order is ignored.
func Equal(a, b any, unordered bool) (bool, error) {
	if unordered {
		al, aok := toList(a)
		bl, bok := toList(b)
		if aok && bok {
			return equalMultiset(al, bl)
		}
	}

	ae, err := canonical(a)
	if err != nil {
		return false, err
	}
	be, err := canonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ae, be), nil
}

func equalMultiset(a, b []any) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	ae, err := sortedEncodings(a)
	if err != nil {
		return false, err
	}
	be, err := sortedEncodings(b)
	if err != nil {
		return false, err
	}
	for i := range ae {
		if ae[i] != be[i] {
			return false, nil
		}
	}
	return true, nil
}

func sortedEncodings(list []any) ([]string, error) {
	out := make([]string, 0, len(list))
	for _, v := range list {
		enc, err := canonical(v)
		if err != nil {
			return nil, err
		}
		out = append(out, string(enc))
	}
	sort.Strings(out)
	return out, nil
}

// toList converts typed string and number slices to []any
func toList(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []int:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []float64:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	}
	return nil, false
}

// canonical encodes v as JSON. Map keys are emitted sorted by encoding/json.
func canonical(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return data, nil
}

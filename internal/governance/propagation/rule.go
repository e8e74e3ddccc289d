package propagation

import (
	"fmt"
	"regexp"
	"sort"

	"qmsgov/internal/types"
)

// CompiledRule is a propagation rule with its field patterns compiled
type CompiledRule struct {
	Rule     *types.PropagationRule
	patterns []*regexp.Regexp
}

// Compile validates and compiles the rule's field patterns
func Compile(rule *types.PropagationRule) (*CompiledRule, error) {
	c := &CompiledRule{
		Rule:     rule,
		patterns: make([]*regexp.Regexp, 0, len(rule.FieldPatterns)),
	}
	for _, p := range rule.FieldPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q field pattern %q: %v", types.ErrValidation, rule.Name, p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	return c, nil
}

// Matches reports whether the rule applies to the change event
func (c *CompiledRule) Matches(ev *types.ChangeEvent) bool {
	if !c.Rule.IsActive {
		return false
	}
	if c.Rule.SourceEntityType != ev.EntityType || c.Rule.SourceChangeType != ev.ChangeType {
		return false
	}
	if len(c.patterns) == 0 {
		return true
	}
	for _, field := range ev.ChangedFields {
		for _, re := range c.patterns {
			if re.MatchString(field) {
				return true
			}
		}
	}
	return false
}

// Match returns the rules matching ev, lowest priority first.
// Ties keep the input order.
func Match(rules []*CompiledRule, ev *types.ChangeEvent) []*CompiledRule {
	matched := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		if r.Matches(ev) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Rule.Priority < matched[j].Rule.Priority
	})
	return matched
}

// TargetModules returns the distinct modules of the matched rule targets
func TargetModules(rules []*CompiledRule) []string {
	modules := make([]string, 0, len(rules))
	seen := make(map[string]bool)
	for _, r := range rules {
		m := types.ModuleFor(r.Rule.TargetEntityType)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		modules = append(modules, m)
	}
	return modules
}

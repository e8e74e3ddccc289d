package service

import (
	"context"
	"fmt"
	"os"

	"qmsgov/internal/types"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Seed is the governance bootstrap data of a deployment: the users that
// approve, the workflows they approve in and the propagation rules.
type Seed struct {
	Users     []*types.User               `yaml:"users"`
	Workflows []*types.WorkflowDefinition `yaml:"workflows"`
	Rules     []*types.PropagationRule    `yaml:"rules"`
}

// SeedResult counts what ApplySeed stored
type SeedResult struct {
	Users     int `json:"users"`
	Workflows int `json:"workflows"`
	Rules     int `json:"rules"`
}

// LoadSeed reads a seed file
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// ApplySeed stores users first, so workflows may name approvers, then
// workflows and rules. It stops at the first invalid entry.
func (s *Service) ApplySeed(ctx context.Context, seed *Seed, actorID string) (*SeedResult, error) {
	var res SeedResult

	for _, u := range seed.Users {
		if err := s.UpsertUser(ctx, u); err != nil {
			return &res, fmt.Errorf("user %q: %w", u.ID, err)
		}
		res.Users++
	}

	for _, def := range seed.Workflows {
		if def.CreatedBy == "" {
			def.CreatedBy = actorID
		}
		if _, err := s.CreateWorkflow(ctx, def); err != nil {
			return &res, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
		res.Workflows++
	}

	for _, r := range seed.Rules {
		if _, err := s.CreatePropagationRule(ctx, r, actorID); err != nil {
			return &res, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		res.Rules++
	}

	s.logger.Info("Seed applied",
		zap.Int("users", res.Users),
		zap.Int("workflows", res.Workflows),
		zap.Int("rules", res.Rules))
	return &res, nil
}

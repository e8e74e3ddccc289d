package service

import (
	"context"
	"fmt"
	"time"

	"qmsgov/internal/types"
	"qmsgov/internal/version"

	"go.uber.org/zap"
)

// HealthChecker is implemented by components that can report their health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheck performs a health check of the storage, broker, notifier
// and sweeper
func (s *Service) HealthCheck(ctx context.Context) *types.HealthStatus {
	status := &types.HealthStatus{
		Healthy:   true,
		Timestamp: s.now(),
		Version:   version.GetInfo().Version,
		StartTime: s.startTime,
		Uptime:    s.now().Sub(s.startTime).Round(time.Second).String(),
	}

	if s.db != nil {
		s.check(ctx, status, "database", s.db.Ping)
	} else {
		status.Details = append(status.Details, types.ComponentStatus{
			Name:      "database",
			Status:    "healthy",
			Message:   "in-memory store",
			LastCheck: s.now(),
		})
	}

	s.check(ctx, status, "broker:"+s.publisher.Name(), s.publisher.Health)

	if s.notifier != nil {
		s.check(ctx, status, "notifier", s.notifier.Health)
	}
	if checker, ok := s.store.Audit.(HealthChecker); ok {
		s.check(ctx, status, "audit", checker.Health)
	}

	status.Details = append(status.Details, s.sweeperStatus())
	return status
}

func (s *Service) check(ctx context.Context, status *types.HealthStatus, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	component := types.ComponentStatus{
		Name:      name,
		Status:    "healthy",
		LastCheck: s.now(),
	}
	if err := fn(ctx); err != nil {
		status.Healthy = false
		component.Status = "unhealthy"
		component.Error = err.Error()
		s.logger.Warn("Unhealthy component",
			zap.String("component", name),
			zap.Error(err))
	}
	status.Details = append(status.Details, component)
}

// The sweeper never makes the service unhealthy; a failing sweep is
// reported with its error
func (s *Service) sweeperStatus() types.ComponentStatus {
	stats := s.sweeper.Stats()
	component := types.ComponentStatus{
		Name:      "sweeper",
		Status:    "healthy",
		LastCheck: s.now(),
	}

	switch {
	case !s.sweeper.Running():
		component.Status = "stopped"
	case stats.LastError != "":
		component.Status = "degraded"
		component.Error = stats.LastError
	}
	if !stats.LastRun.IsZero() {
		component.Message = fmt.Sprintf("last run %s, %d runs, %d escalated",
			stats.LastRun.UTC().Format(time.RFC3339), stats.Runs, stats.Escalated)
	}
	return component
}

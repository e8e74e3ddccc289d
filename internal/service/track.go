package service

import (
	"context"
	"fmt"
	"slices"

	"qmsgov/internal/broker"
	"qmsgov/internal/governance/detect"
	"qmsgov/internal/governance/impact"
	"qmsgov/internal/governance/propagation"
	"qmsgov/internal/notify"
	"qmsgov/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TrackChange records a mutation as a change event and starts its
// governance: propagation, approval workflow and publishing. Only
// validation and the change event write fail the call; every later
// stage is best-effort and reported in the outcome.
func (s *Service) TrackChange(ctx context.Context, m types.Mutation) (*types.TrackOutcome, error) {
	if err := s.validator.Struct(&m); err != nil {
		return nil, err
	}

	outcome := &types.TrackOutcome{}
	ev := &types.ChangeEvent{
		ID:                uuid.NewString(),
		ProjectID:         m.ProjectID,
		EntityType:        m.EntityType,
		EntityID:          m.EntityID,
		ChangeType:        m.ChangeType,
		OldValue:          m.OldValue,
		NewValue:          m.NewValue,
		ApprovalStatus:    types.ChangeApprovalNone,
		PropagationStatus: types.PropagationNone,
		TriggeredBy:       m.ActorID,
		BatchID:           m.BatchID,
		CreatedAt:         s.now().UTC(),
	}

	changed, err := detect.ChangedFields(m.EntityType, m.OldValue, m.NewValue)
	if err != nil {
		s.sideEffect(outcome, ev, types.StageDetect, err)
		changed = []string{}
	}
	ev.ChangedFields = changed

	ev.ImpactLevel = impact.Classify(ev.EntityType, ev.ChangeType, ev.ChangedFields, ev.NewValue)
	ev.ApprovalRequired = impact.RequiresApproval(ev.EntityType, ev.ChangeType, ev.ImpactLevel)
	ev.AffectedModules = impact.AffectedModules(ev.EntityType)

	matched, err := s.propagation.Match(ctx, ev)
	if err != nil {
		s.sideEffect(outcome, ev, types.StageImpact, err)
	}
	if len(matched) > 0 {
		ev.PropagationRequired = true
		ev.PropagationStatus = types.PropagationPending
		for _, module := range propagation.TargetModules(matched) {
			if !slices.Contains(ev.AffectedModules, module) {
				ev.AffectedModules = append(ev.AffectedModules, module)
			}
		}
	}

	if err := s.store.ChangeEvents.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("failed to record change event: %w", err)
	}
	outcome.ChangeEvent = ev
	s.metrics.ChangeTracked(string(ev.EntityType), string(ev.ImpactLevel))

	s.logger.Info("Change tracked",
		zap.String("change_event_id", ev.ID),
		zap.String("entity_type", string(ev.EntityType)),
		zap.String("entity_id", ev.EntityID),
		zap.String("change_type", string(ev.ChangeType)),
		zap.String("impact_level", string(ev.ImpactLevel)),
		zap.Bool("approval_required", ev.ApprovalRequired),
		zap.Bool("propagation_required", ev.PropagationRequired))

	// Queue propagation before the workflow starts so an immediate
	// approval's deferred run is ordered after it
	if ev.PropagationRequired {
		if err := s.pool.submit(propagationJob{changeEventID: ev.ID}); err != nil {
			s.sideEffect(outcome, ev, types.StagePropagation, err)
			s.recordPropagation(ctx, ev, types.PropagationFailed, []string{err.Error()})
		}
	}

	if ev.ApprovalRequired {
		exec, err := s.workflows.StartApprovalProcess(ctx, ev.ID)
		if err != nil {
			s.sideEffect(outcome, ev, types.StageWorkflow, err)
		} else {
			outcome.Execution = exec
			if current, err := s.store.ChangeEvents.Get(ctx, ev.ID); err == nil {
				outcome.ChangeEvent = current
			}
		}
	}

	if err := s.publishChange(ctx, outcome.ChangeEvent); err != nil {
		s.sideEffect(outcome, ev, types.StagePublish, err)
	}

	return outcome, nil
}

func (s *Service) publishChange(ctx context.Context, ev *types.ChangeEvent) error {
	msg, err := broker.NewJSONMessage(s.config.Governance.ChangeEventTopic, ev.ID, ev)
	if err != nil {
		return err
	}
	msg.Headers["entity-type"] = string(ev.EntityType)
	msg.Headers["impact-level"] = string(ev.ImpactLevel)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish change event: %w", err)
	}
	return nil
}

// propagate runs one propagation job against the stored change event
func (s *Service) propagate(ctx context.Context, job propagationJob) {
	ev, err := s.store.ChangeEvents.Get(ctx, job.changeEventID)
	if err != nil {
		s.logger.Error("Failed to load change event for propagation",
			zap.String("change_event_id", job.changeEventID),
			zap.Error(err))
		return
	}
	if job.deferred && ev.PropagationStatus != types.PropagationPending {
		return
	}

	matched, err := s.propagation.Match(ctx, ev)
	if err != nil {
		s.recordPropagation(ctx, ev, types.PropagationFailed, []string{err.Error()})
		s.notifyPropagationFailed(ctx, ev, []string{err.Error()})
		return
	}

	var out *propagation.Outcome
	if job.deferred {
		out = s.propagation.ExecuteDeferred(ctx, ev, matched)
	} else {
		out = s.propagation.Execute(ctx, ev, matched)
	}

	status, errs := out.Status, out.Errors
	if job.deferred {
		// Failures of the first run still count once the deferred rules finish
		errs = append(slices.Clone(ev.PropagationErrors), out.Errors...)
		if status == types.PropagationNone || status == types.PropagationCompleted {
			status = types.PropagationCompleted
			if len(errs) > 0 {
				status = types.PropagationFailed
			}
		}
	}

	s.recordPropagation(ctx, ev, status, errs)
	s.logger.Info("Propagation run finished",
		zap.String("change_event_id", ev.ID),
		zap.Bool("deferred", job.deferred),
		zap.String("status", string(status)),
		zap.Int("rules", len(out.Results)),
		zap.Int("failed", len(out.Errors)))

	if out.Failed() {
		s.notifyPropagationFailed(ctx, ev, out.Errors)
	}
}

func (s *Service) recordPropagation(ctx context.Context, ev *types.ChangeEvent, status types.PropagationStatus, errs []string) {
	s.metrics.PropagationRun(string(status))
	if err := s.store.ChangeEvents.UpdatePropagation(ctx, ev.ID, status, errs); err != nil {
		s.logger.Error("Failed to record propagation status",
			zap.String("change_event_id", ev.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

func (s *Service) notifyPropagationFailed(ctx context.Context, ev *types.ChangeEvent, errs []string) {
	req := notify.PropagationFailed(ev, errs, s.config.Governance.PropagationFailureRoles, s.now().UTC())
	err := s.sink.Send(ctx, req)
	s.metrics.Notification(string(req.Kind), err)
	if err != nil {
		s.metrics.SideEffectFailed(types.StageNotification)
		s.logger.Error("Failed to send propagation failure notification",
			zap.String("change_event_id", ev.ID),
			zap.String("stage", types.StageNotification),
			zap.Error(err))
	}
}

// onApproved queues the rules that waited for approval
func (s *Service) onApproved(ctx context.Context, ev *types.ChangeEvent) {
	if !ev.PropagationRequired {
		return
	}
	if err := s.pool.submit(propagationJob{changeEventID: ev.ID, deferred: true}); err != nil {
		s.metrics.SideEffectFailed(types.StagePropagation)
		s.logger.Error("Failed to queue deferred propagation",
			zap.String("change_event_id", ev.ID),
			zap.String("stage", types.StagePropagation),
			zap.Error(err))

		// The gated rules will not run; do not leave the change PENDING
		errs := append(slices.Clone(ev.PropagationErrors), err.Error())
		s.recordPropagation(ctx, ev, types.PropagationFailed, errs)
		s.notifyPropagationFailed(ctx, ev, errs)
	}
}

func (s *Service) sideEffect(outcome *types.TrackOutcome, ev *types.ChangeEvent, stage string, err error) {
	outcome.AddSideEffect(stage, err)
	s.metrics.SideEffectFailed(stage)
	s.logger.Warn("Change governance step failed",
		zap.String("change_event_id", ev.ID),
		zap.String("stage", stage),
		zap.Error(err))
}

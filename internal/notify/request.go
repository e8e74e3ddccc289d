package notify

import (
	"fmt"
	"strings"
	"time"

	"qmsgov/internal/types"
)

// Kind identifies the transition a notification reports
type Kind string

const (
	KindWorkflowStarted   Kind = "WORKFLOW_STARTED"
	KindApprovalRequired  Kind = "APPROVAL_REQUIRED"
	KindChangeApproved    Kind = "CHANGE_APPROVED"
	KindChangeRejected    Kind = "CHANGE_REJECTED"
	KindApprovalEscalated Kind = "APPROVAL_ESCALATED"
	KindPropagationFailed Kind = "PROPAGATION_FAILED"
	KindEmergencyBypass   Kind = "EMERGENCY_BYPASS"
)

// Template returns the template name for the kind
func (k Kind) Template() string {
	return strings.ToLower(string(k))
}

// Priority of a notification
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Recipients selects who receives a notification. A user matches when
// listed in UserIDs or holding one of Roles; Departments, when set,
// narrows the role matches.
type Recipients struct {
	Roles       []string `json:"roles,omitempty"`
	Departments []string `json:"departments,omitempty"`
	UserIDs     []string `json:"user_ids,omitempty"`
}

// Empty reports whether no selection criteria are set
func (r Recipients) Empty() bool {
	return len(r.Roles) == 0 && len(r.UserIDs) == 0
}

// Request is a notification emitted by the governance engine
type Request struct {
	ID             string         `json:"id,omitempty"`
	ChangeEventID  string         `json:"change_event_id"`
	Kind           Kind           `json:"kind"`
	Priority       Priority       `json:"priority"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Recipients     Recipients     `json:"recipients"`
	ActionRequired bool           `json:"action_required"`
	Deadline       *time.Time     `json:"deadline,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func baseRequest(ev *types.ChangeEvent, kind Kind, now time.Time) *Request {
	return &Request{
		ChangeEventID: ev.ID,
		Kind:          kind,
		Priority:      PriorityNormal,
		Data: map[string]any{
			"project_id":   ev.ProjectID,
			"entity_type":  string(ev.EntityType),
			"entity_id":    ev.EntityID,
			"change_type":  string(ev.ChangeType),
			"impact_level": string(ev.ImpactLevel),
		},
		CreatedAt: now.UTC(),
	}
}

func describe(ev *types.ChangeEvent) string {
	return fmt.Sprintf("%s %s %s", ev.ChangeType, ev.EntityType, ev.EntityID)
}

// WorkflowStarted tells the initiator that their change awaits approval
func WorkflowStarted(ev *types.ChangeEvent, def *types.WorkflowDefinition, now time.Time) *Request {
	req := baseRequest(ev, KindWorkflowStarted, now)
	req.Title = fmt.Sprintf("Approval workflow %q started", def.Name)
	req.Message = fmt.Sprintf("Change %s (%s impact) requires %d approval step(s).",
		describe(ev), ev.ImpactLevel, len(def.Steps))
	req.Recipients = Recipients{UserIDs: []string{ev.TriggeredBy}}
	req.Data["workflow_id"] = def.ID
	req.Data["is_parallel"] = def.IsParallel
	return req
}

// ApprovalRequired asks a step's approvers for a decision
func ApprovalRequired(ev *types.ChangeEvent, a *types.Approval, now time.Time) *Request {
	req := baseRequest(ev, KindApprovalRequired, now)
	req.Title = fmt.Sprintf("Approval required: %s", a.StepName)
	req.Message = fmt.Sprintf("Step %d (%s) of change %s needs your decision by %s.",
		a.StepNumber, a.StepName, describe(ev), a.DueDate.UTC().Format(time.RFC3339))
	if ev.ImpactLevel == types.ImpactCritical {
		req.Priority = PriorityHigh
	}
	if a.ApproverID != "" {
		req.Recipients = Recipients{UserIDs: []string{a.ApproverID}}
	} else {
		req.Recipients = Recipients{Roles: []string{a.ApproverRole}}
	}
	req.ActionRequired = true
	due := a.DueDate.UTC()
	req.Deadline = &due
	req.Data["approval_id"] = a.ID
	req.Data["step_number"] = a.StepNumber
	return req
}

// ChangeApproved tells the initiator that the change was approved
func ChangeApproved(ev *types.ChangeEvent, now time.Time) *Request {
	req := baseRequest(ev, KindChangeApproved, now)
	req.Title = "Change approved"
	req.Message = fmt.Sprintf("Change %s was approved.", describe(ev))
	req.Recipients = Recipients{UserIDs: []string{ev.TriggeredBy}}
	return req
}

// ChangeRejected tells the initiator that a step rejected the change
func ChangeRejected(ev *types.ChangeEvent, a *types.Approval, now time.Time) *Request {
	req := baseRequest(ev, KindChangeRejected, now)
	req.Priority = PriorityHigh
	req.Title = "Change rejected"
	req.Message = fmt.Sprintf("Change %s was rejected at step %d (%s).", describe(ev), a.StepNumber, a.StepName)
	if a.Comments != "" {
		req.Message += " Comments: " + a.Comments
	}
	req.Recipients = Recipients{UserIDs: []string{ev.TriggeredBy}}
	req.Data["approval_id"] = a.ID
	req.Data["decided_by"] = a.DecidedBy
	return req
}

// ApprovalEscalated alerts the escalation roles about an overdue approval
func ApprovalEscalated(ev *types.ChangeEvent, a *types.Approval, roles []string, now time.Time) *Request {
	req := baseRequest(ev, KindApprovalEscalated, now)
	req.Priority = PriorityUrgent
	req.Title = fmt.Sprintf("Overdue approval escalated: %s", a.StepName)
	req.Message = fmt.Sprintf("Step %d (%s) of change %s was due %s and has been escalated.",
		a.StepNumber, a.StepName, describe(ev), a.DueDate.UTC().Format(time.RFC3339))
	req.Recipients = Recipients{Roles: roles}
	req.ActionRequired = true
	req.Data["approval_id"] = a.ID
	req.Data["step_number"] = a.StepNumber
	return req
}

// PropagationFailed alerts administrators that a change only partly propagated
func PropagationFailed(ev *types.ChangeEvent, errs []string, roles []string, now time.Time) *Request {
	req := baseRequest(ev, KindPropagationFailed, now)
	req.Priority = PriorityHigh
	req.Title = "Change propagation failed"
	req.Message = fmt.Sprintf("%d propagation rule(s) failed for change %s: %s",
		len(errs), describe(ev), strings.Join(errs, "; "))
	req.Recipients = Recipients{Roles: roles}
	req.ActionRequired = true
	req.Data["errors"] = errs
	return req
}

// EmergencyBypass reports a bypass to the initiator and oversight roles
func EmergencyBypass(ev *types.ChangeEvent, actorID, reason string, roles []string, now time.Time) *Request {
	req := baseRequest(ev, KindEmergencyBypass, now)
	req.Priority = PriorityHigh
	req.Title = "Approval workflow bypassed"
	req.Message = fmt.Sprintf("Change %s was approved by emergency bypass: %s", describe(ev), reason)
	req.Recipients = Recipients{Roles: roles, UserIDs: []string{ev.TriggeredBy}}
	req.Data["actor_id"] = actorID
	req.Data["reason"] = reason
	return req
}

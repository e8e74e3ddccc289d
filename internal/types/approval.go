package types

import "time"

// ApprovalStatus represents the state of one step approval
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalEscalated ApprovalStatus = "ESCALATED"
	ApprovalBypassed  ApprovalStatus = "BYPASSED"
)

// Valid reports whether the status is known
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected, ApprovalEscalated, ApprovalBypassed:
		return true
	}
	return false
}

// Approval is the runtime record of one step's decision for one change event
type Approval struct {
	ID            string         `json:"id"`
	ChangeEventID string         `json:"change_event_id"`
	WorkflowID    string         `json:"workflow_id"`
	StepNumber    int            `json:"step_number"`
	StepName      string         `json:"step_name"`
	ApproverRole  string         `json:"approver_role,omitempty"`
	ApproverID    string         `json:"approver_id,omitempty"`
	Status        ApprovalStatus `json:"status"`
	DueDate       time.Time      `json:"due_date"`
	EscalatedAt   *time.Time     `json:"escalated_at,omitempty"`
	DecidedBy     string         `json:"decided_by,omitempty"`
	DecidedAt     *time.Time     `json:"decided_at,omitempty"`
	Comments      string         `json:"comments,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Overdue reports whether a pending approval is past its due date
func (a *Approval) Overdue(now time.Time) bool {
	return a.Status == ApprovalPending && a.DueDate.Before(now)
}

// ApprovalUpdate carries the fields written by a status transition
type ApprovalUpdate struct {
	Status      ApprovalStatus
	DecidedBy   string
	DecidedAt   *time.Time
	Comments    string
	EscalatedAt *time.Time
}

// Decision is an approver's verdict on one approval
type Decision struct {
	ApprovalID string         `json:"approval_id" validate:"required"`
	Status     ApprovalStatus `json:"decision" validate:"required,decision"`
	Comments   string         `json:"comments,omitempty"`
	ActorID    string         `json:"actor_id" validate:"required"`
}

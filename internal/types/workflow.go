package types

import "time"

// Conditions is a condition object as stored on a workflow definition.
// Keys and value shapes are interpreted by the workflow engine.
type Conditions map[string]any

// WorkflowStep represents one ordered unit of required approval
type WorkflowStep struct {
	StepNumber      int      `json:"step_number" yaml:"step_number" validate:"min=1"`
	Name            string   `json:"name" yaml:"name" validate:"required"`
	ApproverRole    string   `json:"approver_role,omitempty" yaml:"approver_role"`
	ApproverID      string   `json:"approver_id,omitempty" yaml:"approver_id"`
	TimeoutHours    int      `json:"timeout_hours,omitempty" yaml:"timeout_hours" validate:"min=0"`
	EscalationRoles []string `json:"escalation_roles,omitempty" yaml:"escalation_roles"`
	IsParallel      bool     `json:"is_parallel" yaml:"is_parallel"`
	IsOptional      bool     `json:"is_optional" yaml:"is_optional"`
}

// WorkflowDefinition represents a per-project approval workflow
type WorkflowDefinition struct {
	ID                    string         `json:"id" yaml:"id"`
	ProjectID             string         `json:"project_id" yaml:"project_id" validate:"required"`
	Name                  string         `json:"name" yaml:"name" validate:"required"`
	Description           string         `json:"description,omitempty" yaml:"description"`
	TriggerConditions     Conditions     `json:"trigger_conditions" yaml:"trigger_conditions"`
	Steps                 []WorkflowStep `json:"steps" yaml:"steps" validate:"required,min=1,dive"`
	IsParallel            bool           `json:"is_parallel" yaml:"is_parallel"`
	AutoApproveConditions Conditions     `json:"auto_approve_conditions,omitempty" yaml:"auto_approve_conditions"`
	DefaultTimeoutHours   int            `json:"default_timeout_hours,omitempty" yaml:"default_timeout_hours" validate:"min=0"`
	EscalationRoles       []string       `json:"escalation_roles,omitempty" yaml:"escalation_roles"`
	EmergencyBypassRoles  []string       `json:"emergency_bypass_roles,omitempty" yaml:"emergency_bypass_roles"`
	IsActive              bool           `json:"is_active" yaml:"is_active"`
	CreatedBy             string         `json:"created_by,omitempty" yaml:"created_by"`
	CreatedAt             time.Time      `json:"created_at" yaml:"-"`
}

// Step returns the step with the given number
func (d *WorkflowDefinition) Step(number int) (WorkflowStep, bool) {
	for _, s := range d.Steps {
		if s.StepNumber == number {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

// LastStep returns the highest step number
func (d *WorkflowDefinition) LastStep() int {
	last := 0
	for _, s := range d.Steps {
		if s.StepNumber > last {
			last = s.StepNumber
		}
	}
	return last
}

// WorkflowExecution is the runtime view of a definition applied to a change event
type WorkflowExecution struct {
	ChangeEventID string               `json:"change_event_id"`
	Definition    *WorkflowDefinition  `json:"definition,omitempty"`
	Approvals     []*Approval          `json:"approvals"`
	Status        ChangeApprovalStatus `json:"status"`
	AutoApproved  bool                 `json:"auto_approved"`
	Complete      bool                 `json:"complete"`
	CurrentStep   int                  `json:"current_step,omitempty"`
}

package types

import (
	"fmt"
	"strings"
)

// Side effect stages of change tracking
const (
	StageDetect       = "detect"
	StageImpact       = "impact"
	StagePropagation  = "propagation"
	StageWorkflow     = "workflow"
	StageNotification = "notification"
	StagePublish      = "publish"
)

// SideEffectFailure records a best-effort step that failed after the
// change event was recorded
type SideEffectFailure struct {
	Stage string `json:"stage"`
	Err   error  `json:"-"`
}

func (f SideEffectFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

// Unwrap returns the underlying error
func (f SideEffectFailure) Unwrap() error {
	return f.Err
}

// TrackOutcome is the result of tracking a change.
// ChangeEvent is always set when the primary write succeeded.
type TrackOutcome struct {
	ChangeEvent *ChangeEvent        `json:"change_event"`
	Execution   *WorkflowExecution  `json:"execution,omitempty"`
	SideEffects []SideEffectFailure `json:"-"`
}

// AddSideEffect records a failed best-effort stage
func (o *TrackOutcome) AddSideEffect(stage string, err error) {
	if err == nil {
		return
	}
	o.SideEffects = append(o.SideEffects, SideEffectFailure{Stage: stage, Err: err})
}

// Degraded reports whether any best-effort stage failed
func (o *TrackOutcome) Degraded() bool {
	return len(o.SideEffects) > 0
}

// SideEffectMessages returns the failures as strings
func (o *TrackOutcome) SideEffectMessages() []string {
	msgs := make([]string, 0, len(o.SideEffects))
	for _, f := range o.SideEffects {
		msgs = append(msgs, f.Error())
	}
	return msgs
}

// String implements fmt.Stringer
func (o *TrackOutcome) String() string {
	id := ""
	if o.ChangeEvent != nil {
		id = o.ChangeEvent.ID
	}
	if !o.Degraded() {
		return fmt.Sprintf("change %s recorded", id)
	}
	return fmt.Sprintf("change %s recorded with failures: %s", id, strings.Join(o.SideEffectMessages(), "; "))
}

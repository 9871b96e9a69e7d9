// Package client consumes the agent event feed and derives the
// projections a form-building UI needs: the agent lifecycle state, the
// latest form snapshot, and task progress. State lives in one owned
// value behind a mailbox; callers never share mutable state with the
// consumer goroutine.
package client

import (
	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/form/model"
)

// State is the derived projection for one session. It is a value;
// Reduce returns a new State and never mutates its input.
type State struct {
	FormID         string
	CurrentForm    *model.Snapshot
	AgentState     event.AgentState
	IsComplete     bool
	TotalTasks     int
	CompletedTasks int
	SectionTasks   map[string]int
	LastError      *event.ErrorData
	LastSequence   int64
}

// NewState binds a fresh projection to a form id.
func NewState(formID string) State {
	return State{FormID: formID}
}

// Reduce applies one event to the projection. Snapshots replace form
// and agent state wholesale; a snapshot for a different form id is
// ignored so one session can never leak into another. Applying the
// same snapshot twice is a no-op by construction.
func Reduce(s State, ev *event.Event) State {
	if ev == nil {
		return s
	}
	s.LastSequence = ev.Sequence

	switch ev.Category {
	case event.CategoryState:
		if ev.Type != event.TypeStateSnapshot || ev.FormID != s.FormID {
			return s
		}
		snap, err := ev.Snapshot()
		if err != nil || snap == nil {
			return s
		}
		s.CurrentForm = snap.Form
		s.AgentState = snap.AgentState
		s.IsComplete = snap.IsComplete
		return s

	case event.CategoryProgress:
		if ev.Type != event.TypeTaskCompleted {
			return s
		}
		s.CompletedTasks++
		var task event.TaskData
		if err := ev.DecodeData(&task); err == nil && task.Section != "" {
			s.SectionTasks = copyCounts(s.SectionTasks)
			s.SectionTasks[task.Section]++
		}
		return s

	case event.CategoryError:
		var detail event.ErrorData
		if err := ev.DecodeData(&detail); err == nil {
			s.LastError = &detail
		}
		return s

	case event.CategorySystem:
		switch ev.Type {
		case event.TypeAgentInitialized:
			s.TotalTasks = 0
			s.CompletedTasks = 0
			s.SectionTasks = nil
			s.IsComplete = false
			return s
		case event.TypeAgentWarning:
			var warning event.WarningData
			if err := ev.DecodeData(&warning); err == nil && warning.PlannedTasks > 0 {
				s.TotalTasks = warning.PlannedTasks
			}
			return s
		}
		return s
	}
	return s
}

// Succeeded reports whether the session's last completed turn finished
// the work: the final snapshot must be complete with a COMPLETED agent
// status.
func (s State) Succeeded() bool {
	return s.IsComplete && s.AgentState.Status == event.StatusCompleted
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

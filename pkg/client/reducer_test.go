package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/form/model"
)

func snapshotEvent(formID, versionID, title string, status event.Status, complete bool) *event.Event {
	return event.New(event.CategoryState, event.TypeStateSnapshot, formID, "user-1", &event.StateSnapshotData{
		Form: &model.Snapshot{
			FormID:    formID,
			VersionID: versionID,
			Title:     title,
		},
		AgentState: event.AgentState{Status: status},
		IsComplete: complete,
	})
}

func TestReduceSnapshotReplacesWholesale(t *testing.T) {
	s := NewState("form-a")
	s = Reduce(s, snapshotEvent("form-a", "v1", "First", event.StatusRunning, false))
	require.NotNil(t, s.CurrentForm)
	require.Equal(t, "First", s.CurrentForm.Title)
	require.Equal(t, event.StatusRunning, s.AgentState.Status)

	s = Reduce(s, snapshotEvent("form-a", "v2", "Second", event.StatusCompleted, true))
	require.Equal(t, "Second", s.CurrentForm.Title)
	require.Equal(t, "v2", s.CurrentForm.VersionID)
	require.True(t, s.Succeeded())
}

func TestReduceSnapshotIdempotent(t *testing.T) {
	ev := snapshotEvent("form-a", "v1", "Survey", event.StatusCompleted, true)
	s := Reduce(NewState("form-a"), ev)
	again := Reduce(s, ev)
	require.Equal(t, s, again)
}

func TestReduceIgnoresForeignFormSnapshot(t *testing.T) {
	s := Reduce(NewState("form-a"), snapshotEvent("form-a", "v1", "Mine", event.StatusRunning, false))
	s = Reduce(s, snapshotEvent("form-b", "v9", "Someone else's", event.StatusCompleted, true))
	require.Equal(t, "Mine", s.CurrentForm.Title)
	require.Equal(t, event.StatusRunning, s.AgentState.Status)
	require.False(t, s.Succeeded())
}

func TestReduceTaskCounters(t *testing.T) {
	s := NewState("form-a")
	s = Reduce(s, event.New(event.CategorySystem, event.TypeAgentWarning, "form-a", "u", &event.WarningData{
		Message:      "planning",
		PlannedTasks: 3,
	}))
	require.Equal(t, 3, s.TotalTasks)

	for i := 0; i < 2; i++ {
		s = Reduce(s, event.New(event.CategoryProgress, event.TypeTaskCompleted, "form-a", "u", &event.TaskData{
			TaskID:  "question-1",
			Section: "Basics",
		}))
	}
	require.Equal(t, 2, s.CompletedTasks)
	require.Equal(t, 2, s.SectionTasks["Basics"])

	s = Reduce(s, event.New(event.CategorySystem, event.TypeAgentInitialized, "form-a", "u", &event.AgentState{
		Status: event.StatusInitializing,
	}))
	require.Zero(t, s.TotalTasks)
	require.Zero(t, s.CompletedTasks)
	require.Empty(t, s.SectionTasks)
}

func TestReduceErrorKeepsForm(t *testing.T) {
	s := Reduce(NewState("form-a"), snapshotEvent("form-a", "v1", "Kept", event.StatusRunning, false))
	s = Reduce(s, event.New(event.CategoryError, event.TypeToolError, "form-a", "u", &event.ErrorData{
		Code:    "TOOL_EXECUTION_ERROR",
		Message: "boom",
		Tool:    "createForm",
	}))
	require.NotNil(t, s.LastError)
	require.Equal(t, "boom", s.LastError.Message)
	require.Equal(t, "Kept", s.CurrentForm.Title)
}

func TestSessionConnectRules(t *testing.T) {
	sess := NewSession()
	require.Equal(t, PhaseIdle, sess.Phase())

	sess.Connect("form-a")
	require.Equal(t, PhaseConnectingNewForm, sess.Phase())
	sess.Apply(snapshotEvent("form-a", "v1", "Mine", event.StatusCompleted, true))
	require.Len(t, sess.Log(), 1)

	sess.Connect("form-a")
	require.Equal(t, PhaseConnectingSameForm, sess.Phase())
	require.Len(t, sess.Log(), 1)

	sess.Connect("form-b")
	require.Equal(t, PhaseConnectingNewForm, sess.Phase())
	require.Empty(t, sess.Log())
	require.Nil(t, sess.State().CurrentForm)
	require.Equal(t, "form-b", sess.State().FormID)
}

func TestMailboxOwnsStateAcrossGoroutines(t *testing.T) {
	sess := NewSession()
	sess.Connect("form-a")
	mb := NewMailbox(sess)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mb.Run(ctx)

	mb.Deliver(snapshotEvent("form-a", "v1", "Boxed", event.StatusCompleted, true))

	require.Eventually(t, func() bool {
		st := mb.State()
		return st.CurrentForm != nil && st.CurrentForm.Title == "Boxed"
	}, time.Second, 5*time.Millisecond)
}

func TestSessionStaleCacheGuard(t *testing.T) {
	sess := NewSession()
	sess.Connect("form-a")
	sess.Apply(snapshotEvent("form-a", "v1", "Cached", event.StatusCompleted, true))

	// Simulate a cached snapshot surviving a form switch elsewhere.
	st := sess.State()
	st.FormID = "form-b"
	sess.state = st

	sess.Connect("form-b")
	require.Equal(t, PhaseConnectingNewForm, sess.Phase())
	require.Nil(t, sess.State().CurrentForm)
}

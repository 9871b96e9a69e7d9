package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/formweaver/formweaver/internal/form/model"
)

func TestWireRoundTrip(t *testing.T) {
	ev := New(CategoryState, TypeStateSnapshot, "form-1", "user-1", &StateSnapshotData{
		Form:       &model.Snapshot{FormID: "form-1", VersionID: "v1", Title: "Survey"},
		AgentState: AgentState{Status: StatusCompleted, UserInput: "build it"},
		IsComplete: true,
	})
	ev.Sequence = 7

	raw, err := ev.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.Equal(t, CategoryState, decoded.Category)
	require.Equal(t, int64(7), decoded.Sequence)
	require.Equal(t, "form-1", decoded.FormID)

	// Data arrives as a generic map and decodes on demand.
	snap, err := decoded.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.True(t, snap.IsComplete)
	require.Equal(t, StatusCompleted, snap.AgentState.Status)
	require.Equal(t, "Survey", snap.Form.Title)
	require.Equal(t, "build it", snap.AgentState.UserInput)
}

func TestSnapshotIgnoresOtherTypes(t *testing.T) {
	ev := New(CategoryProgress, TypeTaskCompleted, "form-1", "user-1", &TaskData{TaskID: "question-1"})
	snap, err := ev.Snapshot()
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestNewAssignsIdentityButNotSequence(t *testing.T) {
	a := New(CategorySystem, TypeAgentInitialized, "form-1", "user-1", nil)
	b := New(CategorySystem, TypeAgentInitialized, "form-1", "user-1", nil)
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.Zero(t, a.Sequence)
	require.False(t, a.Timestamp.IsZero())
}

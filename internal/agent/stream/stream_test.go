package stream

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formweaver/formweaver/internal/agent/event"
)

func TestPublishAssignsStrictlyIncreasingSequence(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ev := event.New(event.CategoryProgress, event.TypeTaskCompleted, "f1", "u1", nil)
		require.NoError(t, s.Publish(ctx, ev))
	}
	s.Close()

	var last int64
	for ev := range s.Events() {
		assert.Greater(t, ev.Sequence, last)
		last = ev.Sequence
	}
	assert.Equal(t, int64(10), last)
}

func TestPublishAfterCloseFails(t *testing.T) {
	s := NewSession()
	s.Close()

	err := s.Publish(context.Background(), event.New(event.CategorySystem, event.TypeAgentInitialized, "f1", "u1", nil))
	require.ErrorIs(t, err, ErrClosed)
}

type failingWriter struct {
	allowed int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.allowed <= 0 {
		return 0, errors.New("broken pipe")
	}
	w.allowed--
	return len(p), nil
}

func TestWriteFailureIsTerminal(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, event.New(event.CategorySystem, event.TypeAgentInitialized, "f1", "u1", nil)))
	require.NoError(t, s.Publish(ctx, event.New(event.CategoryProgress, event.TypeTaskCompleted, "f1", "u1", nil)))

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, &failingWriter{allowed: 1}, nil)
	}()
	err := <-done
	require.Error(t, err)

	// The producer side must now refuse further events.
	err = s.Publish(ctx, event.New(event.CategoryProgress, event.TypeTaskCompleted, "f1", "u1", nil))
	require.ErrorIs(t, err, ErrClosed)
}

func TestServeWritesSSEFrames(t *testing.T) {
	s := NewSession()
	ctx := context.Background()

	ev := event.New(event.CategoryUI, event.TypeShowConfigButton, "f1", "u1", &event.UIData{Action: "show_config_button"})
	require.NoError(t, s.Publish(ctx, ev))
	s.Close()

	var buf bytes.Buffer
	require.NoError(t, s.Serve(ctx, &buf, nil))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: ui\ndata: "), out)
	assert.Contains(t, out, `"sequence":1`)
	assert.Contains(t, out, `"formId":"f1"`)
	assert.True(t, strings.HasSuffix(out, "\n\n"))
}

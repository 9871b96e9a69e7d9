// Package stream carries agent events from the orchestrator to one
// client over a single ordered channel per session.
package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/formweaver/formweaver/internal/agent/event"
)

// ErrClosed is returned by Publish after the session ended or a write
// to the client failed. Producers must stop emitting when they see it;
// partial results are still persisted server-side.
var ErrClosed = errors.New("stream: session closed")

const defaultBuffer = 64

// Session is the single-writer event channel for one agent turn. It
// assigns strictly increasing sequence numbers at publish time and
// applies backpressure through its bounded buffer.
type Session struct {
	ch     chan *event.Event
	seq    atomic.Int64
	done   chan struct{}
	closed sync.Once

	mu     sync.Mutex
	failed bool
}

// NewSession creates a session stream with the default buffer size.
func NewSession() *Session {
	return &Session{
		ch:   make(chan *event.Event, defaultBuffer),
		done: make(chan struct{}),
	}
}

// Publish stamps the event with the next sequence number and queues it
// for delivery. It blocks when the buffer is full and fails once the
// session is closed or the client write path broke.
func (s *Session) Publish(ctx context.Context, ev *event.Event) error {
	s.mu.Lock()
	if s.failed {
		s.mu.Unlock()
		return ErrClosed
	}
	ev.Sequence = s.seq.Add(1)
	s.mu.Unlock()

	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the producer side. Events already queued still drain to
// the client.
func (s *Session) Close() {
	s.closed.Do(func() {
		s.mu.Lock()
		s.failed = true
		s.mu.Unlock()
		close(s.ch)
		close(s.done)
	})
}

// Events exposes the delivery channel for consumers that apply their
// own framing (tests, the client SDK).
func (s *Session) Events() <-chan *event.Event {
	return s.ch
}

// Flusher is the subset of http.ResponseWriter needed for streaming.
type Flusher interface {
	Flush()
}

// Serve writes queued events to w as Server-Sent Events until the
// producer closes the session or a write fails. A failed write is
// terminal: the session is closed so producers stop emitting.
func (s *Session) Serve(ctx context.Context, w io.Writer, f Flusher) error {
	for {
		select {
		case ev, ok := <-s.ch:
			if !ok {
				return nil
			}
			raw, err := ev.Marshal()
			if err != nil {
				s.fail()
				return err
			}
			if _, err := w.Write(formatSSE(string(ev.Category), raw)); err != nil {
				s.fail()
				return err
			}
			if f != nil {
				f.Flush()
			}
		case <-ctx.Done():
			s.fail()
			return ctx.Err()
		}
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	s.failed = true
	s.mu.Unlock()
}

// formatSSE frames one event: "event: <category>\ndata: <json>\n\n".
func formatSSE(eventType string, data []byte) []byte {
	out := make([]byte, 0, len(eventType)+len(data)+16)
	out = append(out, "event: "...)
	out = append(out, eventType...)
	out = append(out, "\ndata: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out
}

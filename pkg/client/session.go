package client

import (
	"context"

	"github.com/formweaver/formweaver/internal/agent/event"
)

// Phase is the session's connection lifecycle state.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseConnectingSameForm Phase = "connecting_same_form"
	PhaseConnectingNewForm  Phase = "connecting_new_form"
)

// Session owns one projection plus the raw event log backing it.
// Reconnecting to the same form keeps the log; switching forms, or
// detecting a cached snapshot that belongs to a different form,
// discards everything.
type Session struct {
	phase  Phase
	state  State
	log    []*event.Event
	bridge *Bridge
}

// NewSession starts an idle session with no bound form.
func NewSession() *Session {
	return &Session{phase: PhaseIdle}
}

// Phase reports the current lifecycle phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// State returns the current projection value.
func (s *Session) State() State {
	return s.state
}

// Log returns the retained event log.
func (s *Session) Log() []*event.Event {
	return s.log
}

// SetBridge attaches a synchronizer that receives every snapshot the
// projection accepts.
func (s *Session) SetBridge(b *Bridge) {
	s.bridge = b
}

// Connect binds the session to a form id. A different requested id, or
// a cached form whose id no longer matches the request, resets the
// session; reconnecting to the same form only refreshes the phase.
func (s *Session) Connect(requestedID string) {
	stale := s.state.CurrentForm != nil && s.state.CurrentForm.FormID != requestedID
	if s.state.FormID != requestedID || stale {
		s.state = NewState(requestedID)
		s.log = nil
		s.phase = PhaseConnectingNewForm
		return
	}
	s.phase = PhaseConnectingSameForm
}

// Apply folds one received event into the projection and forwards any
// accepted snapshot to the bridge.
func (s *Session) Apply(ev *event.Event) {
	if ev == nil {
		return
	}
	s.log = append(s.log, ev)
	before := s.state.CurrentForm
	s.state = Reduce(s.state, ev)
	if s.bridge != nil && s.state.CurrentForm != nil && s.state.CurrentForm != before {
		s.bridge.Sync(s.state.CurrentForm)
	}
}

// readRequest asks the mailbox loop for the current projection.
type readRequest struct {
	reply chan State
}

// Mailbox runs a session on its own goroutine. Events and reads go
// through channels, so no caller ever touches the state concurrently.
type Mailbox struct {
	session *Session
	events  chan *event.Event
	reads   chan readRequest
	done    chan struct{}
}

// NewMailbox wraps a session. Start the loop with Run.
func NewMailbox(s *Session) *Mailbox {
	return &Mailbox{
		session: s,
		events:  make(chan *event.Event, 16),
		reads:   make(chan readRequest),
		done:    make(chan struct{}),
	}
}

// Run owns the session until ctx ends. Call it on a dedicated
// goroutine.
func (m *Mailbox) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.session.Apply(ev)
		case req := <-m.reads:
			req.reply <- m.session.State()
		}
	}
}

// Deliver queues one event for the loop. It blocks while the mailbox
// is full and drops the event once the loop has stopped.
func (m *Mailbox) Deliver(ev *event.Event) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// State reads the projection from the loop. The zero State is returned
// after the loop has stopped.
func (m *Mailbox) State() State {
	req := readRequest{reply: make(chan State, 1)}
	select {
	case m.reads <- req:
		return <-req.reply
	case <-m.done:
		return State{}
	}
}

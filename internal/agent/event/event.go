// Package event defines the typed event feed emitted by the agent while
// it builds or mutates a form, and the agent state carried inside it.
package event

import (
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/formweaver/formweaver/internal/form/model"
)

// Category groups event types. Consumers branch on it first.
type Category string

const (
	CategoryState    Category = "state"
	CategoryProgress Category = "progress"
	CategoryError    Category = "error"
	CategorySystem   Category = "system"
	CategoryUI       Category = "ui"
)

// Event type names, per category.
const (
	TypeStateSnapshot    = "state_snapshot"    // state
	TypeTaskStarted      = "task_started"      // progress
	TypeTaskCompleted    = "task_completed"    // progress
	TypeToolError        = "tool_error"        // error
	TypeGenerationError  = "generation_error"  // error
	TypeAgentInitialized = "agent_initialized" // system
	TypeAgentWarning     = "agent_warning"     // system
	TypeShowConfigButton = "show_config_button" // ui
)

// Status is the coarse agent lifecycle state for one user turn.
type Status string

const (
	StatusInitializing Status = "INITIALIZING"
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
)

// AgentState is the agent's lifecycle state plus the originating user
// input, kept so a failed turn can be retried verbatim.
type AgentState struct {
	Status    Status `json:"status"`
	UserInput string `json:"userInput,omitempty"`
}

// Event is one entry in the per-session feed. Sequence strictly
// increases within a session; it is assigned by the transport at
// publish time, not by producers.
type Event struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	FormID    string    `json:"formId"`
	UserID    string    `json:"userId"`
	Sequence  int64     `json:"sequence"`
	Data      any       `json:"data,omitempty"`
}

// StateSnapshotData is the full-state payload of state_snapshot events.
// Applying it replaces the consumer's derived form and agent state
// wholesale, which makes redelivery harmless.
type StateSnapshotData struct {
	Form       *model.Snapshot `json:"form"`
	AgentState AgentState      `json:"agentState"`
	IsComplete bool            `json:"isComplete"`
}

// TaskData describes one unit of generation work.
type TaskData struct {
	TaskID  string `json:"taskId"`
	Title   string `json:"title,omitempty"`
	Section string `json:"section,omitempty"`
}

// ErrorData carries a structured failure report to the consumer.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
}

// WarningData is the agent_warning payload. A non-zero PlannedTasks
// marks it as a planning marker: consumers adopt that count as the
// authoritative task total.
type WarningData struct {
	Message      string `json:"message,omitempty"`
	PlannedTasks int    `json:"plannedTasks,omitempty"`
}

// UIData asks the client to surface an affordance.
type UIData struct {
	Action string `json:"action"`
}

// New builds an event with a fresh id and timestamp. Sequence is left
// zero until the transport assigns it.
func New(category Category, typ, formID, userID string, data any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Category:  category,
		Type:      typ,
		Timestamp: time.Now().UTC(),
		FormID:    formID,
		UserID:    userID,
		Data:      data,
	}
}

// Marshal encodes the event into its wire shape.
func (e *Event) Marshal() ([]byte, error) {
	return sonic.Marshal(e)
}

// Unmarshal decodes a wire event. Data stays as raw JSON-derived values
// until DecodeData is called with a concrete payload type.
func Unmarshal(raw []byte) (*Event, error) {
	var e Event
	if err := sonic.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}

// DecodeData re-decodes the event payload into out. Used by consumers
// that received Data as a generic map.
func (e *Event) DecodeData(out any) error {
	raw, err := sonic.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}

// Snapshot decodes a state_snapshot payload, or returns nil for other
// event types.
func (e *Event) Snapshot() (*StateSnapshotData, error) {
	if e.Category != CategoryState || e.Type != TypeStateSnapshot {
		return nil, nil
	}
	if d, ok := e.Data.(*StateSnapshotData); ok {
		return d, nil
	}
	var d StateSnapshotData
	if err := e.DecodeData(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Package tools implements the executors the driving model can invoke
// during a turn. Each executor is an incremental producer: it emits one
// event per phase transition into the session stream and persists its
// results through the form service.
package tools

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/agent/generate"
	"github.com/formweaver/formweaver/internal/agent/stream"
	"github.com/formweaver/formweaver/internal/common/logger"
	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/service"
)

// Tool names the driving model selects from.
const (
	NameCreateForm       = "createForm"
	NameUpdateForm       = "updateForm"
	NameQueryDocs        = "queryDocs"
	NameShowConfigButton = "showConfigButton"
	NameGetFormContext   = "getFormContext"
)

// Deps are the long-lived collaborators shared by all executors.
type Deps struct {
	Service    *service.Service
	Planner    *generate.Planner
	Questions  *generate.QuestionGenerator
	Patches    *generate.PatchGenerator
	Log        *logger.Logger
	GenTimeout time.Duration // bound on each ancillary generation call
}

func (d *Deps) genCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.GenTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.GenTimeout)
}

// Turn binds executors to one user turn and its outbound stream.
type Turn struct {
	FormID    string
	UserID    string
	UserInput string
	Stream    *stream.Session
}

// Emit publishes one event for this turn. stream.ErrClosed means the
// client write path broke; callers stop emitting and fall back to
// persisting what they have.
func (t *Turn) Emit(ctx context.Context, category event.Category, typ string, data any) error {
	return t.Stream.Publish(ctx, event.New(category, typ, t.FormID, t.UserID, data))
}

// EmitSnapshot publishes a full-state snapshot event.
func (t *Turn) EmitSnapshot(ctx context.Context, snap *model.Snapshot, status event.Status, complete bool) error {
	return t.Emit(ctx, event.CategoryState, event.TypeStateSnapshot, &event.StateSnapshotData{
		Form:       snap,
		AgentState: event.AgentState{Status: status, UserInput: t.UserInput},
		IsComplete: complete,
	})
}

// Tool is one executor the orchestrator can dispatch to.
type Tool interface {
	// Info describes the tool to the driving model.
	Info() *schema.ToolInfo
	// Execute runs the tool with the model-provided JSON arguments and
	// returns the value serialized back to the model.
	Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error)
}

// Result is the structured tool result handed back to the driving
// model. Executor failures become Success=false instead of aborting
// the orchestrator step.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// All builds the full executor set for a session.
func All(d *Deps) map[string]Tool {
	return map[string]Tool{
		NameCreateForm:       NewCreateForm(d),
		NameUpdateForm:       NewUpdateForm(d),
		NameQueryDocs:        NewQueryDocs(d),
		NameShowConfigButton: NewShowConfigButton(d),
		NameGetFormContext:   NewGetFormContext(d),
	}
}

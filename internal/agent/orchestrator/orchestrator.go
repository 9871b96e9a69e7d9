// Package orchestrator drives one user turn: it feeds the conversation
// to the chat model, executes the tool the model picks each step, and
// closes the turn with a conversational reply. A turn spends at most
// MaxSteps model round-trips.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/agent/generate"
	"github.com/formweaver/formweaver/internal/agent/stream"
	"github.com/formweaver/formweaver/internal/agent/tools"
	"github.com/formweaver/formweaver/internal/common/logger"
	formmodel "github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/store"
)

// DefaultMaxSteps bounds the tool-calling loop for one user turn.
const DefaultMaxSteps = 5

const systemPrompt = `You are a form building assistant. You help users create,
edit and understand online forms through the tools you are given.

Rules:
- Use createForm when the user describes a form they want built.
- Use updateForm for edits to an existing form: adding, changing or
  removing a single question.
- Use getFormContext when you need to see the current form before
  deciding what to do.
- Use queryDocs to answer product questions about forms, question types
  or publishing.
- Use showConfigButton when the user asks about settings the tools
  cannot change.
- When no tool is needed, answer directly in plain text.`

// fallbackReply is persisted when a turn fails and even the reply
// model is unavailable, so the conversation thread keeps a row for the
// turn.
const fallbackReply = "Something went wrong while working on your form. Your progress so far has been saved. Please try again."

// Result is the outcome of one orchestrated turn.
type Result struct {
	Success bool
	Reply   string
}

// Orchestrator runs the bounded tool-calling loop.
type Orchestrator struct {
	chatModel model.ToolCallingChatModel
	tools     map[string]tools.Tool
	toolInfos []*schema.ToolInfo
	reply     *generate.ReplyGenerator
	store     *store.Store
	trimmer   Trimmer
	maxSteps  int
	log       *logger.Logger
}

// New wires an orchestrator over a tool set. maxSteps <= 0 selects
// DefaultMaxSteps.
func New(cm model.ToolCallingChatModel, toolSet map[string]tools.Tool, reply *generate.ReplyGenerator, st *store.Store, maxSteps int, log *logger.Logger) *Orchestrator {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	infos := make([]*schema.ToolInfo, 0, len(toolSet))
	for _, t := range toolSet {
		infos = append(infos, t.Info())
	}
	return &Orchestrator{
		chatModel: cm,
		tools:     toolSet,
		toolInfos: infos,
		reply:     reply,
		store:     st,
		trimmer:   KeepSystemLastNTrimmer{N: historyWindow},
		maxSteps:  maxSteps,
		log:       log.WithFields(zap.String("component", "orchestrator")),
	}
}

// Run executes one user turn. The user message is persisted up front,
// the assistant reply (or a fallback on failure) at the end, so the
// stored thread always gains a full exchange per turn.
func (o *Orchestrator) Run(ctx context.Context, turn *tools.Turn) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("turn panicked", zap.String("form_id", turn.FormID), zap.Any("panic", r))
			res = o.failTurn(ctx, turn, fmt.Errorf("internal error: %v", r))
			err = nil
		}
	}()

	if err := o.claimForm(ctx, turn); err != nil {
		return nil, err
	}
	if _, err := o.store.AppendMessage(ctx, turn.FormID, store.RoleUser, turn.UserInput); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	if err := turn.Emit(ctx, event.CategorySystem, event.TypeAgentInitialized, &event.AgentState{
		Status:    event.StatusInitializing,
		UserInput: turn.UserInput,
	}); err != nil {
		return nil, fmt.Errorf("announce turn: %w", err)
	}

	history, err := loadHistory(ctx, o.store, turn.FormID, o.trimmer)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(systemPrompt))
	messages = append(messages, history...)

	reply, runErr := o.loop(ctx, turn, messages)
	if runErr != nil {
		if errors.Is(runErr, stream.ErrClosed) {
			// The client is gone; persist the fallback so the thread
			// is complete on reconnect, then report the broken stream.
			_, _ = o.store.AppendMessage(ctx, turn.FormID, store.RoleAssistant, fallbackReply)
			return nil, runErr
		}
		return o.failTurn(ctx, turn, runErr), nil
	}

	if reply == "" {
		reply = o.composeReply(ctx, turn, false, "")
	}
	if _, err := o.store.AppendMessage(ctx, turn.FormID, store.RoleAssistant, reply); err != nil {
		o.log.Error("persist assistant reply", zap.Error(err))
	}
	return &Result{Success: true, Reply: reply}, nil
}

// claimForm creates the form row on a session's first turn so the
// conversation has an owner even when no tool runs.
func (o *Orchestrator) claimForm(ctx context.Context, turn *tools.Turn) error {
	_, err := o.store.GetForm(ctx, turn.FormID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err := o.store.CreateForm(ctx, turn.UserID, &formmodel.Form{ID: turn.FormID}); err != nil {
		return fmt.Errorf("claim form: %w", err)
	}
	return nil
}

// loop runs the model/tool exchange. It returns the model's plain-text
// reply when the model stops calling tools, or "" when the turn ended
// on a tool step.
func (o *Orchestrator) loop(ctx context.Context, turn *tools.Turn, messages []*schema.Message) (string, error) {
	for step := 0; step < o.maxSteps; step++ {
		resp, err := o.chatModel.Generate(ctx, messages, model.WithTools(o.toolInfos))
		if err != nil {
			return "", fmt.Errorf("model step %d: %w", step+1, err)
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		call := resp.ToolCalls[0]
		messages = append(messages, resp)

		result := o.execute(ctx, turn, call)
		if result.terminal != nil {
			return "", result.terminal
		}
		payload, err := sonic.MarshalString(result.body)
		if err != nil {
			payload = fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
		}
		messages = append(messages, schema.ToolMessage(payload, call.ID))
	}
	return "", nil
}

type toolOutcome struct {
	body     tools.Result
	terminal error
}

// execute runs one tool call. Executor errors become a structured
// failure result fed back to the model; only a broken event stream
// ends the turn.
func (o *Orchestrator) execute(ctx context.Context, turn *tools.Turn, call schema.ToolCall) (out toolOutcome) {
	name := call.Function.Name
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("tool panicked", zap.String("tool", name), zap.Any("panic", r))
			out = o.toolFailure(ctx, turn, name, fmt.Errorf("internal error: %v", r))
		}
	}()

	t, ok := o.tools[name]
	if !ok {
		return o.toolFailure(ctx, turn, name, fmt.Errorf("unknown tool %q", name))
	}
	o.log.Info("executing tool", zap.String("tool", name), zap.String("form_id", turn.FormID))
	data, err := t.Execute(ctx, turn, call.Function.Arguments)
	if err != nil {
		if errors.Is(err, stream.ErrClosed) {
			return toolOutcome{terminal: err}
		}
		return o.toolFailure(ctx, turn, name, err)
	}
	return toolOutcome{body: tools.Result{Success: true, Data: data}}
}

func (o *Orchestrator) toolFailure(ctx context.Context, turn *tools.Turn, name string, err error) toolOutcome {
	o.log.Warn("tool failed", zap.String("tool", name), zap.Error(err))
	emitErr := turn.Emit(ctx, event.CategoryError, event.TypeToolError, &event.ErrorData{
		Code:    "TOOL_EXECUTION_ERROR",
		Message: err.Error(),
		Tool:    name,
	})
	if emitErr != nil && errors.Is(emitErr, stream.ErrClosed) {
		return toolOutcome{terminal: emitErr}
	}
	return toolOutcome{body: tools.Result{Success: false, Error: err.Error()}}
}

// failTurn closes a failed turn: a generation_error event, a FAILED
// snapshot carrying the user input for retry, and a persisted fallback
// assistant message.
func (o *Orchestrator) failTurn(ctx context.Context, turn *tools.Turn, cause error) *Result {
	o.log.Error("turn failed", zap.String("form_id", turn.FormID), zap.Error(cause))
	_ = turn.Emit(ctx, event.CategoryError, event.TypeGenerationError, &event.ErrorData{
		Code:    "GENERATION_ERROR",
		Message: cause.Error(),
	})
	_ = turn.Emit(ctx, event.CategoryState, event.TypeStateSnapshot, &event.StateSnapshotData{
		Form:       o.currentSnapshot(ctx, turn.FormID),
		AgentState: event.AgentState{Status: event.StatusFailed, UserInput: turn.UserInput},
		IsComplete: true,
	})

	reply := o.composeReply(ctx, turn, true, cause.Error())
	if _, err := o.store.AppendMessage(ctx, turn.FormID, store.RoleAssistant, reply); err != nil {
		o.log.Error("persist fallback reply", zap.Error(err))
	}
	return &Result{Success: false, Reply: reply}
}

// composeReply asks the reply model for the closing message, falling
// back to a canned line when that call fails too.
func (o *Orchestrator) composeReply(ctx context.Context, turn *tools.Turn, failed bool, detail string) string {
	if o.reply == nil {
		return fallbackReply
	}
	text, err := o.reply.Generate(ctx, &generate.ReplyRequest{
		UserInput:     turn.UserInput,
		Snapshot:      o.currentSnapshot(ctx, turn.FormID),
		Failed:        failed,
		FailureDetail: detail,
	})
	if err != nil || text == "" {
		o.log.Warn("reply generation failed", zap.Error(err))
		return fallbackReply
	}
	return text
}

// currentSnapshot loads the form state a closing message should refer
// to, preferring the published version. Lookup errors degrade to a nil
// snapshot.
func (o *Orchestrator) currentSnapshot(ctx context.Context, formID string) *formmodel.Snapshot {
	f, err := o.store.GetForm(ctx, formID)
	if err != nil {
		return nil
	}
	versionID := f.PublishedVersionID
	if versionID == "" {
		versionID = f.DraftVersionID
	}
	if versionID == "" {
		return nil
	}
	v, err := o.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil
	}
	return formmodel.SnapshotOf(v)
}

package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/agent/generate"
	"github.com/formweaver/formweaver/internal/agent/stream"
	"github.com/formweaver/formweaver/internal/form/model"
)

type createFormArgs struct {
	Prompt string `json:"prompt" jsonschema:"required,description=What the form should collect, in the user's words"`
}

// CreateForm plans a new form and generates its questions one by one,
// streaming a phase event and a fresh snapshot after each question.
type CreateForm struct {
	deps *Deps
	info *schema.ToolInfo
}

func NewCreateForm(d *Deps) *CreateForm {
	info, err := utils.GoStruct2ToolInfo[createFormArgs](
		NameCreateForm,
		"Create a new form from the user's request. Plans the questions first, then generates each one.",
	)
	if err != nil {
		// The args struct is static; a schema failure is a programming error.
		panic(fmt.Sprintf("createForm tool schema: %v", err))
	}
	return &CreateForm{deps: d, info: info}
}

func (t *CreateForm) Info() *schema.ToolInfo {
	return t.info
}

func (t *CreateForm) Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error) {
	var args createFormArgs
	if err := sonic.UnmarshalString(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("decode createForm arguments: %w", err)
	}
	if args.Prompt == "" {
		args.Prompt = turn.UserInput
	}

	form, err := t.deps.Service.EnsureForm(ctx, turn.UserID, turn.FormID)
	if err != nil {
		return nil, err
	}

	// Plan phase.
	planCtx, cancel := t.deps.genCtx(ctx)
	plan, err := t.deps.Planner.Plan(planCtx, &generate.PlanRequest{UserInput: args.Prompt})
	cancel()
	if err != nil {
		return nil, err
	}
	if err := turn.Emit(ctx, event.CategorySystem, event.TypeAgentWarning, &event.WarningData{
		Message:      fmt.Sprintf("Planned %d questions for %q", len(plan.Questions), plan.Title),
		PlannedTasks: len(plan.Questions),
	}); err != nil {
		return t.persistPartial(ctx, turn, form, plan, nil, err)
	}

	// Per-question generation phase.
	questions := make([]model.Question, 0, len(plan.Questions))
	for i, qp := range plan.Questions {
		taskID := fmt.Sprintf("question-%d", i+1)
		if err := turn.Emit(ctx, event.CategoryProgress, event.TypeTaskStarted, &event.TaskData{
			TaskID: taskID, Title: qp.Title, Section: qp.Section,
		}); err != nil {
			return t.persistPartial(ctx, turn, form, plan, questions, err)
		}

		qCtx, cancel := t.deps.genCtx(ctx)
		q, err := t.deps.Questions.Generate(qCtx, &generate.QuestionRequest{
			Plan:      qp,
			FormTitle: plan.Title,
			UserInput: args.Prompt,
		})
		cancel()
		if err != nil {
			return nil, err
		}
		q.ID = uuid.New().String()
		questions = append(questions, *q)

		if err := turn.Emit(ctx, event.CategoryProgress, event.TypeTaskCompleted, &event.TaskData{
			TaskID: taskID, Title: q.Title, Section: qp.Section,
		}); err != nil {
			return t.persistPartial(ctx, turn, form, plan, questions, err)
		}
		if err := turn.EmitSnapshot(ctx, &model.Snapshot{
			FormID:      form.ID,
			Title:       plan.Title,
			Description: plan.Description,
			Questions:   questions,
		}, event.StatusRunning, false); err != nil {
			return t.persistPartial(ctx, turn, form, plan, questions, err)
		}
	}

	// Finalize phase.
	version, err := t.deps.Service.SaveDraft(ctx, form, plan.Title, plan.Description, questions, nil)
	if err != nil {
		return nil, err
	}
	snap := model.SnapshotOf(version)
	if err := turn.EmitSnapshot(ctx, snap, event.StatusCompleted, true); err != nil &&
		!errors.Is(err, stream.ErrClosed) {
		return nil, err
	}

	t.deps.Log.Info("form created",
		zap.String("form_id", form.ID),
		zap.String("version_id", version.ID),
		zap.Int("questions", len(questions)))
	return map[string]any{
		"formId":        form.ID,
		"versionId":     version.ID,
		"title":         version.Title,
		"questionCount": len(questions),
	}, nil
}

// persistPartial handles a broken client write path: emission stops,
// but whatever was generated so far is still saved as the draft.
func (t *CreateForm) persistPartial(ctx context.Context, turn *Turn, form *model.Form, plan *generate.FormPlan, questions []model.Question, cause error) (any, error) {
	if len(questions) > 0 {
		if _, err := t.deps.Service.SaveDraft(ctx, form, plan.Title, plan.Description, questions, nil); err != nil {
			t.deps.Log.Warn("persist partial draft failed",
				zap.String("form_id", form.ID), zap.Error(err))
		}
	}
	return nil, fmt.Errorf("event stream ended: %w", cause)
}

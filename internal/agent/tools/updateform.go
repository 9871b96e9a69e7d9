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
	"github.com/formweaver/formweaver/internal/form/patch"
	"github.com/formweaver/formweaver/internal/form/store"
)

type updateFormArgs struct {
	Action       string `json:"action" jsonschema:"required,enum=add,enum=update,enum=remove,description=What to do with the question"`
	QuestionID   string `json:"questionId,omitempty" jsonschema:"description=The question to update or remove"`
	QuestionType string `json:"questionType,omitempty" jsonschema:"description=For add: the question type"`
	Instructions string `json:"instructions" jsonschema:"required,description=What the change should achieve, in the user's words"`
}

// UpdateForm mutates the draft version one question at a time: add,
// update (via content patch) or remove.
type UpdateForm struct {
	deps *Deps
	info *schema.ToolInfo
}

func NewUpdateForm(d *Deps) *UpdateForm {
	info, err := utils.GoStruct2ToolInfo[updateFormArgs](
		NameUpdateForm,
		"Add, update or remove one question of the form's draft version.",
	)
	if err != nil {
		panic(fmt.Sprintf("updateForm tool schema: %v", err))
	}
	return &UpdateForm{deps: d, info: info}
}

func (t *UpdateForm) Info() *schema.ToolInfo {
	return t.info
}

func (t *UpdateForm) Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error) {
	var args updateFormArgs
	if err := sonic.UnmarshalString(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("decode updateForm arguments: %w", err)
	}

	form, err := t.deps.Service.EnsureForm(ctx, turn.UserID, turn.FormID)
	if err != nil {
		return nil, err
	}
	draft, err := t.draft(ctx, form)
	if err != nil {
		return nil, err
	}

	taskID := fmt.Sprintf("%s-%s", args.Action, orNew(args.QuestionID))
	if err := turn.Emit(ctx, event.CategoryProgress, event.TypeTaskStarted, &event.TaskData{
		TaskID: taskID, Title: args.Instructions,
	}); err != nil {
		return nil, fmt.Errorf("event stream ended: %w", err)
	}

	switch args.Action {
	case "add":
		err = t.addQuestion(ctx, draft, &args)
	case "update":
		err = t.updateQuestion(ctx, draft, &args)
	case "remove":
		err = t.removeQuestion(draft, args.QuestionID)
	default:
		err = fmt.Errorf("unknown action %q", args.Action)
	}
	if err != nil {
		return nil, err
	}

	version, err := t.deps.Service.SaveDraft(ctx, form, draft.Title, draft.Description, draft.Questions, draft.Settings)
	if err != nil {
		return nil, err
	}

	if err := turn.Emit(ctx, event.CategoryProgress, event.TypeTaskCompleted, &event.TaskData{
		TaskID: taskID,
	}); err != nil && !errors.Is(err, stream.ErrClosed) {
		return nil, err
	}
	if err := turn.EmitSnapshot(ctx, model.SnapshotOf(version), event.StatusCompleted, true); err != nil &&
		!errors.Is(err, stream.ErrClosed) {
		return nil, err
	}

	t.deps.Log.Info("form updated",
		zap.String("form_id", form.ID),
		zap.String("action", args.Action),
		zap.Int("questions", len(version.Questions)))
	return map[string]any{
		"formId":        form.ID,
		"versionId":     version.ID,
		"action":        args.Action,
		"questionCount": len(version.Questions),
	}, nil
}

// draft loads the draft version, seeding a fresh one from the form's
// current content when no draft exists yet.
func (t *UpdateForm) draft(ctx context.Context, form *model.Form) (*model.FormVersion, error) {
	if form.DraftVersionID != "" {
		v, err := t.deps.Service.Store().GetVersion(ctx, form.DraftVersionID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	// A draft row can exist without the form pointing at it, e.g. after
	// a crash between the version insert and the pointer update.
	// Re-point the form and reuse it.
	switch v, err := t.deps.Service.Store().GetVersionByStatus(ctx, form.ID, model.StatusDraft); {
	case err == nil:
		form.DraftVersionID = v.ID
		if err := t.deps.Service.Store().UpdateForm(ctx, form); err != nil {
			return nil, err
		}
		return v, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}
	seed := &model.FormVersion{FormID: form.ID, Title: form.Title, Description: form.Description}
	if form.PublishedVersionID != "" {
		pub, err := t.deps.Service.Store().GetVersion(ctx, form.PublishedVersionID)
		if err == nil {
			seed.Title = pub.Title
			seed.Description = pub.Description
			seed.Questions = append([]model.Question{}, pub.Questions...)
			seed.Settings = pub.Settings
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return seed, nil
}

func (t *UpdateForm) addQuestion(ctx context.Context, draft *model.FormVersion, args *updateFormArgs) error {
	qType := args.QuestionType
	if qType == "" {
		qType = string(model.QuestionText)
	}
	genCtx, cancel := t.deps.genCtx(ctx)
	defer cancel()
	q, err := t.deps.Questions.Generate(genCtx, &generate.QuestionRequest{
		Plan:      generate.QuestionPlan{Title: args.Instructions, Type: qType, Intent: args.Instructions},
		FormTitle: draft.Title,
	})
	if err != nil {
		return err
	}
	q.ID = uuid.New().String()
	draft.Questions = append(draft.Questions, *q)
	return nil
}

func (t *UpdateForm) updateQuestion(ctx context.Context, draft *model.FormVersion, args *updateFormArgs) error {
	idx := -1
	for i := range draft.Questions {
		if draft.Questions[i].ID == args.QuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("question %q not found", args.QuestionID)
	}

	genCtx, cancel := t.deps.genCtx(ctx)
	defer cancel()
	ops, err := t.deps.Patches.Generate(genCtx, &generate.PatchRequest{
		Question:     &draft.Questions[idx],
		Instructions: args.Instructions,
	})
	if err != nil {
		return err
	}
	patched, err := patch.ApplyToQuestion(&draft.Questions[idx], ops)
	if err != nil {
		return err
	}
	repaired := model.Repair(patched)
	if err := model.Validate(repaired); err != nil {
		return err
	}
	draft.Questions[idx] = *repaired
	return nil
}

func (t *UpdateForm) removeQuestion(draft *model.FormVersion, questionID string) error {
	for i := range draft.Questions {
		if draft.Questions[i].ID == questionID {
			draft.Questions = append(draft.Questions[:i], draft.Questions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("question %q not found", questionID)
}

func orNew(id string) string {
	if id == "" {
		return "new"
	}
	return id
}

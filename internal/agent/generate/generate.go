// Package generate holds the structured generation chains the tool
// executors drive: form planning, per-question generation, content
// patch generation and the conversational reply.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	formmodel "github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/patch"
	"github.com/formweaver/formweaver/internal/llm/structured"
)

// RepairAttempts bounds the repair-and-retry loop for one generated
// question.
const RepairAttempts = 3

// QuestionPlan is one planned unit of generation work.
type QuestionPlan struct {
	Title   string `json:"title" jsonschema:"required,description=Working title of the question"`
	Type    string `json:"type" jsonschema:"required,enum=singleChoice,enum=multipleChoice,enum=text,enum=date,enum=rating,enum=linearScale,enum=likertScale,enum=address,enum=ranking,enum=fileUpload,description=The question type"`
	Section string `json:"section,omitempty" jsonschema:"description=Optional section the question belongs to"`
	Intent  string `json:"intent,omitempty" jsonschema:"description=What the question should find out"`
}

// FormPlan is the planner output: the form outline generated before any
// question content.
type FormPlan struct {
	Title       string         `json:"title" jsonschema:"required,description=Form title"`
	Description string         `json:"description,omitempty" jsonschema:"description=Short form description"`
	Questions   []QuestionPlan `json:"questions" jsonschema:"required,description=The questions to generate, in order"`
}

// PlanRequest feeds the planner.
type PlanRequest struct {
	UserInput string
	Existing  *formmodel.Snapshot // nil when creating a new form
}

// Planner produces a FormPlan from the user's request.
type Planner struct {
	chain *structured.Chain[*PlanRequest, FormPlan]
}

func NewPlanner(cm model.ToolCallingChatModel) (*Planner, error) {
	chain, err := structured.NewChain[*PlanRequest, FormPlan](
		cm,
		buildPlanPrompt,
		"plan_form",
		"Produce the outline of the form to build: title, description and the ordered question plans.",
	)
	if err != nil {
		return nil, err
	}
	return &Planner{chain: chain}, nil
}

func (p *Planner) Plan(ctx context.Context, req *PlanRequest) (*FormPlan, error) {
	plan, err := p.chain.InvokeChecked(ctx, req, func(fp *FormPlan) error {
		if fp.Title == "" {
			return fmt.Errorf("plan has no title")
		}
		if len(fp.Questions) == 0 {
			return fmt.Errorf("plan has no questions")
		}
		return nil
	}, RepairAttempts)
	if err != nil {
		return nil, fmt.Errorf("plan form: %w", err)
	}
	return plan, nil
}

func buildPlanPrompt(ctx context.Context, req *PlanRequest) ([]*schema.Message, error) {
	system := `You are a form design assistant. Plan a form that collects exactly what the user asked for.
Rules:
- Keep the form short; every question must earn its place.
- Choose the question type that matches the answer shape (choice, text, date, rating, linearScale, likertScale, address, ranking, fileUpload).
- Call plan_form with the outline.`

	sections := []string{fmt.Sprintf("# User request:\n%s", req.UserInput)}
	if req.Existing != nil {
		existing, err := sonic.MarshalString(req.Existing)
		if err != nil {
			return nil, fmt.Errorf("encode existing form: %w", err)
		}
		sections = append(sections, fmt.Sprintf("# Existing form JSON:\n```json\n%s\n```", existing))
	}
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(strings.Join(sections, "\n\n")),
	}, nil
}

// QuestionRequest feeds the per-question generator.
type QuestionRequest struct {
	Plan      QuestionPlan
	FormTitle string
	UserInput string
}

// QuestionGenerator produces one full question definition from its
// plan, repaired and validated before it is returned.
type QuestionGenerator struct {
	chain *structured.Chain[*QuestionRequest, formmodel.Question]
}

func NewQuestionGenerator(cm model.ToolCallingChatModel) (*QuestionGenerator, error) {
	chain, err := structured.NewChain[*QuestionRequest, formmodel.Question](
		cm,
		buildQuestionPrompt,
		"write_question",
		"Write the complete question definition for one planned question.",
	)
	if err != nil {
		return nil, err
	}
	return &QuestionGenerator{chain: chain}, nil
}

// Generate runs the chain with the bounded repair-and-retry loop: each
// candidate is normalized by Repair first, and only content Repair
// cannot fix (missing options, broken scale) triggers a retry carrying
// the validation error back to the model.
func (g *QuestionGenerator) Generate(ctx context.Context, req *QuestionRequest) (*formmodel.Question, error) {
	q, err := g.chain.InvokeChecked(ctx, req, func(candidate *formmodel.Question) error {
		repaired := formmodel.Repair(candidate)
		if repaired != candidate {
			*candidate = *repaired
		}
		return formmodel.Validate(candidate)
	}, RepairAttempts)
	if err != nil {
		return nil, fmt.Errorf("generate question %q: %w", req.Plan.Title, err)
	}
	return q, nil
}

func buildQuestionPrompt(ctx context.Context, req *QuestionRequest) ([]*schema.Message, error) {
	system := fmt.Sprintf(`You are a form design assistant writing one question of the form %q.
Rules:
- The question must have type %q.
- Give choice and ranking questions a complete option list.
- Give rating and linearScale questions a scale with max greater than min.
- Pick the rendering inputType that fits the type and option count.
- Call write_question with the full definition.`, req.FormTitle, req.Plan.Type)

	planJSON, err := sonic.MarshalString(req.Plan)
	if err != nil {
		return nil, fmt.Errorf("encode question plan: %w", err)
	}
	sections := []string{
		fmt.Sprintf("# Question plan:\n```json\n%s\n```", planJSON),
	}
	if req.UserInput != "" {
		sections = append(sections, fmt.Sprintf("# Original user request:\n%s", req.UserInput))
	}
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(strings.Join(sections, "\n\n")),
	}, nil
}

// PatchRequest feeds the content patch generator for an existing
// question.
type PatchRequest struct {
	Question     *formmodel.Question
	Instructions string
}

// PatchArgs is the generated operation list.
type PatchArgs struct {
	Ops []patch.Operation `json:"ops" jsonschema:"required,description=RFC6902 operations editing the question content"`
}

// PatchGenerator produces content-only RFC6902 operations for one
// question.
type PatchGenerator struct {
	chain *structured.Chain[*PatchRequest, PatchArgs]
}

func NewPatchGenerator(cm model.ToolCallingChatModel) (*PatchGenerator, error) {
	chain, err := structured.NewChain[*PatchRequest, PatchArgs](
		cm,
		buildPatchPrompt,
		"edit_question",
		"Generate RFC6902 JSON Patch operations that apply the requested edit to the question. Only content paths are editable.",
	)
	if err != nil {
		return nil, err
	}
	return &PatchGenerator{chain: chain}, nil
}

func (g *PatchGenerator) Generate(ctx context.Context, req *PatchRequest) ([]patch.Operation, error) {
	args, err := g.chain.InvokeChecked(ctx, req, func(a *PatchArgs) error {
		return patch.ValidateOps(a.Ops)
	}, RepairAttempts)
	if err != nil {
		return nil, fmt.Errorf("generate question patch: %w", err)
	}
	return args.Ops, nil
}

func buildPatchPrompt(ctx context.Context, req *PatchRequest) ([]*schema.Message, error) {
	system := `You are a form design assistant editing one existing question.
Rules:
- Only use content paths (/title, /description, /options..., /rules..., /scale..., /statements..., /display...).
- Never touch /id, /questionType or /submissionBehavior.
- Use replace for existing values and add for new ones; return an empty list when nothing applies.
- Call edit_question with the operations.`

	questionJSON, err := sonic.MarshalString(req.Question)
	if err != nil {
		return nil, fmt.Errorf("encode question: %w", err)
	}
	user := fmt.Sprintf("# Question JSON:\n```json\n%s\n```\n\n# Requested edit:\n%s", questionJSON, req.Instructions)
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}, nil
}

// ReplyRequest feeds the conversational reply generator that closes a
// turn.
type ReplyRequest struct {
	UserInput     string
	Snapshot      *formmodel.Snapshot
	Failed        bool
	FailureDetail string
}

// ReplyGenerator writes the assistant's free-text reply after the tool
// work of a turn finished.
type ReplyGenerator struct {
	chatModel model.ToolCallingChatModel
}

func NewReplyGenerator(cm model.ToolCallingChatModel) *ReplyGenerator {
	return &ReplyGenerator{chatModel: cm}
}

func (g *ReplyGenerator) Generate(ctx context.Context, req *ReplyRequest) (string, error) {
	messages, err := buildReplyPrompt(req)
	if err != nil {
		return "", err
	}
	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return resp.Content, nil
}

func buildReplyPrompt(req *ReplyRequest) ([]*schema.Message, error) {
	system := `You are a friendly form building assistant. Summarize what just happened to the user's form in one or two conversational sentences.
- Mention the form title and how many questions it has.
- If the work failed, apologize briefly and suggest retrying.
- No lists, no markdown.`

	sections := []string{fmt.Sprintf("# User request:\n%s", req.UserInput)}
	if req.Snapshot != nil {
		snap, err := sonic.MarshalString(req.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot: %w", err)
		}
		sections = append(sections, fmt.Sprintf("# Resulting form JSON:\n```json\n%s\n```", snap))
	}
	if req.Failed {
		sections = append(sections, fmt.Sprintf("# The work FAILED:\n%s", req.FailureDetail))
	}
	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(strings.Join(sections, "\n\n")),
	}, nil
}

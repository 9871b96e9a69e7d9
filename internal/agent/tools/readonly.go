package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"github.com/formweaver/formweaver/internal/agent/event"
	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/store"
)

type queryDocsArgs struct {
	Query string `json:"query" jsonschema:"required,description=What to look up in the product documentation"`
}

// QueryDocs searches the built-in help corpus for guidance the model
// can relay to the user.
type QueryDocs struct {
	deps *Deps
	info *schema.ToolInfo
}

func NewQueryDocs(d *Deps) *QueryDocs {
	info, err := utils.GoStruct2ToolInfo[queryDocsArgs](
		NameQueryDocs,
		"Search the product documentation for how forms, question types and publishing work.",
	)
	if err != nil {
		panic(fmt.Sprintf("queryDocs tool schema: %v", err))
	}
	return &QueryDocs{deps: d, info: info}
}

func (t *QueryDocs) Info() *schema.ToolInfo {
	return t.info
}

func (t *QueryDocs) Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error) {
	var args queryDocsArgs
	if err := sonic.UnmarshalString(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("decode queryDocs arguments: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hits := searchDocs(args.Query, 3)
	return map[string]any{"results": hits}, nil
}

type getFormContextArgs struct{}

// GetFormContext returns the current state of the session's form so
// the model can ground its next step. The lookups are read-only and
// run concurrently.
type GetFormContext struct {
	deps *Deps
	info *schema.ToolInfo
}

func NewGetFormContext(d *Deps) *GetFormContext {
	info, err := utils.GoStruct2ToolInfo[getFormContextArgs](
		NameGetFormContext,
		"Fetch the current form content and conversation length for this session.",
	)
	if err != nil {
		panic(fmt.Sprintf("getFormContext tool schema: %v", err))
	}
	return &GetFormContext{deps: d, info: info}
}

func (t *GetFormContext) Info() *schema.ToolInfo {
	return t.info
}

func (t *GetFormContext) Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error) {
	// Each goroutine writes only its own variables; the result map is
	// assembled after both finish.
	var (
		g            errgroup.Group
		exists       bool
		version      *model.FormVersion
		messageCount int
	)
	g.Go(func() error {
		_, v, err := t.deps.Service.Effective(ctx, turn.FormID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		version = v
		return nil
	})
	g.Go(func() error {
		msgs, err := t.deps.Service.Store().ListMessages(ctx, turn.FormID)
		if err != nil {
			return err
		}
		messageCount = len(msgs)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := map[string]any{
		"formId":       turn.FormID,
		"exists":       exists,
		"messageCount": messageCount,
	}
	if version != nil {
		out["versionId"] = version.ID
		out["status"] = version.Status
		out["title"] = version.Title
		out["questionCount"] = len(version.Questions)
		out["questions"] = version.Questions
	}
	return out, nil
}

type showConfigButtonArgs struct{}

// ShowConfigButton asks the client to surface the form settings entry
// point.
type ShowConfigButton struct {
	deps *Deps
	info *schema.ToolInfo
}

func NewShowConfigButton(d *Deps) *ShowConfigButton {
	info, err := utils.GoStruct2ToolInfo[showConfigButtonArgs](
		NameShowConfigButton,
		"Show the user a button that opens the form's configuration panel.",
	)
	if err != nil {
		panic(fmt.Sprintf("showConfigButton tool schema: %v", err))
	}
	return &ShowConfigButton{deps: d, info: info}
}

func (t *ShowConfigButton) Info() *schema.ToolInfo {
	return t.info
}

func (t *ShowConfigButton) Execute(ctx context.Context, turn *Turn, rawArgs string) (any, error) {
	if err := turn.Emit(ctx, event.CategoryUI, event.TypeShowConfigButton, &event.UIData{
		Action: event.TypeShowConfigButton,
	}); err != nil {
		return nil, fmt.Errorf("event stream ended: %w", err)
	}
	return map[string]any{"shown": true}, nil
}

// docEntry is one help article of the built-in corpus.
type docEntry struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

var helpDocs = []docEntry{
	{
		Title: "Question types",
		Body:  "Forms support single choice, multiple choice, text, date, rating, linear scale, likert scale, address, ranking and file upload questions. Choice questions with four or more options render as dropdowns.",
	},
	{
		Title: "Publishing a form",
		Body:  "Publishing freezes the form's structure. After publishing you can still edit titles, descriptions and option labels, but you cannot add, remove, reorder or retype questions without creating a new draft.",
	},
	{
		Title: "Drafts",
		Body:  "Every form has at most one draft version. The agent edits the draft; publishing replaces the published version with the draft content.",
	},
	{
		Title: "Conditional logic",
		Body:  "A question can be shown or hidden depending on an earlier answer using an equals, notEquals or contains condition.",
	},
	{
		Title: "Submission behavior",
		Body:  "Radio, dropdown, date, star, linear scale, likert and file inputs advance automatically when answered. Checkbox, multi-select, address and ranking inputs need an explicit continue. Free text is always confirmed manually.",
	},
}

// searchDocs ranks the corpus by naive term overlap with the query.
func searchDocs(query string, limit int) []docEntry {
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		entry docEntry
		score int
	}
	var ranked []scored
	for _, d := range helpDocs {
		haystack := strings.ToLower(d.Title + " " + d.Body)
		score := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{entry: d, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]docEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out
}

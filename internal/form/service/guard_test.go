package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formweaver/formweaver/internal/common/logger"
	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, logger.Default())
}

func publishedForm(t *testing.T, s *Service, questionCount int) (*model.Form, *model.FormVersion) {
	t.Helper()
	ctx := context.Background()

	questions := make([]model.Question, questionCount)
	for i := range questions {
		questions[i] = model.Question{
			ID:       uuid.New().String(),
			Type:     model.QuestionText,
			Title:    "Question",
			Display:  model.Display{InputType: model.InputShortText, ShowTitle: true},
			Behavior: model.BehaviorManualUnclear,
		}
	}
	f := &model.Form{ID: uuid.New().String(), Title: "Survey"}
	require.NoError(t, s.Store().CreateForm(ctx, "owner", f))

	v := &model.FormVersion{
		ID:        uuid.New().String(),
		FormID:    f.ID,
		Status:    model.StatusPublished,
		Title:     "Survey",
		Questions: questions,
	}
	require.NoError(t, s.Store().CreateVersion(ctx, v))
	f.PublishedVersionID = v.ID
	require.NoError(t, s.Store().UpdateForm(ctx, f))
	return f, v
}

func TestMinorUpdateRejectsQuestionRemoval(t *testing.T) {
	s := newTestService(t)
	f, v := publishedForm(t, s, 5)

	_, err := s.ApplyMinorUpdate(context.Background(), f.ID, &MinorUpdate{
		Questions: v.Questions[:4],
	})
	require.Error(t, err)

	var ge *GuardError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "Cannot add or remove questions on a published form.", ge.Message)
}

func TestMinorUpdateRejectsReordering(t *testing.T) {
	s := newTestService(t)
	f, v := publishedForm(t, s, 3)

	swapped := append([]model.Question{}, v.Questions...)
	swapped[0], swapped[1] = swapped[1], swapped[0]

	_, err := s.ApplyMinorUpdate(context.Background(), f.ID, &MinorUpdate{Questions: swapped})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot reorder questions on a published form")
	assert.Contains(t, err.Error(), swapped[0].ID)
}

func TestMinorUpdateRejectsTypeChange(t *testing.T) {
	s := newTestService(t)
	f, v := publishedForm(t, s, 2)

	changed := append([]model.Question{}, v.Questions...)
	changed[1].Type = model.QuestionRating

	_, err := s.ApplyMinorUpdate(context.Background(), f.ID, &MinorUpdate{Questions: changed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Cannot change the type of question")
	assert.Contains(t, err.Error(), changed[1].ID)
}

func TestMinorUpdateMutatesPublishedVersionInPlace(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	f, v := publishedForm(t, s, 2)

	edited := append([]model.Question{}, v.Questions...)
	edited[0].Title = "Reworded question"
	title := "Survey v1.1"

	got, err := s.ApplyMinorUpdate(ctx, f.ID, &MinorUpdate{Title: &title, Questions: edited})
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID, "no new version may be created")

	stored, err := s.Store().GetVersion(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reworded question", stored.Questions[0].Title)
	assert.Equal(t, "Survey v1.1", stored.Title)
	assert.Equal(t, model.StatusPublished, stored.Status)
}

func TestMinorUpdateWithOpenDraftSkipsGuard(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	f, _ := publishedForm(t, s, 2)

	// Open a draft; structural edits are allowed there.
	form, err := s.Store().GetForm(ctx, f.ID)
	require.NoError(t, err)
	_, err = s.SaveDraft(ctx, form, "Survey", "", nil, nil)
	require.NoError(t, err)

	got, err := s.ApplyMinorUpdate(ctx, f.ID, &MinorUpdate{
		Questions: []model.Question{{
			ID: "new", Type: model.QuestionDate, Title: "When?",
			Display:  model.Display{InputType: model.InputDate},
			Behavior: model.BehaviorAutoAnswer,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, got.Status)
	assert.Len(t, got.Questions, 1)
}

func TestEffectivePrefersPublished(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	f, v := publishedForm(t, s, 1)

	form, err := s.Store().GetForm(ctx, f.ID)
	require.NoError(t, err)
	_, err = s.SaveDraft(ctx, form, "Draft title", "", nil, nil)
	require.NoError(t, err)

	_, eff, err := s.Effective(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, eff.ID)
	assert.Equal(t, model.StatusPublished, eff.Status)
}

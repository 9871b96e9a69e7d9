package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/store"
)

// GuardError rejects a minor update that would change the structure of
// a published form. The message names the specific violation.
type GuardError struct {
	Message string
}

func (e *GuardError) Error() string {
	return e.Message
}

// MinorUpdate is a partial, content-only update applied to a form whose
// only active version is published.
type MinorUpdate struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Questions   []model.Question `json:"questions,omitempty"`
	Settings    map[string]any   `json:"settings,omitempty"`
}

// ValidateFrozen checks a replacement question list against the
// published one: count, per-position id and per-position question type
// are immutable.
func ValidateFrozen(current, incoming []model.Question) error {
	if len(incoming) != len(current) {
		return &GuardError{Message: "Cannot add or remove questions on a published form."}
	}
	currentIDs := make(map[string]int, len(current))
	for i, q := range current {
		currentIDs[q.ID] = i
	}
	for i, q := range incoming {
		cur := current[i]
		if q.ID != cur.ID {
			if _, exists := currentIDs[q.ID]; exists {
				return &GuardError{Message: fmt.Sprintf("Cannot reorder questions on a published form (question %q moved).", q.ID)}
			}
			return &GuardError{Message: fmt.Sprintf("Cannot replace question %q on a published form.", cur.ID)}
		}
		if q.Type != cur.Type {
			return &GuardError{Message: fmt.Sprintf("Cannot change the type of question %q on a published form.", q.ID)}
		}
	}
	return nil
}

// ApplyMinorUpdate validates upd against the published version and, if
// structurally sound, mutates the published version in place without
// creating a new version. It only activates when the form has no open
// draft; forms with a draft route edits through the draft instead.
func (s *Service) ApplyMinorUpdate(ctx context.Context, formID string, upd *MinorUpdate) (*model.FormVersion, error) {
	f, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	target, frozen, err := s.minorUpdateTarget(ctx, f)
	if err != nil {
		return nil, err
	}

	if upd.Questions != nil {
		if frozen {
			if err := ValidateFrozen(target.Questions, upd.Questions); err != nil {
				return nil, err
			}
		}
		repaired := make([]model.Question, len(upd.Questions))
		for i := range upd.Questions {
			repaired[i] = *model.Repair(&upd.Questions[i])
		}
		target.Questions = repaired
	}
	if upd.Title != nil {
		target.Title = *upd.Title
	}
	if upd.Description != nil {
		target.Description = *upd.Description
	}
	if upd.Settings != nil {
		target.Settings = upd.Settings
	}

	if err := s.store.SaveVersion(ctx, target); err != nil {
		return nil, err
	}
	if upd.Title != nil || upd.Description != nil {
		f.Title = target.Title
		f.Description = target.Description
		if err := s.store.UpdateForm(ctx, f); err != nil {
			return nil, err
		}
	}
	s.log.Info("minor update applied",
		zap.String("form_id", formID),
		zap.String("version_id", target.ID),
		zap.Bool("frozen", frozen))
	return target, nil
}

// minorUpdateTarget picks the version a PATCH lands on. With an open
// draft the draft absorbs the edit unchecked; with only a published
// version the edit is frozen-guarded and applied there.
func (s *Service) minorUpdateTarget(ctx context.Context, f *model.Form) (*model.FormVersion, bool, error) {
	if f.DraftVersionID != "" {
		v, err := s.store.GetVersion(ctx, f.DraftVersionID)
		if err == nil {
			return v, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
	}
	if f.PublishedVersionID == "" {
		return nil, false, store.ErrNotFound
	}
	v, err := s.store.GetVersion(ctx, f.PublishedVersionID)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

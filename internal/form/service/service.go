// Package service exposes form read/write operations on top of the
// store, including the guard that keeps published forms structurally
// frozen.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formweaver/formweaver/internal/common/logger"
	"github.com/formweaver/formweaver/internal/form/model"
	"github.com/formweaver/formweaver/internal/form/store"
)

// Service wraps the store with form-level semantics.
type Service struct {
	store *store.Store
	log   *logger.Logger
}

// New creates a form service.
func New(st *store.Store, log *logger.Logger) *Service {
	return &Service{store: st, log: log.WithFields(zap.String("component", "form-service"))}
}

// Store exposes the underlying store for collaborators that need raw
// access (tool executors, history).
func (s *Service) Store() *store.Store {
	return s.store
}

// Effective returns the form plus the version a reader should see:
// published when present, otherwise the draft.
func (s *Service) Effective(ctx context.Context, formID string) (*model.Form, *model.FormVersion, error) {
	f, err := s.store.GetForm(ctx, formID)
	if err != nil {
		return nil, nil, err
	}
	if f.PublishedVersionID != "" {
		v, err := s.store.GetVersion(ctx, f.PublishedVersionID)
		if err == nil {
			return f, v, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
	}
	if f.DraftVersionID == "" {
		return f, nil, nil
	}
	v, err := s.store.GetVersion(ctx, f.DraftVersionID)
	if errors.Is(err, store.ErrNotFound) {
		return f, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return f, v, nil
}

// EnsureForm returns the form, creating it (without any version) on
// first use of a new session id.
func (s *Service) EnsureForm(ctx context.Context, ownerID, formID string) (*model.Form, error) {
	f, err := s.store.GetForm(ctx, formID)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	f = &model.Form{ID: formID}
	if err := s.store.CreateForm(ctx, ownerID, f); err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	s.log.Info("form created", zap.String("form_id", formID), zap.String("owner_id", ownerID))
	return f, nil
}

// SaveDraft writes the draft version content, creating the version row
// and draft pointer on first write.
func (s *Service) SaveDraft(ctx context.Context, f *model.Form, title, description string, questions []model.Question, settings map[string]any) (*model.FormVersion, error) {
	if f.DraftVersionID != "" {
		v, err := s.store.GetVersion(ctx, f.DraftVersionID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if v != nil {
			v.Title = title
			v.Description = description
			v.Questions = questions
			v.Settings = settings
			if err := s.store.SaveVersion(ctx, v); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	v := &model.FormVersion{
		ID:          uuid.New().String(),
		FormID:      f.ID,
		Status:      model.StatusDraft,
		Title:       title,
		Description: description,
		Questions:   questions,
		Settings:    settings,
	}
	if err := s.store.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	f.Title = title
	f.Description = description
	f.DraftVersionID = v.ID
	if err := s.store.UpdateForm(ctx, f); err != nil {
		return nil, err
	}
	return v, nil
}

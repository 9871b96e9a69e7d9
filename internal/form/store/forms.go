package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/formweaver/formweaver/internal/form/model"
)

type formRow struct {
	ID                 string    `db:"id"`
	OwnerID            string    `db:"owner_id"`
	Title              string    `db:"title"`
	Description        string    `db:"description"`
	Settings           string    `db:"settings"`
	DraftVersionID     string    `db:"draft_version_id"`
	PublishedVersionID string    `db:"published_version_id"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r *formRow) toModel() (*model.Form, error) {
	f := &model.Form{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		DraftVersionID:     r.DraftVersionID,
		PublishedVersionID: r.PublishedVersionID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.Settings != "" && r.Settings != "{}" {
		if err := sonic.UnmarshalString(r.Settings, &f.Settings); err != nil {
			return nil, fmt.Errorf("decode form settings: %w", err)
		}
	}
	return f, nil
}

// CreateForm inserts a new form owned by ownerID.
func (s *Store) CreateForm(ctx context.Context, ownerID string, f *model.Form) error {
	settings, err := sonic.MarshalString(orEmptyMap(f.Settings))
	if err != nil {
		return fmt.Errorf("encode form settings: %w", err)
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forms (id, owner_id, title, description, settings, draft_version_id, published_version_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, ownerID, f.Title, f.Description, settings, f.DraftVersionID, f.PublishedVersionID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

// GetForm fetches a form by id.
func (s *Store) GetForm(ctx context.Context, id string) (*model.Form, error) {
	var row formRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM forms WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

// FormOwner returns the owner id for a form.
func (s *Store) FormOwner(ctx context.Context, id string) (string, error) {
	var owner string
	if err := s.db.GetContext(ctx, &owner, `SELECT owner_id FROM forms WHERE id = ?`, id); err != nil {
		return "", notFound(err)
	}
	return owner, nil
}

// UpdateForm overwrites a form's content fields and version pointers.
// Last write wins.
func (s *Store) UpdateForm(ctx context.Context, f *model.Form) error {
	settings, err := sonic.MarshalString(orEmptyMap(f.Settings))
	if err != nil {
		return fmt.Errorf("encode form settings: %w", err)
	}
	f.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE forms
		SET title = ?, description = ?, settings = ?, draft_version_id = ?, published_version_id = ?, updated_at = ?
		WHERE id = ?`,
		f.Title, f.Description, settings, f.DraftVersionID, f.PublishedVersionID, f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"github.com/formweaver/formweaver/internal/form/model"
)

type versionRow struct {
	ID          string    `db:"id"`
	FormID      string    `db:"form_id"`
	Status      string    `db:"status"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Questions   string    `db:"questions"`
	Settings    string    `db:"settings"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *versionRow) toModel() (*model.FormVersion, error) {
	v := &model.FormVersion{
		ID:          r.ID,
		FormID:      r.FormID,
		Status:      model.VersionStatus(r.Status),
		Title:       r.Title,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := sonic.UnmarshalString(r.Questions, &v.Questions); err != nil {
		return nil, fmt.Errorf("decode version questions: %w", err)
	}
	if r.Settings != "" && r.Settings != "{}" {
		if err := sonic.UnmarshalString(r.Settings, &v.Settings); err != nil {
			return nil, fmt.Errorf("decode version settings: %w", err)
		}
	}
	return v, nil
}

func encodeVersion(v *model.FormVersion) (questions, settings string, err error) {
	qs := v.Questions
	if qs == nil {
		qs = []model.Question{}
	}
	questions, err = sonic.MarshalString(qs)
	if err != nil {
		return "", "", fmt.Errorf("encode version questions: %w", err)
	}
	settings, err = sonic.MarshalString(orEmptyMap(v.Settings))
	if err != nil {
		return "", "", fmt.Errorf("encode version settings: %w", err)
	}
	return questions, settings, nil
}

// CreateVersion inserts a new form version.
func (s *Store) CreateVersion(ctx context.Context, v *model.FormVersion) error {
	questions, settings, err := encodeVersion(v)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO form_versions (id, form_id, status, title, description, questions, settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FormID, string(v.Status), v.Title, v.Description, questions, settings, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert form version: %w", err)
	}
	return nil
}

// GetVersion fetches a version by id.
func (s *Store) GetVersion(ctx context.Context, id string) (*model.FormVersion, error) {
	var row versionRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM form_versions WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

// GetVersionByStatus fetches a form's draft or published version.
func (s *Store) GetVersionByStatus(ctx context.Context, formID string, status model.VersionStatus) (*model.FormVersion, error) {
	var row versionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT * FROM form_versions WHERE form_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		formID, string(status))
	if err != nil {
		return nil, notFound(err)
	}
	return row.toModel()
}

// SaveVersion overwrites a version's content. Last write wins.
func (s *Store) SaveVersion(ctx context.Context, v *model.FormVersion) error {
	questions, settings, err := encodeVersion(v)
	if err != nil {
		return err
	}
	v.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE form_versions
		SET status = ?, title = ?, description = ?, questions = ?, settings = ?, updated_at = ?
		WHERE id = ?`,
		string(v.Status), v.Title, v.Description, questions, settings, v.UpdatedAt, v.ID)
	if err != nil {
		return fmt.Errorf("update form version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message roles mirror the chat roles the driving model understands.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a form's conversation thread.
type Message struct {
	ID        string    `db:"id" json:"id"`
	FormID    string    `db:"form_id" json:"formId"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// AppendMessage persists one message at the end of the form's thread.
func (s *Store) AppendMessage(ctx context.Context, formID, role, content string) (*Message, error) {
	m := &Message{
		ID:        uuid.New().String(),
		FormID:    formID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, form_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.FormID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns the form's thread in insertion order.
func (s *Store) ListMessages(ctx context.Context, formID string) ([]Message, error) {
	var out []Message
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM messages WHERE form_id = ? ORDER BY created_at ASC, id ASC`, formID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return out, nil
}

package model

import "time"

// VersionStatus is the lifecycle state of a FormVersion.
type VersionStatus string

const (
	StatusDraft     VersionStatus = "draft"
	StatusPublished VersionStatus = "published"
)

// Form is the root aggregate. A form has at most one draft version and
// at most one published version at a time.
type Form struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description,omitempty"`
	Settings           map[string]any `json:"settings,omitempty"`
	DraftVersionID     string         `json:"draftVersionId,omitempty"`
	PublishedVersionID string         `json:"publishedVersionId,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// FormVersion is one immutable-by-id snapshot of a form's content. A
// published version is structurally frozen: question count, per-position
// id and per-position question type may not change.
type FormVersion struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Status      VersionStatus  `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Questions   []Question     `json:"questions"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// Snapshot is the agent-owned view of a form carried inside
// state_snapshot events. It replaces, never merges into, the consumer's
// derived state.
type Snapshot struct {
	FormID      string         `json:"formId"`
	VersionID   string         `json:"versionId"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Questions   []Question     `json:"questions"`
	Settings    map[string]any `json:"settings,omitempty"`
}

// SnapshotOf builds a Snapshot from a form version.
func SnapshotOf(v *FormVersion) *Snapshot {
	if v == nil {
		return nil
	}
	return &Snapshot{
		FormID:      v.FormID,
		VersionID:   v.ID,
		Title:       v.Title,
		Description: v.Description,
		Questions:   v.Questions,
		Settings:    v.Settings,
	}
}

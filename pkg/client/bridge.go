package client

import (
	"github.com/bytedance/sonic"

	"github.com/formweaver/formweaver/internal/form/model"
)

// EditableForm is the user-editable projection the bridge writes into.
// The published pointer belongs to the publish flow; the bridge never
// touches it.
type EditableForm struct {
	FormID             string
	DraftVersionID     string
	PublishedVersionID string
	Title              string
	Description        string
	Questions          []model.Question
	Settings           map[string]any
}

// Bridge merges agent-produced snapshots into an editable form. A
// change signature over the fields the agent owns suppresses redundant
// writes, so user edits to anything else survive a replayed snapshot.
type Bridge struct {
	target        *EditableForm
	lastSignature string
}

// NewBridge binds a synchronizer to its target form.
func NewBridge(target *EditableForm) *Bridge {
	return &Bridge{target: target}
}

// Sync applies a snapshot to the target. It reports whether anything
// was written; an unchanged signature skips the write entirely.
func (b *Bridge) Sync(snap *model.Snapshot) bool {
	if snap == nil || b.target == nil {
		return false
	}
	sig := signature(snap)
	if sig != "" && sig == b.lastSignature {
		return false
	}
	b.lastSignature = sig

	b.target.FormID = snap.FormID
	b.target.Title = snap.Title
	b.target.Description = snap.Description
	b.target.Questions = snap.Questions
	b.target.Settings = snap.Settings
	b.target.DraftVersionID = snap.VersionID
	return true
}

// signature covers exactly the fields the agent owns.
func signature(snap *model.Snapshot) string {
	questions, err := sonic.MarshalString(snap.Questions)
	if err != nil {
		return ""
	}
	settings, err := sonic.MarshalString(snap.Settings)
	if err != nil {
		return ""
	}
	parts, err := sonic.MarshalString([]string{
		snap.VersionID, questions, snap.Title, snap.Description, settings,
	})
	if err != nil {
		return ""
	}
	return parts
}

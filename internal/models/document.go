// Package models defines the domain types for Laguz.
package models

import (
	"strings"
	"time"
)

// DocType distinguishes the two kinds of entities in the store.
type DocType string

const (
	DocTypeNote   DocType = "note"
	DocTypeFolder DocType = "folder"
)

// Lifecycle is the explicit entity lifecycle state. Purged documents are
// removed from the documents table and leave only a tombstone behind.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleTrashed Lifecycle = "trashed"
	LifecyclePurged  Lifecycle = "purged"
)

// Status is a workflow state shared by documents and task rows.
type Status string

const (
	StatusNone  Status = ""
	StatusTodo  Status = "todo"
	StatusDoing Status = "doing"
	StatusDone  Status = "done"
)

// Priority levels, low to high.
type Priority string

const (
	PriorityNone Priority = ""
	PriorityLow  Priority = "low"
	PriorityMed  Priority = "med"
	PriorityHigh Priority = "high"
)

// Properties is the typed, schema-governed property record on a document.
// Extra carries user-defined string properties; reserved keys are stripped
// during Normalize so they cannot shadow the typed fields.
type Properties struct {
	Status    Status            `json:"status,omitempty"`
	Priority  Priority          `json:"priority,omitempty"`
	Due       string            `json:"due,omitempty"`       // YYYY-MM-DD
	Scheduled string            `json:"scheduled,omitempty"` // YYYY-MM-DD
	Favorite  bool              `json:"favorite,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// reservedPropKeys are the Extra keys that collide with typed fields.
// Equal reports whether two property records carry the same values,
// including the Extra map.
func (p Properties) Equal(o Properties) bool {
	if p.Status != o.Status || p.Priority != o.Priority ||
		p.Due != o.Due || p.Scheduled != o.Scheduled || p.Favorite != o.Favorite {
		return false
	}
	if len(p.Extra) != len(o.Extra) {
		return false
	}
	for k, v := range p.Extra {
		if o.Extra[k] != v {
			return false
		}
	}
	return true
}

var reservedPropKeys = map[string]struct{}{
	"status": {}, "priority": {}, "due": {}, "scheduled": {}, "favorite": {},
}

// Normalize canonicalizes a property record at the write boundary:
// enum values are lowercased, unknown enum values and malformed day strings
// are dropped, and reserved Extra keys are removed.
func (p Properties) Normalize() Properties {
	switch Status(strings.ToLower(string(p.Status))) {
	case StatusTodo, StatusDoing, StatusDone:
		p.Status = Status(strings.ToLower(string(p.Status)))
	default:
		p.Status = StatusNone
	}
	switch Priority(strings.ToLower(string(p.Priority))) {
	case PriorityLow, PriorityMed, PriorityHigh:
		p.Priority = Priority(strings.ToLower(string(p.Priority)))
	default:
		p.Priority = PriorityNone
	}
	if !ValidDay(p.Due) {
		p.Due = ""
	}
	if !ValidDay(p.Scheduled) {
		p.Scheduled = ""
	}
	if len(p.Extra) > 0 {
		clean := make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			k = strings.TrimSpace(strings.ToLower(k))
			if k == "" {
				continue
			}
			if _, reserved := reservedPropKeys[k]; reserved {
				continue
			}
			clean[k] = v
		}
		p.Extra = clean
	}
	return p
}

// ValidDay reports whether s is a YYYY-MM-DD day string. Empty is not valid;
// callers treat empty as "absent".
func ValidDay(s string) bool {
	if s == "" {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// BlockKind identifies the kind of a content block.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockChecklist BlockKind = "checklist"
)

// Block is one ordered content block of a note. Checklist blocks carry
// their items; other kinds carry only text.
type Block struct {
	ID    string     `json:"id"`
	Kind  BlockKind  `json:"kind"`
	Text  string     `json:"text,omitempty"`
	Items []ListItem `json:"items,omitempty"`
}

// ListItem is a single actionable entry inside a checklist block.
type ListItem struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Checked      bool     `json:"checked,omitempty"`
	Priority     Priority `json:"priority,omitempty"`
	DueDay       string   `json:"due,omitempty"`
	ScheduledDay string   `json:"scheduled,omitempty"`
	NextAction   bool     `json:"next,omitempty"`
}

// Document represents a note or folder record in the store.
type Document struct {
	ID        string     `json:"id"`
	Type      DocType    `json:"type"`
	ParentID  string     `json:"parent_id,omitempty"`
	Title     string     `json:"title"`
	Blocks    []Block    `json:"blocks,omitempty"`
	Tags      []string   `json:"tags,omitempty"`
	Props     Properties `json:"props"`
	Revision  int64      `json:"revision"`
	Lifecycle Lifecycle  `json:"lifecycle"`
	VaultPath string     `json:"vault_path,omitempty"`
	Checksum  string     `json:"checksum,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Indexable reports whether the document participates in task extraction.
func (d *Document) Indexable() bool {
	return d.Type == DocTypeNote && d.Lifecycle == LifecycleActive
}

// BodyText flattens all block text (including checklist item text) into a
// single newline-joined string for substring search.
func (d *Document) BodyText() string {
	var b strings.Builder
	for _, blk := range d.Blocks {
		if blk.Text != "" {
			b.WriteString(blk.Text)
			b.WriteByte('\n')
		}
		for _, it := range blk.Items {
			b.WriteString(it.Text)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// HasTag reports whether the document carries tag (case-insensitive).
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Tombstone records a purged document for future merge/sync use.
type Tombstone struct {
	ID       string    `json:"id"`
	Revision int64     `json:"revision"`
	PurgedAt time.Time `json:"purged_at"`
}

package models

import "time"

// TaskRow is a derived record representing one actionable item extracted
// from a note's checklist blocks. Its ID is the composite
// "noteID:blockID:itemID". The Fingerprint covers the semantically relevant
// fields (never the timestamps); an unchanged fingerprint means no write.
type TaskRow struct {
	ID           string    `json:"id"`
	NoteID       string    `json:"note_id"`
	BlockID      string    `json:"block_id"`
	ItemID       string    `json:"item_id"`
	Text         string    `json:"text"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority,omitempty"`
	ScheduledDay string    `json:"scheduled,omitempty"`
	DueDay       string    `json:"due,omitempty"`
	NextAction   bool      `json:"next,omitempty"`
	OrderKey     int       `json:"order_key"`
	ProjectID    string    `json:"project_id,omitempty"`
	Fingerprint  string    `json:"fingerprint"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TaskID builds the composite task row id.
func TaskID(noteID, blockID, itemID string) string {
	return noteID + ":" + blockID + ":" + itemID
}

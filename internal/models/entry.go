// internal/models/entry.go
package models

import (
	"strconv"
	"time"
)

type EntryLog struct {
	ID         int64     `json:"id"`
	MemberID   int64     `json:"memberId"`
	AccessKind string    `json:"accessKind"`
	Area       string    `json:"area"`
	Device     string    `json:"device"`
	Notes      string    `json:"notes"`
	Timestamp  time.Time `json:"timestamp"`
}

// EntryEvent is one entry_logs row as pushed on the entry channel
// (row_to_json keys).
type EntryEvent struct {
	ID         int64     `json:"id"`
	MemberID   int64     `json:"member_id"`
	AccessKind string    `json:"access_kind"`
	Area       string    `json:"area"`
	Device     string    `json:"device"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`

	Channel    string    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

// SubjectID is the dedupe key: the entry-log id.
func (e EntryEvent) SubjectID() string {
	return strconv.FormatInt(e.ID, 10)
}

package device

import (
	"time"

	"github.com/google/uuid"
)

// MaxLogEntries caps the rolling action log.
const MaxLogEntries = 100

// Entry is one action log line.
type Entry struct {
	ID        string `json:"id"`
	Module    Module `json:"module"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
	Data      string `json:"data"`
}

// ActionLog keeps the newest entries first. It is not safe for concurrent
// use; Device guards it.
type ActionLog struct {
	limit   int
	entries []Entry
	now     func() time.Time
}

func NewActionLog(limit int) *ActionLog {
	if limit <= 0 {
		limit = MaxLogEntries
	}
	return &ActionLog{limit: limit, now: time.Now}
}

// Add prepends an entry and drops the oldest beyond the cap.
func (l *ActionLog) Add(module Module, action, data string) Entry {
	e := Entry{
		ID:        uuid.NewString()[:8],
		Module:    module,
		Action:    action,
		Timestamp: l.now().Format("15:04:05"),
		Data:      data,
	}
	l.entries = append(l.entries, Entry{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = e
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	return e
}

// Entries returns a copy, newest first.
func (l *ActionLog) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

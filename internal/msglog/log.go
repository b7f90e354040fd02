// Package msglog is the append-only audit log of raw inbound chat events.
// Game logic never reads it; it exists for debugging and is persisted with
// the other snapshots.
package msglog

import (
	"sync"
	"time"
)

// Entry is one raw inbound event.
type Entry struct {
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int // oldest entries dropped beyond this; 0 means unbounded
}

func New(limit int) *Log {
	return &Log{limit: limit}
}

func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot copies the log for persistence.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Restore replaces the log contents with a snapshot.
func (l *Log) Restore(entries []Entry) {
	l.mu.Lock()
	l.entries = append([]Entry(nil), entries...)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = l.entries[len(l.entries)-l.limit:]
	}
	l.mu.Unlock()
}

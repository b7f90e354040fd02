// Package registry maps a chat to its at-most-one live match session. The
// registry exclusively owns all sessions; it is created at startup and
// injected wherever needed, never an ambient singleton.
package registry

import (
	"errors"
	"sync"

	"github.com/chesschat/chesschat-bot/internal/engine"
	"github.com/chesschat/chesschat-bot/internal/match"
)

var (
	ErrAlreadyActive   = errors.New("a chess match is already going on in this chat")
	ErrNoActiveSession = errors.New("no chess match is going on in this chat")
)

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*match.Session
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*match.Session)}
}

// Create makes a new session for chatID and seats the creator on the
// requested color. Fails with ErrAlreadyActive while a live session exists.
func (r *Registry) Create(chatID, creatorID, creatorName string, color engine.Color) (*match.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[chatID]; ok {
		return nil, ErrAlreadyActive
	}
	s := match.New(chatID)
	if err := s.JoinAs(color, creatorID, creatorName); err != nil {
		return nil, err
	}
	r.sessions[chatID] = s
	return s, nil
}

// Get returns the live session for chatID, or nil.
func (r *Registry) Get(chatID string) *match.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[chatID]
}

// Terminate removes the session and marks it concluded, so a lingering
// terminated session can never shadow a new create. Safe to call more than
// once for the same chat.
func (r *Registry) Terminate(chatID string) {
	r.mu.Lock()
	s := r.sessions[chatID]
	delete(r.sessions, chatID)
	r.mu.Unlock()
	if s != nil {
		s.Mu.Lock()
		s.Terminate()
		s.Mu.Unlock()
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot captures every live session for persistence. A session concluded
// but not yet removed is skipped rather than persisted as a dead match.
func (r *Registry) Snapshot() []match.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]match.Record, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.Mu.Lock()
		if s.Status != match.StatusTerminated {
			out = append(out, s.Snapshot())
		}
		s.Mu.Unlock()
	}
	return out
}

// Restore rebuilds the registry from snapshot records, replacing current
// contents. Records that fail to replay are skipped and reported.
func (r *Registry) Restore(records []match.Record) (skipped []error) {
	next := make(map[string]*match.Session, len(records))
	for _, rec := range records {
		s, err := match.FromRecord(rec)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		next[rec.ChatID] = s
	}
	r.mu.Lock()
	r.sessions = next
	r.mu.Unlock()
	return skipped
}

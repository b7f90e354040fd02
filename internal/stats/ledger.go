// Package stats keeps the durable per-player win/draw/loss counters. The
// ledger mutates exactly once per concluded match; callers enforce that by
// terminating the session first and recording the outcome in the same
// logical step.
package stats

import (
	"sync"

	"github.com/chesschat/chesschat-bot/internal/match"
)

// Line is one player's cumulative record.
type Line struct {
	Wins   int `json:"wins"`
	Draws  int `json:"draws"`
	Losses int `json:"losses"`
}

type Ledger struct {
	mu      sync.RWMutex
	players map[string]Line
}

func NewLedger() *Ledger {
	return &Ledger{players: make(map[string]Line)}
}

// RecordOutcome attributes exactly one outcome to each participant: a
// win/loss pair or a draw for both. Solo play (same identity on both seats)
// still records both attributions, matching one outcome per seat.
func (l *Ledger) RecordOutcome(whiteID, blackID string, outcome match.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	white := l.players[whiteID]
	switch outcome {
	case match.OutcomeWhiteWins:
		white.Wins++
		l.players[whiteID] = white
		black := l.players[blackID]
		black.Losses++
		l.players[blackID] = black
	case match.OutcomeBlackWins:
		white.Losses++
		l.players[whiteID] = white
		black := l.players[blackID]
		black.Wins++
		l.players[blackID] = black
	case match.OutcomeDraw:
		white.Draws++
		l.players[whiteID] = white
		black := l.players[blackID]
		black.Draws++
		l.players[blackID] = black
	}
}

// StatsOf returns the player's line, zeroes for unseen identities, and
// whether the player has any completed games.
func (l *Ledger) StatsOf(id string) (Line, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	line, ok := l.players[id]
	return line, ok
}

// Snapshot copies the ledger for persistence.
func (l *Ledger) Snapshot() map[string]Line {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]Line, len(l.players))
	for k, v := range l.players {
		out[k] = v
	}
	return out
}

// Restore replaces the ledger contents with a snapshot.
func (l *Ledger) Restore(players map[string]Line) {
	next := make(map[string]Line, len(players))
	for k, v := range players {
		next[k] = v
	}
	l.mu.Lock()
	l.players = next
	l.mu.Unlock()
}

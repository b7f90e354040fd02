package match

import (
	"fmt"
	"time"

	"github.com/chesschat/chesschat-bot/internal/engine"
)

// Record is the serializable form of a session, stored in snapshots. The
// board is captured as its UCI move list and replayed on restore.
type Record struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	WhiteID   string    `json:"white_id,omitempty"`
	WhiteName string    `json:"white_name,omitempty"`
	BlackID   string    `json:"black_id,omitempty"`
	BlackName string    `json:"black_name,omitempty"`
	Solo      bool      `json:"solo,omitempty"`
	Status    Status    `json:"status"`
	DrawOffer string    `json:"draw_offer,omitempty"`
	MovesUCI  []string  `json:"moves_uci"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot captures the session. Caller holds Mu.
func (s *Session) Snapshot() Record {
	return Record{
		ID:        s.ID,
		ChatID:    s.ChatID,
		WhiteID:   s.WhiteID,
		WhiteName: s.WhiteName,
		BlackID:   s.BlackID,
		BlackName: s.BlackName,
		Solo:      s.Solo,
		Status:    s.Status,
		DrawOffer: s.drawOffer,
		MovesUCI:  s.board.MovesUCI(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// FromRecord rebuilds a live session from a snapshot record.
func FromRecord(r Record) (*Session, error) {
	board, err := engine.Restore(r.MovesUCI)
	if err != nil {
		return nil, fmt.Errorf("restore match %s: %w", r.ID, err)
	}
	return &Session{
		ID:        r.ID,
		ChatID:    r.ChatID,
		WhiteID:   r.WhiteID,
		WhiteName: r.WhiteName,
		BlackID:   r.BlackID,
		BlackName: r.BlackName,
		Solo:      r.Solo,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		board:     board,
		drawOffer: r.DrawOffer,
	}, nil
}

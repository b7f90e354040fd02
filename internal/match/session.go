// Package match holds the state of one chess match bound to one chat:
// seats, display names, the board handle, and the draw-offer protocol.
package match

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chesschat/chesschat-bot/internal/engine"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusWaiting    Status = "WAITING"    // one seat filled
	StatusActive     Status = "ACTIVE"     // both seats filled, moves accepted
	StatusTerminated Status = "TERMINATED" // concluded; removed from the registry
)

// Outcome is the terminal result attributed to the stats ledger.
type Outcome string

const (
	OutcomeWhiteWins Outcome = "white"
	OutcomeBlackWins Outcome = "black"
	OutcomeDraw      Outcome = "draw"
)

var (
	ErrSessionFull      = errors.New("both seats are already taken")
	ErrNotParticipant   = errors.New("sender is not part of this match")
	ErrNotYourTurn      = errors.New("it is not the sender's turn")
	ErrNoDrawOffer      = errors.New("there is no draw offer to reject")
	ErrDrawNotClaimable = errors.New("position does not warrant a draw claim")
	ErrNotActive        = errors.New("match is not active")
)

// Session is one match. Mu guards every field; the dispatcher holds it across
// a full command (precondition checks plus the mutation they justify), the
// same way handlers lock a game for a request.
type Session struct {
	Mu sync.Mutex

	ID     string // match id, stable across snapshots
	ChatID string

	WhiteID   string
	WhiteName string
	BlackID   string
	BlackName string

	// Solo is fixed at the second join when both seats end up with the same
	// identity. All color-of-identity queries branch on it exactly once.
	Solo bool

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	board     *engine.Board
	drawOffer string // identity holding the outstanding offer, "" if none
}

// New creates an empty session for a chat. The creator joins separately.
func New(chatID string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
		board:     engine.NewBoard(),
	}
}

// JoinAs seats a player on an explicit color. Used by create; fails once the
// seat is taken.
func (s *Session) JoinAs(color engine.Color, id, name string) error {
	switch color {
	case engine.White:
		if s.WhiteID != "" {
			return ErrSessionFull
		}
		s.WhiteID, s.WhiteName = id, name
	default:
		if s.BlackID != "" {
			return ErrSessionFull
		}
		s.BlackID, s.BlackName = id, name
	}
	s.afterJoin()
	return nil
}

// Join seats a player on the first free color, white before black.
func (s *Session) Join(id, name string) error {
	if s.WhiteID == "" {
		s.WhiteID, s.WhiteName = id, name
	} else if s.BlackID == "" {
		s.BlackID, s.BlackName = id, name
	} else {
		return ErrSessionFull
	}
	s.afterJoin()
	return nil
}

func (s *Session) afterJoin() {
	s.UpdatedAt = time.Now()
	if s.WhiteID != "" && s.BlackID != "" {
		s.Solo = s.WhiteID == s.BlackID
		s.Status = StatusActive
	}
}

// IsParticipant reports whether id occupies a seat.
func (s *Session) IsParticipant(id string) bool {
	return id != "" && (id == s.WhiteID || id == s.BlackID)
}

// CurrentTurnID resolves turn ownership from the board's side to move, never
// from who acted last.
func (s *Session) CurrentTurnID() string {
	if s.board.SideToMove() == engine.White {
		return s.WhiteID
	}
	return s.BlackID
}

// ColorOf returns the color id is playing. In solo play both seats share one
// identity, so the board's side to move decides.
func (s *Session) ColorOf(id string) engine.Color {
	if s.Solo {
		return s.board.SideToMove()
	}
	if id == s.WhiteID {
		return engine.White
	}
	return engine.Black
}

func (s *Session) OpponentColorOf(id string) engine.Color {
	return s.ColorOf(id).Other()
}

// OpponentID returns the identity seated opposite id, by turn in solo play.
func (s *Session) OpponentID(id string) string {
	if s.Solo {
		if s.board.SideToMove() == engine.White {
			return s.BlackID
		}
		return s.WhiteID
	}
	if id == s.WhiteID {
		return s.BlackID
	}
	return s.WhiteID
}

// NameOf returns the display name for a seated identity, "" otherwise.
func (s *Session) NameOf(id string) string {
	switch id {
	case s.WhiteID:
		return s.WhiteName
	case s.BlackID:
		return s.BlackName
	}
	return ""
}

// ApplyMove parses and applies notation via the engine. A successful move
// cancels any outstanding draw offer; offerCancelled tells the caller to
// announce it. Failed moves leave all state untouched.
func (s *Session) ApplyMove(text string) (res engine.Result, offerCancelled bool, err error) {
	if s.Status != StatusActive {
		return engine.ResultContinue, false, ErrNotActive
	}
	res, err = s.board.Push(text)
	if err != nil {
		return engine.ResultContinue, false, err
	}
	if s.drawOffer != "" {
		s.drawOffer = ""
		offerCancelled = true
	}
	s.UpdatedAt = time.Now()
	return res, offerCancelled, nil
}

// OfferDraw records id as the offer holder. Turn ownership is the
// dispatcher's precondition, not checked here.
func (s *Session) OfferDraw(id string) {
	s.drawOffer = id
	s.UpdatedAt = time.Now()
}

// RejectDraw clears the outstanding offer unconditionally.
func (s *Session) RejectDraw() {
	s.drawOffer = ""
	s.UpdatedAt = time.Now()
}

// DrawOfferBy returns the identity holding the outstanding offer, "" if none.
func (s *Session) DrawOfferBy() string { return s.drawOffer }

// HasOfferFor reports whether id's opponent has an outstanding offer
// addressed to id.
func (s *Session) HasOfferFor(id string) bool {
	return s.drawOffer != "" && s.drawOffer == s.OpponentID(id)
}

// CanClaimDraw reports whether id may claim a draw: a rules-based claim
// (fifty-move / repetition) or an offer addressed to id.
func (s *Session) CanClaimDraw(id string) bool {
	return s.board.CanClaimDraw() || s.HasOfferFor(id)
}

// ParseableMove reports whether text decodes to a legal move in the current
// position, without applying it. Bare-notation routing depends on it.
func (s *Session) ParseableMove(text string) bool {
	return s.board.Parseable(text)
}

// Terminate marks the session concluded. No transitions leave this state.
func (s *Session) Terminate() {
	s.Status = StatusTerminated
	s.UpdatedAt = time.Now()
}

// Layout snapshots the position for rendering; safe to use after Mu is
// released since it is a value copy.
func (s *Session) Layout() engine.Layout { return s.board.Layout() }

func (s *Session) MovesUCI() []string { return s.board.MovesUCI() }
func (s *Session) MovesSAN() []string { return s.board.MovesSAN() }
func (s *Session) FEN() string        { return s.board.FEN() }

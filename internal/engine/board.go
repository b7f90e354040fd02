// Package engine adapts the corentings/chess rule engine behind the small
// surface the match layer needs: notation parsing, move application with
// result classification, and draw-claim detection. The board handle is owned
// by exactly one match session and is not safe for concurrent use.
package engine

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// Label returns the display form used in replies ("White"/"Black").
func (c Color) Label() string {
	if c == White {
		return "White"
	}
	return "Black"
}

// Result classifies the position reached by a successful move. The order of
// the checks matters: a checkmate position also reports check, so checkmate
// is tested first.
type Result int

const (
	ResultContinue Result = iota
	ResultCheck
	ResultCheckmate
	ResultStalemate
)

// Layout is the engine-agnostic position description handed to the board
// renderer: FEN piece placement plus the orientation flag.
type Layout struct {
	Placement string // first FEN field, ranks 8..1 separated by '/'
	WhitePOV  bool   // true when the board should be drawn from white's side
}

// ErrInvalidMove covers both unparseable notation and illegal moves; callers
// cannot usefully distinguish the two.
var ErrInvalidMove = errors.New("move is not parseable or not legal")

var (
	notationSAN = nchess.AlgebraicNotation{}
	notationUCI = nchess.UCINotation{}
)

// Board wraps a live game position. Mutations go through Push only.
type Board struct {
	game     *nchess.Game
	movesUCI []string
	movesSAN []string
}

func NewBoard() *Board {
	return &Board{game: nchess.NewGame()}
}

// Restore rebuilds a board by replaying a stored UCI move list from the
// start position.
func Restore(movesUCI []string) (*Board, error) {
	b := NewBoard()
	for i, mv := range movesUCI {
		pos := b.game.Position()
		decoded, err := notationUCI.Decode(pos, strings.ToLower(strings.TrimSpace(mv)))
		if err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
		san := notationSAN.Encode(pos, decoded)
		if err := b.game.Move(decoded, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
		b.movesUCI = append(b.movesUCI, strings.ToLower(notationUCI.Encode(pos, decoded)))
		b.movesSAN = append(b.movesSAN, san)
	}
	return b, nil
}

// decode tries SAN first, then UCI. Zeroes in castling input are normalized
// to the letter O before the SAN attempt ("0-0" → "O-O").
func (b *Board) decode(pos *nchess.Position, text string) (*nchess.Move, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidMove
	}
	if mv, err := notationSAN.Decode(pos, strings.ReplaceAll(text, "0", "O")); err == nil {
		return mv, nil
	}
	if mv, err := notationUCI.Decode(pos, strings.ToLower(text)); err == nil {
		return mv, nil
	}
	return nil, ErrInvalidMove
}

// Parseable reports whether text decodes to a legal move in the current
// position, without applying it.
func (b *Board) Parseable(text string) bool {
	_, err := b.decode(b.game.Position(), text)
	return err == nil
}

// Push parses and applies a move, returning the classification of the
// resulting position. On error the position is unchanged.
func (b *Board) Push(text string) (Result, error) {
	pos := b.game.Position()
	mv, err := b.decode(pos, text)
	if err != nil {
		return ResultContinue, ErrInvalidMove
	}
	san := notationSAN.Encode(pos, mv)
	if err := b.game.Move(mv, nil); err != nil {
		return ResultContinue, ErrInvalidMove
	}
	b.movesUCI = append(b.movesUCI, strings.ToLower(notationUCI.Encode(pos, mv)))
	b.movesSAN = append(b.movesSAN, san)

	// SAN encoding carries the check/mate suffix, which is independent of
	// how the move was entered.
	switch {
	case b.game.Position().Status() == nchess.Checkmate:
		return ResultCheckmate, nil
	case strings.HasSuffix(san, "+"):
		return ResultCheck, nil
	case b.game.Position().Status() == nchess.Stalemate:
		return ResultStalemate, nil
	default:
		return ResultContinue, nil
	}
}

// SideToMove returns the color whose move it is.
func (b *Board) SideToMove() Color {
	if b.game.Position().Turn() == nchess.White {
		return White
	}
	return Black
}

// CanClaimDraw reports whether the rules allow a draw claim in the current
// position (fifty-move rule or threefold repetition).
func (b *Board) CanClaimDraw() bool {
	for _, m := range b.game.EligibleDraws() {
		if m == nchess.FiftyMoveRule || m == nchess.ThreefoldRepetition {
			return true
		}
	}
	return false
}

func (b *Board) FEN() string { return b.game.FEN() }

func (b *Board) MovesUCI() []string {
	return append([]string(nil), b.movesUCI...)
}

func (b *Board) MovesSAN() []string {
	return append([]string(nil), b.movesSAN...)
}

// Layout snapshots the position for rendering, oriented toward the side to
// move.
func (b *Board) Layout() Layout {
	fen := b.game.FEN()
	placement := fen
	if i := strings.IndexByte(fen, ' '); i > 0 {
		placement = fen[:i]
	}
	return Layout{Placement: placement, WhitePOV: b.SideToMove() == White}
}

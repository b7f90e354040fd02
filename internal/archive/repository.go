// Package archive persists concluded matches to Postgres, including a PGN
// transcript. The archive is optional wiring; the bot runs without it and
// failures here never affect live sessions.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/chesschat/chesschat-bot/internal/match"
)

// ArchivedMatch is one concluded match as written to the database.
type ArchivedMatch struct {
	MatchID   string
	ChatID    string
	WhiteID   string
	WhiteName string
	BlackID   string
	BlackName string
	Outcome   match.Outcome
	Method    string // "checkmate" | "stalemate" | "resignation" | "draw"
	MovesUCI  []string
	MovesSAN  []string
	StartedAt time.Time
	EndedAt   time.Time
}

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveMatch upserts one concluded match, keyed by match id.
func (r *Repository) SaveMatch(ctx context.Context, m ArchivedMatch) error {
	if r == nil || r.db == nil {
		return nil
	}

	pgnResult := mapOutcomeToPGN(m.Outcome)
	pgn := buildPGN(m, pgnResult)

	movesUCIRaw, _ := json.Marshal(m.MovesUCI)
	movesSANRaw, _ := json.Marshal(m.MovesSAN)
	duration := m.EndedAt.Sub(m.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	const q = `INSERT INTO chess_matches (
	    match_id, chat_id, white_id, white_name, black_id, black_name,
	    result, result_method, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    chat_id=EXCLUDED.chat_id,
	    white_id=EXCLUDED.white_id,
	    white_name=EXCLUDED.white_name,
	    black_id=EXCLUDED.black_id,
	    black_name=EXCLUDED.black_name,
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		m.MatchID, m.ChatID,
		m.WhiteID, m.WhiteName,
		m.BlackID, m.BlackName,
		string(m.Outcome), strings.TrimSpace(m.Method),
		string(movesUCIRaw), string(movesSANRaw), pgn,
		m.StartedAt, m.EndedAt, duration,
	)
	return err
}

func mapOutcomeToPGN(outcome match.Outcome) string {
	switch outcome {
	case match.OutcomeWhiteWins:
		return "1-0"
	case match.OutcomeBlackWins:
		return "0-1"
	case match.OutcomeDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(m ArchivedMatch, pgnResult string) string {
	var b strings.Builder
	date := m.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Chat match\"]\n")
	b.WriteString("[Site \"chesschat\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(m.WhiteName)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(m.BlackName)))
	if strings.TrimSpace(m.Method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m.Method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(m.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(m.MovesSAN[i])))
		if i+1 < len(m.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(m.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}

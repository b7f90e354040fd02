package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chesschat/chesschat-bot/internal/archive"
	"github.com/chesschat/chesschat-bot/internal/engine"
	"github.com/chesschat/chesschat-bot/internal/match"
	"github.com/chesschat/chesschat-bot/internal/obslog"
	"github.com/chesschat/chesschat-bot/internal/registry"
	"github.com/chesschat/chesschat-bot/internal/relay"
)

// conclusion carries everything needed after the session lock is released:
// registry removal, ledger attribution, the outcome line, and the archive row.
type conclusion struct {
	matchID   string
	chatID    string
	whiteID   string
	whiteName string
	blackID   string
	blackName string
	outcome   match.Outcome
	method    string
	movesUCI  []string
	movesSAN  []string
	startedAt time.Time
}

func (d *Dispatcher) handleCreate(ctx context.Context, ev *relay.Event, args []string) {
	var color engine.Color
	switch {
	case len(args) != 1:
		d.replyText(ctx, ev.ChatID, "create.usage", nil)
		return
	case strings.EqualFold(args[0], "white"):
		color = engine.White
	case strings.EqualFold(args[0], "black"):
		color = engine.Black
	default:
		d.replyText(ctx, ev.ChatID, "create.usage", nil)
		return
	}

	_, err := d.reg.Create(ev.ChatID, ev.SenderID, ev.SenderName, color)
	if errors.Is(err, registry.ErrAlreadyActive) {
		d.replyText(ctx, ev.ChatID, "create.already_active", nil)
		return
	}
	if err != nil {
		obslog.L().Error("create_failed", zap.String("chat", ev.ChatID), zap.Error(err))
		d.replyText(ctx, ev.ChatID, "error.internal", nil)
		return
	}
	d.replyText(ctx, ev.ChatID, "create.created", map[string]any{
		"Name":  ev.SenderName,
		"Color": color.Label(),
	})
}

func (d *Dispatcher) handleJoin(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if err := sess.Join(ev.SenderID, ev.SenderName); err != nil {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "join.full", nil)
		return
	}
	whiteName, blackName := sess.WhiteName, sess.BlackName
	turnID := sess.CurrentTurnID()
	caption := d.renderText("board.to_move", map[string]any{
		"Name":  sess.NameOf(turnID),
		"Color": sess.ColorOf(turnID).Label(),
	})
	layout := sess.Layout()
	sess.Mu.Unlock()

	d.replyText(ctx, ev.ChatID, "join.joined", map[string]any{
		"White": whiteName,
		"Black": blackName,
	})
	d.sendBoard(ctx, ev.ChatID, caption, layout)
}

func (d *Dispatcher) handleShow(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if sess.Status != match.StatusActive {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "show.waiting", nil)
		return
	}
	turnID := sess.CurrentTurnID()
	caption := d.renderText("board.to_move", map[string]any{
		"Name":  sess.NameOf(turnID),
		"Color": sess.ColorOf(turnID).Label(),
	})
	layout := sess.Layout()
	sess.Mu.Unlock()

	d.sendBoard(ctx, ev.ChatID, caption, layout)
}

// handleMove serves both the explicit keyword and bare notation. Bare tokens
// are silently ignored unless they decode to a legal move in the live match,
// so ordinary chatter never draws a reply.
func (d *Dispatcher) handleMove(ctx context.Context, ev *relay.Event, moveText string, explicit bool) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		if explicit {
			d.replyText(ctx, ev.ChatID, "session.none", nil)
		}
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		if explicit {
			d.replyText(ctx, ev.ChatID, "session.none", nil)
		}
		return
	}
	if !explicit && !sess.ParseableMove(moveText) {
		sess.Mu.Unlock()
		return
	}
	if !sess.IsParticipant(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_participant", nil)
		return
	}
	if sess.Status == match.StatusActive && sess.CurrentTurnID() != ev.SenderID {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_your_turn", nil)
		return
	}

	// The mover's color is resolved before the move flips the side to move;
	// in solo play it would otherwise point at the opponent.
	moverColor := sess.ColorOf(ev.SenderID)

	res, offerCancelled, err := sess.ApplyMove(moveText)
	if errors.Is(err, match.ErrNotActive) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "show.waiting", nil)
		return
	}
	if err != nil {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "move.invalid", map[string]any{"Move": moveText})
		return
	}

	layout := sess.Layout()
	var caption string
	var conc *conclusion
	switch res {
	case engine.ResultCheckmate:
		caption = d.renderText("move.checkmate", nil)
		outcome := match.OutcomeWhiteWins
		if moverColor == engine.Black {
			outcome = match.OutcomeBlackWins
		}
		conc = d.conclusionLocked(sess, outcome, "checkmate")
	case engine.ResultStalemate:
		caption = d.renderText("move.stalemate", nil)
		conc = d.conclusionLocked(sess, match.OutcomeDraw, "stalemate")
	case engine.ResultCheck:
		caption = d.renderText("move.check", nil)
	default:
		turnID := sess.CurrentTurnID()
		caption = d.renderText("board.to_move", map[string]any{
			"Name":  sess.NameOf(turnID),
			"Color": sess.ColorOf(turnID).Label(),
		})
	}
	sess.Mu.Unlock()

	// The chat slot is freed before the render so a fresh create is not
	// blocked behind the final board image.
	if conc != nil {
		d.reg.Terminate(conc.chatID)
	}
	if offerCancelled {
		d.replyText(ctx, ev.ChatID, "move.offer_cancelled", nil)
	}
	d.sendBoard(ctx, ev.ChatID, caption, layout)
	if conc != nil {
		d.conclude(ctx, conc)
	}
}

func (d *Dispatcher) handleOfferDraw(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if !sess.IsParticipant(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_participant", nil)
		return
	}
	if sess.Status != match.StatusActive {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "show.waiting", nil)
		return
	}
	if sess.CurrentTurnID() != ev.SenderID {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_your_turn", nil)
		return
	}
	sess.OfferDraw(ev.SenderID)
	color := sess.ColorOf(ev.SenderID).Label()
	sess.Mu.Unlock()

	d.replyText(ctx, ev.ChatID, "draw.offered", map[string]any{
		"Name":  ev.SenderName,
		"Color": color,
	})
}

// handleRejectDraw is available to the offeree regardless of turn: the offer
// sits with the player to move, who must be able to decline before moving.
func (d *Dispatcher) handleRejectDraw(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if !sess.IsParticipant(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_participant", nil)
		return
	}
	if !sess.HasOfferFor(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "draw.none_to_reject", nil)
		return
	}
	sess.RejectDraw()
	color := sess.ColorOf(ev.SenderID).Label()
	sess.Mu.Unlock()

	d.replyText(ctx, ev.ChatID, "draw.rejected", map[string]any{
		"Name":  ev.SenderName,
		"Color": color,
	})
}

func (d *Dispatcher) handleClaimDraw(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if !sess.IsParticipant(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_participant", nil)
		return
	}
	if sess.Status != match.StatusActive {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "show.waiting", nil)
		return
	}
	if sess.CurrentTurnID() != ev.SenderID {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_your_turn", nil)
		return
	}
	if !sess.CanClaimDraw(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "draw.not_claimable", nil)
		return
	}
	conc := d.conclusionLocked(sess, match.OutcomeDraw, "draw")
	sess.Mu.Unlock()

	d.reg.Terminate(conc.chatID)
	d.conclude(ctx, conc)
}

func (d *Dispatcher) handleResign(ctx context.Context, ev *relay.Event) {
	sess := d.reg.Get(ev.ChatID)
	if sess == nil {
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}

	sess.Mu.Lock()
	if sess.Status == match.StatusTerminated {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.none", nil)
		return
	}
	if !sess.IsParticipant(ev.SenderID) {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "session.not_participant", nil)
		return
	}
	if sess.Status != match.StatusActive {
		sess.Mu.Unlock()
		d.replyText(ctx, ev.ChatID, "show.waiting", nil)
		return
	}
	resignerColor := sess.ColorOf(ev.SenderID)
	outcome := match.OutcomeWhiteWins
	if resignerColor == engine.White {
		outcome = match.OutcomeBlackWins
	}
	conc := d.conclusionLocked(sess, outcome, "resignation")
	sess.Mu.Unlock()

	d.reg.Terminate(conc.chatID)
	d.replyText(ctx, ev.ChatID, "resign.announced", map[string]any{
		"Name":  ev.SenderName,
		"Color": resignerColor.Label(),
	})
	d.conclude(ctx, conc)
}

func (d *Dispatcher) handleStats(ctx context.Context, ev *relay.Event) {
	line, ok := d.ledger.StatsOf(ev.SenderID)
	if !ok {
		d.replyText(ctx, ev.ChatID, "stats.none", map[string]any{"Bot": d.botName})
		return
	}
	d.replyText(ctx, ev.ChatID, "stats.line", map[string]any{
		"Name":   ev.SenderName,
		"Wins":   line.Wins,
		"Draws":  line.Draws,
		"Losses": line.Losses,
	})
}

// conclusionLocked marks the session terminated and captures the terminal
// snapshot, all while the caller still holds the session lock. The status
// transition inside the lock is what makes conclusion exactly-once: any
// concurrent command that wins the lock afterwards sees StatusTerminated and
// treats the match as gone.
func (d *Dispatcher) conclusionLocked(sess *match.Session, outcome match.Outcome, method string) *conclusion {
	sess.Terminate()
	return &conclusion{
		matchID:   sess.ID,
		chatID:    sess.ChatID,
		whiteID:   sess.WhiteID,
		whiteName: sess.WhiteName,
		blackID:   sess.BlackID,
		blackName: sess.BlackName,
		outcome:   outcome,
		method:    method,
		movesUCI:  sess.MovesUCI(),
		movesSAN:  sess.MovesSAN(),
		startedAt: sess.CreatedAt,
	}
}

// conclude attributes the outcome, announces it, then archives. The caller
// has already removed the session from the registry, and the terminated
// status set under the session lock guarantees conclude runs at most once
// per match.
func (d *Dispatcher) conclude(ctx context.Context, c *conclusion) {
	d.ledger.RecordOutcome(c.whiteID, c.blackID, c.outcome)

	key := "result.draw"
	switch c.outcome {
	case match.OutcomeWhiteWins:
		key = "result.white_wins"
	case match.OutcomeBlackWins:
		key = "result.black_wins"
	}
	d.replyText(ctx, c.chatID, key, map[string]any{
		"White": c.whiteName,
		"Black": c.blackName,
	})

	if d.archiver == nil {
		return
	}
	err := d.archiver.SaveMatch(ctx, archive.ArchivedMatch{
		MatchID:   c.matchID,
		ChatID:    c.chatID,
		WhiteID:   c.whiteID,
		WhiteName: c.whiteName,
		BlackID:   c.blackID,
		BlackName: c.blackName,
		Outcome:   c.outcome,
		Method:    c.method,
		MovesUCI:  c.movesUCI,
		MovesSAN:  c.movesSAN,
		StartedAt: c.startedAt,
		EndedAt:   time.Now(),
	})
	if err != nil {
		obslog.L().Warn("archive_match_failed", zap.String("match", c.matchID), zap.Error(err))
	}
}

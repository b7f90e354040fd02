// Package dispatch routes inbound chat events to match operations and emits
// the replies. One goroutine per event; per-session mutexes serialize
// commands that touch the same match.
package dispatch

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chesschat/chesschat-bot/internal/archive"
	"github.com/chesschat/chesschat-bot/internal/engine"
	"github.com/chesschat/chesschat-bot/internal/msgcat"
	"github.com/chesschat/chesschat-bot/internal/msglog"
	"github.com/chesschat/chesschat-bot/internal/obslog"
	"github.com/chesschat/chesschat-bot/internal/presenter"
	"github.com/chesschat/chesschat-bot/internal/registry"
	"github.com/chesschat/chesschat-bot/internal/relay"
	"github.com/chesschat/chesschat-bot/internal/render"
	"github.com/chesschat/chesschat-bot/internal/stats"
)

// Archiver stores concluded matches. Optional; a nil Archiver disables it.
type Archiver interface {
	SaveMatch(ctx context.Context, m archive.ArchivedMatch) error
}

type Dispatcher struct {
	reg      *registry.Registry
	ledger   *stats.Ledger
	log      *msglog.Log
	cat      *msgcat.Catalog
	renderer render.BoardRenderer
	pres     *presenter.Presenter
	archiver Archiver
	botName  string
}

func New(reg *registry.Registry, ledger *stats.Ledger, log *msglog.Log, cat *msgcat.Catalog, renderer render.BoardRenderer, pres *presenter.Presenter, archiver Archiver, botName string) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		ledger:   ledger,
		log:      log,
		cat:      cat,
		renderer: renderer,
		pres:     pres,
		archiver: archiver,
		botName:  botName,
	}
}

// HandleEvent processes one inbound chat message. Non-command chatter is
// ignored without a reply.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *relay.Event) {
	if ev == nil {
		return
	}
	d.log.Append(msglog.Entry{
		ChatID:     ev.ChatID,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Text:       ev.Text,
		ReceivedAt: time.Now(),
	})

	tokens := strings.Fields(ev.Text)
	if len(tokens) == 0 || ev.ChatID == "" || ev.SenderID == "" {
		return
	}

	// Explicit keywords always win over implicit move interpretation; a bare
	// token only reaches the move path when no keyword matches.
	switch d.normalizeKeyword(tokens[0]) {
	case "start":
		d.replyText(ctx, ev.ChatID, "sheet.start", map[string]any{"Bot": d.botName})
	case "help":
		d.replyText(ctx, ev.ChatID, "sheet.help", map[string]any{"Bot": d.botName})
	case "create":
		d.handleCreate(ctx, ev, tokens[1:])
	case "join":
		d.handleJoin(ctx, ev)
	case "show":
		d.handleShow(ctx, ev)
	case "move":
		d.handleMove(ctx, ev, strings.Join(tokens[1:], ""), true)
	case "offerdraw":
		d.handleOfferDraw(ctx, ev)
	case "rejectdraw":
		d.handleRejectDraw(ctx, ev)
	case "claimdraw":
		d.handleClaimDraw(ctx, ev)
	case "resign":
		d.handleResign(ctx, ev)
	case "stats":
		d.handleStats(ctx, ev)
	default:
		d.handleMove(ctx, ev, tokens[0], false)
	}
}

// normalizeKeyword lower-cases a token, drops the optional leading slash and
// the optional @botname suffix.
func (d *Dispatcher) normalizeKeyword(tok string) string {
	t := strings.ToLower(strings.TrimSpace(tok))
	t = strings.TrimPrefix(t, "/")
	if d.botName != "" {
		t = strings.TrimSuffix(t, "@"+strings.ToLower(d.botName))
	}
	return t
}

// replyText renders a catalog key and sends it. Catalog failures are logged
// and swallowed; the dispatch loop must survive them.
func (d *Dispatcher) replyText(ctx context.Context, chatID, key string, data any) {
	msg, err := d.cat.Render(key, data)
	if err != nil {
		obslog.L().Error("render_message_failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := d.pres.Text(ctx, chatID, msg); err != nil {
		obslog.L().Warn("send_text_failed", zap.String("chat", chatID), zap.Error(err))
	}
}

// sendBoard renders the layout to PNG and sends it with a caption. On render
// failure the caption still goes out so the chat is not left hanging.
func (d *Dispatcher) sendBoard(ctx context.Context, chatID, caption string, layout engine.Layout) {
	png, err := d.renderer.RenderPNG(ctx, layout)
	if err != nil {
		obslog.L().Error("render_board_failed", zap.String("chat", chatID), zap.Error(err))
		if err := d.pres.Text(ctx, chatID, caption); err != nil {
			obslog.L().Warn("send_text_failed", zap.String("chat", chatID), zap.Error(err))
		}
		return
	}
	if err := d.pres.Board(ctx, chatID, caption, png); err != nil {
		obslog.L().Warn("send_board_failed", zap.String("chat", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) renderText(key string, data any) string {
	msg, err := d.cat.Render(key, data)
	if err != nil {
		obslog.L().Error("render_message_failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return msg
}

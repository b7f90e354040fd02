package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/chesschat/chesschat-bot/internal/archive"
	appcfg "github.com/chesschat/chesschat-bot/internal/config"
	"github.com/chesschat/chesschat-bot/internal/dispatch"
	"github.com/chesschat/chesschat-bot/internal/msgcat"
	"github.com/chesschat/chesschat-bot/internal/msglog"
	"github.com/chesschat/chesschat-bot/internal/obslog"
	"github.com/chesschat/chesschat-bot/internal/presenter"
	"github.com/chesschat/chesschat-bot/internal/registry"
	"github.com/chesschat/chesschat-bot/internal/relay"
	"github.com/chesschat/chesschat-bot/internal/render"
	"github.com/chesschat/chesschat-bot/internal/stats"
	"github.com/chesschat/chesschat-bot/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		logger.Fatal("message catalog init failed", zap.Error(err))
	}

	st, err := store.New(cfg.RedisURL)
	if err != nil {
		logger.Fatal("snapshot store init failed", zap.Error(err))
	}

	reg := registry.New()
	ledger := stats.NewLedger()
	mlog := msglog.New(cfg.MessageLogLimit)
	restoreState(st, reg, ledger, mlog)

	// Postgres archive is optional; without DATABASE_URL matches simply are
	// not archived.
	var archiver dispatch.Archiver
	var repo *archive.Repository
	if cfg.DatabaseURL != "" {
		repo, err = archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		archiver = repo
	}

	client := relay.NewClient(cfg.RelayBaseURL)
	pres := presenter.New(client.SendMessage, client.SendImage)
	renderer := render.NewSVGBoardRenderer()
	disp := dispatch.New(reg, ledger, mlog, cat, renderer, pres, archiver, cfg.BotName)

	ws := relay.NewWebSocket(cfg.RelayWSURL, 5, time.Second)
	ws.OnStateChange(func(state relay.WebSocketState) {
		logger.Info("ws_state_changed", zap.Int("state", int(state)))
	})
	ws.OnEvent(func(ev *relay.Event) {
		if ev == nil || ev.Text == "" {
			return
		}
		if len(cfg.AllowedChats) > 0 && !chatAllowed(cfg.AllowedChats, ev.ChatID) {
			return
		}
		// Keep the WS read loop free.
		go disp.HandleEvent(context.Background(), ev)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = ws.Connect(cctx)
	cancel()
	if err != nil {
		logger.Fatal("ws connect failed", zap.Error(err))
	}

	flusher, err := store.StartFlusher(cfg.SnapshotInterval, st, reg, mlog, ledger)
	if err != nil {
		logger.Fatal("flusher init failed", zap.Error(err))
	}

	logger.Info("chess bot started",
		zap.String("bot", cfg.BotName),
		zap.Duration("snapshot_interval", cfg.SnapshotInterval),
		zap.Bool("archive", archiver != nil),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	_ = flusher.Stop()
	_ = ws.Close(context.Background())

	// Final flush so nothing since the last tick is lost.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := st.FlushAll(ctx, reg.Snapshot(), mlog.Snapshot(), ledger.Snapshot()); err != nil {
		logger.Warn("final_flush_failed", zap.Error(err))
	}
	cancel()

	_ = st.Close()
	if repo != nil {
		_ = repo.Close()
	}
	_ = logger.Sync()
}

// restoreState loads each snapshot independently: absent is a normal first
// run, corrupt is logged and degrades to empty state. A transport error
// aborts startup; running on would let the flusher overwrite an intact
// snapshot with empty state.
func restoreState(st *store.Store, reg *registry.Registry, ledger *stats.Ledger, mlog *msglog.Log) {
	logger := obslog.L()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, status, err := st.LoadSessions(ctx)
	switch status {
	case store.LoadOK:
		skipped := reg.Restore(records)
		for _, serr := range skipped {
			logger.Warn("session_restore_skipped", zap.Error(serr))
		}
		logger.Info("sessions_restored", zap.Int("count", reg.Len()))
	case store.LoadCorrupt:
		logger.Warn("sessions_snapshot_corrupt", zap.Error(err))
	case store.LoadError:
		logger.Fatal("sessions_snapshot_unreadable", zap.Error(err))
	}

	players, status, err := st.LoadStats(ctx)
	switch status {
	case store.LoadOK:
		ledger.Restore(players)
		logger.Info("stats_restored", zap.Int("players", len(players)))
	case store.LoadCorrupt:
		logger.Warn("stats_snapshot_corrupt", zap.Error(err))
	case store.LoadError:
		logger.Fatal("stats_snapshot_unreadable", zap.Error(err))
	}

	entries, status, err := st.LoadMessageLog(ctx)
	switch status {
	case store.LoadOK:
		mlog.Restore(entries)
		logger.Info("msglog_restored", zap.Int("entries", mlog.Len()))
	case store.LoadCorrupt:
		logger.Warn("msglog_snapshot_corrupt", zap.Error(err))
	case store.LoadError:
		logger.Fatal("msglog_snapshot_unreadable", zap.Error(err))
	}
}

func chatAllowed(allowed []string, chatID string) bool {
	for _, c := range allowed {
		if c == chatID {
			return true
		}
	}
	return false
}

package store

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/chesschat/chesschat-bot/internal/msglog"
	"github.com/chesschat/chesschat-bot/internal/obslog"
	"github.com/chesschat/chesschat-bot/internal/registry"
	"github.com/chesschat/chesschat-bot/internal/stats"
)

// Flusher snapshots in-memory state on a fixed interval. Flushes are
// best-effort: a failed tick is logged and the next tick retries; in-memory
// state is never rolled back.
type Flusher struct {
	sched gocron.Scheduler
}

func StartFlusher(interval time.Duration, st *Store, reg *registry.Registry, log *msglog.Log, ledger *stats.Ledger) (*Flusher, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.FlushAll(ctx, reg.Snapshot(), log.Snapshot(), ledger.Snapshot()); err != nil {
				obslog.L().Warn("periodic_flush_failed", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &Flusher{sched: sched}, nil
}

func (f *Flusher) Stop() error {
	if f == nil || f.sched == nil {
		return nil
	}
	return f.sched.Shutdown()
}

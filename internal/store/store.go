// Package store persists the registry, message log, and stats ledger as
// three independent JSON snapshots in Redis. Each snapshot carries its own
// version and restores on its own; a missing or unreadable snapshot degrades
// to empty state instead of failing startup.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chesschat/chesschat-bot/internal/match"
	"github.com/chesschat/chesschat-bot/internal/msglog"
	"github.com/chesschat/chesschat-bot/internal/obslog"
	"github.com/chesschat/chesschat-bot/internal/stats"
)

// LoadStatus distinguishes the restore cases. Absent is normal on first run;
// Corrupt is surfaced as a warning and degrades to empty state; Error means
// the snapshot could not be read at all and its state is unknown.
type LoadStatus int

const (
	LoadOK LoadStatus = iota
	LoadAbsent
	LoadCorrupt
	LoadError
)

const snapshotVersion = 1

const (
	keySessions = "chessbot:snapshot:sessions"
	keyMsgLog   = "chessbot:snapshot:msglog"
	keyStats    = "chessbot:snapshot:stats"
)

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"saved_at"`
	Data    json.RawMessage `json:"data"`
}

type Store struct {
	rdb *redis.Client
}

// New connects to Redis by URL and verifies the connection.
func New(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for snapshot store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

// NewWithClient wraps an existing client (tests).
func NewWithClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) save(ctx context.Context, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	env, err := json.Marshal(envelope{Version: snapshotVersion, SavedAt: time.Now(), Data: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, env, 0).Err()
}

func (s *Store) load(ctx context.Context, key string, out any) (LoadStatus, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return LoadAbsent, nil
	}
	if err != nil {
		// Transport failure, not absence: the snapshot may well exist.
		return LoadError, fmt.Errorf("read %s: %w", key, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return LoadCorrupt, fmt.Errorf("decode envelope %s: %w", key, err)
	}
	if env.Version != snapshotVersion {
		return LoadCorrupt, fmt.Errorf("snapshot %s has unsupported version %d", key, env.Version)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return LoadCorrupt, fmt.Errorf("decode %s: %w", key, err)
	}
	return LoadOK, nil
}

func (s *Store) SaveSessions(ctx context.Context, records []match.Record) error {
	return s.save(ctx, keySessions, records)
}

func (s *Store) LoadSessions(ctx context.Context) ([]match.Record, LoadStatus, error) {
	var records []match.Record
	st, err := s.load(ctx, keySessions, &records)
	if st != LoadOK {
		return nil, st, err
	}
	return records, LoadOK, nil
}

func (s *Store) SaveMessageLog(ctx context.Context, entries []msglog.Entry) error {
	return s.save(ctx, keyMsgLog, entries)
}

func (s *Store) LoadMessageLog(ctx context.Context) ([]msglog.Entry, LoadStatus, error) {
	var entries []msglog.Entry
	st, err := s.load(ctx, keyMsgLog, &entries)
	if st != LoadOK {
		return nil, st, err
	}
	return entries, LoadOK, nil
}

func (s *Store) SaveStats(ctx context.Context, players map[string]stats.Line) error {
	return s.save(ctx, keyStats, players)
}

func (s *Store) LoadStats(ctx context.Context) (map[string]stats.Line, LoadStatus, error) {
	var players map[string]stats.Line
	st, err := s.load(ctx, keyStats, &players)
	if st != LoadOK {
		return nil, st, err
	}
	return players, LoadOK, nil
}

// FlushAll writes all three snapshots. Each failure is logged and the rest
// still flush; the first error is returned for the caller's log line.
func (s *Store) FlushAll(ctx context.Context, records []match.Record, entries []msglog.Entry, players map[string]stats.Line) error {
	var first error
	if err := s.SaveSessions(ctx, records); err != nil {
		obslog.L().Warn("snapshot_sessions_failed", zap.Error(err))
		first = err
	}
	if err := s.SaveMessageLog(ctx, entries); err != nil {
		obslog.L().Warn("snapshot_msglog_failed", zap.Error(err))
		if first == nil {
			first = err
		}
	}
	if err := s.SaveStats(ctx, players); err != nil {
		obslog.L().Warn("snapshot_stats_failed", zap.Error(err))
		if first == nil {
			first = err
		}
	}
	return first
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

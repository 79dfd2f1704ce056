package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/domain"
	"github.com/luuphuc6297/elsa-coding-challenges-sub000/internal/resilience"
)

const defaultCacheTTL = time.Minute

// Store is the durable side of the leaderboard. The cache is advisory; the
// store is authoritative.
type Store interface {
	UpsertEntry(ctx context.Context, sessionID string, e domain.LeaderboardEntry) error
	ListEntries(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error)
	Archive(ctx context.Context, sessionID string) error
}

type Config struct {
	Store  Store
	Redis  redis.UniversalClient
	Prefix string
	// CacheTTL bounds how stale a cached leaderboard read may be.
	CacheTTL time.Duration

	StoreWrapper *resilience.Wrapper
	CacheWrapper *resilience.Wrapper
}

type Service struct {
	store  Store
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration

	storeRes *resilience.Wrapper
	cacheRes *resilience.Wrapper
}

func NewService(c Config) *Service {
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	if c.StoreWrapper == nil {
		c.StoreWrapper = resilience.New("leaderboard-store", resilience.Config{MaxAttempts: 3})
	}
	if c.CacheWrapper == nil {
		c.CacheWrapper = resilience.New("leaderboard-cache", resilience.Config{MaxAttempts: 2})
	}

	return &Service{
		store:    c.Store,
		redis:    c.Redis,
		prefix:   c.Prefix,
		ttl:      c.CacheTTL,
		storeRes: c.StoreWrapper,
		cacheRes: c.CacheWrapper,
	}
}

// UpsertEntry updates-or-inserts the entry by user id, persists, and
// refreshes the cache. A cache write failure is tolerated: the durable write
// already succeeded, so the leaderboard stays correct.
func (s *Service) UpsertEntry(ctx context.Context, sessionID string, e domain.LeaderboardEntry) (*domain.Leaderboard, error) {
	err := s.storeRes.Do(ctx, func(ctx context.Context) error {
		return s.store.UpsertEntry(ctx, sessionID, e)
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: upsert entry: %w", err)
	}

	l, err := s.readDurable(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, l)
	return l, nil
}

// GetEntries returns the ranked leaderboard, reading the cache first and
// falling back to durable storage on a miss, repopulating the cache.
func (s *Service) GetEntries(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	if l, ok := s.readCache(ctx, sessionID); ok {
		return l, nil
	}

	l, err := s.readDurable(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, l)
	return l, nil
}

// Archive marks the leaderboard read-only and evicts its cache entry.
func (s *Service) Archive(ctx context.Context, sessionID string) error {
	err := s.storeRes.Do(ctx, func(ctx context.Context) error {
		return s.store.Archive(ctx, sessionID)
	})
	if err != nil {
		return fmt.Errorf("leaderboard: archive: %w", err)
	}

	err = s.cacheRes.Do(ctx, func(ctx context.Context) error {
		return s.redis.Del(ctx, s.cacheKey(sessionID)).Err()
	})
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: evict cache failed", "session", sessionID, "error", err)
	}

	return nil
}

func (s *Service) readDurable(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	var entries []domain.LeaderboardEntry
	err := s.storeRes.Do(ctx, func(ctx context.Context) error {
		var err error
		entries, err = s.store.ListEntries(ctx, sessionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard: list entries: %w", err)
	}

	SortEntries(entries)
	return &domain.Leaderboard{
		SessionID: sessionID,
		Entries:   entries,
	}, nil
}

func (s *Service) readCache(ctx context.Context, sessionID string) (*domain.Leaderboard, bool) {
	var raw string
	miss := false
	err := s.cacheRes.Do(ctx, func(ctx context.Context) error {
		var err error
		raw, err = s.redis.Get(ctx, s.cacheKey(sessionID)).Result()
		// A miss is an answer, not a store failure.
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: cache read failed", "session", sessionID, "error", err)
		return nil, false
	}
	if miss {
		return nil, false
	}

	var l domain.Leaderboard
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		slog.WarnContext(ctx, "leaderboard: corrupt cache entry", "session", sessionID, "error", err)
		return nil, false
	}

	return &l, true
}

func (s *Service) writeCache(ctx context.Context, l *domain.Leaderboard) {
	b, err := json.Marshal(l)
	if err != nil {
		slog.ErrorContext(ctx, "leaderboard: marshal cache entry", "session", l.SessionID, "error", err)
		return
	}

	err = s.cacheRes.Do(ctx, func(ctx context.Context) error {
		return s.redis.Set(ctx, s.cacheKey(l.SessionID), b, s.ttl).Err()
	})
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: cache write failed", "session", l.SessionID, "error", err)
	}
}

func (s *Service) cacheKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", s.prefix, sessionID)
}

// SortEntries orders entries by score descending, ties broken by ascending
// time spent. The sort is stable so repeated calls with unchanged data are
// reproducible.
func SortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].TimeSpentMs < entries[j].TimeSpentMs
	})
}

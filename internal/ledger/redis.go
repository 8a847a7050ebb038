package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a RedisStore
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, e.g. "promptrun"
}

// RedisStore keeps completed ids in a Redis set. Completion times live in
// a companion hash and are only used for listing.
type RedisStore struct {
	rdb      *redis.Client
	setKey   string
	timesKey string
}

// OpenRedis connects to Redis and verifies the connection
func OpenRedis(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return NewRedisStore(rdb, opts.Prefix), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "promptrun"
	}
	return &RedisStore{
		rdb:      rdb,
		setKey:   prefix + ":completed",
		timesKey: prefix + ":completed_at",
	}
}

// Contains reports whether id is in the completed set
func (s *RedisStore) Contains(ctx context.Context, id string) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.setKey, id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return ok, nil
}

// InsertBatch adds ids atomically. SADD ignores members already present.
func (s *RedisStore) InsertBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.setKey, members...)
		for _, id := range ids {
			pipe.HSetNX(ctx, s.timesKey, id, now)
		}
		return nil
	})
	if err != nil {
		return writeError(len(ids), err)
	}
	return nil
}

// List returns all entries, oldest first
func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	ids, err := s.rdb.SMembers(ctx, s.setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger: %w", err)
	}
	times, err := s.rdb.HGetAll(ctx, s.timesKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to list completion times: %w", err)
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e := Entry{ID: id}
		if ts, ok := times[id]; ok {
			e.CompletedAt, _ = time.Parse(time.RFC3339Nano, ts)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].CompletedAt.Before(entries[j].CompletedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// Forget removes ids and returns how many were present
func (s *RedisStore) Forget(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	var removed *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, s.setKey, members...)
		pipe.HDel(ctx, s.timesKey, ids...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to forget ids: %w", err)
	}
	return int(removed.Val()), nil
}

// Close closes the client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys written by RedisStore.
const DefaultRedisPrefix = "trc20watch"

const (
	fieldStartOfInterest = "start_of_interest_ms"
	fieldLastUpdate      = "last_update"
)

// RedisStore keeps seen ids in a set and the watch state in a hash.
type RedisStore struct {
	client  *redis.Client
	seenKey string
	hashKey string
	logger  *slog.Logger
}

// NewRedisStore wraps a client. Keys are <prefix>:<address>:seen and
// <prefix>:<address>:state.
func NewRedisStore(client *redis.Client, prefix, address string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := prefix + ":" + address
	return &RedisStore{
		client:  client,
		seenKey: base + ":seen",
		hashKey: base + ":state",
		logger:  logger.With("component", "dedup", "backend", "redis"),
	}
}

// NewRedisStoreFromURL parses a redis:// URL, connects and pings.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix, address string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStore(client, prefix, address, logger), nil
}

// Backend implements Store.
func (s *RedisStore) Backend() string {
	return "redis"
}

// Load reads the seen set and the state hash.
func (s *RedisStore) Load(ctx context.Context) (*State, error) {
	ids, err := s.client.SMembers(ctx, s.seenKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read seen set: %w", err)
	}
	slices.Sort(ids)

	fields, err := s.client.HGetAll(ctx, s.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read watch state: %w", err)
	}

	state := &State{IDs: ids}
	if v := fields[fieldStartOfInterest]; v != "" {
		start, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.logger.WarnContext(ctx, "ignoring malformed start of interest", "value", v, "error", err)
		} else {
			state.StartOfInterestMs = start
		}
	}
	if v := fields[fieldLastUpdate]; v != "" {
		state.LastUpdate = parseLastUpdate(v)
	}
	return state, nil
}

// Persist adds every id to the set and rewrites the state hash inside one
// MULTI/EXEC transaction.
func (s *RedisStore) Persist(ctx context.Context, state *State) error {
	members := make([]any, len(state.IDs))
	for i, id := range state.IDs {
		members[i] = id
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(members) > 0 {
			pipe.SAdd(ctx, s.seenKey, members...)
		}
		pipe.HSet(ctx, s.hashKey,
			fieldStartOfInterest, strconv.FormatInt(state.StartOfInterestMs, 10),
			fieldLastUpdate, state.LastUpdate.Format(time.RFC3339Nano),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist dedup state: %w", err)
	}

	s.logger.DebugContext(ctx, "persisted dedup state", "ids", len(state.IDs))
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Package store keeps market orders and universe reference data in Redis.
//
// Reference entities are hashes and ID lists that are replaced wholesale on
// each refresh. Orders are hashes with a fixed TTL, indexed by a
// (region, type) set that is pruned lazily when expired members are read.
// Every multi-command write runs as one MULTI/EXEC transaction, so readers
// never see a list between its delete and its repopulation.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/eve-marketwatch/pkg/stats"
	"github.com/redis/go-redis/v9"
)

// Store is the Redis-backed market data store. It is safe for concurrent
// use.
type Store struct {
	redis *redis.Client
	stats *stats.Stats
}

// New creates a store over redisClient.
func New(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// WithStats returns a store sharing the connection that records write
// counters into st.
func (s *Store) WithStats(st *stats.Stats) *Store {
	return &Store{redis: s.redis, stats: st}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// tx runs fn inside MULTI/EXEC and records count store updates.
func (s *Store) tx(ctx context.Context, op string, count int, fn func(redis.Pipeliner) error) error {
	startTime := time.Now()
	_, err := s.redis.TxPipelined(ctx, fn)
	elapsed := time.Since(startTime)

	storeOps.WithLabelValues(op).Inc()
	if err != nil {
		storeErrors.WithLabelValues(op).Inc()
		s.stats.Update(stats.Update, stats.Delta{Total: count, Failure: count, Elapsed: elapsed})
		return fmt.Errorf("redis %s: %w", op, err)
	}
	s.stats.Update(stats.Update, stats.Delta{Total: count, Changed: count, Elapsed: elapsed})
	return nil
}

// replaceList deletes key and repopulates it with ids.
func replaceList(ctx context.Context, p redis.Pipeliner, key string, ids []int64) {
	p.Del(ctx, key)
	if len(ids) == 0 {
		return
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	p.RPush(ctx, key, values...)
}

func (s *Store) setList(ctx context.Context, op, key string, ids []int64) error {
	return s.tx(ctx, op, len(ids), func(p redis.Pipeliner) error {
		replaceList(ctx, p, key, ids)
		return nil
	})
}

func (s *Store) getList(ctx context.Context, op, key string) ([]int64, error) {
	storeOps.WithLabelValues(op).Inc()
	values, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		storeErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	return parseIDs(values), nil
}

func (s *Store) getHash(ctx context.Context, op, key string) (fields, error) {
	storeOps.WithLabelValues(op).Inc()
	values, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil {
		storeErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("redis hgetall %s: %w", key, err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return fields(values), nil
}

// parseIDs converts stored IDs, skipping malformed members.
func parseIDs(values []string) []int64 {
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

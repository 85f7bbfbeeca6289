// Package cache provides a Redis-backed baseline snapshot cache shared
// between server instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/claude/injuryrisk/internal/baseline"
	"github.com/claude/injuryrisk/internal/config"
)

// Redis stores snapshots in one hash per user so a single DEL invalidates
// every entry of that user.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

var _ baseline.Cache = (*Redis)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return NewWithClient(client, cfg.TTL(), log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

func userKey(userID int) string {
	return fmt.Sprintf("injuryrisk:baseline:%d", userID)
}

// Get returns a cached snapshot. Redis errors count as a miss.
func (r *Redis) Get(ctx context.Context, key baseline.Key) (baseline.Snapshot, bool) {
	val, err := r.client.HGet(ctx, userKey(key.UserID), key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return baseline.Snapshot{}, false
	}
	if err != nil {
		r.log.Warn("baseline cache get failed", "user_id", key.UserID, "error", err)
		return baseline.Snapshot{}, false
	}
	var snap baseline.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		r.log.Warn("baseline cache entry corrupt", "user_id", key.UserID, "error", err)
		return baseline.Snapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot and refreshes the user's TTL.
func (r *Redis) Set(ctx context.Context, key baseline.Key, snap baseline.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		r.log.Warn("encoding baseline snapshot", "user_id", key.UserID, "error", err)
		return
	}
	hk := userKey(key.UserID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, hk, key.String(), data)
	pipe.Expire(ctx, hk, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn("baseline cache set failed", "user_id", key.UserID, "error", err)
	}
}

// Invalidate drops every snapshot of a user.
func (r *Redis) Invalidate(ctx context.Context, userID int) {
	if err := r.client.Del(ctx, userKey(userID)).Err(); err != nil {
		r.log.Warn("baseline cache invalidate failed", "user_id", userID, "error", err)
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

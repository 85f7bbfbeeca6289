package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/injuryrisk/internal/models"
	"github.com/claude/injuryrisk/internal/thresholds"
)

// Key identifies a cached snapshot. A new ingestion moves LatestIngest
// forward, so stale entries are never hit even before invalidation runs.
type Key struct {
	UserID       int
	Date         time.Time
	LatestIngest time.Time
}

// String renders the key for external caches.
func (k Key) String() string {
	return fmt.Sprintf("%d:%s:%d", k.UserID, k.Date.Format(time.DateOnly), k.LatestIngest.UnixNano())
}

// Cache stores snapshots. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key Key) (Snapshot, bool)
	Set(ctx context.Context, key Key, snap Snapshot)
	Invalidate(ctx context.Context, userID int)
}

// Engine computes snapshots, consulting an optional cache.
type Engine struct {
	cfg   thresholds.Baseline
	cache Cache
	log   *slog.Logger
}

// NewEngine creates an engine. cache may be nil.
func NewEngine(cfg thresholds.Baseline, cache Cache, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{cfg: cfg, cache: cache, log: log}
}

// Snapshot returns the snapshot for h at ref, from cache when possible.
func (e *Engine) Snapshot(ctx context.Context, h History, ref time.Time) Snapshot {
	if e.cache == nil {
		return Compute(h, ref, e.cfg)
	}
	key := Key{UserID: h.UserID, Date: models.Day(ref), LatestIngest: h.LatestIngest}
	if snap, ok := e.cache.Get(ctx, key); ok {
		return snap
	}
	snap := Compute(h, ref, e.cfg)
	e.cache.Set(ctx, key, snap)
	return snap
}

// Invalidate drops every cached snapshot for a user.
func (e *Engine) Invalidate(ctx context.Context, userID int) {
	if e.cache == nil {
		return
	}
	e.cache.Invalidate(ctx, userID)
	e.log.Debug("baseline cache invalidated", "user_id", userID)
}

// maxEntriesPerUser bounds the snapshots MemoryCache keeps for one user.
// The oldest entry is evicted first.
const maxEntriesPerUser = 64

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[int]*userEntries
}

type userEntries struct {
	snaps map[string]Snapshot
	order []string
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[int]*userEntries)}
}

func (c *MemoryCache) Get(_ context.Context, key Key) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.entries[key.UserID]
	if !ok {
		return Snapshot{}, false
	}
	snap, ok := user.snaps[key.String()]
	return snap, ok
}

func (c *MemoryCache) Set(_ context.Context, key Key, snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.entries[key.UserID]
	if !ok {
		user = &userEntries{snaps: make(map[string]Snapshot)}
		c.entries[key.UserID] = user
	}
	k := key.String()
	if _, exists := user.snaps[k]; !exists {
		user.order = append(user.order, k)
		for len(user.order) > maxEntriesPerUser {
			delete(user.snaps, user.order[0])
			user.order = user.order[1:]
		}
	}
	user.snaps[k] = snap
}

func (c *MemoryCache) Invalidate(_ context.Context, userID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
}

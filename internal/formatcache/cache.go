package formatcache

import (
	"context"
	"fmt"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

const DefaultTTL = 30 * time.Minute

// Entry is a probe result together with the time it was taken.
type Entry struct {
	Info     models.MediaInfo `json:"info"`
	ProbedAt time.Time        `json:"probed_at"`
}

// Store persists entries. Expiry is decided by the Cache, not the store.
type Store interface {
	Get(ctx context.Context, mediaID string) (Entry, bool, error)
	Set(ctx context.Context, mediaID string, entry Entry) error
}

// Cache memoizes probe results for a fixed window.
// Two concurrent misses for the same id may both probe; the later write wins.
type Cache struct {
	prober extractor.Prober
	store  Store
	clock  timeutil.Clock
	ttl    time.Duration
}

func New(prober extractor.Prober, store Store, clock timeutil.Clock, ttl time.Duration) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if clock == nil {
		clock = timeutil.NewSystemClock()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{prober: prober, store: store, clock: clock, ttl: ttl}
}

func (c *Cache) TTL() time.Duration { return c.ttl }

// GetVariants returns the cached variants for mediaID, probing when the entry is missing or expired.
func (c *Cache) GetVariants(ctx context.Context, mediaID string) (*models.MediaInfo, error) {
	if entry, ok := c.lookup(ctx, mediaID); ok {
		info := entry.Info
		return &info, nil
	}

	info, err := c.prober.Probe(ctx, mediaID)
	if err != nil {
		logutils.Log.WithError(err).WithField("video_id", mediaID).Warn("Format probe failed")
		return nil, fmt.Errorf("%w: %w", utils.ErrProbeFailed, err)
	}

	entry := Entry{Info: *info, ProbedAt: c.clock.Now()}
	if err := c.store.Set(ctx, mediaID, entry); err != nil {
		logutils.Log.WithError(err).WithField("video_id", mediaID).Warn("Failed to store probed formats")
	}
	return info, nil
}

// Peek returns a fresh entry without probing.
func (c *Cache) Peek(ctx context.Context, mediaID string) (models.MediaInfo, bool) {
	entry, ok := c.lookup(ctx, mediaID)
	return entry.Info, ok
}

func (c *Cache) lookup(ctx context.Context, mediaID string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, mediaID)
	if err != nil {
		logutils.Log.WithError(err).WithField("video_id", mediaID).Warn("Format cache read failed, treating as miss")
		return Entry{}, false
	}
	if !ok || c.clock.Now().Sub(entry.ProbedAt) >= c.ttl {
		return Entry{}, false
	}
	return entry, true
}

package formatcache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/go-redis/redis/v8"
)

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

type countingProber struct {
	calls atomic.Int32
	err   error
}

func (p *countingProber) Probe(_ context.Context, mediaID string) (*models.MediaInfo, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &models.MediaInfo{
		VideoID: mediaID,
		Title:   "Never Gonna Give You Up",
		Formats: []models.EncodingVariant{{FormatID: "18", Type: models.KindVideoAudio}},
	}, nil
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestGetVariants_ProbesOncePerWindow(t *testing.T) {
	prober := &countingProber{}
	clock := timeutil.NewManualClock(epoch)
	cache := New(prober, NewMemoryStore(), clock, 30*time.Minute)
	ctx := context.Background()

	if _, err := cache.GetVariants(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("first GetVariants() error = %v", err)
	}

	clock.Advance(10 * time.Minute)
	info, err := cache.GetVariants(ctx, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetVariants() at 10m error = %v", err)
	}
	if got := prober.calls.Load(); got != 1 {
		t.Errorf("probes after 10m = %d, want 1", got)
	}
	if info.Title != "Never Gonna Give You Up" {
		t.Errorf("title = %q", info.Title)
	}

	clock.Advance(21 * time.Minute)
	if _, err := cache.GetVariants(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("GetVariants() at 31m error = %v", err)
	}
	if got := prober.calls.Load(); got != 2 {
		t.Errorf("probes after 31m = %d, want 2", got)
	}

	// The refresh at 31m restarts the window.
	clock.Advance(29 * time.Minute)
	if _, err := cache.GetVariants(ctx, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("GetVariants() at 60m error = %v", err)
	}
	if got := prober.calls.Load(); got != 2 {
		t.Errorf("probes after 60m = %d, want 2", got)
	}
}

func TestGetVariants_ExpiresAtExactWindow(t *testing.T) {
	prober := &countingProber{}
	clock := timeutil.NewManualClock(epoch)
	cache := New(prober, nil, clock, time.Minute)

	_, _ = cache.GetVariants(context.Background(), "dQw4w9WgXcQ")
	clock.Advance(time.Minute)
	_, _ = cache.GetVariants(context.Background(), "dQw4w9WgXcQ")

	if got := prober.calls.Load(); got != 2 {
		t.Errorf("probes = %d, want 2", got)
	}
}

func TestGetVariants_ProbeFailure(t *testing.T) {
	prober := &countingProber{err: errors.New("video unavailable")}
	store := NewMemoryStore()
	cache := New(prober, store, timeutil.NewManualClock(epoch), time.Minute)

	_, err := cache.GetVariants(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, utils.ErrProbeFailed) {
		t.Fatalf("error = %v, want ErrProbeFailed", err)
	}
	if store.Len() != 0 {
		t.Errorf("failed probe was cached")
	}
}

func TestGetVariants_NoStaleFallback(t *testing.T) {
	prober := &countingProber{}
	clock := timeutil.NewManualClock(epoch)
	cache := New(prober, nil, clock, time.Minute)

	if _, err := cache.GetVariants(context.Background(), "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("GetVariants() error = %v", err)
	}
	clock.Advance(2 * time.Minute)
	prober.err = errors.New("rate limited")

	if _, err := cache.GetVariants(context.Background(), "dQw4w9WgXcQ"); !errors.Is(err, utils.ErrProbeFailed) {
		t.Errorf("error = %v, want ErrProbeFailed", err)
	}
}

func TestPeek(t *testing.T) {
	prober := &countingProber{}
	clock := timeutil.NewManualClock(epoch)
	cache := New(prober, nil, clock, time.Minute)
	ctx := context.Background()

	if _, ok := cache.Peek(ctx, "dQw4w9WgXcQ"); ok {
		t.Fatal("Peek() on empty cache returned an entry")
	}
	_, _ = cache.GetVariants(ctx, "dQw4w9WgXcQ")

	info, ok := cache.Peek(ctx, "dQw4w9WgXcQ")
	if !ok || info.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("Peek() = %+v, %v", info, ok)
	}

	clock.Advance(time.Hour)
	if _, ok := cache.Peek(ctx, "dQw4w9WgXcQ"); ok {
		t.Error("Peek() returned an expired entry")
	}
	if got := prober.calls.Load(); got != 1 {
		t.Errorf("Peek() probed: calls = %d", got)
	}
}

func TestGetVariants_UnreachableRedisIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	prober := &countingProber{}
	cache := New(prober, NewRedisStore(client, time.Minute), timeutil.NewManualClock(epoch), time.Minute)

	info, err := cache.GetVariants(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("GetVariants() error = %v", err)
	}
	if info.VideoID != "dQw4w9WgXcQ" || prober.calls.Load() != 1 {
		t.Errorf("info = %+v, probes = %d", info, prober.calls.Load())
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := NewRedisClient(ctx, "127.0.0.1:1", "", 0); !errors.Is(err, utils.ErrExternalServiceError) {
		t.Errorf("error = %v, want ErrExternalServiceError", err)
	}
}

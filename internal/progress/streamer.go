package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

const DefaultInterval = time.Second

// Registry resolves a video id to its live task.
type Registry interface {
	Source(videoID string) (models.SnapshotSource, bool)
}

// Streamer polls one task per subscriber and relays its snapshots.
type Streamer struct {
	registry Registry
	policy   models.MergedPolicy
	interval time.Duration
}

func NewStreamer(registry Registry, policy models.MergedPolicy, interval time.Duration) *Streamer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if policy == "" {
		policy = models.MergedNonTerminal
	}
	return &Streamer{registry: registry, policy: policy, interval: interval}
}

// Stream returns ErrNotFound at once if no task is registered for videoID.
// Otherwise the channel yields a snapshot per interval and is closed after the
// final snapshot, or when ctx is done.
func (s *Streamer) Stream(ctx context.Context, videoID string) (<-chan models.Snapshot, error) {
	source, ok := s.registry.Source(videoID)
	if !ok {
		return nil, fmt.Errorf("download %s: %w", videoID, utils.ErrNotFound)
	}

	out := make(chan models.Snapshot)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			snap := source.Snapshot()
			select {
			case out <- snap:
			case <-ctx.Done():
				logutils.Log.WithField("video_id", videoID).Debug("Progress subscriber went away")
				return
			}
			if s.policy.StreamDone(snap.Status) {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

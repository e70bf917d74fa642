package scheduler

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/robfig/cron/v3"
)

// Updater refreshes an external tool.
type Updater interface {
	RunUpdate(ctx context.Context)
}

// Pruner removes finished download records older than a cutoff.
type Pruner interface {
	PruneDownloads(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler runs maintenance jobs on cron schedules (with a seconds field).
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	clock  timeutil.Clock
}

func New(clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.NewSystemClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		cancel: cancel,
		clock:  clock,
	}
}

func (s *Scheduler) AddUpdater(spec string, u Updater) error {
	_, err := s.cron.AddFunc(spec, func() {
		u.RunUpdate(s.ctx)
	})
	if err != nil {
		return utils.WrapError(utils.ErrConfigurationError, "invalid updater schedule", map[string]any{
			"schedule": spec,
			"error":    err.Error(),
		})
	}
	logutils.Log.WithField("schedule", spec).Info("Scheduled external tool updater")
	return nil
}

func (s *Scheduler) AddHistoryPruner(spec string, retention time.Duration, p Pruner) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.pruneHistory(p, retention)
	})
	if err != nil {
		return utils.WrapError(utils.ErrConfigurationError, "invalid history prune schedule", map[string]any{
			"schedule": spec,
			"error":    err.Error(),
		})
	}
	logutils.Log.WithFields(map[string]any{
		"schedule":  spec,
		"retention": retention,
	}).Info("Scheduled download history pruning")
	return nil
}

func (s *Scheduler) pruneHistory(p Pruner, retention time.Duration) {
	cutoff := s.clock.Now().Add(-retention)
	removed, err := p.PruneDownloads(s.ctx, cutoff)
	if err != nil {
		logutils.Log.WithError(err).Warn("Failed to prune download history")
		return
	}
	logutils.Log.WithFields(map[string]any{
		"removed": removed,
		"before":  cutoff,
	}).Info("Pruned download history")
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logutils.Log.Info("Scheduler stopped")
}

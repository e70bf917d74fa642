package app

import (
	"context"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/database"
	"github.com/NikitaDmitryuk/tube-proxy/internal/downloader/manager"
	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor/youtube"
	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor/ytdlp"
	"github.com/NikitaDmitryuk/tube-proxy/internal/formatcache"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/notifier"
	"github.com/NikitaDmitryuk/tube-proxy/internal/progress"
	"github.com/NikitaDmitryuk/tube-proxy/internal/scheduler"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
)

// New opens the database and wires the production extractor, cache, manager and jobs.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	ds := cfg.GetDownloadSettings()

	gateway := extractor.Compose(
		youtube.NewProber(nil),
		ytdlp.NewTransferer(ds.YtdlpPath, ds.YtdlpProgressInterval),
	)
	a, err := Assemble(ctx, cfg, db, gateway)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// Assemble wires the services around an already opened database and gateway.
func Assemble(ctx context.Context, cfg *config.Config, db database.Database, gateway extractor.Gateway) (*App, error) {
	ds := cfg.GetDownloadSettings()
	clock := timeutil.NewSystemClock()
	a := &App{Config: cfg, DB: db}

	probes := extractor.NewWorkerPool("probe", ds.MaxConcurrentProbes)
	transfers := extractor.NewWorkerPool("transfer", ds.MaxConcurrentDownloads)
	a.closers = append(a.closers, probes.Shutdown, transfers.Shutdown)
	pooled := extractor.NewPooled(gateway, probes, transfers, ds.ProbeTimeout)

	store := newFormatStore(ctx, cfg, a)
	cache := formatcache.New(pooled, store, clock, cfg.GetCacheSettings().FormatCacheTTL)
	a.Formats = cache

	dm := manager.NewDownloadManager(cfg, pooled, db, cache, newCompletionNotifier(cfg))
	a.DownloadManager = dm
	a.Progress = progress.NewStreamer(dm, ds.MergedPolicy, ds.ProgressInterval)

	sched, err := newScheduler(cfg, db, clock)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Scheduler = sched

	logutils.Log.WithFields(map[string]any{
		"max_downloads": ds.MaxConcurrentDownloads,
		"max_probes":    ds.MaxConcurrentProbes,
		"merged_policy": ds.MergedPolicy,
		"jobs":          sched.Jobs(),
	}).Info("Application services initialized")
	return a, nil
}

// newFormatStore prefers Redis when configured and falls back to memory if it is unreachable.
func newFormatStore(ctx context.Context, cfg *config.Config, a *App) formatcache.Store {
	cs := cfg.GetCacheSettings()
	if cs.RedisAddr == "" {
		return formatcache.NewMemoryStore()
	}
	client, err := formatcache.NewRedisClient(ctx, cs.RedisAddr, cs.RedisPassword, cs.RedisDB)
	if err != nil {
		logutils.Log.WithError(err).Warn("Redis unavailable, using in-memory format cache")
		return formatcache.NewMemoryStore()
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	logutils.Log.WithField("addr", cs.RedisAddr).Info("Using Redis format cache")
	return formatcache.NewRedisStore(client, cs.FormatCacheTTL)
}

func newCompletionNotifier(cfg *config.Config) notifier.CompletionNotifier {
	ns := cfg.GetNotifySettings()
	var notifiers notifier.Multi

	if ns.WebhookURL != "" {
		notifiers = append(notifiers, notifier.NewWebhookNotifier(ns.WebhookURL))
	}
	if ns.TelegramBotToken != "" {
		tg, err := notifier.NewTelegramNotifier(ns.TelegramBotToken, ns.TelegramChatID)
		if err != nil {
			logutils.Log.WithError(err).Warn("Telegram notifications disabled")
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	if len(notifiers) == 0 {
		return notifier.Noop
	}
	return notifiers
}

func newScheduler(cfg *config.Config, db database.Database, clock timeutil.Clock) (*scheduler.Scheduler, error) {
	ss := cfg.GetScheduleSettings()
	sched := scheduler.New(clock)

	if ss.YtdlpUpdateSchedule != "" {
		updater := ytdlp.NewUpdater(cfg.GetDownloadSettings().YtdlpPath)
		if err := sched.AddUpdater(ss.YtdlpUpdateSchedule, updater); err != nil {
			return nil, err
		}
	}
	if ss.HistoryRetention > 0 {
		if err := sched.AddHistoryPruner(ss.HistoryPruneSchedule, ss.HistoryRetention, db); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

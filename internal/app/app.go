package app

import (
	"context"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/database"
	"github.com/NikitaDmitryuk/tube-proxy/internal/downloader/manager"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/scheduler"
)

// FormatService lists the encoding variants of a video.
type FormatService interface {
	GetVariants(ctx context.Context, videoID string) (*models.MediaInfo, error)
}

// ProgressStreamer relays live snapshots of one download.
type ProgressStreamer interface {
	Stream(ctx context.Context, videoID string) (<-chan models.Snapshot, error)
}

// App holds the services shared by the API handlers.
type App struct {
	Config          *config.Config
	DB              database.Database
	DownloadManager manager.Service
	Formats         FormatService
	Progress        ProgressStreamer
	Scheduler       *scheduler.Scheduler

	closers []func()
}

// Start begins background jobs.
func (a *App) Start() {
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}
}

// Close stops every download, then background jobs, then releases connections.
func (a *App) Close() {
	if a.DownloadManager != nil {
		a.DownloadManager.StopAll()
		logutils.Log.Info("All downloads stopped")
	}
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			logutils.Log.WithError(err).Warn("Failed to close database")
		}
	}
}

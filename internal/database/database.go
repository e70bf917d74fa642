package database

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
)

// DownloadReader is the read-only subset used by the history endpoints.
type DownloadReader interface {
	GetDownload(ctx context.Context, videoID string) (Download, error)
	ListDownloads(ctx context.Context, filter DownloadFilter) ([]Download, error)
}

// DownloadWriter is the subset a running download writes through.
type DownloadWriter interface {
	CreateDownload(ctx context.Context, download *Download) error
	UpdateDownloadProgress(ctx context.Context, videoID string, progress DownloadProgress) error
	DeleteDownload(ctx context.Context, videoID string) (Download, error)
	PruneDownloads(ctx context.Context, before time.Time) (int64, error)
}

type Database interface {
	Init(cfg *config.Config) error
	Close() error
	DownloadReader
	DownloadWriter
}

func NewDatabase(cfg *config.Config) (Database, error) {
	database := NewSQLiteDatabase()
	if err := database.Init(cfg); err != nil {
		logutils.Log.WithError(err).Error("Failed to initialize the database")
		return nil, err
	}

	logutils.Log.Info("Database initialized successfully")
	return database, nil
}

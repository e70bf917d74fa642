package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/downloader/task"
	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/notifier"
)

const defaultOutputName = "%(title)s"

// ErrStopped is returned by Start once StopAll has run.
var ErrStopped = errors.New("download manager is stopped")

// Service defines the external interface for the download manager.
// Consumers outside the manager package should depend on this interface.
type Service interface {
	Start(ctx context.Context, req StartRequest) ([]string, error)
	// Cancel requests cancellation; ids without a registered task are ignored.
	Cancel(videoIDs []string)
	Source(videoID string) (models.SnapshotSource, bool)
	Active() []models.Snapshot
	StopAll()
}

// TitleLookup supplies a known title for a video id without contacting the platform.
type TitleLookup interface {
	Peek(ctx context.Context, videoID string) (models.MediaInfo, bool)
}

type StartRequest struct {
	VideoIDs       []string
	Quality        string
	VideoFormatID  string
	AudioFormatID  string
	OutputFilename string
	OutputDir      string
	ChannelTitle   string
}

type DownloadManager struct {
	mu               sync.RWMutex
	jobs             map[string]*task.Task
	running          map[string]*task.Task
	stopped          bool
	wg               sync.WaitGroup
	ctx              context.Context
	cancel           context.CancelFunc
	gateway          extractor.Transferer
	sink             task.Sink
	titles           TitleLookup
	completion       notifier.CompletionNotifier
	downloadDir      string
	downloadSettings config.DownloadConfig
}

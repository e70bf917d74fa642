package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/mediaid"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	goytdlp "github.com/lrstanley/go-ytdlp"
)

const (
	defaultYtdlpBinary      = "yt-dlp"
	defaultProgressInterval = 500 * time.Millisecond
	mergeTool               = "ffmpeg"
)

var errReportedByYtdlp = errors.New("yt-dlp reported an error status")

// Transferer runs yt-dlp through go-ytdlp and translates its progress updates into extractor events.
type Transferer struct {
	binaryPath       string
	progressInterval time.Duration
}

func NewTransferer(binaryPath string, progressInterval time.Duration) *Transferer {
	if binaryPath == "" {
		binaryPath = defaultYtdlpBinary
	}
	if progressInterval <= 0 {
		progressInterval = defaultProgressInterval
	}
	return &Transferer{binaryPath: binaryPath, progressInterval: progressInterval}
}

var _ extractor.Transferer = (*Transferer)(nil)

func (t *Transferer) command(req extractor.TransferRequest) *goytdlp.Command {
	cmd := goytdlp.New().
		SetExecutable(t.binaryPath).
		Format(req.Format).
		Output(filepath.Join(req.OutputDir, req.OutputTemplate)).
		NoPlaylist()
	if req.MergeFormat != "" {
		cmd = cmd.MergeOutputFormat(req.MergeFormat)
	}
	return cmd
}

func (t *Transferer) Transfer(
	ctx context.Context,
	req extractor.TransferRequest,
	handler extractor.ProgressHandler,
) (extractor.Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var canceled atomic.Bool
	tracker := &streamTracker{}

	cmd := t.command(req)
	cmd.ProgressFunc(t.progressInterval, func(update goytdlp.ProgressUpdate) {
		if canceled.Load() {
			return
		}
		if req.Cancel != nil && req.Cancel.Canceled() {
			canceled.Store(true)
			cancel()
			return
		}
		handler(tracker.toEvent(&update))
	})

	logutils.Log.WithFields(map[string]any{
		"video_id": req.MediaID,
		"format":   req.Format,
		"dir":      req.OutputDir,
	}).Debug("Starting yt-dlp transfer")

	_, err := cmd.Run(runCtx, mediaid.WatchURL(req.MediaID))

	if canceled.Load() || (req.Cancel != nil && req.Cancel.Canceled()) {
		return extractor.OutcomeCanceled, nil
	}
	if err != nil {
		return extractor.OutcomeFailed, fmt.Errorf("%w: %w", utils.ErrTransferFailed, err)
	}

	for _, ev := range tracker.mergeEvents(req.Format) {
		handler(ev)
	}
	return extractor.OutcomeCompleted, nil
}

// streamTracker numbers the files of one run; yt-dlp restarts byte counters for each file.
type streamTracker struct {
	mu             sync.Mutex
	index          int
	finished       bool
	postProcessing bool
}

// mergeEvents returns the events closing a finished run. A selector such as
// "137+140/best" may fall back to a single file, so MERGED needs a second
// stream or a post-processing update as evidence.
func (s *streamTracker) mergeEvents(format string) []extractor.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.Contains(format, "+") || (s.index == 0 && !s.postProcessing) {
		return nil
	}
	var events []extractor.ProgressEvent
	if !s.postProcessing {
		events = append(events, extractor.ProgressEvent{Kind: extractor.EventPostProcessing, Stream: s.index, Tool: mergeTool})
	}
	return append(events, extractor.ProgressEvent{Kind: extractor.EventMerged, Stream: s.index, Tool: mergeTool})
}

func (s *streamTracker) toEvent(u *goytdlp.ProgressUpdate) extractor.ProgressEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := extractor.ProgressEvent{
		DownloadedBytes: int64(u.DownloadedBytes),
		TotalBytes:      int64(u.TotalBytes),
	}
	if u.Info != nil && u.Info.Title != nil {
		ev.Title = *u.Info.Title
	}

	switch u.Status {
	case goytdlp.ProgressStatusFinished:
		ev.Kind = extractor.EventStreamFinished
		s.finished = true
	case goytdlp.ProgressStatusPostProcessing:
		ev.Kind = extractor.EventPostProcessing
		ev.Tool = mergeTool
		s.postProcessing = true
	case goytdlp.ProgressStatusError:
		ev.Kind = extractor.EventError
		ev.Err = errReportedByYtdlp
	default:
		ev.Kind = extractor.EventDownloading
		if s.finished {
			s.index++
			s.finished = false
		}
		ev.ETA = u.ETA()
		if !u.Started.IsZero() {
			if elapsed := time.Since(u.Started).Seconds(); elapsed > 0 {
				ev.Speed = float64(u.DownloadedBytes) / elapsed
			}
		}
	}
	ev.Stream = s.index
	return ev
}

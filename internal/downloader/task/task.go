package task

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

const (
	DefaultSyncInterval = time.Second
	DefaultWriteTimeout = 5 * time.Second

	StageQueued           = "queued"
	StageDownloadingVideo = "downloading video"
	StageDownloadingAudio = "downloading audio"
	StageDownloadComplete = "download complete"
	StageMerging          = "merging"
	StageMergeComplete    = "merge complete"
	StageComplete         = "complete"
	StageCanceled         = "canceled"
	StageError            = "error"
)

// Sink persists download records. Failures are logged by the task and never change its state.
type Sink interface {
	CreateDownload(ctx context.Context, download *models.Download) error
	UpdateDownloadProgress(ctx context.Context, videoID string, progress models.DownloadProgress) error
}

type Options struct {
	VideoID      string
	Title        string
	ChannelTitle string
	Quality      string
	Request      extractor.TransferRequest
	Policy       models.MergedPolicy
	SyncInterval time.Duration
	WriteTimeout time.Duration
	Clock        timeutil.Clock
	// After, when set, delays the first record write until it is closed.
	// The manager passes the Done channel of the task this one replaces.
	After        <-chan struct{}
}

// Task is one retrieval of one media id, from registration to a terminal status.
type Task struct {
	mu sync.RWMutex

	videoID      string
	title        string
	channelTitle string
	quality      string
	status       models.Status
	stage        string
	errMsg       string

	downloaded int64
	total      int64
	speed      float64
	eta        time.Duration

	stream      int
	streamBase  int64
	streamBytes int64

	startedAt  time.Time
	finishedAt time.Time

	req          extractor.TransferRequest
	gateway      extractor.Transferer
	sink         Sink
	policy       models.MergedPolicy
	syncInterval time.Duration
	writeTimeout time.Duration
	clock        timeutil.Clock

	after      <-chan struct{}
	token      *CancelToken
	onComplete func(*Task)
	done       chan struct{}
}

func New(gateway extractor.Transferer, sink Sink, opts Options, onComplete func(*Task)) *Task {
	if opts.Clock == nil {
		opts.Clock = timeutil.NewSystemClock()
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Policy == "" {
		opts.Policy = models.MergedNonTerminal
	}
	opts.Request.MediaID = opts.VideoID

	return &Task{
		videoID:      opts.VideoID,
		title:        opts.Title,
		channelTitle: opts.ChannelTitle,
		quality:      opts.Quality,
		status:       models.StatusQueued,
		stage:        StageQueued,
		startedAt:    opts.Clock.Now(),
		req:          opts.Request,
		gateway:      gateway,
		sink:         sink,
		policy:       opts.Policy,
		syncInterval: opts.SyncInterval,
		writeTimeout: opts.WriteTimeout,
		clock:        opts.Clock,
		after:        opts.After,
		token:        NewCancelToken(),
		onComplete:   onComplete,
		done:         make(chan struct{}),
	}
}

func (t *Task) VideoID() string { return t.videoID }

func (t *Task) Status() models.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Task) Title() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.title
}

func (t *Task) Err() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errMsg
}

// Done is closed after Run has returned and the completion callback has run.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel sets the cancel token. It returns false if the task had already finished.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsTerminal() {
		return false
	}
	t.token.Cancel()
	return true
}

// Snapshot implements models.SnapshotSource.
func (t *Task) Snapshot() models.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := models.Snapshot{
		VideoID:         t.videoID,
		DownloadedBytes: t.downloaded,
		Status:          t.status,
		Stage:           t.stage,
	}
	if t.total > 0 {
		total := t.total
		snap.TotalBytes = &total
		snap.Progress = math.Round(float64(t.downloaded)/float64(t.total)*10000) / 100
	}

	end := t.clock.Now()
	if !t.finishedAt.IsZero() {
		end = t.finishedAt
	}
	snap.Elapsed = math.Round(end.Sub(t.startedAt).Seconds()*100) / 100

	if !t.status.IsTerminal() {
		if t.speed > 0 {
			speed := t.speed
			snap.Speed = &speed
		}
		if t.eta > 0 {
			eta := int64(t.eta.Seconds())
			snap.ETA = &eta
		}
	}
	return snap
}

// Run performs the retrieval and blocks until the task is terminal and its record is final.
func (t *Task) Run(ctx context.Context) {
	defer close(t.done)
	log := logutils.Log.WithField("video_id", t.videoID)

	if t.after != nil {
		select {
		case <-t.after:
		case <-ctx.Done():
		}
	}
	t.createRecord(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-t.token.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	finished := make(chan struct{})
	lastWritten := make(chan models.Status, 1)
	go func() {
		lastWritten <- t.syncLoop(ctx, finished)
	}()

	req := t.req
	req.Cancel = t.token
	log.WithField("format", req.Format).Info("Download started")
	outcome, err := t.gateway.Transfer(runCtx, req, t.handleEvent)

	final := t.finish(outcome, err)
	close(finished)
	if last := <-lastWritten; last != final {
		t.writeProgress(ctx)
	}

	log.WithFields(map[string]any{
		"status":  final,
		"outcome": outcome.String(),
	}).Info("Download finished")

	if t.onComplete != nil {
		t.onComplete(t)
	}
}

func (t *Task) handleEvent(ev extractor.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsTerminal() || t.token.Canceled() {
		return
	}
	if ev.Title != "" && t.title == "" {
		t.title = ev.Title
	}

	switch ev.Kind {
	case extractor.EventDownloading:
		t.advanceStream(ev.Stream)
		t.applyBytes(ev.DownloadedBytes, ev.TotalBytes)
		t.speed, t.eta = ev.Speed, ev.ETA
		if !t.transition(models.StatusDownloading) {
			return
		}
		if t.stream == 0 {
			t.stage = StageDownloadingVideo
		} else {
			t.stage = StageDownloadingAudio
		}
	case extractor.EventStreamFinished:
		t.advanceStream(ev.Stream)
		t.applyBytes(ev.DownloadedBytes, ev.TotalBytes)
		t.speed, t.eta = 0, 0
		t.stage = StageDownloadComplete
	case extractor.EventPostProcessing:
		t.stage = StageMerging
		if ev.Tool != "" {
			t.stage = StageMerging + ": " + ev.Tool
		}
	case extractor.EventMerged:
		if t.transition(models.StatusMerged) {
			t.stage = StageMergeComplete
		}
	case extractor.EventError:
		if t.transition(models.StatusError) {
			t.stage = StageError
			t.errMsg = utils.ErrorMessage(ev.Err)
			t.finishedAt = t.clock.Now()
		}
	}
}

// advanceStream folds the finished stream's bytes into the base when a new stream starts.
func (t *Task) advanceStream(stream int) {
	if stream <= t.stream {
		return
	}
	t.streamBase += t.streamBytes
	t.streamBytes = 0
	t.stream = stream
}

func (t *Task) applyBytes(downloaded, total int64) {
	if downloaded > t.streamBytes {
		t.streamBytes = downloaded
	}
	if cumulative := t.streamBase + t.streamBytes; cumulative > t.downloaded {
		t.downloaded = cumulative
	}
	if total > 0 {
		if cumulative := t.streamBase + total; cumulative > t.total {
			t.total = cumulative
		}
	}
}

func (t *Task) transition(next models.Status) bool {
	if !t.status.CanTransitionTo(next) {
		logutils.Log.WithFields(map[string]any{
			"video_id": t.videoID,
			"from":     t.status,
			"to":       next,
		}).Debug("Ignoring status transition")
		return false
	}
	t.status = next
	return true
}

func (t *Task) finish(outcome extractor.Outcome, err error) models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.token.Canceled() && !t.status.IsTerminal():
		t.status, t.stage = models.StatusCanceled, StageCanceled
	case t.status.IsTerminal():
	case err != nil || outcome == extractor.OutcomeFailed:
		t.status, t.stage = models.StatusError, StageError
		if err != nil {
			t.errMsg = utils.ErrorMessage(err)
		} else {
			t.errMsg = utils.ErrTransferFailed.Error()
		}
	case outcome == extractor.OutcomeCanceled:
		t.status, t.stage = models.StatusCanceled, StageCanceled
	default:
		t.status, t.stage = models.StatusComplete, StageComplete
		if t.total < t.downloaded {
			t.total = t.downloaded
		}
		t.downloaded = t.total
	}

	if t.finishedAt.IsZero() {
		t.finishedAt = t.clock.Now()
	}
	t.speed, t.eta = 0, 0
	return t.status
}

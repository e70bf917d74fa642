package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/downloader/task"
	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/mediaid"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/notifier"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

func NewDownloadManager(
	cfg *config.Config,
	gateway extractor.Transferer,
	sink task.Sink,
	titles TitleLookup,
	completion notifier.CompletionNotifier,
) *DownloadManager {
	if completion == nil {
		completion = notifier.Noop
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DownloadManager{
		jobs:             make(map[string]*task.Task),
		running:          make(map[string]*task.Task),
		ctx:              ctx,
		cancel:           cancel,
		gateway:          gateway,
		sink:             sink,
		titles:           titles,
		completion:       completion,
		downloadDir:      cfg.DownloadDir,
		downloadSettings: cfg.GetDownloadSettings(),
	}
}

var _ Service = (*DownloadManager)(nil)

// Start validates the whole request, registers one task per id and only then returns.
// A task already registered for an id is canceled and replaced.
func (dm *DownloadManager) Start(ctx context.Context, req StartRequest) ([]string, error) {
	ids, err := parseIDs(req.VideoIDs)
	if err != nil {
		return nil, err
	}
	format, err := formatSelector(req)
	if err != nil {
		return nil, err
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = dm.downloadDir
	}

	for _, id := range ids {
		opts := task.Options{
			VideoID:      id,
			Title:        dm.knownTitle(ctx, id),
			ChannelTitle: req.ChannelTitle,
			Quality:      qualityLabel(req),
			Request: extractor.TransferRequest{
				Format:         format,
				OutputDir:      outputDir,
				OutputTemplate: outputTemplate(req.OutputFilename, id, len(ids) > 1),
				MergeFormat:    dm.downloadSettings.MergeOutputFormat,
			},
			Policy:       dm.downloadSettings.MergedPolicy,
			SyncInterval: dm.downloadSettings.SyncInterval,
		}

		dm.mu.Lock()
		if dm.stopped {
			dm.mu.Unlock()
			return nil, ErrStopped
		}
		if previous, exists := dm.jobs[id]; exists {
			previous.Cancel()
			logutils.Log.WithField("video_id", id).Info("Replacing existing download")
		}
		// A canceled task may already be out of jobs while it still writes its record.
		if last, exists := dm.running[id]; exists {
			opts.After = last.Done()
		}
		t := task.New(dm.gateway, dm.sink, opts, dm.onTaskComplete)
		dm.jobs[id] = t
		dm.running[id] = t
		dm.wg.Add(1)
		dm.mu.Unlock()

		go func() {
			defer dm.wg.Done()
			t.Run(dm.ctx)
		}()

		logutils.Log.WithFields(map[string]any{
			"video_id": id,
			"format":   format,
			"dir":      outputDir,
		}).Info("Download registered")
	}
	return ids, nil
}

// Cancel removes each task from the registry at once and sets its cancel token.
func (dm *DownloadManager) Cancel(videoIDs []string) {
	for _, raw := range videoIDs {
		id, err := mediaid.Parse(raw)
		if err != nil {
			id = raw
		}

		dm.mu.Lock()
		t, exists := dm.jobs[id]
		delete(dm.jobs, id)
		dm.mu.Unlock()

		if !exists {
			logutils.Log.WithField("video_id", id).Debug("Download not found in active downloads (likely already completed)")
			continue
		}
		t.Cancel()
		logutils.Log.WithField("video_id", id).Info("Download cancellation requested")
	}
}

func (dm *DownloadManager) Source(videoID string) (models.SnapshotSource, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	t, exists := dm.jobs[videoID]
	if !exists {
		return nil, false
	}
	return t, true
}

func (dm *DownloadManager) Active() []models.Snapshot {
	dm.mu.RLock()
	snapshots := make([]models.Snapshot, 0, len(dm.jobs))
	for _, t := range dm.jobs {
		snapshots = append(snapshots, t.Snapshot())
	}
	dm.mu.RUnlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].VideoID < snapshots[j].VideoID
	})
	return snapshots
}

// StopAll cancels every registered task and waits for all task goroutines to return.
// Start fails with ErrStopped afterwards.
func (dm *DownloadManager) StopAll() {
	dm.mu.Lock()
	tasks := make([]*task.Task, 0, len(dm.jobs))
	for _, t := range dm.jobs {
		tasks = append(tasks, t)
	}
	dm.jobs = make(map[string]*task.Task)
	dm.stopped = true
	dm.mu.Unlock()

	logutils.Log.WithField("count", len(tasks)).Info("Stopping all downloads")
	for _, t := range tasks {
		t.Cancel()
	}
	dm.wg.Wait()
	dm.cancel()
}

func (dm *DownloadManager) onTaskComplete(t *task.Task) {
	id := t.VideoID()

	dm.mu.Lock()
	if current, exists := dm.jobs[id]; exists && current == t {
		delete(dm.jobs, id)
	}
	if last, exists := dm.running[id]; exists && last == t {
		delete(dm.running, id)
	}
	dm.mu.Unlock()

	var err error
	if msg := t.Err(); msg != "" {
		err = errors.New(msg)
	}
	// Notifiers may retry over the network; StopAll does not wait for them.
	go notifier.Dispatch(dm.completion, id, t.Title(), t.Status(), err)
}

func (dm *DownloadManager) knownTitle(ctx context.Context, id string) string {
	if dm.titles == nil {
		return ""
	}
	if info, ok := dm.titles.Peek(ctx, id); ok {
		return info.Title
	}
	return ""
}

func parseIDs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no video ids given: %w", utils.ErrInvalidMediaID)
	}
	ids := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		id, err := mediaid.Parse(r)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// formatSelector returns the quality verbatim, or "<video>+<audio>" when both ids are given.
func formatSelector(req StartRequest) (string, error) {
	if req.Quality != "" {
		return req.Quality, nil
	}
	if req.VideoFormatID != "" && req.AudioFormatID != "" {
		return req.VideoFormatID + "+" + req.AudioFormatID, nil
	}
	return "", utils.ErrMissingFormat
}

func qualityLabel(req StartRequest) string {
	if req.Quality != "" {
		return req.Quality
	}
	return req.VideoFormatID + "+" + req.AudioFormatID
}

// outputTemplate builds the yt-dlp output template for one id.
// A shared filename gets the id appended so multi-id requests do not overwrite each other.
func outputTemplate(filename, id string, multi bool) string {
	name := utils.SanitizeFileName(filename)
	switch {
	case name == "":
		name = defaultOutputName + " - " + id
	case multi:
		name += " - " + id
	}
	return name + ".%(ext)s"
}

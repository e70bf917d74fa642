package task

import (
	"context"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

func (t *Task) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), t.writeTimeout)
}

func (t *Task) createRecord(ctx context.Context) {
	if t.sink == nil {
		return
	}
	t.mu.RLock()
	record := &models.Download{
		VideoID:      t.videoID,
		Title:        t.title,
		ChannelTitle: t.channelTitle,
		Quality:      t.quality,
		OutputDir:    t.req.OutputDir,
		Status:       t.status,
		Stage:        t.stage,
	}
	t.mu.RUnlock()

	writeCtx, cancel := t.writeContext(ctx)
	defer cancel()
	if err := t.sink.CreateDownload(writeCtx, record); err != nil {
		logutils.Log.WithError(err).WithField("video_id", t.videoID).Warn("Failed to create download record")
	}
}

func (t *Task) progress() models.DownloadProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p := models.DownloadProgress{
		Title:           t.title,
		Status:          t.status,
		Stage:           t.stage,
		DownloadedBytes: t.downloaded,
		ErrorMessage:    t.errMsg,
	}
	if t.total > 0 {
		total := t.total
		p.TotalBytes = &total
	}
	return p
}

// writeProgress stores the current state and returns the status written, or "" if the write failed.
func (t *Task) writeProgress(ctx context.Context) models.Status {
	p := t.progress()
	if t.sink == nil {
		return p.Status
	}

	writeCtx, cancel := t.writeContext(ctx)
	defer cancel()
	if err := t.sink.UpdateDownloadProgress(writeCtx, t.videoID, p); err != nil {
		logutils.Log.WithError(err).WithFields(map[string]any{
			"video_id": t.videoID,
			"status":   p.Status,
		}).Warn("Failed to sync download progress")
		return ""
	}
	return p.Status
}

// syncLoop writes progress every interval until a write lands on a SyncDone status
// or finished is closed, whichever comes first.
func (t *Task) syncLoop(ctx context.Context, finished <-chan struct{}) models.Status {
	ticker := time.NewTicker(t.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-finished:
			return t.writeProgress(ctx)
		}
		if status := t.writeProgress(ctx); t.policy.SyncDone(status) {
			return status
		}
	}
}

package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// FakeGateway is a scripted extractor. Transfer replays Events in order, checking the
// cancel token before each one, and then returns Outcome and Err.
type FakeGateway struct {
	mu sync.Mutex

	Info     *models.MediaInfo
	ProbeErr error

	Events    []extractor.ProgressEvent
	StepDelay time.Duration
	// Hold, when set, keeps Transfer running after the events until it is closed or the transfer is canceled.
	Hold    chan struct{}
	Outcome extractor.Outcome
	Err     error

	probeCalls int
	requests   []extractor.TransferRequest
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{Outcome: extractor.OutcomeCompleted}
}

var _ extractor.Gateway = (*FakeGateway)(nil)

func (f *FakeGateway) Probe(_ context.Context, mediaID string) (*models.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	if f.ProbeErr != nil {
		return nil, f.ProbeErr
	}
	if f.Info != nil {
		info := *f.Info
		info.VideoID = mediaID
		return &info, nil
	}
	return &models.MediaInfo{VideoID: mediaID, Title: "Test video " + mediaID}, nil
}

func (f *FakeGateway) Transfer(
	ctx context.Context,
	req extractor.TransferRequest,
	handler extractor.ProgressHandler,
) (extractor.Outcome, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	events := append([]extractor.ProgressEvent(nil), f.Events...)
	delay, hold := f.StepDelay, f.Hold
	outcome, err := f.Outcome, f.Err
	f.mu.Unlock()

	canceled := func() bool { return req.Cancel != nil && req.Cancel.Canceled() }

	for _, ev := range events {
		if canceled() {
			return extractor.OutcomeCanceled, nil
		}
		handler(ev)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
		}
	}

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}
	if canceled() {
		return extractor.OutcomeCanceled, nil
	}
	if ctx.Err() != nil {
		return extractor.OutcomeFailed, ctx.Err()
	}
	return outcome, err
}

func (f *FakeGateway) ProbeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeCalls
}

func (f *FakeGateway) Requests() []extractor.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extractor.TransferRequest(nil), f.requests...)
}

// SingleStreamEvents simulates a quality-only download of total bytes in steps chunks.
func SingleStreamEvents(total int64, steps int) []extractor.ProgressEvent {
	events := make([]extractor.ProgressEvent, 0, steps+1)
	for i := 1; i <= steps; i++ {
		done := total * int64(i) / int64(steps)
		events = append(events, extractor.ProgressEvent{
			Kind:            extractor.EventDownloading,
			DownloadedBytes: done,
			TotalBytes:      total,
			Speed:           float64(total) / float64(steps),
			ETA:             time.Duration(steps-i) * time.Second,
		})
	}
	return append(events, extractor.ProgressEvent{
		Kind:            extractor.EventStreamFinished,
		DownloadedBytes: total,
		TotalBytes:      total,
	})
}

// MergedEvents simulates a video stream, an audio stream and a merge.
func MergedEvents(videoTotal, audioTotal int64) []extractor.ProgressEvent {
	return []extractor.ProgressEvent{
		{Kind: extractor.EventDownloading, Stream: 0, DownloadedBytes: videoTotal / 2, TotalBytes: videoTotal},
		{Kind: extractor.EventDownloading, Stream: 0, DownloadedBytes: videoTotal, TotalBytes: videoTotal},
		{Kind: extractor.EventStreamFinished, Stream: 0, DownloadedBytes: videoTotal, TotalBytes: videoTotal},
		{Kind: extractor.EventDownloading, Stream: 1, DownloadedBytes: audioTotal / 2, TotalBytes: audioTotal},
		{Kind: extractor.EventDownloading, Stream: 1, DownloadedBytes: audioTotal, TotalBytes: audioTotal},
		{Kind: extractor.EventStreamFinished, Stream: 1, DownloadedBytes: audioTotal, TotalBytes: audioTotal},
		{Kind: extractor.EventPostProcessing, Stream: 1, Tool: "ffmpeg"},
		{Kind: extractor.EventMerged, Stream: 1, Tool: "ffmpeg"},
	}
}

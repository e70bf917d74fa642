package task

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/extractor"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/testutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/timeutil"
)

const waitTimeout = 2 * time.Second

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

// observingGateway calls onEvent after the task has handled each event.
type observingGateway struct {
	inner   extractor.Transferer
	onEvent func(extractor.ProgressEvent)
}

func (o *observingGateway) Transfer(
	ctx context.Context,
	req extractor.TransferRequest,
	handler extractor.ProgressHandler,
) (extractor.Outcome, error) {
	return o.inner.Transfer(ctx, req, func(ev extractor.ProgressEvent) {
		handler(ev)
		o.onEvent(ev)
	})
}

func newTask(gw extractor.Transferer, sink Sink, onComplete func(*Task)) *Task {
	return New(gw, sink, Options{
		VideoID:      "dQw4w9WgXcQ",
		Quality:      "best",
		Request:      extractor.TransferRequest{Format: "best", OutputDir: os.TempDir()},
		SyncInterval: 10 * time.Millisecond,
		WriteTimeout: time.Second,
	}, onComplete)
}

func waitDone(t *testing.T, tk *Task) {
	t.Helper()
	select {
	case <-tk.Done():
	case <-time.After(waitTimeout):
		t.Fatal("task did not finish")
	}
}

func TestRun_QualityOnlyCompletes(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = testutils.SingleStreamEvents(4096, 4)
	sink := &testutils.RecordingSink{}

	var tk *Task
	var afterFirst models.Status
	var once sync.Once
	gw := &observingGateway{inner: fake, onEvent: func(extractor.ProgressEvent) {
		once.Do(func() { afterFirst = tk.Status() })
	}}

	var completions int
	tk = newTask(gw, sink, func(*Task) { completions++ })
	tk.Run(context.Background())

	if afterFirst != models.StatusDownloading {
		t.Errorf("status after first event = %q, want %q", afterFirst, models.StatusDownloading)
	}

	snap := tk.Snapshot()
	if snap.Status != models.StatusComplete {
		t.Fatalf("status = %q, want %q", snap.Status, models.StatusComplete)
	}
	if snap.TotalBytes == nil || snap.DownloadedBytes != *snap.TotalBytes || snap.DownloadedBytes != 4096 {
		t.Errorf("bytes = %d/%v, want 4096/4096", snap.DownloadedBytes, snap.TotalBytes)
	}
	if snap.Progress != 100 {
		t.Errorf("progress = %v, want 100", snap.Progress)
	}
	if snap.Speed != nil || snap.ETA != nil {
		t.Errorf("speed/eta should be cleared on terminal snapshot: %v %v", snap.Speed, snap.ETA)
	}
	if completions != 1 {
		t.Errorf("onComplete called %d times, want 1", completions)
	}

	if sink.CreatedCount() != 1 {
		t.Errorf("created %d records, want 1", sink.CreatedCount())
	}
	last, ok := sink.LastUpdate()
	if !ok || last.Status != models.StatusComplete || last.DownloadedBytes != 4096 {
		t.Errorf("last persisted progress = %+v", last)
	}

	reqs := fake.Requests()
	if len(reqs) != 1 || reqs[0].MediaID != "dQw4w9WgXcQ" || reqs[0].Cancel == nil {
		t.Errorf("transfer request = %+v", reqs)
	}
}

func TestCancel_WhileDownloading(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = testutils.SingleStreamEvents(1000, 1)[:1]
	fake.Hold = make(chan struct{})
	sink := &testutils.RecordingSink{}

	tk := newTask(fake, sink, nil)
	go tk.Run(context.Background())

	testutils.WaitFor(t, waitTimeout, "downloading", func() bool {
		return tk.Status() == models.StatusDownloading
	})
	if !tk.Cancel() {
		t.Fatal("Cancel() = false on a running task")
	}
	waitDone(t, tk)

	if got := tk.Status(); got != models.StatusCanceled {
		t.Errorf("status = %q, want %q", got, models.StatusCanceled)
	}
	if last, _ := sink.LastUpdate(); last.Status != models.StatusCanceled {
		t.Errorf("last persisted status = %q, want %q", last.Status, models.StatusCanceled)
	}
	if tk.Cancel() {
		t.Error("Cancel() = true on a finished task")
	}
}

func TestCancel_BeforeRun(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = testutils.SingleStreamEvents(1000, 2)

	tk := newTask(fake, nil, nil)
	tk.Cancel()
	tk.Run(context.Background())

	snap := tk.Snapshot()
	if snap.Status != models.StatusCanceled || snap.DownloadedBytes != 0 {
		t.Errorf("snapshot = %+v, want canceled with no bytes", snap)
	}
}

func TestCancel_WinsOverCompletion(t *testing.T) {
	fake := testutils.NewFakeGateway()
	var tk *Task
	gw := &observingGateway{inner: fake, onEvent: func(extractor.ProgressEvent) { tk.Cancel() }}
	fake.Events = testutils.SingleStreamEvents(100, 1)[:1]

	tk = newTask(gw, nil, nil)
	tk.Run(context.Background())

	if got := tk.Status(); got != models.StatusCanceled {
		t.Errorf("status = %q, want %q", got, models.StatusCanceled)
	}
}

func TestRun_ErrorEvent(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = []extractor.ProgressEvent{
		{Kind: extractor.EventDownloading, DownloadedBytes: 10, TotalBytes: 100},
		{Kind: extractor.EventError, Err: errors.New("HTTP Error 403: Forbidden")},
		{Kind: extractor.EventDownloading, DownloadedBytes: 50, TotalBytes: 100},
	}
	sink := &testutils.RecordingSink{}

	tk := newTask(fake, sink, nil)
	tk.Run(context.Background())

	snap := tk.Snapshot()
	if snap.Status != models.StatusError {
		t.Fatalf("status = %q, want %q", snap.Status, models.StatusError)
	}
	if snap.DownloadedBytes != 10 {
		t.Errorf("bytes after error = %d, want 10 (later events ignored)", snap.DownloadedBytes)
	}
	if tk.Err() != "HTTP Error 403: Forbidden" {
		t.Errorf("error message = %q", tk.Err())
	}
	if last, _ := sink.LastUpdate(); last.Status != models.StatusError || last.ErrorMessage == "" {
		t.Errorf("last persisted progress = %+v", last)
	}
}

func TestRun_TransferFailure(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Outcome = extractor.OutcomeFailed
	fake.Err = errors.New("yt-dlp exited with status 1")

	tk := newTask(fake, nil, nil)
	tk.Run(context.Background())

	if tk.Status() != models.StatusError || tk.Err() != "yt-dlp exited with status 1" {
		t.Errorf("status = %q, err = %q", tk.Status(), tk.Err())
	}
}

func TestRun_FailedOutcomeWithoutError(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Outcome = extractor.OutcomeFailed

	tk := newTask(fake, nil, nil)
	tk.Run(context.Background())

	if tk.Status() != models.StatusError || tk.Err() == "" {
		t.Errorf("status = %q, err = %q", tk.Status(), tk.Err())
	}
}

func TestHandleEvent_BytesNeverDecrease(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = append([]extractor.ProgressEvent{
		{Kind: extractor.EventDownloading, DownloadedBytes: 300, TotalBytes: 1000},
		{Kind: extractor.EventDownloading, DownloadedBytes: 200, TotalBytes: 1000},
	}, testutils.MergedEvents(1000, 400)...)

	var tk *Task
	var observed []int64
	gw := &observingGateway{inner: fake, onEvent: func(extractor.ProgressEvent) {
		observed = append(observed, tk.Snapshot().DownloadedBytes)
	}}
	tk = newTask(gw, nil, nil)
	tk.Run(context.Background())

	for i := 1; i < len(observed); i++ {
		if observed[i] < observed[i-1] {
			t.Fatalf("downloaded bytes decreased at event %d: %v", i, observed)
		}
	}
	snap := tk.Snapshot()
	if snap.DownloadedBytes != 1400 || snap.TotalBytes == nil || *snap.TotalBytes != 1400 {
		t.Errorf("final bytes = %d/%v, want 1400/1400", snap.DownloadedBytes, snap.TotalBytes)
	}
}

func TestHandleEvent_Stages(t *testing.T) {
	tk := newTask(testutils.NewFakeGateway(), nil, nil)

	steps := []struct {
		ev         extractor.ProgressEvent
		wantStatus models.Status
		wantStage  string
	}{
		{extractor.ProgressEvent{Kind: extractor.EventMerged}, models.StatusQueued, StageQueued},
		{extractor.ProgressEvent{Kind: extractor.EventDownloading, DownloadedBytes: 1, TotalBytes: 2}, models.StatusDownloading, StageDownloadingVideo},
		{extractor.ProgressEvent{Kind: extractor.EventStreamFinished, DownloadedBytes: 2, TotalBytes: 2}, models.StatusDownloading, StageDownloadComplete},
		{extractor.ProgressEvent{Kind: extractor.EventDownloading, Stream: 1, DownloadedBytes: 1, TotalBytes: 2}, models.StatusDownloading, StageDownloadingAudio},
		{extractor.ProgressEvent{Kind: extractor.EventPostProcessing, Stream: 1, Tool: "ffmpeg"}, models.StatusDownloading, "merging: ffmpeg"},
		{extractor.ProgressEvent{Kind: extractor.EventMerged, Stream: 1}, models.StatusMerged, StageMergeComplete},
		{extractor.ProgressEvent{Kind: extractor.EventDownloading, Stream: 1, DownloadedBytes: 2, TotalBytes: 2}, models.StatusMerged, StageMergeComplete},
	}
	for i, step := range steps {
		tk.handleEvent(step.ev)
		snap := tk.Snapshot()
		if snap.Status != step.wantStatus {
			t.Errorf("step %d: status = %q, want %q", i, snap.Status, step.wantStatus)
		}
		if snap.Stage != step.wantStage {
			t.Errorf("step %d: stage = %q, want %q", i, snap.Stage, step.wantStage)
		}
	}
}

func TestSyncLoop_StopsAtMergedThenFinalWrite(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = testutils.MergedEvents(1000, 400)
	fake.Hold = make(chan struct{})
	sink := &testutils.RecordingSink{}

	tk := newTask(fake, sink, nil)
	go tk.Run(context.Background())

	testutils.WaitFor(t, waitTimeout, "merged write", func() bool {
		last, ok := sink.LastUpdate()
		return ok && last.Status == models.StatusMerged
	})
	attempts := sink.AttemptCount()
	time.Sleep(50 * time.Millisecond)
	if got := sink.AttemptCount(); got != attempts {
		t.Errorf("sync loop kept writing after merged: %d -> %d", attempts, got)
	}
	if got := tk.Status(); got != models.StatusMerged {
		t.Errorf("status while held = %q, want %q", got, models.StatusMerged)
	}

	close(fake.Hold)
	waitDone(t, tk)

	last, _ := sink.LastUpdate()
	if last.Status != models.StatusComplete {
		t.Errorf("final persisted status = %q, want %q", last.Status, models.StatusComplete)
	}
}

func TestRun_SinkFailuresDoNotAffectTask(t *testing.T) {
	fake := testutils.NewFakeGateway()
	fake.Events = testutils.SingleStreamEvents(100, 2)
	sink := &testutils.RecordingSink{
		CreateErr: errors.New("disk full"),
		UpdateErr: errors.New("database is locked"),
	}

	completed := make(chan struct{})
	tk := newTask(fake, sink, func(*Task) { close(completed) })
	tk.Run(context.Background())

	select {
	case <-completed:
	default:
		t.Fatal("onComplete not called")
	}
	if tk.Status() != models.StatusComplete {
		t.Errorf("status = %q, want %q", tk.Status(), models.StatusComplete)
	}
	if sink.AttemptCount() == 0 {
		t.Error("no persistence attempts were made")
	}
}

func TestSnapshot_Queued(t *testing.T) {
	clock := timeutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := New(testutils.NewFakeGateway(), nil, Options{VideoID: "dQw4w9WgXcQ", Clock: clock}, nil)
	clock.Advance(1500 * time.Millisecond)

	snap := tk.Snapshot()
	if snap.Status != models.StatusQueued || snap.Stage != StageQueued {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.TotalBytes != nil || snap.ETA != nil || snap.Speed != nil || snap.Progress != 0 {
		t.Errorf("unknown counters should be null: %+v", snap)
	}
	if snap.Elapsed != 1.5 {
		t.Errorf("elapsed = %v, want 1.5", snap.Elapsed)
	}
}

func TestCancelToken(t *testing.T) {
	tok := NewCancelToken()
	if tok.Canceled() {
		t.Fatal("new token is canceled")
	}
	tok.Cancel()
	tok.Cancel()
	if !tok.Canceled() {
		t.Fatal("token not canceled")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatal("Done not closed")
	}
}

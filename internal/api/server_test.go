package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/app"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/testutils"
)

const rickID = "dQw4w9WgXcQ"

func TestMain(m *testing.M) {
	logutils.InitLogger("error")
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, gw *testutils.FakeGateway, apiKey string) (*Server, *app.App) {
	t.Helper()
	a, err := app.Assemble(context.Background(), testutils.TestConfig(t.TempDir()), testutils.TestDatabase(t), gw)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	t.Cleanup(a.Close)
	return NewServer(a, "127.0.0.1:0", apiKey), a
}

func do(s *Server, method, target string, body io.Reader, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:12345"
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, testutils.NewFakeGateway(), "")

	rec := do(s, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[HealthResponse](t, rec); got.Status != "ok" {
		t.Errorf("body = %+v", got)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing generated request id")
	}

	if rec := do(s, http.MethodPost, "/health", nil, nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST /health status = %d, want 405", rec.Code)
	}
}

func TestChain_Auth(t *testing.T) {
	keyed, _ := newTestServer(t, testutils.NewFakeGateway(), "secret")
	open, _ := newTestServer(t, testutils.NewFakeGateway(), "")

	tests := []struct {
		name   string
		server *Server
		mutate func(*http.Request)
		want   int
	}{
		{"missing key", keyed, nil, http.StatusUnauthorized},
		{"wrong key", keyed, func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, http.StatusUnauthorized},
		{"bearer", keyed, func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") }, http.StatusOK},
		{"x-api-key", keyed, func(r *http.Request) { r.Header.Set("X-API-Key", "secret") }, http.StatusOK},
		{"no key localhost", open, nil, http.StatusOK},
		{"no key remote", open, func(r *http.Request) { r.RemoteAddr = "203.0.113.9:5555" }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(tt.server, http.MethodGet, "/health", nil, tt.mutate); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChain_DockerAllowsPrivateNetwork(t *testing.T) {
	s, a := newTestServer(t, testutils.NewFakeGateway(), "")
	a.Config.RunningInDocker = true
	docker := NewServer(a, "127.0.0.1:0", "")

	private := func(r *http.Request) { r.RemoteAddr = "172.17.0.1:40000" }
	if rec := do(docker, http.MethodGet, "/health", nil, private); rec.Code != http.StatusOK {
		t.Errorf("docker private status = %d, want 200", rec.Code)
	}
	if rec := do(docker, http.MethodGet, "/health", nil, func(r *http.Request) { r.RemoteAddr = "8.8.8.8:1" }); rec.Code != http.StatusUnauthorized {
		t.Errorf("docker public status = %d, want 401", rec.Code)
	}
	if rec := do(s, http.MethodGet, "/health", nil, private); rec.Code != http.StatusUnauthorized {
		t.Errorf("non-docker private status = %d, want 401", rec.Code)
	}
}

func TestChain_EchoesRequestID(t *testing.T) {
	s, _ := newTestServer(t, testutils.NewFakeGateway(), "")
	rec := do(s, http.MethodGet, "/health", nil, func(r *http.Request) { r.Header.Set(requestIDHeader, "req-42") })
	if got := rec.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("request id = %q, want req-42", got)
	}
}

func TestGetFormats(t *testing.T) {
	gw := testutils.NewFakeGateway()
	size := int64(1024)
	gw.Info = &models.MediaInfo{
		Title: "Never Gonna Give You Up",
		Formats: []models.EncodingVariant{
			{FormatID: "140", Ext: "m4a", VCodec: "none", ACodec: "mp4a.40.2", FileSize: &size, Type: models.KindAudioOnly},
		},
	}
	s, _ := newTestServer(t, gw, "")

	rec := do(s, http.MethodGet, "/downloads/formats/"+rickID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	info := decode[models.MediaInfo](t, rec)
	if info.VideoID != rickID || info.Title != "Never Gonna Give You Up" || len(info.Formats) != 1 {
		t.Errorf("info = %+v", info)
	}

	do(s, http.MethodGet, "/downloads/formats/"+rickID, nil, nil)
	if calls := gw.ProbeCalls(); calls != 1 {
		t.Errorf("probe calls = %d, want 1 within the cache window", calls)
	}
}

func TestGetFormats_Errors(t *testing.T) {
	gw := testutils.NewFakeGateway()
	gw.ProbeErr = errors.New("video unavailable")
	s, _ := newTestServer(t, gw, "")

	if rec := do(s, http.MethodGet, "/downloads/formats/short", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}

	rec := do(s, http.MethodGet, "/downloads/formats/"+rickID, nil, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decode[ErrorResponse](t, rec); got.Error != "failed to fetch formats" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestStartDownload_Validation(t *testing.T) {
	gw := testutils.NewFakeGateway()
	s, a := newTestServer(t, gw, "")

	tests := []struct {
		name  string
		query string
	}{
		{"no ids", "quality=best"},
		{"no format", "video_ids=" + rickID},
		{"video format only", "video_ids=" + rickID + "&video_format_id=137"},
		{"bad id in list", "video_ids=" + rickID + ",nope&quality=best"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(s, http.MethodGet, "/downloads/download/?"+tt.query, nil, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if active := a.DownloadManager.Active(); len(active) != 0 {
		t.Errorf("active = %v, want nothing registered", active)
	}
	if reqs := gw.Requests(); len(reqs) != 0 {
		t.Errorf("transfers = %d, want none", len(reqs))
	}
}

func TestStartDownload_AfterShutdown(t *testing.T) {
	s, a := newTestServer(t, testutils.NewFakeGateway(), "")
	a.DownloadManager.StopAll()

	rec := do(s, http.MethodGet, "/downloads/download/?video_ids="+rickID+"&quality=best", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func readFrames(t *testing.T, body io.Reader, onFirst func()) []models.Snapshot {
	t.Helper()
	var frames []models.Snapshot
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap models.Snapshot
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap); err != nil {
			t.Fatalf("bad frame %q: %v", line, err)
		}
		frames = append(frames, snap)
		if len(frames) == 1 && onFirst != nil {
			onFirst()
		}
	}
	return frames
}

func TestQualityOnlyDownload_StreamsToCompletion(t *testing.T) {
	gw := testutils.NewFakeGateway()
	gw.Events = testutils.SingleStreamEvents(4096, 4)
	gw.Hold = make(chan struct{})
	s, a := newTestServer(t, gw, "")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	rec := do(s, http.MethodGet, "/downloads/download/?video_ids="+rickID+"&quality=best", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
	started := decode[StartDownloadResponse](t, rec)
	if started.Message != "Download started" || len(started.VideoIDs) != 1 || started.VideoIDs[0] != rickID {
		t.Fatalf("start body = %+v", started)
	}
	if reqs := gw.Requests(); len(reqs) > 0 && reqs[0].Format != "best" {
		t.Errorf("format = %q, want best", reqs[0].Format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/downloads/progress/"+rickID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("progress request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	frames := readFrames(t, resp.Body, func() { close(gw.Hold) })
	if len(frames) == 0 {
		t.Fatal("no frames received")
	}

	var lastBytes int64
	for i, f := range frames {
		if f.DownloadedBytes < lastBytes {
			t.Errorf("frame %d: downloaded bytes went back from %d to %d", i, lastBytes, f.DownloadedBytes)
		}
		lastBytes = f.DownloadedBytes
	}

	last := frames[len(frames)-1]
	if last.Status != models.StatusComplete {
		t.Errorf("final status = %q, want %q", last.Status, models.StatusComplete)
	}
	if last.TotalBytes == nil || *last.TotalBytes != 4096 || last.DownloadedBytes != 4096 {
		t.Errorf("final bytes = %d/%v, want 4096/4096", last.DownloadedBytes, last.TotalBytes)
	}
	if last.Progress != 100 {
		t.Errorf("final progress = %v, want 100", last.Progress)
	}

	testutils.WaitFor(t, 2*time.Second, "stored completion", func() bool {
		d, err := a.DB.GetDownload(context.Background(), rickID)
		return err == nil && d.Status == models.StatusComplete
	})
}

func TestStreamProgress_NotFound(t *testing.T) {
	s, _ := newTestServer(t, testutils.NewFakeGateway(), "")

	rec := do(s, http.MethodGet, "/downloads/progress/"+rickID, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	want := "Download with id: '" + rickID + "' not found"
	if got := decode[ErrorResponse](t, rec); got.Error != want {
		t.Errorf("error = %q, want %q", got.Error, want)
	}
}

func TestCancelDownloads(t *testing.T) {
	gw := testutils.NewFakeGateway()
	gw.Events = testutils.SingleStreamEvents(2048, 2)
	gw.Hold = make(chan struct{})
	defer close(gw.Hold)
	s, a := newTestServer(t, gw, "")

	if rec := do(s, http.MethodGet, "/downloads/download/?video_ids="+rickID+"&quality=best", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	body := bytes.NewBufferString(`{"video_ids":["` + rickID + `","unknownVid1"]}`)
	rec := do(s, http.MethodPost, "/downloads/cancel_downloads/", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	got := decode[CancelResponse](t, rec)
	if got.Message != "Cancellation requested for specified downloads" || len(got.VideoIDs) != 2 {
		t.Errorf("cancel body = %+v", got)
	}

	if rec := do(s, http.MethodGet, "/downloads/progress/"+rickID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("progress after cancel = %d, want 404", rec.Code)
	}
	testutils.WaitFor(t, 2*time.Second, "stored cancellation", func() bool {
		d, err := a.DB.GetDownload(context.Background(), rickID)
		return err == nil && d.Status == models.StatusCanceled
	})
}

func TestCancelDownloads_MalformedJSON(t *testing.T) {
	s, _ := newTestServer(t, testutils.NewFakeGateway(), "")
	rec := do(s, http.MethodPost, "/downloads/cancel_downloads/", strings.NewReader("{"), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListActive(t *testing.T) {
	gw := testutils.NewFakeGateway()
	gw.Hold = make(chan struct{})
	defer close(gw.Hold)
	s, _ := newTestServer(t, gw, "")

	rec := do(s, http.MethodGet, "/downloads/active", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty active = %s, want []", rec.Body.String())
	}

	do(s, http.MethodGet, "/downloads/download/?video_ids="+rickID+"&video_format_id=137&audio_format_id=140", nil, nil)
	active := decode[[]models.Snapshot](t, do(s, http.MethodGet, "/downloads/active", nil, nil))
	if len(active) != 1 || active[0].VideoID != rickID {
		t.Errorf("active = %+v", active)
	}
}

func TestHistory(t *testing.T) {
	s, a := newTestServer(t, testutils.NewFakeGateway(), "")
	ctx := context.Background()
	for _, d := range []models.Download{
		{VideoID: rickID, Title: "Never Gonna Give You Up", Quality: "best", OutputDir: "/tmp", Status: models.StatusComplete},
		{VideoID: "jNQXAC9IVRw", Title: "Me at the zoo", Quality: "18", OutputDir: "/tmp", Status: models.StatusError},
	} {
		if err := a.DB.CreateDownload(ctx, &d); err != nil {
			t.Fatalf("CreateDownload() error = %v", err)
		}
	}

	rec := do(s, http.MethodGet, "/downloads/history?video_id="+rickID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("single status = %d", rec.Code)
	}
	if d := decode[models.Download](t, rec); d.Title != "Never Gonna Give You Up" {
		t.Errorf("single = %+v", d)
	}

	if rec := do(s, http.MethodGet, "/downloads/history?video_id=missingVid1", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}

	list := decode[[]models.Download](t, do(s, http.MethodGet, "/downloads/history?title=zoo", nil, nil))
	if len(list) != 1 || list[0].VideoID != "jNQXAC9IVRw" {
		t.Errorf("title filter = %+v", list)
	}
	list = decode[[]models.Download](t, do(s, http.MethodGet, "/downloads/history", nil, nil))
	if len(list) != 2 {
		t.Errorf("unfiltered = %d records, want 2", len(list))
	}
}

func TestDeleteHistory(t *testing.T) {
	s, a := newTestServer(t, testutils.NewFakeGateway(), "")
	d := models.Download{VideoID: rickID, Title: "Never Gonna Give You Up", OutputDir: "/tmp", Status: models.StatusComplete}
	if err := a.DB.CreateDownload(context.Background(), &d); err != nil {
		t.Fatalf("CreateDownload() error = %v", err)
	}

	if rec := do(s, http.MethodDelete, "/downloads/history", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", rec.Code)
	}

	rec := do(s, http.MethodDelete, "/downloads/history?video_id="+rickID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	got := decode[DeleteHistoryResponse](t, rec)
	if got.VideoID != rickID || got.Data.Title != "Never Gonna Give You Up" || got.Message == "" {
		t.Errorf("delete body = %+v", got)
	}

	if rec := do(s, http.MethodDelete, "/downloads/history?video_id="+rickID, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

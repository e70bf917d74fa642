package testutils

import "sync"

type Notification struct {
	Kind    string
	VideoID string
	Title   string
	Err     error
}

// RecordingNotifier implements notifier.CompletionNotifier and remembers every call.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (r *RecordingNotifier) add(n Notification) {
	r.mu.Lock()
	r.calls = append(r.calls, n)
	r.mu.Unlock()
}

func (r *RecordingNotifier) OnCanceled(videoID, title string) {
	r.add(Notification{Kind: "canceled", VideoID: videoID, Title: title})
}

func (r *RecordingNotifier) OnFailed(videoID, title string, err error) {
	r.add(Notification{Kind: "failed", VideoID: videoID, Title: title, Err: err})
}

func (r *RecordingNotifier) OnCompleted(videoID, title string) {
	r.add(Notification{Kind: "completed", VideoID: videoID, Title: title})
}

func (r *RecordingNotifier) Calls() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.calls...)
}

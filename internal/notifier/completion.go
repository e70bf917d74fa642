package notifier

import (
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// CompletionNotifier is told once per task when it reaches a terminal status.
type CompletionNotifier interface {
	OnCanceled(videoID, title string)
	OnFailed(videoID, title string, err error)
	OnCompleted(videoID, title string)
}

// Dispatch calls the notifier method matching status. Non-terminal statuses are ignored.
func Dispatch(n CompletionNotifier, videoID, title string, status models.Status, err error) {
	if n == nil {
		return
	}
	switch status {
	case models.StatusComplete:
		n.OnCompleted(videoID, title)
	case models.StatusCanceled:
		n.OnCanceled(videoID, title)
	case models.StatusError:
		n.OnFailed(videoID, title, err)
	default:
		logutils.Log.WithFields(map[string]any{
			"video_id": videoID,
			"status":   status,
		}).Debug("Skipping notification for non-terminal status")
	}
}

// Noop drops every notification.
var Noop CompletionNotifier = noopNotifier{}

type noopNotifier struct{}

func (noopNotifier) OnCanceled(string, string)      {}
func (noopNotifier) OnFailed(string, string, error) {}
func (noopNotifier) OnCompleted(string, string)     {}

// Multi fans a notification out to every configured notifier.
type Multi []CompletionNotifier

func (m Multi) OnCanceled(videoID, title string) {
	for _, n := range m {
		n.OnCanceled(videoID, title)
	}
}

func (m Multi) OnFailed(videoID, title string, err error) {
	for _, n := range m {
		n.OnFailed(videoID, title, err)
	}
}

func (m Multi) OnCompleted(videoID, title string) {
	for _, n := range m {
		n.OnCompleted(videoID, title)
	}
}

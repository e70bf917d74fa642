package notifier

import (
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	EventCompleted = "download.completed"
	EventCanceled  = "download.canceled"
	EventFailed    = "download.failed"

	webhookTimeout   = 10 * time.Second
	webhookRetries   = 3
	webhookRetryWait = 500 * time.Millisecond
)

// WebhookEvent is the JSON body posted for every finished download.
type WebhookEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	VideoID   string    `json:"video_id"`
	Title     string    `json:"title,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(webhookTimeout).
		SetRetryCount(webhookRetries).
		SetRetryWaitTime(webhookRetryWait).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= 500
		})
	logutils.Log.WithField("url", url).Info("Initialized webhook notifier")
	return &WebhookNotifier{client: client, url: url}
}

func (w *WebhookNotifier) OnCompleted(videoID, title string) {
	w.post(WebhookEvent{Type: EventCompleted, VideoID: videoID, Title: title})
}

func (w *WebhookNotifier) OnCanceled(videoID, title string) {
	w.post(WebhookEvent{Type: EventCanceled, VideoID: videoID, Title: title})
}

func (w *WebhookNotifier) OnFailed(videoID, title string, err error) {
	w.post(WebhookEvent{Type: EventFailed, VideoID: videoID, Title: title, Error: utils.ErrorMessage(err)})
}

func (w *WebhookNotifier) post(event WebhookEvent) {
	event.EventID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	log := logutils.Log.WithFields(map[string]any{
		"event_id": event.EventID,
		"type":     event.Type,
		"video_id": event.VideoID,
	})

	resp, err := w.client.R().SetBody(event).Post(w.url)
	if err != nil {
		log.WithError(err).Warn("Failed to deliver webhook")
		return
	}
	if resp.IsError() {
		log.WithField("status", resp.Status()).Warn("Webhook endpoint returned error status")
		return
	}
	log.Debug("Webhook delivered")
}

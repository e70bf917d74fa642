package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// streamEvents writes each snapshot as a "data: <json>" frame and flushes it.
// It returns when the channel closes or the client goes away.
func streamEvents(w http.ResponseWriter, r *http.Request, snapshots <-chan models.Snapshot) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		requestLog(r).WithError(err).Debug("Write deadline not supported for progress stream")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	frames := 0
	for snap := range snapshots {
		payload, err := json.Marshal(snap)
		if err != nil {
			requestLog(r).WithError(err).Warn("Failed to encode progress snapshot")
			continue
		}
		if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
			requestLog(r).WithError(err).Debug("Progress client disconnected")
			return
		}
		if err := rc.Flush(); err != nil {
			requestLog(r).WithError(err).Debug("Progress stream flush failed")
			return
		}
		frames++
	}
	requestLog(r).WithField("frames", frames).Debug("Progress stream finished")
}

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/NikitaDmitryuk/tube-proxy/internal/app"
	"github.com/NikitaDmitryuk/tube-proxy/internal/downloader/manager"
	"github.com/NikitaDmitryuk/tube-proxy/internal/mediaid"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

// maxCancelBodyBytes limits the cancel request body.
const maxCancelBodyBytes = 64 * 1024

// Health returns 200 and {"status":"ok"}.
func Health(w http.ResponseWriter, _ *http.Request, _ *app.App) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetFormats handles GET /downloads/formats/{media_id}.
func GetFormats(w http.ResponseWriter, r *http.Request, a *app.App) {
	id, err := mediaid.Parse(r.PathValue("media_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, utils.ErrorMessage(err))
		return
	}

	info, err := a.Formats.GetVariants(r.Context(), id)
	if err != nil {
		requestLog(r).WithError(err).WithField("video_id", id).Error("GetFormats: probe failed")
		writeError(w, http.StatusInternalServerError, "failed to fetch formats")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// StartDownload handles GET /downloads/download/.
func StartDownload(w http.ResponseWriter, r *http.Request, a *app.App) {
	q := r.URL.Query()
	req := manager.StartRequest{
		VideoIDs:       utils.SplitList(q["video_ids"]),
		Quality:        strings.TrimSpace(q.Get("quality")),
		VideoFormatID:  strings.TrimSpace(q.Get("video_format_id")),
		AudioFormatID:  strings.TrimSpace(q.Get("audio_format_id")),
		OutputFilename: q.Get("output_filename"),
		OutputDir:      q.Get("output_dir"),
		ChannelTitle:   q.Get("channel_title"),
	}

	ids, err := a.DownloadManager.Start(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrInvalidMediaID), errors.Is(err, utils.ErrMissingFormat):
			requestLog(r).WithError(err).Debug("StartDownload: invalid request")
			writeError(w, http.StatusBadRequest, utils.ErrorMessage(err))
		case errors.Is(err, manager.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, "service is shutting down")
		default:
			requestLog(r).WithError(err).Error("StartDownload: start failed")
			writeError(w, http.StatusInternalServerError, "failed to start download")
		}
		return
	}
	writeJSON(w, http.StatusOK, StartDownloadResponse{Message: "Download started", VideoIDs: ids})
}

// StreamProgress handles GET /downloads/progress/{media_id} as a server-sent event stream.
func StreamProgress(w http.ResponseWriter, r *http.Request, a *app.App) {
	raw := r.PathValue("media_id")
	id := raw
	if parsed, err := mediaid.Parse(raw); err == nil {
		id = parsed
	}

	snapshots, err := a.Progress.Stream(r.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			writeError(w, http.StatusNotFound, notFoundMessage(raw))
			return
		}
		requestLog(r).WithError(err).Error("StreamProgress: stream failed")
		writeError(w, http.StatusInternalServerError, "failed to stream progress")
		return
	}
	streamEvents(w, r, snapshots)
}

// CancelDownloads handles POST /downloads/cancel_downloads/.
func CancelDownloads(w http.ResponseWriter, r *http.Request, a *app.App) {
	body := http.MaxBytesReader(w, r.Body, maxCancelBodyBytes)
	var req CancelRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.VideoIDs == nil {
		req.VideoIDs = []string{}
	}

	a.DownloadManager.Cancel(req.VideoIDs)
	writeJSON(w, http.StatusOK, CancelResponse{
		Message:  "Cancellation requested for specified downloads",
		VideoIDs: req.VideoIDs,
	})
}

// ListActive handles GET /downloads/active.
func ListActive(w http.ResponseWriter, _ *http.Request, a *app.App) {
	snapshots := a.DownloadManager.Active()
	if snapshots == nil {
		snapshots = []models.Snapshot{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// ListHistory handles GET /downloads/history. An explicit video_id returns one record.
func ListHistory(w http.ResponseWriter, r *http.Request, a *app.App) {
	q := r.URL.Query()

	if videoID := strings.TrimSpace(q.Get("video_id")); videoID != "" {
		record, err := a.DB.GetDownload(r.Context(), videoID)
		if err != nil {
			writeHistoryError(w, r, err, videoID)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	records, err := a.DB.ListDownloads(r.Context(), models.DownloadFilter{
		Status:  models.Status(strings.TrimSpace(q.Get("status"))),
		Title:   strings.TrimSpace(q.Get("title")),
		Stage:   strings.TrimSpace(q.Get("stage")),
		Quality: strings.TrimSpace(q.Get("quality")),
	})
	if err != nil {
		writeHistoryError(w, r, err, "")
		return
	}
	if records == nil {
		records = []models.Download{}
	}
	writeJSON(w, http.StatusOK, records)
}

// DeleteHistory handles DELETE /downloads/history?video_id=.
func DeleteHistory(w http.ResponseWriter, r *http.Request, a *app.App) {
	videoID := strings.TrimSpace(r.URL.Query().Get("video_id"))
	if videoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	record, err := a.DB.DeleteDownload(r.Context(), videoID)
	if err != nil {
		writeHistoryError(w, r, err, videoID)
		return
	}
	writeJSON(w, http.StatusOK, DeleteHistoryResponse{
		Message: "Download record deleted",
		VideoID: videoID,
		Data:    record,
	})
}

func writeHistoryError(w http.ResponseWriter, r *http.Request, err error, videoID string) {
	if errors.Is(err, utils.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFoundMessage(videoID))
		return
	}
	requestLog(r).WithError(err).WithField("video_id", videoID).Error("History request failed")
	writeError(w, http.StatusInternalServerError, "failed to access download history")
}

func notFoundMessage(videoID string) string {
	return fmt.Sprintf("Download with id: '%s' not found", videoID)
}

package api

import "github.com/NikitaDmitryuk/tube-proxy/internal/models"

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// StartDownloadResponse is returned by GET /downloads/download/.
type StartDownloadResponse struct {
	Message  string   `json:"message"`
	VideoIDs []string `json:"video_ids"`
}

// CancelRequest is the body for POST /downloads/cancel_downloads/.
type CancelRequest struct {
	VideoIDs []string `json:"video_ids"`
}

type CancelResponse struct {
	Message  string   `json:"message"`
	VideoIDs []string `json:"video_ids"`
}

// DeleteHistoryResponse is returned by DELETE /downloads/history.
type DeleteHistoryResponse struct {
	Message string          `json:"message"`
	VideoID string          `json:"video_id"`
	Data    models.Download `json:"data"`
}

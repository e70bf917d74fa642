package models

// Snapshot is a complete, self-contained projection of a task's progress.
type Snapshot struct {
	VideoID         string   `json:"video_id"`
	DownloadedBytes int64    `json:"downloaded_bytes"`
	TotalBytes      *int64   `json:"total_bytes"`
	Status          Status   `json:"status"`
	Progress        float64  `json:"progress"`
	ETA             *int64   `json:"eta"`
	Elapsed         float64  `json:"elapsed"`
	Speed           *float64 `json:"speed"`
	Stage           string   `json:"stage"`
}

// SnapshotSource is anything that can project its current progress.
type SnapshotSource interface {
	Snapshot() Snapshot
}

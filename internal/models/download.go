package models

import "time"

// Download is the durable record of one download, keyed by video id.
type Download struct {
	ID              uint      `json:"id"               gorm:"primaryKey"`
	VideoID         string    `json:"video_id"         gorm:"not null;uniqueIndex"`
	Title           string    `json:"title"`
	ChannelTitle    string    `json:"channel_title"`
	Quality         string    `json:"quality"`
	OutputDir       string    `json:"output_dir"       gorm:"not null"`
	Status          Status    `json:"status"           gorm:"not null;index;default:'queued'"`
	Stage           string    `json:"stage"`
	DownloadedBytes int64     `json:"downloaded_bytes" gorm:"not null;default:0"`
	TotalBytes      *int64    `json:"total_bytes"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"       gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at"       gorm:"autoUpdateTime"`
}

// DownloadProgress is the subset of a Download rewritten by the sync loop.
type DownloadProgress struct {
	Title           string
	Status          Status
	Stage           string
	DownloadedBytes int64
	TotalBytes      *int64
	ErrorMessage    string
}

// DownloadFilter selects stored downloads. Empty fields do not filter.
type DownloadFilter struct {
	VideoID string
	Status  Status
	Title   string
	Stage   string
	Quality string
}

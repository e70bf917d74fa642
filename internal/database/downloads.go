package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateDownload inserts the record, or resets the existing record for the same video id.
func (s *SQLiteDatabase) CreateDownload(ctx context.Context, download *Download) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "channel_title", "quality", "output_dir", "status", "stage",
			"downloaded_bytes", "total_bytes", "error_message", "updated_at",
		}),
	}).Create(download)
	if result.Error != nil {
		return fmt.Errorf("%w: create download %s: %w", utils.ErrDatabaseError, download.VideoID, result.Error)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateDownloadProgress(ctx context.Context, videoID string, progress DownloadProgress) error {
	updates := map[string]any{
		"status":           progress.Status,
		"stage":            progress.Stage,
		"downloaded_bytes": progress.DownloadedBytes,
		"total_bytes":      progress.TotalBytes,
		"error_message":    progress.ErrorMessage,
	}
	if progress.Title != "" {
		updates["title"] = progress.Title
	}

	result := s.db.WithContext(ctx).Model(&Download{}).Where("video_id = ?", videoID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("%w: update download %s: %w", utils.ErrDatabaseError, videoID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("download %s: %w", videoID, utils.ErrNotFound)
	}
	return nil
}

func (s *SQLiteDatabase) GetDownload(ctx context.Context, videoID string) (Download, error) {
	var download Download
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).First(&download).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Download{}, fmt.Errorf("download %s: %w", videoID, utils.ErrNotFound)
	}
	if err != nil {
		return Download{}, fmt.Errorf("%w: get download %s: %w", utils.ErrDatabaseError, videoID, err)
	}
	return download, nil
}

func (s *SQLiteDatabase) ListDownloads(ctx context.Context, filter DownloadFilter) ([]Download, error) {
	query := s.db.WithContext(ctx).Model(&Download{})
	if filter.VideoID != "" {
		query = query.Where("video_id = ?", filter.VideoID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Title != "" {
		query = query.Where("title LIKE ?", "%"+filter.Title+"%")
	}
	if filter.Stage != "" {
		query = query.Where("stage = ?", filter.Stage)
	}
	if filter.Quality != "" {
		query = query.Where("quality = ?", filter.Quality)
	}

	var downloads []Download
	if err := query.Order("updated_at DESC").Find(&downloads).Error; err != nil {
		return nil, fmt.Errorf("%w: list downloads: %w", utils.ErrDatabaseError, err)
	}
	return downloads, nil
}

// DeleteDownload removes the record and returns it as it was.
func (s *SQLiteDatabase) DeleteDownload(ctx context.Context, videoID string) (Download, error) {
	var deleted Download
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", videoID).First(&deleted).Error; err != nil {
			return err
		}
		return tx.Delete(&Download{}, deleted.ID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Download{}, fmt.Errorf("download %s: %w", videoID, utils.ErrNotFound)
	}
	if err != nil {
		return Download{}, fmt.Errorf("%w: delete download %s: %w", utils.ErrDatabaseError, videoID, err)
	}
	return deleted, nil
}

// PruneDownloads deletes finished records last updated before the cutoff.
func (s *SQLiteDatabase) PruneDownloads(ctx context.Context, before time.Time) (int64, error) {
	terminal := []models.Status{models.StatusComplete, models.StatusCanceled, models.StatusError}
	result := s.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", terminal, before).
		Delete(&Download{})
	if result.Error != nil {
		return 0, fmt.Errorf("%w: prune downloads: %w", utils.ErrDatabaseError, result.Error)
	}
	return result.RowsAffected, nil
}

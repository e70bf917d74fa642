package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/database"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
)

// DatabaseStub implements database.Database with no-op methods.
// Embed it in test-specific mocks and override only the methods you need.
type DatabaseStub struct{}

func (*DatabaseStub) Init(_ *config.Config) error { return nil }

func (*DatabaseStub) Close() error { return nil }

func (*DatabaseStub) GetDownload(_ context.Context, _ string) (database.Download, error) {
	return database.Download{}, nil
}

func (*DatabaseStub) ListDownloads(_ context.Context, _ database.DownloadFilter) ([]database.Download, error) {
	return nil, nil
}

func (*DatabaseStub) CreateDownload(_ context.Context, _ *database.Download) error { return nil }

func (*DatabaseStub) UpdateDownloadProgress(_ context.Context, _ string, _ database.DownloadProgress) error {
	return nil
}

func (*DatabaseStub) DeleteDownload(_ context.Context, _ string) (database.Download, error) {
	return database.Download{}, nil
}

func (*DatabaseStub) PruneDownloads(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

var _ database.Database = (*DatabaseStub)(nil)

// RecordingSink keeps every record and progress write it receives.
// Set CreateErr or UpdateErr to make writes fail; failed updates are still counted in Attempts.
type RecordingSink struct {
	mu        sync.Mutex
	Created   []models.Download
	Updates   []models.DownloadProgress
	Attempts  int
	CreateErr error
	UpdateErr error
}

func (s *RecordingSink) CreateDownload(_ context.Context, download *models.Download) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.Created = append(s.Created, *download)
	return nil
}

func (s *RecordingSink) UpdateDownloadProgress(_ context.Context, _ string, progress models.DownloadProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempts++
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.Updates = append(s.Updates, progress)
	return nil
}

func (s *RecordingSink) LastUpdate() (models.DownloadProgress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Updates) == 0 {
		return models.DownloadProgress{}, false
	}
	return s.Updates[len(s.Updates)-1], true
}

func (s *RecordingSink) CreatedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Created)
}

func (s *RecordingSink) AttemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Attempts
}

// Statuses returns the status of every successful update in order.
func (s *RecordingSink) Statuses() []models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Status, len(s.Updates))
	for i, u := range s.Updates {
		out[i] = u.Status
	}
	return out
}

package testutils

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/database"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const pollInterval = 5 * time.Millisecond

// TestConfig creates a configuration suitable for testing
func TestConfig(tempDir string) *config.Config {
	return &config.Config{
		ListenAddr:     "127.0.0.1:0",
		LogLevel:       "debug",
		DownloadDir:    tempDir,
		DatabasePath:   filepath.Join(tempDir, "downloads.db"),
		DatabaseDriver: config.DriverSQLite3,

		DownloadSettings: config.DownloadConfig{
			MaxConcurrentDownloads: 2,
			MaxConcurrentProbes:    1,
			ProbeTimeout:           5 * time.Second,
			SyncInterval:           10 * time.Millisecond,
			ProgressInterval:       10 * time.Millisecond,
			MergedPolicy:           models.MergedNonTerminal,
			MergeOutputFormat:      config.DefaultMergeOutputFormat,
			YtdlpPath:              config.DefaultYtdlpPath,
			YtdlpProgressInterval:  10 * time.Millisecond,
		},

		CacheSettings: config.CacheConfig{
			FormatCacheTTL: config.DefaultFormatCacheTTL,
		},

		ScheduleSettings: config.ScheduleConfig{
			HistoryPruneSchedule: config.DefaultHistoryPruneSchedule,
		},
	}
}

// TestDatabase creates an in-memory SQLite database for testing
func TestDatabase(t *testing.T) database.Database {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	// Every connection to :memory: opens a separate database.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	testDB, err := database.NewWithDB(db)
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = testDB.Close() })
	return testDB
}

// WaitFor polls cond until it holds or the timeout expires.
func WaitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", timeout, what)
		}
		time.Sleep(pollInterval)
	}
}

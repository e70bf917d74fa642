package database

import (
	"fmt"

	"github.com/NikitaDmitryuk/tube-proxy/internal/config"
	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	// Pure-Go driver registered as "sqlite", selected with DATABASE_DRIVER=sqlite.
	_ "modernc.org/sqlite"
)

type SQLiteDatabase struct {
	db *gorm.DB
}

func NewSQLiteDatabase() *SQLiteDatabase {
	return &SQLiteDatabase{}
}

// NewWithDB wraps an already opened connection and migrates it.
func NewWithDB(db *gorm.DB) (*SQLiteDatabase, error) {
	s := &SQLiteDatabase{db: db}
	if err := s.runMigrations(); err != nil {
		return nil, err
	}
	return s, nil
}

func dialector(driver, path string) (gorm.Dialector, error) {
	switch driver {
	case config.DriverSQLite3, "":
		return sqlite.Open(path), nil
	case config.DriverSQLite:
		return sqlite.New(sqlite.Config{DriverName: config.DriverSQLite, DSN: path}), nil
	default:
		return nil, utils.WrapError(utils.ErrConfigurationError, "unsupported database driver", map[string]any{
			"driver": driver,
		})
	}
}

func (s *SQLiteDatabase) Init(cfg *config.Config) error {
	dial, err := dialector(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return utils.WrapError(utils.ErrDatabaseError, "failed to connect to database", map[string]any{
			"path":   cfg.DatabasePath,
			"driver": cfg.DatabaseDriver,
			"error":  err.Error(),
		})
	}

	s.db = db
	if err := s.runMigrations(); err != nil {
		return err
	}

	logutils.Log.WithFields(map[string]any{
		"path":   cfg.DatabasePath,
		"driver": cfg.DatabaseDriver,
	}).Info("Database opened")
	return nil
}

func (s *SQLiteDatabase) runMigrations() error {
	if err := s.db.AutoMigrate(&Download{}); err != nil {
		return fmt.Errorf("%w: auto migration failed: %w", utils.ErrDatabaseError, err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

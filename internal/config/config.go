package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
	"github.com/NikitaDmitryuk/tube-proxy/internal/models"
	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
	"github.com/joho/godotenv"
)

const (
	DefaultListenAddr             = ":8000"
	DefaultMaxConcurrentDownloads = 3
	DefaultMaxConcurrentProbes    = 2
	DefaultProbeTimeout           = 30 * time.Second
	DefaultSyncInterval           = time.Second
	DefaultProgressInterval       = time.Second
	DefaultYtdlpProgressInterval  = 500 * time.Millisecond
	DefaultFormatCacheTTL         = 30 * time.Minute
	DefaultMergeOutputFormat      = "mp4"
	DefaultYtdlpPath              = "yt-dlp"
	DefaultHistoryPruneSchedule   = "0 30 3 * * *"

	DriverSQLite3 = "sqlite3"
	DriverSQLite  = "sqlite"
)

type Config struct {
	ListenAddr     string
	APIKey         string
	LogLevel       string
	DownloadDir    string
	DatabasePath   string
	DatabaseDriver string

	// RunningInDocker lets private-network clients reach an API without a key.
	RunningInDocker bool

	DownloadSettings DownloadConfig
	CacheSettings    CacheConfig
	NotifySettings   NotifyConfig
	ScheduleSettings ScheduleConfig
}

type DownloadConfig struct {
	MaxConcurrentDownloads int
	MaxConcurrentProbes    int
	ProbeTimeout           time.Duration
	SyncInterval           time.Duration
	ProgressInterval       time.Duration
	MergedPolicy           models.MergedPolicy
	MergeOutputFormat      string
	YtdlpPath              string
	YtdlpProgressInterval  time.Duration
}

type CacheConfig struct {
	FormatCacheTTL time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

type NotifyConfig struct {
	WebhookURL       string
	TelegramBotToken string
	TelegramChatID   int64
}

type ScheduleConfig struct {
	YtdlpUpdateSchedule  string
	HistoryRetention     time.Duration
	HistoryPruneSchedule string
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// loadEnvFile applies ENV_FILE (default .env) without overriding variables already set.
func loadEnvFile() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return utils.WrapError(utils.ErrConfigurationError, "failed to load env file", map[string]any{
			"path": path,
		})
	}
	logutils.Log.WithField("path", path).Debug("Loaded environment file")
	return nil
}

func NewConfig() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	downloadDir := getEnv("DOWNLOAD_DIR", "")
	dbPath := getEnv("DATABASE_PATH", "")
	if dbPath == "" && downloadDir != "" {
		dbPath = filepath.Join(downloadDir, "downloads.db")
	}

	mergedPolicy, policyErr := models.ParseMergedPolicy(getEnv("MERGED_POLICY", string(models.MergedNonTerminal)))

	config := &Config{
		ListenAddr:     getEnv("API_LISTEN", DefaultListenAddr),
		APIKey:         getEnv("API_KEY", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DownloadDir:    downloadDir,
		DatabasePath:   dbPath,
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite3)),

		RunningInDocker: getEnvBool("RUNNING_IN_DOCKER", false),

		DownloadSettings: DownloadConfig{
			MaxConcurrentDownloads: getEnvInt("MAX_CONCURRENT_DOWNLOADS", DefaultMaxConcurrentDownloads),
			MaxConcurrentProbes:    getEnvInt("MAX_CONCURRENT_PROBES", DefaultMaxConcurrentProbes),
			ProbeTimeout:           getEnvDuration("PROBE_TIMEOUT", DefaultProbeTimeout),
			SyncInterval:           getEnvDuration("SYNC_INTERVAL", DefaultSyncInterval),
			ProgressInterval:       getEnvDuration("PROGRESS_INTERVAL", DefaultProgressInterval),
			MergedPolicy:           mergedPolicy,
			MergeOutputFormat:      getEnv("MERGE_OUTPUT_FORMAT", DefaultMergeOutputFormat),
			YtdlpPath:              getEnv("YTDLP_PATH", DefaultYtdlpPath),
			YtdlpProgressInterval:  getEnvDuration("YTDLP_PROGRESS_INTERVAL", DefaultYtdlpProgressInterval),
		},

		CacheSettings: CacheConfig{
			FormatCacheTTL: getEnvDuration("FORMAT_CACHE_TTL", DefaultFormatCacheTTL),
			RedisAddr:      getEnv("REDIS_ADDR", ""),
			RedisPassword:  getEnv("REDIS_PASSWORD", ""),
			RedisDB:        getEnvInt("REDIS_DB", 0),
		},

		NotifySettings: NotifyConfig{
			WebhookURL:       getEnv("WEBHOOK_URL", ""),
			TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID:   getEnvInt64("TELEGRAM_CHAT_ID", 0),
		},

		ScheduleSettings: ScheduleConfig{
			YtdlpUpdateSchedule:  getEnv("YTDLP_UPDATE_SCHEDULE", ""),
			HistoryRetention:     getEnvDuration("HISTORY_RETENTION", 0),
			HistoryPruneSchedule: getEnv("HISTORY_PRUNE_SCHEDULE", DefaultHistoryPruneSchedule),
		},
	}

	if policyErr != nil {
		return nil, utils.WrapError(utils.ErrConfigurationError, policyErr.Error(), map[string]any{
			"variable": "MERGED_POLICY",
		})
	}

	if err := config.validate(); err != nil {
		logutils.Log.WithError(err).Error("Configuration validation failed")
		return nil, utils.WrapError(err, "configuration validation failed", nil)
	}

	logutils.Log.WithFields(map[string]any{
		"listen":       config.ListenAddr,
		"download_dir": config.DownloadDir,
		"db_driver":    config.DatabaseDriver,
	}).Info("Configuration loaded successfully")
	return config, nil
}

func (c *Config) GetDownloadSettings() DownloadConfig {
	return c.DownloadSettings
}

func (c *Config) GetCacheSettings() CacheConfig {
	return c.CacheSettings
}

func (c *Config) GetNotifySettings() NotifyConfig {
	return c.NotifySettings
}

func (c *Config) GetScheduleSettings() ScheduleConfig {
	return c.ScheduleSettings
}

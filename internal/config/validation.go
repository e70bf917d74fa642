package config

import (
	"os"

	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

func (c *Config) validate() error {
	if err := c.validateRequiredFields(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateDownloadSettings(); err != nil {
		return err
	}
	if err := c.validateCacheSettings(); err != nil {
		return err
	}
	if err := c.validateNotifySettings(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRequiredFields() error {
	var missingFields []string

	if c.DownloadDir == "" {
		missingFields = append(missingFields, "DOWNLOAD_DIR")
	}
	if c.ListenAddr == "" {
		missingFields = append(missingFields, "API_LISTEN")
	}

	if len(missingFields) > 0 {
		return utils.WrapError(utils.ErrConfigurationError, "missing required environment variables", map[string]any{
			"missing_fields": missingFields,
		})
	}

	info, err := os.Stat(c.DownloadDir)
	if err != nil || !info.IsDir() {
		return utils.WrapError(utils.ErrConfigurationError, "DOWNLOAD_DIR is not an existing directory", map[string]any{
			"path": c.DownloadDir,
		})
	}

	return nil
}

func (c *Config) validateDatabase() error {
	switch c.DatabaseDriver {
	case DriverSQLite3, DriverSQLite:
		return nil
	default:
		return utils.WrapError(utils.ErrConfigurationError, "unsupported DATABASE_DRIVER", map[string]any{
			"driver":    c.DatabaseDriver,
			"supported": []string{DriverSQLite3, DriverSQLite},
		})
	}
}

func (c *Config) validateDownloadSettings() error {
	d := c.DownloadSettings
	if d.MaxConcurrentDownloads <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "max concurrent downloads must be positive", nil)
	}
	if d.MaxConcurrentProbes <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "max concurrent probes must be positive", nil)
	}
	if d.SyncInterval <= 0 || d.ProgressInterval <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "sync and progress intervals must be positive", map[string]any{
			"sync_interval":     d.SyncInterval,
			"progress_interval": d.ProgressInterval,
		})
	}
	if d.ProbeTimeout < 0 {
		return utils.WrapError(utils.ErrConfigurationError, "probe timeout cannot be negative", nil)
	}
	return nil
}

func (c *Config) validateCacheSettings() error {
	if c.CacheSettings.FormatCacheTTL <= 0 {
		return utils.WrapError(utils.ErrConfigurationError, "format cache TTL must be positive", nil)
	}
	return nil
}

func (c *Config) validateNotifySettings() error {
	n := c.NotifySettings
	if (n.TelegramBotToken != "") != (n.TelegramChatID != 0) {
		var missingFields []string
		if n.TelegramBotToken == "" {
			missingFields = append(missingFields, "TELEGRAM_BOT_TOKEN (required if TELEGRAM_CHAT_ID is set)")
		}
		if n.TelegramChatID == 0 {
			missingFields = append(missingFields, "TELEGRAM_CHAT_ID (required if TELEGRAM_BOT_TOKEN is set)")
		}
		return utils.WrapError(utils.ErrConfigurationError, "missing required environment variables", map[string]any{
			"missing_fields": missingFields,
		})
	}
	return nil
}

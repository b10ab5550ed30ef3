package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go-aniwall/internal/api"
	"go-aniwall/internal/display"
	"go-aniwall/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const (
	AppName        = "aniwall"
	ConfigFileName = "config.toml"

	DefaultCacheMaxAgeDays     = 5
	DefaultChannelDepth        = 10
	DefaultConcurrency         = 3
	DefaultApiClientTimeoutSec = 60
	DefaultRating              = "safe"
)

// DefaultConfigPath returns <user config dir>/aniwall/config.toml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config directory: %w", err)
	}
	return filepath.Join(dir, AppName, ConfigFileName), nil
}

// LoadConfig reads the TOML file at configFilePath (or the default location) into a
// models.Config. A missing file is not an error: defaults are used instead.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return models.Config{}, err
		}
		configFilePath = p
	}

	var cfg models.Config
	if _, err := toml.DecodeFile(configFilePath, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
		}
		log.Debugf("No config file at %s, using defaults", configFilePath)
	} else {
		log.Infof("Configuration loaded from %s", configFilePath)
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return models.Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field. Directory defaults depend on the user's
// home, cache and data locations, so resolving them can fail.
func ApplyDefaults(cfg *models.Config) error {
	if cfg.WallpapersDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolving wallpapers directory: %w", err)
		}
		cfg.WallpapersDir = filepath.Join(home, "Pictures", "wallpapers")
	}
	if cfg.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("resolving cache directory: %w", err)
		}
		cfg.CacheDir = filepath.Join(dir, AppName)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.WallpapersDir, ".aniwall.db")
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = filepath.Join(cfg.WallpapersDir, ".aniwall.bleve")
	}

	if cfg.SetWallpaperCommand == "" {
		cfg.SetWallpaperCommand = display.DefaultSetWallpaperCommand
	}
	if cfg.ScreenWidthCommand == "" {
		cfg.ScreenWidthCommand = display.DefaultScreenWidthCommand
	}
	if cfg.ScreenHeightCommand == "" {
		cfg.ScreenHeightCommand = display.DefaultScreenHeightCommand
	}

	if cfg.CatalogBaseUrl == "" {
		cfg.CatalogBaseUrl = api.DefaultBaseUrl
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = api.DefaultPageLimit
	}
	if cfg.Rating == "" {
		cfg.Rating = DefaultRating
	}
	if cfg.CacheMaxAgeDays <= 0 {
		cfg.CacheMaxAgeDays = DefaultCacheMaxAgeDays
	}
	if cfg.ApiDelayMs < 0 {
		cfg.ApiDelayMs = 0
	}
	if cfg.ApiClientTimeoutSec <= 0 {
		cfg.ApiClientTimeoutSec = DefaultApiClientTimeoutSec
	}
	if cfg.ChannelDepth <= 0 {
		cfg.ChannelDepth = DefaultChannelDepth
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return nil
}

// EnsureDirs creates the wallpapers and cache directories.
func EnsureDirs(cfg models.Config) error {
	for _, dir := range []string{cfg.WallpapersDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

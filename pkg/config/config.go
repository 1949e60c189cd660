// Package config provides TOML-based configuration for the banner editor
// service and CLI.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the top-level configuration document.
type Config struct {
	General  GeneralConfig  `toml:"general"`
	Server   ServerConfig   `toml:"server"`
	Render   RenderConfig   `toml:"render"`
	Fonts    FontsConfig    `toml:"fonts"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Cache    CacheConfig    `toml:"cache"`
	Preview  PreviewConfig  `toml:"preview"`
}

// GeneralConfig holds process-wide settings.
type GeneralConfig struct {
	// DataDir is the root for media, database and cache files when the
	// individual sections leave their paths empty.
	DataDir  string `toml:"data_dir"`
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	PublicURL      string   `toml:"public_url"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// Workers bounds the number of concurrent stateless renders.
	Workers         int      `toml:"workers"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// RenderConfig tunes the compositor and its asset loading.
type RenderConfig struct {
	JPEGQuality      int      `toml:"jpeg_quality"`
	PreviewMaxWidth  float64  `toml:"preview_max_width"`
	PreviewMaxHeight float64  `toml:"preview_max_height"`
	FetchTimeout     Duration `toml:"fetch_timeout"`
	MaxFetchMB       int      `toml:"max_fetch_mb"`
	FetchCacheMB     int      `toml:"fetch_cache_mb"`
}

// FontsConfig points at TTF files used instead of the bundled Go fonts.
// Empty paths fall back to the bundled faces.
type FontsConfig struct {
	Regular string `toml:"regular"`
	Medium  string `toml:"medium"`
	Bold    string `toml:"bold"`
}

// CatalogConfig configures the template catalog.
type CatalogConfig struct {
	// Path is an optional YAML file merged over the built-in templates.
	Path string `toml:"path"`
}

// StorageConfig configures the blob store.
type StorageConfig struct {
	Dir             string `toml:"dir"`
	MaxBackgroundMB int    `toml:"max_background_mb"`
	MaxLogoMB       int    `toml:"max_logo_mb"`
}

// DatabaseConfig selects the records backend. A Turso URL and token take
// precedence over the local SQLite file.
type DatabaseConfig struct {
	SQLitePath string `toml:"sqlite_path"`
	TursoURL   string `toml:"turso_url"`
	TursoToken string `toml:"turso_token"`
}

// CacheConfig configures the on-disk frame cache.
type CacheConfig struct {
	Enabled   bool     `toml:"enabled"`
	Dir       string   `toml:"dir"`
	MaxSizeMB int      `toml:"max_size_mb"`
	TTL       Duration `toml:"ttl"`
}

// PreviewConfig configures terminal previews.
type PreviewConfig struct {
	// Protocol is one of "auto", "halfblocks", "kitty", "iterm2", "sixel".
	Protocol string `toml:"protocol"`
	Cols     int    `toml:"cols"`
	Rows     int    `toml:"rows"`
}

var validProtocols = map[string]bool{
	"":           true,
	"auto":       true,
	"halfblocks": true,
	"kitty":      true,
	"iterm2":     true,
	"sixel":      true,
}

var validLogLevels = map[string]bool{
	"":      true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("render.jpeg_quality must be in [1,100], got %d", c.Render.JPEGQuality))
	}
	if c.Render.PreviewMaxWidth <= 0 || c.Render.PreviewMaxHeight <= 0 {
		errs = append(errs, errors.New("render.preview_max_width and preview_max_height must be positive"))
	}
	if c.Storage.MaxBackgroundMB <= 0 || c.Storage.MaxLogoMB <= 0 {
		errs = append(errs, errors.New("storage size limits must be positive"))
	}
	if c.Server.Workers < 0 {
		errs = append(errs, fmt.Errorf("server.workers must not be negative, got %d", c.Server.Workers))
	}
	if !validProtocols[strings.ToLower(c.Preview.Protocol)] {
		errs = append(errs, fmt.Errorf("preview.protocol %q is not supported", c.Preview.Protocol))
	}
	if !validLogLevels[strings.ToLower(c.General.LogLevel)] {
		errs = append(errs, fmt.Errorf("general.log_level %q is not supported", c.General.LogLevel))
	}
	if (c.Database.TursoURL == "") != (c.Database.TursoToken == "") {
		errs = append(errs, errors.New("database.turso_url and database.turso_token must be set together"))
	}
	return errors.Join(errs...)
}

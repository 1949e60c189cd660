package config

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const appName = "smart-image-editor"

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/smart-image-editor/config.toml
//  2. ~/.config/smart-image-editor/config.toml
//
// If no file exists, returns DefaultConfig() with env overrides applied.
func Load() (*Config, error) {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	cfg.fillPaths()
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path. A missing file
// yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			cfg.fillPaths()
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader reads configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	cfg.fillPaths()
	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		General: GeneralConfig{
			DataDir:  filepath.Join(xdgDataHome(home), appName),
			LogLevel: "info",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{"http://localhost:5173", "http://127.0.0.1:5173"},
			Workers:         2,
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Render: RenderConfig{
			JPEGQuality:      90,
			PreviewMaxWidth:  600,
			PreviewMaxHeight: 400,
			FetchTimeout:     Duration{15 * time.Second},
			MaxFetchMB:       20,
			FetchCacheMB:     64,
		},
		Storage: StorageConfig{
			MaxBackgroundMB: 10,
			MaxLogoMB:       5,
		},
		Cache: CacheConfig{
			Enabled:   true,
			MaxSizeMB: 200,
			TTL:       Duration{24 * time.Hour},
		},
		Preview: PreviewConfig{
			Protocol: "auto",
		},
	}
}

// fillPaths derives unset storage, database and cache paths from DataDir.
func (c *Config) fillPaths() {
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(c.General.DataDir, "media")
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = filepath.Join(c.General.DataDir, "banners.db")
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.General.DataDir, "frames")
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost" + c.Server.Addr
	}
}

// applyEnvOverrides checks environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SIE_DATA_DIR"); v != "" {
		cfg.General.DataDir = v
	}
	if v := os.Getenv("SIE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SIE_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("SIE_TURSO_URL"); v != "" {
		cfg.Database.TursoURL = v
	}
	if v := os.Getenv("SIE_TURSO_TOKEN"); v != "" {
		cfg.Database.TursoToken = v
	}
	if v := os.Getenv("SIE_PREVIEW_PROTOCOL"); v != "" {
		cfg.Preview.Protocol = v
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	var paths []string

	xdg := xdgConfigHome(home)
	paths = append(paths, filepath.Join(xdg, appName, "config.toml"))

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		paths = append(paths, filepath.Join(defaultXDG, appName, "config.toml"))
	}

	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

// xdgDataHome returns XDG_DATA_HOME or ~/.local/share as fallback.
func xdgDataHome(home string) string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".local", "share")
}

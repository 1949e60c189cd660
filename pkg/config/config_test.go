package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Render.JPEGQuality != 90 {
		t.Errorf("expected jpeg quality 90, got %d", cfg.Render.JPEGQuality)
	}
	if cfg.Storage.MaxBackgroundMB != 10 || cfg.Storage.MaxLogoMB != 5 {
		t.Errorf("unexpected storage limits: %+v", cfg.Storage)
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	src := `
[general]
data_dir = "/srv/banners"

[server]
addr = ":9000"
workers = 4

[render]
jpeg_quality = 75
fetch_timeout = "3s"

[cache]
ttl = "1h"
`
	cfg, err := LoadFromReader(strings.NewReader(src))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.Workers != 4 {
		t.Errorf("server section not applied: %+v", cfg.Server)
	}
	if cfg.Render.JPEGQuality != 75 {
		t.Errorf("expected quality 75, got %d", cfg.Render.JPEGQuality)
	}
	if cfg.Render.FetchTimeout.Duration != 3*time.Second {
		t.Errorf("expected 3s fetch timeout, got %v", cfg.Render.FetchTimeout)
	}
	if cfg.Cache.TTL.Duration != time.Hour {
		t.Errorf("expected 1h ttl, got %v", cfg.Cache.TTL)
	}
	// Untouched values keep their defaults.
	if cfg.Render.PreviewMaxWidth != 600 {
		t.Errorf("expected default preview width, got %v", cfg.Render.PreviewMaxWidth)
	}
	if want := filepath.Join("/srv/banners", "media"); cfg.Storage.Dir != want {
		t.Errorf("expected storage dir %q, got %q", want, cfg.Storage.Dir)
	}
	if want := filepath.Join("/srv/banners", "banners.db"); cfg.Database.SQLitePath != want {
		t.Errorf("expected sqlite path %q, got %q", want, cfg.Database.SQLitePath)
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("[render]\nfetch_timeout = \"soon\"\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoadFromFile_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestLoadFromFile_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[preview]\nprotocol = \"kitty\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Preview.Protocol != "kitty" {
		t.Errorf("expected kitty, got %q", cfg.Preview.Protocol)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SIE_ADDR", ":7070")
	t.Setenv("SIE_PREVIEW_PROTOCOL", "sixel")
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected env addr, got %q", cfg.Server.Addr)
	}
	if cfg.Preview.Protocol != "sixel" {
		t.Errorf("expected env protocol, got %q", cfg.Preview.Protocol)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Render.JPEGQuality = 0
	cfg.Preview.Protocol = "braille"
	cfg.Database.TursoURL = "libsql://example.turso.io"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"jpeg_quality", "braille", "turso_token"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in error, got %q", want, msg)
		}
	}
}

func TestDuration_RejectsNegative(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("-5s")); err == nil {
		t.Error("expected error for negative duration")
	}
	if err := d.UnmarshalText([]byte("")); err != nil || d.Duration != 0 {
		t.Errorf("empty duration should be zero, got %v (%v)", d.Duration, err)
	}
}

func TestDuration_Or(t *testing.T) {
	if got := (Duration{}).Or(time.Second); got != time.Second {
		t.Errorf("expected fallback, got %v", got)
	}
	if got := (Duration{2 * time.Second}).Or(time.Second); got != 2*time.Second {
		t.Errorf("expected own value, got %v", got)
	}
}

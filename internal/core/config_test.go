package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if cfg.CompanionPath != "wprsc" {
		t.Errorf("expected default companion path, got %q", cfg.CompanionPath)
	}
	if cfg.WaylandDisplay != "wprs-0" {
		t.Errorf("expected default wayland display, got %q", cfg.WaylandDisplay)
	}
	if cfg.LegacyX11Display != ":9" {
		t.Errorf("expected default x11 display, got %q", cfg.LegacyX11Display)
	}
	if cfg.ControlRetries != 10 {
		t.Errorf("expected 10 control retries, got %d", cfg.ControlRetries)
	}
	if cfg.ControlRetryDelay != time.Second {
		t.Errorf("expected 1s retry delay, got %v", cfg.ControlRetryDelay)
	}
	if len(cfg.Profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(cfg.Profiles))
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := `
companion_path = "/opt/wprs/bin/wprsc"
wayland_display = "wprs-7"

[control]
retries = 3
retry_delay = "250ms"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(dir, 0)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if cfg.CompanionPath != "/opt/wprs/bin/wprsc" {
		t.Errorf("expected configured companion path, got %q", cfg.CompanionPath)
	}
	if cfg.WaylandDisplay != "wprs-7" {
		t.Errorf("expected configured wayland display, got %q", cfg.WaylandDisplay)
	}
	if cfg.LegacyX11Display != ":9" {
		t.Errorf("expected unset key to keep its default, got %q", cfg.LegacyX11Display)
	}
	if cfg.ControlRetries != 3 {
		t.Errorf("expected 3 control retries, got %d", cfg.ControlRetries)
	}
	if cfg.ControlRetryDelay != 250*time.Millisecond {
		t.Errorf("expected 250ms retry delay, got %v", cfg.ControlRetryDelay)
	}
}

func TestLoad_InvalidRetryDelay(t *testing.T) {
	dir := t.TempDir()
	config := `
[control]
retry_delay = "soon"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(config), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(dir, 0); err == nil {
		t.Error("expected error for unparsable retry delay")
	}
}

func TestConfig_ProfileFallback(t *testing.T) {
	cfg := &Config{Profiles: map[string]*Profile{
		"known": {Name: "known", ForwardAudio: false},
	}}

	if p := cfg.Profile("known"); p.ForwardAudio {
		t.Error("expected the configured profile")
	}

	p := cfg.Profile("unknown")
	if p.Name != "unknown" {
		t.Errorf("expected fallback profile named after destination, got %q", p.Name)
	}
	if !p.ForwardAudio {
		t.Error("expected audio forwarding on by default")
	}
}

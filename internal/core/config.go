package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BaseDirName     = ".config/wprsctl"
	ProfileFileName = "destinations.hcl"
)

// Config carries every setting the session components need. It is
// built once in the cmd layer and handed to each constructor; no
// component reads ambient global state.
type Config struct {
	ConfigPath string
	Verbose    int

	// RuntimeDir overrides the per-user runtime directory used for
	// session sockets and the pid file. Empty means auto-detect.
	RuntimeDir string

	// CompanionPath is the wprsc binary started for each session.
	CompanionPath string

	// WaylandDisplay is the display name exported to remote commands.
	WaylandDisplay string

	// LegacyX11Display is the DISPLAY value exported to remote
	// commands when the session reports an X11 compatibility layer.
	LegacyX11Display string

	// ControlRetries is the number of additional connection attempts
	// after the first when the companion's control socket is not yet
	// reachable. ControlRetryDelay is the fixed delay between them.
	ControlRetries    int
	ControlRetryDelay time.Duration

	// Profiles holds the per-destination settings from
	// destinations.hcl, keyed by destination name.
	Profiles map[string]*Profile
}

// Load reads the global TOML config and the destination profiles from
// configPath. Missing files are not errors; defaults apply.
func Load(configPath string, verbose int) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("toml")

	v.SetDefault("runtime_dir", "")
	v.SetDefault("companion_path", "wprsc")
	v.SetDefault("wayland_display", "wprs-0")
	v.SetDefault("x11_display", ":9")
	v.SetDefault("control.retries", 10)
	v.SetDefault("control.retry_delay", "1s")

	v.SetEnvPrefix("wprsctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	retryDelay, err := time.ParseDuration(v.GetString("control.retry_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid control.retry_delay: %w", err)
	}

	cfg := &Config{
		ConfigPath:        configPath,
		Verbose:           verbose,
		RuntimeDir:        v.GetString("runtime_dir"),
		CompanionPath:     v.GetString("companion_path"),
		WaylandDisplay:    v.GetString("wayland_display"),
		LegacyX11Display:  v.GetString("x11_display"),
		ControlRetries:    v.GetInt("control.retries"),
		ControlRetryDelay: retryDelay,
	}

	profiles, err := LoadProfiles(filepath.Join(configPath, ProfileFileName))
	if err != nil {
		return nil, err
	}
	cfg.Profiles = profiles

	return cfg, nil
}

// Profile returns the profile for a destination, or an empty default
// when none is configured.
func (c *Config) Profile(destination string) *Profile {
	if p, ok := c.Profiles[destination]; ok {
		return p
	}
	return &Profile{Name: destination, ForwardAudio: true}
}

// DefaultConfigPath returns ~/.config/wprsctl, falling back to a
// relative path when the home directory cannot be determined.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}

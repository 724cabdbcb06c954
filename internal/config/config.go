package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Robot     RobotConfig `yaml:"robot"`
	Drive     DriveConfig `yaml:"drive"`
	LogLevel  string      `yaml:"log_level"`
	LogFormat string      `yaml:"log_format"` // "text" or "json"
	LogOutput string      `yaml:"log_output"` // "stderr", "stdout" or a file path
}

// RobotConfig controls how a robot is found and connected.
type RobotConfig struct {
	// Name selects a robot by advertised name. Empty means nearest.
	Name               string        `yaml:"name"`
	NearestTimeout     time.Duration `yaml:"nearest_timeout"`
	NamedTimeout       time.Duration `yaml:"named_timeout"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout"` // 0 disables
}

// DriveConfig holds keyboard drive settings.
type DriveConfig struct {
	Speed float64   `yaml:"speed"` // fraction of full speed at full stick
	Rate  float64   `yaml:"rate"`  // roll commands per second
	Burst int       `yaml:"burst"`
	Keys  DriveKeys `yaml:"keys"`
}

// DriveKeys names the keys used to drive.
type DriveKeys struct {
	Forward  string `yaml:"forward"`
	Backward string `yaml:"backward"`
	Left     string `yaml:"left"`
	Right    string `yaml:"right"`
	Stop     string `yaml:"stop"`
}

// All returns the keys in forward, backward, left, right, stop order.
func (k DriveKeys) All() []string {
	return []string{k.Forward, k.Backward, k.Left, k.Right, k.Stop}
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gosphero")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Robot: RobotConfig{
			NearestTimeout: 5 * time.Second,
			NamedTimeout:   15 * time.Second,
		},
		Drive: DriveConfig{
			Speed: 0.5,
			Rate:  10,
			Burst: 2,
			Keys: DriveKeys{
				Forward:  "w",
				Backward: "s",
				Left:     "a",
				Right:    "d",
				Stop:     "space",
			},
		},
		LogLevel:  "info",
		LogFormat: "text",
		LogOutput: "stderr",
	}
}

// ParseLogLevel converts a log level string to slog.Level.
// Unknown values default to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading tilde (~) in path is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	header := "# gosphero configuration\n# robot.name selects a robot by name; leave empty to use the nearest one.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Robot.NearestTimeout <= 0 {
		return fmt.Errorf("robot.nearest_timeout must be > 0")
	}
	if c.Robot.NamedTimeout <= 0 {
		return fmt.Errorf("robot.named_timeout must be > 0")
	}
	if c.Robot.NegotiationTimeout < 0 {
		return fmt.Errorf("robot.negotiation_timeout must not be negative")
	}

	if c.Drive.Speed <= 0 || c.Drive.Speed > 1 {
		return fmt.Errorf("drive.speed must be in (0, 1], got %v", c.Drive.Speed)
	}
	if c.Drive.Rate <= 0 {
		return fmt.Errorf("drive.rate must be > 0")
	}
	if c.Drive.Burst < 1 {
		return fmt.Errorf("drive.burst must be >= 1")
	}

	seen := make(map[string]bool)
	for _, k := range c.Drive.Keys.All() {
		if k == "" {
			return fmt.Errorf("drive.keys must all be set")
		}
		if seen[k] {
			return fmt.Errorf("drive.keys must be distinct, %q is used twice", k)
		}
		seen[k] = true
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be \"text\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

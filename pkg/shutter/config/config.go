package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/shutter/pkg/shutter/logging"
	"github.com/jamesainslie/shutter/pkg/shutter/request"
	"github.com/jamesainslie/shutter/pkg/shutter/tuner"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// QueueConfig sizes the save queue.
type QueueConfig struct {
	Capacity int  `mapstructure:"capacity"` // 0 = from memory tier
	Slots    int  `mapstructure:"slots"`    // 0 = capacity
	Small    bool `mapstructure:"small"`    // force the lowest tier
	HeapMB   int  `mapstructure:"heap_mb"`  // 0 = detect
}

// OutputConfig configures where and how images are written.
type OutputConfig struct {
	Dir     string `mapstructure:"dir"`
	Format  string `mapstructure:"format"`
	Quality int    `mapstructure:"quality"`
}

// SpoolConfig configures the inbox directory producer.
type SpoolConfig struct {
	Dir        string   `mapstructure:"dir"`
	Extensions []string `mapstructure:"extensions"`
	Settle     string   `mapstructure:"settle"`
}

// IndexConfig configures the media index.
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Console    string            `mapstructure:"console"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// Config represents the application configuration.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Output  OutputConfig  `mapstructure:"output"`
	Spool   SpoolConfig   `mapstructure:"spool"`
	Index   IndexConfig   `mapstructure:"index"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("queue.capacity", DefaultCapacity)
	v.SetDefault("queue.slots", DefaultSlots)
	v.SetDefault("queue.small", false)
	v.SetDefault("queue.heap_mb", 0)

	v.SetDefault("output.dir", filepath.Join(xdg.UserDirs.Pictures, "shutter"))
	v.SetDefault("output.format", DefaultOutputFormat)
	v.SetDefault("output.quality", DefaultOutputQuality)

	v.SetDefault("spool.dir", filepath.Join(DataDir(), "spool"))
	v.SetDefault("spool.extensions", DefaultSpoolExtensions)
	v.SetDefault("spool.settle", DefaultSettle)

	v.SetDefault("index.path", filepath.Join(DataDir(), "index"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.console", "")
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"queue": "info",
		"saver": "info",
		"spool": "info",
	})
}

// Prepare points v at the config file and environment. An empty file
// searches the standard locations:
//   - $XDG_CONFIG_HOME/shutter/config.yaml
//   - $HOME/.config/shutter/config.yaml
//
// Environment variables are prefixed with SHUTTER_ (e.g.
// SHUTTER_QUEUE_CAPACITY).
func Prepare(v *viper.Viper, file string) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "shutter"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "shutter"))
		}
	}

	v.SetEnvPrefix("SHUTTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
}

// Decode reads the config file, if any, and unmarshals v.
func Decode(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Output.Dir, &cfg.Spool.Dir, &cfg.Index.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

// Load loads configuration from file and environment variables using a
// private viper instance.
func Load(file string) (*Config, error) {
	v := viper.New()
	Prepare(v, file)
	return Decode(v)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Queue.Capacity < 0 {
		return fmt.Errorf("%w: queue.capacity must not be negative", ErrInvalid)
	}
	if c.Queue.Slots < 0 {
		return fmt.Errorf("%w: queue.slots must not be negative", ErrInvalid)
	}
	if c.Queue.HeapMB < 0 {
		return fmt.Errorf("%w: queue.heap_mb must not be negative", ErrInvalid)
	}
	if c.Queue.Capacity > 0 && c.Queue.Capacity < tuner.MinCapacity() {
		return fmt.Errorf("%w: queue.capacity %d cannot hold a RAW and JPEG capture (need %d)",
			ErrInvalid, c.Queue.Capacity, tuner.MinCapacity())
	}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		return fmt.Errorf("%w: unknown output.format %q", ErrInvalid, c.Output.Format)
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("%w: output.quality must be within 1..100", ErrInvalid)
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("%w: output.dir is required", ErrInvalid)
	}
	if _, err := c.SettleDuration(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}
	return nil
}

// Format returns the configured output format.
func (c *Config) Format() request.Format {
	switch strings.ToLower(c.Output.Format) {
	case "webp":
		return request.FormatWEBP
	case "png":
		return request.FormatPNG
	default:
		return request.FormatStandard
	}
}

// SettleDuration parses spool.settle.
func (c *Config) SettleDuration() (time.Duration, error) {
	if c.Spool.Settle == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Spool.Settle)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: spool.settle %q", ErrInvalid, c.Spool.Settle)
	}
	return d, nil
}

// Overrides returns the queue planning overrides.
func (c *Config) Overrides() tuner.Overrides {
	return tuner.Overrides{
		SmallQueue: c.Queue.Small,
		HeapMB:     c.Queue.HeapMB,
		Capacity:   c.Queue.Capacity,
		Slots:      c.Queue.Slots,
	}
}

// LoggingConfig converts the logging section for logging.Init.
func (c *Config) LoggingConfig() logging.Config {
	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Rotation:     ParseRotation(c.Logging.Rotation),
		Components:   c.Logging.Components,
		ConsoleLevel: c.Logging.Console,
	}
}

// ParseRotation converts rotation settings, falling back to the default
// size when max_size is empty or unparseable.
func ParseRotation(r RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxBackups: r.MaxBackups,
		Daily:      r.Daily,
	}
	if r.MaxSize != "" {
		if n, err := humanize.ParseBytes(r.MaxSize); err == nil && n > 0 {
			out.MaxSize = int64(n)
		}
	}
	return out
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "shutter"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "shutter"), nil
}

// DataDir returns $XDG_DATA_HOME/shutter/ for the spool and media index.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "shutter")
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// WriteDefault writes a default config file to dir if none exists and
// returns its path. An existing file is left alone.
func WriteDefault(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Shutter Configuration

# Save queue sizing
queue:
  # Cost capacity (0 = from memory tier)
  capacity: %d
  # Maximum waiting requests (0 = capacity)
  slots: %d
  # Force the smallest tier
  small: false
  # Memory tier in MB (0 = detect)
  heap_mb: 0

# Saved images
output:
  dir: %s
  # jpeg, webp or png
  format: %s
  quality: %d

# Inbox directory fed by the capture process
spool:
  dir: %s
  extensions: [%s]
  settle: %s

# Media index
index:
  path: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/shutter/shutter.log)
  path: ""
  # Mirror logs at or above this level to stderr (empty disables)
  console: ""
  rotation:
    max_size: %s
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    queue: info
    saver: info
    spool: info
`,
		DefaultCapacity, DefaultSlots,
		filepath.Join(xdg.UserDirs.Pictures, "shutter"), DefaultOutputFormat, DefaultOutputQuality,
		filepath.Join(DataDir(), "spool"), strings.Join(DefaultSpoolExtensions, ", "), DefaultSettle,
		filepath.Join(DataDir(), "index"),
		DefaultLogMaxSize)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return configPath, nil
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. MAABRIDGE_LOGGING_LEVEL=debug.
const EnvPrefix = "MAABRIDGE"

// Config represents the complete maabridge configuration
type Config struct {
	Library    LibraryConfig    `mapstructure:"library" yaml:"library" json:"library"`
	Resource   ResourceConfig   `mapstructure:"resource" yaml:"resource" json:"resource"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
	Controller ControllerConfig `mapstructure:"controller" yaml:"controller" json:"controller"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events" json:"events"`
	Agent      AgentConfig      `mapstructure:"agent" yaml:"agent" json:"agent"`
	Host       HostConfig       `mapstructure:"host" yaml:"host" json:"host"`
}

// LibraryConfig locates the native engine libraries
type LibraryConfig struct {
	// Dir is the directory holding MaaFramework, MaaToolkit and MaaAgentClient.
	// If empty, DefaultLibraryDir() is used.
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// ResourceConfig controls where resource bundles are looked up
type ResourceConfig struct {
	// Dir is the base directory for relative resource bundle paths
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// LoggingConfig controls application logging
type LoggingConfig struct {
	// Enabled controls whether file logging is enabled (default: true).
	// When false, logs go to stderr.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level" json:"level"`
	// Dir is the log directory. If empty, DefaultLogDir() is used.
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress" yaml:"compress" json:"compress"`
}

// ControllerConfig holds options applied to every new controller
type ControllerConfig struct {
	// ScreenshotShortSide is the screenshot target short side in pixels (default: 720)
	ScreenshotShortSide int `mapstructure:"screenshot_short_side" yaml:"screenshot_short_side" json:"screenshot_short_side"`
}

// EventsConfig controls the event relay
type EventsConfig struct {
	// QueueSize bounds the number of undelivered events (default: 1024).
	// Events offered to a full queue are dropped.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
}

// AgentConfig controls agent subprocess handling
type AgentConfig struct {
	// LogFile is the name of the shared agent output log inside the log directory
	LogFile string `mapstructure:"log_file" yaml:"log_file" json:"log_file"`
	// KillGraceMs is how long to wait after disconnecting an agent before
	// killing its process (default: 0, kill immediately)
	KillGraceMs int `mapstructure:"kill_grace_ms" yaml:"kill_grace_ms" json:"kill_grace_ms"`
}

// HostConfig controls the host-facing transports
type HostConfig struct {
	// WSAddr enables the websocket transport on this address when non-empty
	WSAddr string `mapstructure:"ws_addr" yaml:"ws_addr" json:"ws_addr"`
}

// KillGrace returns the agent kill grace period as a time.Duration
func (c *AgentConfig) KillGrace() time.Duration {
	return time.Duration(c.KillGraceMs) * time.Millisecond
}

// ResolveLibraryDir returns the configured library directory or the default.
func (c *Config) ResolveLibraryDir() string {
	if c.Library.Dir != "" {
		return c.Library.Dir
	}
	return DefaultLibraryDir()
}

// ResolveLogDir returns the configured log directory or the default.
func (c *Config) ResolveLogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return DefaultLogDir()
}

// AgentLogPath returns the full path of the shared agent log file.
func (c *Config) AgentLogPath() string {
	return filepath.Join(c.ResolveLogDir(), c.Agent.LogFile)
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Controller: ControllerConfig{
			ScreenshotShortSide: 720,
		},
		Events: EventsConfig{
			QueueSize: 1024,
		},
		Agent: AgentConfig{
			LogFile: "mxu-agent.log",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("library.dir", defaults.Library.Dir)
	viper.SetDefault("resource.dir", defaults.Resource.Dir)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	viper.SetDefault("controller.screenshot_short_side", defaults.Controller.ScreenshotShortSide)
	viper.SetDefault("events.queue_size", defaults.Events.QueueSize)

	// Agent defaults
	viper.SetDefault("agent.log_file", defaults.Agent.LogFile)
	viper.SetDefault("agent.kill_grace_ms", defaults.Agent.KillGraceMs)

	viper.SetDefault("host.ws_addr", defaults.Host.WSAddr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Watch invokes onChange with the freshly loaded configuration whenever the
// config file viper is reading changes on disk. Invalid edits are passed to
// onError and the previous configuration stays in effect.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "maabridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".maabridge"
	}
	return filepath.Join(home, ".config", "maabridge")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ExecutableDir returns the directory of the running executable,
// or "." when it cannot be determined.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// DefaultLibraryDir returns <exe dir>/maafw. Inside a macOS app bundle the
// executable lives in Contents/MacOS and the libraries in Contents/Resources.
func DefaultLibraryDir() string {
	return libraryDirFor(ExecutableDir(), runtime.GOOS)
}

func libraryDirFor(exeDir, goos string) string {
	if goos == "darwin" && filepath.Base(exeDir) == "MacOS" {
		return filepath.Join(filepath.Dir(exeDir), "Resources", "maafw")
	}
	return filepath.Join(exeDir, "maafw")
}

// DefaultLogDir returns <exe dir>/debug.
func DefaultLogDir() string {
	return filepath.Join(ExecutableDir(), "debug")
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.MaxSizeMB != 10 {
		t.Errorf("Logging.MaxSizeMB = %d, want 10", cfg.Logging.MaxSizeMB)
	}
	if cfg.Controller.ScreenshotShortSide != 720 {
		t.Errorf("Controller.ScreenshotShortSide = %d, want 720", cfg.Controller.ScreenshotShortSide)
	}
	if cfg.Events.QueueSize != 1024 {
		t.Errorf("Events.QueueSize = %d, want 1024", cfg.Events.QueueSize)
	}
	if cfg.Agent.LogFile != "mxu-agent.log" {
		t.Errorf("Agent.LogFile = %q, want %q", cfg.Agent.LogFile, "mxu-agent.log")
	}
	if cfg.Host.WSAddr != "" {
		t.Errorf("Host.WSAddr = %q, want empty", cfg.Host.WSAddr)
	}
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Controller.ScreenshotShortSide != 720 {
		t.Errorf("ScreenshotShortSide = %d, want 720", cfg.Controller.ScreenshotShortSide)
	}
	if cfg.Events.QueueSize != 1024 {
		t.Errorf("QueueSize = %d, want 1024", cfg.Events.QueueSize)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	t.Setenv("MAABRIDGE_LOGGING_LEVEL", "debug")
	t.Setenv("MAABRIDGE_EVENTS_QUEUE_SIZE", "16")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Events.QueueSize != 16 {
		t.Errorf("Events.QueueSize = %d, want 16", cfg.Events.QueueSize)
	}
}

func TestLoad_InvalidConfigReturnsValidationErrors(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("events.queue_size", 0)
	viper.Set("logging.level", "loud")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail for invalid config")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if len(verrs) != 2 {
		t.Errorf("got %d validation errors, want 2: %v", len(verrs), verrs)
	}
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	resetViper(t)
	SetDefaults()
	viper.Set("controller.screenshot_short_side", 1)

	cfg := Get()
	if cfg.Controller.ScreenshotShortSide != 720 {
		t.Errorf("Get() should fall back to defaults, got %d", cfg.Controller.ScreenshotShortSide)
	}
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	resetViper(t)
	SetDefaults()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	changed := make(chan string, 4)
	Watch(func(cfg *Config) {
		changed <- cfg.Logging.Level
	}, nil)

	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case level := <-changed:
			if level == "debug" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		if got := ConfigDir(); got != filepath.Join("/tmp/xdg", "maabridge") {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != filepath.Join("/tmp/xdg", "maabridge", "config.yaml") {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		if got := ConfigDir(); got != filepath.Join(home, ".config", "maabridge") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})
}

func TestLibraryDirFor(t *testing.T) {
	tests := []struct {
		name   string
		exeDir string
		goos   string
		want   string
	}{
		{"linux", "/opt/app", "linux", filepath.Join("/opt/app", "maafw")},
		{"darwin plain", "/usr/local/bin", "darwin", filepath.Join("/usr/local/bin", "maafw")},
		{"darwin bundle", "/Applications/App.app/Contents/MacOS", "darwin",
			filepath.Join("/Applications/App.app/Contents", "Resources", "maafw")},
		{"MacOS dir off darwin", "/x/MacOS", "linux", filepath.Join("/x/MacOS", "maafw")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := libraryDirFor(tt.exeDir, tt.goos); got != tt.want {
				t.Errorf("libraryDirFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolvers(t *testing.T) {
	cfg := Default()
	if cfg.ResolveLibraryDir() != DefaultLibraryDir() {
		t.Errorf("ResolveLibraryDir() = %q, want default", cfg.ResolveLibraryDir())
	}
	if cfg.ResolveLogDir() != DefaultLogDir() {
		t.Errorf("ResolveLogDir() = %q, want default", cfg.ResolveLogDir())
	}

	cfg.Library.Dir = "/libs"
	cfg.Logging.Dir = "/logs"
	if cfg.ResolveLibraryDir() != "/libs" {
		t.Errorf("ResolveLibraryDir() = %q", cfg.ResolveLibraryDir())
	}
	if got := cfg.AgentLogPath(); got != filepath.Join("/logs", "mxu-agent.log") {
		t.Errorf("AgentLogPath() = %q", got)
	}

	cfg.Agent.KillGraceMs = 250
	if cfg.Agent.KillGrace() != 250*time.Millisecond {
		t.Errorf("KillGrace() = %v", cfg.Agent.KillGrace())
	}
}

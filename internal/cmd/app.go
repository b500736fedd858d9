package cmd

import (
	"fmt"

	"github.com/Iron-Ham/maabridge/internal/bridge"
	"github.com/Iron-Ham/maabridge/internal/config"
	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// loadConfig reads and validates the effective configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the application logger. Logs never go to stdout, which
// carries the host protocol.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewLogger("", cfg.Logging.Level)
	}
	return logging.NewLoggerWithRotation(cfg.ResolveLogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

// newService wires the bridge to the process-wide native library.
func newService(cfg *config.Config, logger *logging.Logger) *bridge.Service {
	lib := native.Default()
	lib.SetLogger(logger)
	opts := bridge.OptionsFromConfig(cfg)
	opts.Loader = lib
	return bridge.New(lib, opts, logger)
}

// openService loads configuration, logging and the native library in one
// step for one-shot commands. The returned cleanup closes everything.
func openService() (*bridge.Service, *logging.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := newService(cfg, logger)
	cleanup := func() {
		_ = svc.Close()
		_ = logger.Close()
	}
	if _, err := svc.Init(""); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return svc, logger, cleanup, nil
}

// Package logging provides structured logging for the bridge.
//
// This package wraps Go's log/slog to provide JSON-formatted logs tagged
// with the originating instance. The log level is held in a shared
// [slog.LevelVar] so it can be changed at runtime when the configuration
// file is edited.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithInstance("main").Info("controller created", "conn_id", 3)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"controller created","instance_id":"main","conn_id":3}
//
// # Log Rotation
//
// For long-running hosts, use [NewLoggerWithRotation]. Rotated files are
// named maabridge.log.1, maabridge.log.2, etc., where .1 is the most recent
// backup; with compression enabled they become maabridge.log.1.gz.
//
// # Testing
//
// Use [NopLogger] to discard all log output.
package logging

package config

import (
	"fmt"
	"net"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "events.queue_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

const (
	minScreenshotShortSide = 64
	maxScreenshotShortSide = 4320
	maxQueueSize           = 1 << 20
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateController()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateAgent()...)
	errors = append(errors, c.validateHost()...)

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative",
		})
	}
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateController() []ValidationError {
	var errors []ValidationError

	side := c.Controller.ScreenshotShortSide
	if side < minScreenshotShortSide || side > maxScreenshotShortSide {
		errors = append(errors, ValidationError{
			Field:   "controller.screenshot_short_side",
			Value:   side,
			Message: fmt.Sprintf("must be between %d and %d", minScreenshotShortSide, maxScreenshotShortSide),
		})
	}

	return errors
}

func (c *Config) validateEvents() []ValidationError {
	var errors []ValidationError

	if c.Events.QueueSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "events.queue_size",
			Value:   c.Events.QueueSize,
			Message: "must be at least 1",
		})
	} else if c.Events.QueueSize > maxQueueSize {
		errors = append(errors, ValidationError{
			Field:   "events.queue_size",
			Value:   c.Events.QueueSize,
			Message: fmt.Sprintf("exceeds maximum of %d", maxQueueSize),
		})
	}

	return errors
}

func (c *Config) validateAgent() []ValidationError {
	var errors []ValidationError

	switch {
	case c.Agent.LogFile == "":
		errors = append(errors, ValidationError{
			Field:   "agent.log_file",
			Value:   c.Agent.LogFile,
			Message: "must not be empty",
		})
	case filepath.Base(c.Agent.LogFile) != c.Agent.LogFile:
		errors = append(errors, ValidationError{
			Field:   "agent.log_file",
			Value:   c.Agent.LogFile,
			Message: "must be a file name without directory components",
		})
	}
	if c.Agent.KillGraceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "agent.kill_grace_ms",
			Value:   c.Agent.KillGraceMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateHost() []ValidationError {
	var errors []ValidationError

	if c.Host.WSAddr != "" {
		if _, _, err := net.SplitHostPort(c.Host.WSAddr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "host.ws_addr",
				Value:   c.Host.WSAddr,
				Message: "must be a host:port address",
			})
		}
	}

	return errors
}

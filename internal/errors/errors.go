// Package errors provides the error vocabulary of the bridge: sentinel errors
// for every failure kind the host can observe, domain error types carrying
// instance and native-call context, and helpers for turning any error into
// the human-readable string returned across the host boundary.
//
// # Error Kinds
//
// Sentinel errors identify the failure kind and are matched with [Is]:
//   - [ErrLibraryNotLoaded]: the engine library has not been loaded
//   - [ErrLibraryAlreadyLoaded]: the engine is loaded from another directory
//   - [ErrInstanceNotFound]: no instance with the requested id
//   - [ErrHandleCreation]: a native factory returned a null handle
//   - [ErrRequestPost]: a native post call returned the invalid id
//   - [ErrPrecondition]: a required handle or state is missing
//   - [ErrSchedulerNotInitialized]: the tasker reports itself uninitialized
//   - [ErrAgentSpawn], [ErrAgentConnect]: agent process failures
//   - [ErrLockPoisoned]: a previous operation panicked while holding a lock
//
// Domain errors wrap a sentinel and add context:
//
//	err := errors.NewBridgeError("failed to create controller", errors.ErrHandleCreation).
//	    WithInstanceID("main").
//	    WithCall("MaaAdbControllerCreate")
//	fmt.Println(err) // "bridge error [instance=main, call=MaaAdbControllerCreate]: failed to create controller: handle creation failed"
//
// # Host Boundary
//
// Commands never surface structured errors to the host. [Describe] renders
// any error as the string sent back to the caller.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Library and instance sentinel errors
var (
	// ErrLibraryNotLoaded indicates the engine library has not been loaded yet.
	ErrLibraryNotLoaded = New("MaaFramework not initialized")
	// ErrLibraryAlreadyLoaded indicates the engine is already loaded from a
	// different directory.
	ErrLibraryAlreadyLoaded = New("MaaFramework already loaded from another directory")
	// ErrInstanceNotFound indicates that an instance could not be found.
	ErrInstanceNotFound = New("instance not found")
	// ErrLockPoisoned indicates a panic occurred while a shared lock was held.
	ErrLockPoisoned = New("lock poisoned by a previous panic")
)

// Native call sentinel errors
var (
	// ErrHandleCreation indicates a native factory returned a null handle.
	ErrHandleCreation = New("handle creation failed")
	// ErrRequestPost indicates a native post call returned the invalid id.
	ErrRequestPost = New("request post failed")
	// ErrPrecondition indicates a required handle or state is missing.
	ErrPrecondition = New("precondition violated")
	// ErrSchedulerNotInitialized indicates the tasker did not report itself inited.
	ErrSchedulerNotInitialized = New("tasker not properly initialized")
	// ErrNativeCall indicates a native query returned a failure value.
	ErrNativeCall = New("native call failed")
)

// Agent sentinel errors
var (
	// ErrAgentSpawn indicates the agent process could not be started.
	ErrAgentSpawn = New("failed to start agent process")
	// ErrAgentConnect indicates the agent client failed to connect.
	ErrAgentConnect = New("failed to connect to agent")
)

// General sentinel errors
var (
	// ErrUnsupported indicates the requested variant is not available on this platform.
	ErrUnsupported = New("unsupported")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// BridgeFailure is the base interface for the bridge's structured errors.
type BridgeFailure interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// BridgeError represents a failure of an operation against one instance,
// optionally naming the native function that reported it.
type BridgeError struct {
	baseError
	InstanceID string
	Call       string
}

// NewBridgeError creates a new BridgeError.
func NewBridgeError(message string, cause error) *BridgeError {
	return &BridgeError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *BridgeError) WithInstanceID(id string) *BridgeError {
	e.InstanceID = id
	return e
}

// WithCall adds the native function name to the error context.
func (e *BridgeError) WithCall(call string) *BridgeError {
	e.Call = call
	return e
}

// WithSeverity sets the error severity.
func (e *BridgeError) WithSeverity(s Severity) *BridgeError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *BridgeError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.Call != "" {
		parts = append(parts, fmt.Sprintf("call=%s", e.Call))
	}

	prefix := "bridge error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("bridge error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// AgentError represents a failure while spawning or connecting to an
// agent process.
type AgentError struct {
	baseError
	InstanceID string
	Executable string
	PID        int
}

// NewAgentError creates a new AgentError.
func NewAgentError(message string, cause error) *AgentError {
	return &AgentError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithInstanceID adds an instance ID to the error context.
func (e *AgentError) WithInstanceID(id string) *AgentError {
	e.InstanceID = id
	return e
}

// WithExecutable adds the resolved executable path to the error context.
func (e *AgentError) WithExecutable(path string) *AgentError {
	e.Executable = path
	return e
}

// WithPID adds the agent process id to the error context.
func (e *AgentError) WithPID(pid int) *AgentError {
	e.PID = pid
	return e
}

// Error returns the formatted error message.
func (e *AgentError) Error() string {
	var parts []string
	if e.InstanceID != "" {
		parts = append(parts, fmt.Sprintf("instance=%s", e.InstanceID))
	}
	if e.Executable != "" {
		parts = append(parts, fmt.Sprintf("exec=%s", e.Executable))
	}
	if e.PID > 0 {
		parts = append(parts, fmt.Sprintf("pid=%d", e.PID))
	}

	prefix := "agent error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("agent error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("instance", "main")
//	fmt.Println(err) // "instance 'main' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	return e.message
}

// Is reports instance lookups as ErrInstanceNotFound.
func (e *NotFoundError) Is(target error) bool {
	if target == ErrInstanceNotFound && e.ResourceType == "instance" {
		return true
	}
	return false
}

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("invalid screencap_methods").WithField("screencap_methods").WithValue("abc")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is matches ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var failure BridgeFailure
	if As(err, &failure) {
		return failure.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BridgeFailure.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var failure BridgeFailure
	if As(err, &failure) {
		return failure.Severity()
	}
	return SeverityError
}

// Describe renders err as the string returned across the host boundary.
// A nil error renders as the empty string.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

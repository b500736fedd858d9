package agent

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Config describes how to launch an agent.
type Config struct {
	ChildExec  string   `json:"child_exec"`
	ChildArgs  []string `json:"child_args,omitempty"`
	Identifier string   `json:"identifier,omitempty"`
	// TimeoutMs bounds the connect wait. Nil or -1 waits indefinitely.
	TimeoutMs *int64 `json:"timeout,omitempty"`
}

// Timeout returns the connect timeout in milliseconds, -1 meaning forever.
func (c Config) Timeout() int64 {
	if c.TimeoutMs == nil {
		return -1
	}
	return *c.TimeoutMs
}

// Args returns the child arguments with the rendezvous identifier appended.
func (c Config) Args(identifier string) []string {
	return append(slices.Clone(c.ChildArgs), identifier)
}

// UnmarshalJSON accepts both "timeout" and "timeout_ms".
func (c *Config) UnmarshalJSON(data []byte) error {
	type plain Config
	var aux struct {
		plain
		TimeoutAlt *int64 `json:"timeout_ms"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Config(aux.plain)
	if c.TimeoutMs == nil {
		c.TimeoutMs = aux.TimeoutAlt
	}
	if c.ChildExec == "" {
		return fmt.Errorf("agent config: child_exec is required")
	}
	return nil
}

// State is the lifecycle state of an agent.
type State int32

const (
	StateNotStarted State = iota
	StateSpawning
	StateConnecting
	StateConnected
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateSpawning:
		return "spawning"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

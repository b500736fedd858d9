package nativetest

import (
	"slices"
	"strings"

	"github.com/Iron-Ham/maabridge/internal/native"
)

// Calls returns every recorded call name in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (e *Engine) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range e.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// CountCalls returns how many times name was called.
func (e *Engine) CountCalls(name string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
}

// Live returns the number of live handles of kind.
func (e *Engine) Live(kind string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, k := range e.live {
		if k == kind {
			n++
		}
	}
	return n
}

// LiveTotal returns the number of live handles of any kind.
func (e *Engine) LiveTotal() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// Destroyed reports whether handle h was destroyed.
func (e *Engine) Destroyed(h uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed[h]
}

// DoubleFrees returns the number of destroy calls on dead or unknown handles.
func (e *Engine) DoubleFrees() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doubleFree
}

// TaskerBinding returns the resource and controller bound to t.
func (e *Engine) TaskerBinding(t native.Tasker) (native.Resource, native.Controller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskerRes[t], e.taskerCtrl[t]
}

// AgentTimeout returns the timeout set on a, if any.
func (e *Engine) AgentTimeout(a native.AgentClient) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ms, ok := e.timeouts[a]
	return ms, ok
}

// Bundles returns the resource paths successfully posted.
func (e *Engine) Bundles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.bundles)
}

// SetConnected overrides the connectivity of c.
func (e *Engine) SetConnected(c native.Controller, connected bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected[c] = connected
}

// SetStatus sets the status reported for task id.
func (e *Engine) SetStatus(id int64, status int32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status[id] = status
}

// SetRunning overrides the running flag of t.
func (e *Engine) SetRunning(t native.Tasker, running bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[t] = running
}

// Emit delivers an event as if the engine raised it for handle h. It returns
// false when h has no registered sink or no event sink is installed.
func (e *Engine) Emit(h uintptr, message, details string) bool {
	e.mu.Lock()
	transArg, ok := e.transArgs[h]
	sink := e.sink
	e.mu.Unlock()

	if !ok || sink == nil {
		return false
	}
	sink(native.Event{Handle: h, Message: message, Details: details, TransArg: transArg})
	return true
}

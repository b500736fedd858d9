package instance

import "sync"

// ConnPhase is the observed phase of the latest connection request.
type ConnPhase int

const (
	// ConnIdle means no connection request is outstanding.
	ConnIdle ConnPhase = iota
	// ConnPending means a request was posted and no result has been observed.
	ConnPending
	// ConnSucceeded means the engine reported the connection succeeded.
	ConnSucceeded
	// ConnFailed means the engine reported the connection failed.
	ConnFailed
)

// ConnTracker follows the outcome of posted connection requests using
// engine notifications. It has its own lock so event dispatch never waits
// on the runtime mutex.
type ConnTracker struct {
	mu     sync.Mutex
	connID int64
	phase  ConnPhase
	reason string

	// early holds the last outcome that arrived before its request was
	// recorded as posted.
	early outcome
}

type outcome struct {
	connID int64
	ok     bool
	reason string
}

// Posted records a newly posted connection request.
func (c *ConnTracker) Posted(connID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connID = connID
	c.phase = ConnPending
	c.reason = ""
	if c.early.connID == connID {
		c.apply(c.early.ok, c.early.reason)
		c.early = outcome{}
	}
}

// Observe records the outcome reported for connID. An outcome for an id
// that is not the current request is held until that id is posted, and
// Observe returns false.
func (c *ConnTracker) Observe(connID int64, ok bool, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if connID != c.connID || c.phase == ConnIdle {
		c.early = outcome{connID: connID, ok: ok, reason: reason}
		return false
	}
	c.apply(ok, reason)
	return true
}

func (c *ConnTracker) apply(ok bool, reason string) {
	if ok {
		c.phase = ConnSucceeded
		c.reason = ""
	} else {
		c.phase = ConnFailed
		c.reason = reason
	}
}

// State returns the current phase and failure reason.
func (c *ConnTracker) State() (ConnPhase, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.reason
}

// ConnID returns the id of the latest posted request.
func (c *ConnTracker) ConnID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

// Reset forgets the outstanding request. A held early outcome survives so
// a replacement controller's result is not lost.
func (c *ConnTracker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connID = 0
	c.phase = ConnIdle
	c.reason = ""
}

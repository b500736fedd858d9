package event

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/maabridge/internal/logging"
)

// DefaultQueueSize is used when NewRelay is given a non-positive size.
const DefaultQueueSize = 1024

// Relay moves events from arbitrary goroutines (including engine callback
// threads) onto a Bus without ever blocking the producer.
type Relay struct {
	bus    *Bus
	queue  chan Event
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool

	dropped   atomic.Uint64
	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	started   atomic.Bool
}

// NewRelay creates a relay with a queue of the given capacity.
func NewRelay(bus *Bus, size int, logger *logging.Logger) *Relay {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Relay{
		bus:    bus,
		queue:  make(chan Event, size),
		logger: logger.WithComponent("relay"),
		done:   make(chan struct{}),
	}
}

// Start launches the dispatcher. Calling Start more than once has no effect.
func (r *Relay) Start() {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.run()
	})
}

func (r *Relay) run() {
	defer close(r.done)
	for ev := range r.queue {
		r.bus.Publish(ev)
	}
}

// Offer enqueues ev. It never blocks: if the queue is full or the relay is
// closed, the event is dropped and false is returned.
func (r *Relay) Offer(ev Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.queue <- ev:
		return true
	default:
		n := r.dropped.Add(1)
		// Log the first drop and every 100th after.
		if n == 1 || n%100 == 0 {
			r.logger.Warn("event queue full, dropping event",
				"event_type", ev.EventType(),
				"dropped_total", n)
		}
		return false
	}
}

// Dropped returns the number of events dropped so far.
func (r *Relay) Dropped() uint64 {
	return r.dropped.Load()
}

// Pending returns the number of queued, undelivered events.
func (r *Relay) Pending() int {
	return len(r.queue)
}

// Close stops accepting events, delivers what is queued and waits for the
// dispatcher to exit.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		if r.started.Load() {
			<-r.done
		}
	})
}

package instance

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/maabridge/internal/errors"
	"github.com/Iron-Ham/maabridge/internal/event"
	"github.com/Iron-Ham/maabridge/internal/logging"
	"github.com/Iron-Ham/maabridge/internal/native"
)

// Registry maps instance ids to runtimes.
//
// The registry mutex only guards the map. It is never held across a native
// call: With looks the runtime up, releases the registry mutex, then locks
// the runtime. Operations on different instances therefore never wait on
// each other.
type Registry struct {
	engine native.Engine
	logger *logging.Logger
	relay  *event.Relay

	mu       sync.Mutex
	runtimes map[string]*Runtime

	// tokens maps sink transparent arguments to runtimes without locking,
	// so engine callback threads can resolve events.
	tokens    sync.Map
	nextToken atomic.Uintptr
}

// NewRegistry creates an empty registry. relay may be nil.
func NewRegistry(engine native.Engine, relay *event.Relay, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Registry{
		engine:   engine,
		logger:   logger.WithComponent("registry"),
		relay:    relay,
		runtimes: make(map[string]*Runtime),
	}
}

// Engine returns the engine runtimes are torn down with.
func (r *Registry) Engine() native.Engine {
	return r.engine
}

// Create registers an empty runtime for id. Creating an existing id is a
// no-op that reports created=false.
func (r *Registry) Create(id string) (created bool, err error) {
	if id == "" {
		return false, errors.NewValidationError("instance id must not be empty").WithField("instance_id")
	}

	r.mu.Lock()
	if _, ok := r.runtimes[id]; ok {
		r.mu.Unlock()
		r.logger.Debug("instance already exists", "instance_id", id)
		return false, nil
	}
	rt := newRuntime(id, r.nextToken.Add(1))
	r.runtimes[id] = rt
	r.tokens.Store(rt.token, rt)
	r.mu.Unlock()

	r.logger.Info("instance created", "instance_id", id)
	r.offer(event.NewInstanceCreatedEvent(id))
	return true, nil
}

// Destroy removes id and releases everything its runtime owns. Destroying
// an unknown id succeeds with a warning.
func (r *Registry) Destroy(id string) error {
	r.mu.Lock()
	rt, ok := r.runtimes[id]
	if ok {
		delete(r.runtimes, id)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("destroy requested for unknown instance", "instance_id", id)
		return nil
	}

	r.teardown(rt)
	r.logger.Info("instance destroyed", "instance_id", id)
	r.offer(event.NewInstanceDestroyedEvent(id))
	return nil
}

// teardown waits for any in-flight operation on rt, then releases it.
func (r *Registry) teardown(rt *Runtime) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	r.tokens.Delete(rt.token)
	if rt.destroyed {
		return
	}
	rt.destroyed = true
	rt.Teardown(r.engine, r.logger.WithInstance(rt.id))
}

// With runs fn with exclusive access to the runtime of id. A panic inside fn
// poisons the runtime: later calls fail with ErrLockPoisoned until the
// instance is destroyed.
func (r *Registry) With(id string, fn func(rt *Runtime) error) (err error) {
	rt, err := r.lookup(id)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.destroyed {
		return errors.NewNotFoundError("instance", id)
	}
	if rt.poisoned {
		return errors.NewBridgeError("runtime unusable", errors.ErrLockPoisoned).WithInstanceID(id)
	}

	defer func() {
		if p := recover(); p != nil {
			rt.poisoned = true
			r.logger.Error("panic while holding instance lock",
				"instance_id", id,
				"panic", p,
				"stack", string(debug.Stack()))
			err = errors.NewBridgeError(fmt.Sprintf("operation panicked: %v", p), errors.ErrLockPoisoned).
				WithInstanceID(id)
		}
	}()
	return fn(rt)
}

// View is With for callers that only read runtime state.
func (r *Registry) View(id string, fn func(rt *Runtime) error) error {
	return r.With(id, fn)
}

func (r *Registry) lookup(id string) (*Runtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.runtimes[id]
	if !ok {
		return nil, errors.NewNotFoundError("instance", id)
	}
	return rt, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runtimes[id]
	return ok
}

// ByToken resolves a sink transparent argument to its runtime without
// taking any bridge lock. Safe to call from engine callback threads.
func (r *Registry) ByToken(token uintptr) (*Runtime, bool) {
	v, ok := r.tokens.Load(token)
	if !ok {
		return nil, false
	}
	return v.(*Runtime), true
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.runtimes))
	for id := range r.runtimes {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runtimes)
}

// Snapshot calls fn for each instance under its runtime lock, in id order.
// Instances destroyed concurrently are skipped.
func (r *Registry) Snapshot(fn func(rt *Runtime)) {
	for _, id := range r.IDs() {
		_ = r.View(id, func(rt *Runtime) error {
			fn(rt)
			return nil
		})
	}
}

// Close destroys every instance. It is called at process exit so no native
// handle or agent process outlives the bridge.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*Runtime, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		all = append(all, rt)
	}
	r.runtimes = make(map[string]*Runtime)
	r.mu.Unlock()

	for _, rt := range all {
		r.teardown(rt)
	}
	if len(all) > 0 {
		r.logger.Info("registry closed", "instances", len(all))
	}
}

func (r *Registry) offer(ev event.Event) {
	if r.relay != nil {
		r.relay.Offer(ev)
	}
}

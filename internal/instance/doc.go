// Package instance owns the per-instance native state of the bridge.
//
// A [Registry] maps host-chosen instance ids to [Runtime] values. A Runtime
// holds the opaque handles of one instance (resource, controller, tasker,
// agent client), its agent process and the ids of tasks posted since the
// last stop.
//
// # Locking
//
// The registry mutex guards only the id map. [Registry.With] looks the
// runtime up, releases the registry mutex and then takes the runtime's own
// mutex for the duration of the callback, so work on one instance never
// blocks another. Engine callbacks resolve their instance through
// [Registry.ByToken], which takes no lock at all.
//
// # Teardown
//
// [Runtime.Teardown] releases handles in the order the engine requires:
// agent client (disconnect, destroy), agent process, tasker, controller,
// resource. Teardown failures are logged and never returned.
package instance

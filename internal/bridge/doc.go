// Package bridge is the command surface over the engine. Every exported
// method of [Service] corresponds to one host command: it resolves the
// instance through the registry, performs its native calls under that
// instance's lock, and returns either a value or an error whose text is
// safe to hand back to the host.
//
// Post-style operations (connect, load, run, screencap) return the engine's
// request id immediately. Completion is observed by polling the matching
// query or by subscribing to [event.TypeCallback] on [Service.Bus].
//
// # Ownership
//
// A tasker is created lazily on the first task post, bound to the
// instance's current resource and controller. Replacing the controller or
// destroying the resource destroys that tasker, so the next post binds a
// fresh one.
package bridge

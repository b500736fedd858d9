// Package native binds the MaaFramework C ABI at runtime.
//
// The engine ships as three shared libraries (MaaFramework, MaaToolkit and
// MaaAgentClient). [Library.Load] opens all three from one directory and
// resolves every function the bridge uses into a private function table.
// Loading is atomic: if any library or symbol is missing, nothing is
// published and the previous table (if any) stays in effect.
//
// # Locking
//
// Each native invocation holds the table lock in shared mode for the
// duration of that single call. Replacing the table takes the lock
// exclusively, so a load never races an in-flight call. Event callbacks
// arrive on engine-owned threads and never touch the lock.
//
// # Handles
//
// [Resource], [Controller], [Tasker] and [AgentClient] are opaque native
// addresses. The zero value is the null handle. Callers never dereference
// them; they only pass them back into [Engine] methods.
//
// # Testing
//
// The [Engine] interface is the only surface the rest of the bridge uses.
// Package nativetest provides an in-memory implementation.
package native

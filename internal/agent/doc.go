// Package agent spawns and supervises external agent processes.
//
// An agent is a child program that connects back to the engine through an
// agent client. [Orchestrator.Start] creates the client, binds it to the
// instance's resource, reads the rendezvous identifier, launches the child
// with that identifier appended to its arguments and waits for the client
// to connect.
//
// Child stdout and stderr are drained by two goroutines. Every line is
// decoded as UTF-8 (invalid bytes become U+FFFD), appended to the shared
// agent log file, mirrored to the application log and offered to the event
// relay as an [event.AgentOutputEvent]. Draining never blocks on the host.
package agent

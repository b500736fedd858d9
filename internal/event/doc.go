// Package event relays engine notifications and agent output to the host.
//
// Native callbacks arrive on threads owned by the engine. They must return
// quickly and must never take bridge locks, so they hand events to a [Relay]:
// a bounded queue whose Offer never blocks. A single dispatcher goroutine
// drains the queue into a synchronous [Bus], where host transports subscribe.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher; panicking handlers are recovered
//   - [Relay]: Bounded, non-blocking hand-off from foreign threads to the Bus
//
// # Event Types
//
//   - [CallbackEvent] ("maa.callback"): an engine notification for one instance
//   - [AgentOutputEvent] ("agent.output"): one line of agent stdout or stderr
//   - [InstanceCreatedEvent] ("instance.created")
//   - [InstanceDestroyedEvent] ("instance.destroyed")
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	relay := event.NewRelay(bus, 1024, logger)
//	relay.Start()
//	defer relay.Close()
//
//	bus.Subscribe(event.TypeCallback, func(e event.Event) {
//	    cb := e.(event.CallbackEvent)
//	    fmt.Println(cb.InstanceID, cb.Message)
//	})
//
//	relay.Offer(event.NewCallbackEvent("main", "Tasker.Task.Succeeded", "{}"))
//
// When the queue is full, Offer drops the event and increments [Relay.Dropped].
package event

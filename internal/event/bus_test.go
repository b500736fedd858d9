package event

import (
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe(TypeCallback, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("Expected 1 subscription, got %d", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_SubscriptionIDsAreUnique(t *testing.T) {
	bus := NewBus(nil)
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := bus.Subscribe("x", func(Event) {})
		if seen[id] {
			t.Fatalf("duplicate subscription id %q", id)
		}
		seen[id] = true
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeCallback, func(e Event) {
		received = e
	})

	bus.Publish(NewCallbackEvent("main", "Tasker.Task.Starting", `{"task_id":1}`))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	cb, ok := received.(CallbackEvent)
	if !ok {
		t.Fatalf("received %T, want CallbackEvent", received)
	}
	if cb.InstanceID != "main" || cb.Message != "Tasker.Task.Starting" || cb.Details != `{"task_id":1}` {
		t.Errorf("unexpected event: %+v", cb)
	}
	if cb.Timestamp().IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestBus_OnlyMatchingTypeReceives(t *testing.T) {
	bus := NewBus(nil)

	var callbacks, outputs int
	bus.Subscribe(TypeCallback, func(Event) { callbacks++ })
	bus.Subscribe(TypeAgentOutput, func(Event) { outputs++ })

	bus.Publish(NewAgentOutputEvent("main", StreamStdout, "hello"))

	if callbacks != 0 || outputs != 1 {
		t.Errorf("callbacks=%d outputs=%d, want 0 and 1", callbacks, outputs)
	}
}

func TestBus_WildcardAfterSpecific(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(Event) { order = append(order, "all") })
	bus.Subscribe(TypeInstanceCreated, func(Event) { order = append(order, "specific") })

	bus.Publish(NewInstanceCreatedEvent("a"))

	if len(order) != 2 || order[0] != "specific" || order[1] != "all" {
		t.Errorf("order = %v, want [specific all]", order)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(TypeInstanceDestroyed, func(Event) { calls++ })
	keep := bus.Subscribe(TypeInstanceDestroyed, func(Event) { calls += 10 })

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe should return true for an existing subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false the second time")
	}

	bus.Publish(NewInstanceDestroyedEvent("a"))
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
	if !bus.Unsubscribe(keep) {
		t.Error("remaining subscription should still be removable")
	}
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(nil)

	delivered := false
	bus.Subscribe(TypeCallback, func(Event) { panic("boom") })
	bus.Subscribe(TypeCallback, func(Event) { delivered = true })

	bus.Publish(NewCallbackEvent("a", "m", "{}"))

	if !delivered {
		t.Error("second handler should still be called")
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe("a", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Clear", bus.SubscriptionCount())
	}
}

func TestBus_ConcurrentPublishSubscribe(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	count := 0
	bus.SubscribeAll(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(NewCallbackEvent("x", "m", "{}"))
			}
		}()
		go func() {
			defer wg.Done()
			id := bus.Subscribe("other", func(Event) {})
			bus.Unsubscribe(id)
		}()
	}
	wg.Wait()

	if count != 500 {
		t.Errorf("count = %d, want 500", count)
	}
}

package events

import (
	"sync"
	"testing"
	"time"
)

func TestPublishDeliversToTypedSubscriber(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(1)

	var mu sync.Mutex
	var got Event
	bus.Subscribe(EventSignalGenerated, func(e Event) {
		mu.Lock()
		got = e
		mu.Unlock()
		wg.Done()
	})

	bus.PublishSignal("a3", "AAPL", "MA_GOLDEN_CROSS", "BUY", "ema9 crossed ema21", 187.32, 0.8)

	waitWithTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if got.Type != EventSignalGenerated {
		t.Errorf("expected SIGNAL_GENERATED, got %s", got.Type)
	}
	if got.Data["symbol"] != "AAPL" {
		t.Errorf("expected symbol AAPL, got %v", got.Data["symbol"])
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(2)

	var mu sync.Mutex
	seen := make(map[EventType]bool)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type] = true
		mu.Unlock()
		wg.Done()
	})

	bus.PublishOrderRejected("a2", "MSFT", "SELL", "no position, shorting disabled")
	bus.Publish(Event{Type: EventCycleCompleted})

	waitWithTimeout(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	if !seen[EventOrderRejected] || !seen[EventCycleCompleted] {
		t.Errorf("expected both event types delivered, got %v", seen)
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewEventBus()
	done := make(chan struct{})
	go func() {
		bus.PublishError("controller", "cycle failed", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func waitWithTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event delivery")
	}
}

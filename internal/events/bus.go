package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventEngineStarted     EventType = "ENGINE_STARTED"
	EventEngineStopped     EventType = "ENGINE_STOPPED"
	EventCycleStarted      EventType = "CYCLE_STARTED"
	EventCycleCompleted    EventType = "CYCLE_COMPLETED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventOrderSubmitted    EventType = "ORDER_SUBMITTED"
	EventOrderFilled       EventType = "ORDER_FILLED"
	EventOrderRejected     EventType = "ORDER_REJECTED"
	EventPositionsSynced   EventType = "POSITIONS_SYNCED"
	EventForcedLiquidation EventType = "FORCED_LIQUIDATION"
	EventStrategyToggled   EventType = "STRATEGY_TOGGLED"
	EventDegradedMode      EventType = "DEGRADED_MODE"
	EventRiskHalt          EventType = "RISK_HALT"
	EventError             EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	// Set timestamp if not provided
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Notify specific subscribers
	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	// Notify all-event subscribers
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(strategyID, symbol, signalType, action, reason string, price float64, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"strategy":    strategyID,
			"symbol":      symbol,
			"signal_type": signalType,
			"action":      action,
			"reason":      reason,
			"price":       price,
			"confidence":  confidence,
		},
	})
}

// PublishOrderSubmitted publishes an order submitted event
func (eb *EventBus) PublishOrderSubmitted(orderID, symbol, side, orderType, status string, price float64, quantity int) {
	eb.Publish(Event{
		Type: EventOrderSubmitted,
		Data: map[string]interface{}{
			"order_id":   orderID,
			"symbol":     symbol,
			"side":       side,
			"order_type": orderType,
			"status":     status,
			"price":      price,
			"quantity":   quantity,
		},
	})
}

// PublishOrderRejected publishes an order rejected event with the gate reason
func (eb *EventBus) PublishOrderRejected(strategyID, symbol, side, reason string) {
	eb.Publish(Event{
		Type: EventOrderRejected,
		Data: map[string]interface{}{
			"strategy": strategyID,
			"symbol":   symbol,
			"side":     side,
			"reason":   reason,
		},
	})
}

// PublishPositionsSynced publishes a reconciliation event
func (eb *EventBus) PublishPositionsSynced(strategyID string, positionCount int, equity float64) {
	eb.Publish(Event{
		Type: EventPositionsSynced,
		Data: map[string]interface{}{
			"strategy":  strategyID,
			"positions": positionCount,
			"equity":    equity,
		},
	})
}

// PublishCycleCompleted publishes a cycle summary event
func (eb *EventBus) PublishCycleCompleted(cycle int64, symbols, signals, orders int, elapsed time.Duration) {
	eb.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle":      cycle,
			"symbols":    symbols,
			"signals":    signals,
			"orders":     orders,
			"elapsed_ms": elapsed.Milliseconds(),
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const streamReconnectDelay = 5 * time.Second

// OrderStream subscribes to the gateway's order status WebSocket so fills
// that land after the synchronous acknowledgement still reach the engine.
// It reconnects on its own until Stop is called.
type OrderStream struct {
	mu sync.RWMutex

	url       string
	conn      *websocket.Conn
	isRunning bool
	stopChan  chan struct{}

	onOrderEvent func(OrderEvent)

	// Last event seen per gateway order ID.
	orders     map[int64]OrderEvent
	reconnects int

	logger zerolog.Logger
}

// NewOrderStream builds a stream client for the gateway at host:port.
func NewOrderStream(host string, port, clientID int, logger zerolog.Logger) *OrderStream {
	return &OrderStream{
		url:    fmt.Sprintf("ws://%s:%d/v1/stream?client_id=%d", host, port, clientID),
		orders: make(map[int64]OrderEvent),
		logger: logger.With().Str("component", "order-stream").Logger(),
	}
}

// SetOrderEventCallback registers the handler invoked for every decoded
// order event. Set it before Start.
func (s *OrderStream) SetOrderEventCallback(cb func(OrderEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOrderEvent = cb
}

// Start launches the connect/read loop. Calling it while running is a no-op.
func (s *OrderStream) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	go s.connectLoop()
}

// Stop shuts down the stream and closes the connection.
func (s *OrderStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.isRunning = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.logger.Info().Msg("Order stream stopped")
}

// IsRunning reports whether the stream loop is active.
func (s *OrderStream) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastEvent returns the most recent event seen for an order ID.
func (s *OrderStream) LastEvent(orderID int64) (OrderEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.orders[orderID]
	return ev, ok
}

func (s *OrderStream) connectLoop() {
	for {
		s.mu.RLock()
		running := s.isRunning
		stop := s.stopChan
		s.mu.RUnlock()
		if !running {
			return
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.mu.Lock()
			s.reconnects++
			n := s.reconnects
			s.mu.Unlock()
			s.logger.Warn().Err(err).Int("reconnects", n).Msg("Order stream dial failed")
			select {
			case <-stop:
				return
			case <-time.After(streamReconnectDelay):
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.reconnects = 0
		s.mu.Unlock()
		s.logger.Info().Msg("Order stream connected")

		s.readLoop(conn)

		s.mu.RLock()
		running = s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}
		s.logger.Warn().Msg("Order stream disconnected, reconnecting")
		select {
		case <-stop:
			return
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (s *OrderStream) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev OrderEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			s.logger.Warn().Err(err).Msg("Order stream message not decodable")
			continue
		}
		if ev.Type != "order_status" {
			continue
		}

		s.mu.Lock()
		s.orders[ev.OrderID] = ev
		cb := s.onOrderEvent
		s.mu.Unlock()

		if cb != nil {
			cb(ev)
		}
	}
}

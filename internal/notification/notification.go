// Package notification pushes trade and engine events to Telegram and
// Discord. Delivery is best-effort: failures are logged and never block
// the trading loop.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
	"stock-trading-engine/internal/events"
	"stock-trading-engine/internal/journal"
)

// Kind classifies a notification for provider-side formatting.
type Kind string

const (
	KindFill        Kind = "fill"
	KindLiquidation Kind = "liquidation"
	KindRiskHalt    Kind = "risk_halt"
	KindDegraded    Kind = "degraded"
	KindError       Kind = "error"
)

// Message is one outbound notification.
type Message struct {
	Kind      Kind
	Title     string
	Body      string
	Timestamp time.Time
}

// Sender delivers a message through one provider.
type Sender interface {
	Name() string
	Send(msg Message) error
}

// ===== MANAGER =====

// Manager fans messages out to the configured providers.
type Manager struct {
	senders []Sender
	enabled bool
	logger  zerolog.Logger
}

// New builds a manager with every provider the config enables. With
// notifications disabled (or no provider configured) every send is a no-op.
func New(cfg config.NotificationConfig, logger zerolog.Logger) *Manager {
	m := &Manager{
		enabled: cfg.Enabled,
		logger:  logger.With().Str("component", "notification").Logger(),
	}
	if t := newTelegramSender(cfg.Telegram); t != nil {
		m.senders = append(m.senders, t)
	}
	if d := newDiscordSender(cfg.Discord); d != nil {
		m.senders = append(m.senders, d)
	}
	if m.enabled && len(m.senders) == 0 {
		m.logger.Warn().Msg("Notifications enabled but no provider configured")
	}
	return m
}

// Enabled reports whether sends will reach at least one provider.
func (m *Manager) Enabled() bool {
	return m.enabled && len(m.senders) > 0
}

// Send pushes a message to every provider, logging failures.
func (m *Manager) Send(msg Message) {
	if !m.Enabled() {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	for _, s := range m.senders {
		if err := s.Send(msg); err != nil {
			m.logger.Warn().Err(err).Str("provider", s.Name()).Str("kind", string(msg.Kind)).
				Msg("Notification delivery failed")
		}
	}
}

// NotifyFill reports an executed order.
func (m *Manager) NotifyFill(strategy, symbol, action string, qty int, price float64, simulated bool) {
	tag := ""
	if simulated {
		tag = " [SIM]"
	}
	m.Send(Message{
		Kind:  KindFill,
		Title: fmt.Sprintf("Fill%s: %s %s", tag, action, symbol),
		Body:  fmt.Sprintf("%s %d %s @ %.2f (%s)", action, qty, symbol, price, strategy),
	})
}

// NotifyLiquidation reports a forced flatten of the book.
func (m *Manager) NotifyLiquidation(strategy string, count int, reason string) {
	m.Send(Message{
		Kind:  KindLiquidation,
		Title: "Forced liquidation",
		Body:  fmt.Sprintf("%d position(s) closed by %s: %s", count, strategy, reason),
	})
}

// NotifyRiskHalt reports the daily risk halt tripping.
func (m *Manager) NotifyRiskHalt(reason string) {
	m.Send(Message{
		Kind:  KindRiskHalt,
		Title: "Risk halt",
		Body:  reason,
	})
}

// NotifyDegraded reports the broker falling back to simulation mode.
func (m *Manager) NotifyDegraded(strategy, detail string) {
	m.Send(Message{
		Kind:  KindDegraded,
		Title: "Degraded mode",
		Body:  fmt.Sprintf("strategy %s: broker unreachable, simulating (%s)", strategy, detail),
	})
}

// AttachBus subscribes the manager to the engine events worth pushing:
// executed fills, forced liquidations, risk halts, and degraded mode.
func (m *Manager) AttachBus(bus *events.EventBus) {
	if bus == nil || !m.Enabled() {
		return
	}
	bus.Subscribe(events.EventOrderSubmitted, func(ev events.Event) {
		if str(ev.Data["status"]) != journal.StatusExecuted {
			return
		}
		qty, _ := ev.Data["quantity"].(int)
		price, _ := ev.Data["price"].(float64)
		m.NotifyFill(str(ev.Data["order_id"]), str(ev.Data["symbol"]), str(ev.Data["side"]), qty, price, false)
	})
	bus.Subscribe(events.EventForcedLiquidation, func(ev events.Event) {
		count, _ := ev.Data["count"].(int)
		m.NotifyLiquidation(str(ev.Data["strategy"]), count, str(ev.Data["reason"]))
	})
	bus.Subscribe(events.EventRiskHalt, func(ev events.Event) {
		m.NotifyRiskHalt(str(ev.Data["reason"]))
	})
	bus.Subscribe(events.EventDegradedMode, func(ev events.Event) {
		m.NotifyDegraded(str(ev.Data["strategy"]), str(ev.Data["error"]))
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

// ===== TELEGRAM =====

type telegramSender struct {
	endpoint string // full sendMessage URL, overridable in tests
	chatID   string
	client   *http.Client
}

func newTelegramSender(cfg config.TelegramConfig) *telegramSender {
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == "" {
		return nil
	}
	return &telegramSender{
		endpoint: fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.BotToken),
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *telegramSender) Name() string { return "telegram" }

func (t *telegramSender) Send(msg Message) error {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       fmt.Sprintf("*%s*\n%s", msg.Title, msg.Body),
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram payload: %w", err)
	}
	resp, err := t.client.Post(t.endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send: status %d", resp.StatusCode)
	}
	return nil
}

// ===== DISCORD =====

type discordSender struct {
	webhookURL string
	client     *http.Client
}

func newDiscordSender(cfg config.DiscordConfig) *discordSender {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return nil
	}
	return &discordSender{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (d *discordSender) Name() string { return "discord" }

func (d *discordSender) Send(msg Message) error {
	payload, err := json.Marshal(map[string]interface{}{
		"content": fmt.Sprintf("**%s**\n%s", msg.Title, msg.Body),
	})
	if err != nil {
		return fmt.Errorf("discord payload: %w", err)
	}
	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord send: status %d", resp.StatusCode)
	}
	return nil
}

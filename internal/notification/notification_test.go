package notification

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
)

type capture struct {
	mu     sync.Mutex
	bodies []map[string]interface{}
}

func (c *capture) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]interface{}
		_ = json.Unmarshal(raw, &body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func TestDiscordWebhookPayload(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusNoContent))
	defer srv.Close()

	m := New(config.NotificationConfig{
		Enabled: true,
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: srv.URL},
	}, zerolog.Nop())
	if !m.Enabled() {
		t.Fatal("manager disabled with a configured provider")
	}

	m.NotifyFill("a3", "AAPL", "BUY", 5, 187.50, false)
	if c.count() != 1 {
		t.Fatalf("webhook received %d posts, want 1", c.count())
	}
	content, _ := c.bodies[0]["content"].(string)
	for _, want := range []string{"AAPL", "BUY", "187.50", "a3"} {
		if !strings.Contains(content, want) {
			t.Errorf("payload %q missing %q", content, want)
		}
	}
}

func TestTelegramPayloadShape(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusOK))
	defer srv.Close()

	m := New(config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "42"},
	}, zerolog.Nop())
	// Point the provider at the test server instead of api.telegram.org.
	m.senders[0].(*telegramSender).endpoint = srv.URL

	m.NotifyRiskHalt("daily loss 3.50% breached the 3.00% limit")
	if c.count() != 1 {
		t.Fatalf("telegram received %d posts, want 1", c.count())
	}
	if got, _ := c.bodies[0]["chat_id"].(string); got != "42" {
		t.Errorf("chat_id = %q, want 42", got)
	}
	text, _ := c.bodies[0]["text"].(string)
	if !strings.Contains(text, "Risk halt") || !strings.Contains(text, "3.50%") {
		t.Errorf("text = %q, want the halt reason", text)
	}
}

func TestDisabledManagerSendsNothing(t *testing.T) {
	var c capture
	srv := httptest.NewServer(c.handler(http.StatusNoContent))
	defer srv.Close()

	m := New(config.NotificationConfig{
		Enabled: false,
		Discord: config.DiscordConfig{Enabled: true, WebhookURL: srv.URL},
	}, zerolog.Nop())

	m.NotifyFill("a1", "AAPL", "BUY", 1, 10, false)
	m.NotifyLiquidation("a1", 2, "scheduled close")
	if c.count() != 0 {
		t.Errorf("disabled manager delivered %d messages", c.count())
	}
}

func TestFanOutSurvivesFailingProvider(t *testing.T) {
	var good, bad capture
	goodSrv := httptest.NewServer(good.handler(http.StatusNoContent))
	defer goodSrv.Close()
	badSrv := httptest.NewServer(bad.handler(http.StatusInternalServerError))
	defer badSrv.Close()

	m := New(config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "1"},
		Discord:  config.DiscordConfig{Enabled: true, WebhookURL: goodSrv.URL},
	}, zerolog.Nop())
	m.senders[0].(*telegramSender).endpoint = badSrv.URL

	m.NotifyDegraded("a2", "connection refused")
	if bad.count() != 1 {
		t.Errorf("failing provider hit %d times, want 1", bad.count())
	}
	if good.count() != 1 {
		t.Errorf("healthy provider delivered %d, want 1 despite the failure", good.count())
	}
}

func TestProviderGatedByCredentials(t *testing.T) {
	m := New(config.NotificationConfig{
		Enabled:  true,
		Telegram: config.TelegramConfig{Enabled: true}, // no token/chat
		Discord:  config.DiscordConfig{Enabled: true},  // no webhook
	}, zerolog.Nop())
	if len(m.senders) != 0 {
		t.Errorf("built %d providers without credentials", len(m.senders))
	}
	if m.Enabled() {
		t.Error("manager enabled with no usable provider")
	}
}

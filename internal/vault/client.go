// Package vault pulls engine credentials out of a HashiCorp Vault KV v2
// mount so secrets stay out of .env files in production. Everything read
// once at startup is overlaid onto the runtime config; a disabled client
// is a no-op so local runs work without a Vault server.
package vault

import (
	"context"
	"fmt"
	"sync"

	"stock-trading-engine/config"

	"github.com/hashicorp/vault/api"
)

// Secret field names inside the KV entry. A single KV v2 document at
// {mount}/data/{secret_path} carries every credential the engine needs.
const (
	fieldAlphaVantageKey = "alphavantage_api_key"
	fieldNewsAPIKey      = "newsapi_api_key"
	fieldPolygonKey      = "polygon_api_key"
	fieldTelegramToken   = "telegram_bot_token"
	fieldDiscordWebhook  = "discord_webhook_url"
	fieldJWTSecret       = "jwt_secret"
	fieldPasswordHash    = "api_password_hash"
	fieldDatabaseURL     = "database_url"
	fieldRedisPassword   = "redis_password"
)

// Credentials is the decoded secret document.
type Credentials struct {
	AlphaVantageAPIKey string
	NewsAPIKey         string
	PolygonAPIKey      string
	TelegramBotToken   string
	DiscordWebhookURL  string
	JWTSecret          string
	APIPasswordHash    string
	DatabaseURL        string
	RedisPassword      string
}

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a new Vault client. A disabled config yields a client
// whose reads return empty credentials.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client: client,
		config: cfg,
	}, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Load reads the credential document from the KV v2 mount. The result is
// cached; subsequent calls return the cached copy.
func (c *Client) Load(ctx context.Context) (*Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return &Credentials{}, nil
	}

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials at %s", path)
	}

	// KV v2 nests the payload under a "data" key.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	creds := &Credentials{
		AlphaVantageAPIKey: getString(data, fieldAlphaVantageKey),
		NewsAPIKey:         getString(data, fieldNewsAPIKey),
		PolygonAPIKey:      getString(data, fieldPolygonKey),
		TelegramBotToken:   getString(data, fieldTelegramToken),
		DiscordWebhookURL:  getString(data, fieldDiscordWebhook),
		JWTSecret:          getString(data, fieldJWTSecret),
		APIPasswordHash:    getString(data, fieldPasswordHash),
		DatabaseURL:        getString(data, fieldDatabaseURL),
		RedisPassword:      getString(data, fieldRedisPassword),
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	return creds, nil
}

// Overlay copies every non-empty credential onto the runtime config, so
// Vault values win over .env values without erasing local fallbacks.
func (creds *Credentials) Overlay(cfg *config.Config) {
	if creds.AlphaVantageAPIKey != "" {
		cfg.NewsConfig.AlphaVantageAPIKey = creds.AlphaVantageAPIKey
	}
	if creds.NewsAPIKey != "" {
		cfg.NewsConfig.NewsAPIKey = creds.NewsAPIKey
	}
	if creds.PolygonAPIKey != "" {
		cfg.NewsConfig.PolygonAPIKey = creds.PolygonAPIKey
	}
	if creds.TelegramBotToken != "" {
		cfg.NotificationConfig.Telegram.BotToken = creds.TelegramBotToken
	}
	if creds.DiscordWebhookURL != "" {
		cfg.NotificationConfig.Discord.WebhookURL = creds.DiscordWebhookURL
	}
	if creds.JWTSecret != "" {
		cfg.AuthConfig.JWTSecret = creds.JWTSecret
	}
	if creds.APIPasswordHash != "" {
		cfg.AuthConfig.PasswordHash = creds.APIPasswordHash
	}
	if creds.DatabaseURL != "" {
		cfg.DatabaseConfig.URL = creds.DatabaseURL
	}
	if creds.RedisPassword != "" {
		cfg.RedisConfig.Password = creds.RedisPassword
	}
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

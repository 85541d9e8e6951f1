// Package news fetches recent ticker headlines with sentiment and relevance
// scores from one of the supported providers. The service layer enforces a
// one-second floor between calls per provider, cuts stale items, and folds
// item scores into a single impact number for the news strategy.
package news

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stock-trading-engine/config"
)

// Provider names form a closed set. Anything unrecognized falls back to
// alpha vantage, and the fallback is logged rather than silent.
const (
	ProviderAlphaVantage = "alphavantage"
	ProviderNewsAPI      = "newsapi"
	ProviderPolygon      = "polygon"
)

// ErrNoAPIKey means the selected provider has no credential configured.
var ErrNoAPIKey = fmt.Errorf("news: provider API key not configured")

// Item is one scored headline.
type Item struct {
	Title            string    `json:"title"`
	PublishedAt      time.Time `json:"published_at"`
	SentimentScore   float64   `json:"sentiment_score"` // [-1, 1]
	RelevanceScore   float64   `json:"relevance_score"` // [0, 1]
	OverallSentiment string    `json:"overall_sentiment,omitempty"`
}

// Provider fetches raw items for a ticker since a timestamp.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, since time.Time) ([]Item, error)
}

// ===== RATE LIMITER =====

// paceLimiter spaces calls at least minInterval apart. One exists per
// provider; concurrent callers serialize through it.
type paceLimiter struct {
	mu          sync.Mutex
	last        time.Time
	minInterval time.Duration
}

func (p *paceLimiter) wait(ctx context.Context) error {
	p.mu.Lock()
	slot := p.last.Add(p.minInterval)
	if now := time.Now(); slot.Before(now) {
		slot = now
	}
	p.last = slot
	p.mu.Unlock()

	sleep := time.Until(slot)
	if sleep <= 0 {
		return nil
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ===== SERVICE =====

// Service wraps a provider with pacing, the staleness cut, and the
// relevance floor. Fetch errors are swallowed into empty results; the news
// strategy just sees no news.
type Service struct {
	provider     Provider
	limiter      *paceLimiter
	maxAge       time.Duration
	minRelevance float64
	logger       zerolog.Logger
}

// NewService dispatches on the configured provider name. The default is
// alpha vantage, explicitly, including for unknown names.
func NewService(cfg config.NewsConfig, logger zerolog.Logger) *Service {
	log := logger.With().Str("component", "news").Logger()

	var provider Provider
	switch cfg.APIProvider {
	case ProviderNewsAPI:
		provider = newNewsAPIProvider(cfg.NewsAPIKey)
	case ProviderPolygon:
		provider = newPolygonProvider(cfg.PolygonAPIKey)
	case ProviderAlphaVantage:
		provider = newAlphaVantageProvider(cfg.AlphaVantageAPIKey)
	default:
		log.Warn().Str("provider", cfg.APIProvider).Msg("Unknown news provider, using alphavantage")
		provider = newAlphaVantageProvider(cfg.AlphaVantageAPIKey)
	}

	maxAge := time.Duration(cfg.MaxNewsAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Service{
		provider:     provider,
		limiter:      &paceLimiter{minInterval: time.Second},
		maxAge:       maxAge,
		minRelevance: cfg.MinRelevance,
		logger:       log.With().Str("provider", provider.Name()).Logger(),
	}
}

// MaxAge returns the staleness window items must fall inside.
func (s *Service) MaxAge() time.Duration { return s.maxAge }

// Recent returns scored items for a symbol no older than the staleness
// window at the reference time, newest first not guaranteed. Transient
// failures return an empty slice.
func (s *Service) Recent(ctx context.Context, symbol string, now time.Time) []Item {
	if err := s.limiter.wait(ctx); err != nil {
		return nil
	}
	since := now.Add(-s.maxAge)
	items, err := s.provider.Fetch(ctx, symbol, since)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("News fetch failed")
		return nil
	}
	out := items[:0]
	for _, it := range items {
		if it.PublishedAt.Before(since) || it.PublishedAt.After(now.Add(time.Hour)) {
			continue
		}
		if it.RelevanceScore < s.minRelevance {
			continue
		}
		out = append(out, it)
	}
	s.logger.Debug().Str("symbol", symbol).Int("items", len(out)).Msg("News fetched")
	return out
}

// ImpactScore folds items into one signed number: sentiment weighted by
// relevance and by linear age decay inside the staleness window.
func (s *Service) ImpactScore(items []Item, now time.Time) float64 {
	if len(items) == 0 {
		return 0
	}
	total := 0.0
	for _, it := range items {
		age := now.Sub(it.PublishedAt)
		if age < 0 {
			age = 0
		}
		decay := 1 - float64(age)/float64(s.maxAge)
		if decay < 0 {
			continue
		}
		total += it.SentimentScore * it.RelevanceScore * decay
	}
	// Bound the magnitude so a burst of coverage saturates instead of
	// scaling without limit.
	return math.Tanh(total)
}

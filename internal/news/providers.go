package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const fetchTimeout = 10 * time.Second

// doGET fetches a URL and decodes the JSON body into out.
func doGET(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("news: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ===== ALPHA VANTAGE =====

type alphaVantageProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newAlphaVantageProvider(apiKey string) *alphaVantageProvider {
	return &alphaVantageProvider{
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co",
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

func (p *alphaVantageProvider) Name() string { return ProviderAlphaVantage }

// Fetch hits the NEWS_SENTIMENT endpoint. Per-ticker sentiment and
// relevance arrive as strings and are coerced; items without an entry for
// the requested ticker fall back to the overall sentiment at half
// relevance.
func (p *alphaVantageProvider) Fetch(ctx context.Context, symbol string, since time.Time) ([]Item, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	u := fmt.Sprintf("%s/query?function=NEWS_SENTIMENT&tickers=%s&time_from=%s&limit=50&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), since.UTC().Format("20060102T1504"), url.QueryEscape(p.apiKey))

	var payload struct {
		Feed []struct {
			Title                 string  `json:"title"`
			TimePublished         string  `json:"time_published"`
			OverallSentimentScore float64 `json:"overall_sentiment_score"`
			OverallSentimentLabel string  `json:"overall_sentiment_label"`
			TickerSentiment       []struct {
				Ticker         string `json:"ticker"`
				RelevanceScore string `json:"relevance_score"`
				SentimentScore string `json:"ticker_sentiment_score"`
			} `json:"ticker_sentiment"`
		} `json:"feed"`
		Note  string `json:"Note,omitempty"`
		Error string `json:"Error Message,omitempty"`
	}
	if err := doGET(ctx, p.client, u, &payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("news: alphavantage: %s", payload.Error)
	}
	if payload.Note != "" {
		return nil, fmt.Errorf("news: alphavantage rate limited: %s", payload.Note)
	}

	items := make([]Item, 0, len(payload.Feed))
	for _, f := range payload.Feed {
		published, err := time.Parse("20060102T150405", f.TimePublished)
		if err != nil {
			continue
		}
		item := Item{
			Title:            f.Title,
			PublishedAt:      published.UTC(),
			SentimentScore:   f.OverallSentimentScore,
			RelevanceScore:   0.5,
			OverallSentiment: f.OverallSentimentLabel,
		}
		for _, ts := range f.TickerSentiment {
			if !strings.EqualFold(ts.Ticker, symbol) {
				continue
			}
			if v, err := strconv.ParseFloat(ts.SentimentScore, 64); err == nil {
				item.SentimentScore = v
			}
			if v, err := strconv.ParseFloat(ts.RelevanceScore, 64); err == nil {
				item.RelevanceScore = v
			}
			break
		}
		items = append(items, item)
	}
	return items, nil
}

// ===== NEWSAPI =====

type newsAPIProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newNewsAPIProvider(apiKey string) *newsAPIProvider {
	return &newsAPIProvider{
		apiKey:  apiKey,
		baseURL: "https://newsapi.org",
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

func (p *newsAPIProvider) Name() string { return ProviderNewsAPI }

// Fetch queries the everything endpoint. NewsAPI carries no sentiment, so
// headlines are scored with the keyword lexicon; relevance is higher when
// the ticker appears in the title itself.
func (p *newsAPIProvider) Fetch(ctx context.Context, symbol string, since time.Time) ([]Item, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	u := fmt.Sprintf("%s/v2/everything?q=%s&from=%s&sortBy=publishedAt&pageSize=50&apiKey=%s",
		p.baseURL, url.QueryEscape(symbol), since.UTC().Format(time.RFC3339), url.QueryEscape(p.apiKey))

	var payload struct {
		Status   string `json:"status"`
		Message  string `json:"message,omitempty"`
		Articles []struct {
			Title       string    `json:"title"`
			PublishedAt time.Time `json:"publishedAt"`
		} `json:"articles"`
	}
	if err := doGET(ctx, p.client, u, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, fmt.Errorf("news: newsapi: %s", payload.Message)
	}

	items := make([]Item, 0, len(payload.Articles))
	for _, a := range payload.Articles {
		relevance := 0.4
		if strings.Contains(strings.ToUpper(a.Title), strings.ToUpper(symbol)) {
			relevance = 0.8
		}
		items = append(items, Item{
			Title:          a.Title,
			PublishedAt:    a.PublishedAt.UTC(),
			SentimentScore: lexiconSentiment(a.Title),
			RelevanceScore: relevance,
		})
	}
	return items, nil
}

// ===== POLYGON =====

type polygonProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func newPolygonProvider(apiKey string) *polygonProvider {
	return &polygonProvider{
		apiKey:  apiKey,
		baseURL: "https://api.polygon.io",
		client:  &http.Client{Timeout: fetchTimeout},
	}
}

func (p *polygonProvider) Name() string { return ProviderPolygon }

func (p *polygonProvider) Fetch(ctx context.Context, symbol string, since time.Time) ([]Item, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	u := fmt.Sprintf("%s/v2/reference/news?ticker=%s&published_utc.gte=%s&limit=50&apiKey=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(since.UTC().Format(time.RFC3339)), url.QueryEscape(p.apiKey))

	var payload struct {
		Results []struct {
			Title        string    `json:"title"`
			PublishedUTC time.Time `json:"published_utc"`
			Insights     []struct {
				Ticker    string `json:"ticker"`
				Sentiment string `json:"sentiment"`
			} `json:"insights"`
		} `json:"results"`
	}
	if err := doGET(ctx, p.client, u, &payload); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(payload.Results))
	for _, r := range payload.Results {
		item := Item{
			Title:          r.Title,
			PublishedAt:    r.PublishedUTC.UTC(),
			SentimentScore: lexiconSentiment(r.Title),
			RelevanceScore: 0.6,
		}
		for _, in := range r.Insights {
			if !strings.EqualFold(in.Ticker, symbol) {
				continue
			}
			item.OverallSentiment = in.Sentiment
			switch in.Sentiment {
			case "positive":
				item.SentimentScore = 0.5
			case "negative":
				item.SentimentScore = -0.5
			default:
				item.SentimentScore = 0
			}
			break
		}
		items = append(items, item)
	}
	return items, nil
}

// ===== LEXICON FALLBACK =====

var bullishWords = []string{
	"beat", "beats", "surge", "surges", "soar", "soars", "rally", "record",
	"upgrade", "upgraded", "outperform", "strong", "growth", "profit", "jump",
	"gain", "gains", "bullish", "buyback", "raises",
}

var bearishWords = []string{
	"miss", "misses", "plunge", "plunges", "fall", "falls", "drop", "drops",
	"downgrade", "downgraded", "underperform", "weak", "loss", "losses",
	"lawsuit", "probe", "recall", "bearish", "cuts", "warning", "bankruptcy",
}

// lexiconSentiment scores a headline in [-1,1] by counting directional
// keywords. Crude, deterministic, and only used when the provider carries
// no sentiment of its own.
func lexiconSentiment(title string) float64 {
	lower := strings.ToLower(title)
	score := 0.0
	for _, w := range bullishWords {
		if strings.Contains(lower, w) {
			score += 0.25
		}
	}
	for _, w := range bearishWords {
		if strings.Contains(lower, w) {
			score -= 0.25
		}
	}
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

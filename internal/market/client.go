// Package market fetches instruments and candle histories from the
// market-data vendor and syncs them into local storage.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
	"github.com/ajitpratap0/tradeconsensus/internal/metrics"
)

// Vendor circuit breaker settings
const (
	vendorMinRequests  = 5
	vendorFailureRatio = 0.6
	vendorOpenTimeout  = 30 * time.Second
)

// Client is the HTTP client for the market-data vendor. Requests are
// rate limited and guarded by a circuit breaker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewClient creates a vendor client from config
func NewClient(cfg config.MarketDataConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}

	log := config.NewLogger("market_client")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market_vendor",
		Timeout: vendorOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= vendorMinRequests && ratio >= vendorFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.GetTimeout()},
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		breaker: breaker,
		log:     log,
	}
}

type instrumentPayload struct {
	FIGI     string `json:"figi"`
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
	Lot      int    `json:"lot"`
}

type candlePayload struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

type candlesResponse struct {
	Candles []candlePayload `json:"candles"`
}

// GetInstrument resolves one ticker to its instrument record
func (c *Client) GetInstrument(ctx context.Context, ticker string) (*db.Instrument, error) {
	var payload instrumentPayload
	err := c.getJSON(ctx, "/instruments/"+url.PathEscape(ticker), nil, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch instrument %s: %w", ticker, err)
	}

	return &db.Instrument{
		FIGI:     payload.FIGI,
		Ticker:   payload.Ticker,
		Name:     payload.Name,
		Type:     payload.Type,
		Currency: payload.Currency,
		Lot:      payload.Lot,
		IsActive: true,
	}, nil
}

// GetCandles fetches candles for one instrument and interval in [from, to]
func (c *Client) GetCandles(ctx context.Context, figi string, interval db.CandleInterval, from, to time.Time) ([]*db.Candle, error) {
	query := url.Values{}
	query.Set("figi", figi)
	query.Set("interval", string(interval))
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))

	var payload candlesResponse
	if err := c.getJSON(ctx, "/candles", query, &payload); err != nil {
		return nil, fmt.Errorf("failed to fetch candles for %s: %w", figi, err)
	}

	candles := make([]*db.Candle, 0, len(payload.Candles))
	for _, p := range payload.Candles {
		candle := &db.Candle{
			InstrumentID: figi,
			Interval:     interval,
			Time:         p.Time.UTC(),
			Open:         p.Open,
			High:         p.High,
			Low:          p.Low,
			Close:        p.Close,
			Volume:       p.Volume,
		}
		if err := candle.Validate(); err != nil {
			c.log.Warn().Err(err).Str("figi", figi).Msg("Dropping malformed candle")
			continue
		}
		candles = append(candles, candle)
	}

	metrics.CandlesFetched.WithLabelValues("vendor").Add(float64(len(candles)))
	return candles, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("vendor returned status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	return err
}

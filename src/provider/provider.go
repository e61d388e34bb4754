package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"riskwatch/src/logger"
	"riskwatch/src/models"

	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Sentinel errors
// -----------------------------------------------------------------------------

var (
	// ErrRateLimited is returned when the provider explicitly signals quota
	// exhaustion. Callers treat it as a per-symbol failure, never a halt.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrBadMessage marks a stream payload that could not be decoded. The
	// session itself is still usable.
	ErrBadMessage = errors.New("undecodable provider message")
)

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client talks to the external market-data provider. Every REST lookup first
// waits on a limiter sized to the provider quota, so no caller can exceed the
// per-minute ceiling regardless of how requests are scheduled above it.
type Client struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// -----------------------------------------------------------------------------

func NewClient(cfg *models.MConfig, apiKey string, l *logger.Logger) *Client {
	window := time.Duration(cfg.Provider.WindowSeconds) * time.Second
	perRequest := window / time.Duration(cfg.Provider.RequestsPerWindow)

	return &Client{
		Config: cfg,
		Logger: l,
		apiKey: apiKey,
		http: &http.Client{
			Timeout: time.Duration(cfg.Provider.RequestTimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(perRequest), cfg.Provider.RequestsPerWindow),
	}
}

// -----------------------------------------------------------------------------
// REST price lookup
// -----------------------------------------------------------------------------

type priceResponse struct {
	Price   string `json:"price"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FetchPrice performs one single-symbol lookup against the /price endpoint.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	reqURL, err := url.Parse(c.Config.Provider.RestURL + "/price")
	if err != nil {
		return 0, fmt.Errorf("invalid provider rest url: %w", err)
	}
	q := reqURL.Query()
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price lookup for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var parsed priceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("undecodable price response for %s: %w", symbol, err)
	}

	// The provider reports quota exhaustion in-band with HTTP 200.
	if parsed.Code == http.StatusTooManyRequests {
		return 0, ErrRateLimited
	}
	if parsed.Code != 0 {
		return 0, fmt.Errorf("provider error %d for %s: %s", parsed.Code, symbol, parsed.Message)
	}

	price, err := strconv.ParseFloat(parsed.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("unparsable price %q for %s: %w", parsed.Price, symbol, err)
	}
	return price, nil
}

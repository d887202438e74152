// Package external implements domain.ProductDatabase over the public HTTP
// APIs of Open Food Facts and USDA FoodData Central.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/macrolens/productcheck/internal/domain"
)

// Client defaults
const (
	defaultUserAgent   = "ProductCheck/1.0"
	defaultHTTPTimeout = 10 * time.Second
	defaultMaxAttempts = 3
	defaultPageSize    = 10
)

// ClientConfig configures an external database client
type ClientConfig struct {
	BaseURL string
	APIKey  string
	// RatePerSecond and Burst shape the client-side request rate
	RatePerSecond float64
	Burst         int
	UserAgent     string
	HTTPTimeout   time.Duration
	MaxAttempts   int
	PageSize      int
	// VerifiedThreshold is the confidence at or above which a hit counts as verified
	VerifiedThreshold float64
}

// baseClient holds the HTTP plumbing shared by every database client:
// rate limiting, retries with exponential backoff and JSON decoding.
type baseClient struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	userAgent   string
	limiter     *rate.Limiter
	maxAttempts int
	pageSize    int
	backoff     func(attempt int) time.Duration
	logger      zerolog.Logger
}

func newBaseClient(cfg ClientConfig, defaultRate float64, defaultBurst int, logger zerolog.Logger) *baseClient {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = defaultRate
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &baseClient{
		httpClient:  &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		userAgent:   ua,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		maxAttempts: attempts,
		pageSize:    pageSize,
		backoff:     exponentialBackoff,
		logger:      logger,
	}
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// getJSON GETs path with params and decodes the body into out. Transport
// errors, 429 and 5xx responses are retried; 404 maps to
// domain.ErrProductNotFound. Context errors are returned unwrapped so the
// caller can tell a timeout from a failure.
func (c *baseClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rate limiter: %w", err)
		}

		body, status, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Str("path", path).Msg("request error")
			lastErr = err
			continue
		}

		switch {
		case status == http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%w: decode response: %v", domain.ErrSourceFailure, err)
			}
			return nil
		case status == http.StatusNotFound:
			return domain.ErrProductNotFound
		case status == http.StatusTooManyRequests || status >= 500:
			c.logger.Debug().Int("status", status).Int("attempt", attempt).Str("path", path).Msg("retryable response")
			lastErr = fmt.Errorf("%w: status %d", domain.ErrSourceFailure, status)
		default:
			return fmt.Errorf("%w: status %d: %s", domain.ErrSourceFailure, status, truncate(string(body), 200))
		}
	}
	return lastErr
}

func (c *baseClient) doRequest(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", domain.ErrSourceFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", domain.ErrSourceFailure, err)
	}
	return body, resp.StatusCode, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

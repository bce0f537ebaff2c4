package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker/v2"

	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
)

const (
	defaultBaseURL    = "https://api.tosspayments.example"
	defaultProvider   = "tosspayments"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
)

// HTTPClient talks to the payment provider's REST API. Transient failures
// are retried with jittered exponential backoff behind a circuit breaker so
// a provider outage fails fast instead of piling up blocked workers.
type HTTPClient struct {
	Provider   string
	BaseURL    string
	SecretKey  string
	MaxRetries int

	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// NewHTTPClientFromEnv builds the client from GATEWAY_* configuration.
func NewHTTPClientFromEnv() *HTTPClient {
	timeout := defaultTimeout
	if v, err := strconv.Atoi(env.GetEnv("GATEWAY_TIMEOUT_SECONDS", "")); err == nil && v > 0 {
		timeout = time.Duration(v) * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("[Gateway] circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &HTTPClient{
		Provider:   strings.TrimSpace(env.GetEnv("GATEWAY_PROVIDER", defaultProvider)),
		BaseURL:    strings.TrimRight(env.GetEnv("GATEWAY_BASE_URL", defaultBaseURL), "/"),
		SecretKey:  strings.TrimSpace(env.GetEnv("GATEWAY_SECRET_KEY", "")),
		MaxRetries: defaultMaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// CreateCheckoutSession opens a hosted checkout session for the given amount.
func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.postJSON(ctx, "/v1/checkout/sessions", req, &session); err != nil {
		return nil, err
	}
	if session.Provider == "" {
		session.Provider = c.Provider
	}
	return &session, nil
}

// Charge bills a stored payment method off-session for a renewal.
func (c *HTTPClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	var result ChargeResult
	if err := c.postJSON(ctx, "/v1/charges", req, &result); err != nil {
		return nil, err
	}
	if result.Provider == "" {
		result.Provider = c.Provider
	}
	return &result, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffDelay(attempt)):
			}
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
			if err != nil {
				return nil, err
			}
			httpReq.Header.Set("Content-Type", "application/json")
			httpReq.Header.Set("Authorization", "Bearer "+c.SecretKey)
			return c.httpClient.Do(httpReq)
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return json.Unmarshal(respBody, out)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("gateway returned %d: %s", resp.StatusCode, truncate(respBody, 200))
			continue
		default:
			// 4xx is not retryable; the request itself is wrong.
			return fmt.Errorf("gateway rejected request with %d: %s", resp.StatusCode, truncate(respBody, 200))
		}
	}
	return fmt.Errorf("gateway call %s failed after %d attempts: %w", path, c.MaxRetries+1, lastErr)
}

// backoffDelay grows exponentially from 250ms with up to 50% jitter.
func backoffDelay(attempt int) time.Duration {
	base := 250 * time.Millisecond << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

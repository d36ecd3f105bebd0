// Package external is the anti-corruption layer between Amberline and its
// delivery vendors. Outbound HTTP goes through BaseClient, which adds a
// circuit breaker, trace propagation, and error mapping. Delivery is
// single-attempt: BaseClient never retries.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"amberline/internal/types"
)

// BreakerSettings tunes the per-vendor circuit breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings trips after more than five consecutive 5xx/429
// responses or transport errors and retries one trial request after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BaseClient wraps an *http.Client with a circuit breaker. Vendor clients
// (SendGrid, Twilio) embed it.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
	// failureCode is the code used for transport-level failures, so callers
	// can tell an email vendor outage from an SMS vendor outage.
	failureCode types.ErrorCode
}

// NewBaseClient creates a BaseClient with its own named breaker.
func NewBaseClient(
	httpClient *http.Client,
	breakerName string,
	settings BreakerSettings,
	userAgent string,
	failureCode types.ErrorCode,
) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > settings.ConsecutiveFailures
		},
	})
	return NewBaseClientWithBreaker(httpClient, cb, userAgent, failureCode)
}

// NewBaseClientWithBreaker creates a BaseClient with a caller-provided breaker.
func NewBaseClientWithBreaker(
	httpClient *http.Client,
	breaker *gobreaker.CircuitBreaker[*http.Response],
	userAgent string,
	failureCode types.ErrorCode,
) *BaseClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if failureCode == "" {
		failureCode = types.ErrCodeUpstreamUnavailable
	}
	return &BaseClient{
		client:      httpClient,
		breaker:     breaker,
		userAgent:   userAgent,
		failureCode: failureCode,
	}
}

// Do sends req once. 5xx and 429 responses count as breaker failures and are
// returned as AppErrors with the body closed. Any other response, including
// 4xx, is returned to the caller, who must close the body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err == nil {
		return resp, nil
	}

	if resp != nil {
		resp.Body.Close()
	}
	return nil, c.mapError(resp, err)
}

func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			"circuit breaker is open; upstream service unavailable",
			err,
		)
	}

	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d", resp.StatusCode), err)
		}
	}

	return types.NewAppError(c.failureCode, "upstream request failed", err)
}

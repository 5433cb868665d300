package httpclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy defines retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	Jitter               float64 // fraction of the backoff, e.g. 0.25 for ±25%
	RetryableStatusCodes []int
}

// NewRetryPolicy creates the default policy: one attempt plus three retries
// waiting roughly 2s, 4s and 8s.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       4,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.25,
		RetryableStatusCodes: []int{
			408, // Request Timeout
			429, // Too Many Requests
			500, // Internal Server Error
			502, // Bad Gateway
			503, // Service Unavailable
			504, // Gateway Timeout
		},
	}
}

// ShouldRetry checks if an attempt should be retried based on attempt count, status code, and error type
func (p *RetryPolicy) ShouldRetry(attempt int, statusCode int, err error) bool {
	if attempt+1 >= p.MaxAttempts {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if statusCode > 0 {
		if p.isRetryableStatusCode(statusCode) {
			return true
		}
		if statusCode >= 400 && statusCode < 500 {
			return false // Client errors (except timeout/rate limit) are not retryable
		}
		if statusCode >= 500 {
			return true
		}
	}

	return isRetryableError(err)
}

// CalculateBackoff calculates the backoff before retry number attempt+1 (attempt is zero-based)
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	if p.Jitter > 0 {
		backoff += backoff * p.Jitter * (rand.Float64()*2 - 1)
	}

	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}

	return time.Duration(backoff)
}

// ExecuteWithRetry runs fn until it succeeds, fails permanently or attempts
// run out. fn reports the HTTP status it saw (0 if none) and an error; a nil
// error means success. The last status and error are returned.
func (p *RetryPolicy) ExecuteWithRetry(ctx context.Context, logger arbor.ILogger, operation string, fn func(ctx context.Context) (int, error)) (int, error) {
	var lastErr error
	var statusCode int

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		statusCode, lastErr = fn(ctx)
		if lastErr == nil {
			return statusCode, nil
		}

		if !p.ShouldRetry(attempt, statusCode, lastErr) {
			if attempt+1 < attempts {
				logger.Debug().
					Str("operation", operation).
					Int("attempt", attempt+1).
					Int("status_code", statusCode).
					Err(lastErr).
					Msg("Non-retryable error, failing immediately")
				return statusCode, lastErr
			}
			break
		}

		backoff := p.CalculateBackoff(attempt)
		logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Int("status_code", statusCode).
			Err(lastErr).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return statusCode, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn().
		Str("operation", operation).
		Int("max_attempts", attempts).
		Int("status_code", statusCode).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	return statusCode, lastErr
}

func (p *RetryPolicy) isRetryableStatusCode(statusCode int) bool {
	for _, code := range p.RetryableStatusCodes {
		if statusCode == code {
			return true
		}
	}
	return false
}

// isRetryableError checks if an error is retryable (timeouts, connection errors, transport failures)
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// http.Client wraps every transport failure in *url.Error
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

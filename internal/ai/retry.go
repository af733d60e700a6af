package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/retry"
)

var retriableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var overloadMarkers = []string{
	"overloaded",
	"rate limit",
	"resource exhausted",
	"resource_exhausted",
	"too many requests",
	"unavailable",
}

// IsRetriable reports whether err is a rate-limit or overload failure worth
// retrying. Other client errors are not.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retriableStatuses[apiErr.StatusCode]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range overloadMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

type retrying struct {
	next   Generator
	policy retry.Policy
	logger *zap.Logger
}

// WithRetry wraps gen so that transient failures are retried with exponential
// backoff. Exhausting the attempts yields models.ErrServiceBusy.
func WithRetry(gen Generator, attempts int, baseDelay time.Duration, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &retrying{next: gen, logger: logger}
	r.policy = retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   baseDelay,
		IsRetriable: IsRetriable,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.AIRetries.Inc()
			logger.Warn("Model call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		},
	}
	return r
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		out, err := r.next.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})

	switch {
	case err == nil:
		metrics.AICalls.WithLabelValues("ok").Inc()
		return text, nil
	case retry.IsExhausted(err):
		metrics.AICalls.WithLabelValues("busy").Inc()
		r.logger.Error("Model unavailable after retries", zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrServiceBusy, err)
	default:
		metrics.AICalls.WithLabelValues("error").Inc()
		return "", err
	}
}

package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds how a request is retried. Delays double from InitialInterval up to
// MaxInterval.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Retryable       func(error) bool
}

// QueryRetryPolicy retries reads up to 3 times, never on 403 or 404.
func QueryRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Retryable:       retryQuery,
	}
}

// MutationRetryPolicy retries writes up to 2 times, never on a 4xx.
func MutationRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      2,
		InitialInterval: time.Second,
		MaxInterval:     5 * time.Second,
		Retryable:       retryMutation,
	}
}

func retryQuery(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode != http.StatusForbidden && apiErr.StatusCode != http.StatusNotFound
	}

	return !isContextError(err)
}

func retryMutation(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < 400 || apiErr.StatusCode > 499
	}

	return !isContextError(err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

func (p RetryPolicy) do(ctx context.Context, logger *slog.Logger, op func() error) error {
	operation := func() error {
		err := op()
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	notify := func(err error, delay time.Duration) {
		logger.DebugContext(ctx, "Retrying request", "delay", delay, "error", err)
	}

	return backoff.RetryNotify(operation, p.backOff(ctx), notify)
}

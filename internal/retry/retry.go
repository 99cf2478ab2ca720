// Package retry runs an operation under a bounded retry policy with
// exponential backoff and a per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Policy holds retry configuration
type Policy struct {
	MaxRetries        int           // Maximum number of retries after the first attempt (default: 3)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 30s)
	BackoffMultiplier float64       // Backoff multiplier (default: 2.0)
	Timeout           time.Duration // Per-attempt timeout (default: 60s, 0 = none)
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Timeout:           60 * time.Second,
	}
}

// Validate checks that the policy is usable
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative (got %d)", p.MaxRetries)
	}
	if p.InitialBackoff < 0 {
		return fmt.Errorf("initial backoff must be non-negative (got %v)", p.InitialBackoff)
	}
	if p.MaxBackoff < p.InitialBackoff {
		return fmt.Errorf("max backoff (%v) must be >= initial backoff (%v)", p.MaxBackoff, p.InitialBackoff)
	}
	if p.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1 (got %v)", p.BackoffMultiplier)
	}
	if p.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative (got %v)", p.Timeout)
	}
	return nil
}

// Attempts is the maximum number of calls the policy allows
func (p Policy) Attempts() int {
	return p.MaxRetries + 1
}

// Backoff returns the wait after the given failed attempt (0-based)
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.BackoffMultiplier)
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it without retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type options struct {
	breaker   *CircuitBreaker
	retryable func(error) bool
}

// Option customizes a Do call
type Option func(*options)

// WithBreaker consults cb before every attempt and reports each result to it
func WithBreaker(cb *CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

// WithClassifier replaces the default classifier, which retries every error
// not marked Permanent
func WithClassifier(retryable func(error) bool) Option {
	return func(o *options) { o.retryable = retryable }
}

// Do calls fn until it succeeds, returns a non-retryable error, the policy
// is exhausted or ctx is done. Each attempt gets its own timeout, so a call
// that never responds counts as a failed attempt. It returns the number of
// attempts made and the last error.
func Do(ctx context.Context, p Policy, operation string, fn func(context.Context) error, opts ...Option) (int, error) {
	_, attempts, err := DoValue(ctx, p, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return attempts, err
}

// DoValue is Do for operations that produce a value. Only the value of the
// successful attempt is returned; a timed-out attempt that finishes late is
// discarded.
func DoValue[T any](ctx context.Context, p Policy, operation string, fn func(context.Context) (T, error), opts ...Option) (T, int, error) {
	o := options{retryable: func(err error) bool { return !IsPermanent(err) }}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				return zero, attempts, fmt.Errorf("%s failed: %w", operation, err)
			}
			return zero, attempts, fmt.Errorf("%s failed: context canceled: %w", operation, errors.Join(err, lastErr))
		}

		if o.breaker != nil {
			if err := o.breaker.Allow(); err != nil {
				state, failures, _ := o.breaker.Metrics()
				log.Printf("[RETRY] [WARN] %s blocked by circuit breaker (state=%s, failures=%d)", operation, state, failures)
				return zero, attempts, fmt.Errorf("%s failed: %w", operation, err)
			}
		}

		attempts++
		v, err := call(ctx, p.Timeout, fn)
		if err == nil {
			if o.breaker != nil {
				o.breaker.RecordSuccess()
			}
			if attempt > 0 {
				log.Printf("[RETRY] %s succeeded after %d retries", operation, attempt)
			}
			return v, attempts, nil
		}
		lastErr = err

		// a cancelled parent is shutdown, not a failure of the call
		if ctx.Err() != nil {
			return zero, attempts, fmt.Errorf("%s failed: context canceled: %w", operation, errors.Join(ctx.Err(), err))
		}

		retryable := o.retryable(err)
		if o.breaker != nil && retryable {
			o.breaker.RecordFailure()
		}
		if !retryable {
			log.Printf("[RETRY] %s failed with non-retriable error: %v", operation, err)
			return zero, attempts, err
		}
		if attempt == p.MaxRetries {
			break
		}

		backoff := p.Backoff(attempt)
		log.Printf("[RETRY] %s failed (attempt %d/%d), retrying in %v: %v",
			operation, attempt+1, p.Attempts(), backoff, err)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, attempts, fmt.Errorf("%s failed: context canceled during backoff: %w", operation, errors.Join(ctx.Err(), lastErr))
		}
	}

	return zero, attempts, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

type result[T any] struct {
	v   T
	err error
}

func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(attemptCtx)
		done <- result[T]{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-attemptCtx.Done():
		// fn ignored its context; abandon it and count the attempt as timed out
		var zero T
		return zero, fmt.Errorf("attempt timed out after %v: %w", timeout, attemptCtx.Err())
	}
}

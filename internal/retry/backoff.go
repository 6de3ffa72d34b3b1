// Package retry implements the classification-based retry engine (exponential
// backoff with a cap, plus an optional circuit breaker around the underlying
// call) used to shield embedding-provider calls from transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Options configures a call to Run.
type Options struct {
	// MaxRetries is the number of additional attempts after the first.
	// Default: 3.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 1000ms.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay. Default: 4000ms.
	MaxDelay time.Duration

	// Base is the exponential backoff multiplier. Default: 2.
	Base float64

	// ShouldRetry, when set, overrides the classification-based retry
	// decision. Returning false stops the retry loop immediately.
	ShouldRetry func(err error, attempt int, class Classification) bool

	// OnRetry, when set, is invoked before each sleep. A panic in this
	// callback is recovered and discarded; it never aborts the outer retry
	// loop.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultOptions returns the standard defaults: base=2, baseDelay=1s,
// maxDelay=4s, maxRetries=3.
func DefaultOptions() Options {
	return Options{
		MaxRetries: 3,
		BaseDelay:  1000 * time.Millisecond,
		MaxDelay:   4000 * time.Millisecond,
		Base:       2,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 && o.BaseDelay == 0 && o.MaxDelay == 0 && o.Base == 0 {
		return DefaultOptions()
	}
	if o.Base == 0 {
		o.Base = 2
	}
	if o.BaseDelay == 0 {
		o.BaseDelay = 1000 * time.Millisecond
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 4000 * time.Millisecond
	}
	return o
}

// Attempt is one entry in the attempt log returned on exhaustion/success.
type Attempt struct {
	Attempt             int
	Success             bool
	ErrorType           Classification
	ErrorMessage        string
	ClassificationReason string
	Timestamp           time.Time
}

// ExhaustedError is returned when all retries are exhausted, or immediately
// for a permanent error. RetriesExhausted is true only in the former case.
type ExhaustedError struct {
	AttemptLog       []Attempt
	RetriesExhausted bool
	IsPermanent      bool
	Cause            error
}

func (e *ExhaustedError) Error() string {
	if e.IsPermanent {
		return fmt.Sprintf("retry: permanent error, failing fast: %v", e.Cause)
	}
	return fmt.Sprintf("retry: retries exhausted after %d attempts: %v", len(e.AttemptLog), e.Cause)
}

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// Backoff computes min(baseDelay * base^attempt, maxDelay) for the given
// zero-indexed attempt number.
func Backoff(opts Options, attempt int) time.Duration {
	opts = opts.withDefaults()
	raw := float64(opts.BaseDelay) * math.Pow(opts.Base, float64(attempt))
	if raw > float64(opts.MaxDelay) {
		return opts.MaxDelay
	}
	return time.Duration(raw)
}

// Run executes fn, retrying on transient classification with exponential
// backoff up to opts.MaxRetries additional attempts. Permanent errors fail
// immediately without sleeping. Unknown-classified errors are not retried
// unless ShouldRetry overrides that decision.
func Run(ctx context.Context, fn func(ctx context.Context) (any, error), opts Options) (any, []Attempt, error) {
	opts = opts.withDefaults()
	var log []Attempt

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx)
		now := time.Now()

		if err == nil {
			log = append(log, Attempt{Attempt: attempt, Success: true, Timestamp: now})
			return result, log, nil
		}

		class, reason := Classify(err)
		log = append(log, Attempt{
			Attempt:              attempt,
			Success:              false,
			ErrorType:            class,
			ErrorMessage:         err.Error(),
			ClassificationReason: reason,
			Timestamp:            now,
		})

		retry := class == ClassificationTransient
		if opts.ShouldRetry != nil {
			retry = opts.ShouldRetry(err, attempt, class)
		}

		if class == ClassificationPermanent && opts.ShouldRetry == nil {
			return nil, log, &ExhaustedError{AttemptLog: log, IsPermanent: true, Cause: err}
		}

		if !retry || attempt >= opts.MaxRetries {
			return nil, log, &ExhaustedError{AttemptLog: log, RetriesExhausted: true, Cause: err}
		}

		delay := Backoff(opts, attempt)
		if opts.OnRetry != nil {
			safeOnRetry(opts.OnRetry, attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return nil, log, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// safeOnRetry recovers a panicking OnRetry callback so it can never abort
// the outer retry loop.
func safeOnRetry(fn func(int, error, time.Duration), attempt int, err error, delay time.Duration) {
	defer func() {
		_ = recover()
	}()
	fn(attempt, err, delay)
}

// IsPermanent reports whether err is an ExhaustedError carrying IsPermanent.
func IsPermanent(err error) bool {
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		return ee.IsPermanent
	}
	return false
}

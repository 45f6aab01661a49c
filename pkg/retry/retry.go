package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// Policy holds retry configuration. It is an immutable value; callers
// may override the executor's default per call.
type Policy struct {
	MaxAttempts    uint
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	RetryableKinds []domainErrors.Kind
}

// DefaultPolicy returns the default retry policy: 3 attempts, 1s base
// delay doubling up to a 10s ceiling, retrying only transient kinds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
		RetryableKinds: []domainErrors.Kind{
			domainErrors.KindDeadlock,
			domainErrors.KindTimeout,
			domainErrors.KindConnectionError,
		},
	}
}

func (p Policy) retryable(kind domainErrors.Kind) bool {
	for _, k := range p.RetryableKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// delay computes min(base * factor^(attempt-1), max) where n is the
// zero-based retry count retry-go hands the delay function.
func (p Policy) delay(n uint) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(n))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Executor re-invokes operations under a backoff policy, consulting the
// error classifier to retry only transient failures. It is the single
// component allowed to transform errors into their client shape, and the
// single place multi-attempt history is audited: one summary entry per
// call on eventual success after retries or on final failure, never one
// per attempt.
type Executor struct {
	policy  Policy
	sink    audit.Sink // best-effort summary writes
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewExecutor creates a retry executor. sink may be nil; it should be a
// best-effort sink since summary writes must never mask the operation's
// own outcome.
func NewExecutor(policy Policy, sink audit.Sink, logger zerolog.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{policy: policy, sink: sink, logger: logger, metrics: metrics}
}

// Do executes fn under the executor's default policy.
func (e *Executor) Do(ctx context.Context, d audit.Descriptor, fn func(ctx context.Context) error) error {
	return e.DoWithPolicy(ctx, d, e.policy, fn)
}

// DoWithPolicy executes fn under the given policy. Operations passed
// here must be idempotent-safe: a retried fn runs from scratch.
func (e *Executor) DoWithPolicy(ctx context.Context, d audit.Descriptor, p Policy, fn func(ctx context.Context) error) error {
	var (
		attempts uint
		lastRec  domainErrors.Record
	)

	err := retry.Do(
		func() error {
			attempts++
			err := fn(ctx)
			if err != nil {
				// Keep the most recent classification: later attempts
				// can reclassify and the final cause must surface.
				lastRec = domainErrors.Classify(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(p.MaxAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return p.retryable(domainErrors.Classify(err).Kind)
		}),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return p.delay(n)
		}),
		retry.OnRetry(func(n uint, err error) {
			rec := domainErrors.Classify(err)
			if e.metrics != nil {
				e.metrics.RetryAttemptsTotal.WithLabelValues(string(rec.Kind)).Inc()
			}
			e.logger.Warn().
				Err(err).
				Str("action", d.Action).
				Str("kind", string(rec.Kind)).
				Uint("attempt", n+1).
				Msg("transient failure, retrying")
		}),
	)

	if err == nil {
		if attempts > 1 {
			e.summarize(ctx, d, audit.OutcomeCompleted, attempts, lastRec)
		}
		if e.metrics != nil {
			e.metrics.RetryOutcomesTotal.WithLabelValues("success").Inc()
		}
		return nil
	}

	e.summarize(ctx, d, audit.OutcomeFailed, attempts, lastRec)
	if e.metrics != nil {
		e.metrics.RetryOutcomesTotal.WithLabelValues("failure").Inc()
	}
	return lastRec.DomainError()
}

func (e *Executor) summarize(ctx context.Context, d audit.Descriptor, outcome string, attempts uint, rec domainErrors.Record) {
	if e.sink == nil {
		return
	}
	detail := fmt.Sprintf("%s after %d attempt(s)", outcome, attempts)
	if outcome == audit.OutcomeFailed {
		detail = fmt.Sprintf("%s after %d attempt(s): %s (kind=%s retryable=%t)",
			outcome, attempts, rec.Message, rec.Kind, rec.Retryable)
	}
	entry := audit.NewEntry(d, outcome, detail)
	if err := e.sink.Write(ctx, entry); err != nil {
		e.logger.Error().Err(err).Str("action", d.Action).Msg("retry summary audit write failed")
	}
}

// DoValue executes fn under the executor's default policy and returns
// its result.
func DoValue[T any](ctx context.Context, e *Executor, d audit.Descriptor, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, d, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/observability"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Pool is the subset of *pgxpool.Pool the coordinator needs. Narrowed to
// an interface so tests can supply a fake.
type Pool interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Unit is a unit of work executed inside a coordinator transaction. The
// context it receives carries the transaction; repositories routed
// through ConnFromCtx join it automatically.
type Unit func(ctx context.Context) error

// RunOption configures a single coordinator run.
type RunOption func(*runConfig)

type runConfig struct {
	isolation IsolationLevel
}

// WithIsolation overrides the default read-committed isolation for one run.
func WithIsolation(l IsolationLevel) RunOption {
	return func(cfg *runConfig) { cfg.isolation = l }
}

// Coordinator opens, commits and rolls back database transactions around
// units of work, pairing every mutation with an audit record: a
// "completed" entry is written through the same transaction before commit
// so entry and mutation share fate, and a "failed" entry is written
// standalone (best-effort) after rollback.
type Coordinator struct {
	pool       Pool
	sink       audit.Sink // transactional, co-committed writes
	standalone audit.Sink // best-effort writes on the rollback path
	logger     zerolog.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

// NewCoordinator creates a transaction coordinator. sink receives
// co-committed entries and must fail the transaction when it cannot
// write; standalone receives rollback-path entries and should be a
// best-effort sink (see audit.FallbackSink). Either may be nil.
func NewCoordinator(pool Pool, sink, standalone audit.Sink, logger zerolog.Logger, metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		pool:       pool,
		sink:       sink,
		standalone: standalone,
		logger:     logger,
		metrics:    metrics,
		tracer:     otel.Tracer("bookcatalog/txn"),
	}
}

// Run executes unit inside a transaction at the configured isolation.
// On success the transaction commits and the audit "completed" entry is
// co-committed with it. On failure the transaction rolls back and the
// unit's error propagates unchanged.
func (c *Coordinator) Run(ctx context.Context, d audit.Descriptor, unit Unit, opts ...RunOption) error {
	return c.run(ctx, d, unit, nil, opts...)
}

// RunSequential executes units strictly in order inside one transaction.
// The first failure stops the sequence and rolls back everything already
// done; atomicity spans the whole sequence.
func (c *Coordinator) RunSequential(ctx context.Context, d audit.Descriptor, units []Unit, opts ...RunOption) error {
	return c.Run(ctx, d, func(txCtx context.Context) error {
		for i, unit := range units {
			if err := unit(txCtx); err != nil {
				return fmt.Errorf("unit %d: %w", i, err)
			}
		}
		return nil
	}, opts...)
}

// RunParallel executes units concurrently against one transaction. This
// is a convenience for independent sub-statements, not a throughput
// primitive: the shared transaction serializes statement issuance
// internally. If any unit fails the whole transaction rolls back and the
// first error is surfaced.
func (c *Coordinator) RunParallel(ctx context.Context, d audit.Descriptor, units []Unit, opts ...RunOption) error {
	return c.Run(ctx, d, func(txCtx context.Context) error {
		g, gCtx := errgroup.WithContext(txCtx)
		for _, unit := range units {
			unit := unit
			g.Go(func() error { return unit(gCtx) })
		}
		return g.Wait()
	}, opts...)
}

// RunWithSavepoint runs unit under a named savepoint inside an
// already-open transaction. On success the savepoint is released; on
// failure the transaction rolls back to it and stays open, so the caller
// can continue or resolve the parent as it sees fit. Savepoint names must
// be unique within a transaction.
func (c *Coordinator) RunWithSavepoint(ctx context.Context, name string, unit Unit) error {
	state, ok := txFromCtx(ctx)
	if !ok {
		return domainErrors.ErrNoTransaction
	}

	state.mu.Lock()
	if _, used := state.savepoints[name]; used {
		state.mu.Unlock()
		return fmt.Errorf("%w: %q", domainErrors.ErrSavepointReused, name)
	}
	state.savepoints[name] = struct{}{}
	state.mu.Unlock()

	sp := pgx.Identifier{name}.Sanitize()
	db := &lockedTx{state: state}

	if _, err := db.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("create savepoint %q: %w", name, err)
	}

	if err := unit(ctx); err != nil {
		if _, rbErr := db.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			c.logger.Error().Err(rbErr).Str("savepoint", name).Msg("rollback to savepoint failed")
		}
		if c.metrics != nil {
			c.metrics.SavepointsTotal.WithLabelValues("rolled_back").Inc()
		}
		return err
	}

	if _, err := db.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("release savepoint %q: %w", name, err)
	}
	if c.metrics != nil {
		c.metrics.SavepointsTotal.WithLabelValues("released").Inc()
	}
	return nil
}

// RunWithTimeout bounds a run with a deadline pushed into the driver:
// the context deadline cancels in-flight statements client-side and a
// SET LOCAL statement_timeout cancels them server-side, so the
// transaction is rolled back rather than abandoned when time runs out.
func (c *Coordinator) RunWithTimeout(ctx context.Context, d audit.Descriptor, timeout time.Duration, unit Unit, opts ...RunOption) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	setup := func(txCtx context.Context) error {
		db := &lockedTx{state: mustTxFromCtx(txCtx)}
		_, err := db.Exec(txCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds()))
		if err != nil {
			return fmt.Errorf("set statement timeout: %w", err)
		}
		return nil
	}

	err := c.run(ctx, d, unit, setup, opts...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %v", domainErrors.ErrTransactionTimeout, timeout, err)
	}
	return err
}

func (c *Coordinator) run(ctx context.Context, d audit.Descriptor, unit Unit, setup Unit, opts ...RunOption) error {
	cfg := runConfig{isolation: ReadCommitted}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := c.tracer.Start(ctx, "tx.run",
		trace.WithAttributes(
			attribute.String("tx.action", d.Action),
			attribute.String("tx.isolation", string(cfg.isolation)),
		))
	defer span.End()

	start := time.Now()

	tx, err := c.pool.BeginTx(ctx, cfg.isolation.txOptions())
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	state := &txState{tx: tx, savepoints: make(map[string]struct{})}
	txCtx := withTx(ctx, state)

	if setup != nil {
		if err := setup(txCtx); err != nil {
			c.resolve(ctx, state, d, err, start)
			return err
		}
	}

	if err := unit(txCtx); err != nil {
		c.resolve(ctx, state, d, err, start)
		return err
	}

	if c.sink != nil {
		entry := audit.NewEntry(d, audit.OutcomeCompleted, "")
		if err := c.sink.Write(txCtx, entry); err != nil {
			err = fmt.Errorf("write audit entry: %w", err)
			c.resolve(ctx, state, d, err, start)
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		c.observe(d.Action, "rolled_back", start)
		return fmt.Errorf("commit tx: %w", err)
	}
	c.observe(d.Action, "committed", start)
	return nil
}

// resolve rolls the transaction back and records the failure. It uses a
// cancellation-free context so that rollback and the standalone audit
// write still go through when the caller's deadline has already fired.
func (c *Coordinator) resolve(ctx context.Context, state *txState, d audit.Descriptor, cause error, start time.Time) {
	cleanCtx := context.WithoutCancel(ctx)

	if rbErr := state.tx.Rollback(cleanCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		c.logger.Error().Err(rbErr).Str("action", d.Action).Msg("rollback failed")
	}
	c.observe(d.Action, "rolled_back", start)

	if c.standalone != nil {
		entry := audit.NewEntry(d, audit.OutcomeFailed, cause.Error())
		if err := c.standalone.Write(cleanCtx, entry); err != nil {
			c.logger.Error().Err(err).Str("action", d.Action).Msg("failure audit write failed")
		}
	}
}

func (c *Coordinator) observe(action, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.TransactionsTotal.WithLabelValues(action, outcome).Inc()
	c.metrics.TransactionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func mustTxFromCtx(ctx context.Context) *txState {
	state, ok := txFromCtx(ctx)
	if !ok {
		panic("postgres: context does not carry a transaction")
	}
	return state
}

// RunValue executes fn inside a transaction and returns its result.
func RunValue[T any](ctx context.Context, c *Coordinator, d audit.Descriptor, fn func(ctx context.Context) (T, error), opts ...RunOption) (T, error) {
	var result T
	err := c.Run(ctx, d, func(txCtx context.Context) error {
		var err error
		result, err = fn(txCtx)
		return err
	}, opts...)
	return result, err
}

// RunSequentialValues executes fns strictly in order inside one
// transaction and returns their results in input order.
func RunSequentialValues[T any](ctx context.Context, c *Coordinator, d audit.Descriptor, fns []func(ctx context.Context) (T, error), opts ...RunOption) ([]T, error) {
	results := make([]T, len(fns))
	units := make([]Unit, len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		units[i] = func(txCtx context.Context) error {
			var err error
			results[i], err = fn(txCtx)
			return err
		}
	}
	if err := c.RunSequential(ctx, d, units, opts...); err != nil {
		return nil, err
	}
	return results, nil
}

// RunParallelValues executes fns concurrently inside one transaction.
// The result slice preserves input ordering regardless of completion
// order.
func RunParallelValues[T any](ctx context.Context, c *Coordinator, d audit.Descriptor, fns []func(ctx context.Context) (T, error), opts ...RunOption) ([]T, error) {
	results := make([]T, len(fns))
	units := make([]Unit, len(fns))
	for i, fn := range fns {
		i, fn := i, fn
		units[i] = func(txCtx context.Context) error {
			var err error
			results[i], err = fn(txCtx)
			return err
		}
	}
	if err := c.RunParallel(ctx, d, units, opts...); err != nil {
		return nil, err
	}
	return results, nil
}

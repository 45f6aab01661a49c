package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/observability"
	"github.com/cassiomorais/bookcatalog/internal/repository/postgres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultChunkSize = 100

// TxRunner is the transaction port the orchestrator runs on, satisfied
// by *postgres.Coordinator.
type TxRunner interface {
	Run(ctx context.Context, d audit.Descriptor, unit postgres.Unit, opts ...postgres.RunOption) error
	RunWithSavepoint(ctx context.Context, name string, unit postgres.Unit) error
}

// Options configures one batch invocation.
type Options struct {
	// ChunkSize bounds how many rows share one transaction in
	// continue-on-error mode. Defaults to 100.
	ChunkSize int
	// ContinueOnError accumulates per-item failures and commits what
	// succeeded. When false (the default) the first failure aborts the
	// whole batch and everything rolls back.
	ContinueOnError bool
	// ValidateOnly runs the validation pass without mutating anything.
	// Applies to imports.
	ValidateOnly bool
	// UpdateExisting lets an import row overwrite a book matched by
	// natural key instead of failing with "already exists".
	UpdateExisting bool
	// Actor is propagated into every audit entry the batch produces.
	Actor audit.Context
}

// ItemError records one failed item. Successful items are tracked only
// by count and identifier.
type ItemError struct {
	Row     int // 1-based index in the input
	Input   string
	Message string
}

// Result aggregates a whole batch run. It is finalized when the batch
// completes and never exposed mid-run. Successful + Failed always equals
// TotalProcessed.
type Result struct {
	TotalProcessed int
	Successful     int
	Failed         int
	Errors         []ItemError
	Created        []uuid.UUID
	Updated        []uuid.UUID
	Deleted        []uuid.UUID
}

func (r *Result) fail(row int, input string, err error) {
	r.TotalProcessed++
	r.Failed++
	r.Errors = append(r.Errors, ItemError{Row: row, Input: input, Message: err.Error()})
}

func (r *Result) record(out itemOutcome) {
	r.TotalProcessed++
	r.Successful++
	switch out.kind {
	case outcomeCreated:
		r.Created = append(r.Created, out.id)
	case outcomeUpdated:
		r.Updated = append(r.Updated, out.id)
	case outcomeDeleted:
		r.Deleted = append(r.Deleted, out.id)
	}
}

func (r *Result) merge(other *Result) {
	r.TotalProcessed += other.TotalProcessed
	r.Successful += other.Successful
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
	r.Created = append(r.Created, other.Created...)
	r.Updated = append(r.Updated, other.Updated...)
	r.Deleted = append(r.Deleted, other.Deleted...)
}

type outcomeKind int

const (
	outcomeCreated outcomeKind = iota + 1
	outcomeUpdated
	outcomeDeleted
)

type itemOutcome struct {
	kind outcomeKind
	id   uuid.UUID
}

// itemFunc processes one item inside the current transaction.
type itemFunc func(ctx context.Context, idx int) (itemOutcome, error)

// Orchestrator chunks large catalog mutations, runs them under the
// transaction coordinator, and accumulates per-item successes and
// failures with row-level isolation.
type Orchestrator struct {
	books    catalog.BookRepository
	lookups  catalog.LookupRepository
	tx       TxRunner
	sink     audit.Sink // row-level entries, co-committed via the tx context
	summary  audit.Sink // best-effort standalone batch summaries
	validate *validator.Validate
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

func NewOrchestrator(
	books catalog.BookRepository,
	lookups catalog.LookupRepository,
	tx TxRunner,
	sink audit.Sink,
	summary audit.Sink,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		books:    books,
		lookups:  lookups,
		tx:       tx,
		sink:     sink,
		summary:  summary,
		validate: validator.New(),
		logger:   logger,
		metrics:  metrics,
	}
}

// process drives a batch of total items through the failure policy.
// Default mode wraps everything in one transaction so the first failure
// rolls back the entire run. Continue-on-error mode commits one
// transaction per chunk with a savepoint per row, so a bad row's partial
// writes are undone while the rest of its chunk proceeds.
func (o *Orchestrator) process(ctx context.Context, op string, d audit.Descriptor, opts Options, total int, item itemFunc, label func(int) string) (*Result, error) {
	start := time.Now()
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	res := &Result{}

	if !opts.ContinueOnError {
		err := o.tx.Run(ctx, d, func(txCtx context.Context) error {
			for i := 0; i < total; i++ {
				out, err := item(txCtx, i)
				if err != nil {
					return fmt.Errorf("row %d (%s): %w", i+1, label(i), err)
				}
				res.record(out)
			}
			return nil
		})
		if err != nil {
			o.observe(op, res, start)
			return nil, err
		}
	} else {
		for lo := 0; lo < total; lo += chunkSize {
			hi := min(lo+chunkSize, total)
			chunkRes := &Result{}

			err := o.tx.Run(ctx, d, func(txCtx context.Context) error {
				for i := lo; i < hi; i++ {
					var out itemOutcome
					spErr := o.tx.RunWithSavepoint(txCtx, fmt.Sprintf("row_%d", i+1), func(spCtx context.Context) error {
						var err error
						out, err = item(spCtx, i)
						return err
					})
					if spErr != nil {
						chunkRes.fail(i+1, label(i), spErr)
					} else {
						chunkRes.record(out)
					}
				}
				return nil
			})
			if err != nil {
				// The chunk's transaction itself failed; none of its rows
				// persisted regardless of their individual outcome.
				o.logger.Error().Err(err).Int("chunk_start", lo+1).Msg("batch chunk transaction failed")
				for i := lo; i < hi; i++ {
					res.fail(i+1, label(i), err)
				}
				continue
			}
			res.merge(chunkRes)
		}
	}

	o.observe(op, res, start)
	o.summarize(ctx, d, op, opts, res)
	return res, nil
}

func (o *Orchestrator) observe(op string, res *Result, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.BatchRowsTotal.WithLabelValues(op, "ok").Add(float64(res.Successful))
	o.metrics.BatchRowsTotal.WithLabelValues(op, "failed").Add(float64(res.Failed))
	o.metrics.BatchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) summarize(ctx context.Context, d audit.Descriptor, op string, opts Options, res *Result) {
	if o.summary == nil {
		return
	}
	detail := fmt.Sprintf("%s: %d processed, %d succeeded, %d failed",
		op, res.TotalProcessed, res.Successful, res.Failed)
	entry := audit.NewEntry(d, audit.OutcomeCompleted, detail)
	if err := o.summary.Write(ctx, entry); err != nil {
		o.logger.Error().Err(err).Str("operation", op).Msg("batch summary audit write failed")
	}
}

// auditRow emits the per-mutation trail entry through the transaction
// the row ran in, so it shares the row's fate.
func (o *Orchestrator) auditRow(ctx context.Context, actor audit.Context, action string, b *catalog.Book, before, after map[string]any) error {
	if o.sink == nil {
		return nil
	}
	entry := audit.NewEntry(audit.Descriptor{
		Action:       action,
		ResourceType: "book",
		ResourceID:   b.ID.String(),
		Description:  "batch operation",
		Actor:        actor,
	}, "", "")
	entry.Before = before
	entry.After = after
	return o.sink.Write(ctx, entry)
}

package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ctxKey is an unexported type for context keys in this package.
type ctxKey int

const txKey ctxKey = iota

// DBTX is the common query interface satisfied by both *pgxpool.Pool and
// the coordinator's transaction handle.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// IsolationLevel selects the transaction isolation for a coordinator run.
// The default is read committed; it is never silently escalated.
type IsolationLevel string

const (
	ReadCommitted  IsolationLevel = "read_committed"
	RepeatableRead IsolationLevel = "repeatable_read"
	Serializable   IsolationLevel = "serializable"
)

func (l IsolationLevel) txOptions() pgx.TxOptions {
	switch l {
	case RepeatableRead:
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}
	case Serializable:
		return pgx.TxOptions{IsoLevel: pgx.Serializable}
	default:
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	}
}

// txState is the per-transaction handle stored in the context. It owns
// the pgx transaction for its lifetime and becomes invalid the moment
// commit or rollback resolves it. The mutex serializes statement
// issuance: pgx transactions are not safe for concurrent use, so
// concurrent units share the connection one statement at a time.
type txState struct {
	mu         sync.Mutex
	tx         pgx.Tx
	savepoints map[string]struct{}
}

func withTx(ctx context.Context, state *txState) context.Context {
	return context.WithValue(ctx, txKey, state)
}

func txFromCtx(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txKey).(*txState)
	return state, ok
}

// InTx reports whether the context carries an open coordinator transaction.
func InTx(ctx context.Context) bool {
	_, ok := txFromCtx(ctx)
	return ok
}

// ConnFromCtx returns the transaction from context if present, otherwise
// the fallback (normally the pool). Repositories route every statement
// through this so they join the caller's transaction transparently.
func ConnFromCtx(ctx context.Context, fallback DBTX) DBTX {
	if state, ok := txFromCtx(ctx); ok {
		return &lockedTx{state: state}
	}
	return fallback
}

// lockedTx adapts a txState to DBTX, holding the statement mutex for the
// full lifetime of each statement (through row iteration for queries).
type lockedTx struct {
	state *txState
}

func (t *lockedTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()
	return t.state.tx.Exec(ctx, sql, args...)
}

func (t *lockedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	t.state.mu.Lock()
	return &lockedRow{row: t.state.tx.QueryRow(ctx, sql, args...), mu: &t.state.mu}
}

func (t *lockedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	t.state.mu.Lock()
	rows, err := t.state.tx.Query(ctx, sql, args...)
	if err != nil {
		t.state.mu.Unlock()
		return nil, err
	}
	return &lockedRows{Rows: rows, mu: &t.state.mu}, nil
}

type lockedRow struct {
	row pgx.Row
	mu  *sync.Mutex
}

func (r *lockedRow) Scan(dest ...any) error {
	defer r.mu.Unlock()
	return r.row.Scan(dest...)
}

type lockedRows struct {
	pgx.Rows
	mu   *sync.Mutex
	once sync.Once
}

func (r *lockedRows) Close() {
	r.Rows.Close()
	r.once.Do(r.mu.Unlock)
}

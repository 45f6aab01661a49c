package postgres_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/cassiomorais/bookcatalog/internal/repository/postgres"
	"github.com/cassiomorais/bookcatalog/internal/testutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records the statements issued through it. Only the methods the
// coordinator touches do anything; the rest satisfy pgx.Tx.
type fakeTx struct {
	mu         sync.Mutex
	execLog    []string
	committed  bool
	rolledBack bool
	execErr    error
	commitErr  error
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	t.execLog = append(t.execLog, sql)
	return pgconn.NewCommandTag("OK"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *fakeTx) Begin(context.Context) (pgx.Tx, error) { return nil, errors.New("not implemented") }
func (t *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (t *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (t *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (t *fakeTx) Conn() *pgx.Conn                                  { return nil }

type fakePool struct {
	mu       sync.Mutex
	txs      []*fakeTx
	options  []pgx.TxOptions
	beginErr error
}

func (p *fakePool) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	tx := &fakeTx{}
	p.txs = append(p.txs, tx)
	p.options = append(p.options, opts)
	return tx, nil
}

func (p *fakePool) lastTx(t *testing.T) *fakeTx {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.txs)
	return p.txs[len(p.txs)-1]
}

type coordFixture struct {
	pool       *fakePool
	sink       *testutil.MockAuditSink
	standalone *testutil.MockAuditSink
	coord      *postgres.Coordinator
}

func newCoordFixture() *coordFixture {
	f := &coordFixture{
		pool:       &fakePool{},
		sink:       testutil.NewMockAuditSink(),
		standalone: testutil.NewMockAuditSink(),
	}
	f.coord = postgres.NewCoordinator(f.pool, f.sink, f.standalone, zerolog.Nop(), nil)
	return f
}

func descriptor() audit.Descriptor {
	return audit.Descriptor{Action: "books.create", ResourceType: "book"}
}

func TestRun_CommitsAndCoCommitsAudit(t *testing.T) {
	f := newCoordFixture()

	var sawTx bool
	err := f.coord.Run(context.Background(), descriptor(), func(txCtx context.Context) error {
		sawTx = postgres.InTx(txCtx)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawTx, "unit context must carry the transaction")

	tx := f.pool.lastTx(t)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)

	// The completed entry is written through the transaction, before commit.
	require.Len(t, f.sink.Entries, 1)
	assert.Equal(t, "books.create.completed", f.sink.Entries[0].Action)
	assert.True(t, f.sink.InTx[0])
	assert.Empty(t, f.standalone.Entries)
}

func TestRun_FailureRollsBackAndAuditsStandalone(t *testing.T) {
	f := newCoordFixture()

	cause := errors.New("insert failed")
	err := f.coord.Run(context.Background(), descriptor(), func(context.Context) error {
		return cause
	})
	require.ErrorIs(t, err, cause)

	tx := f.pool.lastTx(t)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)

	assert.Empty(t, f.sink.Entries, "no completed entry on the failure path")
	require.Len(t, f.standalone.Entries, 1)
	assert.Equal(t, "books.create.failed", f.standalone.Entries[0].Action)
	assert.False(t, f.standalone.InTx[0], "failure entry is written outside the transaction")
	assert.Contains(t, f.standalone.Entries[0].Description, "insert failed")
}

func TestRun_AuditWriteFailureRollsBack(t *testing.T) {
	f := newCoordFixture()
	f.sink.Err = errors.New("audit_log insert failed")

	err := f.coord.Run(context.Background(), descriptor(), func(context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write audit entry")

	tx := f.pool.lastTx(t)
	assert.True(t, tx.rolledBack, "a mutation whose audit cannot be written must not commit")
	assert.False(t, tx.committed)
}

func TestRun_BeginError(t *testing.T) {
	f := newCoordFixture()
	f.pool.beginErr = errors.New("pool exhausted")

	err := f.coord.Run(context.Background(), descriptor(), func(context.Context) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestRun_IsolationLevels(t *testing.T) {
	f := newCoordFixture()
	noop := func(context.Context) error { return nil }

	require.NoError(t, f.coord.Run(context.Background(), descriptor(), noop))
	require.NoError(t, f.coord.Run(context.Background(), descriptor(), noop,
		postgres.WithIsolation(postgres.Serializable)))
	require.NoError(t, f.coord.Run(context.Background(), descriptor(), noop,
		postgres.WithIsolation(postgres.RepeatableRead)))

	require.Len(t, f.pool.options, 3)
	assert.Equal(t, pgx.ReadCommitted, f.pool.options[0].IsoLevel, "default stays read committed")
	assert.Equal(t, pgx.Serializable, f.pool.options[1].IsoLevel)
	assert.Equal(t, pgx.RepeatableRead, f.pool.options[2].IsoLevel)
}

func TestRunSequential_StopsAtFirstFailure(t *testing.T) {
	f := newCoordFixture()

	var ran []int
	units := []postgres.Unit{
		func(context.Context) error { ran = append(ran, 0); return nil },
		func(context.Context) error { ran = append(ran, 1); return errors.New("unit blew up") },
		func(context.Context) error { ran = append(ran, 2); return nil },
	}

	err := f.coord.RunSequential(context.Background(), descriptor(), units)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit 1")
	assert.Equal(t, []int{0, 1}, ran, "units after the failure never run")
	assert.True(t, f.pool.lastTx(t).rolledBack)
}

func TestRunParallelValues_PreservesInputOrder(t *testing.T) {
	f := newCoordFixture()

	fns := make([]func(ctx context.Context) (int, error), 5)
	for i := range fns {
		i := i
		fns[i] = func(context.Context) (int, error) {
			// Finish in reverse order to catch completion-order bugs.
			time.Sleep(time.Duration(5-i) * time.Millisecond)
			return i * 10, nil
		}
	}

	got, err := postgres.RunParallelValues(context.Background(), f.coord, descriptor(), fns)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20, 30, 40}, got)
	assert.True(t, f.pool.lastTx(t).committed)
}

func TestRunParallel_AnyFailureRollsBackAll(t *testing.T) {
	f := newCoordFixture()

	units := []postgres.Unit{
		func(context.Context) error { return nil },
		func(context.Context) error { return errors.New("second unit failed") },
	}
	err := f.coord.RunParallel(context.Background(), descriptor(), units)
	require.Error(t, err)
	assert.True(t, f.pool.lastTx(t).rolledBack)
}

func TestRunWithSavepoint(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.Run(context.Background(), descriptor(), func(txCtx context.Context) error {
		return f.coord.RunWithSavepoint(txCtx, "row_1", func(context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)

	tx := f.pool.lastTx(t)
	assert.Contains(t, tx.execLog, `SAVEPOINT "row_1"`)
	assert.Contains(t, tx.execLog, `RELEASE SAVEPOINT "row_1"`)
	assert.True(t, tx.committed)
}

func TestRunWithSavepoint_RollsBackToSavepointOnly(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.Run(context.Background(), descriptor(), func(txCtx context.Context) error {
		spErr := f.coord.RunWithSavepoint(txCtx, "row_1", func(context.Context) error {
			return errors.New("row failed")
		})
		assert.EqualError(t, spErr, "row failed")
		// The parent transaction survives the row failure.
		return nil
	})
	require.NoError(t, err)

	tx := f.pool.lastTx(t)
	assert.Contains(t, tx.execLog, `ROLLBACK TO SAVEPOINT "row_1"`)
	assert.NotContains(t, tx.execLog, `RELEASE SAVEPOINT "row_1"`)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestRunWithSavepoint_NameReuseRejected(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.Run(context.Background(), descriptor(), func(txCtx context.Context) error {
		if err := f.coord.RunWithSavepoint(txCtx, "sp", func(context.Context) error { return nil }); err != nil {
			return err
		}
		return f.coord.RunWithSavepoint(txCtx, "sp", func(context.Context) error { return nil })
	})
	require.ErrorIs(t, err, domainErrors.ErrSavepointReused)
}

func TestRunWithSavepoint_RequiresTransaction(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.RunWithSavepoint(context.Background(), "sp", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, domainErrors.ErrNoTransaction)
}

func TestRunWithTimeout_SetsStatementTimeout(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.RunWithTimeout(context.Background(), descriptor(), 50*time.Millisecond,
		func(context.Context) error { return nil })
	require.NoError(t, err)

	tx := f.pool.lastTx(t)
	assert.Contains(t, tx.execLog, "SET LOCAL statement_timeout = 50")
	assert.True(t, tx.committed)
}

func TestRunWithTimeout_DeadlineMapsToTimeoutError(t *testing.T) {
	f := newCoordFixture()

	err := f.coord.RunWithTimeout(context.Background(), descriptor(), 10*time.Millisecond,
		func(txCtx context.Context) error {
			<-txCtx.Done()
			return txCtx.Err()
		})

	require.ErrorIs(t, err, domainErrors.ErrTransactionTimeout)
	tx := f.pool.lastTx(t)
	assert.True(t, tx.rolledBack, "the transaction is resolved, never abandoned")
	assert.False(t, tx.committed)
}

func TestRunValue(t *testing.T) {
	f := newCoordFixture()

	got, err := postgres.RunValue(context.Background(), f.coord, descriptor(),
		func(context.Context) (string, error) { return "created", nil })
	require.NoError(t, err)
	assert.Equal(t, "created", got)
}

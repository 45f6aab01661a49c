package batch

import (
	"context"
	"testing"

	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func seedBooks(f *fixture, n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
		f.books.AddBook(&catalog.Book{
			ID:         ids[i],
			Title:      "Seed",
			PriceCents: 1000,
			Available:  true,
		})
	}
	return ids
}

func TestBulkUpdate(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 3)

	updates := []BookUpdate{
		{ID: ids[0], PriceCents: ptr(int64(1500))},
		{ID: ids[1], Title: ptr("Renamed"), Available: ptr(false)},
		{ID: ids[2], StockQuantity: ptr(7)},
	}

	res, err := f.orch.BulkUpdate(context.Background(), updates, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Successful)
	assert.Equal(t, 0, res.Failed)
	assert.ElementsMatch(t, ids, res.Updated)

	b, err := f.books.GetByID(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Renamed", b.Title)
	assert.False(t, b.Available)
	assert.Equal(t, int64(1000), b.PriceCents, "unset fields stay put")
}

func TestBulkUpdate_NotFoundFailsItemOnly(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 2)
	missing := uuid.New()

	updates := []BookUpdate{
		{ID: ids[0], PriceCents: ptr(int64(1500))},
		{ID: missing, PriceCents: ptr(int64(2000))},
		{ID: ids[1], PriceCents: ptr(int64(2500))},
	}

	res, err := f.orch.BulkUpdate(context.Background(), updates, Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, missing.String(), res.Errors[0].Input)
	assert.Contains(t, res.Errors[0].Message, "book not found")
}

func TestBulkUpdate_ValidatesFields(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 1)

	tests := []struct {
		name    string
		update  BookUpdate
		wantMsg string
	}{
		{"empty title", BookUpdate{ID: ids[0], Title: ptr("")}, "title is required"},
		{"zero price", BookUpdate{ID: ids[0], PriceCents: ptr(int64(0))}, "price must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.orch.BulkUpdate(context.Background(), []BookUpdate{tt.update}, Options{ContinueOnError: true})
			require.NoError(t, err)
			assert.Equal(t, 1, res.Failed)
			assert.Contains(t, res.Errors[0].Message, tt.wantMsg)
		})
	}
}

func TestBulkUpdate_AuditsBeforeAndAfter(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 1)

	_, err := f.orch.BulkUpdate(context.Background(),
		[]BookUpdate{{ID: ids[0], PriceCents: ptr(int64(1500))}}, Options{})
	require.NoError(t, err)

	require.Len(t, f.sink.Entries, 1)
	e := f.sink.Entries[0]
	assert.Equal(t, "book.update", e.Action)
	assert.Equal(t, int64(1000), e.Before["price_cents"])
	assert.Equal(t, int64(1500), e.After["price_cents"])
}

func TestBulkDelete(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 3)

	res, err := f.orch.BulkDelete(context.Background(), ids, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Successful)
	assert.ElementsMatch(t, ids, res.Deleted)
	assert.Equal(t, 0, f.books.Count())

	require.Len(t, f.sink.Entries, 3)
	assert.Equal(t, "book.delete", f.sink.Entries[0].Action)
	assert.Nil(t, f.sink.Entries[0].After)
}

func TestBulkDelete_NotFoundFailsItemOnly(t *testing.T) {
	f := newFixture()
	ids := seedBooks(f, 1)

	res, err := f.orch.BulkDelete(context.Background(),
		[]uuid.UUID{ids[0], uuid.New()}, Options{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Errors[0].Row)
	assert.Equal(t, 0, f.books.Count())
}

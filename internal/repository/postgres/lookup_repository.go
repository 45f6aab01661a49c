package postgres

import (
	"context"
	"fmt"

	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LookupRepository resolves authors, publishers and genres by name with
// find-or-create semantics. The single-statement upsert keeps lookups
// race-free when concurrent imports resolve the same name.
type LookupRepository struct {
	pool *pgxpool.Pool
}

func NewLookupRepository(pool *pgxpool.Pool) *LookupRepository {
	return &LookupRepository{pool: pool}
}

func (r *LookupRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *LookupRepository) FindOrCreateAuthor(ctx context.Context, name string) (*catalog.Author, error) {
	id, err := r.findOrCreate(ctx, "authors", name)
	if err != nil {
		return nil, fmt.Errorf("find or create author: %w", err)
	}
	return &catalog.Author{ID: id, Name: name}, nil
}

func (r *LookupRepository) FindOrCreatePublisher(ctx context.Context, name string) (*catalog.Publisher, error) {
	id, err := r.findOrCreate(ctx, "publishers", name)
	if err != nil {
		return nil, fmt.Errorf("find or create publisher: %w", err)
	}
	return &catalog.Publisher{ID: id, Name: name}, nil
}

func (r *LookupRepository) FindOrCreateGenre(ctx context.Context, name string) (*catalog.Genre, error) {
	id, err := r.findOrCreate(ctx, "genres", name)
	if err != nil {
		return nil, fmt.Errorf("find or create genre: %w", err)
	}
	return &catalog.Genre{ID: id, Name: name}, nil
}

func (r *LookupRepository) findOrCreate(ctx context.Context, table, name string) (uuid.UUID, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row's id on
	// conflict, so lookup and creation are one round-trip.
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, name) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, table)

	var id uuid.UUID
	if err := r.db(ctx).QueryRow(ctx, sql, uuid.New(), name).Scan(&id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookColumns = `id, title, isbn, price_cents, stock_quantity, available,
	published_on, pages, description, image_ref, author_id, publisher_id, genre_id,
	created_at, updated_at`

type BookRepository struct {
	pool *pgxpool.Pool
}

func NewBookRepository(pool *pgxpool.Pool) *BookRepository {
	return &BookRepository{pool: pool}
}

func (r *BookRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *BookRepository) Create(ctx context.Context, b *catalog.Book) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO books (id, title, isbn, price_cents, stock_quantity, available,
		     published_on, pages, description, image_ref, author_id, publisher_id, genre_id,
		     created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		b.ID, b.Title, b.ISBN, b.PriceCents, b.StockQuantity, b.Available,
		b.PublishedOn, b.Pages, b.Description, b.ImageRef, b.AuthorID, b.PublisherID, b.GenreID,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *BookRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	b, err := r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book by id: %w", err)
	}
	return b, nil
}

func (r *BookRepository) GetByISBN(ctx context.Context, isbn string) (*catalog.Book, error) {
	b, err := r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = $1`, isbn))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get book by isbn: %w", err)
	}
	return b, nil
}

func (r *BookRepository) GetByTitle(ctx context.Context, title string) (*catalog.Book, error) {
	b, err := r.scanOne(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookColumns+` FROM books WHERE lower(title) = lower($1) LIMIT 1`, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get book by title: %w", err)
	}
	return b, nil
}

func (r *BookRepository) Update(ctx context.Context, b *catalog.Book) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE books
		 SET title = $2, isbn = NULLIF($3, ''), price_cents = $4, stock_quantity = $5,
		     available = $6, published_on = $7, pages = $8, description = $9,
		     image_ref = $10, author_id = $11, publisher_id = $12, genre_id = $13,
		     updated_at = $14
		 WHERE id = $1`,
		b.ID, b.Title, b.ISBN, b.PriceCents, b.StockQuantity,
		b.Available, b.PublishedOn, b.Pages, b.Description,
		b.ImageRef, b.AuthorID, b.PublisherID, b.GenreID,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrBookNotFound
	}
	return nil
}

func (r *BookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrBookNotFound
	}
	return nil
}

func (r *BookRepository) scanOne(row pgx.Row) (*catalog.Book, error) {
	b := &catalog.Book{}
	var isbn *string
	err := row.Scan(
		&b.ID, &b.Title, &isbn, &b.PriceCents, &b.StockQuantity, &b.Available,
		&b.PublishedOn, &b.Pages, &b.Description, &b.ImageRef,
		&b.AuthorID, &b.PublisherID, &b.GenreID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if isbn != nil {
		b.ISBN = *isbn
	}
	return b, nil
}

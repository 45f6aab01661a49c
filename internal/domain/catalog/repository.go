package catalog

import (
	"context"

	"github.com/google/uuid"
)

// BookRepository is the persistence port for books. Implementations must
// join the transaction carried by the context when one is present.
//
// GetByISBN and GetByTitle are existence probes: they return (nil, nil)
// when no book matches. GetByID returns ErrBookNotFound instead, since
// its callers hold an identifier that is supposed to exist.
type BookRepository interface {
	Create(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id uuid.UUID) (*Book, error)
	GetByISBN(ctx context.Context, isbn string) (*Book, error)
	GetByTitle(ctx context.Context, title string) (*Book, error)
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// LookupRepository resolves loosely-specified references by natural key,
// creating the entity when absent.
type LookupRepository interface {
	FindOrCreateAuthor(ctx context.Context, name string) (*Author, error)
	FindOrCreatePublisher(ctx context.Context, name string) (*Publisher, error)
	FindOrCreateGenre(ctx context.Context, name string) (*Genre, error)
}

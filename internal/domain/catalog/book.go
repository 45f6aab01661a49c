package catalog

import (
	"time"

	"github.com/google/uuid"
)

// Book is the catalog aggregate. Prices are stored in cents to avoid
// floating-point drift.
type Book struct {
	ID            uuid.UUID
	Title         string
	ISBN          string
	PriceCents    int64
	StockQuantity int
	Available     bool
	PublishedOn   *time.Time
	Pages         int
	Description   string
	ImageRef      string
	AuthorID      *uuid.UUID
	PublisherID   *uuid.UUID
	GenreID       *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NaturalKey is the identity used to match rows against existing books
// during imports: ISBN when present, title otherwise.
func (b *Book) NaturalKey() string {
	if b.ISBN != "" {
		return b.ISBN
	}
	return b.Title
}

// Snapshot captures the mutable fields for audit before/after records.
func (b *Book) Snapshot() map[string]any {
	snap := map[string]any{
		"title":          b.Title,
		"isbn":           b.ISBN,
		"price_cents":    b.PriceCents,
		"stock_quantity": b.StockQuantity,
		"available":      b.Available,
		"pages":          b.Pages,
		"description":    b.Description,
	}
	if b.PublishedOn != nil {
		snap["published_on"] = b.PublishedOn.Format("2006-01-02")
	}
	return snap
}

type Author struct {
	ID   uuid.UUID
	Name string
}

type Publisher struct {
	ID   uuid.UUID
	Name string
}

type Genre struct {
	ID   uuid.UUID
	Name string
}

package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/google/uuid"
)

// BookUpdate is one item of a bulk update. Nil fields are left unchanged.
type BookUpdate struct {
	ID            uuid.UUID
	Title         *string
	PriceCents    *int64
	StockQuantity *int
	Available     *bool
	Description   *string
}

// BulkUpdate applies updates item by item. Each book is fetched first to
// capture its before-state for audit and to detect not-found, which is
// an error for that item only.
func (o *Orchestrator) BulkUpdate(ctx context.Context, updates []BookUpdate, opts Options) (*Result, error) {
	d := audit.Descriptor{
		Action:       "books.bulk_update",
		ResourceType: "book",
		Description:  fmt.Sprintf("bulk update of %d books", len(updates)),
		Actor:        opts.Actor,
	}

	item := func(txCtx context.Context, i int) (itemOutcome, error) {
		return o.updateItem(txCtx, updates[i], opts)
	}
	label := func(i int) string { return updates[i].ID.String() }
	return o.process(ctx, "bulk_update", d, opts, len(updates), item, label)
}

func (o *Orchestrator) updateItem(ctx context.Context, u BookUpdate, opts Options) (itemOutcome, error) {
	if u.Title != nil && *u.Title == "" {
		return itemOutcome{}, domainErrors.NewValidationError("title", "title is required")
	}
	if u.PriceCents != nil && *u.PriceCents <= 0 {
		return itemOutcome{}, domainErrors.NewValidationError("price", "price must be greater than 0")
	}

	b, err := o.books.GetByID(ctx, u.ID)
	if err != nil {
		return itemOutcome{}, err
	}
	before := b.Snapshot()

	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.PriceCents != nil {
		b.PriceCents = *u.PriceCents
	}
	if u.StockQuantity != nil {
		b.StockQuantity = *u.StockQuantity
	}
	if u.Available != nil {
		b.Available = *u.Available
	}
	if u.Description != nil {
		b.Description = *u.Description
	}
	b.UpdatedAt = time.Now()

	if err := o.books.Update(ctx, b); err != nil {
		return itemOutcome{}, err
	}
	if err := o.auditRow(ctx, opts.Actor, "book.update", b, before, b.Snapshot()); err != nil {
		return itemOutcome{}, err
	}
	return itemOutcome{kind: outcomeUpdated, id: b.ID}, nil
}

// BulkDelete removes books item by item with the same fetch-first,
// row-isolated pattern as BulkUpdate.
func (o *Orchestrator) BulkDelete(ctx context.Context, ids []uuid.UUID, opts Options) (*Result, error) {
	d := audit.Descriptor{
		Action:       "books.bulk_delete",
		ResourceType: "book",
		Description:  fmt.Sprintf("bulk delete of %d books", len(ids)),
		Actor:        opts.Actor,
	}

	item := func(txCtx context.Context, i int) (itemOutcome, error) {
		return o.deleteItem(txCtx, ids[i], opts)
	}
	label := func(i int) string { return ids[i].String() }
	return o.process(ctx, "bulk_delete", d, opts, len(ids), item, label)
}

func (o *Orchestrator) deleteItem(ctx context.Context, id uuid.UUID, opts Options) (itemOutcome, error) {
	b, err := o.books.GetByID(ctx, id)
	if err != nil {
		return itemOutcome{}, err
	}
	before := b.Snapshot()

	if err := o.books.Delete(ctx, id); err != nil {
		return itemOutcome{}, err
	}
	if err := o.auditRow(ctx, opts.Actor, "book.delete", b, before, nil); err != nil {
		return itemOutcome{}, err
	}
	return itemOutcome{kind: outcomeDeleted, id: id}, nil
}

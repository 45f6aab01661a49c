package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ImportBooks imports tabular rows into the catalog. Rows are parsed
// into the canonical record shape, validated, resolved against
// find-or-create lookups and created, or updated when UpdateExisting is
// set and a book matches by natural key (ISBN, else title).
func (o *Orchestrator) ImportBooks(ctx context.Context, rows []map[string]string, opts Options) (*Result, error) {
	records := make([]catalog.BookRecord, len(rows))
	for i, row := range rows {
		records[i] = catalog.ParseRow(row)
	}

	label := func(i int) string { return records[i].NaturalKey() }

	if opts.ValidateOnly {
		return o.validateRecords(records, label), nil
	}

	d := audit.Descriptor{
		Action:       "books.import",
		ResourceType: "book",
		Description:  fmt.Sprintf("import of %d rows", len(records)),
		Actor:        opts.Actor,
	}

	item := func(txCtx context.Context, i int) (itemOutcome, error) {
		return o.importRow(txCtx, records[i], opts)
	}
	return o.process(ctx, "import", d, opts, len(records), item, label)
}

// validateRecords is the dry-run pass: it reports what would happen
// without touching the database.
func (o *Orchestrator) validateRecords(records []catalog.BookRecord, label func(int) string) *Result {
	res := &Result{}
	for i, rec := range records {
		if err := o.validateRecord(rec); err != nil {
			res.fail(i+1, label(i), err)
			continue
		}
		res.TotalProcessed++
		res.Successful++
	}
	return res
}

func (o *Orchestrator) importRow(ctx context.Context, rec catalog.BookRecord, opts Options) (itemOutcome, error) {
	if err := o.validateRecord(rec); err != nil {
		return itemOutcome{}, err
	}

	authorID, publisherID, genreID, err := o.resolveLookups(ctx, rec)
	if err != nil {
		return itemOutcome{}, err
	}

	var existing *catalog.Book
	if rec.ISBN != "" {
		existing, err = o.books.GetByISBN(ctx, rec.ISBN)
	} else {
		existing, err = o.books.GetByTitle(ctx, rec.Title)
	}
	if err != nil {
		return itemOutcome{}, err
	}

	if existing != nil {
		if !opts.UpdateExisting {
			return itemOutcome{}, fmt.Errorf("%w: %s", domainErrors.ErrBookAlreadyExists, existing.NaturalKey())
		}
		before := existing.Snapshot()
		rec.ApplyTo(existing, authorID, publisherID, genreID)
		if err := o.books.Update(ctx, existing); err != nil {
			return itemOutcome{}, err
		}
		if err := o.auditRow(ctx, opts.Actor, "book.update", existing, before, existing.Snapshot()); err != nil {
			return itemOutcome{}, err
		}
		return itemOutcome{kind: outcomeUpdated, id: existing.ID}, nil
	}

	b := rec.NewBook(authorID, publisherID, genreID)
	if err := o.books.Create(ctx, b); err != nil {
		return itemOutcome{}, err
	}
	if err := o.auditRow(ctx, opts.Actor, "book.create", b, nil, b.Snapshot()); err != nil {
		return itemOutcome{}, err
	}
	return itemOutcome{kind: outcomeCreated, id: b.ID}, nil
}

func (o *Orchestrator) resolveLookups(ctx context.Context, rec catalog.BookRecord) (authorID, publisherID, genreID *uuid.UUID, err error) {
	if rec.AuthorName != "" {
		author, err := o.lookups.FindOrCreateAuthor(ctx, rec.AuthorName)
		if err != nil {
			return nil, nil, nil, err
		}
		authorID = &author.ID
	}
	if rec.PublisherName != "" {
		publisher, err := o.lookups.FindOrCreatePublisher(ctx, rec.PublisherName)
		if err != nil {
			return nil, nil, nil, err
		}
		publisherID = &publisher.ID
	}
	if rec.GenreName != "" {
		genre, err := o.lookups.FindOrCreateGenre(ctx, rec.GenreName)
		if err != nil {
			return nil, nil, nil, err
		}
		genreID = &genre.ID
	}
	return authorID, publisherID, genreID, nil
}

func (o *Orchestrator) validateRecord(rec catalog.BookRecord) error {
	err := o.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Field() {
		case "Title":
			return domainErrors.NewValidationError("title", "title is required")
		case "PriceCents":
			return domainErrors.NewValidationError("price", "price must be greater than 0")
		default:
			return domainErrors.NewValidationError(strings.ToLower(fieldErrs[0].Field()), "invalid value")
		}
	}
	return err
}

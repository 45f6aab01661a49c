package catalog

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookRecord is the canonical intermediate shape a tabular import row is
// parsed into. Field validation tags cover the required-field rules for
// imports; lookups are resolved later by name.
type BookRecord struct {
	Title         string `validate:"required"`
	ISBN          string
	PriceCents    int64 `validate:"gt=0"`
	StockQuantity int
	Available     bool
	PublishedOn   *time.Time
	Pages         int
	Description   string
	ImageRef      string
	AuthorName    string
	PublisherName string
	GenreName     string
}

// Recognized header synonyms, Spanish and English. Keys are normalized
// with normalizeKey before lookup.
var (
	titleKeys       = []string{"title", "titulo"}
	isbnKeys        = []string{"isbn"}
	priceKeys       = []string{"price", "precio"}
	stockKeys       = []string{"stock", "stock_quantity", "cantidad", "existencias"}
	availableKeys   = []string{"available", "availability", "disponible", "disponibilidad"}
	publishedKeys   = []string{"publication_date", "published_on", "fecha_publicacion", "fecha_de_publicacion"}
	pagesKeys       = []string{"pages", "paginas"}
	descriptionKeys = []string{"description", "descripcion"}
	imageKeys       = []string{"image", "image_url", "imagen"}
	authorKeys      = []string{"author", "autor"}
	publisherKeys   = []string{"publisher", "editorial"}
	genreKeys       = []string{"genre", "genero", "categoria"}
)

var accentReplacer = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ñ", "n",
)

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = accentReplacer.Replace(k)
	return strings.ReplaceAll(k, " ", "_")
}

// ParseRow maps a raw row-record onto the canonical shape. Unparsable
// numeric fields default to 0; availability defaults to true unless the
// value is an explicit negative.
func ParseRow(row map[string]string) BookRecord {
	norm := make(map[string]string, len(row))
	for k, v := range row {
		norm[normalizeKey(k)] = strings.TrimSpace(v)
	}

	return BookRecord{
		Title:         pick(norm, titleKeys),
		ISBN:          pick(norm, isbnKeys),
		PriceCents:    parsePriceCents(pick(norm, priceKeys)),
		StockQuantity: parseInt(pick(norm, stockKeys)),
		Available:     parseBool(pick(norm, availableKeys)),
		PublishedOn:   parseDate(pick(norm, publishedKeys)),
		Pages:         parseInt(pick(norm, pagesKeys)),
		Description:   pick(norm, descriptionKeys),
		ImageRef:      pick(norm, imageKeys),
		AuthorName:    pick(norm, authorKeys),
		PublisherName: pick(norm, publisherKeys),
		GenreName:     pick(norm, genreKeys),
	}
}

func pick(row map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != "" {
			return v
		}
	}
	return ""
}

func parsePriceCents(s string) int64 {
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "false", "no", "0", "falso":
		return false
	default:
		return true
	}
}

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02"}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// NaturalKey is the identity used to match the record against existing
// books: ISBN when present, title otherwise.
func (r BookRecord) NaturalKey() string {
	if r.ISBN != "" {
		return r.ISBN
	}
	return r.Title
}

// NewBook materializes a record as a fresh book with resolved lookups.
func (r BookRecord) NewBook(authorID, publisherID, genreID *uuid.UUID) *Book {
	now := time.Now()
	return &Book{
		ID:            uuid.New(),
		Title:         r.Title,
		ISBN:          r.ISBN,
		PriceCents:    r.PriceCents,
		StockQuantity: r.StockQuantity,
		Available:     r.Available,
		PublishedOn:   r.PublishedOn,
		Pages:         r.Pages,
		Description:   r.Description,
		ImageRef:      r.ImageRef,
		AuthorID:      authorID,
		PublisherID:   publisherID,
		GenreID:       genreID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ApplyTo overwrites an existing book's fields from the record, keeping
// identity and creation time. Lookup IDs are only replaced when resolved.
func (r BookRecord) ApplyTo(b *Book, authorID, publisherID, genreID *uuid.UUID) {
	b.Title = r.Title
	if r.ISBN != "" {
		b.ISBN = r.ISBN
	}
	b.PriceCents = r.PriceCents
	b.StockQuantity = r.StockQuantity
	b.Available = r.Available
	if r.PublishedOn != nil {
		b.PublishedOn = r.PublishedOn
	}
	if r.Pages > 0 {
		b.Pages = r.Pages
	}
	if r.Description != "" {
		b.Description = r.Description
	}
	if r.ImageRef != "" {
		b.ImageRef = r.ImageRef
	}
	if authorID != nil {
		b.AuthorID = authorID
	}
	if publisherID != nil {
		b.PublisherID = publisherID
	}
	if genreID != nil {
		b.GenreID = genreID
	}
	b.UpdatedAt = time.Now()
}

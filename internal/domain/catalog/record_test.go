package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRow_EnglishHeaders(t *testing.T) {
	rec := ParseRow(map[string]string{
		"title":            "The Go Programming Language",
		"isbn":             "978-0-13-419044-0",
		"price":            "39.99",
		"stock":            "12",
		"available":        "true",
		"publication_date": "2015-10-26",
		"pages":            "380",
		"author":           "Alan A. A. Donovan",
		"publisher":        "Addison-Wesley",
		"genre":            "Programming",
	})

	assert.Equal(t, "The Go Programming Language", rec.Title)
	assert.Equal(t, "978-0-13-419044-0", rec.ISBN)
	assert.Equal(t, int64(3999), rec.PriceCents)
	assert.Equal(t, 12, rec.StockQuantity)
	assert.True(t, rec.Available)
	require.NotNil(t, rec.PublishedOn)
	assert.Equal(t, time.Date(2015, 10, 26, 0, 0, 0, 0, time.UTC), *rec.PublishedOn)
	assert.Equal(t, 380, rec.Pages)
	assert.Equal(t, "Alan A. A. Donovan", rec.AuthorName)
	assert.Equal(t, "Addison-Wesley", rec.PublisherName)
	assert.Equal(t, "Programming", rec.GenreName)
}

func TestParseRow_SpanishHeaders(t *testing.T) {
	rec := ParseRow(map[string]string{
		"Título":               "Cien años de soledad",
		"Precio":               "15,50",
		"Existencias":          "3",
		"Disponible":           "sí",
		"Fecha de publicación": "1967-05-30",
		"Páginas":              "417",
		"Autor":                "Gabriel García Márquez",
		"Editorial":            "Sudamericana",
		"Género":               "Novela",
	})

	assert.Equal(t, "Cien años de soledad", rec.Title)
	assert.Equal(t, int64(1550), rec.PriceCents)
	assert.Equal(t, 3, rec.StockQuantity)
	assert.True(t, rec.Available)
	assert.Equal(t, 417, rec.Pages)
	assert.Equal(t, "Gabriel García Márquez", rec.AuthorName)
	assert.Equal(t, "Sudamericana", rec.PublisherName)
	assert.Equal(t, "Novela", rec.GenreName)
}

func TestParseRow_Defaults(t *testing.T) {
	rec := ParseRow(map[string]string{
		"title": "Minimal",
		"price": "not-a-number",
		"stock": "many",
		"pages": "",
	})

	assert.Equal(t, int64(0), rec.PriceCents)
	assert.Equal(t, 0, rec.StockQuantity)
	assert.Equal(t, 0, rec.Pages)
	assert.True(t, rec.Available, "availability defaults to true")
	assert.Nil(t, rec.PublishedOn)
}

func TestParseRow_AvailabilityNegatives(t *testing.T) {
	for _, v := range []string{"false", "no", "0", "falso", "FALSE", "No"} {
		rec := ParseRow(map[string]string{"title": "x", "available": v})
		assert.False(t, rec.Available, "value %q should read as unavailable", v)
	}
}

func TestBook_NaturalKey(t *testing.T) {
	b := &Book{Title: "Dune", ISBN: "978-0-441-17271-9"}
	assert.Equal(t, "978-0-441-17271-9", b.NaturalKey())

	b.ISBN = ""
	assert.Equal(t, "Dune", b.NaturalKey())
}

func TestBookRecord_ApplyTo_KeepsUnsetFields(t *testing.T) {
	published := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)
	b := &Book{
		Title:       "Dune",
		ISBN:        "978-0-441-17271-9",
		PriceCents:  1299,
		Pages:       412,
		Description: "desert planet",
		PublishedOn: &published,
	}

	rec := BookRecord{Title: "Dune (Reissue)", PriceCents: 1499, Available: true}
	rec.ApplyTo(b, nil, nil, nil)

	assert.Equal(t, "Dune (Reissue)", b.Title)
	assert.Equal(t, int64(1499), b.PriceCents)
	assert.Equal(t, "978-0-441-17271-9", b.ISBN, "empty ISBN must not clear the existing one")
	assert.Equal(t, 412, b.Pages)
	assert.Equal(t, "desert planet", b.Description)
	assert.Equal(t, &published, b.PublishedOn)
}

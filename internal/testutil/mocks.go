package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/cassiomorais/bookcatalog/internal/domain/catalog"
	domainErrors "github.com/cassiomorais/bookcatalog/internal/domain/errors"
	"github.com/cassiomorais/bookcatalog/internal/repository/postgres"
	"github.com/google/uuid"
)

// --- Book Repository Mock ---

// MockBookRepository is an in-memory implementation of catalog.BookRepository.
type MockBookRepository struct {
	mu     sync.Mutex
	books  map[uuid.UUID]*catalog.Book
	byISBN map[string]uuid.UUID

	CreateFunc func(ctx context.Context, b *catalog.Book) error
	UpdateFunc func(ctx context.Context, b *catalog.Book) error
	DeleteFunc func(ctx context.Context, id uuid.UUID) error
}

func NewMockBookRepository() *MockBookRepository {
	return &MockBookRepository{
		books:  make(map[uuid.UUID]*catalog.Book),
		byISBN: make(map[string]uuid.UUID),
	}
}

func (m *MockBookRepository) AddBook(b *catalog.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = b
	if b.ISBN != "" {
		m.byISBN[b.ISBN] = b.ID
	}
}

func (m *MockBookRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.books)
}

func (m *MockBookRepository) Create(ctx context.Context, b *catalog.Book) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ISBN != "" {
		if _, exists := m.byISBN[b.ISBN]; exists {
			return fmt.Errorf("duplicate key value violates unique constraint \"books_isbn_key\"")
		}
		m.byISBN[b.ISBN] = b.ID
	}
	m.books[b.ID] = b
	return nil
}

func (m *MockBookRepository) GetByID(_ context.Context, id uuid.UUID) (*catalog.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, domainErrors.ErrBookNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *MockBookRepository) GetByISBN(_ context.Context, isbn string) (*catalog.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byISBN[isbn]
	if !ok {
		return nil, nil
	}
	copied := *m.books[id]
	return &copied, nil
}

func (m *MockBookRepository) GetByTitle(_ context.Context, title string) (*catalog.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		if strings.EqualFold(b.Title, title) {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockBookRepository) Update(ctx context.Context, b *catalog.Book) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, b)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return domainErrors.ErrBookNotFound
	}
	copied := *b
	m.books[b.ID] = &copied
	if b.ISBN != "" {
		m.byISBN[b.ISBN] = b.ID
	}
	return nil
}

func (m *MockBookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return domainErrors.ErrBookNotFound
	}
	delete(m.books, id)
	if b.ISBN != "" {
		delete(m.byISBN, b.ISBN)
	}
	return nil
}

// --- Lookup Repository Mock ---

// MockLookupRepository resolves names in memory with find-or-create
// semantics, tracking how many entities it created.
type MockLookupRepository struct {
	mu         sync.Mutex
	authors    map[string]uuid.UUID
	publishers map[string]uuid.UUID
	genres     map[string]uuid.UUID
	CreatedN   int

	FindOrCreateAuthorFunc func(ctx context.Context, name string) (*catalog.Author, error)
}

func NewMockLookupRepository() *MockLookupRepository {
	return &MockLookupRepository{
		authors:    make(map[string]uuid.UUID),
		publishers: make(map[string]uuid.UUID),
		genres:     make(map[string]uuid.UUID),
	}
}

func (m *MockLookupRepository) resolve(table map[string]uuid.UUID, name string) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := table[name]; ok {
		return id
	}
	id := uuid.New()
	table[name] = id
	m.CreatedN++
	return id
}

func (m *MockLookupRepository) FindOrCreateAuthor(ctx context.Context, name string) (*catalog.Author, error) {
	if m.FindOrCreateAuthorFunc != nil {
		return m.FindOrCreateAuthorFunc(ctx, name)
	}
	return &catalog.Author{ID: m.resolve(m.authors, name), Name: name}, nil
}

func (m *MockLookupRepository) FindOrCreatePublisher(_ context.Context, name string) (*catalog.Publisher, error) {
	return &catalog.Publisher{ID: m.resolve(m.publishers, name), Name: name}, nil
}

func (m *MockLookupRepository) FindOrCreateGenre(_ context.Context, name string) (*catalog.Genre, error) {
	return &catalog.Genre{ID: m.resolve(m.genres, name), Name: name}, nil
}

// --- Audit Sink Mock ---

// MockAuditSink records every entry it receives along with whether the
// write arrived bound to a coordinator transaction.
type MockAuditSink struct {
	mu      sync.Mutex
	Entries []*audit.Entry
	InTx    []bool
	Err     error
}

func NewMockAuditSink() *MockAuditSink {
	return &MockAuditSink{}
}

func (m *MockAuditSink) Write(ctx context.Context, e *audit.Entry) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, e)
	m.InTx = append(m.InTx, postgres.InTx(ctx))
	return nil
}

func (m *MockAuditSink) Last() *audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// --- Transaction Runner Mock ---

// MockTxRunner satisfies batch.TxRunner without a database: units run
// directly against the caller's context. Savepoint bookkeeping records
// which rows were attempted and which rolled back.
type MockTxRunner struct {
	mu          sync.Mutex
	Runs        int
	Savepoints  []string
	RolledBack  []string
	RunErr      error // returned before executing the unit when set
	Descriptors []audit.Descriptor
}

func NewMockTxRunner() *MockTxRunner {
	return &MockTxRunner{}
}

func (m *MockTxRunner) Run(ctx context.Context, d audit.Descriptor, unit postgres.Unit, _ ...postgres.RunOption) error {
	m.mu.Lock()
	m.Runs++
	m.Descriptors = append(m.Descriptors, d)
	m.mu.Unlock()
	if m.RunErr != nil {
		return m.RunErr
	}
	return unit(ctx)
}

func (m *MockTxRunner) RunWithSavepoint(ctx context.Context, name string, unit postgres.Unit) error {
	m.mu.Lock()
	m.Savepoints = append(m.Savepoints, name)
	m.mu.Unlock()
	err := unit(ctx)
	if err != nil {
		m.mu.Lock()
		m.RolledBack = append(m.RolledBack, name)
		m.mu.Unlock()
	}
	return err
}

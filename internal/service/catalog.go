package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	isbnUniqueConstraint = "books_isbn_key"
	restockAttempts      = 5
)

type CatalogService struct {
	db *sql.DB
}

func NewCatalogService(db *sql.DB) *CatalogService {
	return &CatalogService{db: db}
}

// ListBooks and GetBook are public; the zero Caller stands for an
// anonymous visitor in spans and logs.
func (s *CatalogService) ListBooks(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	ctx, span := startSpan(ctx, "CatalogService.ListBooks", access.Caller{})

	page, pageSize = normalizePage(page, pageSize)
	result, err := store.ListBooks(ctx, s.db, page, pageSize)
	if err = finish(ctx, span, "list_books", access.Caller{}, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CatalogService) GetBook(ctx context.Context, bookID int64) (*models.Book, error) {
	ctx, span := startSpan(ctx, "CatalogService.GetBook", access.Caller{}, attribute.Int64("book.id", bookID))

	book, err := store.GetBook(ctx, s.db, bookID)
	if errors.Is(err, database.ErrBookNotFound) {
		err = apperr.NotFound("book %d not found", bookID)
	}
	if err = finish(ctx, span, "get_book", access.Caller{}, err); err != nil {
		return nil, err
	}
	return book, nil
}

type NewBook struct {
	ISBN           string          `json:"isbn"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount int             `json:"inventoryCount"`
}

func (b NewBook) validate() error {
	switch {
	case strings.TrimSpace(b.ISBN) == "":
		return apperr.Invalid("isbn is required")
	case strings.TrimSpace(b.Title) == "":
		return apperr.Invalid("title is required")
	case strings.TrimSpace(b.Author) == "":
		return apperr.Invalid("author is required")
	case !b.Price.IsPositive():
		return apperr.Invalid("price must be greater than zero")
	case b.InventoryCount < 0:
		return apperr.Invalid("inventory count cannot be negative")
	case b.InventoryCount > math.MaxInt32:
		return apperr.Invalid("inventory count cannot exceed %d", math.MaxInt32)
	}
	return nil
}

func (s *CatalogService) CreateBook(ctx context.Context, caller access.Caller, b NewBook) (*models.Book, error) {
	ctx, span := startSpan(ctx, "CatalogService.CreateBook", caller)

	book, err := s.createBook(ctx, caller, b)
	if err = finish(ctx, span, "create_book", caller, err); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *CatalogService) createBook(ctx context.Context, caller access.Caller, b NewBook) (*models.Book, error) {
	if err := access.Require(caller.Role, access.ManageCatalog); err != nil {
		return nil, err
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	book, err := store.CreateBook(ctx, s.db, store.CreateBookParams{
		ISBN:           strings.TrimSpace(b.ISBN),
		Title:          strings.TrimSpace(b.Title),
		Author:         strings.TrimSpace(b.Author),
		Price:          b.Price.Round(2),
		InventoryCount: b.InventoryCount,
	})
	if database.IsUniqueViolation(err, isbnUniqueConstraint) {
		return nil, apperr.InvalidState("a book with isbn %s already exists", b.ISBN)
	}
	return book, err
}

// Restock adds delivered copies to a book's inventory. Concurrent restocks
// and sales are reconciled through the book version.
func (s *CatalogService) Restock(ctx context.Context, caller access.Caller, bookID int64, delta int) (*models.Book, error) {
	ctx, span := startSpan(ctx, "CatalogService.Restock", caller, attribute.Int64("book.id", bookID))

	book, err := s.restock(ctx, caller, bookID, delta)
	if err = finish(ctx, span, "restock", caller, err); err != nil {
		return nil, err
	}
	return book, nil
}

func (s *CatalogService) restock(ctx context.Context, caller access.Caller, bookID int64, delta int) (*models.Book, error) {
	if err := access.Require(caller.Role, access.ManageCatalog); err != nil {
		return nil, err
	}
	if delta < 1 {
		return nil, apperr.Invalid("restock quantity must be at least 1")
	}

	for attempt := 0; attempt < restockAttempts; attempt++ {
		current, err := store.GetBook(ctx, s.db, bookID)
		if errors.Is(err, database.ErrBookNotFound) {
			return nil, apperr.NotFound("book %d not found", bookID)
		}
		if err != nil {
			return nil, err
		}
		if delta > math.MaxInt32-current.InventoryCount {
			return nil, apperr.Invalid("restock would exceed %d copies", math.MaxInt32)
		}

		book, err := store.Restock(ctx, s.db, bookID, delta, current.Version)
		if errors.Is(err, database.ErrOptimisticLockFailed) {
			continue
		}
		return book, err
	}

	return nil, database.ErrOptimisticLockFailed
}

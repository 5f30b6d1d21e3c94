package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
)

const bookColumns = `id, isbn, title, author, price, inventory_count, total_sold, created_at, updated_at, version`

func scanBook(row scanner) (*models.Book, error) {
	book := &models.Book{}
	err := row.Scan(
		&book.ID,
		&book.ISBN,
		&book.Title,
		&book.Author,
		&book.Price,
		&book.InventoryCount,
		&book.TotalSold,
		&book.CreatedAt,
		&book.UpdatedAt,
		&book.Version,
	)
	return book, err
}

type CreateBookParams struct {
	ISBN           string
	Title          string
	Author         string
	Price          decimal.Decimal
	InventoryCount int
}

func CreateBook(ctx context.Context, q Querier, p CreateBookParams) (*models.Book, error) {
	query := `
		INSERT INTO books (isbn, title, author, price, inventory_count, total_sold, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, 0, NOW(), NOW(), 1)
		RETURNING ` + bookColumns

	book, err := scanBook(q.QueryRowContext(ctx, query, p.ISBN, p.Title, p.Author, p.Price, p.InventoryCount))
	if err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	return book, nil
}

func GetBook(ctx context.Context, q Querier, id int64) (*models.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`

	book, err := scanBook(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrBookNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}

	return book, nil
}

// LockBooks takes row locks on the given books in id order, so two
// checkouts touching the same titles always lock them in the same sequence.
func LockBooks(ctx context.Context, tx *sql.Tx, ids []int64) (map[int64]*models.Book, error) {
	query := `
		SELECT ` + bookColumns + `
		FROM books
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lock books: %w", err)
	}
	defer rows.Close()

	books := make(map[int64]*models.Book, len(ids))
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books[book.ID] = book
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return books, nil
}

// SellStock moves quantity units from inventory to total sold. The
// inventory guard is evaluated at write time, so a stale earlier read can
// never drive inventory negative.
func SellStock(ctx context.Context, tx *sql.Tx, bookID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE books
		 SET inventory_count = inventory_count - $1,
		     total_sold = total_sold + $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND inventory_count >= $1`,
		quantity, bookID)
	if err != nil {
		return fmt.Errorf("sell stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrInsufficientStock
	}

	return nil
}

// ReturnStock is the inverse of SellStock, applied when an order is cancelled.
func ReturnStock(ctx context.Context, tx *sql.Tx, bookID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE books
		 SET inventory_count = inventory_count + $1,
		     total_sold = total_sold - $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, bookID)
	if err != nil {
		return fmt.Errorf("return stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrBookNotFound
	}

	return nil
}

// Restock adds delivered units using optimistic locking on the book version.
func Restock(ctx context.Context, q Querier, bookID int64, delta int, version int) (*models.Book, error) {
	query := `
		UPDATE books
		SET inventory_count = inventory_count + $1,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING ` + bookColumns

	book, err := scanBook(q.QueryRowContext(ctx, query, delta, bookID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOptimisticLockFailed
		}
		return nil, fmt.Errorf("restock book: %w", err)
	}

	return book, nil
}

func ListBooks(ctx context.Context, q Querier, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + bookColumns + `
		FROM books
		ORDER BY title, id
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, *book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      books,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
)

const cartItemColumns = `id, member_profile_id, book_id, quantity, created_at, updated_at`

func scanCartItem(row scanner) (*models.CartItem, error) {
	item := &models.CartItem{}
	err := row.Scan(
		&item.ID,
		&item.MemberProfileID,
		&item.BookID,
		&item.Quantity,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

// GetCart returns the member's cart lines joined with their books, oldest
// line first.
func GetCart(ctx context.Context, q Querier, memberProfileID int64) ([]models.CartItem, error) {
	query := `
		SELECT c.id, c.member_profile_id, c.book_id, c.quantity, c.created_at, c.updated_at,
		       b.id, b.isbn, b.title, b.author, b.price, b.inventory_count, b.total_sold,
		       b.created_at, b.updated_at, b.version
		FROM cart_items c
		JOIN books b ON b.id = c.book_id
		WHERE c.member_profile_id = $1
		ORDER BY c.created_at, c.id`

	rows, err := q.QueryContext(ctx, query, memberProfileID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		book := &models.Book{}
		err := rows.Scan(
			&item.ID,
			&item.MemberProfileID,
			&item.BookID,
			&item.Quantity,
			&item.CreatedAt,
			&item.UpdatedAt,
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
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		item.Book = book
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// LockCart reads the member's cart lines with row locks, without book data.
func LockCart(ctx context.Context, tx *sql.Tx, memberProfileID int64) ([]models.CartItem, error) {
	query := `
		SELECT ` + cartItemColumns + `
		FROM cart_items
		WHERE member_profile_id = $1
		ORDER BY book_id
		FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, memberProfileID)
	if err != nil {
		return nil, fmt.Errorf("lock cart: %w", err)
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// AddCartItem inserts a line or increases an existing one, clamping the
// resulting quantity to maxQuantity.
// AddCartItem merges quantity into the member's line for the book, clamped
// to maxQuantity.
func AddCartItem(ctx context.Context, q Querier, memberProfileID, bookID int64, quantity, maxQuantity int) (*models.CartItem, error) {
	quantity = min(quantity, maxQuantity)

	query := `
		INSERT INTO cart_items (member_profile_id, book_id, quantity, created_at, updated_at)
		VALUES ($1, $2, LEAST($3::int, $4::int), NOW(), NOW())
		ON CONFLICT (member_profile_id, book_id) DO UPDATE
		SET quantity = LEAST(cart_items.quantity + EXCLUDED.quantity, $4::int),
		    updated_at = NOW()
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(q.QueryRowContext(ctx, query, memberProfileID, bookID, quantity, maxQuantity))
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	return item, nil
}

func UpdateCartItem(ctx context.Context, q Querier, memberProfileID, itemID int64, quantity int) (*models.CartItem, error) {
	query := `
		UPDATE cart_items
		SET quantity = $1, updated_at = NOW()
		WHERE id = $2 AND member_profile_id = $3
		RETURNING ` + cartItemColumns

	item, err := scanCartItem(q.QueryRowContext(ctx, query, quantity, itemID, memberProfileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}

	return item, nil
}

func DeleteCartItem(ctx context.Context, q Querier, memberProfileID, itemID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND member_profile_id = $2`,
		itemID, memberProfileID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return nil
}

// ClearCart deletes every line of the member's cart and returns how many
// were removed.
func ClearCart(ctx context.Context, q Querier, memberProfileID int64) (int64, error) {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE member_profile_id = $1`,
		memberProfileID)
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected, nil
}

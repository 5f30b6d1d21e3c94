package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, member_profile_id, order_date, subtotal, discount_percentage, discount_description,
	total_amount, claim_code, note, is_processed, is_cancelled, processed_at, cancelled_at, updated_at`

func scanOrder(row scanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.MemberProfileID,
		&order.OrderDate,
		&order.Subtotal,
		&order.DiscountPercentage,
		&order.DiscountDescription,
		&order.TotalAmount,
		&order.ClaimCode,
		&order.Note,
		&order.IsProcessed,
		&order.IsCancelled,
		&order.ProcessedAt,
		&order.CancelledAt,
		&order.UpdatedAt,
	)
	return order, err
}

type InsertOrderParams struct {
	MemberProfileID     int64
	Subtotal            decimal.Decimal
	DiscountPercentage  decimal.Decimal
	DiscountDescription string
	TotalAmount         decimal.Decimal
	ClaimCode           string
	Note                string
}

// InsertOrder returns ErrClaimCodeTaken when the claim code collides with an
// existing order. The conflict is absorbed by ON CONFLICT so the surrounding
// transaction stays usable and the caller can retry with a fresh code.
func InsertOrder(ctx context.Context, tx *sql.Tx, p InsertOrderParams) (*models.Order, error) {
	query := `
		INSERT INTO orders (member_profile_id, order_date, subtotal, discount_percentage, discount_description,
		                    total_amount, claim_code, note, updated_at)
		VALUES ($1, NOW(), $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT ON CONSTRAINT orders_claim_code_key DO NOTHING
		RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, query,
		p.MemberProfileID,
		p.Subtotal,
		p.DiscountPercentage,
		p.DiscountDescription,
		p.TotalAmount,
		p.ClaimCode,
		p.Note,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrClaimCodeTaken
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	return order, nil
}

func InsertOrderItem(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	err := tx.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, book_id, quantity, unit_price, line_total)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		item.OrderID, item.BookID, item.Quantity, item.UnitPrice, item.LineTotal).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

func GetOrder(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Items, err = GetOrderItems(ctx, q, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

// LockOrder loads an order with its items and holds its row lock for the
// rest of the transaction.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return lockOrder(ctx, tx, query, id)
}

func LockOrderByClaimCode(ctx context.Context, tx *sql.Tx, claimCode string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE claim_code = $1 FOR UPDATE`
	return lockOrder(ctx, tx, query, claimCode)
}

func lockOrder(ctx context.Context, tx *sql.Tx, query string, arg any) (*models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if order.Items, err = GetOrderItems(ctx, tx, order.ID); err != nil {
		return nil, err
	}

	return order, nil
}

func GetOrderItems(ctx context.Context, q Querier, orderID int64) ([]models.OrderItem, error) {
	query := `
		SELECT i.id, i.order_id, i.book_id, b.title, i.quantity, i.unit_price, i.line_total
		FROM order_items i
		JOIN books b ON b.id = i.book_id
		WHERE i.order_id = $1
		ORDER BY i.id`

	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.BookID,
			&item.Title,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// MarkOrderProcessed flips is_processed only while the order is still open.
// Zero affected rows means another transaction got there first.
func MarkOrderProcessed(ctx context.Context, tx *sql.Tx, id int64) error {
	return transitionOrder(ctx, tx,
		`UPDATE orders
		 SET is_processed = TRUE, processed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND NOT is_processed AND NOT is_cancelled`,
		id)
}

func MarkOrderCancelled(ctx context.Context, tx *sql.Tx, id int64) error {
	return transitionOrder(ctx, tx,
		`UPDATE orders
		 SET is_cancelled = TRUE, cancelled_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND NOT is_processed AND NOT is_cancelled`,
		id)
}

func transitionOrder(ctx context.Context, tx *sql.Tx, query string, id int64) error {
	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("update order state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrOrderStateChanged
	}

	return nil
}

func ListMemberOrdersCursor(ctx context.Context, q Querier, memberProfileID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	args := []interface{}{memberProfileID}
	where := "member_profile_id = $1"
	if cursorData != nil {
		args = append(args, cursorData.OrderDate, cursorData.ID)
		where += " AND (order_date, id) < ($2, $3)"
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE %s
		ORDER BY order_date DESC, id DESC
		LIMIT $%d`, where, len(args))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			OrderDate: last.OrderDate,
			ID:        last.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// ListOrders pages over all orders. A nil processed lists everything;
// false lists pending orders, i.e. neither processed nor cancelled.
func ListOrders(ctx context.Context, q Querier, processed *bool, page, pageSize int) (*OffsetPage, error) {
	where := `TRUE`
	if processed != nil {
		if *processed {
			where = `is_processed`
		} else {
			where = `NOT is_processed AND NOT is_cancelled`
		}
	}

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ` + where + `
		ORDER BY order_date DESC, id DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      orders,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// HasCollectedPurchase reports whether the member picked up (processed,
// not cancelled) at least one order containing the book.
func HasCollectedPurchase(ctx context.Context, q Querier, memberProfileID, bookID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(
			SELECT 1
			FROM orders o
			JOIN order_items i ON i.order_id = o.id
			WHERE o.member_profile_id = $1
			  AND i.book_id = $2
			  AND o.is_processed
			  AND NOT o.is_cancelled)`,
		memberProfileID, bookID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

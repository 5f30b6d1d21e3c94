package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/claimcode"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/discount"
	"github.com/safar/go-bookstore/internal/feed"
	"github.com/safar/go-bookstore/internal/metrics"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	MaxNoteLength = 500

	// Attempts at drawing an unused claim code before giving up. With 2^50
	// codes a second attempt is already vanishingly rare.
	claimCodeAttempts = 5
)

// Notifications receives lifecycle events after their transaction commits.
// Implementations must not block the caller.
type Notifications interface {
	OrderConfirmed(ctx context.Context, user *models.User, order *models.Order)
	OrderProcessed(ctx context.Context, user *models.User, order *models.Order)
	OrderCancelled(ctx context.Context, user *models.User, order *models.Order)
}

type OrderService struct {
	db            *sql.DB
	codes         *claimcode.Generator
	notifications Notifications
	feed          feed.Broadcaster
	txOptions     database.TxOptions
}

func NewOrderService(db *sql.DB, codes *claimcode.Generator, notifications Notifications, broadcaster feed.Broadcaster) *OrderService {
	return &OrderService{
		db:            db,
		codes:         codes,
		notifications: notifications,
		feed:          broadcaster,
		txOptions:     database.OrderTxOptions(),
	}
}

// CreateOrder converts the caller's cart into an order in a single
// transaction: stock is re-checked under row locks, the discount is
// computed, a claim code is allocated, inventory moves from stock to sold,
// the member's order count grows by one and the cart is emptied.
func (s *OrderService) CreateOrder(ctx context.Context, caller access.Caller, note string) (*models.Order, error) {
	ctx, span := startSpan(ctx, "OrderService.CreateOrder", caller)

	order, user, err := s.createOrder(ctx, caller, note)
	if err = finish(ctx, span, "create_order", caller, err); err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues("created").Inc()
	zerolog.Ctx(ctx).Info().
		Int64("order_id", order.ID).
		Int64("member_profile_id", order.MemberProfileID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Msg("order created")

	s.notifications.OrderConfirmed(ctx, user, order)
	s.broadcastPurchases(ctx, order)

	return order, nil
}

func (s *OrderService) createOrder(ctx context.Context, caller access.Caller, note string) (*models.Order, *models.User, error) {
	if err := access.Require(caller.Role, access.CreateOrder); err != nil {
		return nil, nil, err
	}
	if utf8.RuneCountInString(note) > MaxNoteLength {
		return nil, nil, apperr.Invalid("note must be at most %d characters", MaxNoteLength)
	}

	var (
		order *models.Order
		user  *models.User
	)

	err := database.WithRetry(ctx, s.db, s.txOptions, func(tx *sql.Tx) error {
		profile, err := memberProfile(ctx, tx, caller.UserID, true)
		if err != nil {
			return err
		}

		lines, err := store.LockCart(ctx, tx, profile.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.InvalidState("cart is empty")
		}

		bookIDs := make([]int64, len(lines))
		for i, line := range lines {
			bookIDs[i] = line.BookID
		}
		books, err := store.LockBooks(ctx, tx, bookIDs)
		if err != nil {
			return err
		}

		items := make([]models.OrderItem, 0, len(lines))
		subtotal := decimal.Zero
		totalBooks := 0
		for _, line := range lines {
			book, ok := books[line.BookID]
			if !ok {
				return apperr.NotFound("book %d not found", line.BookID)
			}
			if book.InventoryCount < line.Quantity {
				return apperr.InvalidState("insufficient stock for %s", book.Title)
			}

			lineTotal := book.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
			subtotal = subtotal.Add(lineTotal)
			totalBooks += line.Quantity
			items = append(items, models.OrderItem{
				BookID:    book.ID,
				Title:     book.Title,
				Quantity:  line.Quantity,
				UnitPrice: book.Price,
				LineTotal: lineTotal,
			})
		}

		disc := discount.Compute(totalBooks, profile.TotalOrders)
		order, err = s.insertOrder(ctx, tx, store.InsertOrderParams{
			MemberProfileID:     profile.ID,
			Subtotal:            subtotal,
			DiscountPercentage:  disc.Percentage,
			DiscountDescription: disc.Description,
			TotalAmount:         discount.Apply(subtotal, disc.Percentage),
			Note:                note,
		})
		if err != nil {
			return err
		}

		for i := range items {
			items[i].OrderID = order.ID
			if err := store.InsertOrderItem(ctx, tx, &items[i]); err != nil {
				return err
			}
			if err := store.SellStock(ctx, tx, items[i].BookID, items[i].Quantity); err != nil {
				if errors.Is(err, database.ErrInsufficientStock) {
					return apperr.InvalidState("insufficient stock for %s", items[i].Title)
				}
				return err
			}
		}
		order.Items = items

		if err := store.IncrementTotalOrders(ctx, tx, profile.ID); err != nil {
			return err
		}
		if _, err := store.ClearCart(ctx, tx, profile.ID); err != nil {
			return err
		}

		user, err = store.GetUser(ctx, tx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return order, user, nil
}

func (s *OrderService) insertOrder(ctx context.Context, tx *sql.Tx, params store.InsertOrderParams) (*models.Order, error) {
	for attempt := 0; attempt < claimCodeAttempts; attempt++ {
		code, err := s.codes.New()
		if err != nil {
			return nil, err
		}
		params.ClaimCode = code

		order, err := store.InsertOrder(ctx, tx, params)
		if errors.Is(err, database.ErrClaimCodeTaken) {
			metrics.ClaimCodeCollisions.Inc()
			continue
		}
		return order, err
	}
	return nil, database.ErrClaimCodeExhausted
}

// broadcastPurchases announces one feed event per distinct book.
func (s *OrderService) broadcastPurchases(ctx context.Context, order *models.Order) {
	byBook := make(map[int64]*feed.Event)
	for _, item := range order.Items {
		if event, ok := byBook[item.BookID]; ok {
			event.Quantity += item.Quantity
			continue
		}
		byBook[item.BookID] = &feed.Event{
			Type:     feed.TypeNewPurchase,
			BookID:   item.BookID,
			Title:    item.Title,
			Quantity: item.Quantity,
			At:       order.OrderDate,
		}
	}

	events := make([]feed.Event, 0, len(byBook))
	for _, event := range byBook {
		events = append(events, *event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].BookID < events[j].BookID })

	if err := s.feed.Publish(ctx, events...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("order_id", order.ID).Msg("purchase broadcast failed")
	}
}

// CancelOrder lets the owning member cancel an open order. Inventory and
// units sold are restored; the member's order count is left unchanged.
func (s *OrderService) CancelOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, error) {
	ctx, span := startSpan(ctx, "OrderService.CancelOrder", caller, attribute.Int64("order.id", orderID))

	order, user, err := s.cancelOrder(ctx, caller, orderID)
	if err = finish(ctx, span, "cancel_order", caller, err); err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues("cancelled").Inc()
	zerolog.Ctx(ctx).Info().Int64("order_id", order.ID).Msg("order cancelled")

	s.notifications.OrderCancelled(ctx, user, order)
	return order, nil
}

func (s *OrderService) cancelOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, *models.User, error) {
	if err := access.Require(caller.Role, access.CancelOrder); err != nil {
		return nil, nil, err
	}

	var (
		order *models.Order
		user  *models.User
	)

	err := database.WithRetry(ctx, s.db, s.txOptions, func(tx *sql.Tx) error {
		locked, err := store.LockOrder(ctx, tx, orderID)
		if errors.Is(err, database.ErrOrderNotFound) {
			return apperr.NotFound("order %d not found", orderID)
		}
		if err != nil {
			return err
		}

		profile, err := store.GetMemberProfileByUserID(ctx, tx, caller.UserID, false)
		if errors.Is(err, database.ErrMemberProfileNotFound) || (err == nil && profile.ID != locked.MemberProfileID) {
			return apperr.Forbidden("not permitted to cancel this order")
		}
		if err != nil {
			return err
		}

		if locked.IsProcessed {
			return apperr.InvalidState("cannot cancel a processed order")
		}
		if locked.IsCancelled {
			return apperr.InvalidState("order already cancelled")
		}

		if err := store.MarkOrderCancelled(ctx, tx, locked.ID); err != nil {
			if errors.Is(err, database.ErrOrderStateChanged) {
				return apperr.InvalidState("order already cancelled")
			}
			return err
		}

		for _, item := range locked.Items {
			if err := store.ReturnStock(ctx, tx, item.BookID, item.Quantity); err != nil {
				return err
			}
		}

		if order, err = store.GetOrder(ctx, tx, locked.ID); err != nil {
			return err
		}
		user, err = store.GetUser(ctx, tx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return order, user, nil
}

type ProcessRequest struct {
	ClaimCode    string
	MembershipID int64
	// AutoAccept skips the membership check for counters where identity
	// was verified some other way.
	AutoAccept bool
}

// ProcessOrder marks the order identified by a claim code as picked up.
func (s *OrderService) ProcessOrder(ctx context.Context, caller access.Caller, req ProcessRequest) (*models.Order, error) {
	ctx, span := startSpan(ctx, "OrderService.ProcessOrder", caller, attribute.Bool("order.auto_accept", req.AutoAccept))

	order, owner, err := s.processOrder(ctx, caller, req)
	if err = finish(ctx, span, "process_order", caller, err); err != nil {
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues("processed").Inc()
	zerolog.Ctx(ctx).Info().
		Int64("order_id", order.ID).
		Bool("auto_accept", req.AutoAccept).
		Int64("processed_by", caller.UserID).
		Msg("order processed")

	s.notifications.OrderProcessed(ctx, owner, order)
	return order, nil
}

func (s *OrderService) processOrder(ctx context.Context, caller access.Caller, req ProcessRequest) (*models.Order, *models.User, error) {
	if err := access.Require(caller.Role, access.ProcessOrder); err != nil {
		return nil, nil, err
	}

	code := claimcode.Normalize(req.ClaimCode)
	if code == "" {
		return nil, nil, apperr.Invalid("claim code is required")
	}
	if !claimcode.Valid(code) {
		return nil, nil, apperr.NotFound("invalid claim code")
	}

	var (
		order *models.Order
		owner *models.User
	)

	err := database.WithRetry(ctx, s.db, s.txOptions, func(tx *sql.Tx) error {
		locked, err := store.LockOrderByClaimCode(ctx, tx, code)
		if errors.Is(err, database.ErrOrderNotFound) {
			return apperr.NotFound("invalid claim code")
		}
		if err != nil {
			return err
		}

		if locked.IsProcessed {
			return apperr.InvalidState("already processed")
		}
		if locked.IsCancelled {
			return apperr.InvalidState("cannot process a cancelled order")
		}

		if owner, err = store.GetUserByMemberProfile(ctx, tx, locked.MemberProfileID); err != nil {
			return err
		}
		if !req.AutoAccept && req.MembershipID != owner.ID {
			return apperr.InvalidState("membership ID does not match order owner")
		}

		if err := store.MarkOrderProcessed(ctx, tx, locked.ID); err != nil {
			if errors.Is(err, database.ErrOrderStateChanged) {
				return apperr.InvalidState("already processed")
			}
			return err
		}

		order, err = store.GetOrder(ctx, tx, locked.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	return order, owner, nil
}

// GetOrder returns an order to its owner or to staff and admins.
func (s *OrderService) GetOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, error) {
	ctx, span := startSpan(ctx, "OrderService.GetOrder", caller, attribute.Int64("order.id", orderID))

	order, err := s.getOrder(ctx, caller, orderID)
	if err = finish(ctx, span, "get_order", caller, err); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) getOrder(ctx context.Context, caller access.Caller, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if errors.Is(err, database.ErrOrderNotFound) {
		return nil, apperr.NotFound("order %d not found", orderID)
	}
	if err != nil {
		return nil, err
	}

	if caller.Can(access.ViewAnyOrder) {
		return order, nil
	}

	forbidden := apperr.Forbidden("not permitted to view this order")
	if !caller.Can(access.ViewOwnOrders) {
		return nil, forbidden
	}

	profile, err := store.GetMemberProfileByUserID(ctx, s.db, caller.UserID, false)
	if errors.Is(err, database.ErrMemberProfileNotFound) {
		return nil, forbidden
	}
	if err != nil {
		return nil, err
	}
	if profile.ID != order.MemberProfileID {
		return nil, forbidden
	}

	return order, nil
}

// ListOwnOrders pages through the caller's orders, newest first.
func (s *OrderService) ListOwnOrders(ctx context.Context, caller access.Caller, cursor string, limit int) (*store.CursorPage, error) {
	ctx, span := startSpan(ctx, "OrderService.ListOwnOrders", caller)

	page, err := s.listOwnOrders(ctx, caller, cursor, limit)
	if err = finish(ctx, span, "list_own_orders", caller, err); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *OrderService) listOwnOrders(ctx context.Context, caller access.Caller, cursor string, limit int) (*store.CursorPage, error) {
	if err := access.Require(caller.Role, access.ViewOwnOrders); err != nil {
		return nil, err
	}
	if _, err := store.DecodeCursor(cursor); err != nil {
		return nil, apperr.Invalid("invalid cursor")
	}
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return nil, err
	}

	return store.ListMemberOrdersCursor(ctx, s.db, profile.ID, cursor, limit)
}

// ListAllOrders pages through every order for staff. A nil processed
// returns all orders, true only processed ones, false only pending ones.
func (s *OrderService) ListAllOrders(ctx context.Context, caller access.Caller, processed *bool, page, pageSize int) (*store.OffsetPage, error) {
	ctx, span := startSpan(ctx, "OrderService.ListAllOrders", caller)

	result, err := s.listAllOrders(ctx, caller, processed, page, pageSize)
	if err = finish(ctx, span, "list_all_orders", caller, err); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *OrderService) listAllOrders(ctx context.Context, caller access.Caller, processed *bool, page, pageSize int) (*store.OffsetPage, error) {
	if err := access.Require(caller.Role, access.ListAllOrders); err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize)
	result, err := store.ListOrders(ctx, s.db, processed, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list all orders: %w", err)
	}
	return result, nil
}

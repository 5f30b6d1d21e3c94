package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/discount"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Cart is the priced view of a member's cart. The discount is a preview
// computed from the member's current order count.
type Cart struct {
	Items               []models.CartItem `json:"items"`
	TotalQuantity       int               `json:"totalQuantity"`
	Subtotal            decimal.Decimal   `json:"subtotal"`
	DiscountPercentage  decimal.Decimal   `json:"discountPercentage"`
	DiscountDescription string            `json:"discountDescription"`
	Total               decimal.Decimal   `json:"total"`
}

type CartService struct {
	db          *sql.DB
	maxQuantity int
}

func NewCartService(db *sql.DB, maxQuantity int) *CartService {
	return &CartService{db: db, maxQuantity: maxQuantity}
}

func (s *CartService) GetCart(ctx context.Context, caller access.Caller) (*Cart, error) {
	ctx, span := startSpan(ctx, "CartService.GetCart", caller)

	cart, err := s.getCart(ctx, caller)
	if err = finish(ctx, span, "get_cart", caller, err); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *CartService) getCart(ctx context.Context, caller access.Caller) (*Cart, error) {
	if err := access.Require(caller.Role, access.ManageCart); err != nil {
		return nil, err
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return nil, err
	}

	items, err := store.GetCart(ctx, s.db, profile.ID)
	if err != nil {
		return nil, err
	}

	return priceCart(items, profile.TotalOrders), nil
}

func priceCart(items []models.CartItem, priorOrders int) *Cart {
	cart := &Cart{Items: items, Subtotal: decimal.Zero}
	for _, item := range items {
		cart.TotalQuantity += item.Quantity
		if item.Book != nil {
			cart.Subtotal = cart.Subtotal.Add(item.Book.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	disc := discount.Compute(cart.TotalQuantity, priorOrders)
	cart.DiscountPercentage = disc.Percentage
	cart.DiscountDescription = disc.Description
	cart.Total = discount.Apply(cart.Subtotal, disc.Percentage)
	return cart
}

// AddToCart adds quantity copies of a book, merging with an existing line.
// The line never exceeds the configured maximum.
func (s *CartService) AddToCart(ctx context.Context, caller access.Caller, bookID int64, quantity int) (*models.CartItem, error) {
	ctx, span := startSpan(ctx, "CartService.AddToCart", caller, attribute.Int64("book.id", bookID))

	item, err := s.addToCart(ctx, caller, bookID, quantity)
	if err = finish(ctx, span, "add_to_cart", caller, err); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CartService) addToCart(ctx context.Context, caller access.Caller, bookID int64, quantity int) (*models.CartItem, error) {
	if err := access.Require(caller.Role, access.ManageCart); err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, apperr.Invalid("quantity must be at least 1")
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return nil, err
	}

	book, err := store.GetBook(ctx, s.db, bookID)
	if errors.Is(err, database.ErrBookNotFound) {
		return nil, apperr.NotFound("book %d not found", bookID)
	}
	if err != nil {
		return nil, err
	}

	item, err := store.AddCartItem(ctx, s.db, profile.ID, book.ID, quantity, s.maxQuantity)
	if err != nil {
		return nil, err
	}
	item.Book = book
	return item, nil
}

func (s *CartService) UpdateCartItem(ctx context.Context, caller access.Caller, itemID int64, quantity int) (*models.CartItem, error) {
	ctx, span := startSpan(ctx, "CartService.UpdateCartItem", caller, attribute.Int64("cart_item.id", itemID))

	item, err := s.updateCartItem(ctx, caller, itemID, quantity)
	if err = finish(ctx, span, "update_cart_item", caller, err); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *CartService) updateCartItem(ctx context.Context, caller access.Caller, itemID int64, quantity int) (*models.CartItem, error) {
	if err := access.Require(caller.Role, access.ManageCart); err != nil {
		return nil, err
	}
	if quantity < 1 || quantity > s.maxQuantity {
		return nil, apperr.Invalid("quantity must be between 1 and %d", s.maxQuantity)
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return nil, err
	}

	item, err := store.UpdateCartItem(ctx, s.db, profile.ID, itemID, quantity)
	if errors.Is(err, database.ErrCartItemNotFound) {
		return nil, apperr.NotFound("cart item %d not found", itemID)
	}
	return item, err
}

func (s *CartService) RemoveFromCart(ctx context.Context, caller access.Caller, itemID int64) error {
	ctx, span := startSpan(ctx, "CartService.RemoveFromCart", caller, attribute.Int64("cart_item.id", itemID))

	err := s.removeFromCart(ctx, caller, itemID)
	return finish(ctx, span, "remove_from_cart", caller, err)
}

func (s *CartService) removeFromCart(ctx context.Context, caller access.Caller, itemID int64) error {
	if err := access.Require(caller.Role, access.ManageCart); err != nil {
		return err
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return err
	}

	err = store.DeleteCartItem(ctx, s.db, profile.ID, itemID)
	if errors.Is(err, database.ErrCartItemNotFound) {
		return apperr.NotFound("cart item %d not found", itemID)
	}
	return err
}

// ClearCart empties the caller's cart and reports how many lines it removed.
func (s *CartService) ClearCart(ctx context.Context, caller access.Caller) (int64, error) {
	ctx, span := startSpan(ctx, "CartService.ClearCart", caller)

	removed, err := s.clearCart(ctx, caller)
	if err = finish(ctx, span, "clear_cart", caller, err); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *CartService) clearCart(ctx context.Context, caller access.Caller) (int64, error) {
	if err := access.Require(caller.Role, access.ManageCart); err != nil {
		return 0, err
	}

	profile, err := memberProfile(ctx, s.db, caller.UserID, false)
	if err != nil {
		return 0, err
	}

	return store.ClearCart(ctx, s.db, profile.ID)
}

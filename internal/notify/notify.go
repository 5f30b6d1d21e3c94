// Package notify delivers order lifecycle messages to customers.
//
// Delivery is best-effort: a Notifier may fail, block or panic without
// affecting the order that triggered it. Dispatcher enforces that by running
// every send asynchronously under its own timeout.
package notify

import (
	"context"

	"github.com/safar/go-bookstore/internal/models"
)

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, user *models.User, claimCode, itemizedHTML string) error
	SendOrderProcessed(ctx context.Context, user *models.User, order *models.Order) error
	SendOrderCancelled(ctx context.Context, user *models.User, order *models.Order) error
}

const (
	TypeOrderConfirmation = "order_confirmation"
	TypeOrderProcessed    = "order_processed"
	TypeOrderCancelled    = "order_cancelled"
)

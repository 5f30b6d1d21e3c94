package service_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/safar/go-bookstore/internal/access"
	"github.com/safar/go-bookstore/internal/claimcode"
	"github.com/safar/go-bookstore/internal/feed"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/service"
	"github.com/safar/go-bookstore/internal/testutil"
	"github.com/stretchr/testify/require"
)

type notification struct {
	event   string
	userID  int64
	orderID int64
}

type recordingNotifications struct {
	mu   sync.Mutex
	sent []notification
}

func (r *recordingNotifications) record(event string, user *models.User, order *models.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, notification{event: event, userID: user.ID, orderID: order.ID})
}

func (r *recordingNotifications) OrderConfirmed(ctx context.Context, user *models.User, order *models.Order) {
	r.record("confirmed", user, order)
}

func (r *recordingNotifications) OrderProcessed(ctx context.Context, user *models.User, order *models.Order) {
	r.record("processed", user, order)
}

func (r *recordingNotifications) OrderCancelled(ctx context.Context, user *models.User, order *models.Order) {
	r.record("cancelled", user, order)
}

func (r *recordingNotifications) events() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.sent...)
}

type recordingFeed struct {
	mu     sync.Mutex
	events []feed.Event
}

func (r *recordingFeed) Publish(ctx context.Context, events ...feed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

type env struct {
	db            *sql.DB
	orders        *service.OrderService
	carts         *service.CartService
	notifications *recordingNotifications
	feed          *recordingFeed
}

func newEnv(t *testing.T) *env {
	t.Helper()

	db := testutil.NewPostgres(t)
	codes, err := claimcode.NewGenerator(claimcode.DefaultLength)
	require.NoError(t, err)

	e := &env{
		db:            db,
		notifications: &recordingNotifications{},
		feed:          &recordingFeed{},
		carts:         service.NewCartService(db, 99),
	}
	e.orders = service.NewOrderService(db, codes, e.notifications, e.feed)
	return e
}

func callerOf(u *models.User) access.Caller {
	return access.Caller{UserID: u.ID, Role: u.Role}
}

package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/service"
	"github.com/safar/go-bookstore/internal/store"
	"github.com/safar/go-bookstore/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireKind(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, kind, appErr.Kind, appErr.Message)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func profileOf(t *testing.T, e *env, m testutil.Member) *models.MemberProfile {
	t.Helper()
	profile, err := store.GetMemberProfileByUserID(context.Background(), e.db, m.User.ID, false)
	require.NoError(t, err)
	return profile
}

func TestCreateAndProcessOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	require.NoError(t, store.SetTotalOrders(ctx, e.db, member.Profile.ID, 10))

	book := testutil.CreateBook(t, e.db, "10.00", 20)
	testutil.AddToCart(t, e.db, member, book.ID, 5)

	order, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("50.00")), order.Subtotal.String())
	assert.True(t, order.DiscountPercentage.Equal(decimal.RequireFromString("0.15")), order.DiscountPercentage.String())
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("42.50")), order.TotalAmount.String())
	assert.Equal(t, "5% volume discount, 10% loyalty discount", order.DiscountDescription)
	assert.Len(t, order.ClaimCode, 10)
	assert.False(t, order.IsProcessed)
	assert.False(t, order.IsCancelled)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 5, order.Items[0].Quantity)
	assert.True(t, order.Items[0].UnitPrice.Equal(book.Price))
	assert.True(t, order.Items[0].LineTotal.Equal(order.Subtotal))

	after := testutil.GetBook(t, e.db, book.ID)
	assert.Equal(t, 15, after.InventoryCount)
	assert.Equal(t, book.TotalSold+5, after.TotalSold)
	assert.Equal(t, 11, profileOf(t, e, member).TotalOrders)

	cart, err := e.carts.GetCart(ctx, callerOf(member.User))
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	require.Len(t, e.feed.events, 1)
	assert.Equal(t, book.ID, e.feed.events[0].BookID)
	assert.Equal(t, 5, e.feed.events[0].Quantity)

	processed, err := e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{
		ClaimCode:    strings.ToLower(order.ClaimCode),
		MembershipID: member.User.ID,
	})
	require.NoError(t, err)
	assert.True(t, processed.IsProcessed)
	assert.NotNil(t, processed.ProcessedAt)

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{
		ClaimCode:    order.ClaimCode,
		MembershipID: member.User.ID,
	})
	requireKind(t, err, apperr.KindInvalidState, "already processed")

	assert.Equal(t, []notification{
		{event: "confirmed", userID: member.User.ID, orderID: order.ID},
		{event: "processed", userID: member.User.ID, orderID: order.ID},
	}, e.notifications.events())
}

func TestCreateOrderRequiresProfileAndItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	noProfile, err := store.CreateUser(ctx, e.db, "orphan@example.com", "Orphan", models.RoleMember)
	require.NoError(t, err)
	_, err = e.orders.CreateOrder(ctx, callerOf(noProfile), "")
	requireKind(t, err, apperr.KindNotFound, "member profile missing")

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	_, err = e.orders.CreateOrder(ctx, callerOf(member.User), "")
	requireKind(t, err, apperr.KindInvalidState, "cart is empty")

	admin := testutil.CreateUser(t, e.db, models.RoleAdmin)
	_, err = e.orders.CreateOrder(ctx, callerOf(admin.User), "")
	requireKind(t, err, apperr.KindForbidden, "")

	testutil.AddToCart(t, e.db, member, testutil.CreateBook(t, e.db, "3.00", 5).ID, 1)
	_, err = e.orders.CreateOrder(ctx, callerOf(member.User), strings.Repeat("x", service.MaxNoteLength+1))
	requireKind(t, err, apperr.KindInvalid, "")
	_, err = e.orders.CreateOrder(ctx, callerOf(member.User), strings.Repeat("é", service.MaxNoteLength+1))
	requireKind(t, err, apperr.KindInvalid, "")

	// The limit counts characters, not bytes.
	note := strings.Repeat("é", service.MaxNoteLength)
	order, err := e.orders.CreateOrder(ctx, callerOf(member.User), note)
	require.NoError(t, err)
	assert.Equal(t, note, order.Note)
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	plenty := testutil.CreateBook(t, e.db, "8.00", 50)
	scarce := testutil.CreateBook(t, e.db, "9.00", 2)
	testutil.AddToCart(t, e.db, member, plenty.ID, 4)
	testutil.AddToCart(t, e.db, member, scarce.ID, 3)

	_, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	requireKind(t, err, apperr.KindInvalidState, "insufficient stock for "+scarce.Title)

	assert.Equal(t, 50, testutil.GetBook(t, e.db, plenty.ID).InventoryCount)
	assert.Equal(t, 2, testutil.GetBook(t, e.db, scarce.ID).InventoryCount)
	assert.Equal(t, 0, profileOf(t, e, member).TotalOrders)

	cart, err := e.carts.GetCart(ctx, callerOf(member.User))
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Empty(t, e.notifications.events())
	assert.Empty(t, e.feed.events)
}

func TestCancelOrderRestoresInventory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	a := testutil.CreateBook(t, e.db, "12.50", 10)
	b := testutil.CreateBook(t, e.db, "4.00", 3)
	testutil.AddToCart(t, e.db, member, a.ID, 2)
	testutil.AddToCart(t, e.db, member, b.ID, 3)

	order, err := e.orders.CreateOrder(ctx, callerOf(member.User), "gift wrap please")
	require.NoError(t, err)
	assert.Equal(t, "gift wrap please", order.Note)
	assert.Equal(t, 0, testutil.GetBook(t, e.db, b.ID).InventoryCount)

	cancelled, err := e.orders.CancelOrder(ctx, callerOf(member.User), order.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.IsCancelled)
	assert.NotNil(t, cancelled.CancelledAt)

	for _, before := range []*models.Book{a, b} {
		after := testutil.GetBook(t, e.db, before.ID)
		assert.Equal(t, before.InventoryCount, after.InventoryCount)
		assert.Equal(t, before.TotalSold, after.TotalSold)
	}

	_, err = e.orders.CancelOrder(ctx, callerOf(member.User), order.ID)
	requireKind(t, err, apperr.KindInvalidState, "order already cancelled")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{
		ClaimCode:    order.ClaimCode,
		MembershipID: member.User.ID,
	})
	requireKind(t, err, apperr.KindInvalidState, "cannot process a cancelled order")

	assert.Equal(t, 10, testutil.GetBook(t, e.db, a.ID).InventoryCount)

	events := e.notifications.events()
	require.Len(t, events, 2)
	assert.Equal(t, "cancelled", events[1].event)
}

// Cancelling does not take back the order credit: a member can reach the
// loyalty threshold through orders that were later cancelled.
func TestCancelledOrdersStillCountTowardLoyalty(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	require.NoError(t, store.SetTotalOrders(ctx, e.db, member.Profile.ID, 9))
	book := testutil.CreateBook(t, e.db, "20.00", 10)

	testutil.AddToCart(t, e.db, member, book.ID, 1)
	first, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	require.NoError(t, err)
	assert.True(t, first.DiscountPercentage.IsZero())

	_, err = e.orders.CancelOrder(ctx, callerOf(member.User), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, profileOf(t, e, member).TotalOrders)

	testutil.AddToCart(t, e.db, member, book.ID, 1)
	second, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	require.NoError(t, err)
	assert.True(t, second.DiscountPercentage.Equal(decimal.RequireFromString("0.10")))
	assert.Equal(t, "10% loyalty discount", second.DiscountDescription)
	assert.True(t, second.TotalAmount.Equal(decimal.RequireFromString("18.00")))
}

func TestCancelOrderOwnershipAndState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, e.db, models.RoleMember)
	other := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	book := testutil.CreateBook(t, e.db, "5.00", 10)
	testutil.AddToCart(t, e.db, owner, book.ID, 1)

	order, err := e.orders.CreateOrder(ctx, callerOf(owner.User), "")
	require.NoError(t, err)

	_, err = e.orders.CancelOrder(ctx, callerOf(other.User), order.ID)
	requireKind(t, err, apperr.KindForbidden, "not permitted to cancel this order")

	_, err = e.orders.CancelOrder(ctx, callerOf(owner.User), order.ID+1000)
	requireKind(t, err, apperr.KindNotFound, "")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: order.ClaimCode, AutoAccept: true})
	require.NoError(t, err)

	_, err = e.orders.CancelOrder(ctx, callerOf(owner.User), order.ID)
	requireKind(t, err, apperr.KindInvalidState, "cannot cancel a processed order")
	assert.Equal(t, 9, testutil.GetBook(t, e.db, book.ID).InventoryCount)
}

func TestProcessOrderVerifiesMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin)
	testutil.AddToCart(t, e.db, member, testutil.CreateBook(t, e.db, "7.00", 4).ID, 1)

	order, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	require.NoError(t, err)

	_, err = e.orders.ProcessOrder(ctx, callerOf(member.User), service.ProcessRequest{ClaimCode: order.ClaimCode, MembershipID: member.User.ID})
	requireKind(t, err, apperr.KindForbidden, "")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: "", MembershipID: member.User.ID})
	requireKind(t, err, apperr.KindInvalid, "")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: "ZZZZZZZZZZ", MembershipID: member.User.ID})
	requireKind(t, err, apperr.KindNotFound, "invalid claim code")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: order.ClaimCode, MembershipID: staff.User.ID})
	requireKind(t, err, apperr.KindInvalidState, "membership ID does not match order owner")

	processed, err := e.orders.ProcessOrder(ctx, callerOf(admin.User), service.ProcessRequest{ClaimCode: order.ClaimCode, AutoAccept: true})
	require.NoError(t, err)
	assert.True(t, processed.IsProcessed)
}

func TestGetOrderAccess(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	owner := testutil.CreateUser(t, e.db, models.RoleMember)
	other := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin)
	testutil.AddToCart(t, e.db, owner, testutil.CreateBook(t, e.db, "7.00", 4).ID, 2)

	order, err := e.orders.CreateOrder(ctx, callerOf(owner.User), "")
	require.NoError(t, err)

	for _, m := range []testutil.Member{owner, staff, admin} {
		got, err := e.orders.GetOrder(ctx, callerOf(m.User), order.ID)
		require.NoError(t, err, m.User.Role)
		assert.Equal(t, order.ClaimCode, got.ClaimCode)
		assert.Len(t, got.Items, 1)
	}

	_, err = e.orders.GetOrder(ctx, callerOf(other.User), order.ID)
	requireKind(t, err, apperr.KindForbidden, "")

	_, err = e.orders.GetOrder(ctx, callerOf(owner.User), order.ID+1000)
	requireKind(t, err, apperr.KindNotFound, "")
}

func TestListOrders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	book := testutil.CreateBook(t, e.db, "1.00", 100)

	var orders []*models.Order
	for i := 0; i < 3; i++ {
		testutil.AddToCart(t, e.db, member, book.ID, 1)
		order, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
		require.NoError(t, err)
		orders = append(orders, order)
	}

	_, err := e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: orders[0].ClaimCode, AutoAccept: true})
	require.NoError(t, err)

	own, err := e.orders.ListOwnOrders(ctx, callerOf(member.User), "", 2)
	require.NoError(t, err)
	assert.True(t, own.HasMore)
	assert.Len(t, own.Items, 2)

	_, err = e.orders.ListOwnOrders(ctx, callerOf(member.User), "!!not-a-cursor", 2)
	requireKind(t, err, apperr.KindInvalid, "")

	_, err = e.orders.ListAllOrders(ctx, callerOf(member.User), nil, 1, 10)
	requireKind(t, err, apperr.KindForbidden, "")

	pending := false
	all, err := e.orders.ListAllOrders(ctx, callerOf(staff.User), &pending, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.Total)
	assert.Equal(t, service.DefaultPageSize, all.PageSize)
}

func TestConcurrentOrdersForLastCopy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	book := testutil.CreateBook(t, e.db, "30.00", 1)

	concurrency := 4
	members := make([]testutil.Member, concurrency)
	for i := range members {
		members[i] = testutil.CreateUser(t, e.db, models.RoleMember)
		testutil.AddToCart(t, e.db, members[i], book.ID, 1)
	}

	var wg sync.WaitGroup
	results := make(chan error, concurrency)
	for _, m := range members {
		wg.Add(1)
		go func(m testutil.Member) {
			defer wg.Done()
			_, err := e.orders.CreateOrder(ctx, callerOf(m.User), "")
			results <- err
		}(m)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindInvalidState), err.Error())
	}

	assert.Equal(t, 1, successes)
	after := testutil.GetBook(t, e.db, book.ID)
	assert.Equal(t, 0, after.InventoryCount)
	assert.Equal(t, 1, after.TotalSold)
}

func TestConcurrentProcessingSucceedsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	testutil.AddToCart(t, e.db, member, testutil.CreateBook(t, e.db, "6.00", 3).ID, 1)

	order, err := e.orders.CreateOrder(ctx, callerOf(member.User), "")
	require.NoError(t, err)

	concurrency := 8
	var wg sync.WaitGroup
	results := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{
				ClaimCode:    order.ClaimCode,
				MembershipID: member.User.ID,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		requireKind(t, err, apperr.KindInvalidState, "already processed")
	}
	assert.Equal(t, 1, successes)

	processed := 0
	for _, n := range e.notifications.events() {
		if n.event == "processed" {
			processed++
		}
	}
	assert.Equal(t, 1, processed)
}

package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/service"
	"github.com/safar/go-bookstore/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewsRequireCollectedPurchase(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	reviews := service.NewReviewService(e.db)

	member := testutil.CreateUser(t, e.db, models.RoleMember)
	staff := testutil.CreateUser(t, e.db, models.RoleStaff)
	book := testutil.CreateBook(t, e.db, "11.00", 5)
	caller := callerOf(member.User)

	_, err := reviews.CreateReview(ctx, caller, book.ID, 5, "great")
	requireKind(t, err, apperr.KindForbidden, "purchase required to review")

	testutil.AddToCart(t, e.db, member, book.ID, 1)
	order, err := e.orders.CreateOrder(ctx, caller, "")
	require.NoError(t, err)

	// Ordered but not yet picked up.
	_, err = reviews.CreateReview(ctx, caller, book.ID, 5, "great")
	requireKind(t, err, apperr.KindForbidden, "purchase required to review")

	_, err = e.orders.ProcessOrder(ctx, callerOf(staff.User), service.ProcessRequest{ClaimCode: order.ClaimCode, MembershipID: member.User.ID})
	require.NoError(t, err)

	_, err = reviews.CreateReview(ctx, caller, book.ID, 6, "off the scale")
	requireKind(t, err, apperr.KindInvalid, "")

	_, err = reviews.CreateReview(ctx, caller, book.ID, 5, strings.Repeat("本", service.MaxCommentLength+1))
	requireKind(t, err, apperr.KindInvalid, "")

	comment := strings.Repeat("本", service.MaxCommentLength)
	review, err := reviews.CreateReview(ctx, caller, book.ID, 5, comment)
	require.NoError(t, err)
	assert.Equal(t, 5, review.Rating)

	_, err = reviews.CreateReview(ctx, caller, book.ID, 4, "second thoughts")
	requireKind(t, err, apperr.KindInvalidState, "")

	_, err = reviews.CreateReview(ctx, callerOf(staff.User), book.ID, 4, "staff opinion")
	requireKind(t, err, apperr.KindForbidden, "")

	list, err := reviews.ListReviews(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, comment, list[0].Comment)

	_, err = reviews.ListReviews(ctx, book.ID+1000)
	requireKind(t, err, apperr.KindNotFound, "")
}

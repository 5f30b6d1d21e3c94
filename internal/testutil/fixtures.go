package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
	"github.com/shopspring/decimal"
)

var seq atomic.Int64

func next() int64 { return seq.Add(1) }

// Member is a member-role user together with their purchasing profile.
type Member struct {
	User    *models.User
	Profile *models.MemberProfile
}

// CreateUser inserts a user with the given role. Member and staff users also
// get a member profile, as they can both place orders.
func CreateUser(t *testing.T, db *sql.DB, role models.Role) Member {
	t.Helper()
	ctx := context.Background()

	n := next()
	user, err := store.CreateUser(ctx, db, fmt.Sprintf("%s%d@example.com", role, n), fmt.Sprintf("%s %d", role, n), role)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}

	m := Member{User: user}
	if role == models.RoleAdmin {
		return m
	}

	if m.Profile, err = store.CreateMemberProfile(ctx, db, user.ID); err != nil {
		t.Fatalf("Create member profile: %v", err)
	}
	return m
}

func CreateBook(t *testing.T, db *sql.DB, price string, inventory int) *models.Book {
	t.Helper()

	n := next()
	book, err := store.CreateBook(context.Background(), db, store.CreateBookParams{
		ISBN:           fmt.Sprintf("978-0-%06d", n),
		Title:          fmt.Sprintf("Book %d", n),
		Author:         "Test Author",
		Price:          decimal.RequireFromString(price),
		InventoryCount: inventory,
	})
	if err != nil {
		t.Fatalf("Create book: %v", err)
	}
	return book
}

func GetBook(t *testing.T, db *sql.DB, id int64) *models.Book {
	t.Helper()

	book, err := store.GetBook(context.Background(), db, id)
	if err != nil {
		t.Fatalf("Get book: %v", err)
	}
	return book
}

func AddToCart(t *testing.T, db *sql.DB, m Member, bookID int64, quantity int) {
	t.Helper()

	if _, err := store.AddCartItem(context.Background(), db, m.Profile.ID, bookID, quantity, 99); err != nil {
		t.Fatalf("Add cart item: %v", err)
	}
}

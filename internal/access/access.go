// Package access decides which roles may invoke which operations.
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-bookstore/internal/apperr"
	"github.com/safar/go-bookstore/internal/database"
	"github.com/safar/go-bookstore/internal/models"
	"github.com/safar/go-bookstore/internal/store"
)

type Capability string

const (
	ManageCart    Capability = "cart:manage"
	CreateOrder   Capability = "order:create"
	CancelOrder   Capability = "order:cancel"
	ViewOwnOrders Capability = "order:view_own"
	ViewAnyOrder  Capability = "order:view_any"
	ProcessOrder  Capability = "order:process"
	ListAllOrders Capability = "order:list_all"
	ManageCatalog Capability = "catalog:manage"
	WriteReview   Capability = "review:write"
)

var capabilities = map[models.Role]map[Capability]bool{
	models.RoleMember: {
		ManageCart:    true,
		CreateOrder:   true,
		CancelOrder:   true,
		ViewOwnOrders: true,
		WriteReview:   true,
	},
	models.RoleStaff: {
		ManageCart:    true,
		CreateOrder:   true,
		CancelOrder:   true,
		ViewOwnOrders: true,
		ViewAnyOrder:  true,
		ProcessOrder:  true,
		ListAllOrders: true,
	},
	models.RoleAdmin: {
		ViewOwnOrders: true,
		ViewAnyOrder:  true,
		ProcessOrder:  true,
		ListAllOrders: true,
		ManageCatalog: true,
	},
}

func Can(role models.Role, c Capability) bool {
	return capabilities[role][c]
}

// Require returns a Forbidden error unless role holds the capability.
func Require(role models.Role, c Capability) error {
	if !Can(role, c) {
		return apperr.Forbidden("role %s is not permitted to perform %s", role, c)
	}
	return nil
}

// Caller is an authenticated user resolved from a request.
type Caller struct {
	UserID int64
	Role   models.Role
}

func (c Caller) Can(capability Capability) bool { return Can(c.Role, capability) }

// Policy resolves user ids to roles.
type Policy interface {
	RoleOf(ctx context.Context, userID int64) (models.Role, error)
}

type DBPolicy struct {
	db *sql.DB
}

func NewDBPolicy(db *sql.DB) *DBPolicy {
	return &DBPolicy{db: db}
}

func (p *DBPolicy) RoleOf(ctx context.Context, userID int64) (models.Role, error) {
	user, err := store.GetUser(ctx, p.db, userID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return "", apperr.Unauthenticated("unknown user")
		}
		return "", apperr.Unexpected("resolve role", err)
	}
	if !user.Role.Valid() {
		return "", apperr.Unexpected("resolve role", fmt.Errorf("user %d has invalid role %q", userID, user.Role))
	}
	return user.Role, nil
}

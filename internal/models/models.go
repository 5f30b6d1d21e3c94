package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int       `json:"version"`
}

// MemberProfile is the purchasing side of a user account. TotalOrders
// counts created orders and is never decremented by cancellation.
type MemberProfile struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	TotalOrders int       `json:"totalOrders"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Book struct {
	ID             int64           `json:"id"`
	ISBN           string          `json:"isbn"`
	Title          string          `json:"title"`
	Author         string          `json:"author"`
	Price          decimal.Decimal `json:"price"`
	InventoryCount int             `json:"inventoryCount"`
	TotalSold      int             `json:"totalSold"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Version        int             `json:"version"`
}

type CartItem struct {
	ID              int64     `json:"id"`
	MemberProfileID int64     `json:"memberProfileId"`
	BookID          int64     `json:"bookId"`
	Quantity        int       `json:"quantity"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	// Populated by cart reads that join books.
	Book *Book `json:"book,omitempty"`
}

type Order struct {
	ID                  int64           `json:"id"`
	MemberProfileID     int64           `json:"memberProfileId"`
	OrderDate           time.Time       `json:"orderDate"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	DiscountPercentage  decimal.Decimal `json:"discountPercentage"`
	DiscountDescription string          `json:"discountDescription"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`
	ClaimCode           string          `json:"claimCode"`
	Note                string          `json:"note,omitempty"`
	IsProcessed         bool            `json:"isProcessed"`
	IsCancelled         bool            `json:"isCancelled"`
	ProcessedAt         *time.Time      `json:"processedAt,omitempty"`
	CancelledAt         *time.Time      `json:"cancelledAt,omitempty"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	Items               []OrderItem     `json:"items,omitempty"`
}

// Terminal reports whether the order is processed or cancelled.
func (o *Order) Terminal() bool {
	return o.IsProcessed || o.IsCancelled
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"orderId"`
	BookID    int64           `json:"bookId"`
	Title     string          `json:"title,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type Review struct {
	ID              int64     `json:"id"`
	MemberProfileID int64     `json:"memberProfileId"`
	BookID          int64     `json:"bookId"`
	Rating          int       `json:"rating"`
	Comment         string    `json:"comment"`
	CreatedAt       time.Time `json:"createdAt"`
}

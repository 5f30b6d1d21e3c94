// Package discount computes the stacked percentage discount applied to an
// order. Components are additive: an order qualifying for both gets 15%
// off its subtotal, applied once.
package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	VolumeThreshold  = 5
	LoyaltyThreshold = 10
)

var (
	volumeRate  = decimal.RequireFromString("0.05")
	loyaltyRate = decimal.RequireFromString("0.10")
)

type Result struct {
	Percentage  decimal.Decimal
	Description string
}

// Compute returns the discount for an order of totalBooks units placed by a
// member who has already created priorOrders orders.
func Compute(totalBooks, priorOrders int) Result {
	pct := decimal.Zero
	var parts []string

	if totalBooks >= VolumeThreshold {
		pct = pct.Add(volumeRate)
		parts = append(parts, "5% volume discount")
	}
	if priorOrders >= LoyaltyThreshold {
		pct = pct.Add(loyaltyRate)
		parts = append(parts, "10% loyalty discount")
	}

	return Result{Percentage: pct, Description: strings.Join(parts, ", ")}
}

// Apply returns subtotal * (1 - pct), rounded half-up to cents.
func Apply(subtotal, pct decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(decimal.NewFromInt(1).Sub(pct)).Round(2)
}

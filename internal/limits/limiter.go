// Package limits enforces per-user purchase limits.
//
// A player hoarding tickets in one game concentrates the prize pool on a
// single wallet. This package caps both the ticket count and the total
// spend a user may accumulate in one game.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrTicketLimitExceeded is returned when a purchase would push a
	// user's ticket count in one game beyond the per-game maximum.
	ErrTicketLimitExceeded = errors.New("limits: per-game ticket limit exceeded")

	// ErrSpendLimitExceeded is returned when a purchase would push a
	// user's total spend in one game beyond the spend maximum.
	ErrSpendLimitExceeded = errors.New("limits: per-game spend limit exceeded")
)

// PurchaseLimiter enforces per-user, per-game purchase limits. Zero limits
// disable the corresponding check.
type PurchaseLimiter struct {
	// MaxTicketsPerGame is the maximum number of tickets one user may hold
	// in a single game.
	MaxTicketsPerGame int

	// MaxSpendPerGame is the maximum total debit one user may accumulate
	// buying tickets in a single game.
	MaxSpendPerGame decimal.Decimal
}

// NewPurchaseLimiter creates a limiter with the given caps.
func NewPurchaseLimiter(maxTickets int, maxSpend decimal.Decimal) *PurchaseLimiter {
	return &PurchaseLimiter{
		MaxTicketsPerGame: maxTickets,
		MaxSpendPerGame:   maxSpend,
	}
}

// CheckLimit validates whether one more purchase at the given price
// respects the limits, given the user's current holdings in the game.
// Returns nil if allowed, or an error describing the violation.
func (l *PurchaseLimiter) CheckLimit(heldTickets int, spent, price decimal.Decimal) error {
	if l.MaxTicketsPerGame > 0 && heldTickets+1 > l.MaxTicketsPerGame {
		return ErrTicketLimitExceeded
	}
	if l.MaxSpendPerGame.IsPositive() && spent.Add(price).GreaterThan(l.MaxSpendPerGame) {
		return ErrSpendLimitExceeded
	}
	return nil
}

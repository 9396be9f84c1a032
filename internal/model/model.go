// Package model defines the core domain types shared across the game engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Game statuses. Closed is terminal: no purchases, draws, or claims.
const (
	StatusOpen    = "open"
	StatusDrawing = "drawing"
	StatusClosed  = "closed"
)

// TicketNumbers is the 3×5 grid of a tambola ticket: three rows of five
// distinct numbers in 1..90, each row sorted ascending, each number drawn
// from one of the nine decade columns (1–9, 10–19, ..., 80–89).
type TicketNumbers [3][5]int

// Row returns one row of the grid as a slice.
func (n TicketNumbers) Row(i int) []int {
	row := n[i]
	return row[:]
}

// All returns the 15 numbers flattened row by row.
func (n TicketNumbers) All() []int {
	out := make([]int, 0, 15)
	for _, row := range n {
		out = append(out, row[:]...)
	}
	return out
}

// Game represents one tambola session. Financial counters are mutated only
// through the store's atomic operations.
type Game struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	MaxTickets      int             `json:"max_tickets" db:"max_tickets"`
	TicketsSold     int             `json:"tickets_sold" db:"tickets_sold"`
	TicketPrice     decimal.Decimal `json:"ticket_price" db:"ticket_price"`
	TotalCollection decimal.Decimal `json:"total_collection" db:"total_collection"`
	CommissionRate  decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	PrizePool       decimal.Decimal `json:"prize_pool" db:"prize_pool"` // totalCollection × (1 − commissionRate)
	DrawnNumbers    []int           `json:"drawn_numbers" db:"drawn_numbers"`
	Status          string          `json:"status" db:"status"`
	// AllowPurchaseWhileDrawing keeps ticket sales open during the drawing
	// phase when true. Closed games never accept purchases.
	AllowPurchaseWhileDrawing bool      `json:"allow_purchase_while_drawing" db:"allow_purchase_while_drawing"`
	CreatedAt                 time.Time `json:"created_at" db:"created_at"`
}

// PoolFor computes the prize pool for a given collection at this game's
// commission rate.
func (g *Game) PoolFor(collection decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return collection.Mul(one.Sub(g.CommissionRate))
}

// Ticket is one purchased ticket. Numbers are immutable after creation;
// ClaimedPrizes only grows.
type Ticket struct {
	ID            string        `json:"id" db:"id"`
	GameID        string        `json:"game_id" db:"game_id"`
	UserID        string        `json:"user_id" db:"user_id"`
	Numbers       TicketNumbers `json:"numbers" db:"numbers"`
	ClaimedPrizes []string      `json:"claimed_prizes" db:"claimed_prizes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// HasClaimed reports whether a prize tag has already been paid out on this
// ticket.
func (t *Ticket) HasClaimed(prizeType string) bool {
	for _, p := range t.ClaimedPrizes {
		if p == prizeType {
			return true
		}
	}
	return false
}

// User holds a wallet balance. The balance is never negative and is mutated
// only by the store's debit/credit primitives.
type User struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Wallet    decimal.Decimal `json:"wallet" db:"wallet"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Transaction types.
const (
	TxDebit  = "debit"
	TxCredit = "credit"
)

// Transaction is an immutable audit record of one wallet movement.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Type      string          `json:"type" db:"type"` // "debit" or "credit"
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Reason    string          `json:"reason" db:"reason"`
	GameID    string          `json:"game_id,omitempty" db:"game_id"`
	TicketID  string          `json:"ticket_id,omitempty" db:"ticket_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// Package store defines the persistence interface for the game engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The store is the economic ledger: wallets, per-game financial counters,
// drawn numbers, and claim flags are mutated only here, and each mutating
// operation is a single indivisible state transition. Preconditions are
// checked inside the transition, so a failed operation leaves no partial
// effects.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/model"
)

var (
	// ErrNotFound is returned when a game, ticket, or user does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrInsufficientFunds is returned when a purchase exceeds the buyer's
	// wallet balance.
	ErrInsufficientFunds = errors.New("store: insufficient wallet balance")

	// ErrGameFull is returned when every ticket of a game has been sold.
	ErrGameFull = errors.New("store: game is sold out")

	// ErrGameClosed is returned for purchases, draws, or claims against a
	// game that does not accept them in its current status.
	ErrGameClosed = errors.New("store: game is closed")

	// ErrAlreadyClaimed is returned when a prize has already been paid out
	// on a ticket.
	ErrAlreadyClaimed = errors.New("store: prize already claimed on this ticket")

	// ErrInvalidTransition is returned for a status change that is not
	// open→drawing, open→closed, or drawing→closed.
	ErrInvalidTransition = errors.New("store: invalid game status transition")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user with a zero wallet.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// CreditWallet atomically credits a wallet and records a credit
	// transaction. The entry point for the external checkout collaborator.
	CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*model.Transaction, error)

	// --- Games ---

	// CreateGame persists a new game.
	CreateGame(ctx context.Context, g *model.Game) error

	// GetGame retrieves a game by ID, drawn numbers included.
	GetGame(ctx context.Context, id string) (*model.Game, error)

	// ListGames returns all games, newest first.
	ListGames(ctx context.Context) ([]model.Game, error)

	// SetGameStatus applies an administrative transition. Closed is
	// terminal.
	SetGameStatus(ctx context.Context, id, status string) error

	// --- Atomic ledger operations ---

	// PurchaseTicket atomically debits the buyer by the game's ticket
	// price, increments ticketsSold, adds the price to totalCollection,
	// recomputes the pool, records a debit transaction, and persists the
	// ticket. Fails with ErrInsufficientFunds, ErrGameFull, or
	// ErrGameClosed before any mutation. The capacity check and increment
	// are one step: concurrent buyers cannot oversell.
	//
	// A non-nil limit is enforced inside the same transition, against the
	// buyer's holdings as of that instant, so concurrent purchases by one
	// user cannot slip past it. Fails with limits.ErrTicketLimitExceeded
	// or limits.ErrSpendLimitExceeded.
	PurchaseTicket(ctx context.Context, gameID, userID string, numbers model.TicketNumbers, limit *limits.PurchaseLimiter) (*model.Ticket, error)

	// SettleClaim atomically marks a prize claimed on a ticket, computes
	// floor(pool × fraction) from the pool at this instant, credits the
	// claimant, and records a credit transaction. Fails with
	// ErrAlreadyClaimed or ErrGameClosed. Rule evaluation happens before
	// this call; validity is monotone in the drawn sequence, so a claim
	// valid at evaluation time is still valid here.
	SettleClaim(ctx context.Context, ticketID, prizeType string) (decimal.Decimal, error)

	// AppendDrawnNumber appends a number to a game's draw ledger. Fails
	// with draw.ErrOutOfRange, draw.ErrDuplicate, or ErrGameClosed.
	AppendDrawnNumber(ctx context.Context, gameID string, n int) error

	// --- Tickets ---

	// GetTicket retrieves a ticket by ID.
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)

	// UserGameHoldings returns how many tickets a user holds in a game and
	// the total debited for them. Input to the purchase limiter.
	UserGameHoldings(ctx context.Context, gameID, userID string) (int, decimal.Decimal, error)

	// --- Transactions ---

	// GetTransactionsByUser returns a user's audit trail, oldest first.
	GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
//
// Only the plain read paths are cached. The atomic ledger operations always
// hit the primary: their precondition checks must see the authoritative
// state, never a cached one.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Users ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.cacheJSON(ctx, userKey(u.ID), u)
	return nil
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if s.readJSON(ctx, userKey(id), &u) {
		return &u, nil
	}

	user, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, userKey(id), user)
	return user, nil
}

func (s *CachedStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	txn, err := s.primary.CreditWallet(ctx, userID, amount, reason)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, userKey(userID))
	return txn, nil
}

// --- Games ---

func (s *CachedStore) CreateGame(ctx context.Context, g *model.Game) error {
	if err := s.primary.CreateGame(ctx, g); err != nil {
		return err
	}
	s.cacheJSON(ctx, gameKey(g.ID), g)
	return nil
}

func (s *CachedStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	var g model.Game
	if s.readJSON(ctx, gameKey(id), &g) {
		return &g, nil
	}

	game, err := s.primary.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, gameKey(id), game)
	return game, nil
}

func (s *CachedStore) ListGames(ctx context.Context) ([]model.Game, error) {
	return s.primary.ListGames(ctx)
}

func (s *CachedStore) SetGameStatus(ctx context.Context, id, status string) error {
	if err := s.primary.SetGameStatus(ctx, id, status); err != nil {
		return err
	}
	s.rdb.Del(ctx, gameKey(id))
	return nil
}

// --- Atomic ledger operations (primary only, cache invalidated) ---

func (s *CachedStore) PurchaseTicket(ctx context.Context, gameID, userID string, numbers model.TicketNumbers, limit *limits.PurchaseLimiter) (*model.Ticket, error) {
	ticket, err := s.primary.PurchaseTicket(ctx, gameID, userID, numbers, limit)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, gameKey(gameID), userKey(userID))
	s.cacheJSON(ctx, ticketKey(ticket.ID), ticket)
	return ticket, nil
}

func (s *CachedStore) SettleClaim(ctx context.Context, ticketID, prizeType string) (decimal.Decimal, error) {
	amount, err := s.primary.SettleClaim(ctx, ticketID, prizeType)
	if err != nil {
		return decimal.Zero, err
	}
	// The settled ticket carries a new claim flag and the claimant a new
	// balance; drop both so the next read re-populates.
	if ticket, err := s.primary.GetTicket(ctx, ticketID); err == nil {
		s.rdb.Del(ctx, ticketKey(ticketID), userKey(ticket.UserID))
	} else {
		s.rdb.Del(ctx, ticketKey(ticketID))
	}
	return amount, nil
}

func (s *CachedStore) AppendDrawnNumber(ctx context.Context, gameID string, n int) error {
	if err := s.primary.AppendDrawnNumber(ctx, gameID, n); err != nil {
		return err
	}
	s.rdb.Del(ctx, gameKey(gameID))
	return nil
}

// --- Tickets ---

func (s *CachedStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	if s.readJSON(ctx, ticketKey(id), &t) {
		return &t, nil
	}

	ticket, err := s.primary.GetTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, ticketKey(id), ticket)
	return ticket, nil
}

func (s *CachedStore) UserGameHoldings(ctx context.Context, gameID, userID string) (int, decimal.Decimal, error) {
	return s.primary.UserGameHoldings(ctx, gameID, userID)
}

// --- Transactions ---

func (s *CachedStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.GetTransactionsByUser(ctx, userID)
}

// --- Cache helpers ---

func (s *CachedStore) readJSON(ctx context.Context, key string, dest any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func gameKey(id string) string   { return fmt.Sprintf("game:%s", id) }
func ticketKey(id string) string { return fmt.Sprintf("ticket:%s", id) }
func userKey(id string) string   { return fmt.Sprintf("user:%s", id) }

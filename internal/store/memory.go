package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/draw"
	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/model"
	"github.com/tambola/game-engine/internal/prize"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// One store-wide mutex guards every atomic operation, which trivially
// linearizes all transitions on wallets, game counters, and claim flags.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*model.User
	games   map[string]*gameRecord
	tickets map[string]*ticketRecord
	txns    []model.Transaction
}

type gameRecord struct {
	game  model.Game
	drawn *draw.Ledger
}

type ticketRecord struct {
	ticket model.Ticket
	claims prize.ClaimSet
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*model.User),
		games:   make(map[string]*gameRecord),
		tickets: make(map[string]*ticketRecord),
	}
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) CreditWallet(_ context.Context, userID string, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	u.Wallet = u.Wallet.Add(amount)

	txn := model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TxCredit,
		Amount:    amount,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	s.txns = append(s.txns, txn)
	return &txn, nil
}

// --- Games ---

func (s *MemoryStore) CreateGame(_ context.Context, g *model.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.games[g.ID]; exists {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	ledger, err := draw.NewLedger(g.DrawnNumbers)
	if err != nil {
		return err
	}
	cp := *g
	cp.DrawnNumbers = nil
	s.games[g.ID] = &gameRecord{game: cp, drawn: ledger}
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (*model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotGame(id)
}

// snapshotGame copies a game with its drawn numbers. Caller holds s.mu.
func (s *MemoryStore) snapshotGame(id string) (*model.Game, error) {
	rec, ok := s.games[id]
	if !ok {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	cp := rec.game
	cp.DrawnNumbers = rec.drawn.Snapshot()
	return &cp, nil
}

func (s *MemoryStore) ListGames(_ context.Context) ([]model.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	games := make([]model.Game, 0, len(s.games))
	for id := range s.games {
		g, _ := s.snapshotGame(id)
		games = append(games, *g)
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].CreatedAt.After(games[j].CreatedAt)
	})
	return games, nil
}

func (s *MemoryStore) SetGameStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[id]
	if !ok {
		return fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	if rec.game.Status == model.StatusClosed {
		return ErrGameClosed
	}
	if !validTransition(rec.game.Status, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, rec.game.Status, status)
	}
	rec.game.Status = status
	return nil
}

// validTransition permits forward moves only: open → drawing → closed.
func validTransition(from, to string) bool {
	switch from {
	case model.StatusOpen:
		return to == model.StatusDrawing || to == model.StatusClosed
	case model.StatusDrawing:
		return to == model.StatusClosed
	}
	return false
}

// purchasesAccepted reports whether a game accepts ticket sales in its
// current status.
func purchasesAccepted(g *model.Game) bool {
	switch g.Status {
	case model.StatusOpen:
		return true
	case model.StatusDrawing:
		return g.AllowPurchaseWhileDrawing
	}
	return false
}

// --- Atomic ledger operations ---

func (s *MemoryStore) PurchaseTicket(_ context.Context, gameID, userID string, numbers model.TicketNumbers, limit *limits.PurchaseLimiter) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	// All preconditions before any mutation.
	if !purchasesAccepted(&rec.game) {
		return nil, ErrGameClosed
	}
	if rec.game.TicketsSold >= rec.game.MaxTickets {
		return nil, ErrGameFull
	}
	price := rec.game.TicketPrice
	if u.Wallet.LessThan(price) {
		return nil, ErrInsufficientFunds
	}
	if limit != nil {
		held, spent := s.holdingsLocked(gameID, userID)
		if err := limit.CheckLimit(held, spent, price); err != nil {
			return nil, err
		}
	}

	u.Wallet = u.Wallet.Sub(price)
	rec.game.TicketsSold++
	rec.game.TotalCollection = rec.game.TotalCollection.Add(price)
	rec.game.PrizePool = rec.game.PoolFor(rec.game.TotalCollection)

	now := time.Now().UTC()
	ticket := model.Ticket{
		ID:        uuid.New().String(),
		GameID:    gameID,
		UserID:    userID,
		Numbers:   numbers,
		CreatedAt: now,
	}
	s.tickets[ticket.ID] = &ticketRecord{ticket: ticket}

	s.txns = append(s.txns, model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TxDebit,
		Amount:    price,
		Reason:    "Ticket purchase",
		GameID:    gameID,
		TicketID:  ticket.ID,
		Timestamp: now,
	})

	cp := ticket
	return &cp, nil
}

func (s *MemoryStore) SettleClaim(_ context.Context, ticketID, prizeType string) (decimal.Decimal, error) {
	if err := prize.Validate(prizeType); err != nil {
		return decimal.Zero, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trec, ok := s.tickets[ticketID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	grec, ok := s.games[trec.ticket.GameID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: game %s", ErrNotFound, trec.ticket.GameID)
	}
	u, ok := s.users[trec.ticket.UserID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: user %s", ErrNotFound, trec.ticket.UserID)
	}

	if grec.game.Status == model.StatusClosed {
		return decimal.Zero, ErrGameClosed
	}
	if trec.claims.Has(prizeType) {
		return decimal.Zero, ErrAlreadyClaimed
	}

	// Pool value at the instant of settlement.
	amount, err := prize.Payout(grec.game.PrizePool, prizeType)
	if err != nil {
		return decimal.Zero, err
	}

	trec.claims = trec.claims.Add(prizeType)
	trec.ticket.ClaimedPrizes = trec.claims.Tags()
	u.Wallet = u.Wallet.Add(amount)

	s.txns = append(s.txns, model.Transaction{
		ID:        uuid.New().String(),
		UserID:    trec.ticket.UserID,
		Type:      model.TxCredit,
		Amount:    amount,
		Reason:    "Prize: " + prizeType,
		GameID:    trec.ticket.GameID,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
	})

	return amount, nil
}

func (s *MemoryStore) AppendDrawnNumber(_ context.Context, gameID string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.games[gameID]
	if !ok {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	if rec.game.Status == model.StatusClosed {
		return ErrGameClosed
	}
	return rec.drawn.Append(n)
}

// --- Tickets ---

func (s *MemoryStore) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, id)
	}
	cp := rec.ticket
	cp.ClaimedPrizes = rec.claims.Tags()
	return &cp, nil
}

func (s *MemoryStore) UserGameHoldings(_ context.Context, gameID, userID string) (int, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count, spent := s.holdingsLocked(gameID, userID)
	return count, spent, nil
}

// holdingsLocked counts a user's tickets and debits in a game. Caller
// holds s.mu.
func (s *MemoryStore) holdingsLocked(gameID, userID string) (int, decimal.Decimal) {
	count := 0
	spent := decimal.Zero
	for _, rec := range s.tickets {
		if rec.ticket.GameID == gameID && rec.ticket.UserID == userID {
			count++
		}
	}
	for _, t := range s.txns {
		if t.GameID == gameID && t.UserID == userID && t.Type == model.TxDebit {
			spent = spent.Add(t.Amount)
		}
	}
	return count, spent
}

// --- Transactions ---

func (s *MemoryStore) GetTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, t := range s.txns {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

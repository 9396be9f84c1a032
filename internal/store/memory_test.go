package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/draw"
	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/model"
	"github.com/tambola/game-engine/internal/prize"
	"github.com/tambola/game-engine/internal/store"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

var testNumbers = model.TicketNumbers{
	{2, 13, 24, 35, 46},
	{4, 17, 28, 39, 51},
	{5, 19, 33, 47, 61},
}

// seedGame creates a game with the given capacity and price.
func seedGame(t *testing.T, ms *store.MemoryStore, maxTickets int, price decimal.Decimal) *model.Game {
	t.Helper()
	g := &model.Game{
		ID:              uuid.New().String(),
		Name:            "test-game",
		MaxTickets:      maxTickets,
		TicketPrice:     price,
		TotalCollection: decimal.Zero,
		CommissionRate:  decimal.NewFromFloat(0.20),
		PrizePool:       decimal.Zero,
		Status:          model.StatusOpen,
		CreatedAt:       time.Now().UTC(),
	}
	if err := ms.CreateGame(context.Background(), g); err != nil {
		t.Fatalf("failed to seed game: %v", err)
	}
	return g
}

// seedUser creates a user holding the given balance.
func seedUser(t *testing.T, ms *store.MemoryStore, balance decimal.Decimal) *model.User {
	t.Helper()
	u := &model.User{
		ID:        uuid.New().String(),
		Name:      "test-user",
		Wallet:    decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	if balance.IsPositive() {
		if _, err := ms.CreditWallet(context.Background(), u.ID, balance, "Wallet top-up"); err != nil {
			t.Fatalf("failed to fund user: %v", err)
		}
	}
	u.Wallet = balance
	return u
}

// --- Purchase tests ---

func TestPurchaseTicket_Example(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 2, d(100))
	buyer1 := seedUser(t, ms, d(150))
	buyer2 := seedUser(t, ms, d(100))
	buyer3 := seedUser(t, ms, d(500))

	// First purchase: wallet 150 → 50, sold 1, pool 80.
	if _, err := ms.PurchaseTicket(ctx, g.ID, buyer1.ID, testNumbers, nil); err != nil {
		t.Fatalf("first purchase: %v", err)
	}
	u, _ := ms.GetUser(ctx, buyer1.ID)
	if !u.Wallet.Equal(d(50)) {
		t.Errorf("expected wallet 50, got %s", u.Wallet)
	}
	game, _ := ms.GetGame(ctx, g.ID)
	if game.TicketsSold != 1 {
		t.Errorf("expected 1 ticket sold, got %d", game.TicketsSold)
	}
	if !game.PrizePool.Equal(d(80)) {
		t.Errorf("expected pool 80, got %s", game.PrizePool)
	}

	// Second purchase: sold 2, pool 160.
	if _, err := ms.PurchaseTicket(ctx, g.ID, buyer2.ID, testNumbers, nil); err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	game, _ = ms.GetGame(ctx, g.ID)
	if game.TicketsSold != 2 {
		t.Errorf("expected 2 tickets sold, got %d", game.TicketsSold)
	}
	if !game.PrizePool.Equal(d(160)) {
		t.Errorf("expected pool 160, got %s", game.PrizePool)
	}

	// Third attempt: sold out.
	if _, err := ms.PurchaseTicket(ctx, g.ID, buyer3.ID, testNumbers, nil); !errors.Is(err, store.ErrGameFull) {
		t.Fatalf("expected ErrGameFull, got %v", err)
	}
}

func TestPurchaseTicket_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(40))

	if _, err := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	game, _ := ms.GetGame(ctx, g.ID)
	if game.TicketsSold != 0 || !game.TotalCollection.IsZero() {
		t.Errorf("failed purchase mutated game: sold=%d collection=%s",
			game.TicketsSold, game.TotalCollection)
	}
	user, _ := ms.GetUser(ctx, u.ID)
	if !user.Wallet.Equal(d(40)) {
		t.Errorf("failed purchase mutated wallet: %s", user.Wallet)
	}
	txns, _ := ms.GetTransactionsByUser(ctx, u.ID)
	if len(txns) != 1 { // only the top-up
		t.Errorf("expected 1 transaction, got %d", len(txns))
	}
}

func TestPurchaseTicket_RetryAfterTopUpProducesOneTicket(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(40))

	if _, err := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := ms.CreditWallet(ctx, u.ID, d(100), "Wallet top-up"); err != nil {
		t.Fatalf("top up: %v", err)
	}
	if _, err := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil); err != nil {
		t.Fatalf("retry after top-up: %v", err)
	}

	count, spent, err := ms.UserGameHoldings(ctx, g.ID, u.ID)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly 1 ticket, got %d", count)
	}
	if !spent.Equal(d(100)) {
		t.Errorf("expected exactly 1 debit of 100, got %s", spent)
	}
}

func TestPurchaseTicket_ConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	const capacity = 10
	g := seedGame(t, ms, capacity, d(100))

	const buyers = 50
	users := make([]*model.User, buyers)
	for i := range users {
		users[i] = seedUser(t, ms, d(100))
	}

	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ms.PurchaseTicket(ctx, g.ID, users[i].ID, testNumbers, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrGameFull):
		default:
			t.Fatalf("unexpected purchase error: %v", err)
		}
	}
	if succeeded != capacity {
		t.Errorf("expected exactly %d successful purchases, got %d", capacity, succeeded)
	}

	game, _ := ms.GetGame(ctx, g.ID)
	if game.TicketsSold != capacity {
		t.Errorf("ticketsSold=%d exceeds capacity %d", game.TicketsSold, capacity)
	}
	if !game.TotalCollection.Equal(d(100 * capacity)) {
		t.Errorf("collection should equal sum of prices: %s", game.TotalCollection)
	}
	if !game.PrizePool.Equal(game.TotalCollection.Mul(decimal.NewFromFloat(0.80))) {
		t.Errorf("pool should be collection × 0.80: %s", game.PrizePool)
	}
}

func TestPurchaseTicket_ConcurrentWalletNeverNegative(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 100, d(100))
	u := seedUser(t, ms, d(250)) // funds for exactly two tickets

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientFunds) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Errorf("expected exactly 2 purchases from a 250 wallet, got %d", succeeded)
	}
	user, _ := ms.GetUser(ctx, u.ID)
	if user.Wallet.IsNegative() {
		t.Errorf("wallet went negative: %s", user.Wallet)
	}
	if !user.Wallet.Equal(d(50)) {
		t.Errorf("expected final wallet 50, got %s", user.Wallet)
	}
}

func TestPurchaseTicket_ConcurrentLimitEnforced(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 100, d(100))
	u := seedUser(t, ms, d(10000))
	limit := limits.NewPurchaseLimiter(2, decimal.Zero)

	// The limit is checked inside the atomic purchase, so racing buyers
	// for one user cannot all pass it.
	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, limit)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, limits.ErrTicketLimitExceeded):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 2 {
		t.Errorf("expected exactly 2 purchases under a 2-ticket limit, got %d", succeeded)
	}

	held, _, err := ms.UserGameHoldings(ctx, g.ID, u.ID)
	if err != nil {
		t.Fatalf("holdings: %v", err)
	}
	if held != 2 {
		t.Errorf("expected 2 tickets held, got %d", held)
	}
}

func TestPurchaseTicket_RespectsGameStatus(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	u := seedUser(t, ms, d(1000))

	// Drawing without the purchase flag: sales stop.
	g1 := seedGame(t, ms, 10, d(100))
	if err := ms.SetGameStatus(ctx, g1.ID, model.StatusDrawing); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := ms.PurchaseTicket(ctx, g1.ID, u.ID, testNumbers, nil); !errors.Is(err, store.ErrGameClosed) {
		t.Fatalf("expected ErrGameClosed during drawing, got %v", err)
	}

	// Drawing with the flag: sales continue.
	g2 := &model.Game{
		ID: uuid.New().String(), MaxTickets: 10, TicketPrice: d(100),
		CommissionRate: decimal.NewFromFloat(0.20), Status: model.StatusOpen,
		AllowPurchaseWhileDrawing: true, CreatedAt: time.Now().UTC(),
	}
	if err := ms.CreateGame(ctx, g2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ms.SetGameStatus(ctx, g2.ID, model.StatusDrawing); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := ms.PurchaseTicket(ctx, g2.ID, u.ID, testNumbers, nil); err != nil {
		t.Fatalf("purchase during drawing with flag: %v", err)
	}

	// Closed: terminal.
	if err := ms.SetGameStatus(ctx, g1.ID, model.StatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := ms.PurchaseTicket(ctx, g1.ID, u.ID, testNumbers, nil); !errors.Is(err, store.ErrGameClosed) {
		t.Fatalf("expected ErrGameClosed, got %v", err)
	}
}

// --- Claim tests ---

func TestSettleClaim_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(100))

	ticket, err := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	const claimers = 20
	var wg sync.WaitGroup
	results := make([]error, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = ms.SettleClaim(ctx, ticket.ID, prize.EarlyFive)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrAlreadyClaimed):
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("expected exactly 1 settled claim, got %d", succeeded)
	}
}

func TestSettleClaim_PoolSnapshotAtClaimTime(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(500))

	ticket, err := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}

	// Pool is 80 after one sale: early_five pays floor(80 × 0.20) = 16.
	amount, err := ms.SettleClaim(ctx, ticket.ID, prize.EarlyFive)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !amount.Equal(d(16)) {
		t.Errorf("expected payout 16 from pool 80, got %s", amount)
	}

	// Another sale grows the pool to 160: top_line pays floor(160 × 0.15) = 24.
	other := seedUser(t, ms, d(100))
	if _, err := ms.PurchaseTicket(ctx, g.ID, other.ID, testNumbers, nil); err != nil {
		t.Fatalf("second purchase: %v", err)
	}
	amount, err = ms.SettleClaim(ctx, ticket.ID, prize.TopLine)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !amount.Equal(d(24)) {
		t.Errorf("expected payout 24 from pool 160, got %s", amount)
	}
}

func TestSettleClaim_DistinctPrizesEachOnce(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(100))

	ticket, _ := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)

	if _, err := ms.SettleClaim(ctx, ticket.ID, prize.TopLine); err != nil {
		t.Fatalf("top_line: %v", err)
	}
	if _, err := ms.SettleClaim(ctx, ticket.ID, prize.EarlyFive); err != nil {
		t.Fatalf("early_five after top_line: %v", err)
	}
	if _, err := ms.SettleClaim(ctx, ticket.ID, prize.TopLine); !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed on repeat, got %v", err)
	}

	got, _ := ms.GetTicket(ctx, ticket.ID)
	if len(got.ClaimedPrizes) != 2 {
		t.Errorf("expected 2 claimed prizes, got %v", got.ClaimedPrizes)
	}
}

func TestSettleClaim_CreditsWalletAndRecordsTransaction(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(100))

	ticket, _ := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)
	amount, err := ms.SettleClaim(ctx, ticket.ID, prize.FullHouse)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	user, _ := ms.GetUser(ctx, u.ID)
	if !user.Wallet.Equal(amount) { // 100 − 100 + payout
		t.Errorf("expected wallet %s, got %s", amount, user.Wallet)
	}

	txns, _ := ms.GetTransactionsByUser(ctx, u.ID)
	var credit *model.Transaction
	for i := range txns {
		if txns[i].Type == model.TxCredit && txns[i].TicketID == ticket.ID {
			credit = &txns[i]
		}
	}
	if credit == nil {
		t.Fatal("expected a credit transaction for the claim")
	}
	if credit.Reason != "Prize: full_house" {
		t.Errorf("unexpected reason: %s", credit.Reason)
	}
	if !credit.Amount.Equal(amount) {
		t.Errorf("transaction amount %s != payout %s", credit.Amount, amount)
	}
}

func TestSettleClaim_ClosedGame(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))
	u := seedUser(t, ms, d(100))

	ticket, _ := ms.PurchaseTicket(ctx, g.ID, u.ID, testNumbers, nil)
	ms.SetGameStatus(ctx, g.ID, model.StatusClosed)

	if _, err := ms.SettleClaim(ctx, ticket.ID, prize.EarlyFive); !errors.Is(err, store.ErrGameClosed) {
		t.Fatalf("expected ErrGameClosed, got %v", err)
	}
}

// --- Draw tests ---

func TestAppendDrawnNumber(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))

	if err := ms.AppendDrawnNumber(ctx, g.ID, 42); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := ms.AppendDrawnNumber(ctx, g.ID, 42); !errors.Is(err, draw.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := ms.AppendDrawnNumber(ctx, g.ID, 95); !errors.Is(err, draw.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	game, _ := ms.GetGame(ctx, g.ID)
	if len(game.DrawnNumbers) != 1 || game.DrawnNumbers[0] != 42 {
		t.Errorf("expected drawn numbers [42], got %v", game.DrawnNumbers)
	}

	ms.SetGameStatus(ctx, g.ID, model.StatusClosed)
	if err := ms.AppendDrawnNumber(ctx, g.ID, 7); !errors.Is(err, store.ErrGameClosed) {
		t.Fatalf("expected ErrGameClosed, got %v", err)
	}
}

// --- Status transition tests ---

func TestSetGameStatus_Transitions(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	g := seedGame(t, ms, 10, d(100))

	if err := ms.SetGameStatus(ctx, g.ID, model.StatusOpen); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("open → open should be invalid, got %v", err)
	}
	if err := ms.SetGameStatus(ctx, g.ID, model.StatusDrawing); err != nil {
		t.Fatalf("open → drawing: %v", err)
	}
	if err := ms.SetGameStatus(ctx, g.ID, model.StatusOpen); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("drawing → open should be invalid, got %v", err)
	}
	if err := ms.SetGameStatus(ctx, g.ID, model.StatusClosed); err != nil {
		t.Fatalf("drawing → closed: %v", err)
	}
	if err := ms.SetGameStatus(ctx, g.ID, model.StatusDrawing); !errors.Is(err, store.ErrGameClosed) {
		t.Fatalf("closed is terminal, got %v", err)
	}
}

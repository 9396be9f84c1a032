package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/draw"
	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/model"
	"github.com/tambola/game-engine/internal/prize"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// drawn numbers are INT[] in call order and claimed prizes TEXT[].
//
// The atomic ledger operations run as transactions whose precondition
// checks are part of the conditional UPDATE itself (wallet >= price,
// tickets_sold < max_tickets, NOT claimed), so concurrent requests cannot
// interleave between check and mutation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, name, wallet, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)`,
		u.ID, u.Name, u.Wallet.String(), u.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var wallet string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, wallet::TEXT, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &wallet, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	u.Wallet, _ = decimal.NewFromString(wallet)
	return &u, nil
}

func (s *PostgresStore) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, reason string) (*model.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE users SET wallet = wallet + $2::NUMERIC WHERE id = $1`,
		userID, amount.String())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}

	txn := model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TxCredit,
		Amount:    amount,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
	if err := insertTransaction(ctx, tx, &txn); err != nil {
		return nil, err
	}
	return &txn, tx.Commit(ctx)
}

// --- Games ---

const gameColumns = `id, name, max_tickets, tickets_sold,
	        ticket_price::TEXT, total_collection::TEXT, commission_rate::TEXT, prize_pool::TEXT,
	        COALESCE(drawn_numbers, '{}'), status, allow_purchase_while_drawing, created_at`

func (s *PostgresStore) CreateGame(ctx context.Context, g *model.Game) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO games (id, name, max_tickets, tickets_sold, ticket_price, total_collection,
		                    commission_rate, prize_pool, drawn_numbers, status, allow_purchase_while_drawing, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10, $11, $12)`,
		g.ID, g.Name, g.MaxTickets, g.TicketsSold,
		g.TicketPrice.String(), g.TotalCollection.String(),
		g.CommissionRate.String(), g.PrizePool.String(),
		intsToInt32(g.DrawnNumbers), g.Status, g.AllowPurchaseWhileDrawing, g.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetGame(ctx context.Context, id string) (*model.Game, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id)
	g, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get game %s: %w", id, err)
	}
	return g, nil
}

func (s *PostgresStore) ListGames(ctx context.Context) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

func (s *PostgresStore) SetGameStatus(ctx context.Context, id, status string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM games WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: game %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	if current == model.StatusClosed {
		return ErrGameClosed
	}
	if !validTransition(current, status) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current, status)
	}

	if _, err := tx.Exec(ctx, `UPDATE games SET status = $2 WHERE id = $1`, id, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- Atomic ledger operations ---

func (s *PostgresStore) PurchaseTicket(ctx context.Context, gameID, userID string, numbers model.TicketNumbers, limit *limits.PurchaseLimiter) (*model.Ticket, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Capacity check and increment in one statement; no read-then-write
	// window for concurrent buyers to oversell.
	var priceStr string
	err = tx.QueryRow(ctx,
		`UPDATE games
		 SET tickets_sold = tickets_sold + 1,
		     total_collection = total_collection + ticket_price,
		     prize_pool = (total_collection + ticket_price) * (1 - commission_rate)
		 WHERE id = $1
		   AND tickets_sold < max_tickets
		   AND (status = 'open' OR (status = 'drawing' AND allow_purchase_while_drawing))
		 RETURNING ticket_price::TEXT`, gameID).Scan(&priceStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.classifyPurchaseFailure(ctx, gameID)
	}
	if err != nil {
		return nil, err
	}
	price, _ := decimal.NewFromString(priceStr)

	// The update above holds the game row lock, so same-game purchases
	// serialize here and the holdings counts are stable for the check.
	if limit != nil {
		held, spent, err := queryUserGameHoldings(ctx, tx, gameID, userID)
		if err != nil {
			return nil, err
		}
		if err := limit.CheckLimit(held, spent, price); err != nil {
			return nil, err
		}
	}

	// Debit with the balance check in the predicate; the rollback undoes
	// the counter update above if funds are short.
	tag, err := tx.Exec(ctx,
		`UPDATE users SET wallet = wallet - $2::NUMERIC
		 WHERE id = $1 AND wallet >= $2::NUMERIC`,
		userID, price.String())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
		}
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	ticket := model.Ticket{
		ID:        uuid.New().String(),
		GameID:    gameID,
		UserID:    userID,
		Numbers:   numbers,
		CreatedAt: now,
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO tickets (id, game_id, user_id, numbers, claimed_prizes, created_at)
		 VALUES ($1, $2, $3, $4, '{}', $5)`,
		ticket.ID, gameID, userID, intsToInt32(numbers.All()), now,
	); err != nil {
		return nil, err
	}

	if err := insertTransaction(ctx, tx, &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TxDebit,
		Amount:    price,
		Reason:    "Ticket purchase",
		GameID:    gameID,
		TicketID:  ticket.ID,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	return &ticket, tx.Commit(ctx)
}

// classifyPurchaseFailure distinguishes missing, closed, and sold-out games
// after the conditional purchase update matched no row.
func (s *PostgresStore) classifyPurchaseFailure(ctx context.Context, gameID string) error {
	var status string
	var sold, max int
	err := s.pool.QueryRow(ctx,
		`SELECT status, tickets_sold, max_tickets FROM games WHERE id = $1`, gameID).
		Scan(&status, &sold, &max)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	if err != nil {
		return err
	}
	if sold >= max {
		return ErrGameFull
	}
	return ErrGameClosed
}

func (s *PostgresStore) SettleClaim(ctx context.Context, ticketID, prizeType string) (decimal.Decimal, error) {
	if err := prize.Validate(prizeType); err != nil {
		return decimal.Zero, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	// Lock ticket and game rows; the pool read below is the pool at the
	// instant of settlement.
	var userID, gameID, poolStr, status string
	err = tx.QueryRow(ctx,
		`SELECT t.user_id, t.game_id, g.prize_pool::TEXT, g.status
		 FROM tickets t JOIN games g ON g.id = t.game_id
		 WHERE t.id = $1
		 FOR UPDATE OF t, g`, ticketID).
		Scan(&userID, &gameID, &poolStr, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: ticket %s", ErrNotFound, ticketID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if status == model.StatusClosed {
		return decimal.Zero, ErrGameClosed
	}

	// Claimed-flag check and set are one statement: concurrent claims for
	// the same (ticket, prize) cannot both pass.
	tag, err := tx.Exec(ctx,
		`UPDATE tickets
		 SET claimed_prizes = array_append(COALESCE(claimed_prizes, '{}'), $2)
		 WHERE id = $1 AND NOT ($2 = ANY(COALESCE(claimed_prizes, '{}')))`,
		ticketID, prizeType)
	if err != nil {
		return decimal.Zero, err
	}
	if tag.RowsAffected() == 0 {
		return decimal.Zero, ErrAlreadyClaimed
	}

	pool, _ := decimal.NewFromString(poolStr)
	amount, err := prize.Payout(pool, prizeType)
	if err != nil {
		return decimal.Zero, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET wallet = wallet + $2::NUMERIC WHERE id = $1`,
		userID, amount.String()); err != nil {
		return decimal.Zero, err
	}

	if err := insertTransaction(ctx, tx, &model.Transaction{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      model.TxCredit,
		Amount:    amount,
		Reason:    "Prize: " + prizeType,
		GameID:    gameID,
		TicketID:  ticketID,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return decimal.Zero, err
	}

	return amount, tx.Commit(ctx)
}

func (s *PostgresStore) AppendDrawnNumber(ctx context.Context, gameID string, n int) error {
	if n < draw.Min || n > draw.Max {
		return draw.ErrOutOfRange
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE games
		 SET drawn_numbers = array_append(COALESCE(drawn_numbers, '{}'), $2)
		 WHERE id = $1
		   AND status <> 'closed'
		   AND NOT ($2 = ANY(COALESCE(drawn_numbers, '{}')))`,
		gameID, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM games WHERE id = $1`, gameID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	if err != nil {
		return err
	}
	if status == model.StatusClosed {
		return ErrGameClosed
	}
	return draw.ErrDuplicate
}

// --- Tickets ---

func (s *PostgresStore) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var t model.Ticket
	var nums []int32
	var claimed []string

	err := s.pool.QueryRow(ctx,
		`SELECT id, game_id, user_id, numbers, COALESCE(claimed_prizes, '{}'), created_at
		 FROM tickets WHERE id = $1`, id).
		Scan(&t.ID, &t.GameID, &t.UserID, &nums, &claimed, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", id, err)
	}

	t.Numbers = numbersFromFlat(nums)
	t.ClaimedPrizes = claimed
	return &t, nil
}

func (s *PostgresStore) UserGameHoldings(ctx context.Context, gameID, userID string) (int, decimal.Decimal, error) {
	return queryUserGameHoldings(ctx, s.pool, gameID, userID)
}

// rowQuerier is satisfied by both pgxpool.Pool and pgx.Tx, so the holdings
// query can run standalone or inside the purchase transaction.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryUserGameHoldings(ctx context.Context, q rowQuerier, gameID, userID string) (int, decimal.Decimal, error) {
	var count int
	var spentStr string
	err := q.QueryRow(ctx,
		`SELECT
		    (SELECT COUNT(*) FROM tickets WHERE game_id = $1 AND user_id = $2),
		    COALESCE((SELECT SUM(amount) FROM transactions
		              WHERE game_id = $1 AND user_id = $2 AND type = 'debit'), 0)::TEXT`,
		gameID, userID).Scan(&count, &spentStr)
	if err != nil {
		return 0, decimal.Zero, err
	}
	spent, _ := decimal.NewFromString(spentStr)
	return count, spent, nil
}

// --- Transactions ---

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, amount::TEXT, reason,
		        COALESCE(game_id, ''), COALESCE(ticket_id, ''), timestamp
		 FROM transactions WHERE user_id = $1 ORDER BY timestamp`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &amount, &t.Reason,
			&t.GameID, &t.TicketID, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Amount, _ = decimal.NewFromString(amount)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Helpers ---

func insertTransaction(ctx context.Context, tx pgx.Tx, t *model.Transaction) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, reason, game_id, ticket_id, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		t.ID, t.UserID, t.Type, t.Amount.String(), t.Reason, t.GameID, t.TicketID, t.Timestamp,
	)
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanGame(row scannable) (*model.Game, error) {
	var g model.Game
	var price, collection, rate, pool string
	var drawn []int32

	if err := row.Scan(&g.ID, &g.Name, &g.MaxTickets, &g.TicketsSold,
		&price, &collection, &rate, &pool,
		&drawn, &g.Status, &g.AllowPurchaseWhileDrawing, &g.CreatedAt); err != nil {
		return nil, err
	}

	g.TicketPrice, _ = decimal.NewFromString(price)
	g.TotalCollection, _ = decimal.NewFromString(collection)
	g.CommissionRate, _ = decimal.NewFromString(rate)
	g.PrizePool, _ = decimal.NewFromString(pool)
	g.DrawnNumbers = int32ToInts(drawn)
	return &g, nil
}

func intsToInt32(in []int) []int32 {
	out := make([]int32, len(in))
	for i, n := range in {
		out[i] = int32(n)
	}
	return out
}

func int32ToInts(in []int32) []int {
	out := make([]int, len(in))
	for i, n := range in {
		out[i] = int(n)
	}
	return out
}

func numbersFromFlat(flat []int32) model.TicketNumbers {
	var n model.TicketNumbers
	for i, v := range flat {
		if i >= 15 {
			break
		}
		n[i/5][i%5] = int(v)
	}
	return n
}

// Package game provides the HTTP handlers and session coordination for
// creating games, selling tickets, drawing numbers, and settling prize
// claims.
//
// The coordinator checks game status before every operation and runs the
// pure pieces (ticket generation, prize evaluation) outside the store's
// critical sections; the store performs the atomic ledger transitions.
package game

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tambola/game-engine/internal/draw"
	"github.com/tambola/game-engine/internal/limits"
	"github.com/tambola/game-engine/internal/metrics"
	"github.com/tambola/game-engine/internal/model"
	"github.com/tambola/game-engine/internal/prize"
	"github.com/tambola/game-engine/internal/store"
	"github.com/tambola/game-engine/internal/ticket"
)

// defaultCommissionRate is applied when game creation omits one.
var defaultCommissionRate = decimal.NewFromFloat(0.20)

// Service handles game operations.
type Service struct {
	store   store.Store
	gen     *ticket.Generator
	limiter *limits.PurchaseLimiter
	wsHub   *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new game service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, gen *ticket.Generator, limiter *limits.PurchaseLimiter, hub *WSHub) *Service {
	return &Service{
		store:   st,
		gen:     gen,
		limiter: limiter,
		wsHub:   hub,
	}
}

// --- Request/Response types ---

// CreateGameRequest is the JSON body for game creation.
type CreateGameRequest struct {
	Name                      string          `json:"name"`
	MaxTickets                int             `json:"max_tickets"`
	TicketPrice               decimal.Decimal `json:"ticket_price"`
	CommissionRate            decimal.Decimal `json:"commission_rate"` // 0 → default 0.20
	AllowPurchaseWhileDrawing bool            `json:"allow_purchase_while_drawing"`
}

// StatusRequest is the JSON body for POST /games/{gameID}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// DrawRequest is the JSON body for POST /games/{gameID}/draw.
type DrawRequest struct {
	Number int `json:"number"`
}

// PurchaseRequest is the JSON body for POST /tickets.
type PurchaseRequest struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

// PurchaseResponse is returned from POST /tickets.
type PurchaseResponse struct {
	TicketID string              `json:"ticket_id"`
	GameID   string              `json:"game_id"`
	UserID   string              `json:"user_id"`
	Numbers  model.TicketNumbers `json:"numbers"`
	Price    decimal.Decimal     `json:"price"`
}

// ClaimRequest is the JSON body for POST /claims.
type ClaimRequest struct {
	TicketID  string `json:"ticket_id"`
	PrizeType string `json:"prize_type"`
}

// ClaimResponse is returned from POST /claims. A claim whose rule is not
// (yet) satisfied is a normal game outcome: Success is false and Reason
// set, with HTTP 200.
type ClaimResponse struct {
	Success   bool            `json:"success"`
	TicketID  string          `json:"ticket_id"`
	PrizeType string          `json:"prize_type"`
	Amount    decimal.Decimal `json:"amount,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// CreateUserRequest is the JSON body for POST /users.
type CreateUserRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CreditRequest is the JSON body for POST /users/{userID}/credit.
type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// --- Game handlers ---

// CreateGame handles POST /api/v1/games
func (s *Service) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req CreateGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.MaxTickets <= 0 {
		writeError(w, "max_tickets must be positive", http.StatusBadRequest)
		return
	}
	if !req.TicketPrice.IsPositive() {
		writeError(w, "ticket_price must be positive", http.StatusBadRequest)
		return
	}

	rate := req.CommissionRate
	if rate.IsZero() {
		rate = defaultCommissionRate
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		writeError(w, "commission_rate must be in [0, 1)", http.StatusBadRequest)
		return
	}

	g := &model.Game{
		ID:                        uuid.New().String(),
		Name:                      req.Name,
		MaxTickets:                req.MaxTickets,
		TicketPrice:               req.TicketPrice,
		TotalCollection:           decimal.Zero,
		CommissionRate:            rate,
		PrizePool:                 decimal.Zero,
		Status:                    model.StatusOpen,
		AllowPurchaseWhileDrawing: req.AllowPurchaseWhileDrawing,
		CreatedAt:                 time.Now().UTC(),
	}

	if err := s.store.CreateGame(r.Context(), g); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	slog.Info("game created",
		"id", g.ID,
		"max_tickets", g.MaxTickets,
		"ticket_price", g.TicketPrice.String(),
		"commission_rate", rate.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(g)
}

// GetGame handles GET /api/v1/games/{gameID}
func (s *Service) GetGame(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	g, err := s.store.GetGame(r.Context(), gameID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(g)
}

// ListGames handles GET /api/v1/games
func (s *Service) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.store.ListGames(r.Context())
	if err != nil {
		writeError(w, "failed to list games", http.StatusInternalServerError)
		return
	}
	if games == nil {
		games = []model.Game{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(games)
}

// SetGameStatus handles POST /api/v1/games/{gameID}/status
// Administrative transitions: open → drawing → closed; closed is terminal.
func (s *Service) SetGameStatus(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case model.StatusOpen, model.StatusDrawing, model.StatusClosed:
	default:
		writeError(w, "status must be open, drawing, or closed", http.StatusBadRequest)
		return
	}

	if err := s.store.SetGameStatus(r.Context(), gameID, req.Status); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("game status changed", "game", gameID, "status", req.Status)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "game_status", GameID: gameID, Status: req.Status})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": gameID, "status": req.Status})
}

// DrawNumber handles POST /api/v1/games/{gameID}/draw
// Appends a number to the game's draw ledger.
func (s *Service) DrawNumber(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")

	var req DrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.AppendDrawnNumber(r.Context(), gameID, req.Number); err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.NumbersDrawn.WithLabelValues(gameID).Inc()
	slog.Info("number drawn", "game", gameID, "number", req.Number)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: "number_drawn", GameID: gameID, Number: req.Number})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"game_id": gameID, "number": req.Number})
}

// --- Ticket handlers ---

// PurchaseTicket handles POST /api/v1/tickets
// Generates a ticket outside the critical section, then executes the
// atomic debit-and-sell transition in the store.
func (s *Service) PurchaseTicket(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GameID == "" || req.UserID == "" {
		writeError(w, "game_id and user_id are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	// Status precheck. The store re-checks inside the atomic transition;
	// this is the fail-fast path for closed games.
	g, err := s.store.GetGame(ctx, req.GameID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if g.Status == model.StatusClosed {
		writeError(w, store.ErrGameClosed.Error(), http.StatusConflict)
		return
	}

	// Limit precheck, same fail-fast role as the status check above; the
	// store enforces the limiter again inside the atomic transition.
	held, spent, err := s.store.UserGameHoldings(ctx, req.GameID, req.UserID)
	if err != nil {
		writeError(w, "failed to check purchase limits", http.StatusInternalServerError)
		return
	}
	if err := s.limiter.CheckLimit(held, spent, g.TicketPrice); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	// Pure generation, outside any lock.
	numbers := s.gen.Generate()

	t, err := s.store.PurchaseTicket(ctx, req.GameID, req.UserID, numbers, s.limiter)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.TicketsSold.WithLabelValues(req.GameID).Inc()
	slog.Info("ticket purchased",
		"ticket", t.ID,
		"game", req.GameID,
		"user", req.UserID,
		"price", g.TicketPrice.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "ticket_purchased",
			GameID:   req.GameID,
			TicketID: t.ID,
			UserID:   req.UserID,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(PurchaseResponse{
		TicketID: t.ID,
		GameID:   t.GameID,
		UserID:   t.UserID,
		Numbers:  t.Numbers,
		Price:    g.TicketPrice,
	})
}

// GetTicket handles GET /api/v1/tickets/{ticketID}
func (s *Service) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	t, err := s.store.GetTicket(r.Context(), ticketID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(t)
}

// --- Claim handler ---

// ClaimPrize handles POST /api/v1/claims
// Evaluates the claim against the server's own draw ledger; a rule not yet
// satisfied is a structured negative response, not an error.
func (s *Service) ClaimPrize(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := prize.Validate(req.PrizeType); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	t, err := s.store.GetTicket(ctx, req.TicketID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	g, err := s.store.GetGame(ctx, t.GameID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if g.Status == model.StatusClosed {
		writeError(w, store.ErrGameClosed.Error(), http.StatusConflict)
		return
	}
	if t.HasClaimed(req.PrizeType) {
		metrics.ClaimsTotal.WithLabelValues(req.PrizeType, "rejected").Inc()
		writeError(w, store.ErrAlreadyClaimed.Error(), http.StatusConflict)
		return
	}

	// Pure evaluation against the drawn-number snapshot, outside any lock.
	ok, err := prize.Evaluate(t.Numbers, g.DrawnNumbers, req.PrizeType)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !ok {
		metrics.ClaimsTotal.WithLabelValues(req.PrizeType, "invalid").Inc()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ClaimResponse{
			Success:   false,
			TicketID:  req.TicketID,
			PrizeType: req.PrizeType,
			Reason:    "prize condition not satisfied by drawn numbers",
		})
		return
	}

	amount, err := s.store.SettleClaim(ctx, req.TicketID, req.PrizeType)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			metrics.ClaimsTotal.WithLabelValues(req.PrizeType, "rejected").Inc()
		}
		writeStoreError(w, err)
		return
	}

	metrics.ClaimsTotal.WithLabelValues(req.PrizeType, "settled").Inc()
	payout, _ := amount.Float64()
	metrics.PayoutTotal.WithLabelValues(req.PrizeType).Add(payout)
	slog.Info("prize settled",
		"ticket", req.TicketID,
		"game", t.GameID,
		"user", t.UserID,
		"prize", req.PrizeType,
		"amount", amount.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "prize_claimed",
			GameID:    t.GameID,
			TicketID:  req.TicketID,
			UserID:    t.UserID,
			PrizeType: req.PrizeType,
			Amount:    amount.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ClaimResponse{
		Success:   true,
		TicketID:  req.TicketID,
		PrizeType: req.PrizeType,
		Amount:    amount,
	})
}

// --- User handlers ---

// CreateUser handles POST /api/v1/users
func (s *Service) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}
	u := &model.User{
		ID:        id,
		Name:      req.Name,
		Wallet:    decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateUser(r.Context(), u); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(u)
}

// GetUser handles GET /api/v1/users/{userID}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	u, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(u)
}

// CreditWallet handles POST /api/v1/users/{userID}/credit
// The landing point for funds from the external checkout collaborator.
func (s *Service) CreditWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	txn, err := s.store.CreditWallet(r.Context(), userID, req.Amount, "Wallet top-up")
	if err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("wallet credited", "user", userID, "amount", req.Amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txn)
}

// GetTransactions handles GET /api/v1/users/{userID}/transactions
func (s *Service) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	txns, err := s.store.GetTransactionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load transactions", http.StatusInternalServerError)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txns)
}

// --- Error mapping ---

// writeStoreError maps store and draw errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, store.ErrInsufficientFunds):
		writeError(w, err.Error(), http.StatusPaymentRequired)
	case errors.Is(err, store.ErrGameFull),
		errors.Is(err, store.ErrGameClosed),
		errors.Is(err, store.ErrAlreadyClaimed),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, limits.ErrTicketLimitExceeded),
		errors.Is(err, limits.ErrSpendLimitExceeded),
		errors.Is(err, draw.ErrDuplicate):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, draw.ErrOutOfRange),
		errors.Is(err, prize.ErrInvalidType):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

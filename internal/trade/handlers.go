package trade

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kicksmarket/bid-engine/internal/ledger"
	"github.com/kicksmarket/bid-engine/internal/lifecycle"
	"github.com/kicksmarket/bid-engine/internal/model"
)

// Handler serves the trade and point operations over HTTP.
type Handler struct {
	svc    *Service
	points *ledger.Points
}

// NewHandler creates the HTTP handler set.
func NewHandler(svc *Service, points *ledger.Points) *Handler {
	return &Handler{svc: svc, points: points}
}

// Routes registers the API under r (normally mounted at /api/v1). The
// WebSocket endpoint is mounted separately by the caller.
func (h *Handler) Routes(r chi.Router) {
	// Bid placement.
	r.Post("/bids/sale", h.CreateSaleBid)
	r.Post("/bids/purchase", h.CreatePurchaseBid)

	// Trades.
	r.Get("/trades/{tradeID}", h.GetTrade)
	r.Post("/trades/{tradeID}/purchase", h.ImmediatePurchase)
	r.Post("/trades/{tradeID}/sale", h.ImmediateSale)
	r.Post("/trades/{tradeID}/status", h.AdvanceStatus)

	// Book display.
	r.Get("/products/{productID}/book/{size}", h.GetBook)

	// Points.
	r.Get("/points/{userID}", h.GetBalance)
	r.Put("/points/{userID}", h.OpenAccount)
	r.Get("/points/{userID}/history", h.GetHistory)
	r.Get("/points/{userID}/reconcile", h.Reconcile)
	r.Post("/points/{userID}/charge", h.Charge)
	r.Post("/points/{userID}/withdraw", h.Withdraw)
}

// AmountRequest is the JSON body for charging or withdrawing points.
type AmountRequest struct {
	Amount int64 `json:"amount"`
}

// BalanceResponse reports a user's running total.
type BalanceResponse struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

// CreateSaleBid handles POST /api/v1/bids/sale
func (h *Handler) CreateSaleBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.svc.CreateSaleBid(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// CreatePurchaseBid handles POST /api/v1/bids/purchase
func (h *Handler) CreatePurchaseBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if !decode(w, r, &req) {
		return
	}
	t, err := h.svc.CreatePurchaseBid(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTrade handles GET /api/v1/trades/{tradeID}
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTrade(r.Context(), chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ImmediatePurchase handles POST /api/v1/trades/{tradeID}/purchase
func (h *Handler) ImmediatePurchase(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	req.TradeID = chi.URLParam(r, "tradeID")
	t, err := h.svc.ImmediatePurchase(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ImmediateSale handles POST /api/v1/trades/{tradeID}/sale
func (h *Handler) ImmediateSale(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !decode(w, r, &req) {
		return
	}
	req.TradeID = chi.URLParam(r, "tradeID")
	t, err := h.svc.ImmediateSale(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// AdvanceStatus handles POST /api/v1/trades/{tradeID}/status
func (h *Handler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	var ev lifecycle.Event
	if !decode(w, r, &ev) {
		return
	}
	ev.TradeID = chi.URLParam(r, "tradeID")
	t, err := h.svc.AdvanceTradeStatus(r.Context(), ev)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// GetBook handles GET /api/v1/products/{productID}/book/{size}
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	size, err := decimal.NewFromString(chi.URLParam(r, "size"))
	if err != nil {
		writeBadRequest(w, "size must be a decimal number")
		return
	}
	level, err := h.svc.Book(r.Context(), chi.URLParam(r, "productID"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, level)
}

// GetBalance handles GET /api/v1/points/{userID}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	bal, err := h.points.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

// OpenAccount handles PUT /api/v1/points/{userID}
func (h *Handler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	bal, err := h.points.OpenAccount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

// GetHistory handles GET /api/v1/points/{userID}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.points.History(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Reconcile handles GET /api/v1/points/{userID}/reconcile
// A drifted account is reported with 500 and the reconciliation body.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.points.Reconcile(r.Context(), chi.URLParam(r, "userID"))
	if errors.Is(err, model.ErrLedgerMismatch) {
		writeJSON(w, http.StatusInternalServerError, rec)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Charge handles POST /api/v1/points/{userID}/charge
func (h *Handler) Charge(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")
	bal, err := h.points.Charge(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

// Withdraw handles POST /api/v1/points/{userID}/withdraw
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if !decode(w, r, &req) {
		return
	}
	userID := chi.URLParam(r, "userID")
	bal, err := h.points.Withdraw(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{UserID: userID, Balance: bal})
}

// --- helpers ---

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeBadRequest(w, "invalid request body")
		return false
	}
	return true
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindValidation:
		return http.StatusUnprocessableEntity
	case model.KindConflict:
		return http.StatusConflict
	case model.KindFunds:
		return http.StatusPaymentRequired
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a JSON error response for a domain error.
func writeError(w http.ResponseWriter, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	message := err.Error()
	if kind == model.KindInternal {
		slog.Error("request failed", "err", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": model.Code(err), "message": message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

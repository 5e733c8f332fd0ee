package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// SessionService defines the methods the session handlers require from the
// service layer.
type SessionService interface {
	PlaceOrder(ctx context.Context, symbol string, action domain.Action, quantity *int64) (domain.OrderResult, error)
	SetInputs(ctx context.Context, symbol string, buy, sell *int64) error
	SetStopLoss(ctx context.Context, symbol string, price decimal.Decimal) error
	ClearStopLoss(ctx context.Context, symbol string) error
	Reset(ctx context.Context) domain.Portfolio
	Portfolio() domain.Portfolio
	Quotes() []domain.Quote
	Orders() []domain.Order
}

// SessionHandler serves the trading session endpoints.
type SessionHandler struct {
	session SessionService
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(session SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{session: session, logger: logger}
}

type placeOrderRequest struct {
	Symbol   string `json:"symbol" validate:"required,alpha,max=10"`
	Action   string `json:"action" validate:"required,oneof=buy sell"`
	Quantity *int64 `json:"quantity,omitempty" validate:"omitempty,gt=0"`
}

type inputsRequest struct {
	Buy  *int64 `json:"buy,omitempty" validate:"omitempty,gte=0"`
	Sell *int64 `json:"sell,omitempty" validate:"omitempty,gte=0"`
}

type stopLossRequest struct {
	Price decimal.Decimal `json:"price"`
}

// Quotes returns the live quotes.
// GET /api/quotes
func (h *SessionHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"stocks": h.session.Quotes()})
}

// Portfolio returns the derived session view.
// GET /api/portfolio
func (h *SessionHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Portfolio())
}

// ListOrders returns the executed orders of the current session.
// GET /api/orders
func (h *SessionHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.session.Orders()
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// PlaceOrder executes a buy or sell.
// POST /api/orders
func (h *SessionHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	result, err := h.session.PlaceOrder(r.Context(), symbol, domain.Action(req.Action), req.Quantity)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		writeJSON(w, status, result)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// SetInputs records pending buy and sell quantities for a symbol.
// PUT /api/inputs/{symbol}
func (h *SessionHandler) SetInputs(w http.ResponseWriter, r *http.Request) {
	var req inputsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Buy == nil && req.Sell == nil {
		writeError(w, http.StatusBadRequest, "buy or sell is required")
		return
	}

	if err := h.session.SetInputs(r.Context(), symbolParam(r), req.Buy, req.Sell); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Portfolio())
}

// SetStopLoss sets a stop-loss threshold.
// PUT /api/stoploss/{symbol}
func (h *SessionHandler) SetStopLoss(w http.ResponseWriter, r *http.Request) {
	var req stopLossRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Price.IsPositive() {
		writeError(w, http.StatusBadRequest, "price must be positive")
		return
	}

	if err := h.session.SetStopLoss(r.Context(), symbolParam(r), req.Price); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.session.Portfolio())
}

// ClearStopLoss removes a stop-loss threshold.
// DELETE /api/stoploss/{symbol}
func (h *SessionHandler) ClearStopLoss(w http.ResponseWriter, r *http.Request) {
	err := h.session.ClearStopLoss(r.Context(), symbolParam(r))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no stop-loss set")
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset clears the session.
// POST /api/reset
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Reset(r.Context()))
}

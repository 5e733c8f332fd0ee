package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/papertrade/internal/domain"
	"github.com/alanyoungcy/papertrade/internal/notify"
	"github.com/alanyoungcy/papertrade/internal/portfolio"
)

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// SessionService owns the paper-trading book. Every mutation runs to
// completion under one mutex and is persisted before the lock is released;
// bus events, notifications, the order journal and the audit log are written
// afterwards and never fail the mutation.
type SessionService struct {
	mu    sync.Mutex
	book  *portfolio.Book
	store domain.StateStore

	bus      domain.SignalBus
	notifier Notifier
	journal  domain.OrderJournal
	audit    domain.AuditStore
	archiver domain.SessionArchiver
	messages notify.Messages
	logger   *slog.Logger
}

// NewSessionService creates a SessionService. bus and notifier may be nil.
func NewSessionService(
	book *portfolio.Book,
	store domain.StateStore,
	bus domain.SignalBus,
	notifier Notifier,
	currency string,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		book:     book,
		store:    store,
		bus:      bus,
		notifier: notifier,
		messages: notify.Messages{Currency: currency},
		logger:   logger,
	}
}

// WithJournal attaches an order journal that receives every executed order.
func (s *SessionService) WithJournal(j domain.OrderJournal) *SessionService {
	s.journal = j
	return s
}

// WithAudit attaches an audit store.
func (s *SessionService) WithAudit(a domain.AuditStore) *SessionService {
	s.audit = a
	return s
}

// WithArchiver attaches an archiver that receives the order history on reset.
func (s *SessionService) WithArchiver(a domain.SessionArchiver) *SessionService {
	s.archiver = a
	return s
}

// effects collects the side effects of one mutation so they can run after
// the lock is released.
type effects struct {
	orders    []domain.Order
	notes     []domain.Notification
	audits    []auditEvent
	portfolio *domain.Portfolio
}

type auditEvent struct {
	event  string
	detail map[string]any
}

// Load restores the persisted state. A missing record starts a fresh session.
func (s *SessionService) Load(ctx context.Context) error {
	st, err := s.store.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.InfoContext(ctx, "session_service: no saved state, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("session_service: load state: %w", err)
	}

	s.mu.Lock()
	s.book.Restore(st)
	p := s.book.Portfolio()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session_service: state restored",
		slog.Int("orders", p.OrderCount),
		slog.String("cash", p.Cash.String()),
		slog.String("value", p.Value.String()),
	)
	return nil
}

// SetQuotes installs snapshot quotes and re-evaluates stop-losses.
func (s *SessionService) SetQuotes(ctx context.Context, quotes []domain.Quote) {
	s.mu.Lock()
	s.book.SetQuotes(quotes)
	fx := s.checkStopLossLocked()
	s.saveLocked(ctx)
	fx.portfolio = s.portfolioLocked()
	s.mu.Unlock()

	s.apply(ctx, fx)
}

// ApplyTicks applies a coalesced batch of ticks and re-evaluates stop-losses.
func (s *SessionService) ApplyTicks(ctx context.Context, ticks []domain.Tick) {
	s.mu.Lock()
	changed := s.book.ApplyTicks(ticks)
	if len(changed) == 0 {
		s.mu.Unlock()
		return
	}
	fx := s.checkStopLossLocked()
	s.saveLocked(ctx)
	fx.portfolio = s.portfolioLocked()
	s.mu.Unlock()

	s.apply(ctx, fx)
}

// PlaceOrder executes a user buy or sell. A nil quantity uses the pending
// input for the symbol, falling back to 1. Rejections are reported both as a
// notification and as the returned error.
func (s *SessionService) PlaceOrder(ctx context.Context, symbol string, action domain.Action, quantity *int64) (domain.OrderResult, error) {
	if !action.Valid() {
		return domain.OrderResult{Message: "unknown action"}, fmt.Errorf("session_service: action %q: %w", action, domain.ErrInvalidQuantity)
	}

	s.mu.Lock()
	qty := s.book.PendingQuantity(symbol, action)
	if quantity != nil {
		qty = *quantity
	}

	var (
		order domain.Order
		err   error
	)
	if action == domain.ActionBuy {
		order, err = s.book.Buy(symbol, qty, domain.OrderSourceUser)
	} else {
		order, err = s.book.Sell(symbol, qty, domain.OrderSourceUser)
	}

	var fx effects
	if err != nil {
		fx.notes = append(fx.notes, s.rejectionLocked(symbol, qty, err))
	} else {
		fx.orders = append(fx.orders, order)
		fx.notes = append(fx.notes, s.messages.OrderFilled(order))
		fx.audits = append(fx.audits, orderAudit(order))
		more := s.checkStopLossLocked()
		fx.merge(more)
		s.saveLocked(ctx)
	}
	fx.portfolio = s.portfolioLocked()
	s.mu.Unlock()

	s.apply(ctx, fx)

	note := fx.notes[0]
	if err != nil {
		return domain.OrderResult{Success: false, Message: note.Message}, err
	}
	return domain.OrderResult{Success: true, Order: &order, Message: note.Message}, nil
}

// SetInputs records pending buy and/or sell quantities for symbol.
func (s *SessionService) SetInputs(ctx context.Context, symbol string, buy, sell *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buy != nil {
		if err := s.book.SetInput(symbol, domain.ActionBuy, *buy); err != nil {
			return err
		}
	}
	if sell != nil {
		if err := s.book.SetInput(symbol, domain.ActionSell, *sell); err != nil {
			return err
		}
	}
	s.saveLocked(ctx)
	return nil
}

// SetStopLoss sets the threshold for symbol and evaluates it immediately.
func (s *SessionService) SetStopLoss(ctx context.Context, symbol string, price decimal.Decimal) error {
	s.mu.Lock()
	if err := s.book.SetStopLoss(symbol, price); err != nil {
		s.mu.Unlock()
		return err
	}
	fx := effects{audits: []auditEvent{{
		event:  "stoploss_set",
		detail: map[string]any{"symbol": symbol, "price": price.String()},
	}}}
	fx.merge(s.checkStopLossLocked())
	s.saveLocked(ctx)
	fx.portfolio = s.portfolioLocked()
	s.mu.Unlock()

	s.apply(ctx, fx)
	return nil
}

// ClearStopLoss removes the threshold for symbol. It returns
// domain.ErrNotFound when none was set.
func (s *SessionService) ClearStopLoss(ctx context.Context, symbol string) error {
	s.mu.Lock()
	if !s.book.ClearStopLoss(symbol) {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	s.saveLocked(ctx)
	fx := effects{
		audits:    []auditEvent{{event: "stoploss_cleared", detail: map[string]any{"symbol": symbol}}},
		portfolio: s.portfolioLocked(),
	}
	s.mu.Unlock()

	s.apply(ctx, fx)
	return nil
}

// Reset clears orders, realized P&L, inputs and stop-losses and restores the
// initial cash balance. Quotes are kept. The pre-reset order history is handed
// to the archiver when one is attached.
func (s *SessionService) Reset(ctx context.Context) domain.Portfolio {
	s.mu.Lock()
	history := s.book.Orders()
	s.book.Reset()
	s.saveLocked(ctx)
	p := s.portfolioLocked()
	s.mu.Unlock()

	detail := map[string]any{"orders": len(history)}
	if s.archiver != nil && len(history) > 0 {
		path, err := s.archiver.ArchiveSession(ctx, history)
		if err != nil {
			s.logger.WarnContext(ctx, "session_service: archive failed",
				slog.Int("orders", len(history)),
				slog.String("error", err.Error()),
			)
		} else {
			detail["archive"] = path
		}
	}

	s.apply(ctx, effects{
		notes:     []domain.Notification{s.messages.Reset(p.Cash)},
		audits:    []auditEvent{{event: "session_reset", detail: detail}},
		portfolio: p,
	})
	s.logger.InfoContext(ctx, "session_service: session reset", slog.Int("orders", len(history)))
	return *p
}

// Portfolio returns the derived view of the session.
func (s *SessionService) Portfolio() domain.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Portfolio()
}

// Quotes returns the live quotes.
func (s *SessionService) Quotes() []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Quotes()
}

// Orders returns the executed orders in execution order.
func (s *SessionService) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Orders()
}

// State returns a copy of the persisted state tree.
func (s *SessionService) State() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.State()
}

// --------------------------------------------------------------------------
// Internal methods. Methods suffixed Locked require s.mu.
// --------------------------------------------------------------------------

func (s *SessionService) checkStopLossLocked() effects {
	var fx effects
	for _, r := range s.book.CheckStopLoss() {
		if r.Err != nil {
			fx.notes = append(fx.notes, s.rejectionLocked(r.Symbol, r.Quantity, r.Err))
			continue
		}
		fx.orders = append(fx.orders, r.Order)
		fx.notes = append(fx.notes, s.messages.OrderFilled(r.Order))
		fx.audits = append(fx.audits, auditEvent{
			event: "stoploss_triggered",
			detail: map[string]any{
				"symbol":    r.Symbol,
				"threshold": r.Threshold.String(),
				"price":     r.Quote.Price.String(),
				"quantity":  r.Quantity,
				"order_id":  r.Order.ID,
			},
		})
	}
	return fx
}

func (s *SessionService) rejectionLocked(symbol string, qty int64, err error) domain.Notification {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		cost := decimal.Zero
		if q, ok := s.book.Quote(symbol); ok {
			cost = q.Price.Mul(decimal.NewFromInt(qty))
		}
		return s.messages.InsufficientFunds(symbol, qty, cost, s.book.Cash())
	case errors.Is(err, domain.ErrInsufficientHoldings):
		return s.messages.InsufficientHoldings(symbol)
	default:
		return s.messages.Rejected(symbol, err)
	}
}

func (s *SessionService) saveLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.book.State()); err != nil {
		s.logger.WarnContext(ctx, "session_service: save state failed",
			slog.String("error", err.Error()),
		)
	}
}

func (s *SessionService) portfolioLocked() *domain.Portfolio {
	p := s.book.Portfolio()
	return &p
}

func (fx *effects) merge(other effects) {
	fx.orders = append(fx.orders, other.orders...)
	fx.notes = append(fx.notes, other.notes...)
	fx.audits = append(fx.audits, other.audits...)
}

func orderAudit(o domain.Order) auditEvent {
	return auditEvent{
		event: "order_executed",
		detail: map[string]any{
			"order_id": o.ID,
			"symbol":   o.Symbol,
			"action":   string(o.Action),
			"quantity": o.Quantity,
			"price":    o.Price.String(),
			"source":   string(o.Source),
		},
	}
}

// apply runs the side effects of a completed mutation.
func (s *SessionService) apply(ctx context.Context, fx effects) {
	for _, o := range fx.orders {
		if s.journal != nil {
			if err := s.journal.Append(ctx, o); err != nil {
				s.logger.WarnContext(ctx, "session_service: journal append failed",
					slog.String("order_id", o.ID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.publish(ctx, domain.ChannelOrders, o)
		s.logger.InfoContext(ctx, "session_service: order executed",
			slog.String("order_id", o.ID),
			slog.String("symbol", o.Symbol),
			slog.String("action", string(o.Action)),
			slog.Int64("quantity", o.Quantity),
			slog.String("price", o.Price.String()),
			slog.String("source", string(o.Source)),
		)
	}

	for _, a := range fx.audits {
		if s.audit == nil {
			break
		}
		if err := s.audit.Log(ctx, a.event, a.detail); err != nil {
			s.logger.WarnContext(ctx, "session_service: audit log failed",
				slog.String("event", a.event),
				slog.String("error", err.Error()),
			)
		}
	}

	if fx.portfolio != nil {
		s.publish(ctx, domain.ChannelPortfolio, fx.portfolio)
	}

	for _, n := range fx.notes {
		if s.notifier == nil {
			break
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.logger.WarnContext(ctx, "session_service: notify failed",
				slog.String("event", n.Event),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *SessionService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "session_service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "session_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

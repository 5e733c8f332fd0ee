// Package notify delivers order notifications. Every notification is kept in
// a short in-memory history, published on the signal bus for WebSocket
// clients, and forwarded to external senders (Telegram, Discord) when its
// event type passes the configured filter.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// historySize bounds the number of notifications kept for Recent.
const historySize = 100

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification.
	Send(ctx context.Context, n domain.Notification) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to the bus and to one or more Senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types for senders
	bus     domain.SignalBus
	logger  *slog.Logger

	mu      sync.Mutex
	history []domain.Notification
}

// NewNotifier creates a Notifier. Only events in the events slice are
// forwarded to senders; an empty slice allows all. bus may be nil.
func NewNotifier(senders []Sender, events []string, bus domain.SignalBus, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		bus:     bus,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify records n, publishes it and forwards it to senders. Delivery
// failures are logged and returned as a combined error; they never prevent
// delivery to the remaining senders.
func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}

	n.mu.Lock()
	n.history = append(n.history, note)
	if len(n.history) > historySize {
		n.history = n.history[len(n.history)-historySize:]
	}
	n.mu.Unlock()

	if n.bus != nil {
		payload, err := json.Marshal(note)
		if err == nil {
			err = n.bus.Publish(ctx, domain.ChannelNotifications, payload)
		}
		if err != nil {
			n.logger.WarnContext(ctx, "notifier: publish failed",
				slog.String("event", note.Event),
				slog.String("error", err.Error()),
			)
		}
	}

	if len(n.events) > 0 && !n.events[note.Event] {
		n.logger.DebugContext(ctx, "notifier: event filtered out",
			slog.String("event", note.Event),
		)
		return nil
	}
	return n.dispatch(ctx, note)
}

// Recent returns up to limit notifications, newest last.
func (n *Notifier) Recent(limit int) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()

	start := 0
	if limit > 0 && len(n.history) > limit {
		start = len(n.history) - limit
	}
	out := make([]domain.Notification, len(n.history)-start)
	copy(out, n.history[start:])
	return out
}

func (n *Notifier) dispatch(ctx context.Context, note domain.Notification) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notifier: notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", note.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

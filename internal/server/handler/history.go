package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// NotificationSource returns recently emitted notifications.
type NotificationSource interface {
	Recent(limit int) []domain.Notification
}

// HistoryHandler serves journaled orders, the audit log and recent
// notifications. Any source may be nil, in which case its endpoint
// answers 404.
type HistoryHandler struct {
	journal domain.OrderJournal
	audit   domain.AuditStore
	notes   NotificationSource
	logger  *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(journal domain.OrderJournal, audit domain.AuditStore, notes NotificationSource, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{journal: journal, audit: audit, notes: notes, logger: logger}
}

// OrderHistory lists journaled orders across sessions, newest first.
// GET /api/orders/history?limit=50&offset=0
func (h *HistoryHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeError(w, http.StatusNotFound, "order journal not configured")
		return
	}
	orders, err := h.journal.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list order history failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// AuditLog lists audit entries, newest first.
// GET /api/audit?limit=50&offset=0
func (h *HistoryHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit log failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Notifications lists the most recent notifications, oldest first.
// GET /api/notifications?limit=20
func (h *HistoryHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if h.notes == nil {
		writeError(w, http.StatusNotFound, "notifications not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.notes.Recent(parseListOpts(r).Limit)})
}

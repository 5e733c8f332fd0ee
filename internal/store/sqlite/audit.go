package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

// AuditLog adapts Store to domain.AuditStore. Store already uses List for
// the order journal, so the audit methods live on this thin view.
type AuditLog struct {
	s *Store
}

// Audit returns the audit log view of the store.
func (s *Store) Audit() *AuditLog {
	return &AuditLog{s: s}
}

// Log appends an audit entry.
func (a *AuditLog) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	rec := auditRecord{Event: event, Detail: datatypes.JSON(raw)}
	if err := a.s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries newest first.
func (a *AuditLog) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	var recs []auditRecord
	q := page(a.s.db.WithContext(ctx).Model(&auditRecord{}), "created_at", opts)
	if err := q.Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(recs))
	for _, r := range recs {
		e := domain.AuditEntry{ID: r.ID, Event: r.Event, CreatedAt: r.CreatedAt.UTC()}
		if len(r.Detail) > 0 {
			if err := json.Unmarshal(r.Detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decimalFromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return d, nil
}

// Compile-time interface check.
var _ domain.AuditStore = (*AuditLog)(nil)

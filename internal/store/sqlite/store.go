// Package sqlite persists the session record, the order journal and the audit
// log in a local SQLite file through gorm. It is the default storage backend.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/alanyoungcy/papertrade/internal/domain"
)

type stateRecord struct {
	Key       string         `gorm:"primaryKey;size:64"`
	Payload   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

func (stateRecord) TableName() string { return "state_records" }

type orderRecord struct {
	ID         string    `gorm:"primaryKey;size:64"`
	Symbol     string    `gorm:"index;size:16;not null"`
	Action     string    `gorm:"size:8;not null"`
	Quantity   int64     `gorm:"not null"`
	Price      string    `gorm:"size:32;not null"`
	Source     string    `gorm:"size:16;not null"`
	ExecutedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

func (orderRecord) TableName() string { return "orders" }

type auditRecord struct {
	ID        int64          `gorm:"primaryKey;autoIncrement"`
	Event     string         `gorm:"index;size:64;not null"`
	Detail    datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"index"`
}

func (auditRecord) TableName() string { return "audit_log" }

// Store implements domain.StateStore, domain.OrderJournal and
// domain.AuditStore on SQLite.
type Store struct {
	db *gorm.DB
}

// Open creates the database file (and its directory) if needed and migrates
// the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite: database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&stateRecord{}, &orderRecord{}, &auditRecord{}); err != nil {
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load reads the session record, or returns domain.ErrNotFound.
func (s *Store) Load(ctx context.Context) (domain.State, error) {
	var rec stateRecord
	err := s.db.WithContext(ctx).First(&rec, "key = ?", domain.StateKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.State{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.State{}, fmt.Errorf("sqlite: load state: %w", err)
	}

	var st domain.State
	if err := json.Unmarshal(rec.Payload, &st); err != nil {
		return domain.State{}, fmt.Errorf("sqlite: decode state: %w", err)
	}
	return st, nil
}

// Save upserts the session record.
func (s *Store) Save(ctx context.Context, st domain.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("sqlite: encode state: %w", err)
	}
	rec := stateRecord{Key: domain.StateKey, Payload: datatypes.JSON(payload), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sqlite: save state: %w", err)
	}
	return nil
}

// Append journals an executed order. Re-appending an ID is a no-op.
func (s *Store) Append(ctx context.Context, o domain.Order) error {
	source := o.Source
	if source == "" {
		source = domain.OrderSourceUser
	}
	rec := orderRecord{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Action:     string(o.Action),
		Quantity:   o.Quantity,
		Price:      o.Price.String(),
		Source:     string(source),
		ExecutedAt: o.ExecutedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("sqlite: append order %s: %w", o.ID, err)
	}
	return nil
}

// List returns journaled orders newest first.
func (s *Store) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	var recs []orderRecord
	q := page(s.db.WithContext(ctx).Model(&orderRecord{}), "executed_at", opts)
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(recs))
	for _, r := range recs {
		o, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (r orderRecord) toDomain() (domain.Order, error) {
	price, err := decimalFromString(r.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("sqlite: order %s: %w", r.ID, err)
	}
	return domain.Order{
		ID:         r.ID,
		Symbol:     r.Symbol,
		Quantity:   r.Quantity,
		Action:     domain.Action(r.Action),
		Price:      price,
		Source:     domain.OrderSource(r.Source),
		ExecutedAt: r.ExecutedAt.UTC(),
	}, nil
}

func page(q *gorm.DB, col string, opts domain.ListOpts) *gorm.DB {
	if opts.Since != nil {
		q = q.Where(col+" >= ?", *opts.Since)
	}
	if opts.Until != nil {
		q = q.Where(col+" <= ?", *opts.Until)
	}
	q = q.Order(col + " DESC")
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	return q
}

var (
	_ domain.StateStore   = (*Store)(nil)
	_ domain.OrderJournal = (*Store)(nil)
)

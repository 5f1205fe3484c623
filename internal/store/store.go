// Package store executes record writes through GORM and raises lifecycle
// events around them. Every write runs inside one transaction so the hook
// sequence and the physical statement commit or roll back together.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menthalabs/facet/internal/lifecycle"
	"github.com/menthalabs/facet/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("store: database handle is required")
	errMissingBus      = errors.New("store: lifecycle bus is required")

	// ErrNotFound indicates the requested record has no row in storage.
	ErrNotFound = errors.New("store: record not found")
	// ErrMissingKey indicates a write on a record without a primary-key value.
	ErrMissingKey = errors.New("store: record has no key")
	// ErrConstraint indicates a unique-index rejection. For slugs this is the
	// safety net behind the proactive uniqueness check; callers may retry
	// generation once.
	ErrConstraint = errors.New("store: constraint violation")
)

// Config describes the store dependencies.
type Config struct {
	Database   *gorm.DB
	Bus        *lifecycle.Bus
	IDProvider record.IDProvider
	Logger     *zap.Logger
}

// Store persists records and dispatches lifecycle events.
type Store struct {
	db     *gorm.DB
	bus    *lifecycle.Bus
	ids    record.IDProvider
	logger *zap.Logger
}

// New validates the configuration and constructs a store.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Bus == nil {
		return nil, errMissingBus
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = record.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, bus: cfg.Bus, ids: ids, logger: logger}, nil
}

// Insert runs pre-insert hooks, writes the row and runs post-insert hooks,
// all in one transaction. Records of generated-id types receive an identifier
// when none was assigned.
func (s *Store) Insert(ctx context.Context, rec *record.Record) error {
	typ := rec.Type()
	if typ.GeneratedID() && isEmptyKey(rec.Key()) {
		id, err := s.ids.NewID()
		if err != nil {
			return err
		}
		rec.SetKey(id)
	}
	if isEmptyKey(rec.Key()) {
		return fmt.Errorf("%w: insert into %q", ErrMissingKey, typ.Table())
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &lifecycle.Event{Tx: tx, Record: rec}
		if err := s.bus.PreInsert(ctx, event); err != nil {
			return err
		}
		if err := tx.Table(typ.Table()).Create(rec.Fields()).Error; err != nil {
			return wrapConstraint(err)
		}
		return s.bus.PostInsert(ctx, event)
	})
	if txErr != nil {
		return txErr
	}

	rec.MarkStored()
	s.logger.Debug("record inserted", zap.String("type", typ.Name()), zap.Any("key", rec.Key()))
	return nil
}

// Update runs pre-update hooks and writes the dirty columns. A record left
// clean after the hooks is a no-op.
func (s *Store) Update(ctx context.Context, rec *record.Record) error {
	typ := rec.Type()
	if isEmptyKey(rec.Key()) {
		return fmt.Errorf("%w: update of %q", ErrMissingKey, typ.Table())
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &lifecycle.Event{Tx: tx, Record: rec}
		if err := s.bus.PreUpdate(ctx, event); err != nil {
			return err
		}
		changes := rec.DirtyFields()
		if len(changes) == 0 {
			return nil
		}
		result := tx.Table(typ.Table()).
			Where(typ.KeyColumn()+" = ?", rec.Key()).
			Updates(changes)
		return wrapConstraint(result.Error)
	})
	if txErr != nil {
		return txErr
	}

	rec.MarkStored()
	s.logger.Debug("record updated", zap.String("type", typ.Name()), zap.Any("key", rec.Key()))
	return nil
}

// Delete removes a single record, with pre- and post-delete hooks around the
// statement.
func (s *Store) Delete(ctx context.Context, rec *record.Record) error {
	typ := rec.Type()
	if isEmptyKey(rec.Key()) {
		return fmt.Errorf("%w: delete from %q", ErrMissingKey, typ.Table())
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &lifecycle.Event{Tx: tx, Record: rec}
		if err := s.bus.PreDelete(ctx, event); err != nil {
			return err
		}
		statement := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", typ.Table(), typ.KeyColumn())
		if err := tx.Exec(statement, rec.Key()).Error; err != nil {
			return err
		}
		return s.bus.PostDelete(ctx, event)
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Debug("record deleted", zap.String("type", typ.Name()), zap.Any("key", rec.Key()))
	return nil
}

// DeleteWhere removes every row matching the condition. The rows are not
// loaded: pre-bulk-delete hooks receive the condition and run their own
// read-only projections before the delete executes, inside the same
// transaction. A failed projection aborts the whole bulk statement.
func (s *Store) DeleteWhere(ctx context.Context, typ *record.Type, cond record.Condition) error {
	if strings.TrimSpace(cond.Query) == "" {
		return fmt.Errorf("%w: bulk delete from %q needs a condition", ErrMissingKey, typ.Table())
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event := &lifecycle.BulkDeleteEvent{Tx: tx, Type: typ, Where: cond}
		if err := s.bus.PreBulkDelete(ctx, event); err != nil {
			return err
		}
		statement := fmt.Sprintf("DELETE FROM %s WHERE %s", typ.Table(), cond.Query)
		return tx.Exec(statement, cond.Args...).Error
	})
	if txErr != nil {
		return txErr
	}

	s.logger.Debug("records bulk deleted", zap.String("type", typ.Name()), zap.String("condition", cond.Query))
	return nil
}

// Get loads one record by key.
func (s *Store) Get(ctx context.Context, typ *record.Type, key any) (*record.Record, error) {
	var row map[string]any
	err := s.db.WithContext(ctx).
		Table(typ.Table()).
		Where(typ.KeyColumn()+" = ?", key).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %v", ErrNotFound, typ.Name(), key)
	}
	if err != nil {
		return nil, err
	}
	return record.Loaded(typ, row), nil
}

// Find loads the records matching the condition. An empty condition loads the
// whole table.
func (s *Store) Find(ctx context.Context, typ *record.Type, cond record.Condition) ([]*record.Record, error) {
	query := s.db.WithContext(ctx).Table(typ.Table())
	if strings.TrimSpace(cond.Query) != "" {
		query = query.Where(cond.Query, cond.Args...)
	}
	var rows []map[string]any
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, record.Loaded(typ, row))
	}
	return records, nil
}

// IsConstraintViolation reports whether the error is the unique-index safety
// net firing.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraint)
}

func wrapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

func isEmptyKey(key any) bool {
	if key == nil {
		return true
	}
	if text, ok := key.(string); ok {
		return strings.TrimSpace(text) == ""
	}
	return false
}

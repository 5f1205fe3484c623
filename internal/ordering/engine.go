// Package ordering maintains an explicit sequence column and exposes a
// batched resequencing operation. Reordering is client-driven and bulk, so
// the engine is invoked directly rather than through lifecycle events, and a
// whole reorder is one set-based statement instead of per-row updates.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menthalabs/facet/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrConfig indicates an unusable engine configuration, detected eagerly.
	ErrConfig = errors.New("ordering: invalid configuration")
	// ErrEmptyList indicates a reorder call without identifiers.
	ErrEmptyList = errors.New("ordering: empty identifier list")
	// ErrDuplicateID indicates the same identifier twice in a reorder list.
	ErrDuplicateID = errors.New("ordering: duplicate identifier")
	// ErrUnknownID indicates a reorder identifier without a matching row. The
	// whole call is rejected; nothing is silently dropped.
	ErrUnknownID = errors.New("ordering: unknown identifier")
)

// Config describes the order engine dependencies for one entity type.
type Config struct {
	Database    *gorm.DB
	Type        *record.Type
	OrderColumn string
	Logger      *zap.Logger
}

// Engine owns the order column of its entity type. No other code path may
// write that column.
type Engine struct {
	db          *gorm.DB
	typ         *record.Type
	orderColumn string
	logger      *zap.Logger
}

// NewEngine validates the configuration eagerly and constructs the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%w: database handle is required", ErrConfig)
	}
	if cfg.Type == nil {
		return nil, fmt.Errorf("%w: entity type is required", ErrConfig)
	}
	if strings.TrimSpace(cfg.OrderColumn) == "" {
		return nil, fmt.Errorf("%w: empty order column", ErrConfig)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:          cfg.Database,
		typ:         cfg.Type,
		orderColumn: strings.TrimSpace(cfg.OrderColumn),
		logger:      logger,
	}, nil
}

// QueryOrdered returns the type's records sorted ascending by the order
// column, key as tiebreaker. Each call issues a fresh query.
func (e *Engine) QueryOrdered(ctx context.Context) ([]*record.Record, error) {
	var rows []map[string]any
	err := e.db.WithContext(ctx).
		Table(e.typ.Table()).
		Order(fmt.Sprintf("%s ASC, %s ASC", e.orderColumn, e.typ.KeyColumn())).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, record.Loaded(e.typ, row))
	}
	return records, nil
}

// Reorder assigns 1-based order values matching each identifier's position in
// the list, in one set-based statement. Rows outside the list keep their
// order values. Duplicate or unknown identifiers reject the whole call.
// Concurrent reorders are last-writer-wins; there is no version check.
func (e *Engine) Reorder(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return ErrEmptyList
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
	}

	statement, args := e.resequenceStatement(ids)

	txErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var matched int64
		err := tx.Table(e.typ.Table()).
			Where(e.typ.KeyColumn()+" IN ?", ids).
			Count(&matched).Error
		if err != nil {
			return err
		}
		if matched != int64(len(ids)) {
			return fmt.Errorf("%w: %d of %d identifiers matched", ErrUnknownID, matched, len(ids))
		}
		return tx.Exec(statement, args...).Error
	})
	if txErr != nil {
		return txErr
	}

	e.logger.Debug("records resequenced",
		zap.String("type", e.typ.Name()),
		zap.Int("count", len(ids)))
	return nil
}

// resequenceStatement builds the single CASE-based update assigning each id
// its 1-based position.
func (e *Engine) resequenceStatement(ids []string) (string, []any) {
	key := e.typ.KeyColumn()
	var builder strings.Builder
	args := make([]any, 0, 3*len(ids))

	fmt.Fprintf(&builder, "UPDATE %s SET %s = CASE %s", e.typ.Table(), e.orderColumn, key)
	for position, id := range ids {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, id, position+1)
	}
	fmt.Fprintf(&builder, " END WHERE %s IN (?%s)", key, strings.Repeat(", ?", len(ids)-1))
	for _, id := range ids {
		args = append(args, id)
	}
	return builder.String(), args
}

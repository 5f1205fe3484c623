// Package countcache maintains denormalized child-row counters on the "one"
// side of one-to-many relations. Counters are adjusted with single
// conditional arithmetic statements, never read-modify-write, so concurrent
// writers cannot lose an increment. The engine never recounts; the one-time
// backfill when a counter column is introduced is a migration concern.
package countcache

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

// ErrConfig indicates an unusable relation configuration, detected eagerly.
var ErrConfig = errors.New("countcache: invalid configuration")

// Relation links a child foreign-key column to a parent counter column.
type Relation struct {
	// ChildColumn is the foreign-key column on the child type.
	ChildColumn string
	// ParentTable is the table holding the counter.
	ParentTable string
	// ParentKeyColumn is the parent column the foreign key points at.
	ParentKeyColumn string
	// CounterColumn is owned exclusively by this engine.
	CounterColumn string
}

func (rel Relation) validate() error {
	if strings.TrimSpace(rel.ChildColumn) == "" {
		return fmt.Errorf("%w: empty child column", ErrConfig)
	}
	if strings.TrimSpace(rel.ParentTable) == "" {
		return fmt.Errorf("%w: empty parent table", ErrConfig)
	}
	if strings.TrimSpace(rel.ParentKeyColumn) == "" {
		return fmt.Errorf("%w: empty parent key column", ErrConfig)
	}
	if strings.TrimSpace(rel.CounterColumn) == "" {
		return fmt.Errorf("%w: empty counter column", ErrConfig)
	}
	return nil
}

// Config declares the count-cache behavior for one child entity type.
type Config struct {
	Relations []Relation
}

// Engine adjusts parent counters on child inserts and deletes, including
// filter-based bulk deletes.
type Engine struct {
	lifecycle.NopHandler

	childType *record.Type
	relations []Relation
	logger    *zap.Logger
}

// NewEngine validates the configuration eagerly and constructs the engine.
func NewEngine(childType *record.Type, cfg Config, logger *zap.Logger) (*Engine, error) {
	if childType == nil {
		return nil, fmt.Errorf("%w: child type is required", ErrConfig)
	}
	if len(cfg.Relations) == 0 {
		return nil, fmt.Errorf("%w: at least one relation is required", ErrConfig)
	}
	for _, rel := range cfg.Relations {
		if err := rel.validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{childType: childType, relations: cfg.Relations, logger: logger}, nil
}

// PostInsert increments the counter of each related parent by one.
func (e *Engine) PostInsert(ctx context.Context, event *lifecycle.Event) error {
	return e.adjustForRecord(ctx, event, +1)
}

// PostDelete decrements the counter of each related parent by one.
func (e *Engine) PostDelete(ctx context.Context, event *lifecycle.Event) error {
	return e.adjustForRecord(ctx, event, -1)
}

func (e *Engine) adjustForRecord(ctx context.Context, event *lifecycle.Event, delta int64) error {
	for _, rel := range e.relations {
		parentKey := event.Record.Get(rel.ChildColumn)
		if isEmptyForeignKey(parentKey) {
			continue
		}
		if err := e.adjust(ctx, event.Tx, rel, parentKey, delta); err != nil {
			return err
		}
	}
	return nil
}

// PreBulkDelete runs a read-only projection of the delete's filter to find
// the affected parents, grouped by foreign key, then applies one decrement
// per parent sized by its number of matching children. It runs inside the
// same transaction as the delete that follows.
func (e *Engine) PreBulkDelete(ctx context.Context, event *lifecycle.BulkDeleteEvent) error {
	for _, rel := range e.relations {
		type affectedParent struct {
			ParentKey any   `gorm:"column:parent_key"`
			Children  int64 `gorm:"column:children"`
		}
		var affected []affectedParent
		err := event.Tx.WithContext(ctx).
			Table(event.Type.Table()).
			Select(rel.ChildColumn+" AS parent_key, COUNT(*) AS children").
			Where(event.Where.Query, event.Where.Args...).
			Where(rel.ChildColumn + " IS NOT NULL").
			Group(rel.ChildColumn).
			Find(&affected).Error
		if err != nil {
			return err
		}
		for _, parent := range affected {
			if err := e.adjust(ctx, event.Tx, rel, parent.ParentKey, -parent.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) adjust(ctx context.Context, tx *gorm.DB, rel Relation, parentKey any, delta int64) error {
	statement := fmt.Sprintf("UPDATE %s SET %s = %s + ? WHERE %s = ?",
		rel.ParentTable, rel.CounterColumn, rel.CounterColumn, rel.ParentKeyColumn)
	if err := tx.WithContext(ctx).Exec(statement, delta, parentKey).Error; err != nil {
		return err
	}
	e.logger.Debug("counter adjusted",
		zap.String("child_type", e.childType.Name()),
		zap.String("counter", rel.ParentTable+"."+rel.CounterColumn),
		zap.Any("parent", parentKey),
		zap.Int64("delta", delta))
	return nil
}

func isEmptyForeignKey(value any) bool {
	if value == nil {
		return true
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text) == ""
	}
	return false
}

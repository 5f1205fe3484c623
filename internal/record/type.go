package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidType indicates an entity type descriptor that cannot be used.
	ErrInvalidType = errors.New("record: invalid type")
)

// TypeConfig describes a persisted entity type.
type TypeConfig struct {
	Name        string
	Table       string
	KeyColumn   string
	LabelColumn string
	GeneratedID bool
}

// Type is an immutable entity-type descriptor shared by the lifecycle bus,
// the store and the derived-attribute engines.
type Type struct {
	name        string
	table       string
	keyColumn   string
	labelColumn string
	generatedID bool
}

// NewType validates the descriptor and returns the entity type.
func NewType(cfg TypeConfig) (*Type, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidType)
	}
	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		return nil, fmt.Errorf("%w: %q has no table", ErrInvalidType, name)
	}
	keyColumn := strings.TrimSpace(cfg.KeyColumn)
	if keyColumn == "" {
		return nil, fmt.Errorf("%w: %q has no key column", ErrInvalidType, name)
	}
	return &Type{
		name:        name,
		table:       table,
		keyColumn:   keyColumn,
		labelColumn: strings.TrimSpace(cfg.LabelColumn),
		generatedID: cfg.GeneratedID,
	}, nil
}

// Name returns the logical entity-type name.
func (t *Type) Name() string {
	return t.name
}

// Table returns the backing table name.
func (t *Type) Table() string {
	return t.table
}

// KeyColumn returns the primary-key column name.
func (t *Type) KeyColumn() string {
	return t.keyColumn
}

// LabelColumn returns the display-label column name, possibly empty.
func (t *Type) LabelColumn() string {
	return t.labelColumn
}

// GeneratedID reports whether the store should assign an identifier on insert.
func (t *Type) GeneratedID() bool {
	return t.generatedID
}

// Condition describes a row filter as a SQL fragment with bound arguments.
// Bulk deletes are expressed this way: the rows are never loaded, handlers
// that need per-row data re-run a read-only projection of the condition.
type Condition struct {
	Query string
	Args  []any
}

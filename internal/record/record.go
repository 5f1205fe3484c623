package record

import (
	"fmt"
	"sort"
)

// Record is an addressable persisted entity: a field map plus the set of
// fields changed since the record was loaded. The dirty set is what lets the
// slug resolver tell a user-driven slug edit apart from a source-field change.
type Record struct {
	typ    *Type
	fields map[string]any
	loaded map[string]any
	dirty  map[string]struct{}
	exists bool
}

// New returns an empty, not-yet-persisted record of the given type.
func New(typ *Type) *Record {
	return &Record{
		typ:    typ,
		fields: map[string]any{},
		dirty:  map[string]struct{}{},
	}
}

// Loaded returns a record hydrated from storage. The provided fields become
// the clean baseline used by Revert and dirty tracking.
func Loaded(typ *Type, fields map[string]any) *Record {
	loaded := make(map[string]any, len(fields))
	current := make(map[string]any, len(fields))
	for column, value := range fields {
		loaded[column] = value
		current[column] = value
	}
	return &Record{
		typ:    typ,
		fields: current,
		loaded: loaded,
		dirty:  map[string]struct{}{},
		exists: true,
	}
}

// Type returns the record's entity type.
func (r *Record) Type() *Type {
	return r.typ
}

// Exists reports whether the record has a row in storage.
func (r *Record) Exists() bool {
	return r.exists
}

// Get returns the current value of a field, nil when unset.
func (r *Record) Get(column string) any {
	return r.fields[column]
}

// Set assigns a field value and marks the field dirty.
func (r *Record) Set(column string, value any) {
	r.fields[column] = value
	r.dirty[column] = struct{}{}
}

// Revert restores a field to its load-time value and clears its dirty mark.
// On a record that was never loaded the field is simply unset.
func (r *Record) Revert(column string) {
	if r.loaded == nil {
		delete(r.fields, column)
	} else {
		r.fields[column] = r.loaded[column]
	}
	delete(r.dirty, column)
}

// LoadedValue returns the value the field had when the record was read from
// storage. The second return is false for new records.
func (r *Record) LoadedValue(column string) (any, bool) {
	if r.loaded == nil {
		return nil, false
	}
	value, ok := r.loaded[column]
	return value, ok
}

// IsDirty reports whether the field changed since load.
func (r *Record) IsDirty(column string) bool {
	_, ok := r.dirty[column]
	return ok
}

// Dirty returns the changed field names in a stable order.
func (r *Record) Dirty() []string {
	columns := make([]string, 0, len(r.dirty))
	for column := range r.dirty {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// Fields returns a copy of the current field map.
func (r *Record) Fields() map[string]any {
	fields := make(map[string]any, len(r.fields))
	for column, value := range r.fields {
		fields[column] = value
	}
	return fields
}

// DirtyFields returns a copy of the changed fields only.
func (r *Record) DirtyFields() map[string]any {
	fields := make(map[string]any, len(r.dirty))
	for column := range r.dirty {
		fields[column] = r.fields[column]
	}
	return fields
}

// Key returns the primary-key value, nil when unassigned.
func (r *Record) Key() any {
	return r.fields[r.typ.KeyColumn()]
}

// SetKey assigns the primary-key value without marking it dirty.
func (r *Record) SetKey(value any) {
	r.fields[r.typ.KeyColumn()] = value
}

// Label returns the display label, falling back to the key's string form
// when no label column is configured or populated.
func (r *Record) Label() string {
	if column := r.typ.LabelColumn(); column != "" {
		if value, ok := r.fields[column]; ok && value != nil {
			return fmt.Sprintf("%v", value)
		}
	}
	if key := r.Key(); key != nil {
		return fmt.Sprintf("%v", key)
	}
	return ""
}

// MarkStored flags the record as persisted and resets the clean baseline to
// the current field values. The store calls it after a successful write.
func (r *Record) MarkStored() {
	r.exists = true
	baseline := make(map[string]any, len(r.fields))
	for column, value := range r.fields {
		baseline[column] = value
	}
	r.loaded = baseline
	r.dirty = map[string]struct{}{}
}

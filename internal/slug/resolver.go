package slug

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/menthalabs/facet/internal/lifecycle"
	"github.com/menthalabs/facet/internal/record"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrExhausted indicates that no unique slug fits the configured column
// length. The truncate-then-reuniquify loop is bounded; hitting the bound is a
// configuration problem, not a transient failure.
var ErrExhausted = errors.New("slug: unique slug search exhausted")

// maxTruncateRestarts caps how many times the uniqueness search may truncate
// the base and start over before reporting the configuration as infeasible.
const maxTruncateRestarts = 4

// Resolver computes and repairs slug values for one entity type. It reacts to
// pre-insert and pre-update events; all storage access goes through the
// event's transaction.
type Resolver struct {
	lifecycle.NopHandler

	cfg    Config
	typ    *record.Type
	logger *zap.Logger
}

// NewResolver validates the configuration eagerly and constructs the resolver.
func NewResolver(typ *record.Type, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if typ == nil {
		return nil, fmt.Errorf("%w: entity type is required", ErrConfig)
	}
	validated, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: validated, typ: typ, logger: logger}, nil
}

// PreInsert resolves the slug before the physical insert. An explicit value
// set by the caller wins; otherwise the base text comes from the provider,
// the source fields, or the record label.
func (r *Resolver) PreInsert(ctx context.Context, event *lifecycle.Event) error {
	requested, _ := event.Record.Get(r.cfg.Column).(string)
	resolved, err := r.generate(ctx, event.Tx, event.Record, requested)
	if err != nil {
		return err
	}
	event.Record.Set(r.cfg.Column, resolved)
	return nil
}

// PreUpdate applies the update policy. Locked slugs never change: a user edit
// of the slug field is reverted to the stored value. Mutable slugs honour an
// explicit edit, and regenerate when a source field changed or the
// regeneration hook asks for it.
func (r *Resolver) PreUpdate(ctx context.Context, event *lifecycle.Event) error {
	rec := event.Record

	if r.cfg.UpdatePolicy == PolicyLocked {
		if rec.IsDirty(r.cfg.Column) {
			rec.Revert(r.cfg.Column)
			r.logger.Debug("reverted slug edit on locked type",
				zap.String("type", r.typ.Name()), zap.Any("key", rec.Key()))
		}
		return nil
	}

	switch {
	case rec.IsDirty(r.cfg.Column):
		requested, _ := rec.Get(r.cfg.Column).(string)
		resolved, err := r.generate(ctx, event.Tx, rec, requested)
		if err != nil {
			return err
		}
		rec.Set(r.cfg.Column, resolved)
	case r.sourceFieldDirty(rec) || r.regenerationRequested(rec):
		resolved, err := r.generate(ctx, event.Tx, rec, "")
		if err != nil {
			return err
		}
		rec.Set(r.cfg.Column, resolved)
	}
	return nil
}

func (r *Resolver) sourceFieldDirty(rec *record.Record) bool {
	for _, field := range r.cfg.Fields {
		if rec.IsDirty(field) {
			return true
		}
	}
	return false
}

func (r *Resolver) regenerationRequested(rec *record.Record) bool {
	return r.cfg.Regenerate != nil && r.cfg.Regenerate(rec)
}

// generate turns the requested text (or the source text when it is empty)
// into a slugified, truncated, unique value.
func (r *Resolver) generate(ctx context.Context, tx *gorm.DB, rec *record.Record, requested string) (string, error) {
	base := requested
	if strings.TrimSpace(base) == "" {
		base = r.sourceText(rec)
	}
	candidate := r.truncate(r.slugify(base), 0)
	return r.makeUnique(ctx, tx, rec, candidate)
}

func (r *Resolver) sourceText(rec *record.Record) string {
	if r.cfg.Provider != nil {
		return r.cfg.Provider(rec)
	}
	if len(r.cfg.Fields) == 0 {
		return rec.Label()
	}
	parts := make([]string, 0, len(r.cfg.Fields))
	for _, field := range r.cfg.Fields {
		if value := rec.Get(field); value != nil {
			parts = append(parts, fmt.Sprintf("%v", value))
		}
	}
	return strings.Join(parts, " ")
}

func (r *Resolver) slugify(text string) string {
	if r.cfg.Slugify != nil {
		return r.cfg.Slugify(text)
	}
	return Slugify(text)
}

// truncate cuts the slug to fit the column, reserving room for a
// disambiguating suffix of the given width plus its separator.
func (r *Resolver) truncate(slug string, reserve int) string {
	limit := r.cfg.MaxLength
	if reserve > 0 {
		limit -= reserve + 1
	}
	if len(slug) <= limit {
		return slug
	}
	return slug[:limit]
}

// makeUnique resolves collisions by appending -1, -2, ... to the base. When a
// candidate would exceed the column length the base is truncated to reserve
// room for the suffix width and the search restarts on the shorter base. The
// restart count is capped; exhaustion reports ErrExhausted.
func (r *Resolver) makeUnique(ctx context.Context, tx *gorm.DB, rec *record.Record, base string) (string, error) {
	for restart := 0; restart <= maxTruncateRestarts; restart++ {
		taken, err := r.similarSlugs(ctx, tx, rec, base)
		if err != nil {
			return "", err
		}
		if _, collides := taken[base]; !collides {
			return base, nil
		}

		truncated := false
		// Among len(taken)+1 suffixed candidates at least one must be free,
		// unless the column length forces a shorter base first.
		for n := 1; n <= len(taken)+1; n++ {
			candidate := r.slugify(base + "-" + strconv.Itoa(n))
			if len(candidate) > r.cfg.MaxLength {
				base = r.truncate(base, len(strconv.Itoa(n)))
				truncated = true
				break
			}
			if _, collides := taken[candidate]; !collides {
				return candidate, nil
			}
		}
		if !truncated {
			break
		}
	}
	return "", fmt.Errorf("%w: type %q, column %q, max length %d", ErrExhausted, r.typ.Name(), r.cfg.Column, r.cfg.MaxLength)
}

// similarSlugs returns the existing slugs starting with the given prefix
// within the record's uniqueness scope. The record's own row is excluded so
// updates do not collide with themselves; soft-deleted rows are included in
// every representation, their slugs are still taken.
func (r *Resolver) similarSlugs(ctx context.Context, tx *gorm.DB, rec *record.Record, prefix string) (map[string]struct{}, error) {
	query := tx.WithContext(ctx).
		Table(r.typ.Table()).
		Where(r.cfg.Column+" LIKE ?", prefix+"%")

	if rec.Exists() {
		query = query.Where(r.typ.KeyColumn()+" <> ?", rec.Key())
	}

	for _, column := range r.cfg.Scope {
		if value := rec.Get(column); value == nil {
			query = query.Where(column + " IS NULL")
		} else {
			query = query.Where(column+" = ?", value)
		}
	}

	if sd := r.cfg.SoftDelete; sd != nil {
		switch sd.Kind {
		case SoftDeleteBoolean:
			query = query.Where(fmt.Sprintf("(%[1]s = ? OR %[1]s = ?)", sd.Column), true, false)
		case SoftDeleteTimestamp:
			query = query.Where(fmt.Sprintf("(%[1]s IS NULL OR %[1]s IS NOT NULL)", sd.Column))
		}
	}

	var values []string
	if err := query.Pluck(r.cfg.Column, &values).Error; err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, len(values))
	for _, value := range values {
		taken[value] = struct{}{}
	}
	return taken, nil
}

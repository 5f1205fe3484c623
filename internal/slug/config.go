// Package slug maintains a unique, URL-friendly slug column on an entity
// type. The resolver attaches to insert and update lifecycle events and
// repairs uniqueness proactively; a backing unique index is the last-resort
// safety net against concurrent writers.
package slug

import (
	"errors"
	"fmt"
	"strings"

	"github.com/menthalabs/facet/internal/record"
)

// Policy controls how the resolver treats slugs on update.
type Policy string

const (
	// PolicyLocked keeps the slug fixed after creation. User edits of the
	// slug field are reverted to the stored value.
	PolicyLocked Policy = "locked"
	// PolicyMutable regenerates the slug when a source field changes, unless
	// the user explicitly edited the slug field, in which case the edit wins.
	PolicyMutable Policy = "mutable"
)

// SoftDeleteKind names the storage representation of logical deletion.
type SoftDeleteKind string

const (
	// SoftDeleteBoolean marks deletion with a boolean flag column.
	SoftDeleteBoolean SoftDeleteKind = "boolean"
	// SoftDeleteTimestamp marks deletion with a nullable timestamp column.
	SoftDeleteTimestamp SoftDeleteKind = "timestamp"
)

// SoftDelete declares that the entity type soft-deletes rows. A soft-deleted
// row's slug is still taken, so the uniqueness lookup must include rows in
// every deletion state.
type SoftDelete struct {
	Column string
	Kind   SoftDeleteKind
}

const (
	// Placeholder is the deterministic fallback for input that normalizes to
	// nothing.
	Placeholder = "n-a"

	defaultMaxLength = 255

	// minMaxLength leaves room for the placeholder plus a separator and one
	// disambiguation digit. Anything smaller can never satisfy uniqueness.
	minMaxLength = len(Placeholder) + 2
)

// ErrConfig indicates an unusable resolver configuration. Detected eagerly at
// construction, never at write time.
var ErrConfig = errors.New("slug: invalid configuration")

// Config declares the slug behavior for one entity type.
type Config struct {
	// Column is the slug column name.
	Column string
	// MaxLength bounds the stored slug, defaulting to 255.
	MaxLength int
	// Fields are concatenated to build the base slug text when the caller
	// supplied no explicit value.
	Fields []string
	// Scope lists additional columns partitioning uniqueness, e.g. slugs
	// unique per category.
	Scope []string
	// UpdatePolicy defaults to PolicyMutable.
	UpdatePolicy Policy
	// Slugify overrides the default text-to-slug transform.
	Slugify func(string) string
	// Provider overrides the source-text construction.
	Provider func(*record.Record) string
	// Regenerate forces regeneration on update independent of the source
	// fields.
	Regenerate func(*record.Record) bool
	// SoftDelete describes the entity type's logical-deletion column, when it
	// has one.
	SoftDelete *SoftDelete
}

func (c Config) validate() (Config, error) {
	c.Column = strings.TrimSpace(c.Column)
	if c.Column == "" {
		return c, fmt.Errorf("%w: empty slug column", ErrConfig)
	}
	if c.MaxLength == 0 {
		c.MaxLength = defaultMaxLength
	}
	if c.MaxLength < minMaxLength {
		return c, fmt.Errorf("%w: max length %d cannot hold a unique slug (minimum %d)", ErrConfig, c.MaxLength, minMaxLength)
	}
	if c.UpdatePolicy == "" {
		c.UpdatePolicy = PolicyMutable
	}
	if c.UpdatePolicy != PolicyLocked && c.UpdatePolicy != PolicyMutable {
		return c, fmt.Errorf("%w: unknown update policy %q", ErrConfig, c.UpdatePolicy)
	}
	for _, field := range c.Fields {
		if strings.TrimSpace(field) == "" {
			return c, fmt.Errorf("%w: empty source field name", ErrConfig)
		}
	}
	for _, column := range c.Scope {
		if strings.TrimSpace(column) == "" {
			return c, fmt.Errorf("%w: empty scope column name", ErrConfig)
		}
	}
	if c.SoftDelete != nil {
		if strings.TrimSpace(c.SoftDelete.Column) == "" {
			return c, fmt.Errorf("%w: soft-delete column is empty", ErrConfig)
		}
		if c.SoftDelete.Kind != SoftDeleteBoolean && c.SoftDelete.Kind != SoftDeleteTimestamp {
			return c, fmt.Errorf("%w: unknown soft-delete kind %q", ErrConfig, c.SoftDelete.Kind)
		}
	}
	return c, nil
}

// Package catalog is the demonstration domain: categories carrying a locked
// global slug, an item counter and an explicit position, and items carrying a
// mutable per-category slug. All derived attributes are declared here, once,
// when the schema is wired; configuration problems abort construction.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/menthalabs/facet/internal/countcache"
	"github.com/menthalabs/facet/internal/lifecycle"
	"github.com/menthalabs/facet/internal/ordering"
	"github.com/menthalabs/facet/internal/record"
	"github.com/menthalabs/facet/internal/slug"
	"github.com/menthalabs/facet/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("catalog: database handle is required")

	// ErrInvalidInput indicates caller-supplied values that cannot be stored.
	ErrInvalidInput = errors.New("catalog: invalid input")
)

const (
	sluggableHandler  = "sluggable"
	countCacheHandler = "count-cache"
)

// Config describes the catalog dependencies.
type Config struct {
	Database   *gorm.DB
	IDProvider record.IDProvider
	Logger     *zap.Logger
}

// Catalog exposes the catalog write and read operations. Every write goes
// through the shared store so the behavior handlers fire.
type Catalog struct {
	store      *store.Store
	bus        *lifecycle.Bus
	categories *record.Type
	items      *record.Type
	order      *ordering.Engine
	logger     *zap.Logger
}

// New wires the entity types, the behavior handlers and the order engine.
func New(cfg Config) (*Catalog, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	categories, err := record.NewType(record.TypeConfig{
		Name:        "category",
		Table:       "categories",
		KeyColumn:   "id",
		LabelColumn: "name",
		GeneratedID: true,
	})
	if err != nil {
		return nil, err
	}
	items, err := record.NewType(record.TypeConfig{
		Name:        "item",
		Table:       "items",
		KeyColumn:   "id",
		LabelColumn: "title",
		GeneratedID: true,
	})
	if err != nil {
		return nil, err
	}

	bus := lifecycle.NewBus()

	categorySlugs, err := slug.NewResolver(categories, slug.Config{
		Column:       "slug",
		MaxLength:    80,
		Fields:       []string{"name"},
		UpdatePolicy: slug.PolicyLocked,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := bus.Register(categories, sluggableHandler, categorySlugs); err != nil {
		return nil, err
	}

	itemSlugs, err := slug.NewResolver(items, slug.Config{
		Column:       "slug",
		MaxLength:    120,
		Fields:       []string{"title"},
		Scope:        []string{"category_id"},
		UpdatePolicy: slug.PolicyMutable,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := bus.Register(items, sluggableHandler, itemSlugs); err != nil {
		return nil, err
	}

	itemCounts, err := countcache.NewEngine(items, countcache.Config{
		Relations: []countcache.Relation{{
			ChildColumn:     "category_id",
			ParentTable:     "categories",
			ParentKeyColumn: "id",
			CounterColumn:   "item_count",
		}},
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := bus.Register(items, countCacheHandler, itemCounts); err != nil {
		return nil, err
	}

	recordStore, err := store.New(store.Config{
		Database:   cfg.Database,
		Bus:        bus,
		IDProvider: cfg.IDProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	categoryOrder, err := ordering.NewEngine(ordering.Config{
		Database:    cfg.Database,
		Type:        categories,
		OrderColumn: "position",
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &Catalog{
		store:      recordStore,
		bus:        bus,
		categories: categories,
		items:      items,
		order:      categoryOrder,
		logger:     logger,
	}, nil
}

// CreateCategory inserts a category. An explicit slug value is resolved, not
// trusted verbatim.
func (c *Catalog) CreateCategory(ctx context.Context, name, requestedSlug string) (*record.Record, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalidInput)
	}
	rec := record.New(c.categories)
	rec.Set("name", strings.TrimSpace(name))
	rec.Set("item_count", int64(0))
	rec.Set("position", int64(0))
	if strings.TrimSpace(requestedSlug) != "" {
		rec.Set("slug", requestedSlug)
	}
	if err := c.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListCategoriesOrdered returns categories sorted by position.
func (c *Catalog) ListCategoriesOrdered(ctx context.Context) ([]*record.Record, error) {
	return c.order.QueryOrdered(ctx)
}

// ReorderCategories resequences categories to match the submitted id list.
func (c *Catalog) ReorderCategories(ctx context.Context, ids []string) error {
	return c.order.Reorder(ctx, ids)
}

// GetCategory loads one category by id.
func (c *Catalog) GetCategory(ctx context.Context, id string) (*record.Record, error) {
	return c.store.Get(ctx, c.categories, id)
}

// ItemParams captures the writable item fields. Nil pointers mean "leave
// untouched" on update.
type ItemParams struct {
	CategoryID *string
	Title      *string
	Summary    *string
	Slug       *string
}

// CreateItem inserts an item under an existing category.
func (c *Catalog) CreateItem(ctx context.Context, params ItemParams) (*record.Record, error) {
	if params.Title == nil || strings.TrimSpace(*params.Title) == "" {
		return nil, fmt.Errorf("%w: item title is required", ErrInvalidInput)
	}
	if params.CategoryID == nil || strings.TrimSpace(*params.CategoryID) == "" {
		return nil, fmt.Errorf("%w: category id is required", ErrInvalidInput)
	}
	if _, err := c.store.Get(ctx, c.categories, *params.CategoryID); err != nil {
		return nil, err
	}

	rec := record.New(c.items)
	rec.Set("title", strings.TrimSpace(*params.Title))
	rec.Set("category_id", *params.CategoryID)
	if params.Summary != nil {
		rec.Set("summary", *params.Summary)
	} else {
		rec.Set("summary", "")
	}
	if params.Slug != nil && strings.TrimSpace(*params.Slug) != "" {
		rec.Set("slug", *params.Slug)
	}
	if err := c.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateItem applies the non-nil params to an existing item.
func (c *Catalog) UpdateItem(ctx context.Context, id string, params ItemParams) (*record.Record, error) {
	rec, err := c.store.Get(ctx, c.items, id)
	if err != nil {
		return nil, err
	}
	if params.Title != nil {
		rec.Set("title", strings.TrimSpace(*params.Title))
	}
	if params.Summary != nil {
		rec.Set("summary", *params.Summary)
	}
	if params.CategoryID != nil {
		if _, err := c.store.Get(ctx, c.categories, *params.CategoryID); err != nil {
			return nil, err
		}
		rec.Set("category_id", *params.CategoryID)
	}
	if params.Slug != nil {
		rec.Set("slug", *params.Slug)
	}
	if err := c.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetItem loads one item by id.
func (c *Catalog) GetItem(ctx context.Context, id string) (*record.Record, error) {
	return c.store.Get(ctx, c.items, id)
}

// DeleteItem removes one item; the category counter follows.
func (c *Catalog) DeleteItem(ctx context.Context, id string) error {
	rec, err := c.store.Get(ctx, c.items, id)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, rec)
}

// DeleteItemsByCategory bulk-deletes every item of a category through the
// filter-based path: affected counters are computed from a projection of the
// filter before the delete runs.
func (c *Catalog) DeleteItemsByCategory(ctx context.Context, categoryID string) error {
	if strings.TrimSpace(categoryID) == "" {
		return fmt.Errorf("%w: category id is required", ErrInvalidInput)
	}
	return c.store.DeleteWhere(ctx, c.items, record.Condition{
		Query: "category_id = ?",
		Args:  []any{categoryID},
	})
}

// DisableItemCounting pauses the count-cache handler; registrations survive
// and can be re-enabled.
func (c *Catalog) DisableItemCounting() error {
	return c.bus.Disable(c.items, countCacheHandler)
}

// EnableItemCounting resumes the count-cache handler.
func (c *Catalog) EnableItemCounting() error {
	return c.bus.Enable(c.items, countCacheHandler)
}

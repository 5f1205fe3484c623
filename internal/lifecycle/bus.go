// Package lifecycle dispatches storage-lifecycle events to the behavior
// handlers registered for an entity type. Handlers run synchronously, in
// registration order, inside the transaction of the triggering write.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/menthalabs/facet/internal/record"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateHandler indicates a handler name registered twice for a type.
	ErrDuplicateHandler = errors.New("lifecycle: handler already registered")
	// ErrUnknownHandler indicates an enable/disable call for a name never registered.
	ErrUnknownHandler = errors.New("lifecycle: handler not registered")
)

// Event carries a single-record lifecycle notification. Tx is the transaction
// the surrounding write runs in; handler reads and writes must go through it.
type Event struct {
	Tx     *gorm.DB
	Record *record.Record
}

// BulkDeleteEvent describes a filter-based delete before it executes. The
// affected rows have not been loaded; handlers needing per-row data must run a
// read-only projection of Where against the type's table through Tx.
type BulkDeleteEvent struct {
	Tx    *gorm.DB
	Type  *record.Type
	Where record.Condition
}

// Handler reacts to lifecycle events for one entity type. A returned error
// aborts the enclosing write's transaction.
type Handler interface {
	PreInsert(ctx context.Context, event *Event) error
	PostInsert(ctx context.Context, event *Event) error
	PreUpdate(ctx context.Context, event *Event) error
	PreDelete(ctx context.Context, event *Event) error
	PostDelete(ctx context.Context, event *Event) error
	PreBulkDelete(ctx context.Context, event *BulkDeleteEvent) error
}

// NopHandler implements Handler with no-ops, for embedding by behaviors that
// only care about a subset of events.
type NopHandler struct{}

func (NopHandler) PreInsert(context.Context, *Event) error               { return nil }
func (NopHandler) PostInsert(context.Context, *Event) error              { return nil }
func (NopHandler) PreUpdate(context.Context, *Event) error               { return nil }
func (NopHandler) PreDelete(context.Context, *Event) error               { return nil }
func (NopHandler) PostDelete(context.Context, *Event) error              { return nil }
func (NopHandler) PreBulkDelete(context.Context, *BulkDeleteEvent) error { return nil }

type registration struct {
	name    string
	handler Handler
	enabled bool
}

// Bus holds the ordered behavior registrations per entity type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]*registration
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: map[string][]*registration{}}
}

// Register attaches a named handler to an entity type. Handlers fire in
// registration order and start enabled.
func (b *Bus) Register(typ *record.Type, name string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[typ.Name()] {
		if existing.name == name {
			return fmt.Errorf("%w: %q on %q", ErrDuplicateHandler, name, typ.Name())
		}
	}
	b.handlers[typ.Name()] = append(b.handlers[typ.Name()], &registration{
		name:    name,
		handler: handler,
		enabled: true,
	})
	return nil
}

// Disable skips a registered handler during dispatch without removing it.
func (b *Bus) Disable(typ *record.Type, name string) error {
	return b.setEnabled(typ, name, false)
}

// Enable re-activates a previously disabled handler.
func (b *Bus) Enable(typ *record.Type, name string) error {
	return b.setEnabled(typ, name, true)
}

func (b *Bus) setEnabled(typ *record.Type, name string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.handlers[typ.Name()] {
		if existing.name == name {
			existing.enabled = enabled
			return nil
		}
	}
	return fmt.Errorf("%w: %q on %q", ErrUnknownHandler, name, typ.Name())
}

func (b *Bus) enabledHandlers(typeName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	registrations := b.handlers[typeName]
	handlers := make([]Handler, 0, len(registrations))
	for _, reg := range registrations {
		if reg.enabled {
			handlers = append(handlers, reg.handler)
		}
	}
	return handlers
}

// PreInsert dispatches the pre-insert event for the record's type.
func (b *Bus) PreInsert(ctx context.Context, event *Event) error {
	return b.dispatch(ctx, event, Handler.PreInsert)
}

// PostInsert dispatches the post-insert event for the record's type.
func (b *Bus) PostInsert(ctx context.Context, event *Event) error {
	return b.dispatch(ctx, event, Handler.PostInsert)
}

// PreUpdate dispatches the pre-update event for the record's type.
func (b *Bus) PreUpdate(ctx context.Context, event *Event) error {
	return b.dispatch(ctx, event, Handler.PreUpdate)
}

// PreDelete dispatches the pre-delete event for the record's type.
func (b *Bus) PreDelete(ctx context.Context, event *Event) error {
	return b.dispatch(ctx, event, Handler.PreDelete)
}

// PostDelete dispatches the post-delete event for the record's type.
func (b *Bus) PostDelete(ctx context.Context, event *Event) error {
	return b.dispatch(ctx, event, Handler.PostDelete)
}

// PreBulkDelete dispatches the pre-bulk-delete event for the given type.
func (b *Bus) PreBulkDelete(ctx context.Context, event *BulkDeleteEvent) error {
	for _, handler := range b.enabledHandlers(event.Type.Name()) {
		if err := handler.PreBulkDelete(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, event *Event, fire func(Handler, context.Context, *Event) error) error {
	for _, handler := range b.enabledHandlers(event.Record.Type().Name()) {
		if err := fire(handler, ctx, event); err != nil {
			return err
		}
	}
	return nil
}

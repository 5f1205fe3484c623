package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/menthalabs/facet/internal/record"
)

type recordingHandler struct {
	NopHandler
	name  string
	calls *[]string
	fail  error
}

func (h *recordingHandler) PreInsert(ctx context.Context, event *Event) error {
	*h.calls = append(*h.calls, h.name)
	return h.fail
}

func (h *recordingHandler) PreBulkDelete(ctx context.Context, event *BulkDeleteEvent) error {
	*h.calls = append(*h.calls, h.name+":bulk")
	return h.fail
}

func newBusType(t *testing.T) *record.Type {
	t.Helper()
	typ, err := record.NewType(record.TypeConfig{Name: "item", Table: "items", KeyColumn: "id"})
	if err != nil {
		t.Fatalf("unexpected type error: %v", err)
	}
	return typ
}

func TestDispatchRunsInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	var calls []string

	if err := bus.Register(typ, "first", &recordingHandler{name: "first", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := bus.Register(typ, "second", &recordingHandler{name: "second", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	event := &Event{Record: record.New(typ)}
	if err := bus.PreInsert(context.Background(), event); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected call order: %v", calls)
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	var calls []string

	if err := bus.Register(typ, "slug", &recordingHandler{name: "slug", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	err := bus.Register(typ, "slug", &recordingHandler{name: "slug", calls: &calls})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}
}

func TestDisabledHandlerIsSkippedButKept(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	var calls []string

	if err := bus.Register(typ, "slug", &recordingHandler{name: "slug", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := bus.Disable(typ, "slug"); err != nil {
		t.Fatalf("unexpected disable error: %v", err)
	}

	event := &Event{Record: record.New(typ)}
	if err := bus.PreInsert(context.Background(), event); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("disabled handler should not fire, got %v", calls)
	}

	if err := bus.Enable(typ, "slug"); err != nil {
		t.Fatalf("unexpected enable error: %v", err)
	}
	if err := bus.PreInsert(context.Background(), event); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("re-enabled handler should fire once, got %v", calls)
	}
}

func TestEnableUnknownHandlerFails(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	if err := bus.Enable(typ, "ghost"); !errors.Is(err, ErrUnknownHandler) {
		t.Fatalf("expected ErrUnknownHandler, got %v", err)
	}
}

func TestDispatchStopsOnFirstError(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	var calls []string
	boom := errors.New("boom")

	if err := bus.Register(typ, "first", &recordingHandler{name: "first", calls: &calls, fail: boom}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := bus.Register(typ, "second", &recordingHandler{name: "second", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	event := &Event{Record: record.New(typ)}
	if err := bus.PreInsert(context.Background(), event); !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("later handlers should not run after a failure, got %v", calls)
	}
}

func TestPreBulkDeleteReachesHandlers(t *testing.T) {
	bus := NewBus()
	typ := newBusType(t)
	var calls []string

	if err := bus.Register(typ, "counts", &recordingHandler{name: "counts", calls: &calls}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	event := &BulkDeleteEvent{Type: typ, Where: record.Condition{Query: "category_id = ?", Args: []any{"cat-1"}}}
	if err := bus.PreBulkDelete(context.Background(), event); err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if len(calls) != 1 || calls[0] != "counts:bulk" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

package action

import (
	"context"
	"errors"
	"testing"

	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

// recordBrowser records which enforcement call it received.
type recordBrowser struct {
	closed    []string
	relocated []string
	closeErr  error
}

func (b *recordBrowser) Tabs(context.Context, inventory.Query) ([]inventory.Tab, error) {
	return nil, nil
}

func (b *recordBrowser) CloseTab(_ context.Context, id string) error {
	b.closed = append(b.closed, id)
	return b.closeErr
}

func (b *recordBrowser) MoveTabToNewWindow(_ context.Context, id string) error {
	b.relocated = append(b.relocated, id)
	return nil
}

func TestEnforceClosesByDefault(t *testing.T) {
	b := &recordBrowser{}
	e := NewExecutor(b)
	tab := inventory.Tab{ID: "t1", URL: "https://example.com"}

	got := e.Enforce(context.Background(), tab, options.Defaults(), limits.ScopeWindow)
	if got != ResultClosed {
		t.Fatalf("Enforce() = %v, want closed", got)
	}
	if len(b.closed) != 1 || b.closed[0] != "t1" {
		t.Fatalf("closed = %v, want [t1]", b.closed)
	}
	if len(b.relocated) != 0 {
		t.Fatalf("relocated = %v, want none", b.relocated)
	}
}

func TestEnforceRelocatesOnWindowScope(t *testing.T) {
	b := &recordBrowser{}
	e := NewExecutor(b)
	opts := options.Defaults()
	opts.ExceedTabNewWindow = true

	got := e.Enforce(context.Background(), inventory.Tab{ID: "t2"}, opts, limits.ScopeWindow)
	if got != ResultRelocated {
		t.Fatalf("Enforce() = %v, want relocated", got)
	}
	if len(b.relocated) != 1 || b.relocated[0] != "t2" {
		t.Fatalf("relocated = %v, want [t2]", b.relocated)
	}
	if len(b.closed) != 0 {
		t.Fatalf("closed = %v, want none", b.closed)
	}
}

func TestEnforceNeverRelocatesOnTotalScope(t *testing.T) {
	b := &recordBrowser{}
	e := NewExecutor(b)
	opts := options.Defaults()
	opts.ExceedTabNewWindow = true

	got := e.Enforce(context.Background(), inventory.Tab{ID: "t3"}, opts, limits.ScopeTotal)
	if got != ResultClosed {
		t.Fatalf("Enforce() = %v, want closed for total scope", got)
	}
	if len(b.relocated) != 0 {
		t.Fatalf("relocated = %v, want none", b.relocated)
	}
}

func TestEnforceReportsResultDespiteBrowserError(t *testing.T) {
	b := &recordBrowser{closeErr: errors.New("tab already gone")}
	e := NewExecutor(b)

	got := e.Enforce(context.Background(), inventory.Tab{ID: "t4"}, options.Defaults(), limits.ScopeTotal)
	if got != ResultClosed {
		t.Fatalf("Enforce() = %v, want closed even when close fails", got)
	}
}

package engine

import (
	"context"
	"log/slog"

	"github.com/ziyaaktas/tab-limiter/internal/inventory"
)

// EventKind names a host lifecycle event the limiter reacts to.
type EventKind string

const (
	TabCreated         EventKind = "tab-created"
	TabRemoved         EventKind = "tab-removed"
	TabUpdated         EventKind = "tab-updated"
	WindowFocusChanged EventKind = "window-focus-changed"
	Installed          EventKind = "installed"
	Startup            EventKind = "startup"
)

// Handler reacts to one lifecycle event. Events without a subject tab pass a
// zero Tab.
type Handler func(ctx context.Context, tab inventory.Tab)

// Subscription binds an event kind to its handler.
type Subscription struct {
	Kind    EventKind
	Handler Handler
}

// Subscriptions returns the fixed subscription table. It is built once and
// registered with the host's event dispatcher exactly once at process start,
// never conditionally and never from inside an asynchronous continuation.
func (e *Engine) Subscriptions() []Subscription {
	return []Subscription{
		{Kind: TabCreated, Handler: e.HandleTabCreated},
		{Kind: TabRemoved, Handler: e.HandleTabRemoved},
		{Kind: TabUpdated, Handler: e.HandleTabUpdated},
		{Kind: WindowFocusChanged, Handler: e.HandleWindowFocusChanged},
		{Kind: Installed, Handler: e.HandleInstalled},
		{Kind: Startup, Handler: e.HandleStartup},
	}
}

// Dispatch routes an event through the subscription table. Handler panics
// are captured and logged: a crashed handler would desynchronize listener
// state for the rest of the process lifetime, so no event is ever fatal.
func Dispatch(ctx context.Context, subs []Subscription, kind EventKind, tab inventory.Tab) {
	for _, sub := range subs {
		if sub.Kind != kind {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("engine: event handler panic", "event", kind, "panic", r)
				}
			}()
			sub.Handler(ctx, tab)
		}()
		return
	}
	slog.Debug("engine: event without subscription", "event", kind)
}

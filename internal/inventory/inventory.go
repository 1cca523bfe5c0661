package inventory

import (
	"context"
	"log/slog"

	"github.com/ziyaaktas/tab-limiter/internal/options"
)

// Tab describes a browser tab. Only ID matters to enforcement; the rest is
// carried for filtering and logging.
type Tab struct {
	ID       string `json:"id"`
	WindowID int64  `json:"window_id"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Pinned   bool   `json:"pinned"`
	Active   bool   `json:"active"`
}

// Query constrains a tab listing. CurrentWindow limits the result to the
// focused window; a nil Pinned leaves pinned state unconstrained.
type Query struct {
	CurrentWindow bool
	Pinned        *bool
}

// Browser is the host facility the limiter observes and acts on. The
// production implementation speaks CDP; tests inject a fake.
type Browser interface {
	Tabs(ctx context.Context, q Query) ([]Tab, error)
	CloseTab(ctx context.Context, id string) error
	// MoveTabToNewWindow relocates the tab into a newly created, focused window.
	MoveTabToNewWindow(ctx context.Context, id string) error
}

// pinnedFilter derives the pinned constraint from the options: when pinned
// tabs do not count toward limits, the query excludes them.
func pinnedFilter(opts options.Options) *bool {
	if opts.CountPinnedTabs {
		return nil
	}
	excluded := false
	return &excluded
}

// WindowTabs lists the tabs of the focused window, honoring the pinned
// filter. Query failures degrade to an empty list so limits read as not
// exceeded for this pass.
func WindowTabs(ctx context.Context, b Browser, opts options.Options) []Tab {
	tabs, err := b.Tabs(ctx, Query{CurrentWindow: true, Pinned: pinnedFilter(opts)})
	if err != nil {
		slog.Warn("inventory: window tab query failed", "error", err)
		return nil
	}
	return tabs
}

// AllTabs lists tabs across every window, honoring the pinned filter.
func AllTabs(ctx context.Context, b Browser, opts options.Options) []Tab {
	tabs, err := b.Tabs(ctx, Query{Pinned: pinnedFilter(opts)})
	if err != nil {
		slog.Warn("inventory: total tab query failed", "error", err)
		return nil
	}
	return tabs
}

// WindowRemaining reports how many tabs the focused window may still open.
// Negative when already over the limit.
func WindowRemaining(ctx context.Context, b Browser, opts options.Options) int {
	return opts.MaxWindow - len(WindowTabs(ctx, b, opts))
}

// TotalRemaining reports how many tabs may still open across all windows.
func TotalRemaining(ctx context.Context, b Browser, opts options.Options) int {
	return opts.MaxTotal - len(AllTabs(ctx, b, opts))
}

// Match reports whether a tab satisfies a query, given the focused window.
// Fake browsers in tests and the CDP adapter share this filter.
func Match(t Tab, q Query, focusedWindow int64) bool {
	if q.CurrentWindow && t.WindowID != focusedWindow {
		return false
	}
	if q.Pinned != nil && t.Pinned != *q.Pinned {
		return false
	}
	return true
}

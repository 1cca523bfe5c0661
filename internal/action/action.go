package action

import (
	"context"
	"log/slog"

	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

// Result names what the executor did to the offending tab.
type Result string

const (
	ResultClosed    Result = "closed"
	ResultRelocated Result = "relocated"
)

// Executor carries out enforcement decisions against the browser.
type Executor struct {
	browser inventory.Browser
}

func NewExecutor(browser inventory.Browser) *Executor {
	return &Executor{browser: browser}
}

// Enforce closes the tab, or relocates it into a new focused window when the
// exceeded scope is the window cap and relocation is enabled. Relocation
// never applies to the total scope: a tab over the global cap has nowhere to
// go. Failures (the tab may already be gone) are logged and dropped, never
// retried or surfaced.
func (e *Executor) Enforce(ctx context.Context, tab inventory.Tab, opts options.Options, scope limits.Scope) Result {
	if scope == limits.ScopeWindow && opts.ExceedTabNewWindow {
		if err := e.browser.MoveTabToNewWindow(ctx, tab.ID); err != nil {
			slog.Warn("action: relocate failed", "tab_id", tab.ID, "error", err)
		} else {
			slog.Info("action: tab relocated to new window", "tab_id", tab.ID, "url", tab.URL)
		}
		return ResultRelocated
	}

	if err := e.browser.CloseTab(ctx, tab.ID); err != nil {
		slog.Warn("action: close failed", "tab_id", tab.ID, "error", err)
	} else {
		slog.Info("action: tab closed", "tab_id", tab.ID, "scope", scope, "url", tab.URL)
	}
	return ResultClosed
}

package engine

import (
	"context"
	"log/slog"

	"github.com/ziyaaktas/tab-limiter/internal/action"
	"github.com/ziyaaktas/tab-limiter/internal/alert"
	"github.com/ziyaaktas/tab-limiter/internal/badge"
	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/session"
)

// Engine decides, for each tab-creation event, whether a limit is exceeded,
// whether enforcement is suppressed because the creation was part of a batch,
// and what corrective action to take. All state it needs across events lives
// in the injected stores; nothing held in memory is assumed to survive
// between two handler invocations.
type Engine struct {
	provider *options.Provider
	browser  inventory.Browser
	state    *session.State
	exec     *action.Executor
	notifier *alert.Notifier
	badge    *badge.Badge
	feed     *Feed
}

func New(provider *options.Provider, browser inventory.Browser, state *session.State, exec *action.Executor, notifier *alert.Notifier, bd *badge.Badge, feed *Feed) *Engine {
	return &Engine{
		provider: provider,
		browser:  browser,
		state:    state,
		exec:     exec,
		notifier: notifier,
		badge:    bd,
		feed:     feed,
	}
}

// HandleTabCreated runs the full enforcement flow for one creation event.
//
// Detection runs against current counts before the counters roll forward, so
// whether enforcement fires at all is independent of the first-observation
// dampening; the recorded delta only selects between enforcing this tab,
// seeding the suppression budget for a batch, or the conservative fallback
// when the delta is unknown.
func (e *Engine) HandleTabCreated(ctx context.Context, tab inventory.Tab) {
	opts := e.provider.Get(ctx)

	scope := limits.Detect(ctx, e.browser, opts)
	if scope == limits.ScopeNone {
		e.refreshBadge(ctx, opts)
		return
	}

	delta := e.state.UpdateTabCount(ctx, opts)

	if consumed, remaining := e.state.ConsumePass(ctx); consumed {
		badge.SuppressedTotal.Inc()
		slog.Debug("engine: enforcement suppressed",
			"tab_id", tab.ID, "scope", scope, "passes_left", remaining)
		e.feed.Publish(Event{Kind: "suppressed", Scope: scope, TabID: tab.ID, Passes: remaining})
		return
	}

	var message string
	if opts.DisplayAlert {
		message = alert.Render(opts.AlertMessage, opts, scope)
		if e.notifier.Enabled() {
			if err := e.notifier.Send(ctx, "Tab limit reached", message); err != nil {
				slog.Warn("engine: alert delivery failed", "error", err)
			}
		}
		e.feed.Publish(Event{Kind: "alerted", Scope: scope, TabID: tab.ID, Message: message})
	}

	switch {
	case delta.Known && delta.N == 1:
		// A single new tab: it is unambiguously the offender.
		result := e.exec.Enforce(ctx, tab, opts, scope)
		badge.EnforcementsTotal.WithLabelValues(string(result), string(scope)).Inc()
		counts := e.refreshBadge(ctx, opts)
		e.feed.Publish(Event{Kind: "enforced", Scope: scope, Action: string(result), TabID: tab.ID, Counts: counts})

	case delta.Known && delta.N > 1:
		// A batch fires one creation event per tab. One alert for the whole
		// batch is enough, and it is ambiguous which of the N tabs is "this"
		// one, so the remaining events are passed through silently.
		passes := e.state.SetPasses(ctx, delta.N-1)
		slog.Info("engine: batch creation detected",
			"tabs_created", delta.N, "scope", scope, "passes", passes)
		e.feed.Publish(Event{Kind: "batch", Scope: scope, TabID: tab.ID, Passes: passes})

	case !delta.Known:
		// Delta could not be determined (fresh store, storage race).
		// Enforce this tab as the conservative fallback.
		result := e.exec.Enforce(ctx, tab, opts, scope)
		badge.EnforcementsTotal.WithLabelValues(string(result), string(scope)).Inc()
		counts := e.refreshBadge(ctx, opts)
		e.feed.Publish(Event{Kind: "enforced", Scope: scope, Action: string(result), TabID: tab.ID, Counts: counts})

	default:
		// Zero or negative delta with a scope exceeded: nothing sensible to
		// enforce on. Happens on the first observation after startup.
		slog.Debug("engine: no enforceable delta", "delta", delta.N, "scope", scope)
	}
}

// HandleTabRemoved refreshes counters and the badge; removals never enforce.
func (e *Engine) HandleTabRemoved(ctx context.Context, _ inventory.Tab) {
	e.refreshPass(ctx)
}

// HandleTabUpdated refreshes counters and the badge.
func (e *Engine) HandleTabUpdated(ctx context.Context, _ inventory.Tab) {
	e.refreshPass(ctx)
}

// HandleWindowFocusChanged refreshes counters and the badge for the newly
// focused window.
func (e *Engine) HandleWindowFocusChanged(ctx context.Context, _ inventory.Tab) {
	e.refreshPass(ctx)
}

// HandleInstalled writes the defaults snapshot and resets session counters.
func (e *Engine) HandleInstalled(ctx context.Context, _ inventory.Tab) {
	if err := e.provider.Install(ctx); err != nil {
		slog.Warn("engine: install defaults failed", "error", err)
	}
	e.state.Initialize(ctx)
	e.refreshBadge(ctx, e.provider.Get(ctx))
}

// HandleStartup resets session counters for the new browser session.
func (e *Engine) HandleStartup(ctx context.Context, _ inventory.Tab) {
	e.state.Initialize(ctx)
	e.refreshBadge(ctx, e.provider.Get(ctx))
}

func (e *Engine) refreshPass(ctx context.Context) {
	opts := e.provider.Get(ctx)
	e.state.UpdateTabCount(ctx, opts)
	e.refreshBadge(ctx, opts)
}

func (e *Engine) refreshBadge(ctx context.Context, opts options.Options) badge.Counts {
	counts := e.badge.Refresh(ctx, opts)
	e.feed.Publish(Event{Kind: "badge", Counts: counts, Passes: e.state.Get(ctx).Passes})
	return counts
}

package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ziyaaktas/tab-limiter/internal/badge"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/session"
)

// Status is a point-in-time view of the limiter for the settings surface.
type Status struct {
	Options  options.Options  `json:"options"`
	Counters session.Counters `json:"counters"`
	Counts   badge.Counts     `json:"counts"`
	Exceeded limits.Scope     `json:"exceeded"`
}

// Options returns the effective configuration.
func (e *Engine) Options(ctx context.Context) options.Options {
	return e.provider.Get(ctx)
}

// UpdateOptions applies option overrides from the settings surface and
// returns the new effective configuration.
func (e *Engine) UpdateOptions(ctx context.Context, updates map[string]json.RawMessage) (options.Options, error) {
	if len(updates) == 0 {
		return options.Options{}, newError(CodeValidation, "no options given", nil)
	}
	if err := e.provider.Set(ctx, updates); err != nil {
		if errors.Is(err, options.ErrInvalid) {
			return options.Options{}, newError(CodeValidation, err.Error(), err)
		}
		return options.Options{}, newError(CodeStoreFailure, "options write failed", err)
	}
	opts := e.provider.Get(ctx)
	e.refreshBadge(ctx, opts)
	return opts, nil
}

// ResetOptions drops every user override.
func (e *Engine) ResetOptions(ctx context.Context) (options.Options, error) {
	if err := e.provider.Reset(ctx); err != nil {
		return options.Options{}, newError(CodeStoreFailure, "options reset failed", err)
	}
	opts := e.provider.Get(ctx)
	e.refreshBadge(ctx, opts)
	return opts, nil
}

// Status reports current options, counters, counts and whether a scope is
// exceeded right now.
func (e *Engine) Status(ctx context.Context) Status {
	opts := e.provider.Get(ctx)
	return Status{
		Options:  opts,
		Counters: e.state.Get(ctx),
		Counts:   e.badge.Refresh(ctx, opts),
		Exceeded: limits.Detect(ctx, e.browser, opts),
	}
}

// ResetSession reinitializes the session counters.
func (e *Engine) ResetSession(ctx context.Context) session.Counters {
	e.state.Initialize(ctx)
	return e.state.Get(ctx)
}

// Feed exposes the event feed for WS subscribers.
func (e *Engine) Feed() *Feed { return e.feed }

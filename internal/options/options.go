package options

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ziyaaktas/tab-limiter/internal/storage"
)

// ErrInvalid marks option updates rejected before any write happens: unknown
// keys or values that do not decode into the field type.
var ErrInvalid = errors.New("invalid option")

// Storage keys for the individual option fields plus the install-time
// defaults snapshot.
const (
	KeyMaxTotal           = "maxTotal"
	KeyMaxWindow          = "maxWindow"
	KeyExceedTabNewWindow = "exceedTabNewWindow"
	KeyDisplayAlert       = "displayAlert"
	KeyCountPinnedTabs    = "countPinnedTabs"
	KeyDisplayBadge       = "displayBadge"
	KeyAlertMessage       = "alertMessage"
	KeyDefaultOptions     = "defaultOptions"
)

// Keys lists every user-facing option key in a stable order.
var Keys = []string{
	KeyMaxTotal,
	KeyMaxWindow,
	KeyExceedTabNewWindow,
	KeyDisplayAlert,
	KeyCountPinnedTabs,
	KeyDisplayBadge,
	KeyAlertMessage,
}

// Options is the effective limiter configuration. A caps value below 1
// disables enforcement for that scope.
type Options struct {
	MaxTotal           int    `json:"maxTotal"`
	MaxWindow          int    `json:"maxWindow"`
	ExceedTabNewWindow bool   `json:"exceedTabNewWindow"`
	DisplayAlert       bool   `json:"displayAlert"`
	CountPinnedTabs    bool   `json:"countPinnedTabs"`
	DisplayBadge       bool   `json:"displayBadge"`
	AlertMessage       string `json:"alertMessage"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Options {
	return Options{
		MaxTotal:           50,
		MaxWindow:          25,
		ExceedTabNewWindow: false,
		DisplayAlert:       true,
		CountPinnedTabs:    false,
		DisplayBadge:       true,
		AlertMessage:       "You decided not to open more than {maxPlace} tabs in {place}",
	}
}

// Provider resolves effective options by layering stored overrides over the
// install-time snapshot, which itself layers over the compiled-in defaults.
type Provider struct {
	store storage.Store
}

func NewProvider(store storage.Store) *Provider {
	return &Provider{store: store}
}

// Get returns the fully populated effective options. It never fails: every
// storage error degrades to whatever has been resolved so far, ultimately the
// compiled-in defaults.
func (p *Provider) Get(ctx context.Context) Options {
	opts := Defaults()

	raw, err := p.store.Get(ctx, KeyDefaultOptions)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &opts); err != nil {
			slog.Debug("options: defaults snapshot unreadable, using compiled-in", "error", err)
			opts = Defaults()
		}
	case !errors.Is(err, storage.ErrNotFound):
		slog.Warn("options: defaults snapshot read failed", "error", err)
	}

	for _, key := range Keys {
		raw, err := p.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.Warn("options: read failed", "key", key, "error", err)
			}
			continue
		}
		if err := applyKey(&opts, key, raw); err != nil {
			slog.Debug("options: stored value ignored", "key", key, "error", err)
		}
	}

	return opts
}

// Set writes the given option overrides. Unknown keys are rejected; known
// keys are validated by decoding into the matching field.
func (p *Provider) Set(ctx context.Context, updates map[string]json.RawMessage) error {
	probe := Defaults()
	for key, raw := range updates {
		if err := applyKey(&probe, key, raw); err != nil {
			return err
		}
	}
	for key, raw := range updates {
		if err := p.store.Set(ctx, key, raw); err != nil {
			return fmt.Errorf("options: write %s: %w", key, err)
		}
	}
	return nil
}

// Install writes the compiled-in defaults snapshot. Called once when the
// daemon is set up; user overrides layered on top survive reinstalls.
func (p *Provider) Install(ctx context.Context) error {
	if err := p.store.Set(ctx, KeyDefaultOptions, Defaults()); err != nil {
		return fmt.Errorf("options: install defaults: %w", err)
	}
	return nil
}

// Reset drops every user override, leaving the defaults snapshot in place.
func (p *Provider) Reset(ctx context.Context) error {
	for _, key := range Keys {
		if err := p.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("options: reset %s: %w", key, err)
		}
	}
	return nil
}

// Field returns an option value by its storage key name, used by the alert
// renderer's token lookup.
func (o Options) Field(key string) (any, bool) {
	switch key {
	case KeyMaxTotal:
		return o.MaxTotal, true
	case KeyMaxWindow:
		return o.MaxWindow, true
	case KeyExceedTabNewWindow:
		return o.ExceedTabNewWindow, true
	case KeyDisplayAlert:
		return o.DisplayAlert, true
	case KeyCountPinnedTabs:
		return o.CountPinnedTabs, true
	case KeyDisplayBadge:
		return o.DisplayBadge, true
	case KeyAlertMessage:
		return o.AlertMessage, true
	}
	return nil, false
}

func applyKey(opts *Options, key string, raw json.RawMessage) error {
	var err error
	switch key {
	case KeyMaxTotal:
		err = json.Unmarshal(raw, &opts.MaxTotal)
	case KeyMaxWindow:
		err = json.Unmarshal(raw, &opts.MaxWindow)
	case KeyExceedTabNewWindow:
		err = json.Unmarshal(raw, &opts.ExceedTabNewWindow)
	case KeyDisplayAlert:
		err = json.Unmarshal(raw, &opts.DisplayAlert)
	case KeyCountPinnedTabs:
		err = json.Unmarshal(raw, &opts.CountPinnedTabs)
	case KeyDisplayBadge:
		err = json.Unmarshal(raw, &opts.DisplayBadge)
	case KeyAlertMessage:
		err = json.Unmarshal(raw, &opts.AlertMessage)
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalid, key)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return nil
}

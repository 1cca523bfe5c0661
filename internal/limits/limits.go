package limits

import (
	"context"
	"sync"

	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

// Scope names the enforcement domain a tab count is measured against.
type Scope string

const (
	ScopeNone   Scope = "none"
	ScopeWindow Scope = "window"
	ScopeTotal  Scope = "total"
)

// exceeded reports whether count breaks the cap. A cap below 1 disables the
// scope, and count == max is within the limit.
func exceeded(count, max int) bool {
	if max < 1 {
		return false
	}
	return count > max
}

// Detect compares current tab counts against the configured maxima and
// returns the exceeded scope, window taking priority over total. The two
// counts have no data dependency and are gathered concurrently.
func Detect(ctx context.Context, b inventory.Browser, opts options.Options) Scope {
	var (
		wg                  sync.WaitGroup
		windowHit, totalHit bool
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		windowHit = exceeded(len(inventory.WindowTabs(ctx, b, opts)), opts.MaxWindow)
	}()
	go func() {
		defer wg.Done()
		totalHit = exceeded(len(inventory.AllTabs(ctx, b, opts)), opts.MaxTotal)
	}()
	wg.Wait()

	switch {
	case windowHit:
		return ScopeWindow
	case totalHit:
		return ScopeTotal
	default:
		return ScopeNone
	}
}

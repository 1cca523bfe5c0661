package badge

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/options"
)

var (
	WindowTabs        = promauto.NewGauge(prometheus.GaugeOpts{Name: "tablimiter_window_tabs", Help: "Counted tabs in the focused window"})
	TotalTabs         = promauto.NewGauge(prometheus.GaugeOpts{Name: "tablimiter_total_tabs", Help: "Counted tabs across all windows"})
	WindowRemaining   = promauto.NewGauge(prometheus.GaugeOpts{Name: "tablimiter_window_remaining", Help: "Tabs remaining before the per-window cap, negative when over"})
	TotalRemaining    = promauto.NewGauge(prometheus.GaugeOpts{Name: "tablimiter_total_remaining", Help: "Tabs remaining before the global cap, negative when over"})
	EnforcementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "tablimiter_enforcements_total", Help: "Enforcement actions by action and scope"}, []string{"action", "scope"})
	SuppressedTotal   = promauto.NewCounter(prometheus.CounterOpts{Name: "tablimiter_suppressed_total", Help: "Creation events suppressed by the pass counter"})
)

// Badge publishes the live remaining-count indicator as Prometheus gauges.
type Badge struct {
	browser inventory.Browser
}

func New(browser inventory.Browser) *Badge {
	return &Badge{browser: browser}
}

// Counts is a point-in-time badge reading.
type Counts struct {
	WindowTabs      int `json:"window_tabs"`
	TotalTabs       int `json:"total_tabs"`
	WindowRemaining int `json:"window_remaining"`
	TotalRemaining  int `json:"total_remaining"`
}

// Refresh recomputes both scope counts and updates the gauges. The two
// lookups are independent and run concurrently. When the badge is disabled
// the gauges are left untouched but the counts are still returned for
// status reporting.
func (b *Badge) Refresh(ctx context.Context, opts options.Options) Counts {
	var (
		wg     sync.WaitGroup
		counts Counts
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		counts.WindowTabs = len(inventory.WindowTabs(ctx, b.browser, opts))
	}()
	go func() {
		defer wg.Done()
		counts.TotalTabs = len(inventory.AllTabs(ctx, b.browser, opts))
	}()
	wg.Wait()

	counts.WindowRemaining = opts.MaxWindow - counts.WindowTabs
	counts.TotalRemaining = opts.MaxTotal - counts.TotalTabs

	if opts.DisplayBadge {
		WindowTabs.Set(float64(counts.WindowTabs))
		TotalTabs.Set(float64(counts.TotalTabs))
		WindowRemaining.Set(float64(counts.WindowRemaining))
		TotalRemaining.Set(float64(counts.TotalRemaining))
	}
	return counts
}

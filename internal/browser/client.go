package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/ziyaaktas/tab-limiter/internal/engine"
	"github.com/ziyaaktas/tab-limiter/internal/inventory"
)

// tabRecord caches what the limiter knows about a page target between
// events, mainly its window membership.
type tabRecord struct {
	windowID int64
	url      string
	title    string
}

// Client implements inventory.Browser over the Chrome DevTools Protocol and
// pumps target lifecycle events into the limiter's subscription table.
type Client struct {
	cdpURL      string
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc

	mu         sync.RWMutex
	tabs       map[target.ID]tabRecord
	lastActive int64 // window of the most recently changed page target

	events chan hostEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// hostEvent is a raw target event queued from chromedp's event goroutine.
// Window resolution needs CDP round trips, which must not run on that
// goroutine, so classification finishes in the dispatch loop.
type hostEvent struct {
	created   *target.Info
	changed   *target.Info
	destroyed target.ID
}

func NewClient(cdpURL string) *Client {
	return &Client{
		cdpURL: cdpURL,
		tabs:   make(map[target.ID]tabRecord),
		events: make(chan hostEvent, 64),
		done:   make(chan struct{}),
	}
}

// Connect attaches to the browser endpoint and verifies the connection.
func (c *Client) Connect(ctx context.Context) error {
	_ = ctx
	slog.Info("connecting to browser", "url", c.cdpURL)

	c.allocCtx, c.allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.cdpURL)
	c.browserCtx, c.cancel = chromedp.NewContext(c.allocCtx)

	if err := chromedp.Run(c.browserCtx); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	return nil
}

// Watch registers the event listener and enables target discovery, then
// dispatches host events to the subscription table until ctx is cancelled.
// The listener registration is fixed configuration: it happens before any
// awaited bootstrap result, exactly once.
func (c *Client) Watch(ctx context.Context, subs []engine.Subscription) error {
	chromedp.ListenBrowser(c.browserCtx, c.onBrowserEvent)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case ev := <-c.events:
				c.dispatch(ctx, subs, ev)
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(ctx)
	})); err != nil {
		return fmt.Errorf("enable target discovery: %w", err)
	}

	slog.Info("watching browser targets")
	return nil
}

// onBrowserEvent runs on chromedp's event goroutine; it only queues the raw
// event, the dispatch goroutine does the storage and CDP work.
func (c *Client) onBrowserEvent(ev any) {
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo.Type != "page" {
			return
		}
		c.queue(hostEvent{created: e.TargetInfo})
	case *target.EventTargetDestroyed:
		c.queue(hostEvent{destroyed: e.TargetID})
	case *target.EventTargetInfoChanged:
		if e.TargetInfo.Type != "page" {
			return
		}
		c.queue(hostEvent{changed: e.TargetInfo})
	}
}

func (c *Client) queue(ev hostEvent) {
	select {
	case c.events <- ev:
	default:
		slog.Warn("browser: event buffer full, dropping event")
	}
}

func (c *Client) dispatch(ctx context.Context, subs []engine.Subscription, ev hostEvent) {
	switch {
	case ev.created != nil:
		c.rememberTarget(ev.created)
		engine.Dispatch(ctx, subs, engine.TabCreated, c.tabOf(ev.created.TargetID))
	case ev.destroyed != "":
		tab, known := c.forgetTarget(ev.destroyed)
		if !known {
			return
		}
		engine.Dispatch(ctx, subs, engine.TabRemoved, tab)
	case ev.changed != nil:
		focusChanged := c.rememberTarget(ev.changed)
		engine.Dispatch(ctx, subs, engine.TabUpdated, c.tabOf(ev.changed.TargetID))
		if focusChanged {
			engine.Dispatch(ctx, subs, engine.WindowFocusChanged, c.tabOf(ev.changed.TargetID))
		}
	}
}

// rememberTarget updates the target cache and reports whether the focused
// window changed. Window membership is resolved lazily because
// Browser.getWindowForTarget needs a CDP round trip.
func (c *Client) rememberTarget(info *target.Info) (focusChanged bool) {
	windowID := c.windowForTarget(info.TargetID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabs[info.TargetID] = tabRecord{windowID: windowID, url: info.URL, title: info.Title}
	if windowID != 0 && windowID != c.lastActive {
		c.lastActive = windowID
		return true
	}
	return false
}

func (c *Client) forgetTarget(id target.ID) (inventory.Tab, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.tabs[id]
	if !ok {
		return inventory.Tab{}, false
	}
	delete(c.tabs, id)
	return inventory.Tab{ID: string(id), WindowID: rec.windowID, URL: rec.url, Title: rec.title}, true
}

func (c *Client) tabOf(id target.ID) inventory.Tab {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec := c.tabs[id]
	return inventory.Tab{ID: string(id), WindowID: rec.windowID, URL: rec.url, Title: rec.title}
}

func (c *Client) windowForTarget(id target.ID) int64 {
	var windowID cdpbrowser.WindowID
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		windowID, _, err = cdpbrowser.GetWindowForTarget().WithTargetID(id).Do(ctx)
		return err
	}))
	if err != nil {
		slog.Debug("browser: window lookup failed", "target_id", id, "error", err)
		return 0
	}
	return int64(windowID)
}

// Tabs lists page targets, resolving window membership and applying the
// query filter. CDP does not expose the pinned bit, so live tabs always
// report Pinned=false.
func (c *Client) Tabs(ctx context.Context, q inventory.Query) ([]inventory.Tab, error) {
	_ = ctx
	var targets []*target.Info
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		targets, err = target.GetTargets().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	c.mu.RLock()
	focused := c.lastActive
	c.mu.RUnlock()

	tabs := make([]inventory.Tab, 0, len(targets))
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		tab := inventory.Tab{
			ID:       string(t.TargetID),
			WindowID: c.cachedWindow(t.TargetID),
			URL:      t.URL,
			Title:    t.Title,
			Active:   t.Attached,
		}
		if tab.WindowID == 0 {
			tab.WindowID = c.windowForTarget(t.TargetID)
		}
		if inventory.Match(tab, q, focused) {
			tabs = append(tabs, tab)
		}
	}
	return tabs, nil
}

func (c *Client) cachedWindow(id target.ID) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tabs[id].windowID
}

// CloseTab removes the tab. Closing an already-gone target is an external
// error the caller logs and drops.
func (c *Client) CloseTab(ctx context.Context, id string) error {
	_ = ctx
	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.CloseTarget(target.ID(id)).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("close target %s: %w", id, err)
	}
	return nil
}

// MoveTabToNewWindow relocates a tab by opening its URL in a new focused
// window and closing the original target. CDP has no native move-tab call.
func (c *Client) MoveTabToNewWindow(ctx context.Context, id string) error {
	_ = ctx
	url := c.tabOf(target.ID(id)).URL
	if url == "" {
		url = "about:blank"
	}

	err := chromedp.Run(c.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		newID, err := target.CreateTarget(url).WithNewWindow(true).Do(ctx)
		if err != nil {
			return fmt.Errorf("create window: %w", err)
		}
		if err := target.ActivateTarget(newID).Do(ctx); err != nil {
			slog.Debug("browser: focus new window failed", "target_id", newID, "error", err)
		}
		return target.CloseTarget(target.ID(id)).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("relocate target %s: %w", id, err)
	}
	return nil
}

// Close tears the CDP connection down.
func (c *Client) Close() error {
	close(c.done)
	c.wg.Wait()

	if c.cancel != nil {
		c.cancel()
	}
	if c.allocCancel != nil {
		c.allocCancel()
	}
	slog.Info("browser connection closed")
	return nil
}

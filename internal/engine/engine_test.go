package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ziyaaktas/tab-limiter/internal/action"
	"github.com/ziyaaktas/tab-limiter/internal/alert"
	"github.com/ziyaaktas/tab-limiter/internal/badge"
	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/session"
	"github.com/ziyaaktas/tab-limiter/internal/storage"
)

// fakeBrowser reports configurable tab counts and records enforcement calls.
type fakeBrowser struct {
	windowCount int
	totalCount  int
	closed      []string
	relocated   []string
}

func (b *fakeBrowser) Tabs(_ context.Context, q inventory.Query) ([]inventory.Tab, error) {
	n := b.totalCount
	if q.CurrentWindow {
		n = b.windowCount
	}
	return make([]inventory.Tab, n), nil
}

func (b *fakeBrowser) CloseTab(_ context.Context, id string) error {
	b.closed = append(b.closed, id)
	return nil
}

func (b *fakeBrowser) MoveTabToNewWindow(_ context.Context, id string) error {
	b.relocated = append(b.relocated, id)
	return nil
}

type harness struct {
	engine       *Engine
	browser      *fakeBrowser
	syncStore    storage.Store
	sessionStore storage.Store
	state        *session.State
	feed         *Feed
}

func newHarness(windowCount, totalCount int) *harness {
	b := &fakeBrowser{windowCount: windowCount, totalCount: totalCount}
	syncStore := storage.NewMemStore()
	sessionStore := storage.NewMemStore()
	state := session.NewState(sessionStore, b)
	feed := NewFeed()

	eng := New(
		options.NewProvider(syncStore),
		b,
		state,
		action.NewExecutor(b),
		alert.NewNotifier("", nil),
		badge.New(b),
		feed,
	)
	return &harness{engine: eng, browser: b, syncStore: syncStore, sessionStore: sessionStore, state: state, feed: feed}
}

// setOption writes a raw option override into the sync store.
func (h *harness) setOption(t *testing.T, key string, value any) {
	t.Helper()
	if err := h.syncStore.Set(context.Background(), key, value); err != nil {
		t.Fatalf("seed option %s: %v", key, err)
	}
}

// seedCount pins the recorded tab count, as if a prior event already observed it.
func (h *harness) seedCount(t *testing.T, count int) {
	t.Helper()
	h.state.Set(context.Background(), map[string]int{session.KeyTabCount: count})
}

// drain collects every event already buffered in the subscription channel.
func drain(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func kinds(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestHandleTabCreatedUnderLimitsDoesNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3, 5)

	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	if len(h.browser.closed)+len(h.browser.relocated) != 0 {
		t.Fatalf("enforced below the limits: closed=%v relocated=%v", h.browser.closed, h.browser.relocated)
	}
	// Counters are only rolled forward once a limit is exceeded.
	if got := h.state.Get(ctx).TabCount; got != session.Unobserved {
		t.Fatalf("tabCount = %d, want untouched", got)
	}
}

func TestHandleTabCreatedSingleOffenderIsClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 11)
	h.setOption(t, options.KeyMaxTotal, 10)
	h.seedCount(t, 10)

	ch, cancel := h.feed.Subscribe()
	defer cancel()

	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	if len(h.browser.closed) != 1 || h.browser.closed[0] != "t1" {
		t.Fatalf("closed = %v, want [t1]", h.browser.closed)
	}

	events := drain(ch)
	var sawAlert, sawEnforced bool
	for _, ev := range events {
		switch ev.Kind {
		case "alerted":
			sawAlert = true
			if ev.Message == "" {
				t.Fatal("alert event with empty message")
			}
		case "enforced":
			sawEnforced = true
			if ev.Scope != limits.ScopeTotal || ev.Action != string(action.ResultClosed) {
				t.Fatalf("enforced event = %+v, want total/closed", ev)
			}
		}
	}
	if !sawAlert || !sawEnforced {
		t.Fatalf("events = %v, want alerted and enforced", kinds(events))
	}
}

func TestHandleTabCreatedBatchSuppression(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 15)
	h.setOption(t, options.KeyMaxTotal, 10)
	h.seedCount(t, 10)

	ch, cancel := h.feed.Subscribe()
	defer cancel()

	// A batch of five fires five creation events against the same count.
	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "b1"})
	if got := h.state.Get(ctx).Passes; got != 4 {
		t.Fatalf("passes after batch head = %d, want 4", got)
	}
	if len(h.browser.closed) != 0 {
		t.Fatalf("batch head closed a tab: %v", h.browser.closed)
	}

	for _, id := range []string{"b2", "b3", "b4", "b5"} {
		h.engine.HandleTabCreated(ctx, inventory.Tab{ID: id})
	}
	if len(h.browser.closed) != 0 {
		t.Fatalf("suppressed events closed tabs: %v", h.browser.closed)
	}
	if got := h.state.Get(ctx).Passes; got != 0 {
		t.Fatalf("passes after batch = %d, want 0", got)
	}

	events := drain(ch)
	var alerts, suppressed int
	for _, ev := range events {
		switch ev.Kind {
		case "alerted":
			alerts++
		case "suppressed":
			suppressed++
		}
	}
	if alerts != 1 {
		t.Fatalf("alerts = %d, want exactly one for the whole batch", alerts)
	}
	if suppressed != 4 {
		t.Fatalf("suppressed = %d, want 4", suppressed)
	}

	// The next single creation is enforced again.
	h.browser.totalCount = 16
	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t6"})
	if len(h.browser.closed) != 1 || h.browser.closed[0] != "t6" {
		t.Fatalf("closed = %v, want [t6] after budget drained", h.browser.closed)
	}
}

func TestHandleTabCreatedFirstObservationDoesNotEnforce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 15)
	h.setOption(t, options.KeyMaxTotal, 10)

	ch, cancel := h.feed.Subscribe()
	defer cancel()

	// Fresh session store: the daemon just attached to a browser that is
	// already over the limit. The user is alerted but nothing is closed.
	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	if len(h.browser.closed)+len(h.browser.relocated) != 0 {
		t.Fatalf("first observation enforced: closed=%v relocated=%v", h.browser.closed, h.browser.relocated)
	}
	var sawAlert bool
	for _, ev := range drain(ch) {
		if ev.Kind == "alerted" {
			sawAlert = true
		}
	}
	if !sawAlert {
		t.Fatal("first observation over the limit produced no alert")
	}
}

func TestHandleTabCreatedUnknownDeltaEnforces(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 15)
	h.setOption(t, options.KeyMaxTotal, 10)
	// Count already observed, but the recorded delta is missing. The count
	// is unchanged so no new delta can be derived.
	h.seedCount(t, 15)

	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	if len(h.browser.closed) != 1 || h.browser.closed[0] != "t1" {
		t.Fatalf("closed = %v, want conservative close on unknown delta", h.browser.closed)
	}
}

func TestHandleTabCreatedRelocatesOnWindowScope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(11, 12)
	h.setOption(t, options.KeyMaxWindow, 10)
	h.setOption(t, options.KeyExceedTabNewWindow, true)
	h.seedCount(t, 11)

	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	if len(h.browser.relocated) != 1 || h.browser.relocated[0] != "t1" {
		t.Fatalf("relocated = %v, want [t1]", h.browser.relocated)
	}
	if len(h.browser.closed) != 0 {
		t.Fatalf("closed = %v, want none", h.browser.closed)
	}
}

func TestHandleTabCreatedAlertDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 11)
	h.setOption(t, options.KeyMaxTotal, 10)
	h.setOption(t, options.KeyDisplayAlert, false)
	h.seedCount(t, 10)

	ch, cancel := h.feed.Subscribe()
	defer cancel()

	h.engine.HandleTabCreated(ctx, inventory.Tab{ID: "t1"})

	for _, ev := range drain(ch) {
		if ev.Kind == "alerted" {
			t.Fatal("alert published with displayAlert disabled")
		}
	}
	// Enforcement is independent of alerting.
	if len(h.browser.closed) != 1 {
		t.Fatalf("closed = %v, want one", h.browser.closed)
	}
}

func TestHandleTabRemovedRollsCountersForward(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3, 8)

	h.engine.HandleTabRemoved(ctx, inventory.Tab{})
	if got := h.state.Get(ctx).TabCount; got != 8 {
		t.Fatalf("tabCount = %d, want 8", got)
	}

	h.browser.totalCount = 6
	h.engine.HandleTabRemoved(ctx, inventory.Tab{})
	c := h.state.Get(ctx)
	if c.TabCount != 6 || c.TabsCreated != -2 {
		t.Fatalf("counters = %+v, want tabCount=6 created=-2", c)
	}
}

func TestHandleInstalledWritesDefaultsAndResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1, 1)
	h.state.SetPasses(ctx, 3)

	h.engine.HandleInstalled(ctx, inventory.Tab{})

	if _, err := h.syncStore.Get(ctx, options.KeyDefaultOptions); err != nil {
		t.Fatalf("defaults snapshot missing after install: %v", err)
	}
	if got := h.state.Get(ctx).Passes; got != 0 {
		t.Fatalf("passes = %d, want reset", got)
	}
}

func TestHandleStartupResetsSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(4, 9)
	h.engine.HandleTabRemoved(ctx, inventory.Tab{})
	h.state.SetPasses(ctx, 2)

	h.engine.HandleStartup(ctx, inventory.Tab{})

	if got := h.state.Get(ctx); got != session.DefaultCounters() {
		t.Fatalf("counters after startup = %+v, want defaults", got)
	}
}

func TestSubscriptionsCoverEveryEvent(t *testing.T) {
	h := newHarness(0, 0)
	subs := h.engine.Subscriptions()

	want := []EventKind{TabCreated, TabRemoved, TabUpdated, WindowFocusChanged, Installed, Startup}
	if len(subs) != len(want) {
		t.Fatalf("len(subs) = %d, want %d", len(subs), len(want))
	}
	seen := make(map[EventKind]bool)
	for _, sub := range subs {
		if sub.Handler == nil {
			t.Fatalf("subscription %s has nil handler", sub.Kind)
		}
		if seen[sub.Kind] {
			t.Fatalf("duplicate subscription for %s", sub.Kind)
		}
		seen[sub.Kind] = true
	}
	for _, kind := range want {
		if !seen[kind] {
			t.Fatalf("no subscription for %s", kind)
		}
	}
}

func TestDispatchRoutesAndRecovers(t *testing.T) {
	ctx := context.Background()

	var handled []string
	subs := []Subscription{
		{Kind: TabCreated, Handler: func(_ context.Context, tab inventory.Tab) {
			handled = append(handled, tab.ID)
		}},
		{Kind: TabRemoved, Handler: func(context.Context, inventory.Tab) {
			panic("boom")
		}},
	}

	Dispatch(ctx, subs, TabCreated, inventory.Tab{ID: "t1"})
	if len(handled) != 1 || handled[0] != "t1" {
		t.Fatalf("handled = %v, want [t1]", handled)
	}

	// Panicking handlers are contained.
	Dispatch(ctx, subs, TabRemoved, inventory.Tab{})

	// An event no one subscribed to is a no-op.
	Dispatch(ctx, subs, Startup, inventory.Tab{})
}

func TestUpdateOptions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1, 1)

	opts, err := h.engine.UpdateOptions(ctx, map[string]json.RawMessage{
		options.KeyMaxTotal: json.RawMessage(`30`),
	})
	if err != nil {
		t.Fatalf("UpdateOptions() error: %v", err)
	}
	if opts.MaxTotal != 30 {
		t.Fatalf("MaxTotal = %d, want 30", opts.MaxTotal)
	}
}

func TestUpdateOptionsRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1, 1)

	_, err := h.engine.UpdateOptions(ctx, nil)
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeValidation {
		t.Fatalf("error = %v, want validation CodedError", err)
	}
}

func TestUpdateOptionsRejectsBadValue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(1, 1)

	_, err := h.engine.UpdateOptions(ctx, map[string]json.RawMessage{
		options.KeyMaxTotal: json.RawMessage(`"plenty"`),
	})
	var coded *CodedError
	if !errors.As(err, &coded) || coded.Code != CodeValidation {
		t.Fatalf("error = %v, want validation CodedError", err)
	}
	// The failed update must not leave partial state behind.
	if got := h.engine.Options(ctx).MaxTotal; got != options.Defaults().MaxTotal {
		t.Fatalf("MaxTotal = %d, want default after rejected update", got)
	}
}

func TestStatusReflectsLiveState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(5, 15)
	h.setOption(t, options.KeyMaxTotal, 10)

	st := h.engine.Status(ctx)
	if st.Exceeded != limits.ScopeTotal {
		t.Fatalf("Exceeded = %v, want total", st.Exceeded)
	}
	if st.Counts.TotalTabs != 15 || st.Counts.TotalRemaining != -5 {
		t.Fatalf("Counts = %+v, want total=15 remaining=-5", st.Counts)
	}
	if st.Options.MaxTotal != 10 {
		t.Fatalf("Options.MaxTotal = %d, want 10", st.Options.MaxTotal)
	}
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(3, 7)
	h.engine.HandleTabRemoved(ctx, inventory.Tab{})

	got := h.engine.ResetSession(ctx)
	if got != session.DefaultCounters() {
		t.Fatalf("ResetSession() = %+v, want defaults", got)
	}
}

func TestFeedDropsWhenSubscriberIsSlow(t *testing.T) {
	feed := NewFeed()
	ch, cancel := feed.Subscribe()
	defer cancel()

	// Overfill the buffer. Publish must never block.
	for i := 0; i < 40; i++ {
		feed.Publish(Event{Kind: "badge"})
	}
	if got := len(drain(ch)); got != 16 {
		t.Fatalf("delivered = %d, want buffer capacity 16", got)
	}
}

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ziyaaktas/tab-limiter/internal/inventory"
	"github.com/ziyaaktas/tab-limiter/internal/options"
	"github.com/ziyaaktas/tab-limiter/internal/storage"
)

// Session store keys.
const (
	KeyTabCount         = "tabCount"
	KeyPreviousTabCount = "previousTabCount"
	KeyTabsCreated      = "amountOfTabsCreated"
	KeyPasses           = "passes"
)

// Unobserved is the stored sentinel for counters that have never been set.
const Unobserved = -1

// Counters is the persisted session state. TabCount and PreviousTabCount use
// the Unobserved sentinel before the first observation; TabsCreated keeps the
// signed creation delta between the last two observations, Unobserved when it
// could not be determined. Passes counts enforcement events left to suppress
// and never goes negative.
type Counters struct {
	TabCount         int `json:"tabCount"`
	PreviousTabCount int `json:"previousTabCount"`
	TabsCreated      int `json:"amountOfTabsCreated"`
	Passes           int `json:"passes"`
}

// DefaultCounters is the state written at install, startup and session reset.
func DefaultCounters() Counters {
	return Counters{
		TabCount:         Unobserved,
		PreviousTabCount: Unobserved,
		TabsCreated:      Unobserved,
		Passes:           0,
	}
}

// Delta is the creation delta exposed to the engine. Known is false when the
// stored value is the Unobserved sentinel.
type Delta struct {
	N     int
	Known bool
}

// Stored converts a Delta back to its storage encoding.
func (d Delta) Stored() int {
	if !d.Known {
		return Unobserved
	}
	return d.N
}

// DeltaOf decodes a stored delta value.
func DeltaOf(stored int) Delta {
	if stored == Unobserved {
		return Delta{}
	}
	return Delta{N: stored, Known: true}
}

// State reads and mutates the session counters through an injected store.
// The mutex makes every read-modify-write (most importantly the passes
// suppression check) a critical section within this process; cross-process
// races degrade to an occasional imperfect suppression, never a crash.
type State struct {
	store   storage.Store
	browser inventory.Browser
	mu      sync.Mutex
}

func NewState(store storage.Store, browser inventory.Browser) *State {
	return &State{store: store, browser: browser}
}

// Get returns the current counters, falling back to defaults for any key
// that is missing or unreadable. It never fails.
func (s *State) Get(ctx context.Context) Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ctx)
}

func (s *State) get(ctx context.Context) Counters {
	defaults := DefaultCounters()
	c := defaults

	read := func(key string, fallback int) int {
		n, err := storage.GetInt(ctx, s.store, key, fallback)
		if err != nil {
			slog.Warn("session: counter read failed", "key", key, "error", err)
			return fallback
		}
		return n
	}

	c.TabCount = read(KeyTabCount, defaults.TabCount)
	c.PreviousTabCount = read(KeyPreviousTabCount, defaults.PreviousTabCount)
	c.TabsCreated = read(KeyTabsCreated, defaults.TabsCreated)
	c.Passes = read(KeyPasses, defaults.Passes)
	if c.Passes < 0 {
		c.Passes = 0
	}
	return c
}

func (s *State) set(ctx context.Context, updates map[string]int) {
	for key, val := range updates {
		if err := s.store.Set(ctx, key, val); err != nil {
			slog.Warn("session: counter write failed", "key", key, "error", err)
		}
	}
}

// Set merges the given counter updates into the stored state. Write failures
// are logged and swallowed; a broken session store must not take the event
// handler down with it.
func (s *State) Set(ctx context.Context, updates map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(ctx, updates)
}

// Initialize resets the counters to their defaults.
func (s *State) Initialize(ctx context.Context) {
	d := DefaultCounters()
	s.Set(ctx, map[string]int{
		KeyTabCount:         d.TabCount,
		KeyPreviousTabCount: d.PreviousTabCount,
		KeyTabsCreated:      d.TabsCreated,
		KeyPasses:           d.Passes,
	})
}

// IncrementPasses raises the suppression budget by amount and returns the new
// value.
func (s *State) IncrementPasses(ctx context.Context, amount int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	passes := s.get(ctx).Passes + amount
	if passes < 0 {
		passes = 0
	}
	s.set(ctx, map[string]int{KeyPasses: passes})
	return passes
}

// DecrementPasses consumes one suppression pass, clamping at zero.
func (s *State) DecrementPasses(ctx context.Context) int {
	return s.IncrementPasses(ctx, -1)
}

// ConsumePass decrements the suppression budget by one if any passes remain.
// Read, branch and write happen under the lock so no other operation can
// intervene between them within this process.
func (s *State) ConsumePass(ctx context.Context) (consumed bool, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	passes := s.get(ctx).Passes
	if passes == 0 {
		return false, 0
	}
	passes--
	s.set(ctx, map[string]int{KeyPasses: passes})
	return true, passes
}

// SetPasses pins the suppression budget to exactly n, clamped at zero.
func (s *State) SetPasses(ctx context.Context, n int) int {
	if n < 0 {
		n = 0
	}
	s.Set(ctx, map[string]int{KeyPasses: n})
	return n
}

// ResetPasses clears the suppression budget.
func (s *State) ResetPasses(ctx context.Context) {
	s.Set(ctx, map[string]int{KeyPasses: 0})
}

// UpdateTabCount re-queries the global tab count and rolls the observation
// window forward. When the count is unchanged the previously recorded delta
// is returned without touching stored state. The very first observation
// always yields a delta of zero so a daemon starting against a full browser
// does not read as a giant batch.
func (s *State) UpdateTabCount(ctx context.Context, opts options.Options) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(ctx)
	count := len(inventory.AllTabs(ctx, s.browser, opts))

	if count == c.TabCount {
		return DeltaOf(c.TabsCreated)
	}

	delta := Delta{N: 0, Known: true}
	if c.TabCount != Unobserved {
		delta.N = count - c.TabCount
	}

	s.set(ctx, map[string]int{
		KeyPreviousTabCount: c.TabCount,
		KeyTabCount:         count,
		KeyTabsCreated:      delta.Stored(),
	})
	return delta
}

package engine

import (
	"sync"
	"time"

	"github.com/ziyaaktas/tab-limiter/internal/badge"
	"github.com/ziyaaktas/tab-limiter/internal/limits"
)

// Event is a limiter occurrence published to feed subscribers (the settings
// UI's live badge stream).
type Event struct {
	Kind    string       `json:"kind"` // badge | enforced | suppressed | alerted
	Scope   limits.Scope `json:"scope,omitempty"`
	Action  string       `json:"action,omitempty"`
	TabID   string       `json:"tab_id,omitempty"`
	Message string       `json:"message,omitempty"`
	Passes  int          `json:"passes"`
	Counts  badge.Counts `json:"counts"`
	Time    time.Time    `json:"time"`
}

// Feed fans limiter events out to subscribers. Publishing never blocks; a
// slow subscriber drops events instead of stalling an event handler.
type Feed struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered event channel and a cancel func that closes it.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber that has buffer room.
func (f *Feed) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

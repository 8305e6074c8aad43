// Package changefeed tells interested readers that a group's ledger changed.
//
// Notifications carry no payload: a subscriber learns that something in one
// of its groups changed and recomputes from a fresh snapshot. Signals are
// coalesced, so a slow subscriber sees at most one pending notification and
// publishers never block.
package changefeed

import (
	"context"
	"sync"
	"time"
)

// Hub fans change signals out to subscribers by group id.
// The zero value is not usable; a nil *Hub drops every publish.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscription receives a signal on C whenever one of its groups changes
type Subscription struct {
	C <-chan struct{}

	ch     chan struct{}
	hub    *Hub
	groups []string
	once   sync.Once
}

// Subscribe registers interest in the given groups
func (h *Hub) Subscribe(groupIDs ...string) *Subscription {
	ch := make(chan struct{}, 1)
	s := &Subscription{C: ch, ch: ch, hub: h, groups: groupIDs}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range groupIDs {
		set, ok := h.subs[id]
		if !ok {
			set = make(map[*Subscription]struct{})
			h.subs[id] = set
		}
		set[s] = struct{}{}
	}
	return s
}

// Close unregisters the subscription. C is not closed.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, id := range s.groups {
			delete(h.subs[id], s)
			if len(h.subs[id]) == 0 {
				delete(h.subs, id)
			}
		}
	})
}

// Publish signals every subscriber of the given groups
func (h *Hub) Publish(groupIDs ...string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range groupIDs {
		for s := range h.subs[id] {
			select {
			case s.ch <- struct{}{}:
			default:
				// a signal is already pending
			}
		}
	}
}

// Subscribers returns the number of subscriptions watching groupID
func (h *Hub) Subscribers(groupID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[groupID])
}

// Debounce forwards a signal once in has been quiet for wait, merging
// bursts into one. The returned channel is closed when ctx is done.
func Debounce(ctx context.Context, in <-chan struct{}, wait time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)

		timer := time.NewTimer(wait)
		timer.Stop()
		defer timer.Stop()
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-in:
				if !ok {
					return
				}
				// Reset discards any expiry not yet received (Go 1.23 timers)
				timer.Reset(wait)
				fire = timer.C
			case <-fire:
				fire = nil
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

// Package pubsub is the live-fix broadcast bus (spec.md §2 step 5, §6): one subject per
// aircraft, best-effort delivery (a payload is dropped for any subscriber whose buffer
// is full), no ordering guarantee across subjects. It is a
// generalization of the teacher's backend/ws.go subscriber registry, with the
// browser/WebSocket transport stripped out: this package only fans payloads out to
// in-process channel subscribers, the way an external frontend service would attach.
package pubsub

import (
	"encoding/json"
	"sync"

	"github.com/hut8/soar/internal/domain"
)

// Bus fans out published fixes to subscribers by aircraft ref. A subscriber whose buffer
// is full misses that payload rather than stalling a publish; unlike the teacher's
// ws.go send-or-disconnect, it stays subscribed.
type Bus struct {
	mu   sync.RWMutex
	subs map[domain.AircraftRef]map[chan []byte]struct{}
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[domain.AircraftRef]map[chan []byte]struct{})}
}

// Subscribe registers a buffered channel for fix payloads published under ref. The
// returned cancel function must be called to unregister.
func (b *Bus) Subscribe(ref domain.AircraftRef) (ch <-chan []byte, cancel func()) {
	c := make(chan []byte, 32)
	b.mu.Lock()
	set, ok := b.subs[ref]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.subs[ref] = set
	}
	set[c] = struct{}{}
	b.mu.Unlock()

	return c, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[ref]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(b.subs, ref)
			}
		}
		close(c)
	}
}

// Publish encodes fix as canonical JSON and delivers it to every subscriber of its
// aircraft. Slow subscribers are skipped, never blocked on.
func (b *Bus) Publish(fix domain.Fix) error {
	payload, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.subs[fix.AircraftRef] {
		select {
		case c <- payload:
		default:
		}
	}
	return nil
}

// SubscriberCount reports how many subscribers are currently attached to ref, for
// metrics and tests.
func (b *Bus) SubscriberCount(ref domain.AircraftRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[ref])
}

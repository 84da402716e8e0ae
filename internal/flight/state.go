// Package flight implements the flight tracker and lifecycle state machine
// (spec.md §4.5): per-aircraft serialized fix processing, duplicate suppression,
// activity determination, takeoff/split/landing/timeout transitions, and geofence
// membership tracking. It owns the in-memory AircraftState map exclusively; every other
// package treats aircraft state as opaque and reaches it only through the Tracker.
package flight

import (
	"sync"
	"time"

	"github.com/hut8/soar/internal/domain"
)

// AircraftState is the per-aircraft in-memory tracking record (spec.md §3). It is
// mutated only while its shard's lock is held.
type AircraftState struct {
	LastFixAt         time.Time
	LastFixLat        float64
	LastFixLon        float64
	ActiveFlightRef   domain.FlightRef
	HasActiveFlight   bool
	LastKnownActive   bool
	GeofenceMembership map[domain.GeofenceRef]struct{}

	// lastCallsign is the most recently observed non-empty callsign for the current
	// active flight; used by the split rule (spec.md §4.5).
	lastCallsign string
}

func (st *AircraftState) callsignKnown() bool { return st.lastCallsign != "" }

const shardCount = 64

type shard struct {
	mu     sync.Mutex
	states map[domain.AircraftRef]*AircraftState
}

// stateMap is a sharded concurrent map keyed by aircraft ref, one exclusive lock per
// shard so fix workers for different aircraft never block each other (spec.md §5).
type stateMap struct {
	shards [shardCount]*shard
}

func newStateMap() *stateMap {
	sm := &stateMap{}
	for i := range sm.shards {
		sm.shards[i] = &shard{states: make(map[domain.AircraftRef]*AircraftState)}
	}
	return sm
}

func (sm *stateMap) shardFor(ref domain.AircraftRef) *shard {
	var h uint32
	for _, b := range ref {
		h = h*31 + uint32(b)
	}
	return sm.shards[h%shardCount]
}

// withLocked runs fn with the shard lock held and the state entry for ref, creating one
// on first use.
func (sm *stateMap) withLocked(ref domain.AircraftRef, fn func(*AircraftState)) {
	sh := sm.shardFor(ref)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.states[ref]
	if !ok {
		st = &AircraftState{GeofenceMembership: make(map[domain.GeofenceRef]struct{})}
		sh.states[ref] = st
	}
	fn(st)
}

// count returns the total number of tracked aircraft, for the AircraftStateEntries gauge.
func (sm *stateMap) count() int {
	n := 0
	for _, sh := range sm.shards {
		sh.mu.Lock()
		n += len(sh.states)
		sh.mu.Unlock()
	}
	return n
}

// sweepChunked calls visit once per (ref, state) pair, taking and releasing each shard's
// lock in turn so a long-running sweep never starves fix workers on the same shard
// (spec.md §4.5 "Background tasks", §9 "DashMap-equivalent iteration"). visit may
// request deletion of the current entry by returning remove=true.
func (sm *stateMap) sweepChunked(visit func(domain.AircraftRef, *AircraftState) (remove bool)) {
	for _, sh := range sm.shards {
		sh.mu.Lock()
		var toDelete []domain.AircraftRef
		for ref, st := range sh.states {
			if visit(ref, st) {
				toDelete = append(toDelete, ref)
			}
		}
		for _, ref := range toDelete {
			delete(sh.states, ref)
		}
		sh.mu.Unlock()
	}
}

package flight

import (
	"context"
	"log"
	"time"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/store"
)

// RunTimeoutSweep closes flights that have gone quiet for at least InactiveWindow
// (spec.md §4.5 "Landing rule" / "Background tasks"). It runs until ctx is canceled,
// observing the shutdown signal only at its next yield point (§5 Cancellation).
func (t *Tracker) RunTimeoutSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.timeoutSweepOnce(time.Now().UTC())
		}
	}
}

func (t *Tracker) timeoutSweepOnce(now time.Time) {
	type closure struct {
		ref       domain.FlightRef
		lastFixAt time.Time
		reason    domain.EndReason
	}
	var toClose []closure

	t.states.sweepChunked(func(_ domain.AircraftRef, st *AircraftState) bool {
		if !st.HasActiveFlight {
			return false
		}
		if now.Sub(st.LastFixAt) < t.cfg.InactiveWindow {
			return false
		}
		reason := domain.EndReasonTimeout
		if !st.LastKnownActive {
			reason = domain.EndReasonLanded
		}
		toClose = append(toClose, closure{ref: st.ActiveFlightRef, lastFixAt: st.LastFixAt, reason: reason})
		st.HasActiveFlight = false
		st.ActiveFlightRef = domain.FlightRef("")
		return false
	})

	for _, c := range toClose {
		landingTime := c.lastFixAt
		reason := c.reason
		if err := t.store.UpdateFlight(c.ref, store.FlightUpdate{LandingTime: &landingTime, EndReason: &reason}); err != nil {
			log.Printf("flight: timeout sweep failed to close flight %s: %v", c.ref, err)
			continue
		}
		monitoring.FlightTransitions.WithLabelValues(reason.String()).Inc()
		monitoring.ActiveFlights.Dec()
	}
}

// RunEvictionSweep removes aircraft-state entries idle beyond evictAfter. A stale
// aircraft has, by construction, already had any active flight closed by the timeout
// sweep (InactiveWindow < EvictAfter in practice), so no flight work happens here.
func (t *Tracker) RunEvictionSweep(ctx context.Context, interval, evictAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			t.states.sweepChunked(func(_ domain.AircraftRef, st *AircraftState) bool {
				return now.Sub(st.LastFixAt) >= evictAfter
			})
			monitoring.AircraftStateEntries.Set(float64(t.states.count()))
		}
	}
}

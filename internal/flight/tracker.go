package flight

import (
	"log"
	"math"
	"time"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/pubsub"
	"github.com/hut8/soar/internal/store"
)

// Config carries the thresholds and windows the state machine needs (spec.md §4.5, §9
// Open Questions — all configurable, defaults live in internal/config).
type Config struct {
	ActivityMinAGLFeet    float64
	ActivityMinSpeedKnots float64
	SplitGap              time.Duration
	InactiveWindow        time.Duration
	EvictAfter            time.Duration
	DuplicateWindow       time.Duration
	DuplicateEpsilon      float64
}

// Tracker is the flight lifecycle state machine plus the in-memory aircraft-state map
// it owns exclusively.
type Tracker struct {
	store  store.Store
	bus    *pubsub.Bus
	cfg    Config
	states *stateMap
}

func New(st store.Store, bus *pubsub.Bus, cfg Config) *Tracker {
	return &Tracker{store: st, bus: bus, cfg: cfg, states: newStateMap()}
}

func isNearDuplicate(prevLat, prevLon, lat, lon, epsilon float64) bool {
	return math.Abs(prevLat-lat) <= epsilon && math.Abs(prevLon-lon) <= epsilon
}

func isActive(fix domain.Fix, cfg Config) bool {
	aglOK := fix.AltitudeAGLFt == nil || *fix.AltitudeAGLFt >= cfg.ActivityMinAGLFeet
	return aglOK && fix.GroundSpeedKts >= cfg.ActivityMinSpeedKnots
}

// ProcessFix is the single serialization point for everything the tracker does to one
// aircraft (spec.md §4.5 steps 1-7). Geofences are the candidates to test membership
// against; FixProcessor passes the ones the store found containing the fix's position.
// A current membership absent from geofences, or no longer containing the fix, is an exit.
func (t *Tracker) ProcessFix(fix domain.Fix, geofences []domain.Geofence) error {
	var (
		duplicate   bool
		flightRef   domain.FlightRef
		hasFlight   bool
		newFlight   bool
		transitions []string
	)

	t.states.withLocked(fix.AircraftRef, func(st *AircraftState) {
		if !st.LastFixAt.IsZero() &&
			fix.ReceivedAt.Sub(st.LastFixAt) < t.cfg.DuplicateWindow &&
			isNearDuplicate(st.LastFixLat, st.LastFixLon, fix.Lat, fix.Lon, t.cfg.DuplicateEpsilon) {
			duplicate = true
			flightRef, hasFlight = st.ActiveFlightRef, st.HasActiveFlight
			return
		}

		fix.Active = isActive(fix, t.cfg)

		switch {
		case !st.HasActiveFlight && !fix.Active:
			// no-op

		case !st.HasActiveFlight && fix.Active:
			ref, err := t.store.InsertFlight(fix.AircraftRef, fix.ReceivedAt)
			if err != nil {
				log.Printf("flight: insert flight failed for aircraft %x: %v", fix.AircraftRef, err)
				break
			}
			st.ActiveFlightRef, st.HasActiveFlight = ref, true
			newFlight = true
			transitions = append(transitions, "takeoff")

		case st.HasActiveFlight && fix.Active:
			gapExceeded := fix.ReceivedAt.Sub(st.LastFixAt) > t.cfg.SplitGap
			callsignChanged := fix.Callsign != "" && st.callsignKnown() && fix.Callsign != st.lastCallsign

			if gapExceeded || callsignChanged {
				ref, err := t.store.SplitFlight(st.ActiveFlightRef, st.LastFixAt, domain.EndReasonSplit, fix.AircraftRef, fix.ReceivedAt)
				if err != nil {
					log.Printf("flight: split flight failed for aircraft %x: %v", fix.AircraftRef, err)
					break
				}
				st.ActiveFlightRef = ref
				st.lastCallsign = ""
				newFlight = true
				transitions = append(transitions, "split")
			}

		case st.HasActiveFlight && !fix.Active:
			st.LastKnownActive = false
		}

		if fix.Callsign != "" {
			st.lastCallsign = fix.Callsign
		}
		if st.HasActiveFlight {
			st.LastKnownActive = fix.Active
		}

		flightRef, hasFlight = st.ActiveFlightRef, st.HasActiveFlight
		st.LastFixAt = fix.ReceivedAt
		st.LastFixLat, st.LastFixLon = fix.Lat, fix.Lon

		evaluateGeofences(st, geofences, fix.Lat, fix.Lon)
	})

	for _, kind := range transitions {
		monitoring.FlightTransitions.WithLabelValues(kind).Inc()
	}

	if hasFlight {
		fix.FlightRef = flightRef
	}
	if err := t.store.InsertFix(fix); err != nil {
		monitoring.FixesDropped.WithLabelValues("store_error").Inc()
		log.Printf("flight: dropping fix for aircraft %x after insert failure: %v", fix.AircraftRef, err)
		return err
	}
	monitoring.FixesPersisted.WithLabelValues(fix.Source.String()).Inc()

	if hasFlight {
		go func(ref domain.FlightRef, at time.Time, callsign string) {
			if err := t.store.UpdateFlight(ref, store.FlightUpdate{LastFixAt: &at, Callsign: nonEmptyPtr(callsign)}); err != nil {
				monitoring.Debugf("flight: best-effort last_fix_at update for %s failed: %v", ref, err)
			}
		}(flightRef, fix.ReceivedAt, fix.Callsign)
	}

	if duplicate {
		return nil
	}

	if t.bus != nil {
		if err := t.bus.Publish(fix); err != nil {
			log.Printf("flight: publish failed for aircraft %x: %v", fix.AircraftRef, err)
		}
	}
	if newFlight {
		monitoring.ActiveFlights.Inc()
	}
	return nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// evaluateGeofences compares the fix's position against the candidate geofences, updates
// st.GeofenceMembership in place, and logs membership transitions (the alert handler
// itself is an external collaborator, out of scope here).
func evaluateGeofences(st *AircraftState, geofences []domain.Geofence, lat, lon float64) {
	current := make(map[domain.GeofenceRef]struct{}, len(st.GeofenceMembership))
	for _, g := range geofences {
		if !g.Contains(lat, lon) {
			continue
		}
		current[g.Ref] = struct{}{}
		if _, wasInside := st.GeofenceMembership[g.Ref]; !wasInside {
			monitoring.Debugf("geofence enter: %s", g.Ref)
		}
	}
	for ref := range st.GeofenceMembership {
		if _, stillInside := current[ref]; !stillInside {
			monitoring.Debugf("geofence exit: %s", ref)
		}
	}
	st.GeofenceMembership = current
}

package beast

import (
	"sync"
	"time"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
)

type icaoState struct {
	mu sync.Mutex

	hasEven            bool
	evenLat, evenLon   int
	evenTime           time.Time
	hasOdd             bool
	oddLat, oddLon     int
	oddTime            time.Time

	hasPosition  bool
	lat, lon     float64
	hasAltitude  bool
	altitudeFt   float64
	hasVelocity  bool
	speedKts     float64
	headingDeg   float64
	vertRateFPM  float64
	callsign     string
	lastTouched  time.Time
}

// Accumulator maintains one AccumulatedAircraftState per ICAO address (spec.md §4.3),
// pairing even/odd CPR frames within MaxPairAge and emitting a PartialFix once altitude
// and position are both known. Local (single-frame, reference-relative) CPR decoding is
// not implemented: the Beast/SBS paths never carry a receiver position (spec.md §3 Fix
// invariant, receiver_ref is always null here), so there is no reference position to
// decode against; every position comes from a global even/odd pair.
type Accumulator struct {
	MaxPairAge time.Duration

	mu     sync.RWMutex
	states map[uint32]*icaoState
}

func NewAccumulator(maxPairAge time.Duration) *Accumulator {
	return &Accumulator{MaxPairAge: maxPairAge, states: make(map[uint32]*icaoState)}
}

func (a *Accumulator) entry(icao uint32) *icaoState {
	a.mu.RLock()
	st, ok := a.states[icao]
	a.mu.RUnlock()
	if ok {
		return st
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.states[icao]; ok {
		return st
	}
	st = &icaoState{}
	a.states[icao] = st
	return st
}

// Ingest decodes one 14-byte Mode S extended-squitter (DF17/18) payload and, if enough
// fields are now known, returns a ready PartialFix.
func (a *Accumulator) Ingest(icao uint32, data []byte, receivedAt time.Time) (domain.PartialFix, bool) {
	if len(data) < 5 {
		return domain.PartialFix{}, false
	}
	metype := data[4] >> 3

	st := a.entry(icao)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastTouched = receivedAt

	switch {
	case metype >= 1 && metype <= 4:
		if cs := decodeCallsign(data[5:11]); cs != "" {
			st.callsign = cs
		}

	case metype >= 9 && metype <= 18:
		if len(data) < 11 {
			break
		}
		if alt, ok := decodeAltitude(data); ok {
			st.altitudeFt = float64(alt)
			st.hasAltitude = true
		}
		cprLat := int((uint32(data[6])&0x03)<<15 | uint32(data[7])<<7 | uint32(data[8])>>1)
		cprLon := int((uint32(data[8])&0x01)<<16 | uint32(data[9])<<8 | uint32(data[10]))
		odd := data[6]&0x04 != 0

		if odd {
			st.oddLat, st.oddLon, st.oddTime, st.hasOdd = cprLat, cprLon, receivedAt, true
		} else {
			st.evenLat, st.evenLon, st.evenTime, st.hasEven = cprLat, cprLon, receivedAt, true
		}

		if st.hasEven && st.hasOdd {
			age := st.oddTime.Sub(st.evenTime)
			if age < 0 {
				age = -age
			}
			if age <= a.MaxPairAge {
				if lat, lon, ok := decodeCPRGlobal(st.evenLat, st.evenLon, st.oddLat, st.oddLon, odd); ok {
					st.lat, st.lon, st.hasPosition = lat, lon, true
				}
			} else {
				monitoring.AccumulatorEvictions.WithLabelValues(domain.SourceBeast.String()).Inc()
			}
		}

	case metype == 19:
		if speed, heading, vertRate, ok := decodeVelocity(data); ok {
			st.speedKts, st.headingDeg, st.vertRateFPM, st.hasVelocity = speed, heading, vertRate, true
		}
	}

	if !st.hasPosition || !st.hasAltitude {
		return domain.PartialFix{}, false
	}

	pf := domain.PartialFix{
		AddressType:   domain.AddressIcao,
		Address24:     icao,
		Lat:           st.lat,
		Lon:           st.lon,
		HasPosition:   true,
		AltitudeMSLFt: st.altitudeFt,
		HasAltitude:   true,
		Callsign:      st.callsign,
		ReceivedAt:    receivedAt,
	}
	if st.hasVelocity {
		pf.GroundSpeedKts, pf.HasSpeed = st.speedKts, true
		pf.TrackDegrees, pf.HasTrack = st.headingDeg, true
		pf.ClimbFPM, pf.HasClimb = st.vertRateFPM, true
	}
	return pf, true
}

// EvictStale drops accumulator entries untouched since before cutoff, bounding memory
// for ICAO addresses that stop transmitting (spec.md §4.3 "Accumulator state full or
// stale" error kind, §7).
func (a *Accumulator) EvictStale(cutoff time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for icao, st := range a.states {
		st.mu.Lock()
		stale := st.lastTouched.Before(cutoff)
		st.mu.Unlock()
		if stale {
			delete(a.states, icao)
			monitoring.AccumulatorEvictions.WithLabelValues(domain.SourceBeast.String()).Inc()
		}
	}
}

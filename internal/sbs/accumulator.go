package sbs

import (
	"strconv"
	"sync"
	"time"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
)

type icaoState struct {
	mu sync.Mutex

	hasPosition bool
	lat, lon    float64
	hasAltitude bool
	altitudeFt  float64
	hasVelocity bool
	speedKts    float64
	headingDeg  float64
	vertRateFPM float64
	callsign    string
	lastTouched time.Time
}

// Accumulator merges successive BaseStation MSG records for the same aircraft into a
// PartialFix, the same role internal/beast.Accumulator plays for Mode S extended
// squitter, but without CPR pairing since BaseStation feeders deliver pre-decoded
// lat/lon (spec.md §4.1).
type Accumulator struct {
	mu     sync.RWMutex
	states map[uint32]*icaoState
}

func NewAccumulator() *Accumulator {
	return &Accumulator{states: make(map[uint32]*icaoState)}
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

// Ingest merges one parsed MSG record and returns a ready PartialFix once altitude and
// position are both known.
func (a *Accumulator) Ingest(pkt Packet, receivedAt time.Time) (uint32, domain.PartialFix, bool) {
	icao, err := strconv.ParseUint(pkt.HexIdent, 16, 32)
	if err != nil {
		return 0, domain.PartialFix{}, false
	}
	addr := uint32(icao)

	st := a.entry(addr)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.lastTouched = receivedAt

	if pkt.HasCallsign {
		st.callsign = pkt.Callsign
	}
	if pkt.HasPosition {
		st.lat, st.lon, st.hasPosition = pkt.Lat, pkt.Lon, true
	}
	if pkt.HasAltitude {
		st.altitudeFt, st.hasAltitude = pkt.AltitudeFt, true
	}
	if pkt.HasVelocity {
		st.speedKts, st.headingDeg, st.vertRateFPM, st.hasVelocity = pkt.GroundSpeedKts, pkt.TrackDegrees, pkt.VerticalRateFPM, true
	}

	if !st.hasPosition || !st.hasAltitude {
		return addr, domain.PartialFix{}, false
	}

	pf := domain.PartialFix{
		AddressType:   domain.AddressIcao,
		Address24:     addr,
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
	return addr, pf, true
}

// EvictStale drops accumulator entries untouched since before cutoff.
func (a *Accumulator) EvictStale(cutoff time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for icao, st := range a.states {
		st.mu.Lock()
		stale := st.lastTouched.Before(cutoff)
		st.mu.Unlock()
		if stale {
			delete(a.states, icao)
			monitoring.AccumulatorEvictions.WithLabelValues(domain.SourceSbs.String()).Inc()
		}
	}
}

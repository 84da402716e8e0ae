package beast

import (
	"testing"
	"time"
)

func identificationFrame() []byte {
	data := make([]byte, 11)
	data[4] = 1 << 3 // ME type code 1 (identification), decoded via data[4]>>3
	return data
}

func TestAccumulator_EvictStale_ExactBoundarySurvives(t *testing.T) {
	a := NewAccumulator(10 * time.Second)
	t0 := time.Unix(1_700_000_000, 0)
	a.Ingest(0xABCDEF, identificationFrame(), t0)

	// EvictStale uses a strict Before(cutoff); an entry touched exactly at cutoff must
	// not be considered stale yet.
	a.EvictStale(t0)
	if _, ok := a.states[0xABCDEF]; !ok {
		t.Fatal("entry evicted at the exact boundary, expected it to survive")
	}

	a.EvictStale(t0.Add(time.Nanosecond))
	if _, ok := a.states[0xABCDEF]; ok {
		t.Fatal("entry survived one nanosecond past its staleness cutoff")
	}
}

func TestAccumulator_CPRPairOutsideMaxAgeNeverResolves(t *testing.T) {
	a := NewAccumulator(10 * time.Second)
	icao := uint32(0x112233)

	even := make([]byte, 11)
	even[4] = 11 << 3 // ME type 11: airborne position
	even[6], even[7], even[8] = 0x00, 0x01, 0x02 // even-frame flag (bit2 of data[6]) clear

	odd := make([]byte, 11)
	odd[4] = 11 << 3
	odd[6], odd[7], odd[8] = 0x04, 0x03, 0x04 // odd-frame flag (bit2 of data[6]) set

	a.Ingest(icao, even, time.Unix(0, 0))
	a.Ingest(icao, odd, time.Unix(0, 0).Add(11*time.Second))

	st := a.states[icao]
	st.mu.Lock()
	hasPosition := st.hasPosition
	st.mu.Unlock()
	if hasPosition {
		t.Fatal("an even/odd pair more than MaxPairAge apart must never resolve a position")
	}
}

package flight

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/store"
)

func TestIsActive_InclusiveBounds(t *testing.T) {
	cfg := Config{ActivityMinAGLFeet: 500, ActivityMinSpeedKnots: 20}

	agl := 500.0
	atThreshold := domain.Fix{AltitudeAGLFt: &agl, GroundSpeedKts: 20}
	if !isActive(atThreshold, cfg) {
		t.Error("fix exactly at both thresholds should be active (inclusive bounds)")
	}

	below := agl - 1
	belowAGL := domain.Fix{AltitudeAGLFt: &below, GroundSpeedKts: 20}
	if isActive(belowAGL, cfg) {
		t.Error("fix below AGL threshold should not be active")
	}

	belowSpeed := domain.Fix{AltitudeAGLFt: &agl, GroundSpeedKts: 19.999}
	if isActive(belowSpeed, cfg) {
		t.Error("fix below speed threshold should not be active")
	}

	noAGL := domain.Fix{GroundSpeedKts: 20}
	if !isActive(noAGL, cfg) {
		t.Error("a fix with no AGL reading should fall back to the speed test alone")
	}
}

func TestIsNearDuplicate_Boundary(t *testing.T) {
	if !isNearDuplicate(10.0, 20.0, 10.0001, 20.0001, 0.0001) {
		t.Error("offsets exactly at epsilon should count as a duplicate (inclusive bound)")
	}
	if isNearDuplicate(10.0, 20.0, 10.0002, 20.0001, 0.0001) {
		t.Error("offset past epsilon on one axis should not be a duplicate")
	}
}

// fakeStore implements store.Store with just enough behavior for Tracker.ProcessFix:
// InsertFlight/SplitFlight/UpdateFlight/InsertFix are the only methods it calls. ProcessFix
// applies some updates from background goroutines, so every field is guarded by mu; updated
// additionally signals each UpdateFlight call so tests can wait for it deterministically
// instead of racing the goroutine. active mirrors BuntStore's flight:active:<aircraft>
// invariant (at most one Active flight per aircraft) so a regression like the split path
// calling InsertFlight against an aircraft that already has an active flight fails the
// test the same way it would fail against the real store.
type fakeStore struct {
	mu            sync.Mutex
	nextFlightID  int
	insertedFixes []domain.Fix
	flightUpdates map[domain.FlightRef][]store.FlightUpdate
	active        map[domain.AircraftRef]domain.FlightRef
	updated       chan domain.FlightRef
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		flightUpdates: make(map[domain.FlightRef][]store.FlightUpdate),
		active:        make(map[domain.AircraftRef]domain.FlightRef),
		updated:       make(chan domain.FlightRef, 64),
	}
}

func (f *fakeStore) fixes() []domain.Fix {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Fix(nil), f.insertedFixes...)
}

func (f *fakeStore) updatesFor(ref domain.FlightRef) []store.FlightUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.FlightUpdate(nil), f.flightUpdates[ref]...)
}

// waitForUpdate blocks until ref has received at least one UpdateFlight call, or fails
// the test after a timeout generous enough for the background goroutine to run.
func waitForUpdate(t *testing.T, f *fakeStore, ref domain.FlightRef) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-f.updated:
			if got == ref {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for an UpdateFlight call on %s", ref)
		}
	}
}

func (f *fakeStore) UpsertReceiver(string, store.ReceiverFields) (domain.ReceiverRef, error) {
	return "", nil
}
func (f *fakeStore) InsertRawMessage(domain.RawMessage) (domain.RawMessageRef, error) { return "", nil }
func (f *fakeStore) UpsertAircraft(domain.AddressType, uint32, store.AircraftFields) (domain.AircraftRef, error) {
	return domain.AircraftRef{}, nil
}
func (f *fakeStore) UpdateAircraftEnrichment(domain.AircraftRef, store.AircraftFields) error { return nil }
func (f *fakeStore) GetAircraftByRef(domain.AircraftRef) (domain.Aircraft, error) { return domain.Aircraft{}, nil }
func (f *fakeStore) GetAircraftByAddress(domain.AddressType, uint32) (domain.Aircraft, error) {
	return domain.Aircraft{}, nil
}
func (f *fakeStore) InsertFix(fix domain.Fix) (domain.FixRef, error) {
	f.mu.Lock()
	f.insertedFixes = append(f.insertedFixes, fix)
	f.mu.Unlock()
	return "", nil
}
func (f *fakeStore) InsertFlight(aircraftRef domain.AircraftRef, _ time.Time) (domain.FlightRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.active[aircraftRef]; ok {
		return "", fmt.Errorf("aircraft %x already has an active flight", aircraftRef)
	}
	f.nextFlightID++
	ref := domain.FlightRef("flight-" + strconv.Itoa(f.nextFlightID))
	f.active[aircraftRef] = ref
	return ref, nil
}

// SplitFlight mirrors BuntStore.SplitFlight: it requires oldRef to still be the aircraft's
// active flight, records the closing update against it, and atomically repoints the
// aircraft's active flight at a freshly minted ref.
func (f *fakeStore) SplitFlight(oldRef domain.FlightRef, closedAt time.Time, reason domain.EndReason, aircraftRef domain.AircraftRef, _ time.Time) (domain.FlightRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[aircraftRef] != oldRef {
		return "", fmt.Errorf("aircraft %x active flight is not %s", aircraftRef, oldRef)
	}
	landingTime := closedAt
	f.flightUpdates[oldRef] = append(f.flightUpdates[oldRef], store.FlightUpdate{LandingTime: &landingTime, EndReason: &reason})

	f.nextFlightID++
	newRef := domain.FlightRef("flight-" + strconv.Itoa(f.nextFlightID))
	f.active[aircraftRef] = newRef
	return newRef, nil
}
func (f *fakeStore) UpdateFlight(ref domain.FlightRef, update store.FlightUpdate) error {
	f.mu.Lock()
	f.flightUpdates[ref] = append(f.flightUpdates[ref], update)
	f.mu.Unlock()
	f.updated <- ref
	return nil
}
func (f *fakeStore) GetFlight(domain.FlightRef) (domain.Flight, error) { return domain.Flight{}, nil }
func (f *fakeStore) GetActiveFlight(domain.AircraftRef) (domain.Flight, bool, error) {
	return domain.Flight{}, false, nil
}
func (f *fakeStore) QueryGeofencesContaining(float64, float64) ([]domain.Geofence, error) {
	return nil, nil
}
func (f *fakeStore) UpsertGeofence(domain.Geofence) error { return nil }
func (f *fakeStore) ActiveFlightsOlderThan(time.Time) ([]domain.Flight, error) { return nil, nil }
func (f *fakeStore) Close() error { return nil }

func testConfig() Config {
	return Config{
		ActivityMinAGLFeet:    500,
		ActivityMinSpeedKnots: 20,
		SplitGap:              5 * time.Minute,
		InactiveWindow:        10 * time.Minute,
		EvictAfter:            time.Hour,
		DuplicateWindow:       2 * time.Second,
		DuplicateEpsilon:      0.0001,
	}
}

func TestProcessFix_TakeoffThenSplitOnGap(t *testing.T) {
	st := newFakeStore()
	tr := New(st, nil, testConfig())

	var aircraftRef domain.AircraftRef
	aircraftRef[0] = 1

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	active := domain.Fix{
		AircraftRef:    aircraftRef,
		ReceivedAt:     base,
		Lat:            45.0,
		Lon:            8.0,
		GroundSpeedKts: 60,
	}
	if err := tr.ProcessFix(active, nil); err != nil {
		t.Fatalf("ProcessFix: %v", err)
	}
	waitForUpdate(t, st, st.fixes()[0].FlightRef)
	fixes := st.fixes()
	if len(fixes) != 1 || fixes[0].FlightRef == "" {
		t.Fatalf("expected takeoff to assign a flight ref, got %+v", fixes)
	}
	firstFlight := fixes[0].FlightRef

	// A later fix, well past SplitGap, with continued activity: must split into a new flight.
	later := active
	later.ReceivedAt = base.Add(10 * time.Minute)
	later.Lat, later.Lon = 45.5, 8.5
	if err := tr.ProcessFix(later, nil); err != nil {
		t.Fatalf("ProcessFix: %v", err)
	}

	fixes = st.fixes()
	if len(fixes) != 2 {
		t.Fatalf("expected 2 persisted fixes, got %d", len(fixes))
	}
	secondFlight := fixes[1].FlightRef
	if secondFlight == firstFlight {
		t.Fatal("expected a new flight ref after exceeding the split gap")
	}
	waitForUpdate(t, st, secondFlight)

	// SplitFlight closes the prior flight synchronously, within the same ProcessFix call
	// that opens the new one, so this assertion doesn't need to wait for a goroutine.
	updates := st.updatesFor(firstFlight)
	if len(updates) == 0 {
		t.Fatal("expected the prior flight to receive a closing update from SplitFlight")
	}
	closing := updates[len(updates)-1]
	if closing.LandingTime == nil || !closing.LandingTime.Equal(base) {
		t.Fatalf("expected the prior flight's landing time to be the previous fix's timestamp, got %+v", closing.LandingTime)
	}
	if closing.EndReason == nil || *closing.EndReason != domain.EndReasonSplit {
		t.Fatalf("expected the prior flight to be closed with EndReasonSplit, got %+v", closing.EndReason)
	}
}

func TestProcessFix_DuplicateSuppressedWithinWindow(t *testing.T) {
	st := newFakeStore()
	tr := New(st, nil, testConfig())

	var aircraftRef domain.AircraftRef
	aircraftRef[0] = 2

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	fix := domain.Fix{AircraftRef: aircraftRef, ReceivedAt: base, Lat: 45.0, Lon: 8.0, GroundSpeedKts: 60}
	if err := tr.ProcessFix(fix, nil); err != nil {
		t.Fatalf("ProcessFix: %v", err)
	}

	dup := fix
	dup.ReceivedAt = base.Add(time.Second)
	dup.Lat, dup.Lon = 45.00001, 8.00001
	if err := tr.ProcessFix(dup, nil); err != nil {
		t.Fatalf("ProcessFix: %v", err)
	}

	// A near-identical fix inside DuplicateWindow is still archived (InsertFix runs
	// regardless) but must not create a second flight.
	fixes := st.fixes()
	if len(fixes) != 2 {
		t.Fatalf("expected both fixes archived, got %d", len(fixes))
	}
	if fixes[0].FlightRef != fixes[1].FlightRef {
		t.Fatal("duplicate fix within window must not start a new flight")
	}
}

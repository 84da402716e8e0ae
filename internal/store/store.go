// Package store implements the persistence adapter contract (spec.md §4.7) on top of
// BuntDB, the teacher's embedded KV/spatial store (see storage/storage.go in the
// teacher repo). It is the one relational-ish authority for Aircraft, Receiver,
// RawMessage, Fix, and Flight records; the in-memory aircraft-state map and aircraft
// cache elsewhere in this repo are caches over it, never the other way around.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/hut8/soar/internal/domain"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// FlightUpdate is the set of conditionally-applied fields for UpdateFlight. A nil
// pointer means "leave unchanged"; Callsign is only ever applied when the flight's
// current callsign is empty (§4.7: "conditional: callsign set only if currently NULL").
type FlightUpdate struct {
	LandingTime *time.Time
	EndReason   *domain.EndReason
	Callsign    *string
	LastFixAt   *time.Time
}

// ReceiverFields are the attributes an APRS upsert may refresh on a Receiver.
type ReceiverFields struct {
	Lat, Lon    float64
	HasPosition bool
	Description string
	Country     string
	LastHeard   time.Time
}

// AircraftFields are the attributes available when an aircraft is first inserted.
// Any zero-value field is simply left unset; enrichment (§4.6) fills them in later via
// UpdateAircraftEnrichment.
type AircraftFields struct {
	Registration    string
	Model           string
	CompetitionNo   string
	AircraftTypeOGN domain.AircraftTypeOGN
	LastSeen        time.Time
}

// Store is the operation set the fix pipeline requires from the relational layer.
// Every method is transactional; upserts are idempotent on their documented key.
type Store interface {
	UpsertReceiver(callsign string, fields ReceiverFields) (domain.ReceiverRef, error)
	InsertRawMessage(msg domain.RawMessage) (domain.RawMessageRef, error)
	UpsertAircraft(addrType domain.AddressType, addr24 uint32, fields AircraftFields) (domain.AircraftRef, error)
	UpdateAircraftEnrichment(ref domain.AircraftRef, fields AircraftFields) error
	GetAircraftByRef(ref domain.AircraftRef) (domain.Aircraft, error)
	GetAircraftByAddress(addrType domain.AddressType, addr24 uint32) (domain.Aircraft, error)
	InsertFix(fix domain.Fix) (domain.FixRef, error)
	InsertFlight(aircraftRef domain.AircraftRef, takeoffTime time.Time) (domain.FlightRef, error)
	UpdateFlight(ref domain.FlightRef, update FlightUpdate) error
	// SplitFlight atomically closes oldRef and opens a new Active flight for aircraftRef
	// in one transaction, so flight:active:<aircraft> never has a window where it's
	// absent (which InsertFlight would refuse to fill) or still points at the flight
	// being closed (§8 split-flight invariant: takeoff_time <= received_at <= landing_time
	// must hold for whichever flight a fix lands in, even under concurrent readers).
	SplitFlight(oldRef domain.FlightRef, closedAt time.Time, reason domain.EndReason, aircraftRef domain.AircraftRef, takeoffTime time.Time) (domain.FlightRef, error)
	GetFlight(ref domain.FlightRef) (domain.Flight, error)
	GetActiveFlight(aircraftRef domain.AircraftRef) (domain.Flight, bool, error)
	QueryGeofencesContaining(lat, lon float64) ([]domain.Geofence, error)
	UpsertGeofence(g domain.Geofence) error
	// ActiveFlightsOlderThan returns active flights whose LastFixAt is at or before cutoff,
	// for the background timeout checker (§4.5).
	ActiveFlightsOlderThan(cutoff time.Time) ([]domain.Flight, error)
	Close() error
}

const geofenceSpatialIndex = "geofence_bbox"

// BuntStore is the BuntDB-backed Store implementation.
type BuntStore struct {
	db *buntdb.DB
}

// Open opens (creating if needed) a BuntDB file at path and prepares its indexes.
func Open(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.CreateSpatialIndex(geofenceSpatialIndex, "geofence:bbox:*", buntdb.IndexRect); err != nil &&
		!errors.Is(err, buntdb.ErrIndexExists) {
		_ = db.Close()
		return nil, fmt.Errorf("create spatial index: %w", err)
	}
	return &BuntStore{db: db}, nil
}

func (s *BuntStore) Close() error { return s.db.Close() }

func refHex(r domain.AircraftRef) string { return hex.EncodeToString(r[:]) }

func newAircraftRef() domain.AircraftRef {
	u := uuid.New()
	var r domain.AircraftRef
	copy(r[:], u[:])
	return r
}

func addrKey(t domain.AddressType, addr24 uint32) string {
	return fmt.Sprintf("aircraft:by_addr:%d:%06x", t, addr24)
}

func aircraftRefKey(ref domain.AircraftRef) string { return "aircraft:by_ref:" + refHex(ref) }

// UpsertReceiver is idempotent on callsign (§4.7).
func (s *BuntStore) UpsertReceiver(callsign string, fields ReceiverFields) (domain.ReceiverRef, error) {
	var ref domain.ReceiverRef
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key := "receiver:by_callsign:" + callsign
		existing, err := tx.Get(key)
		var rec domain.Receiver
		if err == nil {
			rec = decodeReceiver(existing)
			ref = rec.Ref
		} else if errors.Is(err, buntdb.ErrNotFound) {
			ref = domain.ReceiverRef(uuid.NewString())
			rec = domain.Receiver{Ref: ref, Callsign: callsign}
		} else {
			return err
		}
		if fields.HasPosition {
			rec.Lat, rec.Lon, rec.HasPosition = fields.Lat, fields.Lon, true
		}
		if fields.Description != "" {
			rec.Description = fields.Description
		}
		if fields.Country != "" {
			rec.Country = fields.Country
		}
		if !fields.LastHeard.IsZero() {
			rec.LastHeard = fields.LastHeard
		}
		_, _, err = tx.Set(key, encodeReceiver(rec), nil)
		return err
	})
	return ref, err
}

func (s *BuntStore) InsertRawMessage(msg domain.RawMessage) (domain.RawMessageRef, error) {
	if msg.Ref == "" {
		msg.Ref = domain.RawMessageRef(uuid.NewString())
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set("rawmsg:"+string(msg.Ref), encodeRawMessage(msg), nil)
		return err
	})
	return msg.Ref, err
}

// UpsertAircraft is idempotent on (addrType, addr24) (§4.7).
func (s *BuntStore) UpsertAircraft(addrType domain.AddressType, addr24 uint32, fields AircraftFields) (domain.AircraftRef, error) {
	var ref domain.AircraftRef
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key := addrKey(addrType, addr24)
		if existingHex, err := tx.Get(key); err == nil {
			b, decErr := hex.DecodeString(existingHex)
			if decErr == nil && len(b) == 16 {
				copy(ref[:], b)
			}
			return nil
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		ref = newAircraftRef()
		ac := domain.Aircraft{
			Ref: ref, AddressType: addrType, Address24: addr24,
			Registration: fields.Registration, Model: fields.Model,
			CompetitionNo: fields.CompetitionNo, AircraftTypeOGN: fields.AircraftTypeOGN,
			LastSeen: fields.LastSeen,
		}
		if _, _, err := tx.Set(key, refHex(ref), nil); err != nil {
			return err
		}
		_, _, err = tx.Set(aircraftRefKey(ref), encodeAircraft(ac), nil)
		return err
	})
	return ref, err
}

func (s *BuntStore) UpdateAircraftEnrichment(ref domain.AircraftRef, fields AircraftFields) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		key := aircraftRefKey(ref)
		v, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		ac := decodeAircraft(v)
		if fields.Registration != "" {
			ac.Registration = fields.Registration
		}
		if fields.Model != "" {
			ac.Model = fields.Model
		}
		if fields.CompetitionNo != "" {
			ac.CompetitionNo = fields.CompetitionNo
		}
		if fields.AircraftTypeOGN != domain.AircraftTypeUnknown {
			ac.AircraftTypeOGN = fields.AircraftTypeOGN
		}
		_, _, err = tx.Set(key, encodeAircraft(ac), nil)
		return err
	})
}

func (s *BuntStore) GetAircraftByRef(ref domain.AircraftRef) (domain.Aircraft, error) {
	var ac domain.Aircraft
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(aircraftRefKey(ref))
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		ac = decodeAircraft(v)
		return nil
	})
	return ac, err
}

func (s *BuntStore) GetAircraftByAddress(addrType domain.AddressType, addr24 uint32) (domain.Aircraft, error) {
	var ac domain.Aircraft
	err := s.db.View(func(tx *buntdb.Tx) error {
		refHexStr, err := tx.Get(addrKey(addrType, addr24))
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		v, err := tx.Get("aircraft:by_ref:" + refHexStr)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		ac = decodeAircraft(v)
		return nil
	})
	return ac, err
}

func (s *BuntStore) InsertFix(fix domain.Fix) (domain.FixRef, error) {
	ref := domain.FixRef(uuid.NewString())
	key := fmt.Sprintf("fix:%s:%020d:%s", refHex(fix.AircraftRef), fix.ReceivedAt.UnixNano(), ref)
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, encodeFix(fix), nil)
		return err
	})
	return ref, err
}

func flightRefKey(ref domain.FlightRef) string { return "flight:by_ref:" + string(ref) }
func activeFlightKey(aircraftRef domain.AircraftRef) string {
	return "flight:active:" + refHex(aircraftRef)
}

// InsertFlight enforces at-most-one-Active-flight-per-aircraft (§3, §8) by making
// flight:active:<aircraft> the sole gate: insertion fails if a key is already present.
func (s *BuntStore) InsertFlight(aircraftRef domain.AircraftRef, takeoffTime time.Time) (domain.FlightRef, error) {
	ref := domain.FlightRef(uuid.NewString())
	err := s.db.Update(func(tx *buntdb.Tx) error {
		activeKey := activeFlightKey(aircraftRef)
		if _, err := tx.Get(activeKey); err == nil {
			return fmt.Errorf("aircraft %x already has an active flight", aircraftRef)
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		fl := domain.Flight{
			Ref: ref, AircraftRef: aircraftRef, TakeoffTime: takeoffTime,
			LastFixAt: takeoffTime, State: domain.FlightActive,
		}
		if _, _, err := tx.Set(flightRefKey(ref), encodeFlight(fl), nil); err != nil {
			return err
		}
		_, _, err := tx.Set(activeKey, string(ref), nil)
		return err
	})
	return ref, err
}

// SplitFlight closes oldRef (landing time, end reason, state) and opens a fresh Active
// flight for aircraftRef in the same transaction, overwriting flight:active:<aircraft>
// directly rather than deleting then re-inserting — so a concurrent GetActiveFlight can
// never observe the aircraft with no active flight between the two halves of a split.
func (s *BuntStore) SplitFlight(oldRef domain.FlightRef, closedAt time.Time, reason domain.EndReason, aircraftRef domain.AircraftRef, takeoffTime time.Time) (domain.FlightRef, error) {
	newRef := domain.FlightRef(uuid.NewString())
	err := s.db.Update(func(tx *buntdb.Tx) error {
		oldKey := flightRefKey(oldRef)
		v, err := tx.Get(oldKey)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		old := decodeFlight(v)
		old.LandingTime = &closedAt
		old.EndReason = reason
		old.State = domain.FlightCompleted
		if _, _, err := tx.Set(oldKey, encodeFlight(old), nil); err != nil {
			return err
		}

		newFlight := domain.Flight{
			Ref: newRef, AircraftRef: aircraftRef, TakeoffTime: takeoffTime,
			LastFixAt: takeoffTime, State: domain.FlightActive,
		}
		if _, _, err := tx.Set(flightRefKey(newRef), encodeFlight(newFlight), nil); err != nil {
			return err
		}
		_, _, err = tx.Set(activeFlightKey(aircraftRef), string(newRef), nil)
		return err
	})
	return newRef, err
}

func (s *BuntStore) UpdateFlight(ref domain.FlightRef, update FlightUpdate) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		key := flightRefKey(ref)
		v, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		fl := decodeFlight(v)
		if update.Callsign != nil && fl.Callsign == "" {
			fl.Callsign = *update.Callsign
		}
		if update.LastFixAt != nil {
			fl.LastFixAt = *update.LastFixAt
		}
		closing := update.LandingTime != nil || update.EndReason != nil
		if update.LandingTime != nil {
			fl.LandingTime = update.LandingTime
		}
		if update.EndReason != nil {
			fl.EndReason = *update.EndReason
		}
		if closing {
			fl.State = domain.FlightCompleted
			if err := tx.Delete(activeFlightKey(fl.AircraftRef)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		_, _, err = tx.Set(key, encodeFlight(fl), nil)
		return err
	})
}

func (s *BuntStore) GetFlight(ref domain.FlightRef) (domain.Flight, error) {
	var fl domain.Flight
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(flightRefKey(ref))
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		fl = decodeFlight(v)
		return nil
	})
	return fl, err
}

func (s *BuntStore) GetActiveFlight(aircraftRef domain.AircraftRef) (domain.Flight, bool, error) {
	var fl domain.Flight
	found := false
	err := s.db.View(func(tx *buntdb.Tx) error {
		ref, err := tx.Get(activeFlightKey(aircraftRef))
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		v, err := tx.Get(flightRefKey(domain.FlightRef(ref)))
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		fl = decodeFlight(v)
		found = true
		return nil
	})
	return fl, found, err
}

// ActiveFlightsOlderThan scans the (typically small) set of currently-active flights.
func (s *BuntStore) ActiveFlightsOlderThan(cutoff time.Time) ([]domain.Flight, error) {
	var out []domain.Flight
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("flight:active:*", func(key, val string) bool {
			v, err := tx.Get(flightRefKey(domain.FlightRef(val)))
			if err != nil {
				return true
			}
			fl := decodeFlight(v)
			if !fl.LastFixAt.After(cutoff) {
				out = append(out, fl)
			}
			return true
		})
	})
	return out, err
}

func (s *BuntStore) UpsertGeofence(g domain.Geofence) error {
	if g.Ref == "" {
		g.Ref = domain.GeofenceRef(uuid.NewString())
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		rect := fmt.Sprintf("[%f %f],[%f %f]", g.MinLon, g.MinLat, g.MaxLon, g.MaxLat)
		if _, _, err := tx.Set("geofence:bbox:"+string(g.Ref), rect, nil); err != nil {
			return err
		}
		_, _, err := tx.Set("geofence:data:"+string(g.Ref), encodeGeofence(g), nil)
		return err
	})
}

// QueryGeofencesContaining finds geofences whose bounding box contains the point, then
// refines with an exact polygon test when one is defined.
func (s *BuntStore) QueryGeofencesContaining(lat, lon float64) ([]domain.Geofence, error) {
	var out []domain.Geofence
	err := s.db.View(func(tx *buntdb.Tx) error {
		point := fmt.Sprintf("[%f %f]", lon, lat)
		return tx.Intersects(geofenceSpatialIndex, point, func(key, val string) bool {
			ref := key[len("geofence:bbox:"):]
			v, err := tx.Get("geofence:data:" + ref)
			if err != nil {
				return true
			}
			g := decodeGeofence(v)
			if g.Contains(lat, lon) {
				out = append(out, g)
			}
			return true
		})
	})
	return out, err
}

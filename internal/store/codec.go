package store

import (
	"encoding/json"

	"github.com/hut8/soar/internal/domain"
)

// Records are stored as JSON text values; BuntDB itself is schemaless, so encoding is
// this package's concern alone. Encoding errors are treated as impossible (no user input
// reaches these types unvalidated) and panic, matching the teacher's storage.go style of
// trusting its own marshaled state.

func encodeAircraft(a domain.Aircraft) string {
	b, err := json.Marshal(a)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func decodeAircraft(s string) domain.Aircraft {
	var a domain.Aircraft
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		panic(err)
	}
	return a
}

func encodeReceiver(r domain.Receiver) string {
	b, err := json.Marshal(r)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func decodeReceiver(s string) domain.Receiver {
	var r domain.Receiver
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		panic(err)
	}
	return r
}

func encodeRawMessage(m domain.RawMessage) string {
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func encodeFix(f domain.Fix) string {
	b, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func encodeFlight(f domain.Flight) string {
	b, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func decodeFlight(s string) domain.Flight {
	var f domain.Flight
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		panic(err)
	}
	return f
}

func encodeGeofence(g domain.Geofence) string {
	b, err := json.Marshal(g)
	if err != nil {
		panic(err)
	}
	return string(b)
}

func decodeGeofence(s string) domain.Geofence {
	var g domain.Geofence
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		panic(err)
	}
	return g
}

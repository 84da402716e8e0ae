package aprs

import (
	"testing"

	"github.com/hut8/soar/internal/domain"
)

func TestParseOGNID_StandardForm(t *testing.T) {
	// detail byte 0x4A = 0100_1010: bit0=0 (stealth false), bit1=1 (no-track true),
	// bits2-5=0010=2 (tow plane), bits6-7=01=1 (ICAO address type).
	got, err := ParseOGNID("4A123456")
	if err != nil {
		t.Fatalf("ParseOGNID: %v", err)
	}
	want := OgnID{
		Stealth:        false,
		NoTrack:        true,
		AircraftType:   domain.AircraftTypeTowPlane,
		AddressTypeRaw: 1,
		AddressType:    domain.AddressIcao,
		Address24:      0x123456,
	}
	if got != want {
		t.Fatalf("ParseOGNID(4A123456) = %+v, want %+v", got, want)
	}
}

func TestParseOGNID_NaviterForm(t *testing.T) {
	// detail uint16 0x0065 = 0000_0000_0110_0101: bit0=1 (stealth true), bit1=0
	// (no-track false), bits2-5=1001=9 (UAV), bits6-11=000001=1 (ICAO address type).
	got, err := ParseOGNID("0065ABCDEF")
	if err != nil {
		t.Fatalf("ParseOGNID: %v", err)
	}
	want := OgnID{
		Stealth:        true,
		NoTrack:        false,
		AircraftType:   domain.AircraftTypeUAV,
		AddressTypeRaw: 1,
		AddressType:    domain.AddressIcao,
		Address24:      0xABCDEF,
	}
	if got != want {
		t.Fatalf("ParseOGNID(0065ABCDEF) = %+v, want %+v", got, want)
	}
}

func TestParseOGNID_UnknownAddressTypeCollapses(t *testing.T) {
	// detail 0x00: every field zero, including the address-type bits, which map to
	// nothing in mapAddressType's 1/2/3 switch and must collapse to Unknown while
	// still preserving the raw value.
	got, err := ParseOGNID("00000000")
	if err != nil {
		t.Fatalf("ParseOGNID: %v", err)
	}
	if got.AddressTypeRaw != 0 {
		t.Fatalf("AddressTypeRaw = %d, want 0", got.AddressTypeRaw)
	}
	if got.AddressType != domain.AddressUnknown {
		t.Fatalf("AddressType = %v, want Unknown", got.AddressType)
	}
}

func TestParseOGNID_BadLength(t *testing.T) {
	if _, err := ParseOGNID("ABC"); err == nil {
		t.Fatal("expected an error for a hex string of unexpected length")
	}
}

package aprs

import (
	"fmt"
	"strconv"

	"github.com/hut8/soar/internal/domain"
)

// OgnID is the decoded form of an APRS position packet's idXXXXXX[XX] field
// (spec.md §4.2). AddressTypeRaw is the wire-level numeric address-type value before
// mapping into the core's closed AddressType enum; unmapped values collapse to
// domain.AddressUnknown in AddressType but are preserved here for logging/tests, per
// "unknown numeric values are preserved as Unknown(n)".
type OgnID struct {
	Stealth        bool
	NoTrack        bool
	AircraftType   domain.AircraftTypeOGN
	AddressTypeRaw int
	AddressType    domain.AddressType
	Address24      uint32
}

// ParseOGNID decodes the hex digits following "id" in an APRS position packet. It
// accepts the standard 8-hex-digit form (1-byte detail) and the NAVITER 10-hex-digit
// form (2-byte detail); both encode fields packed LSB-first: bit0 stealth, bit1
// no-track, bits2-5 aircraft type, then a variable-width address-type field, with
// NAVITER reserving 4 trailing bits.
func ParseOGNID(hexDigits string) (OgnID, error) {
	switch len(hexDigits) {
	case 8:
		return parseOGNID(hexDigits[:2], hexDigits[2:], 2)
	case 10:
		return parseOGNID(hexDigits[:4], hexDigits[4:], 6)
	default:
		return OgnID{}, fmt.Errorf("aprs: id field %q has unexpected length %d (want 8 or 10)", hexDigits, len(hexDigits))
	}
}

func parseOGNID(detailHex, addrHex string, addrTypeBits uint) (OgnID, error) {
	detail, err := strconv.ParseUint(detailHex, 16, 16)
	if err != nil {
		return OgnID{}, fmt.Errorf("aprs: bad id detail %q: %w", detailHex, err)
	}
	addr, err := strconv.ParseUint(addrHex, 16, 32)
	if err != nil {
		return OgnID{}, fmt.Errorf("aprs: bad id address %q: %w", addrHex, err)
	}

	addrTypeMask := uint64(1)<<addrTypeBits - 1
	rawType := int((detail >> 6) & addrTypeMask)

	return OgnID{
		Stealth:        detail&0x1 != 0,
		NoTrack:        (detail>>1)&0x1 != 0,
		AircraftType:   mapAircraftType(int((detail >> 2) & 0xF)),
		AddressTypeRaw: rawType,
		AddressType:    mapAddressType(rawType),
		Address24:      uint32(addr),
	}, nil
}

// mapAddressType follows the OGN convention for address-type values 1-3 (ICAO, FLARM,
// OGN); every other value (0 in either id format, or 4 and above, which only NAVITER's
// wider field can carry) has no core-level identity and collapses to Unknown.
func mapAddressType(raw int) domain.AddressType {
	switch raw {
	case 1:
		return domain.AddressIcao
	case 2:
		return domain.AddressFlarm
	case 3:
		return domain.AddressOgn
	default:
		return domain.AddressUnknown
	}
}

func mapAircraftType(raw int) domain.AircraftTypeOGN {
	switch raw {
	case 1:
		return domain.AircraftTypeGlider
	case 2:
		return domain.AircraftTypeTowPlane
	case 3:
		return domain.AircraftTypeHelicopter
	case 4:
		return domain.AircraftTypeParachute
	case 5:
		return domain.AircraftTypeHangGlider
	case 6:
		return domain.AircraftTypeParaGlider
	case 7:
		return domain.AircraftTypePowered
	case 8:
		return domain.AircraftTypeJet
	case 9:
		return domain.AircraftTypeUAV
	case 10:
		return domain.AircraftTypeStatic
	case 11:
		return domain.AircraftTypeBalloon
	case 12:
		return domain.AircraftTypeAirship
	default:
		return domain.AircraftTypeUnknown
	}
}

// Package sbs implements the BaseStation ("SBS") CSV line decoder (spec.md §4.1, §4.3
// variant): MSG records already carry callsign, decoded lat/lon, altitude, and velocity
// per field (no CPR pairing, unlike Beast), so the accumulator here only needs to merge
// the fields each MSG subtype independently supplies. Field layout is grounded on the
// example pack's BaseStation writer/reader pair.
package sbs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transmission (MSG) subtypes (BaseStation protocol).
const (
	MsgIdentification   = 1 // callsign
	MsgSurfacePosition  = 2
	MsgAirbornePosition = 3 // lat/lon/altitude
	MsgAirborneVelocity = 4 // speed/track/vertical rate
	MsgSurveillanceAlt  = 5
	MsgSurveillanceID   = 6
	MsgAirToAir         = 7
	MsgAllCallReply     = 8
)

// Packet is one parsed BaseStation "MSG" CSV line. Fields absent from a given
// transmission subtype are left at their zero value with the matching Has* flag unset.
type Packet struct {
	TransmissionType int
	HexIdent         string
	Generated        time.Time

	Callsign string
	HasCallsign bool

	Lat, Lon    float64
	HasPosition bool
	AltitudeFt  float64
	HasAltitude bool

	GroundSpeedKts float64
	TrackDegrees   float64
	VerticalRateFPM float64
	HasVelocity     bool

	Squawk string
}

// ParseLine parses one BaseStation CSV line. Only "MSG" records are decoded; all other
// message types (SEL, ID, AIR, STA, CLK) are reported as an error so callers can archive
// the raw line without further processing, per spec.md §4.1 "Otherwise: archive raw".
func ParseLine(line string) (Packet, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Split(line, ",")
	if len(fields) < 11 || fields[0] != "MSG" {
		return Packet{}, fmt.Errorf("sbs: not a MSG record")
	}

	transmissionType, err := strconv.Atoi(fields[1])
	if err != nil {
		return Packet{}, fmt.Errorf("sbs: bad transmission type %q: %w", fields[1], err)
	}

	pkt := Packet{TransmissionType: transmissionType, HexIdent: strings.ToUpper(fields[4])}
	if pkt.HexIdent == "" {
		return Packet{}, fmt.Errorf("sbs: empty hex ident")
	}
	pkt.Generated = parseDateTime(field(fields, 6), field(fields, 7))

	switch transmissionType {
	case MsgIdentification:
		if cs := strings.TrimSpace(field(fields, 10)); cs != "" {
			pkt.Callsign, pkt.HasCallsign = cs, true
		}
	case MsgSurfacePosition, MsgAirbornePosition:
		lat, latOK := parseFloat(field(fields, 14))
		lon, lonOK := parseFloat(field(fields, 15))
		if latOK && lonOK {
			pkt.Lat, pkt.Lon, pkt.HasPosition = lat, lon, true
		}
		if alt, ok := parseFloat(field(fields, 11)); ok {
			pkt.AltitudeFt, pkt.HasAltitude = alt, true
		}
	case MsgAirborneVelocity:
		speed, speedOK := parseFloat(field(fields, 12))
		track, trackOK := parseFloat(field(fields, 13))
		vrate, _ := parseFloat(field(fields, 16))
		if speedOK && trackOK {
			pkt.GroundSpeedKts, pkt.TrackDegrees, pkt.VerticalRateFPM, pkt.HasVelocity = speed, track, vrate, true
		}
	case MsgSurveillanceAlt, MsgSurveillanceID:
		if alt, ok := parseFloat(field(fields, 11)); ok {
			pkt.AltitudeFt, pkt.HasAltitude = alt, true
		}
		pkt.Squawk = strings.TrimSpace(field(fields, 17))
	}

	return pkt, nil
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseDateTime(date, clock string) time.Time {
	if date == "" || clock == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006/01/02 15:04:05.000", date+" "+clock)
	if err != nil {
		return time.Time{}
	}
	return t
}

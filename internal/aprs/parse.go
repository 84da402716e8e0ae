// Package aprs implements the APRS/OGN line-oriented decoder (spec.md §4.2): server-line
// archival, receiver/raw-message upserts, OGN id-field decoding, and dispatch by packet
// type into the fix pipeline. It never touches the Beast/SBS accumulator (spec.md §9
// Open Questions: APRS is an independent path).
package aprs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PacketKind classifies a parsed APRS line for dispatch (§4.2 step 3).
type PacketKind int

const (
	KindUnknown PacketKind = iota
	KindServerLine
	KindAircraftPosition
	KindReceiverPosition
	KindReceiverStatus
)

// Packet is one decoded APRS line.
type Packet struct {
	Kind     PacketKind
	Raw      string
	Source   string // callsign before '>'
	Via      string // last hop in the path, used to resolve the reporting receiver
	Lat, Lon float64
	HasPos   bool

	CourseDegrees  float64
	HasCourse      bool
	GroundSpeedKts float64
	AltitudeFt     float64
	HasAltitude    bool
	ClimbFPM       float64
	HasClimb       bool
	TurnRateROT    float64
	HasTurnRate    bool

	OGNIDField string // raw hex digits after "id", empty if absent
	Callsign   string // flight/competition identifier, if the comment carries one

	Remainder string
}

var lineRe = regexp.MustCompile(`^([^>]+)>([^,:]+)(?:,([^:]*))?:(.*)$`)

// position packet body, e.g. "/074548h4821.86N/00531.07E'086/007/A=000607 id06DDA5BA"
var posRe = regexp.MustCompile(`^([!/=@])(?:(\d{6})([hz/]))?(\d{2})(\d{2}\.\d{2})([NS])(.)(\d{3})(\d{2}\.\d{2})([EW])(.)(.*)$`)

var courseSpeedRe = regexp.MustCompile(`^(\d{3})/(\d{3})`)
var altitudeRe = regexp.MustCompile(`A=(\d{6})`)
var idFieldRe = regexp.MustCompile(`id([0-9A-Fa-f]{8,10})\b`)
var climbRe = regexp.MustCompile(`([+-]\d+)fpm`)
var turnRateRe = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)rot`)
var flightNumberRe = regexp.MustCompile(`FNT?([A-Z0-9-]+)`)

// ParseLine classifies and, where possible, fully decodes one APRS-IS line.
// Server/comment lines (leading '#') are reported as KindServerLine with no further
// parsing, per §4.2 "archive and update a server-status aggregate only".
func ParseLine(line string) (Packet, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Packet{}, fmt.Errorf("aprs: empty line")
	}
	if strings.HasPrefix(line, "#") {
		return Packet{Kind: KindServerLine, Raw: line}, nil
	}

	m := lineRe.FindStringSubmatch(line)
	if m == nil {
		return Packet{}, fmt.Errorf("aprs: unrecognized line format")
	}
	pkt := Packet{Raw: line, Source: m[1]}
	pkt.Via = lastHop(m[3])
	body := m[4]

	if pm := posRe.FindStringSubmatch(body); pm != nil {
		lat, err := parseLat(pm[4], pm[5], pm[6])
		if err != nil {
			return Packet{}, err
		}
		lon, err := parseLon(pm[8], pm[9], pm[10])
		if err != nil {
			return Packet{}, err
		}
		pkt.HasPos = true
		pkt.Lat, pkt.Lon = lat, lon
		comment := pm[12]
		pkt.Remainder = comment

		if cs := courseSpeedRe.FindStringSubmatch(comment); cs != nil {
			course, _ := strconv.Atoi(cs[1])
			speed, _ := strconv.Atoi(cs[2])
			pkt.CourseDegrees = float64(course)
			pkt.HasCourse = true
			pkt.GroundSpeedKts = float64(speed) // APRS carries knots already for OGN trackers
		}
		if am := altitudeRe.FindStringSubmatch(comment); am != nil {
			alt, _ := strconv.Atoi(am[1])
			pkt.AltitudeFt = float64(alt)
			pkt.HasAltitude = true
		}
		if cm := climbRe.FindStringSubmatch(comment); cm != nil {
			v, _ := strconv.Atoi(cm[1])
			pkt.ClimbFPM = float64(v)
			pkt.HasClimb = true
		}
		if tm := turnRateRe.FindStringSubmatch(comment); tm != nil {
			v, _ := strconv.ParseFloat(tm[1], 64)
			pkt.TurnRateROT = v
			pkt.HasTurnRate = true
		}
		if im := idFieldRe.FindStringSubmatch(comment); im != nil {
			pkt.OGNIDField = strings.ToUpper(im[1])
		}
		if fm := flightNumberRe.FindStringSubmatch(comment); fm != nil {
			pkt.Callsign = fm[1]
		}

		switch {
		case pkt.OGNIDField != "":
			pkt.Kind = KindAircraftPosition
		default:
			pkt.Kind = KindReceiverPosition
		}
		return pkt, nil
	}

	if strings.HasPrefix(body, ">") {
		pkt.Kind = KindReceiverStatus
		pkt.Remainder = body[1:]
		return pkt, nil
	}

	pkt.Kind = KindUnknown
	pkt.Remainder = body
	return pkt, nil
}

func lastHop(path string) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(path, ",")
	return strings.TrimSuffix(parts[len(parts)-1], "*")
}

func parseLat(deg, min, hemi string) (float64, error) {
	d, err := strconv.Atoi(deg)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(min, 64)
	if err != nil {
		return 0, err
	}
	lat := float64(d) + m/60.0
	if hemi == "S" {
		lat = -lat
	}
	return lat, nil
}

func parseLon(deg, min, hemi string) (float64, error) {
	d, err := strconv.Atoi(deg)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseFloat(min, 64)
	if err != nil {
		return 0, err
	}
	lon := float64(d) + m/60.0
	if hemi == "W" {
		lon = -lon
	}
	return lon, nil
}

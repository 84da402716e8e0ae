package sbs

import "testing"

func TestParseLine_AirbornePosition(t *testing.T) {
	line := "MSG,3,1,1,AABBCC,1,2024/01/02,03:04:05.000,2024/01/02,03:04:05.000,,5000,,,51.5,-0.1,,,,,,0"
	pkt, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if pkt.TransmissionType != MsgAirbornePosition {
		t.Errorf("TransmissionType = %d, want %d", pkt.TransmissionType, MsgAirbornePosition)
	}
	if pkt.HexIdent != "AABBCC" {
		t.Errorf("HexIdent = %q, want AABBCC", pkt.HexIdent)
	}
	if !pkt.HasPosition || pkt.Lat != 51.5 || pkt.Lon != -0.1 {
		t.Errorf("position = (%v, %v, has=%v), want (51.5, -0.1, true)", pkt.Lat, pkt.Lon, pkt.HasPosition)
	}
	if !pkt.HasAltitude || pkt.AltitudeFt != 5000 {
		t.Errorf("altitude = (%v, has=%v), want (5000, true)", pkt.AltitudeFt, pkt.HasAltitude)
	}
}

func TestParseLine_Identification(t *testing.T) {
	line := "MSG,1,1,1,AABBCC,1,2024/01/02,03:04:05.000,2024/01/02,03:04:05.000,N12345,,,,,,,,,,,"
	pkt, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if !pkt.HasCallsign || pkt.Callsign != "N12345" {
		t.Errorf("Callsign = (%q, has=%v), want (N12345, true)", pkt.Callsign, pkt.HasCallsign)
	}
}

func TestParseLine_NonMsgRecordIsError(t *testing.T) {
	if _, err := ParseLine("STA,1,1,1,AABBCC,,,,,,,,,,,,,,,,,"); err == nil {
		t.Fatal("expected a non-MSG record to be reported as an error so the caller archives it raw")
	}
}

func TestParseLine_TooFewFieldsIsError(t *testing.T) {
	if _, err := ParseLine("MSG,3,1"); err == nil {
		t.Fatal("expected a short line to be reported as an error")
	}
}

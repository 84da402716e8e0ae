package beast

import (
	"bufio"
	"context"
	"log"
	"time"

	"github.com/hut8/soar/internal/aircraft"
	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/store"
)

// FixProcessor is the shared downstream capability every protocol worker hands a
// completed Fix to (spec.md §4.4; mirrors internal/aprs.FixProcessor).
type FixProcessor interface {
	Process(ctx context.Context, fix domain.Fix) error
}

// Worker decodes a stream of Beast frames into Fixes. It never performs a device
// registry lookup (spec.md §4.3 "no external registry lookup for ADS-B").
type Worker struct {
	Store       store.Store
	Aircraft    *aircraft.Cache
	FixProc     FixProcessor
	Accumulator *Accumulator
}

// NewWorker builds a Beast worker with its accumulator's pairing window from cfg.
func NewWorker(st store.Store, ac *aircraft.Cache, fp FixProcessor, cprMaxPairAge time.Duration) *Worker {
	return &Worker{
		Store:       st,
		Aircraft:    ac,
		FixProc:     fp,
		Accumulator: NewAccumulator(cprMaxPairAge),
	}
}

// Run reads frames from r until it errors or ctx is cancelled.
func (w *Worker) Run(ctx context.Context, r *bufio.Reader) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := ReadFrame(r)
		if err != nil {
			return err
		}
		w.HandleFrame(ctx, frame, time.Now().UTC())
	}
}

// HandlePayload processes a raw frame payload already pulled off the wire by an
// ingest-layer adapter (its length alone distinguishes Mode-AC/short/long framing,
// since that's all HandleFrame ever inspected besides the payload itself).
func (w *Worker) HandlePayload(ctx context.Context, payload []byte, receivedAt time.Time) {
	var typ byte
	switch len(payload) {
	case 2:
		typ = TypeModeAC
	case 7:
		typ = TypeModeSShort
	case 14:
		typ = TypeModeSLong
	}
	w.HandleFrame(ctx, Frame{Type: typ, Payload: payload}, receivedAt)
}

// HandleFrame archives the raw frame and, for Mode S extended squitter (DF17/18),
// decodes and dispatches it into the accumulator.
func (w *Worker) HandleFrame(ctx context.Context, frame Frame, receivedAt time.Time) {
	rawRef, err := w.Store.InsertRawMessage(domain.RawMessage{
		Source: domain.SourceBeast, ReceivedAt: receivedAt, Payload: append([]byte(nil), frame.Payload...),
	})
	if err != nil {
		log.Printf("beast: raw message archival failed: %v", err)
	}

	if frame.Type != TypeModeSLong || len(frame.Payload) < 5 {
		return
	}

	df := frame.Payload[0] >> 3
	if df != 17 && df != 18 {
		return
	}
	icao := uint32(frame.Payload[1])<<16 | uint32(frame.Payload[2])<<8 | uint32(frame.Payload[3])
	if icao == 0 {
		return
	}

	pf, ready := w.Accumulator.Ingest(icao, frame.Payload, receivedAt)
	if !ready {
		return
	}

	ac, err := w.Aircraft.GetOrCreate(ctx, domain.AddressIcao, icao, false)
	if err != nil {
		log.Printf("beast: aircraft upsert failed for %06X: %v", icao, err)
		return
	}

	fix := domain.Fix{
		AircraftRef:    ac.Ref,
		ReceivedAt:     pf.ReceivedAt,
		Lat:            pf.Lat,
		Lon:            pf.Lon,
		AltitudeMSLFt:  pf.AltitudeMSLFt,
		GroundSpeedKts: pf.GroundSpeedKts,
		ClimbFPM:       pf.ClimbFPM,
		Source:         domain.SourceBeast,
		RawMessageRef:  rawRef,
		Callsign:       pf.Callsign,
	}
	if pf.HasTrack {
		track := pf.TrackDegrees
		fix.TrackDegrees = &track
	}

	if err := w.FixProc.Process(ctx, fix); err != nil {
		monitoring.Debugf("beast: fix processing failed: %v", err)
	}
}

// RunEvictionSweep periodically drops accumulator entries that have gone stale
// (spec.md §4.3, §7 "Accumulator state full or stale").
func (w *Worker) RunEvictionSweep(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.Accumulator.EvictStale(now.Add(-maxAge))
		}
	}
}

package sbs

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

// Worker decodes a stream of BaseStation CSV lines into Fixes. Like the Beast path it
// never performs an external device-registry lookup (spec.md §4.3).
type Worker struct {
	Store       store.Store
	Aircraft    *aircraft.Cache
	FixProc     FixProcessor
	Accumulator *Accumulator
}

func NewWorker(st store.Store, ac *aircraft.Cache, fp FixProcessor) *Worker {
	return &Worker{Store: st, Aircraft: ac, FixProc: fp, Accumulator: NewAccumulator()}
}

// Run reads newline-delimited BaseStation records from r until it errors or ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context, r *bufio.Reader) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := r.ReadString('\n')
		if line != "" {
			w.HandleLine(ctx, line, time.Now().UTC())
		}
		if err != nil {
			return err
		}
	}
}

// HandleLine archives the raw line and, for MSG records, decodes and dispatches it into
// the accumulator.
func (w *Worker) HandleLine(ctx context.Context, line string, receivedAt time.Time) {
	rawRef, err := w.Store.InsertRawMessage(domain.RawMessage{Source: domain.SourceSbs, ReceivedAt: receivedAt, Payload: []byte(line)})
	if err != nil {
		log.Printf("sbs: raw message archival failed: %v", err)
	}

	pkt, err := ParseLine(line)
	if err != nil {
		return // non-MSG record; archived above, nothing further to do.
	}

	icao, pf, ready := w.Accumulator.Ingest(pkt, receivedAt)
	if !ready {
		return
	}

	ac, err := w.Aircraft.GetOrCreate(ctx, domain.AddressIcao, icao, false)
	if err != nil {
		log.Printf("sbs: aircraft upsert failed for %06X: %v", icao, err)
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
		Source:         domain.SourceSbs,
		RawMessageRef:  rawRef,
		Callsign:       pf.Callsign,
	}
	if pf.HasTrack {
		track := pf.TrackDegrees
		fix.TrackDegrees = &track
	}

	if err := w.FixProc.Process(ctx, fix); err != nil {
		monitoring.Debugf("sbs: fix processing failed: %v", err)
	}
}

// RunEvictionSweep periodically drops accumulator entries that have gone stale.
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

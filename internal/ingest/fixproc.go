package ingest

import (
	"context"
	"log"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/elevation"
	"github.com/hut8/soar/internal/flight"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/store"
)

// FixProcessor is the single shared implementation every protocol decoder hands its
// completed Fix to: it fills in AGL when missing, snapshots the geofence catalog at the
// fix's position, and delegates to the flight tracker's state machine (spec.md §4.4
// step 3, §4.5). internal/aprs, internal/beast, and internal/sbs each declare their own
// FixProcessor interface with this identical method set; *FixProcessor satisfies all
// three without needing to import any of them.
type FixProcessor struct {
	Store     store.Store
	Tracker   *flight.Tracker
	Elevation elevation.Service
}

func NewFixProcessor(st store.Store, tracker *flight.Tracker, elev elevation.Service) *FixProcessor {
	if elev == nil {
		elev = elevation.Disabled{}
	}
	return &FixProcessor{Store: st, Tracker: tracker, Elevation: elev}
}

// Process implements the fix-ingestion pipeline's shared downstream step.
func (p *FixProcessor) Process(ctx context.Context, fix domain.Fix) error {
	if fix.AltitudeAGLFt == nil {
		if groundFt, ok := p.Elevation.ElevationFeet(ctx, fix.Lat, fix.Lon); ok {
			agl := fix.AltitudeMSLFt - groundFt
			fix.AltitudeAGLFt = &agl
		}
	}

	geofences, err := p.Store.QueryGeofencesContaining(fix.Lat, fix.Lon)
	if err != nil {
		monitoring.Debugf("ingest: geofence query failed for aircraft %x: %v", fix.AircraftRef, err)
		geofences = nil
	}

	if err := p.Tracker.ProcessFix(fix, geofences); err != nil {
		log.Printf("ingest: fix processing failed for aircraft %x: %v", fix.AircraftRef, err)
		return err
	}
	return nil
}

package aprs

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/hut8/soar/internal/aircraft"
	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/store"
)

// FixProcessor is the shared downstream capability every protocol worker hands a
// completed Fix to (spec.md §4.4, §9 "protocol workers share the same FixProcessor
// capability but different decoders").
type FixProcessor interface {
	Process(ctx context.Context, fix domain.Fix) error
}

// Decoder ties APRS line parsing to receiver/raw-message archival and the shared fix
// pipeline. Suppressed filters out aircraft categories a deployment does not want
// tracked (e.g. ground vehicles surfaced as static beacons); nil suppresses nothing.
type Decoder struct {
	Store      store.Store
	Aircraft   *aircraft.Cache
	FixProc    FixProcessor
	Suppressed map[domain.AircraftTypeOGN]bool

	receivers *receiverCache
	stats     serverStats
}

// NewDecoder builds an APRS decoder with its receiver cache sized per spec.md §4.2.
func NewDecoder(st store.Store, ac *aircraft.Cache, fp FixProcessor, cacheSize int, cacheTTL time.Duration) *Decoder {
	return &Decoder{
		Store:     st,
		Aircraft:  ac,
		FixProc:   fp,
		receivers: newReceiverCache(cacheSize, cacheTTL),
	}
}

// serverStats is the supplemented server-status aggregate (SPEC_FULL.md E.3): a rolling
// counter and last-seen-per-server map for '#'-prefixed APRS-IS comment lines.
type serverStats struct {
	mu       sync.Mutex
	lineSeen map[string]time.Time
	total    uint64
}

func (s *serverStats) observe(serverLine string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lineSeen == nil {
		s.lineSeen = make(map[string]time.Time)
	}
	s.total++
	s.lineSeen[serverLine] = time.Now().UTC()
}

// HandleLine decodes and dispatches one APRS-IS line (spec.md §4.2).
func (d *Decoder) HandleLine(ctx context.Context, line string, receivedAt time.Time) {
	pkt, err := ParseLine(line)
	if err != nil {
		monitoring.ParseErrors.WithLabelValues(domain.SourceAprs.String()).Inc()
		monitoring.Debugf("aprs: parse error: %v", err)
		return
	}

	if pkt.Kind == KindServerLine {
		d.stats.observe(pkt.Raw)
		_, _ = d.Store.InsertRawMessage(domain.RawMessage{Source: domain.SourceAprs, ReceivedAt: receivedAt, Payload: []byte(pkt.Raw)})
		return
	}

	receiverRef := d.resolveReceiver(pkt.Via, receivedAt)

	rawRef, err := d.Store.InsertRawMessage(domain.RawMessage{
		Source: domain.SourceAprs, ReceivedAt: receivedAt, Payload: []byte(pkt.Raw), ReceiverRef: receiverRef,
	})
	if err != nil {
		log.Printf("aprs: raw message archival failed: %v", err)
	}

	switch pkt.Kind {
	case KindReceiverPosition:
		if pkt.HasPos {
			_, _ = d.Store.UpsertReceiver(pkt.Source, store.ReceiverFields{Lat: pkt.Lat, Lon: pkt.Lon, HasPosition: true, LastHeard: receivedAt})
		}
	case KindReceiverStatus:
		// archived above; no further action (SPEC_FULL.md E.3 folds detail into serverStats only for '#' lines).
	case KindAircraftPosition:
		d.handleAircraftPosition(ctx, pkt, rawRef, receiverRef, receivedAt)
	default:
		// archived, no further action (§4.2 "Otherwise").
	}
}

func (d *Decoder) resolveReceiver(via string, receivedAt time.Time) domain.ReceiverRef {
	if via == "" {
		return ""
	}
	if ref, ok := d.receivers.get(via); ok {
		go func() {
			if _, err := d.Store.UpsertReceiver(via, store.ReceiverFields{LastHeard: receivedAt}); err != nil {
				monitoring.Debugf("aprs: receiver last-heard refresh failed: %v", err)
			}
		}()
		return ref
	}
	ref, err := d.Store.UpsertReceiver(via, store.ReceiverFields{LastHeard: receivedAt})
	if err != nil {
		log.Printf("aprs: receiver upsert failed for %q: %v", via, err)
		return ""
	}
	d.receivers.put(via, ref)
	return ref
}

func (d *Decoder) handleAircraftPosition(ctx context.Context, pkt Packet, rawRef domain.RawMessageRef, receiverRef domain.ReceiverRef, receivedAt time.Time) {
	id, err := ParseOGNID(pkt.OGNIDField)
	if err != nil {
		monitoring.ParseErrors.WithLabelValues(domain.SourceAprs.String()).Inc()
		monitoring.Debugf("aprs: bad id field %q: %v", pkt.OGNIDField, err)
		return
	}
	if id.Address24 == 0 {
		return // §4.4 step 1: filter address24 = 0
	}
	if d.Suppressed[id.AircraftType] {
		return
	}

	ac, err := d.Aircraft.GetOrCreate(ctx, id.AddressType, id.Address24, true)
	if err != nil {
		log.Printf("aprs: aircraft upsert failed for %06X: %v", id.Address24, err)
		return
	}

	fix := domain.Fix{
		AircraftRef:    ac.Ref,
		ReceivedAt:     receivedAt,
		Lat:            pkt.Lat,
		Lon:            pkt.Lon,
		AltitudeMSLFt:  pkt.AltitudeFt,
		GroundSpeedKts: pkt.GroundSpeedKts,
		ClimbFPM:       pkt.ClimbFPM,
		TurnRateROT:    pkt.TurnRateROT,
		Source:         domain.SourceAprs,
		RawMessageRef:  rawRef,
		ReceiverRef:    receiverRef,
		Callsign:       pkt.Callsign,
	}
	if pkt.HasCourse {
		track := pkt.CourseDegrees
		fix.TrackDegrees = &track
	}

	if err := d.FixProc.Process(ctx, fix); err != nil {
		monitoring.Debugf("aprs: fix processing failed: %v", err)
	}
}

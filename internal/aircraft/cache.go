// Package aircraft implements the two-index aircraft cache (spec.md §4.6): reads by
// internal ref or by (address_type, address24) under a sync.RWMutex read lock (so a hit
// waits while an insert holds the write lock), singleflight-protected misses,
// optional device-registry enrichment on the APRS path, and a long TTL because the
// mapping is near-immutable.
package aircraft

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/registry"
	"github.com/hut8/soar/internal/store"
)

type entry struct {
	aircraft domain.Aircraft
	expires  time.Time
}

// Cache is the in-memory aircraft identity cache.
type Cache struct {
	st       store.Store
	registry registry.Lookup
	ttl      time.Duration

	mu      sync.RWMutex
	byRef   map[domain.AircraftRef]*entry
	byAddr  map[domain.AircraftAddress]*entry
	sf      singleflight.Group
}

// New builds a Cache backed by st, enriching APRS misses through reg (pass
// registry.Disabled{} to turn enrichment off).
func New(st store.Store, reg registry.Lookup, ttl time.Duration) *Cache {
	return &Cache{
		st:       st,
		registry: reg,
		ttl:      ttl,
		byRef:    make(map[domain.AircraftRef]*entry),
		byAddr:   make(map[domain.AircraftAddress]*entry),
	}
}

func (c *Cache) lookupFresh(addr domain.AircraftAddress) (domain.Aircraft, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byAddr[addr]
	if !ok || time.Now().After(e.expires) {
		return domain.Aircraft{}, false
	}
	return e.aircraft, true
}

func (c *Cache) insert(ac domain.Aircraft) {
	e := &entry{aircraft: ac, expires: time.Now().Add(c.ttl)}
	addr := domain.AircraftAddress{Type: ac.AddressType, Address: ac.Address24}
	c.mu.Lock()
	c.byRef[ac.Ref] = e
	c.byAddr[addr] = e
	c.mu.Unlock()
}

// reenrich re-queries the device registry for an aircraft that's already on record but
// missing enrichment — the case where Beast/SBS saw the ICAO address first (enrich=false,
// no registry data available from that path) and an APRS sighting only arrives later. It
// persists via UpdateAircraftEnrichment rather than UpsertAircraft so a stale LastSeen
// from the miss path above isn't clobbered.
func (c *Cache) reenrich(ctx context.Context, ac domain.Aircraft, addrType domain.AddressType, addr24 uint32) domain.Aircraft {
	e, found := c.registry.Lookup(ctx, addrType, addr24)
	if !found {
		return ac
	}
	fields := store.AircraftFields{
		Registration:    e.Registration,
		Model:           e.Model,
		CompetitionNo:   e.CompetitionNo,
		AircraftTypeOGN: e.AircraftType,
		LastSeen:        ac.LastSeen,
	}
	if err := c.st.UpdateAircraftEnrichment(ac.Ref, fields); err != nil {
		monitoring.Debugf("aircraft: re-enrichment failed for %x: %v", addr24, err)
		return ac
	}
	ac.Registration, ac.Model, ac.CompetitionNo, ac.AircraftTypeOGN = fields.Registration, fields.Model, fields.CompetitionNo, fields.AircraftTypeOGN
	return ac
}

// GetOrCreate resolves (addrType, addr24) to an Aircraft, upserting it in the store on a
// first sighting. enrich is true only on the APRS path (§4.6: "external device-registry
// (APRS path only)"); Beast/SBS callers always pass false.
func (c *Cache) GetOrCreate(ctx context.Context, addrType domain.AddressType, addr24 uint32, enrich bool) (domain.Aircraft, error) {
	addr := domain.AircraftAddress{Type: addrType, Address: addr24}
	if ac, ok := c.lookupFresh(addr); ok {
		return ac, nil
	}

	sfKey := addr.String()
	v, err, _ := c.sf.Do(sfKey, func() (interface{}, error) {
		if ac, ok := c.lookupFresh(addr); ok {
			return ac, nil
		}
		ac, err := c.st.GetAircraftByAddress(addrType, addr24)
		if err == nil {
			if enrich && ac.Registration == "" {
				ac = c.reenrich(ctx, ac, addrType, addr24)
			}
			c.insert(ac)
			return ac, nil
		}

		fields := store.AircraftFields{LastSeen: time.Now().UTC()}
		if enrich {
			if e, found := c.registry.Lookup(ctx, addrType, addr24); found {
				fields.Registration = e.Registration
				fields.Model = e.Model
				fields.CompetitionNo = e.CompetitionNo
				fields.AircraftTypeOGN = e.AircraftType
			}
		}
		ref, err := c.st.UpsertAircraft(addrType, addr24, fields)
		if err != nil {
			return domain.Aircraft{}, err
		}
		ac = domain.Aircraft{
			Ref: ref, AddressType: addrType, Address24: addr24,
			Registration: fields.Registration, Model: fields.Model,
			CompetitionNo: fields.CompetitionNo, AircraftTypeOGN: fields.AircraftTypeOGN,
			LastSeen: fields.LastSeen,
		}
		c.insert(ac)
		return ac, nil
	})
	if err != nil {
		return domain.Aircraft{}, err
	}
	return v.(domain.Aircraft), nil
}

// ByRef returns a cached-or-stored Aircraft by its internal ref.
func (c *Cache) ByRef(ref domain.AircraftRef) (domain.Aircraft, error) {
	c.mu.RLock()
	e, ok := c.byRef[ref]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expires) {
		return e.aircraft, nil
	}
	ac, err := c.st.GetAircraftByRef(ref)
	if err != nil {
		return domain.Aircraft{}, err
	}
	c.insert(ac)
	return ac, nil
}

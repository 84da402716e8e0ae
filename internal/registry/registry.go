// Package registry is the device-registry lookup collaborator (spec.md §6): a
// best-effort enrichment source consulted only on the APRS path of the aircraft cache
// (§4.6), on a cache miss and when a stored aircraft has no registration yet. The lookup
// is synchronous, bounded by the HTTP client timeout; a failed or timed-out lookup does
// not fail the fix, and the aircraft keeps empty enrichment fields.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
)

// Entry is the subset of registry fields the aircraft cache cares about.
type Entry struct {
	Registration   string
	Model          string
	CompetitionNo  string
	AircraftType   domain.AircraftTypeOGN
}

// Lookup resolves (address_type, address24) to an Entry, if the registry has one.
type Lookup interface {
	Lookup(ctx context.Context, addrType domain.AddressType, addr24 uint32) (Entry, bool)
}

// Disabled is a Lookup that never finds anything, used when no registry URL is set.
type Disabled struct{}

func (Disabled) Lookup(context.Context, domain.AddressType, uint32) (Entry, bool) { return Entry{}, false }

// HTTPClient queries an external JSON device registry. Responses are read with gjson
// rather than unmarshaled into a struct: the registry's schema carries many fields this
// package does not use, and ad hoc path lookups avoid binding to all of them.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

func (c *HTTPClient) Lookup(ctx context.Context, addrType domain.AddressType, addr24 uint32) (Entry, bool) {
	ctx, span := monitoring.StartClientSpan(ctx, "registry.lookup", c.BaseURL)
	defer span.End()

	url := fmt.Sprintf("%s/devices/%s/%06X", c.BaseURL, addrType, addr24)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Entry{}, false
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		monitoring.Debugf("registry lookup failed: %v", err)
		return Entry{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Entry{}, false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Entry{}, false
	}
	if !gjson.ValidBytes(body) {
		return Entry{}, false
	}
	root := gjson.ParseBytes(body)
	if !root.Get("found").Bool() {
		return Entry{}, false
	}
	return Entry{
		Registration:  root.Get("registration").String(),
		Model:         root.Get("model").String(),
		CompetitionNo: root.Get("competition_number").String(),
		AircraftType:  parseAircraftType(root.Get("aircraft_type_ogn").String()),
	}, true
}

func parseAircraftType(s string) domain.AircraftTypeOGN {
	switch s {
	case "glider":
		return domain.AircraftTypeGlider
	case "tow_plane":
		return domain.AircraftTypeTowPlane
	case "helicopter":
		return domain.AircraftTypeHelicopter
	case "parachute":
		return domain.AircraftTypeParachute
	case "hang_glider":
		return domain.AircraftTypeHangGlider
	case "para_glider":
		return domain.AircraftTypeParaGlider
	case "powered":
		return domain.AircraftTypePowered
	case "jet":
		return domain.AircraftTypeJet
	case "uav":
		return domain.AircraftTypeUAV
	case "static":
		return domain.AircraftTypeStatic
	case "balloon":
		return domain.AircraftTypeBalloon
	case "airship":
		return domain.AircraftTypeAirship
	default:
		return domain.AircraftTypeUnknown
	}
}

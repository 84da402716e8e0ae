// Package elevation is the synchronous terrain-elevation collaborator (spec.md §6):
// elevation(lat, lon) -> Option<feet_MSL>, expected to answer in well under a
// millisecond on a warm cache. The fix processor tolerates a miss by omitting AGL.
package elevation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hut8/soar/internal/monitoring"
)

// Service looks up terrain elevation in feet MSL for a point.
type Service interface {
	ElevationFeet(ctx context.Context, lat, lon float64) (feet float64, ok bool)
}

// Disabled is a Service that always misses; used when no elevation.url is configured,
// per spec.md's "the core tolerates None".
type Disabled struct{}

func (Disabled) ElevationFeet(context.Context, float64, float64) (float64, bool) { return 0, false }

// HTTPClient queries an external elevation service over HTTP, mirroring the teacher's
// OpenSky client shape in backend/backend.go: a base URL, an *http.Client with a fixed
// timeout, and a client-kind trace span per call.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPClient builds a client with the given base URL and call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

type elevationResponse struct {
	ElevationFeet *float64 `json:"elevation_feet"`
}

// ElevationFeet calls GET {BaseURL}?lat=&lon=. A non-2xx response, a transport error, or
// a timeout all degrade to (0, false) rather than failing the fix.
func (c *HTTPClient) ElevationFeet(ctx context.Context, lat, lon float64) (float64, bool) {
	ctx, span := monitoring.StartClientSpan(ctx, "elevation.lookup", c.BaseURL)
	defer span.End()

	url := fmt.Sprintf("%s?lat=%f&lon=%f", c.BaseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, false
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		monitoring.Debugf("elevation lookup failed: %v", err)
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}
	var out elevationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ElevationFeet == nil {
		return 0, false
	}
	return *out.ElevationFeet, true
}

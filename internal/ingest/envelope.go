// Package ingest wires the three protocol adapters into a shared bounded-queue fabric
// and the fix-processing entry point every protocol decoder ultimately calls into
// (spec.md §4.4 "envelope fabric", §9 "protocol workers share the same FixProcessor
// capability but different decoders"). Queueing and the drop-counted non-blocking
// router are grounded on the teacher's bounded-channel WebSocket fan-out pattern
// (backend/ws.go), generalized here to a many-writer/many-reader pipeline stage.
package ingest

import (
	"time"

	"github.com/hut8/soar/internal/domain"
)

// Envelope is one unit of raw protocol traffic, tagged with its source and arrival
// time, queued for decode by the matching protocol worker (spec.md §4.4 step 1).
type Envelope struct {
	Source     domain.Source
	Payload    []byte
	ReceivedAt time.Time
}

package ingest

import (
	"context"

	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
)

// Router fans envelopes from a single bounded input queue out to the per-protocol
// intake queue matching their Source (spec.md §4.4 step 1 "envelope router"). When
// NonBlocking is set, a full destination queue drops the envelope and increments
// EnvelopesDropped instead of blocking the router (spec.md §9 Open Questions: backpressure
// policy is configurable).
type Router struct {
	In          chan Envelope
	NonBlocking bool

	aprs  chan Envelope
	beast chan Envelope
	sbs   chan Envelope
}

// NewRouter builds a Router with the given envelope and per-protocol intake capacities.
func NewRouter(envelopeCapacity, intakeCapacity int, nonBlocking bool) *Router {
	return &Router{
		In:          make(chan Envelope, envelopeCapacity),
		NonBlocking: nonBlocking,
		aprs:        make(chan Envelope, intakeCapacity),
		beast:       make(chan Envelope, intakeCapacity),
		sbs:         make(chan Envelope, intakeCapacity),
	}
}

// AprsIntake, BeastIntake, and SbsIntake are the per-protocol queues workers read from.
func (r *Router) AprsIntake() <-chan Envelope  { return r.aprs }
func (r *Router) BeastIntake() <-chan Envelope { return r.beast }
func (r *Router) SbsIntake() <-chan Envelope   { return r.sbs }

// Run drains In, dispatching each envelope to its protocol's intake queue, until ctx is
// cancelled.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.In:
			r.dispatch(env)
		}
	}
}

func (r *Router) dispatch(env Envelope) {
	var dst chan Envelope
	switch env.Source {
	case domain.SourceAprs:
		dst = r.aprs
	case domain.SourceBeast:
		dst = r.beast
	case domain.SourceSbs:
		dst = r.sbs
	default:
		return
	}

	if r.NonBlocking {
		select {
		case dst <- env:
		default:
			monitoring.EnvelopesDropped.WithLabelValues(env.Source.String()).Inc()
		}
	} else {
		dst <- env
	}
	monitoring.QueueDepth.WithLabelValues(env.Source.String()).Set(float64(len(dst)))
}

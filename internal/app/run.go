// Package app wires every pipeline component together and runs it until shut down
// (spec.md §1, §4). Structure follows the teacher's app/run.go: flag extraction,
// tracer/log-level setup, open the store, start background work, serve the admin HTTP
// surface, then wait for either a listener error or context cancellation.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hut8/soar/internal/adminhttp"
	"github.com/hut8/soar/internal/aircraft"
	"github.com/hut8/soar/internal/aprs"
	"github.com/hut8/soar/internal/beast"
	"github.com/hut8/soar/internal/config"
	"github.com/hut8/soar/internal/elevation"
	"github.com/hut8/soar/internal/flight"
	"github.com/hut8/soar/internal/ingest"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/pubsub"
	"github.com/hut8/soar/internal/registry"
	"github.com/hut8/soar/internal/sbs"
	"github.com/hut8/soar/internal/store"
)

// accumulatorStaleAfter bounds how long a Beast/SBS per-ICAO accumulator entry survives
// without a fresh message, independent of the CPR even/odd pairing window.
const accumulatorStaleAfter = 5 * time.Minute

// Run is the `run` command's action: it starts every ingress adapter, the flight
// tracker, its background sweeps, and the admin HTTP listener, and blocks until ctx is
// cancelled or the admin listener fails.
func Run(ctx context.Context, c *cli.Command) error {
	cfg := config.FromCommand(c)

	if cfg.Debug {
		monitoring.SetLogLevel("debug")
	}

	shutdownTracer := monitoring.InitTracer(cfg.TracingEndpoint, "soar")
	defer shutdownTracer()

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	bus := pubsub.New()

	var elev elevation.Service = elevation.Disabled{}
	if cfg.ElevationURL != "" {
		elev = elevation.NewHTTPClient(cfg.ElevationURL, cfg.ElevationTimeout)
	}

	var reg registry.Lookup = registry.Disabled{}
	if cfg.DeviceRegistryURL != "" {
		reg = registry.NewHTTPClient(cfg.DeviceRegistryURL, cfg.DeviceRegistryTimeout)
	}

	acCache := aircraft.New(st, reg, cfg.AircraftCacheTTL)

	tracker := flight.New(st, bus, flight.Config{
		ActivityMinAGLFeet:    cfg.ActivityMinAGLFeet,
		ActivityMinSpeedKnots: cfg.ActivityMinSpeedKnots,
		SplitGap:              cfg.SplitGap,
		InactiveWindow:        cfg.InactiveWindow,
		EvictAfter:            cfg.EvictAfter,
		DuplicateWindow:       cfg.DuplicateWindow,
		DuplicateEpsilon:      cfg.DuplicateEpsilon,
	})

	fixProc := ingest.NewFixProcessor(st, tracker, elev)

	aprsDecoder := aprs.NewDecoder(st, acCache, fixProc, cfg.ReceiverCacheSize, cfg.ReceiverCacheTTL)
	beastWorker := beast.NewWorker(st, acCache, fixProc, cfg.CPRMaxPairAge)
	sbsWorker := sbs.NewWorker(st, acCache, fixProc)

	router := ingest.NewRouter(cfg.EnvelopeQueueCapacity, cfg.IntakeQueueCapacity, cfg.RouterNonBlocking)

	go router.Run(ctx)
	go func() {
		if err := ingest.RunAprsAdapter(ctx, cfg.AprsAddr, cfg.ReconnectMinBackoff, cfg.ReconnectMaxBackoff, router); err != nil {
			monitoring.Debugf("aprs adapter stopped: %v", err)
		}
	}()
	go func() {
		if err := ingest.RunBeastAdapter(ctx, cfg.BeastAddr, cfg.ReconnectMinBackoff, cfg.ReconnectMaxBackoff, router); err != nil {
			monitoring.Debugf("beast adapter stopped: %v", err)
		}
	}()
	go func() {
		if err := ingest.RunSbsAdapter(ctx, cfg.SbsAddr, cfg.ReconnectMinBackoff, cfg.ReconnectMaxBackoff, router); err != nil {
			monitoring.Debugf("sbs adapter stopped: %v", err)
		}
	}()

	go ingest.RunAprsWorkers(ctx, router, aprsDecoder, cfg.AprsWorkers)
	go ingest.RunBeastWorkers(ctx, router, beastWorker, cfg.BeastWorkers)
	go ingest.RunSbsWorkers(ctx, router, sbsWorker, cfg.SbsWorkers)

	go tracker.RunTimeoutSweep(ctx, cfg.TimeoutSweepInterval)
	go tracker.RunEvictionSweep(ctx, cfg.EvictSweepInterval, cfg.EvictAfter)
	go beastWorker.RunEvictionSweep(ctx, cfg.EvictSweepInterval, accumulatorStaleAfter)
	go sbsWorker.RunEvictionSweep(ctx, cfg.EvictSweepInterval, accumulatorStaleAfter)

	srv := &http.Server{
		Addr:              cfg.AdminListen,
		Handler:           adminhttp.New(cfg.MetricsEnabled),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDrainDeadline)
	defer cancel()

	return awaitShutdown(ctx, srv, drainCtx, errCh, func() {
		log.Printf("shutdown signal received, draining up to %s", cfg.ShutdownDrainDeadline)
	})
}

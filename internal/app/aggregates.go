package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/hut8/soar/internal/adminhttp"
	"github.com/hut8/soar/internal/config"
	"github.com/hut8/soar/internal/domain"
	"github.com/hut8/soar/internal/monitoring"
	"github.com/hut8/soar/internal/store"
)

// RunAggregates runs only a periodic store-level timeout sweep against an existing
// store, with no ingress adapters and no in-memory aircraft-state map — a recovery mode
// for flights left Active by a writer process (the `run` command) that exited without
// closing them. Unlike flight.Tracker's sweep, which walks its own in-memory state to
// decide Landed vs Timeout, this sweep only has the persisted record to go on, so every
// flight it closes here is reported as a timeout.
func RunAggregates(ctx context.Context, c *cli.Command) error {
	cfg := config.FromCommand(c)

	if cfg.Debug {
		monitoring.SetLogLevel("debug")
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	go runStoreTimeoutSweep(ctx, st, cfg.TimeoutSweepInterval, cfg.InactiveWindow)

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

func runStoreTimeoutSweep(ctx context.Context, st store.Store, interval, inactiveWindow time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			storeTimeoutSweepOnce(st, time.Now().UTC().Add(-inactiveWindow))
		}
	}
}

func storeTimeoutSweepOnce(st store.Store, cutoff time.Time) {
	flights, err := st.ActiveFlightsOlderThan(cutoff)
	if err != nil {
		log.Printf("run-aggregates: sweep query failed: %v", err)
		return
	}
	for _, fl := range flights {
		landingTime := fl.LastFixAt
		reason := domain.EndReasonTimeout
		if err := st.UpdateFlight(fl.Ref, store.FlightUpdate{LandingTime: &landingTime, EndReason: &reason}); err != nil {
			log.Printf("run-aggregates: failed to close flight %s: %v", fl.Ref, err)
			continue
		}
		monitoring.FlightTransitions.WithLabelValues(reason.String()).Inc()
		monitoring.ActiveFlights.Dec()
	}
}

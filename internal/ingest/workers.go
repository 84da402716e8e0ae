package ingest

import (
	"context"
	"sync"

	"github.com/hut8/soar/internal/aprs"
	"github.com/hut8/soar/internal/beast"
	"github.com/hut8/soar/internal/sbs"
)

// RunAprsWorkers drains the router's APRS intake queue with n concurrent decode
// goroutines (spec.md §9 "protocol worker pool sizes are configurable per source").
func RunAprsWorkers(ctx context.Context, router *Router, decoder *aprs.Decoder, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-router.AprsIntake():
					if !ok {
						return
					}
					decoder.HandleLine(ctx, string(env.Payload), env.ReceivedAt)
				}
			}
		}()
	}
	wg.Wait()
}

// RunBeastWorkers drains the router's Beast intake queue with n concurrent decode
// goroutines.
func RunBeastWorkers(ctx context.Context, router *Router, worker *beast.Worker, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-router.BeastIntake():
					if !ok {
						return
					}
					worker.HandlePayload(ctx, env.Payload, env.ReceivedAt)
				}
			}
		}()
	}
	wg.Wait()
}

// RunSbsWorkers drains the router's SBS intake queue with n concurrent decode
// goroutines.
func RunSbsWorkers(ctx context.Context, router *Router, worker *sbs.Worker, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-router.SbsIntake():
					if !ok {
						return
					}
					worker.HandleLine(ctx, string(env.Payload), env.ReceivedAt)
				}
			}
		}()
	}
	wg.Wait()
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/hut8/soar/internal/app"
	"github.com/hut8/soar/internal/config"
)

func main() {
	defaults := config.Default()

	cmd := &cli.Command{
		Name:  "soar",
		Usage: "Ingest APRS/Beast/SBS aircraft position traffic, correlate it into flights, and persist the result",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the ingestion, correlation, and flight-detection pipeline",
				Flags: config.Flags(defaults),
				Action: func(ctx context.Context, c *cli.Command) error {
					return app.Run(ctx, c)
				},
			},
			{
				Name:  "run-aggregates",
				Usage: "Run only the background correlation sweeps against an existing store, without any ingress adapters",
				Flags: config.Flags(defaults),
				Action: func(ctx context.Context, c *cli.Command) error {
					return app.RunAggregates(ctx, c)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

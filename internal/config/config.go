// Package config defines the pipeline's tunables and the CLI flags that set them,
// following the teacher's category-grouped, env-var-backed flag layout.
package config

import (
	"time"

	"github.com/urfave/cli/v3"
)

// Config holds every tunable named or left as an open question by the spec. Defaults
// match the spec's recommended values exactly.
type Config struct {
	// Ingress transports.
	AprsAddr  string
	BeastAddr string
	SbsAddr   string

	// Reconnect backoff for ingress adapters.
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration

	// Queue capacities.
	EnvelopeQueueCapacity int
	IntakeQueueCapacity   int

	// Worker pool sizes.
	AprsWorkers  int
	BeastWorkers int
	SbsWorkers   int

	// Router behavior when an intake queue is full.
	RouterNonBlocking bool

	// Activity thresholds (§4.5).
	ActivityMinAGLFeet     float64
	ActivityMinSpeedKnots  float64

	// Flight lifecycle (§4.5).
	SplitGap       time.Duration
	InactiveWindow time.Duration
	EvictAfter     time.Duration

	// Duplicate suppression (§4.5 step 1).
	DuplicateWindow  time.Duration
	DuplicateEpsilon float64 // degrees, approx position tolerance

	// Background sweep cadences.
	TimeoutSweepInterval time.Duration
	EvictSweepInterval   time.Duration

	// Aircraft cache (§4.6).
	AircraftCacheTTL time.Duration

	// Receiver cache (§4.2).
	ReceiverCacheTTL  time.Duration
	ReceiverCacheSize int

	// CPR pairing window (§4.3).
	CPRMaxPairAge time.Duration

	// Persistence.
	StorePath string

	// Device registry / elevation external collaborators (§6).
	DeviceRegistryURL string
	DeviceRegistryTimeout time.Duration
	ElevationURL          string
	ElevationTimeout       time.Duration

	// Observability.
	MetricsEnabled   bool
	TracingEndpoint  string
	AdminListen      string
	Debug            bool

	// Shutdown.
	ShutdownDrainDeadline time.Duration
}

// Default returns a Config populated with the spec's recommended defaults.
func Default() Config {
	return Config{
		AprsAddr:  "aprs.glidernet.org:14580",
		BeastAddr: "127.0.0.1:30005",
		SbsAddr:   "127.0.0.1:30003",

		ReconnectMinBackoff: 1 * time.Second,
		ReconnectMaxBackoff: 60 * time.Second,

		EnvelopeQueueCapacity: 200,
		IntakeQueueCapacity:   200,

		AprsWorkers:  200,
		BeastWorkers: 200,
		SbsWorkers:   50,

		RouterNonBlocking: false,

		ActivityMinAGLFeet:    50,
		ActivityMinSpeedKnots: 20,

		SplitGap:       30 * time.Minute,
		InactiveWindow: 60 * time.Minute,
		EvictAfter:     24 * time.Hour,

		DuplicateWindow:  1 * time.Second,
		DuplicateEpsilon: 0.0003, // ~30m at the equator

		TimeoutSweepInterval: 60 * time.Second,
		EvictSweepInterval:   10 * time.Minute,

		AircraftCacheTTL: 24 * time.Hour,

		ReceiverCacheTTL:  24 * time.Hour,
		ReceiverCacheSize: 100_000,

		CPRMaxPairAge: 10 * time.Second,

		StorePath: "./data/soar.buntdb",

		DeviceRegistryTimeout: 2 * time.Second,
		ElevationTimeout:      500 * time.Millisecond,

		AdminListen: ":9100",

		ShutdownDrainDeadline: 30 * time.Second,
	}
}

// Flags returns the CLI flag set for the `run` command, with defaults sourced from d.
func Flags(d Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Category: "ingest", Name: "ingest.aprs.addr", Value: d.AprsAddr, Sources: cli.EnvVars("SOAR_APRS_ADDR"), Usage: "APRS-IS `HOST:PORT` to stream from"},
		&cli.StringFlag{Category: "ingest", Name: "ingest.beast.addr", Value: d.BeastAddr, Sources: cli.EnvVars("SOAR_BEAST_ADDR"), Usage: "Beast binary feed `HOST:PORT`"},
		&cli.StringFlag{Category: "ingest", Name: "ingest.sbs.addr", Value: d.SbsAddr, Sources: cli.EnvVars("SOAR_SBS_ADDR"), Usage: "SBS/BaseStation CSV feed `HOST:PORT`"},
		&cli.DurationFlag{Category: "ingest", Name: "ingest.backoff.min", Value: d.ReconnectMinBackoff, Usage: "Minimum reconnect backoff"},
		&cli.DurationFlag{Category: "ingest", Name: "ingest.backoff.max", Value: d.ReconnectMaxBackoff, Usage: "Maximum reconnect backoff"},

		&cli.IntFlag{Category: "ingest", Name: "ingest.queue.envelope", Value: int64(d.EnvelopeQueueCapacity), Usage: "Envelope queue capacity"},
		&cli.IntFlag{Category: "ingest", Name: "ingest.queue.intake", Value: int64(d.IntakeQueueCapacity), Usage: "Per-source intake queue capacity"},
		&cli.BoolFlag{Category: "ingest", Name: "ingest.router.nonblocking", Value: d.RouterNonBlocking, Usage: "Drop-and-count instead of blocking when an intake queue is full"},

		&cli.IntFlag{Category: "ingest", Name: "ingest.workers.aprs", Value: int64(d.AprsWorkers), Usage: "APRS protocol worker count"},
		&cli.IntFlag{Category: "ingest", Name: "ingest.workers.beast", Value: int64(d.BeastWorkers), Usage: "Beast protocol worker count"},
		&cli.IntFlag{Category: "ingest", Name: "ingest.workers.sbs", Value: int64(d.SbsWorkers), Usage: "SBS protocol worker count"},

		&cli.FloatFlag{Category: "tracker", Name: "tracker.activity.agl_min_feet", Value: d.ActivityMinAGLFeet, Usage: "Minimum AGL feet for a fix to be active"},
		&cli.FloatFlag{Category: "tracker", Name: "tracker.activity.speed_min_knots", Value: d.ActivityMinSpeedKnots, Usage: "Minimum ground speed knots for a fix to be active"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.split_gap", Value: d.SplitGap, Usage: "Gap since the prior fix that forces a new flight"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.inactive_window", Value: d.InactiveWindow, Usage: "Inactivity duration before the timeout sweep closes a flight"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.evict_after", Value: d.EvictAfter, Usage: "Idle duration before an aircraft's in-memory state is evicted"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.duplicate_window", Value: d.DuplicateWindow, Usage: "Fixes closer together than this, at nearly the same position, are treated as duplicates"},
		&cli.FloatFlag{Category: "tracker", Name: "tracker.duplicate_epsilon", Value: d.DuplicateEpsilon, Usage: "Position tolerance (degrees) for duplicate suppression"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.timeout_sweep_interval", Value: d.TimeoutSweepInterval, Usage: "Background timeout-checker cadence"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.evict_sweep_interval", Value: d.EvictSweepInterval, Usage: "Background aircraft-state eviction cadence"},
		&cli.DurationFlag{Category: "tracker", Name: "tracker.aircraft_cache_ttl", Value: d.AircraftCacheTTL, Usage: "Aircraft cache entry TTL"},
		&cli.DurationFlag{Category: "ingest", Name: "ingest.receiver_cache_ttl", Value: d.ReceiverCacheTTL, Usage: "APRS receiver cache entry TTL"},
		&cli.IntFlag{Category: "ingest", Name: "ingest.receiver_cache_size", Value: int64(d.ReceiverCacheSize), Usage: "APRS receiver cache capacity"},
		&cli.DurationFlag{Category: "ingest", Name: "ingest.cpr_max_pair_age", Value: d.CPRMaxPairAge, Usage: "Maximum age gap between an even/odd CPR pair"},

		&cli.StringFlag{Category: "store", Name: "store.path", Value: d.StorePath, Aliases: []string{"db"}, Usage: "Path to the persistence store file"},

		&cli.StringFlag{Category: "registry", Name: "registry.device.url", Value: d.DeviceRegistryURL, Usage: "Device registry lookup base `URL` (empty disables enrichment)"},
		&cli.DurationFlag{Category: "registry", Name: "registry.device.timeout", Value: d.DeviceRegistryTimeout, Usage: "Device registry lookup timeout"},
		&cli.StringFlag{Category: "elevation", Name: "elevation.url", Value: d.ElevationURL, Usage: "Elevation service base `URL` (empty disables AGL)"},
		&cli.DurationFlag{Category: "elevation", Name: "elevation.timeout", Value: d.ElevationTimeout, Usage: "Elevation service call timeout"},

		&cli.BoolFlag{Category: "monitoring", Name: "metrics.enabled", Value: d.MetricsEnabled, Usage: "Expose /metrics on the admin listener"},
		&cli.StringFlag{Category: "monitoring", Name: "tracing.endpoint", Value: d.TracingEndpoint, Aliases: []string{"t"}, Usage: "OpenTelemetry collector `ENDPOINT` for traces"},
		&cli.StringFlag{Category: "monitoring", Name: "admin.listen", Value: d.AdminListen, Usage: "`ADDRESS` for the admin (metrics/health) HTTP listener"},
		&cli.BoolFlag{Category: "monitoring", Name: "debug", Value: d.Debug, Aliases: []string{"d"}, Usage: "Enable debug logging"},

		&cli.DurationFlag{Category: "monitoring", Name: "shutdown.drain_deadline", Value: d.ShutdownDrainDeadline, Usage: "Bounded deadline for the admin HTTP server's shutdown drain"},
	}
}

// FromCommand reads flag values off a running *cli.Command into a Config.
func FromCommand(c *cli.Command) Config {
	return Config{
		AprsAddr:  c.String("ingest.aprs.addr"),
		BeastAddr: c.String("ingest.beast.addr"),
		SbsAddr:   c.String("ingest.sbs.addr"),

		ReconnectMinBackoff: c.Duration("ingest.backoff.min"),
		ReconnectMaxBackoff: c.Duration("ingest.backoff.max"),

		EnvelopeQueueCapacity: int(c.Int("ingest.queue.envelope")),
		IntakeQueueCapacity:   int(c.Int("ingest.queue.intake")),
		RouterNonBlocking:     c.Bool("ingest.router.nonblocking"),

		AprsWorkers:  int(c.Int("ingest.workers.aprs")),
		BeastWorkers: int(c.Int("ingest.workers.beast")),
		SbsWorkers:   int(c.Int("ingest.workers.sbs")),

		ActivityMinAGLFeet:    c.Float("tracker.activity.agl_min_feet"),
		ActivityMinSpeedKnots: c.Float("tracker.activity.speed_min_knots"),
		SplitGap:              c.Duration("tracker.split_gap"),
		InactiveWindow:        c.Duration("tracker.inactive_window"),
		EvictAfter:            c.Duration("tracker.evict_after"),
		DuplicateWindow:       c.Duration("tracker.duplicate_window"),
		DuplicateEpsilon:      c.Float("tracker.duplicate_epsilon"),
		TimeoutSweepInterval:  c.Duration("tracker.timeout_sweep_interval"),
		EvictSweepInterval:    c.Duration("tracker.evict_sweep_interval"),
		AircraftCacheTTL:      c.Duration("tracker.aircraft_cache_ttl"),

		ReceiverCacheTTL:  c.Duration("ingest.receiver_cache_ttl"),
		ReceiverCacheSize: int(c.Int("ingest.receiver_cache_size")),
		CPRMaxPairAge:     c.Duration("ingest.cpr_max_pair_age"),

		StorePath: c.String("store.path"),

		DeviceRegistryURL:     c.String("registry.device.url"),
		DeviceRegistryTimeout: c.Duration("registry.device.timeout"),
		ElevationURL:          c.String("elevation.url"),
		ElevationTimeout:      c.Duration("elevation.timeout"),

		MetricsEnabled:  c.Bool("metrics.enabled"),
		TracingEndpoint: c.String("tracing.endpoint"),
		AdminListen:     c.String("admin.listen"),
		Debug:           c.Bool("debug"),

		ShutdownDrainDeadline: c.Duration("shutdown.drain_deadline"),
	}
}

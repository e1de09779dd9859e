package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fieldtrack/internal/api"
	"fieldtrack/pkg/capture"
	"fieldtrack/pkg/capture/mockloc"
	"fieldtrack/pkg/config"
	"fieldtrack/pkg/core"
	"fieldtrack/pkg/db"
	"fieldtrack/pkg/events"
	"fieldtrack/pkg/filter"
	"fieldtrack/pkg/geofence"
	"fieldtrack/pkg/logging"
	"fieldtrack/pkg/probe"
	"fieldtrack/pkg/queue"
	"fieldtrack/pkg/retry"
	"fieldtrack/pkg/route"
	"fieldtrack/pkg/store"
	"fieldtrack/pkg/tracker"
	"fieldtrack/pkg/transport"
	"fieldtrack/pkg/version"
)

var (
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	configPath = flag.String("config", "configs/fieldtrack.yaml", "Path to config file")
	platform   = flag.String("platform", "android", "Permission flow to use (android|ios)")
)

func main() {
	flag.Parse()

	// Handle --init-config flag
	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("Fieldtrack Started", "version", version.Version)

	authToken := os.Getenv("FIELDTRACK_API_TOKEN")
	if authToken == "" {
		slog.Warn("FIELDTRACK_API_TOKEN not set, uplink requests go out unauthenticated")
	}

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	tr := tracker.New()
	bus := events.NewBus()
	go tailEvents(ctx, bus)

	// Uplink + offline queue
	client := transport.New(appCfg.Uplink.BaseURL, time.Duration(appCfg.Uplink.Timeout), tr)
	conn := transport.NewProbe(appCfg.Uplink.BaseURL)
	q := queue.New(queue.Config{
		MaxSize:   appCfg.Queue.MaxSize,
		BatchSize: appCfg.Queue.BatchSize,
		MaxAge:    time.Duration(appCfg.Queue.MaxAge),
	}, st, client, conn, bus, tr)

	// Route accumulator
	routes := route.NewManager(route.Options{
		MaxPoints:       appCfg.Route.MaxPoints,
		MinMovement:     float64(appCfg.Route.MinMovement),
		SimplifyEpsilon: float64(appCfg.Route.SimplifyEpsilon),
		SimplifyAfter:   appCfg.Route.SimplifyAfter,
		Staleness:       time.Duration(appCfg.Route.Staleness),
	}, bus)

	// Geofences
	var fences *geofence.Service
	if len(appCfg.Geofence.Fences) > 0 {
		fences, err = geofence.NewService(appCfg.Geofence, bus)
		if err != nil {
			return fmt.Errorf("failed to initialize geofences: %w", err)
		}
	}

	// Filter: config seeds the settings, persisted so the background context
	// reads the same values.
	settings := filterSettings(appCfg.Filter)
	if err := filter.SaveSettings(ctx, st, settings); err != nil {
		slog.Error("Failed to persist filter settings", "error", err)
	}
	fl := filter.New(settings)

	// Capture machine over the simulated location source
	machine, err := initCapture(appCfg, authToken, st, q, fl, routes, fences, bus, tr)
	if err != nil {
		return err
	}

	// Startup Probes
	probes := []probe.Probe{
		{Name: "Database", Check: dbConn.PingContext, Critical: true},
		{Name: "Uplink", Check: func(ctx context.Context) error {
			if !conn.IsInternetReachable(ctx) {
				return fmt.Errorf("%s not reachable, updates queue until it returns", appCfg.Uplink.BaseURL)
			}
			return nil
		}, Critical: false},
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	// Scheduler
	sched := core.NewScheduler(time.Duration(appCfg.Ticker.Loop))
	sched.AddJob(core.NewStalenessSweepJob(routes, time.Duration(appCfg.Route.SweepInterval)))
	sched.AddJob(core.NewReconcileJob(machine, time.Duration(appCfg.Capture.Reconcile)))
	sched.AddJob(core.NewQueueDrainJob(q, authToken, time.Duration(appCfg.Queue.Drain)))
	sched.AddJob(core.NewQueuePruneJob(dbConn, time.Duration(appCfg.Queue.MaxAge), time.Duration(appCfg.Queue.Prune)))
	go sched.Start(ctx)

	if machine.Intent(ctx) == capture.IntentActive {
		slog.Info("Persisted intent is active, reconcile will resume tracking")
	}

	// Server
	srv := api.NewServer(appCfg.Server.Address,
		api.NewStatusHandler(machine, q, tr),
		api.NewRouteHandler(routes),
		api.NewStreamHandler(bus),
		cancel)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	return runServerLifecycle(ctx, srv, quit)
}

func initDB(appCfg *config.Config) (*db.DB, store.Store, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func initCapture(appCfg *config.Config, authToken string, st store.Store, q *queue.Queue,
	fl *filter.Filter, routes *route.Manager, fences *geofence.Service,
	bus *events.Bus, tr *tracker.Tracker) (*capture.Machine, error) {

	registry := mockloc.NewRegistry(mockloc.Config{
		StartLat: 52.5200,
		StartLon: 13.4050,
	})

	var flow capture.PermissionFlow = capture.AndroidFlow{}
	if *platform == "ios" {
		flow = capture.IOSFlow{}
	}

	opts := capture.Options{
		Endpoint:  appCfg.Uplink.LocationEndpoint,
		AuthToken: authToken,
		Sampling: capture.SamplingOptions{
			TimeInterval:     time.Duration(appCfg.Capture.TimeInterval),
			DistanceInterval: float64(appCfg.Capture.DistanceInterval),
			Accuracy:         capture.Accuracy(appCfg.Capture.Accuracy),
		},
		Restart: retry.Policy{
			MaxAttempts: appCfg.Capture.RestartAttempts,
			BaseDelay:   time.Duration(appCfg.Capture.RestartBaseDelay),
			MaxDelay:    30 * time.Second,
			Jitter:      true,
		},
	}

	machine, err := capture.NewMachine(opts, mockloc.Permissions{}, flow, registry,
		st, q, fl, routes, fences, bus, tr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capture machine: %w", err)
	}
	return machine, nil
}

func filterSettings(fc config.FilterConfig) filter.Settings {
	return filter.Settings{
		Enabled:               fc.Enabled,
		MaxAccuracyRadius:     float64(fc.MaxAccuracyRadius),
		GoodAccuracyThreshold: float64(fc.GoodAccuracyThreshold),
		ConfidenceThreshold:   fc.ConfidenceThreshold,
		UseSmoothing:          fc.UseSmoothing,
		RejectLowAccuracy:     fc.RejectLowAccuracy,
	}
}

// tailEvents mirrors every bus event into the event log file.
func tailEvents(ctx context.Context, bus *events.Bus) {
	ch, cancel := bus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			logging.LogEvent(ev.Type, fmt.Sprintf("%v", ev.Payload), ev.Timestamp)
		}
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

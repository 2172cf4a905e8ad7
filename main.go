package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/fade.report/internal/api"
	"github.com/banshee-data/fade.report/internal/config"
	"github.com/banshee-data/fade.report/internal/db"
	"github.com/banshee-data/fade.report/internal/fade"
	"github.com/banshee-data/fade.report/internal/ingest"
	"github.com/banshee-data/fade.report/internal/monitor"
	"github.com/banshee-data/fade.report/internal/opacity"
	"github.com/banshee-data/fade.report/internal/serialmux"
	"github.com/banshee-data/fade.report/internal/timeutil"
	"github.com/banshee-data/fade.report/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode       = flag.Bool("dev", false, "Run in dev mode (mock dimmer console, static files from disk)")
	listen        = flag.String("listen", ":8080", "API listen address")
	monitorListen = flag.String("monitor-listen", ":8081", "Monitor listen address (empty disables the monitor server)")
	udpListen     = flag.String("udp-listen", ":9870", "UDP listen address for frame stats datagrams")
	dbFile        = flag.String("db", "fade_data.db", "SQLite database file")
	migrationsDir = flag.String("migrations", "db/migrations", "Database migrations directory")
	migrateCmd    = flag.String("migrate", "", "Run a migration command (up, down, version, force N, to N) and exit")
	dimmerPort    = flag.String("dimmer-port", "/dev/ttyUSB0", "Serial port of the dimmer console (ignored in dev mode)")
	disableDimmer = flag.Bool("disable-dimmer", false, "Run without a dimmer console")
	tuningFile    = flag.String("config", "", "Tuning config JSON; built-in defaults apply when empty")
	replayPath    = flag.String("replay", "", "Replay a recorded stats file (JSONL) instead of listening on UDP")
	replaySpeed   = flag.Float64("replay-speed", 1.0, "Replay speed multiplier (2.0 is twice as fast)")
	pcapPath      = flag.String("pcap", "", "Replay UDP stats traffic from a pcap capture instead of listening")
	plotDir       = flag.String("plot-dir", "", "Write per-source history plots here when a replay completes")
	sourceTimeout = flag.Duration("source-timeout", 0, "Idle source eviction timeout (0 uses the tuning value)")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// listenPort extracts the numeric port from a listen address like ":9870"
// for display on the monitor status page.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

func loadTuning(path string) *config.TuningConfig {
	if path == "" {
		log.Printf("no tuning file given, using built-in defaults")
		return config.EmptyTuningConfig()
	}
	tuning, err := config.LoadTuningConfig(path)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	log.Printf("loaded tuning config from %s", path)
	return tuning
}

// openDimmer selects the dimmer console backend: a real serial port, a
// mock fed from fixtures.txt in dev mode, or a no-op mux when running
// without dimmer hardware.
func openDimmer() serialmux.SerialMuxInterface {
	if *disableDimmer {
		log.Printf("dimmer console disabled")
		return serialmux.NewDisabledSerialMux()
	}
	if *devMode {
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		return serialmux.NewMockSerialMux([]byte(lines[0] + "\n"))
	}
	mux, err := serialmux.NewRealSerialMux(*dimmerPort, serialmux.PortOptions{})
	if err != nil {
		log.Fatalf("failed to open dimmer console: %v", err)
	}
	return mux
}

// plotObserver forwards frames to the tracker and records each verdict
// for post-replay plot generation. Wrapping the observer rather than
// subscribing guarantees the plotter sees every frame of the replay.
type plotObserver struct {
	tracker *fade.Tracker
	plotter *monitor.HistoryPlotter
}

func (o *plotObserver) Register(label string) fade.SourceID {
	return o.tracker.Register(label)
}

func (o *plotObserver) Observe(id fade.SourceID, sample fade.FrameSample) fade.FadeVerdict {
	verdict := o.tracker.Observe(id, sample)
	o.plotter.Record(fade.VerdictEvent{
		Source:  id,
		Label:   o.tracker.Label(id),
		Sample:  sample,
		Verdict: verdict,
	})
	return verdict
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if *migrateCmd != "" {
		if err := db.RunMigrateCommand(strings.Fields(*migrateCmd), *dbFile, *migrationsDir); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	tuning := loadTuning(*tuningFile)

	dimmer := openDimmer()
	defer dimmer.Close()

	if err := dimmer.Initialize(); err != nil {
		log.Fatalf("failed to initialize dimmer console: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	runID := uuid.NewString()
	if err := database.RecordRun(context.Background(), runID, epochSeconds(time.Now()), version.Version); err != nil {
		log.Fatalf("failed to record run: %v", err)
	}
	log.Printf("run %s started (%s)", runID, version.String())

	analysis := fade.AnalysisConfig{
		RollingWindow:            tuning.GetRollingWindow(),
		MinFadeFrames:            tuning.GetMinFadeFrames(),
		FadeThreshold:            tuning.GetFadeThreshold(),
		FadeConsistencyThreshold: tuning.GetFadeConsistencyThreshold(),
		BlackLuminanceThreshold:  tuning.GetBlackLuminanceThreshold(),
		BlackVarianceThreshold:   tuning.GetBlackVarianceThreshold(),
		RequiredBlackDuration:    tuning.GetRequiredBlackDuration(),
	}
	if err := analysis.Validate(); err != nil {
		log.Fatalf("invalid analysis config: %v", err)
	}

	tracker := fade.NewTracker(analysis)
	ring := fade.NewRingTraceSink(tuning.GetTraceRingSize())
	tracker.WithTraceSink(ring)

	driver := opacity.NewDriver(opacity.Config{
		ConfidenceThreshold:   tuning.GetOverlayConfidenceThreshold(),
		MinTransitionInterval: tuning.GetOverlayMinInterval(),
		TransitionDuration:    tuning.GetOverlayTransition(),
	}, opacity.DefaultTickInterval, timeutil.RealClock{}, dimmer)

	feed := ingest.NewPacketStats()
	console := serialmux.NewConsoleState()

	// Create a wait group for the HTTP servers, serial monitor, ingest,
	// worker, and reaper routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dimmer.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the console lines and fold them into the console state
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := dimmer.Subscribe()
		defer dimmer.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := serialmux.HandleEvent(console, payload); err != nil {
					log.Printf("error handling console event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// persist detected transitions in batches
	wg.Add(1)
	go func() {
		defer wg.Done()
		subID, events := tracker.Subscribe()
		defer tracker.Unsubscribe(subID)
		worker := db.NewTransitionWorker(database, runID, db.WorkerConfig{})
		if err := worker.Run(ctx, events); err != nil && err != context.Canceled {
			log.Printf("transition worker error: %v", err)
		}
		log.Print("transition worker terminated")
	}()

	// drive dimmer levels from fade verdicts
	wg.Add(1)
	go func() {
		defer wg.Done()
		subID, events := tracker.Subscribe()
		defer tracker.Unsubscribe(subID)
		if err := driver.Run(ctx, events); err != nil && err != context.Canceled {
			log.Printf("opacity driver error: %v", err)
		}
		log.Print("opacity driver terminated")
	}()

	// evict sources whose feeds have gone quiet
	wg.Add(1)
	go func() {
		defer wg.Done()
		timeout := *sourceTimeout
		if timeout <= 0 {
			timeout = tuning.GetIdleEviction()
		}
		interval := timeout / 4
		if interval < time.Second {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				nowSec := epochSeconds(now)
				for _, id := range tracker.EvictIdle(timeout.Seconds(), nowSec) {
					driver.Remove(id)
					if err := database.MarkSourceEvicted(ctx, string(id), nowSec); err != nil {
						log.Printf("failed to mark source %s evicted: %v", id, err)
					}
					log.Printf("evicted idle source %s", id)
				}
			case <-ctx.Done():
				log.Print("reaper routine terminated")
				return
			}
		}
	}()

	// periodic analysis counter log line
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(tuning.GetStatsInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tracker.Stats().LogStats()
			case <-ctx.Done():
				log.Print("stats routine terminated")
				return
			}
		}
	}()

	// ingest routine: live UDP by default, file or pcap replay on request
	wg.Add(1)
	go func() {
		defer wg.Done()
		switch {
		case *replayPath != "":
			runReplay(ctx, tracker)
		case *pcapPath != "":
			replayCfg := ingest.ReplayConfig{SpeedMultiplier: *replaySpeed, Stats: feed}
			if err := ingest.ReplayPCAPFile(ctx, *pcapPath, listenPort(*udpListen), tracker, replayCfg); err != nil && err != context.Canceled {
				log.Printf("pcap replay error: %v", err)
			}
			feed.LogStats()
		default:
			listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
				Address:     *udpListen,
				LogInterval: tuning.GetStatsInterval(),
				Observer:    tracker,
				Stats:       feed,
			})
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener error: %v", err)
			}
		}
		log.Print("ingest routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance from the tracker, database,
		// dimmer driver, and feed stats and mount its handlers
		mux := api.NewServer(tracker, database, driver, feed).ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		database.AttachAdminRoutes(mux)
		dimmer.AttachAdminRoutes(mux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			static, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("embedded static assets missing: %v", err)
			}
			staticHandler = http.FileServer(http.FS(static))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("API server listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// human-facing monitor server on its own port
	if *monitorListen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:       *monitorListen,
			Tracker:       tracker,
			DB:            database,
			Trace:         ring,
			Feed:          feed,
			UDPPort:       listenPort(*udpListen),
			DimmerEnabled: !*disableDimmer,
			DimmerPort:    *dimmerPort,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("monitor server error: %v", err)
			}
		}()
	}

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runReplay feeds a recorded stats file through the tracker, then renders
// history plots when -plot-dir is set. The daemon stays up afterwards so
// the API and monitor keep serving the replayed state.
func runReplay(ctx context.Context, tracker *fade.Tracker) {
	var observer ingest.Observer = tracker
	var plotter *monitor.HistoryPlotter

	if *plotDir != "" {
		plotter = monitor.NewHistoryPlotter()
		if err := plotter.Start(*plotDir); err != nil {
			log.Printf("plotting disabled: %v", err)
			plotter = nil
		} else {
			observer = &plotObserver{tracker: tracker, plotter: plotter}
		}
	}

	stats := ingest.NewPacketStats()
	replayCfg := ingest.ReplayConfig{SpeedMultiplier: *replaySpeed, Stats: stats}
	if err := ingest.ReplayFile(ctx, *replayPath, observer, replayCfg); err != nil && err != context.Canceled {
		log.Printf("replay error: %v", err)
		return
	}
	stats.LogStats()

	if plotter != nil {
		count, err := plotter.GeneratePlots()
		if err != nil {
			log.Printf("failed to generate plots: %v", err)
			return
		}
		log.Printf("wrote %d plot files to %s", count, *plotDir)
	}
}

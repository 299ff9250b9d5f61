package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/banshee-data/helm/internal/api"
	"github.com/banshee-data/helm/internal/canbus"
	"github.com/banshee-data/helm/internal/config"
	"github.com/banshee-data/helm/internal/db"
	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/feed"
	"github.com/banshee-data/helm/internal/j1939"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/security"
	"github.com/banshee-data/helm/internal/serialmux"
	"github.com/banshee-data/helm/internal/timeutil"
	"github.com/banshee-data/helm/internal/units"
	"github.com/banshee-data/helm/internal/version"
	"github.com/banshee-data/helm/web"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	devMode     = flag.Bool("dev", false, "Run in dev mode with a simulated autopilot")
	port        = flag.String("port", "", "Autopilot serial port (overrides feed_port.path; ignored in dev mode)")
	dbPath      = flag.String("db-path", "helm.db", "Path to the SQLite database")
	configPath  = flag.String("config", "", "Path to a JSON config file (default: "+config.DefaultConfigPath+" when present)")
	canIf       = flag.String("can-if", "", "CAN interface name (overrides can_interface)")
	canSource   = flag.String("can-source", "", "CAN frame source: socketcan, slcan, candump, pcap or none (overrides can_source)")
	pcapFile    = flag.String("pcap", "", "SocketCAN pcap capture to replay when --can-source=pcap")
	candumpFile = flag.String("candump", "", "candump log to replay when --can-source=candump")
	replaySpeed = flag.Float64("replay-speed", 1, "Replay speed multiplier for pcap and candump sources; 0 replays as fast as possible")
	pcapRecord  = flag.String("pcap-record", "", "Record received CAN frames to this pcap file")
	logFile     = flag.String("log-file", "", "Also write logs to this file, rotated by size")
	speedUnits  = flag.String("units", units.KN, "Default speed units: "+units.GetValidUnitsString())
)

const devFeedPeriod = 200 * time.Millisecond

func main() {
	flag.Usage = printUsage
	flag.Parse()

	switch flag.Arg(0) {
	case "":
	case "migrate":
		db.RunMigrateCommand(flag.Args()[1:], *dbPath)
		return
	case "export":
		if err := runExport(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	case "ctl":
		if err := runCtl(flag.Args()[1:], os.Stdout); err != nil {
			log.Fatal(err)
		}
		return
	case "version":
		fmt.Printf("helm %s\n", version.String())
		return
	case "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid --units %q: expected one of %s", *speedUnits, units.GetValidUnitsString())
	}
	if *logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, newLogFile(*logFile)))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg = cfg.WithCAN(*canSource, *canIf)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	metrics, err := monitoring.NewMetrics(nil)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	d, err := dial.New(cfg.DialOptions())
	if err != nil {
		log.Fatalf("Invalid dial options: %v", err)
	}
	clock := timeutil.RealClock{}
	owner := dial.NewOwner(d, clock, cfg.GetRefreshPeriod(), metrics)

	// the autopilot link sits behind a manager so the port can be swapped
	// from the API without restarting
	feedOpts := cfg.GetFeedPort()
	if *port != "" {
		feedOpts.Path = *port
	}
	var (
		initial serialmux.SerialMuxInterface
		factory api.PortFactory
		source  = "config"
	)
	if *devMode {
		sim := feed.NewSimulator(clock, dial.PlaceholderState().Heading)
		owner.OnGoalChange(sim.Observe)
		initial, _ = serialmux.NewMockSerialMux(sim.Next, devFeedPeriod, serialmux.Options{Name: "autopilot"})
		source = "dev"
	} else {
		factory = openFeedPort
		if feedOpts.Enabled() {
			if feedOpts, err = feedOpts.Normalize(); err != nil {
				log.Fatalf("Invalid feed port options: %v", err)
			}
			if initial, err = openFeedPort(feedOpts); err != nil {
				log.Fatalf("Failed to open autopilot port: %v", err)
			}
		} else {
			log.Printf("No autopilot port configured; the dial shows placeholder values")
			initial = serialmux.NewDisabledSerialMux("autopilot")
		}
	}
	if err := initial.Initialize(); err != nil {
		log.Fatalf("Failed to initialize autopilot port: %v", err)
	}
	ports := api.NewFeedPortManager("autopilot", initial, api.PortSnapshot{Options: feedOpts, Source: source}, factory)
	defer ports.Close()

	navFeed := feed.New(ports, owner)
	registerFeedMetrics(metrics, navFeed)
	dispatcher := feed.NewGoalDispatcher(ports)
	owner.OnGoalChange(dispatcher.Notify)

	recorder := db.NewNavRecorder(database, clock, cfg.GetSamplePeriod(), cfg.GetHistoryRetention(), owner.Latest)
	owner.OnGoalChange(recorder.ObserveGoal)

	summary := j1939.NewSummary()
	frameLogger := db.NewFrameLogger(database, clock, cfg.GetFlushPeriod())
	frameLogger.OnFlush(metrics.ObserveFlush)
	link := canbus.NewLink(cfg.GetCANInterface())

	frames, closeFrames, err := newFrameSource(cfg, sourceFiles{
		Pcap:    *pcapFile,
		Candump: *candumpFile,
		Speed:   *replaySpeed,
	})
	if err != nil {
		log.Fatalf("Failed to set up CAN source: %v", err)
	}
	defer closeFrames()

	sinks := []canbus.Sink{canbus.SinkFunc(summary.Add), frameLogger, metrics}
	if *pcapRecord != "" {
		w, closeRecord, err := openPcapRecord(*pcapRecord)
		if err != nil {
			log.Fatalf("Failed to open pcap recording: %v", err)
		}
		defer closeRecord()
		sinks = append(sinks, w)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s terminated with error: %v", name, err)
			}
			log.Printf("%s routine terminated", name)
		}()
	}

	run("dial owner", owner.Run)
	run("autopilot monitor", ports.Monitor)
	run("nav feed", navFeed.Run)
	run("goal dispatcher", dispatcher.Run)
	run("nav recorder", recorder.Run)
	run("frame logger", frameLogger.Run)
	if frames != nil {
		log.Printf("Reading CAN frames from %s", frames.Name())
		run("can pump", func(ctx context.Context) error {
			return canbus.Pump(ctx, frames, sinks...)
		})
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(api.Options{
			Owner:    owner,
			DB:       database,
			Summary:  summary,
			Link:     link,
			Logger:   frameLogger,
			Feed:     navFeed,
			FeedPort: ports,
			Metrics:  metrics,
			Config:   cfg,
			Clock:    clock,
			Units:    *speedUnits,
		}).ServeMux()

		ports.AttachAdminRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		// read static files from the embedded filesystem in production or from
		// the local ./web/static in dev for easier iteration without
		// restarting the server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./web/static"))
		} else {
			sub, err := fs.Sub(web.StaticFiles, "static")
			if err != nil {
				log.Fatalf("failed to load static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(sub))
		}
		mux.Handle("/static/", http.StripPrefix("/static/", staticHandler))
		mux.Handle("/{$}", http.RedirectHandler("/static/", http.StatusFound))

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.MetricsMiddleware(metrics, mux)),
		}

		go func() {
			log.Printf("helm %s listening on %s", version.String(), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if _, err := frameLogger.Stop(); err != nil {
		log.Printf("failed to stop logging session: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}

// newLogFile returns a size-rotated log file.
func newLogFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    32, // MB
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
}

// loadConfig reads path, or the default config file when path is empty and
// the file exists. With neither, every setting takes its default.
func loadConfig(path string) (*config.HelmConfig, error) {
	if path != "" {
		return config.LoadHelmConfig(path)
	}
	if _, err := os.Stat(config.DefaultConfigPath); err == nil {
		return config.LoadHelmConfig(config.DefaultConfigPath)
	}
	return config.EmptyHelmConfig(), nil
}

func openFeedPort(opts serialmux.PortOptions) (serialmux.SerialMuxInterface, error) {
	return serialmux.NewRealSerialMux(opts.Path, opts, serialmux.Options{Name: "autopilot"})
}

func registerFeedMetrics(m *monitoring.Metrics, f *feed.Feed) {
	counters := []struct {
		name, help string
		fn         func(feed.Stats) uint64
	}{
		{"helm_feed_lines_total", "Lines read from the autopilot link.", func(s feed.Stats) uint64 { return s.Lines }},
		{"helm_feed_decode_errors_total", "Autopilot lines that failed to decode.", func(s feed.Stats) uint64 { return s.DecodeErrors }},
		{"helm_feed_ignored_total", "Autopilot lines that carried no nav data.", func(s feed.Stats) uint64 { return s.Ignored }},
	}
	for _, c := range counters {
		fn := c.fn
		if err := m.CounterFunc(c.name, c.help, func() float64 { return float64(fn(f.Stats())) }); err != nil {
			log.Printf("failed to register %s: %v", c.name, err)
		}
	}
}

// openPcapRecord creates path and returns a frame sink writing to it.
func openPcapRecord(path string) (*canbus.PcapWriter, func(), error) {
	if err := security.ValidateExportPath(path); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := canbus.NewPcapWriter(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, func() {
		if err := w.Err(); err != nil {
			log.Printf("pcap recording %s: %v", path, err)
		}
		if err := f.Close(); err != nil {
			log.Printf("failed to close %s: %v", path, err)
		}
	}, nil
}

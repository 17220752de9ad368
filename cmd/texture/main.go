package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/texture.report/internal/config"
	"github.com/banshee-data/texture.report/internal/cycle"
	"github.com/banshee-data/texture.report/internal/db"
	"github.com/banshee-data/texture.report/internal/monitor"
	"github.com/banshee-data/texture.report/internal/monitoring"
	"github.com/banshee-data/texture.report/internal/serialmux"
	"github.com/banshee-data/texture.report/internal/timeutil"
	"github.com/banshee-data/texture.report/internal/version"
)

var (
	configPath  = flag.String("config", config.DefaultConfigPath, "Properties file holding palm_skin_mapping")
	modelPath   = flag.String("model", "", "Model artifact (overrides model_path from the config)")
	interval    = flag.Duration("interval", 0, "Cycle interval (overrides period_ms; default 1s)")
	sourceKind  = flag.String("source", "static", "Sample source: static, fixture, serial, udp or pcap")
	fixturePath = flag.String("fixture", "fixtures.txt", "Sample file replayed by -source=fixture")
	port        = flag.String("port", "/dev/ttyACM0", "Serial port for -source=serial")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Baud rate for -source=serial")
	udpListen   = flag.String("udp-listen", ":2370", "UDP listen address for -source=udp")
	pcapPath    = flag.String("pcap", "", "Capture replayed by -source=pcap")
	pcapPort    = flag.Int("pcap-port", 2370, "UDP destination port of sample frames in the capture")
	pcapPaced   = flag.Bool("pcap-realtime", true, "Pace the pcap replay by capture timestamps")
	dbPath      = flag.String("db", "", "sqlite result store (disabled when empty)")
	listen      = flag.String("listen", "", "HTTP status and debug listen address (disabled when empty)")
	plotPath    = flag.String("plot", "", "Write a PNG of the score history here on exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
	debug       = flag.Bool("debug", false, "Enable the trace log stream")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var trace io.Writer
	if *debug {
		trace = os.Stderr
	}
	monitoring.SetLogWriters(os.Stderr, os.Stderr, trace)
	monitoring.Opsf("%s", version.String())

	eng, err := loadEngine(*configPath, *modelPath)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	monitoring.Opsf("loaded %d mapping records from %s", eng.mapping.Len(), *configPath)
	monitoring.Opsf("loaded model %s", eng.model.Summary())

	src, err := openSource(sourceOptions{
		Kind:         *sourceKind,
		FixturePath:  *fixturePath,
		SerialPort:   *port,
		Baud:         *baud,
		UDPListen:    *udpListen,
		PCAPPath:     *pcapPath,
		PCAPPort:     *pcapPort,
		PCAPRealtime: *pcapPaced,
	}, eng.mapping.Layout().Taxels)
	if err != nil {
		log.Fatalf("failed to open %s source: %v", *sourceKind, err)
	}
	if src.serial != nil {
		defer src.serial.Close()
	}

	runID := uuid.NewString()
	latest := &monitor.Latest{}
	observers := []cycle.Observer{cycle.NewReporter(os.Stderr, os.Stdout), latest}

	var store *db.DB
	if *dbPath != "" {
		store, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open result store: %v", err)
		}
		defer store.Close()
		if err := store.RecordRun(db.Run{
			RunID:     runID,
			StartedAt: time.Now(),
			ModelName: eng.model.Name(),
			Source:    *sourceKind,
			Version:   version.Version,
		}); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
		observers = append(observers, store)
	}

	var plotter *monitor.ScorePlotter
	if *plotPath != "" {
		plotter = monitor.NewScorePlotter(fmt.Sprintf("texture scores (run %s)", runID), 0)
		observers = append(observers, plotter)
	}

	runner := &cycle.Runner{
		Source:    src,
		Mapping:   eng.mapping,
		Predictor: eng.model,
		Clock:     timeutil.RealClock{},
		Interval:  cycleInterval(*interval, eng.settings),
		RunID:     runID,
		Observers: observers,
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, t := range src.tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			if err := t.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Opsf("%s stopped: %v", t.name, err)
			}
			monitoring.Diagf("%s routine terminated", t.name)
		}(t)
	}

	if *listen != "" {
		cfg := monitor.WebServerConfig{Address: *listen, Latest: latest, RunID: runID}
		if store != nil {
			cfg.Store = store
		}
		ws := monitor.NewWebServer(cfg)
		if store != nil {
			if err := store.AttachAdminRoutes(ws.Mux()); err != nil {
				log.Fatalf("failed to attach db admin routes: %v", err)
			}
		}
		if src.serial != nil {
			src.serial.AttachAdminRoutes(ws.Mux())
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				monitoring.Opsf("HTTP server: %v", err)
				stop()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Opsf("cycle stopped: %v", err)
		}
	}()

	wg.Wait()

	if plotter != nil && plotter.Len() > 0 {
		if err := plotter.Save(*plotPath); err != nil {
			monitoring.Opsf("failed to write score plot: %v", err)
		} else {
			monitoring.Opsf("wrote score plot to %s", *plotPath)
		}
	}
	monitoring.Opsf("graceful shutdown complete")
}

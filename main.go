package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mitchross/intercept/internal/api"
	"github.com/mitchross/intercept/internal/btlocate"
	"github.com/mitchross/intercept/internal/config"
	"github.com/mitchross/intercept/internal/db"
	"github.com/mitchross/intercept/internal/gpsfix"
	"github.com/mitchross/intercept/internal/scan"
	"github.com/mitchross/intercept/internal/units"
	"github.com/mitchross/intercept/internal/version"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode      = flag.Bool("dev", false, "Run in dev mode: replay fixture detections instead of reading a scanner")
	listen       = flag.String("listen", ":8080", "Listen address")
	dbFile       = flag.String("db", "intercept.db", "Path to the sqlite database")
	configFile   = flag.String("config", "", "Path to a JSON tuning config (optional)")
	scanInput    = flag.String("scan-input", "/dev/stdin", "Scanner detection stream (newline-delimited JSON)")
	fixtureFile  = flag.String("fixtures", "fixtures.jsonl", "Fixture file replayed in dev mode")
	gpsPort      = flag.String("gps-port", "", "Serial port of an NMEA GPS dongle (optional)")
	pollInterval = flag.Duration("poll-interval", scan.DefaultPollInterval, "Backend snapshot poll interval")
	speedUnits   = flag.String("units", units.MPS, "Display units for speeds: mps, mph, kmph, kph")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid units %q: must be one of %s", *speedUnits, units.GetValidUnitsString())
	}
	log.Printf("intercept %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	params := btlocate.DefaultParams()
	if *configFile != "" {
		cfg, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		params = cfg.Apply(params)
	}

	var backend scan.Backend
	if *devMode {
		data, err := os.ReadFile(*fixtureFile)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		backend = scan.NewMockMux(data, 500*time.Millisecond)
	} else {
		source, err := os.Open(*scanInput)
		if err != nil {
			log.Fatalf("failed to open scanner input: %v", err)
		}
		backend = scan.NewMux(source)
	}
	defer backend.Close()

	store, err := db.New(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	session := btlocate.NewSession(nil, params)

	manualGPS := &gpsfix.ManualProvider{}
	var gpsReader *gpsfix.Reader
	gpsChain := gpsfix.Chain{manualGPS}
	if *gpsPort != "" {
		gpsReader = gpsfix.NewReader(*gpsPort)
		gpsChain = gpsfix.Chain{gpsReader, manualGPS}
	}

	apiServer := api.NewServer(session, store, backend, gpsReader, manualGPS, *speedUnits)
	apiServer.RegisterAcceptHook()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// read the scanner stream and fan detections out to subscribers
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := backend.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scanner backend stopped: %v", err)
		}
		log.Print("backend routine terminated")
	}()

	// drive the session from the backend's push and poll paths
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump := scan.NewPump(backend, session, gpsChain, nil, *pollInterval)
		if err := pump.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pump stopped: %v", err)
		}
		log.Print("pump routine terminated")
	}()

	if gpsReader != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gpsReader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("gps reader stopped: %v", err)
			}
			log.Print("gps routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach admin routes: %v", err)
		}

		apiMux := apiServer.ServeMux()
		mux.Handle("/api/", apiMux)

		// read static files from the embedded filesystem in production or from
		// the local ./static in dev for easier iteration without restarting the
		// server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			staticFS, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to mount embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(staticFS))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

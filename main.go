package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"vidbridge/api"
	"vidbridge/config"
	"vidbridge/handlers"
	"vidbridge/internal/metrics"
	"vidbridge/internal/proxy"
	"vidbridge/services/browser"
	"vidbridge/services/catalog"
	"vidbridge/services/extraction"
	"vidbridge/services/subtitles"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("vidbridge starting...")

	configPath := os.Getenv("VIDBRIDGE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// File logging with rotation, mirrored to stdout.
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	metricsReg := prometheus.NewRegistry()
	metrics.Register(metricsReg)

	// Browser pool (lazy launch; processes start on first escalation).
	var driver browser.Driver
	if settings.Browser.Enabled {
		jars := browser.NewJarStore(afero.NewOsFs(), settings.Browser.CookieDir)
		driver = browser.NewPool(settings.Browser, jars)
		log.Printf("[main] browser pool ready: %d buckets x %d tabs", settings.Browser.PoolSize, settings.Browser.TabsPerProcess)
	} else {
		log.Printf("[main] browser strategy disabled by config")
	}

	// Subtitle + catalog services.
	subtitleSvc := subtitles.NewService(settings.Subtitles)
	catalogClient := catalog.NewClient(settings.Catalog, nil)

	var resolver extraction.CatalogResolver
	if catalogClient.Configured() {
		resolver = catalogClient
	} else {
		log.Printf("[main] no TMDB key configured, extraction results will carry no subtitles")
	}

	// Extraction engine.
	extractSvc := extraction.NewService(
		settings.Extraction,
		settings.Browser,
		driver,
		resolver,
		subtitleSvc,
		settings.Subtitles.DefaultLanguages,
	)

	// Stream proxy.
	policy := proxy.NewPolicy(settings.Proxy.Sources, settings.Extraction.UserAgent)
	fetcher := proxy.NewFetcher(policy)

	// HTTP surface.
	extractHandler := handlers.NewExtractHandler(extractSvc)
	proxyHandler := handlers.NewStreamProxyHandler(fetcher)
	subtitlesHandler := handlers.NewSubtitlesHandler(subtitleSvc, nil)
	healthHandler := handlers.NewHealthHandler(driver, extractSvc.Registry())

	r := mux.NewRouter()
	api.Register(r, extractHandler, proxyHandler, subtitlesHandler, healthHandler, metricsReg)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // progress streams stay open for the whole job
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if driver != nil {
		driver.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}

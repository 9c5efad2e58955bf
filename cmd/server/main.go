package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/woozymasta/geoguard/internal/config"
	"github.com/woozymasta/geoguard/internal/fetcher"
	"github.com/woozymasta/geoguard/internal/logger"
	"github.com/woozymasta/geoguard/internal/metrics"
	"github.com/woozymasta/geoguard/internal/security"
	"github.com/woozymasta/geoguard/internal/server"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string `short:"c" long:"config"      env:"CONFIG_FILE"         description:"Path to configuration file"       default:"config.yaml"`
	Addr        string `short:"a" long:"addr"        env:"LISTEN_ADDRESS"      description:"Address to listen on"             default:"0.0.0.0"`
	Port        int    `short:"p" long:"port"        env:"LISTEN_PORT"         description:"Port to listen on"                default:"8080"`
	Preload     int    `short:"P" long:"preload"     env:"PRELOAD_CONCURRENCY" description:"Concurrent preloads at startup"   default:"4"`
	Development bool   `short:"d" long:"development" env:"DEVELOPMENT"         description:"Allow http://localhost sources"`
}

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	engine, err := security.NewEngine(cfg.Policy())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid security policy")
	}
	if opts.Development || cfg.Development {
		engine.SetDevelopmentMode(true)
		log.Warn().Msg("Development mode: http://localhost sources are allowed")
	}

	registry, err := cfg.Registry()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid integrity configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	f, err := fetcher.New(fetcher.Config{
		Engine:        engine,
		Registry:      registry,
		Metrics:       metrics.New(reg),
		CacheCapacity: cfg.Cache.Capacity,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetcher")
	}
	defer func() { _ = f.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvCtx := server.NewServerContext(cfg, f, reg)
	srvCtx.Preload(ctx, opts.Preload)

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           server.RequestLogger(log.Logger)(srvCtx.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info().
		Str("addr", listenAddr).
		Int("geographies_loaded", len(srvCtx.Geographies)).
		Int("cache_capacity", cfg.Cache.Capacity).
		Str("sri_mode", string(registry.Mode())).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	log.Info().Msg("Server stopped")
}

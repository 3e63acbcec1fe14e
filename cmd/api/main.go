package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/julienschmidt/httprouter"

	"buspulse.openmobility.org/internal/app"
	"buspulse.openmobility.org/internal/appconf"
	"buspulse.openmobility.org/internal/catalog"
	"buspulse.openmobility.org/internal/consensus"
	"buspulse.openmobility.org/internal/events"
	"buspulse.openmobility.org/internal/logging"
	"buspulse.openmobility.org/internal/metrics"
	"buspulse.openmobility.org/internal/restapi"
)

func main() {
	// Load .env into the environment (ignore if missing); flags still win.
	_ = godotenv.Load()

	var cfg appconf.Config
	var envFlag, apiKeysFlag string

	flag.IntVar(&cfg.Port, "port", 4000, "API server port")
	flag.StringVar(&envFlag, "env", getenvDefault("ENV", "development"), "Environment (development|test|production)")
	flag.StringVar(&apiKeysFlag, "api-keys", getenvDefault("API_KEYS", "test"), "Comma Separated API Keys (test, etc)")
	flag.StringVar(&cfg.PostgresDSN, "pg-dsn", os.Getenv("DATABASE_URL"), "Postgres DSN for the reference tables")
	flag.StringVar(&cfg.GTFSPath, "gtfs-path", os.Getenv("GTFS_PATH"), "Path to a static GTFS zip for the route catalog")
	flag.StringVar(&cfg.NATSURL, "nats-url", os.Getenv("NATS_URL"), "NATS server for live snapshot publishing (empty disables)")
	flag.Parse()

	cfg.Env = appconf.EnvFlagToEnvironment(envFlag)
	if apiKeysFlag != "" {
		cfg.ApiKeys = strings.Split(apiKeysFlag, ",")
		for i := range cfg.ApiKeys {
			cfg.ApiKeys[i] = strings.TrimSpace(cfg.ApiKeys[i])
		}
	}

	var logger *slog.Logger
	if cfg.Env == appconf.Production {
		logger = logging.NewStructuredLogger(os.Stdout, slog.LevelInfo)
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	routeCatalog, err := buildCatalog(cfg)
	if err != nil {
		logger.Error("failed to load route catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("route catalog loaded", "buses", routeCatalog.BusCount())

	collector := metrics.NewCollector()

	engineOpts := []consensus.Option{consensus.WithMetrics(collector)}
	var publisher *events.NATSPublisher
	if cfg.NATSURL != "" {
		publisher, err = events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		engineOpts = append(engineOpts, consensus.WithPublisher(publisher))
	}

	engine := consensus.NewEngine(consensus.DefaultConfig(), routeCatalog, logger, engineOpts...)
	defer engine.Shutdown()

	application := &app.Application{
		Config:    cfg,
		Logger:    logger,
		Engine:    engine,
		Catalog:   routeCatalog,
		Collector: collector,
	}

	router := httprouter.New()
	api := restapi.NewRestAPI(application)
	api.SetRoutes(router)
	router.Handler(http.MethodGet, "/metrics", collector.Handler())
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
}

// buildCatalog picks the reference data source: Postgres when a DSN is set,
// then a GTFS feed, else an empty in-memory catalog (useful for smoke tests).
func buildCatalog(cfg appconf.Config) (*catalog.Memory, error) {
	switch {
	case cfg.PostgresDSN != "":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return catalog.LoadPostgres(ctx, cfg.PostgresDSN)
	case cfg.GTFSPath != "":
		return catalog.LoadGTFSFile(cfg.GTFSPath, time.Now())
	default:
		return catalog.NewMemory(), nil
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

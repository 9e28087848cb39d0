package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"retinagate/internal/analyzer"
	"retinagate/internal/blob"
	"retinagate/internal/bus"
	"retinagate/internal/platform/config"
	"retinagate/internal/platform/httpserver"
	"retinagate/internal/platform/instance"
	"retinagate/internal/platform/logger"
	platformredis "retinagate/internal/platform/redis"
	retinaservice "retinagate/internal/retina/service"
	retinastore "retinagate/internal/retina/store"
	"retinagate/internal/validation/correlate"
	"retinagate/internal/validation/dispatch"
	"retinagate/internal/validation/handler"
	"retinagate/internal/validation/inbound"
	"retinagate/internal/validation/metrics"
	validationservice "retinagate/internal/validation/service"
)

// main wires dependencies, starts the HTTP server and the queue consumers,
// and shuts everything down on SIGINT/SIGTERM. Business logic lives in the
// internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst := instance.New(cfg.Port)
	log.Info("starting retinagate", "instance_id", inst.ID, "addr", cfg.Addr)

	// Broker. A missing REDIS_URL disables messaging: commands report
	// dispatch failures instead of the process refusing to start.
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient == nil {
		log.Warn("REDIS_URL not set, messaging disabled")
	} else {
		defer redisClient.Close()
	}

	// Stores.
	blobs, err := newBlobStore(cfg, log)
	if err != nil {
		return err
	}
	images, closeDB, err := newRetinaStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	// Queue bridge.
	m := metrics.New()
	var publisher dispatch.Publisher
	if redisClient != nil {
		publisher = bus.NewPublisher(redisClient.Client, log)
	}
	dispatcher := dispatch.New(publisher, dispatch.Queues{
		ValidationCommands:  cfg.Queues.ValidationCommands,
		ValidationResponses: cfg.Queues.ValidationResponses,
		IndexingCommands:    cfg.Queues.IndexingCommands,
	}, inst, log)

	correlator := correlate.New(cfg.WaitTimeout, log)

	// Synchronous fallback: when the queue cannot carry a command (broker
	// down or messaging unconfigured), validation goes straight to the
	// analyzer's HTTP endpoint instead of failing outright.
	var inline validationservice.Analyzer
	if cfg.AnalyzerURL != "" {
		inline = analyzer.New(cfg.AnalyzerURL, cfg.WaitTimeout)
		log.Info("analyzer fallback enabled", "url", cfg.AnalyzerURL)
	}

	retinas := retinaservice.New(blobs, images, dispatcher, log)
	validator := validationservice.New(blobs, images, dispatcher, correlator, inline, cfg.WaitTimeout, log, m)

	validationProcessor := inbound.NewProcessor(cfg.Queues.ValidationResponses,
		validationservice.NewResponseHandler(correlator, log), log, m)
	indexingProcessor := inbound.NewProcessor(cfg.Queues.IndexingResponses,
		retinaservice.NewIndexingResponseHandler(retinas, log), log, m)

	// HTTP.
	h := handler.New(validator, retinas, log)
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router, cfg.WaitTimeout)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error { return correlator.Run(gctx) })

	if redisClient != nil {
		validationConsumer := bus.NewConsumer(redisClient.Client, bus.ConsumerConfig{
			Stream:       cfg.Queues.ValidationResponses,
			Group:        cfg.ConsumerGroup,
			Name:         inst.ID,
			Visibility:   cfg.VisibilityTimeout,
			RestartDelay: cfg.RestartDelay,
		}, log)
		indexingConsumer := bus.NewConsumer(redisClient.Client, bus.ConsumerConfig{
			Stream:       cfg.Queues.IndexingResponses,
			Group:        cfg.ConsumerGroup,
			Name:         inst.ID,
			Visibility:   cfg.VisibilityTimeout,
			RestartDelay: cfg.RestartDelay,
		}, log)

		g.Go(func() error {
			return validationConsumer.Run(gctx, bus.HandlerFunc(func(ctx context.Context, d *bus.Delivery) {
				validationProcessor.Process(ctx, d)
			}))
		})
		g.Go(func() error {
			return indexingConsumer.Run(gctx, bus.HandlerFunc(func(ctx context.Context, d *bus.Delivery) {
				indexingProcessor.Process(ctx, d)
			}))
		})
	}

	return g.Wait()
}

func newBlobStore(cfg config.Config, log *slog.Logger) (blob.Store, error) {
	if cfg.BlobDir == "" {
		log.Warn("BLOB_DIR not set, using in-memory blob store")
		return blob.NewMemoryStore(), nil
	}
	return blob.NewFilesystemStore(cfg.BlobDir)
}

func newRetinaStore(ctx context.Context, cfg config.Config, log *slog.Logger) (retinastore.Store, func(), error) {
	if cfg.PostgresDSN == "" {
		log.Warn("POSTGRES_DSN not set, using in-memory retina store")
		return retinastore.NewMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	st := retinastore.NewPostgresStore(db)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return st, func() { db.Close() }, nil
}

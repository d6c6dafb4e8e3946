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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dongwandou/CoreNLP/internal/analytics"
	"github.com/dongwandou/CoreNLP/internal/analytics/store"
	"github.com/dongwandou/CoreNLP/internal/capability"
	"github.com/dongwandou/CoreNLP/internal/engine"
	"github.com/dongwandou/CoreNLP/internal/executor"
	"github.com/dongwandou/CoreNLP/internal/outputcache"
	"github.com/dongwandou/CoreNLP/internal/pipeline"
	"github.com/dongwandou/CoreNLP/internal/props"
	"github.com/dongwandou/CoreNLP/internal/server"
	"github.com/dongwandou/CoreNLP/pkg/config"
	"github.com/dongwandou/CoreNLP/pkg/health"
	"github.com/dongwandou/CoreNLP/pkg/kafka"
	"github.com/dongwandou/CoreNLP/pkg/logger"
	"github.com/dongwandou/CoreNLP/pkg/metrics"
	"github.com/dongwandou/CoreNLP/pkg/postgres"
	"github.com/dongwandou/CoreNLP/pkg/ratelimit"
	pkgredis "github.com/dongwandou/CoreNLP/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	port := flag.Int("port", 0, "override server.port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting annotation server",
		"port", cfg.Server.Port,
		"workers", cfg.Executor.Workers,
		"deadline", cfg.Executor.Deadline,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer shutdownMetrics(context.Background())
	}

	registry := capability.Default()
	defaults := props.FromMap(cfg.Pipeline.Defaults)
	if _, err := registry.Expand(defaults.Get(props.KeyAnnotators)); err != nil {
		slog.Error("invalid default annotators", "annotators", defaults.Get(props.KeyAnnotators), "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker(2 * time.Second)

	var outputCache *outputcache.Cache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, output caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			outputCache = outputcache.New(redisClient, cfg.Redis.CacheTTL, m)
			slog.Info("output cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if redisClient != nil {
		checker.Register("redis", health.Pinger(redisClient.Ping))
	} else {
		checker.Register("redis", health.Pinger(nil))
	}

	var publisher analytics.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		publisher = producer
		slog.Info("request events publishing enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	aggregator := analytics.NewAggregator()
	var history analytics.History
	snapshotsDone := make(chan struct{})
	if cfg.Postgres.Enabled {
		db, snapshots, err := openSnapshots(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, stats history disabled", "error", err)
			checker.Register("postgres", health.Pinger(nil))
			close(snapshotsDone)
		} else {
			defer db.Close()
			history = snapshots
			checker.Register("postgres", health.Pinger(db.Ping))
			if prev, err := snapshots.LatestSnapshot(ctx); err != nil {
				slog.Warn("could not restore stats", "error", err)
			} else if prev != nil {
				aggregator.Restore(*prev)
				slog.Info("stats restored from snapshot", "total_requests", prev.TotalRequests)
			}
			go func() {
				defer close(snapshotsDone)
				snapshots.Run(ctx, aggregator, cfg.Postgres.SnapshotInterval)
			}()
		}
	} else {
		close(snapshotsDone)
	}

	collector := analytics.NewCollector(aggregator, publisher, analytics.CollectorConfig{})
	// The collector and executor outlive the signal so in-flight requests
	// drain; both are torn down explicitly after the HTTP server stops.
	collector.Start(context.Background())

	exec := executor.New(executor.Config{
		Workers:   cfg.Executor.Workers,
		QueueSize: cfg.Executor.QueueSize,
		Deadline:  cfg.Executor.Deadline,
	}, m)
	if err := exec.Start(context.Background()); err != nil {
		slog.Error("failed to start executor", "error", err)
		os.Exit(1)
	}
	checker.Register("executor", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d/%d workers busy", exec.Busy(), cfg.Executor.Workers),
		}
	})

	shutdownKey, err := server.NewShutdownKey(cfg.Pipeline.ShutdownKeyFile)
	if err != nil {
		slog.Error("failed to write shutdown key", "error", err)
		os.Exit(1)
	}
	defer os.Remove(cfg.Pipeline.ShutdownKeyFile)
	slog.Info("shutdown key written", "path", cfg.Pipeline.ShutdownKeyFile)

	var limiter *ratelimit.Limiter
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter = ratelimit.New(rl.Requests, rl.Window)
		go limiter.Run(ctx, rl.Window)
		slog.Info("rate limiting enabled", "requests", rl.Requests, "window", rl.Window)
	}

	srv, err := server.New(server.Options{
		Defaults:    defaults,
		Registry:    registry,
		Pipelines:   pipeline.NewCache(engine.New(registry), m),
		Executor:    exec,
		Output:      outputCache,
		Collector:   collector,
		Stats:       analytics.NewHandler(aggregator, history),
		Health:      checker,
		Metrics:     m,
		Limiter:     limiter,
		ShutdownKey: shutdownKey,
		StaticDir:   cfg.Server.StaticDir,
		Exit: func(code int) {
			os.Remove(cfg.Pipeline.ShutdownKeyFile)
			os.Exit(code)
		},
	})
	if err != nil {
		slog.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("annotation server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		stop()
	}
	<-drained

	if err := exec.Stop(shutdownTimeout); err != nil {
		slog.Warn("executor did not drain", "error", err)
	}
	collector.Close()
	<-snapshotsDone
	slog.Info("annotation server stopped")
}

func openSnapshots(ctx context.Context, cfg config.PostgresConfig) (*postgres.Client, *store.Store, error) {
	db, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	snapshots, err := store.New(ctx, db, 0)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, snapshots, nil
}

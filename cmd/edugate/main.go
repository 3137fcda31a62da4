package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/edugatenow/edugate/pkg/api"
	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/auth"
	"github.com/edugatenow/edugate/pkg/clock"
	"github.com/edugatenow/edugate/pkg/config"
	"github.com/edugatenow/edugate/pkg/crm"
	"github.com/edugatenow/edugate/pkg/csrf"
	"github.com/edugatenow/edugate/pkg/httputil"
	"github.com/edugatenow/edugate/pkg/middleware"
	"github.com/edugatenow/edugate/pkg/models"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/rbac"
	"github.com/edugatenow/edugate/pkg/statestore"
	"github.com/edugatenow/edugate/pkg/storage"
	"github.com/edugatenow/edugate/pkg/storage/memory"
	"github.com/edugatenow/edugate/pkg/storage/mongo"
	"github.com/edugatenow/edugate/pkg/storage/postgres"
	redisstore "github.com/edugatenow/edugate/pkg/storage/redis"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", cfg.Observability.OTelServiceName)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("EduGate server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion)

	var cleanups []namedCleanup
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i].fn(context.Background()); err != nil {
				logger.WithError(err).WithField("step", cleanups[i].name).Warn("cleanup failed")
			}
		}
	}()

	telemetry, err := observability.InitOTel(ctx, observability.OTelConfig{
		Endpoint:       cfg.Observability.OTelEndpoint,
		Insecure:       cfg.Observability.OTelInsecure,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Environment:    string(cfg.Environment),
		InstanceID:     cfg.Observability.InstanceID,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	// Audit log and the authoritative clock live in Postgres when configured
	var (
		clk         clock.Clock = clock.System()
		synced      *clock.SyncedClock
		auditSink   audit.Logger
		auditStore  audit.Store
		connections *postgres.ConnectionManager
	)
	if cfg.Storage.PostgresURL != "" {
		connections, err = postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg.Storage, cfg.Audit.PostgresReplicaURLs))
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, namedCleanup{"postgres", func(context.Context) error { return connections.Close() }})
		health.AddCheck("postgres", true, connections.HealthCheck)

		dbLogger, err := audit.NewDBLogger(ctx, connections)
		if err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
		auditSink, auditStore = dbLogger, dbLogger

		synced = clock.NewSyncedClock(clock.NewSQLTimeSource(connections.Primary()))
		if err := synced.Sync(ctx); err != nil {
			logger.WithError(err).Warn("initial clock sync failed, using local time")
		}
		clk = synced
	} else {
		logger.Warn("No Postgres configured, audit entries are kept in memory")
		memLog := audit.NewMemoryLogger()
		auditSink, auditStore = memLog, memLog
	}

	docs, err := openDocumentStore(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, namedCleanup{"documents", docs.Close})

	// Rate limit windows and CSRF tokens are shared through Redis when configured
	var state interface {
		statestore.Store
		statestore.WindowStore
	}
	if cfg.Storage.RedisURL != "" {
		client, err := redisstore.NewClient(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		cleanups = append(cleanups, namedCleanup{"redis", func(context.Context) error { return client.Close() }})
		health.AddCheck("redis", false, observability.RedisCheck(client))
		state = statestore.NewRedisStore(client, "edugate:")
	} else {
		state = statestore.NewMemoryStore(clk)
	}

	sessions, err := auth.NewSessionManager(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, clk)
	if err != nil {
		return fmt.Errorf("init sessions: %w", err)
	}
	versions := auth.NewVersionCache(cfg.Auth.VersionCacheMax, cfg.Auth.VersionCacheTTL)
	recorder := audit.NewRecorder(auditSink, clk, logger, metrics)
	cleanups = append(cleanups, namedCleanup{"audit", func(context.Context) error { return recorder.Close() }})

	matrix := rbac.DefaultMatrix()
	services := crm.New(crm.Deps{
		Store:    docs,
		Matrix:   matrix,
		Clock:    clk,
		Recorder: recorder,
		Versions: versions,
		Logger:   logger,
	})

	policy := cfg.Policy
	csrfManager := csrf.NewManager(state, clk, csrf.Config{
		Strict:           policy.CSRF.StrictFor(cfg.Environment),
		TTL:              policy.CSRF.TokenTTL,
		RotateOnValidate: policy.CSRF.RotateOnValidate,
	})
	limiter := middleware.NewRateLimiter(state, clk, logger, metrics)
	proxies, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	defaults := api.DefaultRateLimits()

	server := api.NewServer(api.Deps{
		Services:      services,
		Authenticator: auth.NewAuthenticator(docs, sessions, versions, clk),
		Matrix:        matrix,
		CSRF:          csrfManager,
		CSRFConfig: middleware.CSRFConfig{
			AutoIssue: policy.CSRF.AutoIssue,
			Secure:    cfg.Environment.IsProduction(),
			SameSite:  middleware.ParseSameSite(policy.CSRF.SameSite),
		},
		Limiter: limiter,
		RateLimits: api.RateLimits{
			API:      defaults.API.ApplyPolicy(policy.RateLimits.API, policy.RoleMultipliers),
			Auth:     defaults.Auth.ApplyPolicy(policy.RateLimits.Auth, policy.RoleMultipliers),
			Mutation: defaults.Mutation.ApplyPolicy(policy.RateLimits.Mutation, policy.RoleMultipliers),
		},
		AuditStore:    auditStore,
		Recorder:      recorder,
		Logger:        logger,
		Metrics:       metrics,
		SecureCookies: cfg.Environment.IsProduction(),
		ServiceName:   cfg.Observability.OTelServiceName,

		TrustedProxies: proxies,
	})

	sweeper := statestore.NewSweeper(logger, metrics)
	if err := sweeper.AddSweep(statestore.RateLimitSweepSchedule, "ratelimit", state.Sweep); err != nil {
		return err
	}
	if err := sweeper.AddSweep(statestore.CSRFSweepSchedule, "csrf", csrfManager.Sweep); err != nil {
		return err
	}
	if synced != nil {
		err := sweeper.AddJob(statestore.ClockSyncSchedule, "clock-sync", func(ctx context.Context) error {
			if err := synced.Sync(ctx); err != nil {
				return err
			}
			offset, _ := synced.Offset()
			metrics.ClockOffset(offset)
			return nil
		})
		if err != nil {
			return err
		}
	}
	sweeper.Start()

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", health.Liveness)
	healthMux.HandleFunc("/health/ready", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.MetricsHandler(registry))
	}
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("health-server", healthServer.Shutdown)
	shutdown.Register("sweeper", sweeper.Stop)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return telemetry.Shutdown(ctx, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithFields(map[string]interface{}{
			"addr":        httpServer.Addr,
			"environment": string(cfg.Environment),
		}).Info("EduGate API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.Wait(gctx)
	})

	return g.Wait()
}

type namedCleanup struct {
	name string
	fn   func(context.Context) error
}

// openDocumentStore connects the configured CRM document store
func openDocumentStore(ctx context.Context, cfg *config.Config, logger *observability.Logger, health *observability.HealthChecker) (storage.DocumentStore, error) {
	switch cfg.Storage.Type {
	case "mongo":
		store, err := mongo.NewStore(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		health.AddCheck("mongo", true, store.HealthCheck)
		logger.WithField("database", cfg.Storage.MongoDatabase).Info("Using MongoDB document store")
		return store, nil
	default:
		logger.Warn("Using in-memory document store, data is lost on restart")
		return memory.New(memory.WithUniqueIndex(models.CollectionUsers, "email")), nil
	}
}

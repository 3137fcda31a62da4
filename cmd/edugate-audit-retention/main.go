package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/edugatenow/edugate/pkg/audit"
	"github.com/edugatenow/edugate/pkg/config"
	"github.com/edugatenow/edugate/pkg/observability"
	"github.com/edugatenow/edugate/pkg/storage/postgres"
	"github.com/edugatenow/edugate/pkg/storage/s3"
)

var (
	runOnce  = flag.Bool("once", false, "Run retention once and exit")
	days     = flag.Int("days", 0, "Override EDUGATE_AUDIT_RETENTION_DAYS")
	schedule = flag.String("schedule", "", "Override EDUGATE_AUDIT_RETENTION_SCHEDULE")
	logLevel = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

// Audit retention archives expired audit entries to S3 (or a local directory)
// and then deletes them from Postgres
func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Storage.PostgresURL == "" {
		logger.Fatal("EDUGATE_POSTGRES_URL is required")
	}
	if *days > 0 {
		cfg.Audit.RetentionDays = *days
	}
	if *schedule != "" {
		cfg.Audit.RetentionSchedule = *schedule
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, err := postgres.NewConnectionManager(ctx, postgres.ConfigFromStorage(cfg.Storage, ""))
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer conns.Close()

	archiver, err := newArchiver(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize archiver: %v", err)
	}

	jobLogger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).WithField("job", "audit-retention")
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	retention := audit.NewRetention(conns.Primary(), archiver, nil, jobLogger, metrics)

	if *runOnce {
		if err := runRetention(ctx, retention, cfg.Audit.RetentionDays, logger); err != nil {
			logger.Fatalf("Retention failed: %v", err)
		}
		return
	}

	c := cron.New()
	_, err = c.AddFunc(cfg.Audit.RetentionSchedule, func() {
		if err := runRetention(ctx, retention, cfg.Audit.RetentionDays, logger); err != nil {
			logger.Errorf("Retention failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule retention: %v", err)
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule":       cfg.Audit.RetentionSchedule,
		"retention_days": cfg.Audit.RetentionDays,
	}).Info("Audit retention scheduler started")

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	<-c.Stop().Done()
	logger.Info("Audit retention stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// newArchiver prefers S3 when a bucket is configured
func newArchiver(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (audit.Archiver, error) {
	if cfg.Storage.S3Bucket != "" {
		client, err := s3.NewClient(ctx, cfg.Storage)
		if err != nil {
			return nil, err
		}
		logger.WithField("bucket", client.Bucket()).Info("Archiving to S3")
		return audit.NewS3Archiver(client, cfg.Audit.ArchivePrefix), nil
	}
	logger.WithField("dir", cfg.Audit.ArchiveDir).Info("Archiving to local directory")
	return audit.NewFileArchiver(cfg.Audit.ArchiveDir)
}

func runRetention(ctx context.Context, retention *audit.Retention, days int, logger *logrus.Logger) error {
	logger.WithField("retention_days", days).Info("Starting audit retention")
	result, err := retention.Run(ctx, days)
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"cutoff":   result.Cutoff.Format("2006-01-02"),
		"archived": result.Archived,
		"location": result.Location,
		"pruned":   result.Pruned,
	}).Info("Audit retention completed")
	return nil
}

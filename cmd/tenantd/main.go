package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/tenantd/internal/artifact"
	"github.com/gosuda/tenantd/internal/backup"
	"github.com/gosuda/tenantd/internal/config"
	"github.com/gosuda/tenantd/internal/dbprovider"
	"github.com/gosuda/tenantd/internal/domain"
	"github.com/gosuda/tenantd/internal/maintenance"
	"github.com/gosuda/tenantd/internal/notify"
	"github.com/gosuda/tenantd/internal/provision"
	"github.com/gosuda/tenantd/internal/purge"
	"github.com/gosuda/tenantd/internal/queue"
	"github.com/gosuda/tenantd/internal/retention"
	"github.com/gosuda/tenantd/internal/scheduler"
	"github.com/gosuda/tenantd/internal/secrets"
	"github.com/gosuda/tenantd/internal/server"
	"github.com/gosuda/tenantd/internal/store/postgres"
	redisstore "github.com/gosuda/tenantd/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("TENANTD_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("TENANTD_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	// Connect to Redis: pub/sub for event streaming, locks for per-tenant
	// operation serialization.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	locker := redisstore.NewLocker(pubsub, 10*time.Minute)

	// Per-tenant database provider: dedicated containers when self-hosted,
	// databases on the shared server otherwise.
	var provider dbprovider.Provider
	if cfg.SelfHosted {
		dockerProvider, providerErr := dbprovider.NewDockerProvider(cfg.Docker.Host, cfg.Docker.Image, cfg.Database.Password)
		if providerErr != nil {
			return fmt.Errorf("docker provider: %w", providerErr)
		}
		defer dockerProvider.Close()
		provider = dockerProvider
	} else {
		pgProvider, providerErr := dbprovider.NewPostgresProvider(ctx, cfg.Database)
		if providerErr != nil {
			return fmt.Errorf("postgres provider: %w", providerErr)
		}
		defer pgProvider.Close()
		provider = pgProvider
	}

	// Artifact blob store: S3-compatible when configured, local disk otherwise.
	var artifacts artifact.Store
	if cfg.S3.Endpoint != "" {
		artifacts, err = artifact.NewS3Store(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.SSL)
		if err != nil {
			return fmt.Errorf("artifact store: %w", err)
		}
	} else {
		artifacts, err = artifact.NewLocalStore(cfg.S3.LocalDir)
		if err != nil {
			return fmt.Errorf("artifact store: %w", err)
		}
	}

	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		return err
	}
	keybox, err := secrets.NewKeybox(masterKey)
	if err != nil {
		return err
	}

	// Notification channels: every event goes to Redis for the WebSocket
	// stream; Slack is added when a bot token is configured.
	channels := []notify.Channel{notify.NewRedisChannel(pubsub)}
	if cfg.Slack.BotToken != "" {
		channels = append(channels, notify.NewSlackChannel(cfg.Slack.BotToken, cfg.Slack.Channel))
		log.Info().Str("channel", cfg.Slack.Channel).Msg("Slack notifications enabled")
	}
	notifier := notify.New(channels...)

	policy := retention.NewPolicy(cfg.Retention.Days, cfg.Retention.NoticeDays)

	// Application services.
	provisioner := provision.NewService(
		store.Tenants(), store.Domains(), store, provider,
		locker, notifier, cfg.BaseDomain, cfg.Worker.MaxAttempts,
	)
	domains := provision.NewDomainService(store.Domains(), store.Tenants())
	retentionSvc := retention.NewService(store.Tenants(), policy, locker, notifier)
	purger := purge.NewService(store.Tenants(), store, provider, artifacts, policy, locker, notifier)
	backups := backup.NewService(
		store.Tenants(), store.Backups(), store.BackupSchedules(), store.Restores(), store.Jobs(),
		store.EncryptionKeys(), keybox, provider, artifacts,
		cfg.Backup.FilesRoot, locker, notifier,
		cfg.Backup.DefaultRetentionDays, cfg.Worker.MaxAttempts,
	)
	windows := maintenance.NewService(
		store.Maintenance(), store.Tenants(), locker, notifier,
		cfg.Maintenance.ActiveTTL, cfg.Maintenance.HistoryLimit,
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Background job worker for provisioning and backup execution.
	worker := queue.NewWorker(store.Jobs(), cfg.Worker.PollInterval, cfg.Worker.BackoffBase)
	worker.ReclaimAfter(cfg.Worker.StaleAfter)
	worker.Handle(domain.JobKindProvisionTenant, provisioner.HandleProvisionJob)
	worker.Handle(domain.JobKindRunBackup, backups.HandleBackupJob)
	worker.OnFailure(func(ctx context.Context, job *domain.Job, err error) {
		if job.Kind != domain.JobKindProvisionTenant {
			return
		}
		notifier.Notify(ctx, notify.Event{
			Type:     notify.EventTenantProvisionFailed,
			TenantID: job.TenantID,
			Message:  fmt.Sprintf("provisioning failed after %d attempts: %v", job.Attempts, err),
		})
	})
	go worker.Run(ctx)

	// Periodic sweeps: maintenance windows, scheduled backups, retention.
	sweeper := scheduler.New(windows, backups, retentionSvc, cfg.Scheduler.Interval, cfg.Backup.StuckAfter)
	go sweeper.Run(ctx)

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, store, pubsub, server.Services{
		Provisioner: provisioner,
		Domains:     domains,
		Retention:   retentionSvc,
		Purge:       purger,
		Backups:     backups,
		Maintenance: windows,
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

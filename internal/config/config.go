package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Server      ServerConfig
	Slack       SlackConfig
	Docker      DockerConfig
	S3          S3Config
	Retention   RetentionConfig
	Backup      BackupConfig
	Maintenance MaintenanceConfig
	Worker      WorkerConfig
	Scheduler   SchedulerConfig
	BaseDomain  string
	MasterKey   string //nolint:gosec // G117: keybox master key config
	SelfHosted  bool
}

// DatabaseConfig holds central PostgreSQL connection settings. The same
// credentials are used by the admin connection that creates and drops
// per-tenant databases.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds admin API token settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// SlackConfig holds the Slack notification channel settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// DockerConfig holds container runtime settings for the self-hosted
// per-tenant database provider.
type DockerConfig struct {
	Host     string
	Image    string
	MemLimit string
}

// S3Config holds artifact blob store settings. When Endpoint is empty the
// local filesystem store is used instead.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string //nolint:gosec // G117: S3 credential config
	Bucket    string
	Region    string
	SSL       bool
	LocalDir  string
}

// RetentionConfig holds the soft-delete retention policy.
type RetentionConfig struct {
	Days       int
	NoticeDays int
}

// BackupConfig holds backup execution settings.
type BackupConfig struct {
	FilesRoot            string
	DefaultRetentionDays int
	StuckAfter           time.Duration
}

// MaintenanceConfig holds maintenance-mode settings.
type MaintenanceConfig struct {
	ActiveTTL    time.Duration
	HistoryLimit int
}

// WorkerConfig holds background job worker settings.
type WorkerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	StaleAfter   time.Duration
}

// SchedulerConfig holds the periodic sweep driver settings.
type SchedulerConfig struct {
	Interval time.Duration
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, master key, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("TENANTD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("TENANTD_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("TENANTD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("TENANTD_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("TENANTD_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	retentionDays, err := getEnvInt("TENANTD_RETENTION_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	noticeDays, err := getEnvInt("TENANTD_RETENTION_NOTICE_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	backupRetention, err := getEnvInt("TENANTD_BACKUP_RETENTION_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	backupStuckAfter, err := getEnvDuration("TENANTD_BACKUP_STUCK_AFTER", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maintenanceTTL, err := getEnvDuration("TENANTD_MAINTENANCE_ACTIVE_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maintenanceHistory, err := getEnvInt("TENANTD_MAINTENANCE_HISTORY_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workerInterval, err := getEnvDuration("TENANTD_WORKER_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workerMaxAttempts, err := getEnvInt("TENANTD_WORKER_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workerBackoff, err := getEnvDuration("TENANTD_WORKER_BACKOFF_BASE", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	workerStaleAfter, err := getEnvDuration("TENANTD_WORKER_STALE_AFTER", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	schedulerInterval, err := getEnvDuration("TENANTD_SCHEDULER_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	s3SSL, err := getEnvBool("TENANTD_S3_SSL", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("TENANTD_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("TENANTD_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("TENANTD_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("TENANTD_DB_USER", "tenantd"),
			Password: getEnv("TENANTD_DB_PASSWORD", ""),
			DBName:   getEnv("TENANTD_DB_NAME", "tenantd_dev"),
			SSLMode:  getEnv("TENANTD_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("TENANTD_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("TENANTD_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("TENANTD_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("TENANTD_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Slack: SlackConfig{
			BotToken: getEnv("TENANTD_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("TENANTD_SLACK_CHANNEL", "#tenant-ops"),
		},
		Docker: DockerConfig{
			Host:     getEnv("TENANTD_DOCKER_HOST", "unix:///var/run/docker.sock"),
			Image:    getEnv("TENANTD_DOCKER_PG_IMAGE", "postgres:17-alpine"),
			MemLimit: getEnv("TENANTD_DOCKER_MEM_LIMIT", "1g"),
		},
		S3: S3Config{
			Endpoint:  getEnv("TENANTD_S3_ENDPOINT", ""),
			AccessKey: getEnv("TENANTD_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("TENANTD_S3_SECRET_KEY", ""),
			Bucket:    getEnv("TENANTD_S3_BUCKET", "tenantd-backups"),
			Region:    getEnv("TENANTD_S3_REGION", ""),
			SSL:       s3SSL,
			LocalDir:  getEnv("TENANTD_ARTIFACT_DIR", "/var/lib/tenantd/artifacts"),
		},
		Retention: RetentionConfig{
			Days:       retentionDays,
			NoticeDays: noticeDays,
		},
		Backup: BackupConfig{
			FilesRoot:            getEnv("TENANTD_FILES_ROOT", "/var/lib/tenantd/files"),
			DefaultRetentionDays: backupRetention,
			StuckAfter:           backupStuckAfter,
		},
		Maintenance: MaintenanceConfig{
			ActiveTTL:    maintenanceTTL,
			HistoryLimit: maintenanceHistory,
		},
		Worker: WorkerConfig{
			PollInterval: workerInterval,
			MaxAttempts:  workerMaxAttempts,
			BackoffBase:  workerBackoff,
			StaleAfter:   workerStaleAfter,
		},
		Scheduler: SchedulerConfig{
			Interval: schedulerInterval,
		},
		BaseDomain: getEnv("TENANTD_BASE_DOMAIN", ""),
		MasterKey:  getEnv("TENANTD_MASTER_KEY", ""),
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("TENANTD_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("TENANTD_JWT_SECRET must be at least 32 characters")
	}

	if c.BaseDomain == "" {
		return errors.New("TENANTD_BASE_DOMAIN is required")
	}

	if c.MasterKey == "" {
		return errors.New("TENANTD_MASTER_KEY is required")
	}
	if _, err := c.MasterKeyBytes(); err != nil {
		return err
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("TENANTD_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("TENANTD_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("TENANTD_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("TENANTD_RETENTION_DAYS must be >= 1, got %d", c.Retention.Days)
	}
	if c.Retention.NoticeDays < 0 || c.Retention.NoticeDays > c.Retention.Days {
		return fmt.Errorf("TENANTD_RETENTION_NOTICE_DAYS must be 0-%d, got %d", c.Retention.Days, c.Retention.NoticeDays)
	}
	if c.Backup.DefaultRetentionDays < 1 {
		return fmt.Errorf("TENANTD_BACKUP_RETENTION_DAYS must be >= 1, got %d", c.Backup.DefaultRetentionDays)
	}
	if c.Backup.StuckAfter <= 0 {
		return fmt.Errorf("TENANTD_BACKUP_STUCK_AFTER must be positive, got %s", c.Backup.StuckAfter)
	}
	if c.Maintenance.ActiveTTL <= 0 {
		return fmt.Errorf("TENANTD_MAINTENANCE_ACTIVE_TTL must be positive, got %s", c.Maintenance.ActiveTTL)
	}
	if c.Maintenance.HistoryLimit < 1 {
		return fmt.Errorf("TENANTD_MAINTENANCE_HISTORY_LIMIT must be >= 1, got %d", c.Maintenance.HistoryLimit)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("TENANTD_WORKER_MAX_ATTEMPTS must be >= 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.StaleAfter <= 0 {
		return fmt.Errorf("TENANTD_WORKER_STALE_AFTER must be positive, got %s", c.Worker.StaleAfter)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("TENANTD_SCHEDULER_INTERVAL must be positive, got %s", c.Scheduler.Interval)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("TENANTD_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("TENANTD_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	return nil
}

// MasterKeyBytes decodes the hex-encoded 32-byte keybox master key.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("TENANTD_MASTER_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TENANTD_MASTER_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DSN returns the central PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return c.DSNFor(c.DBName)
}

// DSNFor returns a connection string for the named database on the same
// server, used by the per-tenant database provider.
func (c *DatabaseConfig) DSNFor(dbname string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, dbname, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

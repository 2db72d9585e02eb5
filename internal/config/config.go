package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/vdavid/mailvault/internal/store"
)

// Config holds the environment-driven settings: everything except the
// per-run mailbox and sink selection, which come from flags.
type Config struct {
	Environment string

	// Local metadata database (authoritative).
	SQLitePath string

	// Remote metadata mirror. Optional; empty host disables mirroring.
	MirrorHost     string
	MirrorPort     string
	MirrorUsername string
	MirrorPassword string
	MirrorDBName   string

	// Object storage (used when the s3 sink is selected).
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseTLS    bool

	// Extended store (used when the extended sink is selected).
	ArchiveDBURL string

	// New-mail notifications. Optional; empty address disables them.
	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	// Failure alerts. Optional; empty server disables them.
	AlertSMTPServer string
	AlertUsername   string
	AlertPassword   string
	AlertFrom       string
	AlertTo         string
}

// NewConfig reads settings from the environment, loading .env first in
// development.
func NewConfig() (*Config, error) {
	env := os.Getenv("MAILVAULT_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment: env,

		SQLitePath: getEnvOrDefault("MAILVAULT_SQLITE_PATH", store.DefaultSQLitePath()),

		MirrorHost:     os.Getenv("MAILVAULT_MIRROR_HOST"),
		MirrorPort:     getEnvOrDefault("MAILVAULT_MIRROR_PORT", "3306"),
		MirrorUsername: getEnvOrDefault("MAILVAULT_MIRROR_USER", "mailvault"),
		MirrorPassword: os.Getenv("MAILVAULT_MIRROR_PASSWORD"),
		MirrorDBName:   getEnvOrDefault("MAILVAULT_MIRROR_NAME", "mailvault"),

		S3Endpoint:  os.Getenv("MAILVAULT_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("MAILVAULT_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("MAILVAULT_S3_SECRET_KEY"),
		S3UseTLS:    os.Getenv("MAILVAULT_S3_USE_TLS") == "true",

		ArchiveDBURL: os.Getenv("MAILVAULT_ARCHIVE_DB_URL"),

		RedisAddr:     os.Getenv("MAILVAULT_REDIS_ADDR"),
		RedisPassword: os.Getenv("MAILVAULT_REDIS_PASSWORD"),
		RedisChannel:  getEnvOrDefault("MAILVAULT_REDIS_CHANNEL", "email"),

		AlertSMTPServer: os.Getenv("MAILVAULT_ALERT_SMTP_SERVER"),
		AlertUsername:   os.Getenv("MAILVAULT_ALERT_USER"),
		AlertPassword:   os.Getenv("MAILVAULT_ALERT_PASSWORD"),
		AlertFrom:       os.Getenv("MAILVAULT_ALERT_FROM"),
		AlertTo:         os.Getenv("MAILVAULT_ALERT_TO"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks that every enabled optional feature is fully configured.
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("MAILVAULT_SQLITE_PATH is required")
	}

	if c.MirrorHost != "" && c.MirrorPassword == "" {
		return fmt.Errorf("MAILVAULT_MIRROR_PASSWORD is required when MAILVAULT_MIRROR_HOST is set")
	}

	if c.AlertSMTPServer != "" && (c.AlertFrom == "" || c.AlertTo == "") {
		return fmt.Errorf("MAILVAULT_ALERT_FROM and MAILVAULT_ALERT_TO are required when MAILVAULT_ALERT_SMTP_SERVER is set")
	}

	return nil
}

// MirrorEnabled reports whether a remote metadata mirror is configured.
func (c *Config) MirrorEnabled() bool {
	return c.MirrorHost != ""
}

// GetMirrorDSN builds the go-sql-driver DSN for the metadata mirror.
func (c *Config) GetMirrorDSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s",
		c.MirrorUsername,
		c.MirrorPassword,
		c.MirrorHost,
		c.MirrorPort,
		c.MirrorDBName,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

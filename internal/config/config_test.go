package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment: "test",
		SQLitePath:  "/tmp/metadata.db",
	}
}

func TestValidateMinimalConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRequiresSQLitePath(t *testing.T) {
	cfg := validConfig()
	cfg.SQLitePath = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateMirrorRequiresPassword(t *testing.T) {
	cfg := validConfig()
	cfg.MirrorHost = "db.example.com"
	assert.Error(t, cfg.Validate())

	cfg.MirrorPassword = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateAlertRequiresAddresses(t *testing.T) {
	cfg := validConfig()
	cfg.AlertSMTPServer = "smtp.example.com:587"
	assert.Error(t, cfg.Validate())

	cfg.AlertFrom = "downloader@example.com"
	assert.Error(t, cfg.Validate())

	cfg.AlertTo = "oncall@example.com"
	assert.NoError(t, cfg.Validate())
}

func TestMirrorDSN(t *testing.T) {
	cfg := validConfig()
	cfg.MirrorHost = "db.example.com"
	cfg.MirrorPort = "3306"
	cfg.MirrorUsername = "mailvault"
	cfg.MirrorPassword = "secret"
	cfg.MirrorDBName = "mailvault"

	require.True(t, cfg.MirrorEnabled())
	assert.Equal(t, "mailvault:secret@tcp(db.example.com:3306)/mailvault", cfg.GetMirrorDSN())
}

func TestNewConfigReadsEnvironment(t *testing.T) {
	t.Setenv("MAILVAULT_ENV", "test")
	t.Setenv("MAILVAULT_SQLITE_PATH", "/tmp/test-metadata.db")
	t.Setenv("MAILVAULT_REDIS_ADDR", "127.0.0.1:6379")

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "/tmp/test-metadata.db", cfg.SQLitePath)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, "email", cfg.RedisChannel)
	assert.False(t, cfg.MirrorEnabled())
}

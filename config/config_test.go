package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `{"server":{"port":"9090"},"auth":{"jwt_secret":"s3cret"},"store":{"driver":"SQLite"}}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "lapor.db", cfg.Store.SQLitePath)
	assert.Equal(t, "reports", cfg.RabbitMQ.Exchange)
	assert.Equal(t, 24*time.Hour, cfg.Auth.Expiration())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{"auth":{"jwt_secret":"from-file"}}`)
	t.Setenv("LAPOR_JWT_SECRET", "from-env")
	t.Setenv("LAPOR_PORT", "7000")
	t.Setenv("LAPOR_RABBITMQ_ENABLED", "true")
	t.Setenv("LAPOR_TRUST_GATEWAY_HEADERS", "1")
	t.Setenv("LAPOR_JWT_EXPIRATION_HOURS", "2")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.True(t, cfg.Auth.TrustGatewayHeaders)
	assert.Equal(t, 2*time.Hour, cfg.Auth.Expiration())
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("LAPOR_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{not json`))
	assert.Error(t, err)

	t.Setenv("LAPOR_JWT_SECRET", "s3cret")
	t.Setenv("LAPOR_RABBITMQ_ENABLED", "maybe")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "LAPOR_RABBITMQ_ENABLED")
}

func TestValidateListsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "postgres"
	cfg.Auth.ExpirationHours = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "store.postgres_dsn")
	assert.ErrorContains(t, err, "auth.jwt_secret")
	assert.ErrorContains(t, err, "auth.expiration_hours")

	cfg = Default()
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Store.Driver = "redis"
	assert.ErrorContains(t, cfg.Validate(), `"redis"`)

	cfg.Store.Driver = "mongo"
	cfg.Store.MongoURI = "mongodb://localhost:27017"
	assert.NoError(t, cfg.Validate())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := Load()
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, BackendSnapshot, cfg.Backend)
	assert.Equal(t, SnapshotRedis, cfg.SnapshotStore)
	assert.Equal(t, "cart:snapshot", cfg.SnapshotKey)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 10000, cfg.SessionCapacity)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CART_BACKEND", "Postgres")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("SESSION_CAPACITY", "not-a-number")
	t.Setenv("CATALOG_TIMEOUT", "whenever")

	cfg := Load()
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.SessionTTL)
	assert.Equal(t, 10000, cfg.SessionCapacity)
	assert.Equal(t, 3*time.Second, cfg.CatalogTimeout)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-file\nHTTP_PORT=9090\n"), 0o600))
	t.Setenv("HTTP_PORT", "7070")
	// restored after the test; godotenv only fills variables that are unset
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	cfg := Load()
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "7070", cfg.HTTPPort)
}

func TestValidate(t *testing.T) {
	base := Config{Backend: BackendSnapshot, SnapshotStore: SnapshotMemory, JWTSecret: "x", SessionCapacity: 1}
	require.NoError(t, base.Validate())

	bad := base
	bad.Backend = "sqlite"
	assert.ErrorContains(t, bad.Validate(), "CART_BACKEND")

	bad = base
	bad.SnapshotStore = "disk"
	assert.ErrorContains(t, bad.Validate(), "SNAPSHOT_STORE")

	bad = base
	bad.SnapshotStore = SnapshotRedis
	assert.ErrorContains(t, bad.Validate(), "REDIS_ADDR")

	bad = base
	bad.JWTSecret = ""
	bad.SessionCapacity = 0
	err := bad.Validate()
	assert.ErrorContains(t, err, "JWT_SECRET")
	assert.ErrorContains(t, err, "SESSION_CAPACITY")
}

// chdir switches the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

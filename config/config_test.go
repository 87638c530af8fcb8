package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"task-tracker/tasks-service/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"MONGO_URI":  "mongodb://localhost:27017",
		"JWT_SECRET": "s3cret",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8002", cfg.ServerPort)
	assert.Equal(t, StoreMongo, cfg.StoreKind)
	assert.Equal(t, "tasks_db", cfg.MongoDBName)
	assert.Equal(t, "tasks", cfg.MongoCollection)
	assert.Equal(t, "users", cfg.MongoUsersDB)
	assert.Equal(t, 5*time.Minute, cfg.UserCacheTTL)
	assert.Equal(t, int64(120), cfg.RateLimitPerMinute)
	assert.Equal(t, services.StatsScopeGlobal, cfg.StatsScope)
	assert.Equal(t, "*", cfg.CORSOrigin)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Development())
}

func TestFromEnvMemoryStoreNeedsNoMongo(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"STORE":       "memory",
		"JWT_SECRET":  "s3cret",
		"APP_ENV":     "Development",
		"STATS_SCOPE": "caller",
	}))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreKind)
	assert.True(t, cfg.Development())
	assert.Equal(t, services.StatsScopeCaller, cfg.StatsScope)
}

func TestFromEnvReportsEveryProblem(t *testing.T) {
	_, err := FromEnv(envOf(map[string]string{
		"SERVER_PORT":           "http",
		"USER_CACHE_TTL":        "soon",
		"RATE_LIMIT_PER_MINUTE": "-1",
		"STATS_SCOPE":           "team",
	}))
	require.Error(t, err)

	for _, want := range []string{"SERVER_PORT", "MONGO_URI", "JWT_SECRET", "USER_CACHE_TTL", "RATE_LIMIT_PER_MINUTE", "STATS_SCOPE"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadReadsDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE=memory\nJWT_SECRET=from-file\nSERVER_PORT=9100\n"), 0o600))
	for _, key := range []string{"STORE", "JWT_SECRET", "SERVER_PORT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "9100", cfg.ServerPort)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

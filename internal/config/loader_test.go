package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"BANDGO_SNAPSHOT_BACKEND",
	"BANDGO_SNAPSHOT_PATH",
	"BANDGO_SQLITE_DSN",
	"BANDGO_REDIS_ADDR",
	"BANDGO_REDIS_KEY",
	"BANDGO_REDIS_TOPIC",
	"BANDGO_REDIS_BRIDGE",
	"BANDGO_OPS_ADDR",
	"BANDGO_LOG_LEVEL",
	"BANDGO_LOG_FORMAT",
	"BANDGO_SESSION_TTL",
	"BANDGO_FLUSH_INTERVAL",
	"BANDGO_SETTINGS_FILE",
}

// clearEnv unsets every key while letting t.Setenv restore the original values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_ParseEnvironment(t *testing.T) {
	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		clearEnv(t)

		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, BackendFile, cfg.SnapshotBackend)
		assert.Equal(t, "bandgo-snapshot.json", cfg.SnapshotPath)
		assert.Equal(t, ":9090", cfg.OpsAddr)
		assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
		assert.Equal(t, time.Minute, cfg.FlushInterval)
		assert.False(t, cfg.RedisBridge)
		assert.Equal(t, 3, cfg.Settings.RehearsalGoal)
	})

	t.Run("parses every field", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BANDGO_SNAPSHOT_BACKEND", "SQLite")
		t.Setenv("BANDGO_SQLITE_DSN", "/tmp/bandgo.db")
		t.Setenv("BANDGO_REDIS_ADDR", "localhost:6379")
		t.Setenv("BANDGO_REDIS_BRIDGE", "true")
		t.Setenv("BANDGO_LOG_FORMAT", "text")
		t.Setenv("BANDGO_SESSION_TTL", "2h")
		t.Setenv("BANDGO_FLUSH_INTERVAL", "15s")

		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, cfg.SnapshotBackend)
		assert.Equal(t, "/tmp/bandgo.db", cfg.SQLiteDSN)
		assert.True(t, cfg.RedisBridge)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
		assert.Equal(t, 15*time.Second, cfg.FlushInterval)
	})

	t.Run("redis needs an address", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BANDGO_SNAPSHOT_BACKEND", "redis")

		_, err := LoadFile("")
		require.Error(t, err)
		assert.Equal(t, "missing required environment variables: BANDGO_REDIS_ADDR", err.Error())
	})

	t.Run("reports every invalid key together", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BANDGO_SNAPSHOT_BACKEND", "s3")
		t.Setenv("BANDGO_SESSION_TTL", "-1h")
		t.Setenv("BANDGO_REDIS_BRIDGE", "maybe")

		_, err := LoadFile("")
		require.Error(t, err)
		assert.Equal(t, "invalid environment variables: BANDGO_SNAPSHOT_BACKEND, BANDGO_REDIS_BRIDGE, BANDGO_SESSION_TTL", err.Error())
	})

	t.Run("reads the dotenv file without overriding the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BANDGO_LOG_LEVEL", "debug")
		path := writeFile(t, ".env", "BANDGO_OPS_ADDR=:7070\nBANDGO_LOG_LEVEL=error\n")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, ":7070", cfg.OpsAddr)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("missing dotenv file is ignored", func(t *testing.T) {
		clearEnv(t)
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
		assert.NoError(t, err)
	})
}

func TestLoadSettings(t *testing.T) {
	t.Run("overlays the document on defaults", func(t *testing.T) {
		clearEnv(t)
		path := writeFile(t, "settings.yaml", "rehearsal_goal: 5\nauto_promote_waitlist: true\n")
		t.Setenv("BANDGO_SETTINGS_FILE", path)

		cfg, err := LoadFile("")
		require.NoError(t, err)
		assert.Equal(t, path, cfg.SettingsFile)
		assert.Equal(t, 5, cfg.Settings.RehearsalGoal)
		assert.True(t, cfg.Settings.AutoPromoteWaitlist)
		assert.Equal(t, 48, cfg.Settings.PollDurationHours)
		assert.Equal(t, 2000, cfg.Settings.MaxPostLength)
	})

	t.Run("rejects non-positive goals", func(t *testing.T) {
		path := writeFile(t, "settings.yaml", "rehearsal_goal: 0\n")
		_, err := LoadSettings(path)
		assert.Error(t, err)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		path := writeFile(t, "settings.yaml", "rehearsal_goal: [\n")
		_, err := LoadSettings(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

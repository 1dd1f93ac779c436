package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bengol30/bandgo/internal/domain"
)

// Snapshot backends accepted by BANDGO_SNAPSHOT_BACKEND.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Config captures environment driven configuration values for the bandgo process.
type Config struct {
	SnapshotBackend string
	SnapshotPath    string
	SQLiteDSN       string
	RedisAddr       string
	RedisKey        string
	RedisBridge     bool
	RedisTopic      string
	OpsAddr         string
	LogLevel        string
	LogFormat       string
	SessionTTL      time.Duration
	FlushInterval   time.Duration
	SettingsFile    string

	// Settings seeds SystemSettings. It holds DefaultSettings overlaid with
	// the YAML document named by SettingsFile.
	Settings domain.SystemSettings
}

// Load reads a .env file from the working directory when one exists and then
// parses the process environment.
func Load() (Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path. Variables already present in
// the environment win over the file.
func LoadFile(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := Config{
		SnapshotBackend: BackendFile,
		SnapshotPath:    "bandgo-snapshot.json",
		SQLiteDSN:       "bandgo.db",
		RedisKey:        "bandgo:snapshot",
		RedisTopic:      "bandgo:events",
		OpsAddr:         ":9090",
		LogLevel:        "info",
		LogFormat:       "json",
		SessionTTL:      24 * time.Hour,
		FlushInterval:   time.Minute,
		Settings:        domain.DefaultSettings(),
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if backend := env("BANDGO_SNAPSHOT_BACKEND"); backend != "" {
		switch strings.ToLower(backend) {
		case BackendFile, BackendSQLite, BackendRedis, BackendNone:
			cfg.SnapshotBackend = strings.ToLower(backend)
		default:
			invalid = append(invalid, "BANDGO_SNAPSHOT_BACKEND")
		}
	}
	if path := env("BANDGO_SNAPSHOT_PATH"); path != "" {
		cfg.SnapshotPath = path
	}
	if dsn := env("BANDGO_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if addr := env("BANDGO_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if key := env("BANDGO_REDIS_KEY"); key != "" {
		cfg.RedisKey = key
	}
	if topic := env("BANDGO_REDIS_TOPIC"); topic != "" {
		cfg.RedisTopic = topic
	}
	if value := env("BANDGO_REDIS_BRIDGE"); value != "" {
		bridge, err := strconv.ParseBool(value)
		if err != nil {
			invalid = append(invalid, "BANDGO_REDIS_BRIDGE")
		} else {
			cfg.RedisBridge = bridge
		}
	}
	if addr := env("BANDGO_OPS_ADDR"); addr != "" {
		cfg.OpsAddr = addr
	}
	if level := env("BANDGO_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if format := env("BANDGO_LOG_FORMAT"); format != "" {
		switch strings.ToLower(format) {
		case "json", "text":
			cfg.LogFormat = strings.ToLower(format)
		default:
			invalid = append(invalid, "BANDGO_LOG_FORMAT")
		}
	}
	if ttl, ok := duration("BANDGO_SESSION_TTL", &invalid); ok {
		cfg.SessionTTL = ttl
	}
	if interval, ok := duration("BANDGO_FLUSH_INTERVAL", &invalid); ok {
		cfg.FlushInterval = interval
	}

	if (cfg.SnapshotBackend == BackendRedis || cfg.RedisBridge) && cfg.RedisAddr == "" {
		missing = append(missing, "BANDGO_REDIS_ADDR")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %s", strings.Join(invalid, ", "))
	}

	if file := env("BANDGO_SETTINGS_FILE"); file != "" {
		settings, err := LoadSettings(file)
		if err != nil {
			return Config{}, err
		}
		cfg.SettingsFile = file
		cfg.Settings = settings
	}
	return cfg, nil
}

// LoadSettings reads a YAML settings document over DefaultSettings. Keys the
// document omits keep their default.
func LoadSettings(path string) (domain.SystemSettings, error) {
	settings := domain.DefaultSettings()
	raw, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	if settings.RehearsalGoal < 1 || settings.PollDurationHours < 1 || settings.MaxPostLength < 0 {
		return settings, fmt.Errorf("settings file %s: rehearsal_goal and poll_duration_hours must be positive", path)
	}
	return settings, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func duration(key string, invalid *[]string) (time.Duration, bool) {
	value := env(key)
	if value == "" {
		return 0, false
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		*invalid = append(*invalid, key)
		return 0, false
	}
	return d, true
}

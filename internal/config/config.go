// Package config loads environment-overridable configuration for the
// offline sales queue and sync engine.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults and floors for the sync subsystem. Floors guard against
// misconfiguration that would hammer the server or disable retries entirely.
const (
	DefaultStorageKey       = "vendly_offline_queue"
	DefaultMaxRetries       = 3
	MinRetries              = 1
	DefaultReconnectDelay   = 2000 * time.Millisecond
	MinReconnectDelay       = 500 * time.Millisecond
	DefaultPeriodicInterval = 30000 * time.Millisecond
	MinPeriodicInterval     = 5000 * time.Millisecond
	DefaultSyncTimeout      = 30000 * time.Millisecond
	DefaultBackoffCeiling   = 300000 * time.Millisecond
	DefaultMaxQueuedSales   = 5000
)

// Config holds the runtime configuration for the POS backend.
type Config struct {
	// Queue
	StorageKey     string
	MaxQueuedSales int

	// Retry / scheduling
	MaxRetries       int
	ReconnectDelay   time.Duration
	PeriodicInterval time.Duration
	SyncTimeout      time.Duration
	BackoffCeiling   time.Duration

	// Feature toggles
	OfflineMode  bool
	AutoSync     bool
	PeriodicSync bool

	// Endpoints
	BatchSyncEndpoint  string
	SingleSyncEndpoint string

	// Process
	DataDir  string
	HTTPPort string
}

// Load reads configuration from the environment, applying defaults and floors.
func Load() *Config {
	cfg := &Config{
		StorageKey:     getEnv("QUEUE_STORAGE_KEY", DefaultStorageKey),
		MaxQueuedSales: getEnvInt("MAX_QUEUED_SALES", DefaultMaxQueuedSales),

		MaxRetries:       getEnvInt("MAX_RETRIES", DefaultMaxRetries),
		ReconnectDelay:   getEnvMillis("RECONNECTION_DELAY", DefaultReconnectDelay),
		PeriodicInterval: getEnvMillis("PERIODIC_SYNC_INTERVAL", DefaultPeriodicInterval),
		SyncTimeout:      getEnvMillis("SYNC_TIMEOUT", DefaultSyncTimeout),
		BackoffCeiling:   getEnvMillis("BACKOFF_CEILING", DefaultBackoffCeiling),

		OfflineMode:  getEnvBool("ENABLE_OFFLINE_MODE", true),
		AutoSync:     getEnvBool("ENABLE_AUTO_SYNC", true),
		PeriodicSync: getEnvBool("ENABLE_PERIODIC_SYNC", true),

		BatchSyncEndpoint:  getEnv("BATCH_SYNC_ENDPOINT", ""),
		SingleSyncEndpoint: getEnv("SINGLE_SYNC_ENDPOINT", ""),

		DataDir:  getEnv("DB_PATH", "./data"),
		HTTPPort: getEnv("PORT", "8090"),
	}

	// Enforce floors
	if cfg.MaxRetries < MinRetries {
		cfg.MaxRetries = MinRetries
	}
	if cfg.ReconnectDelay < MinReconnectDelay {
		cfg.ReconnectDelay = MinReconnectDelay
	}
	if cfg.PeriodicInterval < MinPeriodicInterval {
		cfg.PeriodicInterval = MinPeriodicInterval
	}

	return cfg
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// getEnvMillis parses a duration given as a millisecond count.
func getEnvMillis(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	}
	return def
}

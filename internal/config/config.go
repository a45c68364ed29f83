package config

import (
	"time"

	"github.com/akarpov87/mealkeep/internal/backup"
)

// Config holds runtime settings for the MealKeep CLI.
//
// Fields:
//   - DatabasePath: location of the local SQLite cache.
//   - RemoteEndpoint: base URL of the backend sync API.
//   - SessionSecret: HMAC key used to verify session tokens.
//   - SyncInterval: how often the engine runs a background reconcile.
//   - BackupDir: directory for safety backups written before imports.
//   - ObjectStorage: optional S3-compatible mirror for safety backups.
//
// Units: SyncInterval is a time.Duration (e.g., 30*time.Second).
type Config struct {
	DatabasePath   string
	RemoteEndpoint string
	SessionSecret  string
	SyncInterval   time.Duration
	BackupDir      string
	ObjectStorage  backup.ObjectStorageConfig
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "mealkeep.db"
	c.RemoteEndpoint = "http://127.0.0.1:8080"
	c.SyncInterval = 30 * time.Second
	c.BackupDir = "backups"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

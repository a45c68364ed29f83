// Package config loads runtime configuration for the MealKeep CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend sync API
//	-d string   path to the local database file
//	-i int      background sync interval (seconds)
//	-b string   directory for safety backups
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "database_path": "mealkeep.db",
//	  "remote_endpoint": "https://sync.example.com",
//	  "sync_interval": "30s",
//	  "backup_dir": "backups"
//	}
//
// Primary API
//
//   - type Config                     — holds paths, endpoints and intervals
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
package config

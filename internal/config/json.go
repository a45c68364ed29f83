package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akarpov87/mealkeep/internal/backup"
	"github.com/akarpov87/mealkeep/internal/flagx"
	"github.com/akarpov87/mealkeep/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "30s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	DatabasePath   string                     `json:"database_path"`
	RemoteEndpoint string                     `json:"remote_endpoint"`
	SessionSecret  string                     `json:"session_secret"`
	SyncInterval   timex.Duration             `json:"sync_interval"`
	BackupDir      string                     `json:"backup_dir"`
	ObjectStorage  backup.ObjectStorageConfig `json:"object_storage"`
}

// parseJson overlays Config with values loaded from a JSON file.
//
// Lookup order for the JSON file path:
//  1. Command-line flags (-c or -config) via flagx.JsonConfigFlags().
//  2. If empty, no JSON is loaded and the function returns.
//
// Intended usage is: defaults -> parseJson -> parseFlags, where later stages
// override earlier ones.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.RemoteEndpoint != "" {
		cfg.RemoteEndpoint = jc.RemoteEndpoint
	}
	if jc.SessionSecret != "" {
		cfg.SessionSecret = jc.SessionSecret
	}
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = time.Duration(jc.SyncInterval.Duration)
	}
	if jc.BackupDir != "" {
		cfg.BackupDir = jc.BackupDir
	}
	cfg.ObjectStorage = jc.ObjectStorage
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"database_path":   "/data/meals.db",
		"remote_endpoint": "https://sync.example:9000",
		"session_secret":  "hmac-key",
		"sync_interval":   "10s",
		"backup_dir":      "/data/backups",
		"object_storage": map[string]any{
			"endpoint": "localhost:9000",
			"bucket":   "mealkeep-backups",
		},
	})

	t.Run("loads from flags", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		parseJson(cfg)

		assert.Equal(t, "/data/meals.db", cfg.DatabasePath)
		assert.Equal(t, "https://sync.example:9000", cfg.RemoteEndpoint)
		assert.Equal(t, "hmac-key", cfg.SessionSecret)
		assert.Equal(t, 10*time.Second, cfg.SyncInterval)
		assert.Equal(t, "/data/backups", cfg.BackupDir)
		assert.Equal(t, "mealkeep-backups", cfg.ObjectStorage.Bucket)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			DatabasePath: "defaults.db",
			SyncInterval: 42 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults.db", cfg.DatabasePath)
		assert.Equal(t, 42*time.Second, cfg.SyncInterval)
	})

	t.Run("partial file keeps unspecified values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{
			"remote_endpoint": "https://other.example",
		})
		os.Args = []string{"testbin", "-c", partial}

		cfg := &Config{
			DatabasePath: "keep.db",
			SyncInterval: 15 * time.Second,
		}
		parseJson(cfg)

		assert.Equal(t, "https://other.example", cfg.RemoteEndpoint)
		assert.Equal(t, "keep.db", cfg.DatabasePath)
		assert.Equal(t, 15*time.Second, cfg.SyncInterval)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}

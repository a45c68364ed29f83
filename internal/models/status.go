package models

import "time"

// EngineState names the sync engine's position in its per-session state
// machine.
type EngineState string

const (
	EngineStateIdle        EngineState = "idle"
	EngineStateReconciling EngineState = "reconciling"
	EngineStateListening   EngineState = "listening"
	EngineStateIdleOnError EngineState = "idle-on-error"
)

// SyncStatus is the status snapshot the rendering layer polls. The engine
// never pushes UI-specific state; it only fills this in.
type SyncStatus struct {
	State             EngineState `json:"state"`
	PendingCount      int         `json:"pendingCount"`
	LastSyncAt        *time.Time  `json:"lastSyncAt,omitempty"`
	LastError         string      `json:"lastError,omitempty"`
	RealtimeConnected bool        `json:"realtimeConnected"`
}

// Settings keys stored in the settings table.
const (
	SettingRecordCount  = "record_count"
	SettingLastBackupAt = "last_backup_at"
	SettingLastSyncAt   = "last_sync_at"
)

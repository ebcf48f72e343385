package domain

import "time"

// SyncState is the lifecycle state of the sync engine for one table (in
// metadata) or the whole engine (in the orchestrator).
type SyncState string

const (
	SyncStateIdle    SyncState = "idle"
	SyncStateSyncing SyncState = "syncing"
	SyncStateFailed  SyncState = "failed"
)

// SyncMetadata tracks per-table sync progress. LastPullAt is the watermark
// for the next delta pull.
type SyncMetadata struct {
	Table            Table      `json:"table"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty"`
	LastPushAt       *time.Time `json:"last_push_at,omitempty"`
	LastPullAt       *time.Time `json:"last_pull_at,omitempty"`
	Status           SyncState  `json:"status"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	PendingPushCount int        `json:"pending_push_count"`
}

// SyncResult aggregates the outcome of one full sync cycle across all
// syncable tables.
type SyncResult struct {
	Success       bool          `json:"success"`
	AlreadyActive bool          `json:"already_active"`
	PushedCount   int           `json:"pushed_count"`
	PulledCount   int           `json:"pulled_count"`
	FailedCount   int           `json:"failed_count"`
	ConflictCount int           `json:"conflict_count"`
	Errors        []string      `json:"errors,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// ConflictKind classifies how local and remote state diverged.
type ConflictKind string

const (
	ConflictKindUpdate ConflictKind = "update_conflict"
	ConflictKindDelete ConflictKind = "delete_conflict"
)

// ConflictResolution is the user's decision for an unresolved conflict.
type ConflictResolution string

const (
	ResolutionUnresolved ConflictResolution = "unresolved"
	ResolutionUseLocal   ConflictResolution = "use_local"
	ResolutionUseRemote  ConflictResolution = "use_remote"
)

// Valid reports whether r is a resolution a user may apply.
func (r ConflictResolution) Valid() bool {
	return r == ResolutionUseLocal || r == ResolutionUseRemote
}

// ConflictRecord captures a local/remote divergence that could not be
// auto-resolved: the local copy was dirty and strictly newer than the
// incoming remote copy. Local and Remote hold the serialized record
// versions at detection time.
type ConflictRecord struct {
	ID         int64              `json:"id"`
	Table      Table              `json:"table"`
	RecordID   string             `json:"record_id"`
	Local      []byte             `json:"local"`
	Remote     []byte             `json:"remote"`
	Kind       ConflictKind       `json:"kind"`
	Resolution ConflictResolution `json:"resolution"`
	DetectedAt time.Time          `json:"detected_at"`
	ResolvedAt *time.Time         `json:"resolved_at,omitempty"`
}

// TableStatistics is the per-table observability snapshot.
type TableStatistics struct {
	Table       Table `json:"table"`
	Total       int   `json:"total"`
	Clean       int   `json:"clean"`
	DirtyCreate int   `json:"dirty_create"`
	DirtyUpdate int   `json:"dirty_update"`
	DirtyDelete int   `json:"dirty_delete"`
	SoftDeleted int   `json:"soft_deleted"`
}

// Dirty returns the number of records awaiting a push.
func (s TableStatistics) Dirty() int {
	return s.DirtyCreate + s.DirtyUpdate + s.DirtyDelete
}

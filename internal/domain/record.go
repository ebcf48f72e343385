package domain

import (
	"encoding/json"
	"time"
)

// SyncStatus tracks whether a record's local state has been acknowledged by
// the remote backend.
type SyncStatus string

const (
	// SyncStatusClean means the remote copy matches local state.
	SyncStatusClean SyncStatus = "clean"
	// SyncStatusDirtyCreate marks a record created locally and never pushed.
	SyncStatusDirtyCreate SyncStatus = "dirty_create"
	// SyncStatusDirtyUpdate marks a pushed record with unacknowledged local edits.
	SyncStatusDirtyUpdate SyncStatus = "dirty_update"
	// SyncStatusDirtyDelete marks a soft-deleted record whose deletion has not
	// been pushed.
	SyncStatusDirtyDelete SyncStatus = "dirty_delete"
)

// IsDirty reports whether the status requires a push.
func (s SyncStatus) IsDirty() bool { return s != SyncStatusClean }

// Record is the generic shape shared by every syncable table. Domain fields
// live in Payload as JSON; the sync engine never interprets them.
type Record struct {
	Syncable

	// RemoteID is the deterministic remote identifier derived from the
	// record's natural key. Immutable once assigned.
	RemoteID string `json:"remote_id"`

	// UserID references the owning user.
	UserID string `json:"user_id"`

	SyncStatus   SyncStatus `json:"sync_status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	if r.LastSyncedAt != nil {
		t := *r.LastSyncedAt
		c.LastSyncedAt = &t
	}
	if r.Payload != nil {
		c.Payload = make(json.RawMessage, len(r.Payload))
		copy(c.Payload, r.Payload)
	}
	return &c
}

// ScanPayload holds the domain fields of a leaf scan.
type ScanPayload struct {
	CropType   string  `json:"crop_type" validate:"required"`
	ImagePath  string  `json:"image_path" validate:"required"`
	Latitude   float64 `json:"latitude,omitempty" validate:"gte=-90,lte=90"`
	Longitude  float64 `json:"longitude,omitempty" validate:"gte=-180,lte=180"`
	CapturedAt string  `json:"captured_at" validate:"required"`
	Notes      string  `json:"notes,omitempty"`
}

// DiagnosisPayload holds the domain fields of a diagnosis attached to a scan.
type DiagnosisPayload struct {
	ScanID     string  `json:"scan_id" validate:"required"`
	Disease    string  `json:"disease" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Severity   string  `json:"severity,omitempty" validate:"omitempty,oneof=low medium high"`
}

// RecommendationPayload holds the domain fields of a fertilizer/treatment
// recommendation attached to a scan.
type RecommendationPayload struct {
	ScanID     string `json:"scan_id" validate:"required"`
	Treatment  string `json:"treatment" validate:"required"`
	Fertilizer string `json:"fertilizer,omitempty"`
	Dosage     string `json:"dosage,omitempty"`
}

package store

import (
	"context"
	"database/sql"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

// GetSyncMetadata returns the sync bookkeeping row for a table. A table
// that has never synced gets a fresh idle row.
func (s *Store) GetSyncMetadata(ctx context.Context, table domain.Table) (*domain.SyncMetadata, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	var (
		m            domain.SyncMetadata
		lastSyncAt   sql.NullString
		lastPushAt   sql.NullString
		lastPullAt   sql.NullString
		status       string
		errorMessage string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT table_name, last_sync_at, last_push_at, last_pull_at, status, error_message, pending_push_count
		FROM sync_metadata WHERE table_name = ?`, table.String()).Scan(
		&m.Table, &lastSyncAt, &lastPushAt, &lastPullAt, &status, &errorMessage, &m.PendingPushCount)
	if err == sql.ErrNoRows {
		return &domain.SyncMetadata{Table: table, Status: domain.SyncStateIdle}, nil
	}
	if err != nil {
		return nil, err
	}

	m.Status = domain.SyncState(status)
	m.ErrorMessage = errorMessage

	m.LastSyncAt, err = parseNullableTime(lastSyncAt)
	if err != nil {
		return nil, err
	}
	m.LastPushAt, err = parseNullableTime(lastPushAt)
	if err != nil {
		return nil, err
	}
	m.LastPullAt, err = parseNullableTime(lastPullAt)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// SaveSyncMetadata persists the sync bookkeeping row for a table.
func (s *Store) SaveSyncMetadata(ctx context.Context, m *domain.SyncMetadata) error {
	if err := checkTable(m.Table); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (table_name, last_sync_at, last_push_at, last_pull_at, status, error_message, pending_push_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			last_push_at = excluded.last_push_at,
			last_pull_at = excluded.last_pull_at,
			status = excluded.status,
			error_message = excluded.error_message,
			pending_push_count = excluded.pending_push_count`,
		m.Table.String(),
		nullTimeString(m.LastSyncAt),
		nullTimeString(m.LastPushAt),
		nullTimeString(m.LastPullAt),
		string(m.Status),
		m.ErrorMessage,
		m.PendingPushCount,
	)
	return err
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
)

// recordColumns is the ordered list of columns selected in record queries.
// Must match the scan order in scanRecord.
const recordColumns = `id, remote_id, user_id, payload, created_at, updated_at, deleted_at, sync_status, last_synced_at`

// scanRecord scans a sql.Row (or sql.Rows via its Scan method) into a domain.Record.
func scanRecord(scanner interface{ Scan(dest ...any) error }) (*domain.Record, error) {
	var r domain.Record

	var (
		payload      string
		createdAt    string
		updatedAt    string
		deletedAt    sql.NullString
		syncStatus   string
		lastSyncedAt sql.NullString
	)

	err := scanner.Scan(
		&r.ID,
		&r.RemoteID,
		&r.UserID,
		&payload,
		&createdAt,
		&updatedAt,
		&deletedAt,
		&syncStatus,
		&lastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Payload = json.RawMessage(payload)
	r.SyncStatus = domain.SyncStatus(syncStatus)

	r.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	r.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	r.DeletedAt, err = parseNullableTime(deletedAt)
	if err != nil {
		return nil, err
	}
	r.LastSyncedAt, err = parseNullableTime(lastSyncedAt)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// checkTable guards every query against table names outside the closed enum.
func checkTable(table domain.Table) error {
	if !table.Valid() {
		return errors.Validationf("unknown syncable table %q", table)
	}
	return nil
}

// Put inserts or updates a record as a local mutation. It enforces the dirty
// transitions: a new record becomes dirty_create, an unpushed record stays
// dirty_create, anything else becomes dirty_update. UpdatedAt is refreshed
// unless the caller supplied one.
func (s *Store) Put(ctx context.Context, table domain.Table, rec *domain.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}

	if rec.UpdatedAt.IsZero() {
		rec.Touch()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	existing, err := s.Get(ctx, table, rec.ID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	switch {
	case existing == nil:
		rec.SyncStatus = domain.SyncStatusDirtyCreate
	case existing.SyncStatus == domain.SyncStatusDirtyCreate:
		rec.SyncStatus = domain.SyncStatusDirtyCreate
	default:
		rec.SyncStatus = domain.SyncStatusDirtyUpdate
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table.String()+` (
			id, remote_id, user_id, payload, created_at, updated_at, deleted_at, sync_status, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status`,
		rec.ID,
		rec.RemoteID,
		rec.UserID,
		string(rec.Payload),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
		nullTimeString(rec.DeletedAt),
		string(rec.SyncStatus),
		nullTimeString(rec.LastSyncedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.AlreadyExists("remote identifier already in use").WithCause(err)
		}
		return err
	}
	return nil
}

// Get retrieves a record by its local identifier.
// Returns errors.ErrNotFound if the record does not exist.
func (s *Store) Get(ctx context.Context, table domain.Table, id string) (*domain.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table.String()+` WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByRemoteID retrieves a record by its remote identifier. Pulled records
// are matched this way, since remote-born rows never carry a natural key.
// Returns errors.ErrNotFound if no record maps to the identifier.
func (s *Store) GetByRemoteID(ctx context.Context, table domain.Table, remoteID string) (*domain.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table.String()+` WHERE remote_id = ?`, remoteID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns all records in a table, newest first, including soft-deleted
// rows.
func (s *Store) List(ctx context.Context, table domain.Table) ([]*domain.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table.String()+` ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetDirty returns all records awaiting a push, oldest edit first so that
// head-of-line staleness stays bounded.
func (s *Store) GetDirty(ctx context.Context, table domain.Table) ([]*domain.Record, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table.String()+`
		 WHERE sync_status != ? ORDER BY updated_at ASC`,
		string(domain.SyncStatusClean))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRecords(rows)
}

// MarkClean transitions the given records to clean after a confirmed remote
// acknowledgement and stamps last_synced_at. No-op on empty input.
//
// The guard on updated_at protects a concurrent local edit: if the record
// was re-dirtied with a newer timestamp while the push was in flight, the
// acknowledgement no longer covers it and it stays dirty.
func (s *Store) MarkClean(ctx context.Context, table domain.Table, recs []*domain.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		_, err := tx.ExecContext(ctx, `
			UPDATE `+table.String()+`
			SET sync_status = ?, last_synced_at = ?
			WHERE id = ? AND updated_at = ?`,
			string(domain.SyncStatusClean), now, rec.ID, formatTime(rec.UpdatedAt))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertRemote inserts or overwrites a record coming from the remote side.
// The result is always clean and stamped with last_synced_at. An existing
// local row is matched by remote identifier and keeps its natural key;
// remote-born rows are inserted under their remote identifier.
func (s *Store) UpsertRemote(ctx context.Context, table domain.Table, rec *domain.Record) error {
	if err := checkTable(table); err != nil {
		return err
	}

	now := time.Now().UTC()

	existing, err := s.GetByRemoteID(ctx, table, rec.RemoteID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return err
	}

	localID := rec.RemoteID
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = rec.UpdatedAt
	}
	if existing != nil {
		localID = existing.ID
		createdAt = existing.CreatedAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO `+table.String()+` (
			id, remote_id, user_id, payload, created_at, updated_at, deleted_at, sync_status, last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			sync_status = excluded.sync_status,
			last_synced_at = excluded.last_synced_at`,
		localID,
		rec.RemoteID,
		rec.UserID,
		string(rec.Payload),
		formatTime(createdAt),
		formatTime(rec.UpdatedAt),
		nullTimeString(rec.DeletedAt),
		string(domain.SyncStatusClean),
		formatTime(now),
	)
	return err
}

// SoftDelete marks a record deleted and dirty for the next push. Rows are
// never physically removed by a user action.
// Returns errors.ErrNotFound if the record does not exist.
func (s *Store) SoftDelete(ctx context.Context, table domain.Table, id string) error {
	if err := checkTable(table); err != nil {
		return err
	}

	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE `+table.String()+`
		SET deleted_at = ?, updated_at = ?, sync_status = ?
		WHERE id = ?`,
		now, now, string(domain.SyncStatusDirtyDelete), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func collectRecords(rows *sql.Rows) ([]*domain.Record, error) {
	var recs []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

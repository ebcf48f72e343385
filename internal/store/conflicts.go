package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
)

const conflictColumns = `id, table_name, record_id, local_version, remote_version, kind, resolution, detected_at, resolved_at`

func scanConflict(scanner interface{ Scan(dest ...any) error }) (*domain.ConflictRecord, error) {
	var c domain.ConflictRecord

	var (
		table      string
		local      string
		remote     string
		kind       string
		resolution string
		detectedAt string
		resolvedAt sql.NullString
	)

	err := scanner.Scan(
		&c.ID,
		&table,
		&c.RecordID,
		&local,
		&remote,
		&kind,
		&resolution,
		&detectedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Table = domain.Table(table)
	c.Local = []byte(local)
	c.Remote = []byte(remote)
	c.Kind = domain.ConflictKind(kind)
	c.Resolution = domain.ConflictResolution(resolution)

	c.DetectedAt, err = parseTime(detectedAt)
	if err != nil {
		return nil, err
	}
	c.ResolvedAt, err = parseNullableTime(resolvedAt)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// RecordConflict appends a conflict to the ledger. The underlying record is
// left untouched; it stays dirty until the conflict is resolved or a later
// push carries the local version forward.
func (s *Store) RecordConflict(ctx context.Context, table domain.Table, recordID string, local, remote []byte, kind domain.ConflictKind) error {
	if err := checkTable(table); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_conflicts (table_name, record_id, local_version, remote_version, kind, resolution, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		table.String(),
		recordID,
		string(local),
		string(remote),
		string(kind),
		string(domain.ResolutionUnresolved),
		formatTime(time.Now()),
	)
	return err
}

// GetConflict retrieves a conflict by id.
// Returns errors.ErrNotFound if it does not exist.
func (s *Store) GetConflict(ctx context.Context, id int64) (*domain.ConflictRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM sync_conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListUnresolvedConflicts returns all conflicts awaiting a user decision,
// oldest first.
func (s *Store) ListUnresolvedConflicts(ctx context.Context) ([]*domain.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+` FROM sync_conflicts
		WHERE resolution = ? ORDER BY detected_at ASC`,
		string(domain.ResolutionUnresolved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*domain.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return conflicts, nil
}

// CountUnresolvedConflicts returns the number of conflicts awaiting a user
// decision.
func (s *Store) CountUnresolvedConflicts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_conflicts WHERE resolution = ?`,
		string(domain.ResolutionUnresolved)).Scan(&n)
	return n, err
}

// ResolveConflict applies the chosen version and marks the conflict
// resolved.
//
// use_remote applies the stored remote version via UpsertRemote, leaving the
// record clean - no further push is needed for it. use_local writes the
// ledger's local version back over the row and re-dirties it, so the next
// push cycle re-asserts that version remotely even if a newer remote change
// overwrote the row while the conflict sat unresolved.
//
// Returns errors.ErrNotFound for an unknown conflict and a validation error
// for a resolution outside {use_local, use_remote} or a conflict already
// resolved.
func (s *Store) ResolveConflict(ctx context.Context, id int64, resolution domain.ConflictResolution) error {
	if !resolution.Valid() {
		return errors.Validationf("invalid conflict resolution %q", resolution)
	}

	c, err := s.GetConflict(ctx, id)
	if err != nil {
		return err
	}
	if c.Resolution != domain.ResolutionUnresolved {
		return errors.Validationf("conflict %d already resolved as %s", id, c.Resolution)
	}

	switch resolution {
	case domain.ResolutionUseRemote:
		var remote domain.Record
		if err := json.Unmarshal(c.Remote, &remote); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "decode stored remote version")
		}
		if err := s.UpsertRemote(ctx, c.Table, &remote); err != nil {
			return err
		}
	case domain.ResolutionUseLocal:
		var local domain.Record
		if err := json.Unmarshal(c.Local, &local); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "decode stored local version")
		}
		// A remote change may have overwritten the row while the conflict
		// sat unresolved, so the ledger's local version is written back,
		// not just re-dirtied in place. The fresh updated_at makes it win
		// the next reconciliation.
		status := domain.SyncStatusDirtyUpdate
		if local.SyncStatus == domain.SyncStatusDirtyDelete {
			status = domain.SyncStatusDirtyDelete
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE `+c.Table.String()+`
			SET payload = ?, deleted_at = ?, sync_status = ?, updated_at = ?
			WHERE id = ?`,
			string(local.Payload),
			nullTimeString(local.DeletedAt),
			string(status),
			formatTime(time.Now()),
			c.RecordID)
		if err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_conflicts SET resolution = ?, resolved_at = ? WHERE id = ?`,
		string(resolution), formatTime(time.Now()), id)
	return err
}

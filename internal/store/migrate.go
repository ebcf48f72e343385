package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
)

// schemaVersion is the version the embedded schema.sql produces.
//
// History:
//
//	v1 - legacy: record ids were folded string hashes, no remote_id column
//	v2 - identifier-space change: remote_id column, name-based UUIDs
//	v3 - last_synced_at on record tables, pending_push_count on sync_metadata
const schemaVersion = 3

// migrate brings an existing database up to schemaVersion. Additive steps
// tolerate being re-applied; the v1->v2 identifier-space upgrade discards
// local rows and therefore requires the destructive-migrations option.
func (s *Store) migrate() error {
	version, err := s.currentVersion()
	if err != nil {
		return errors.Wrap(err, errors.CodeMigration, "read schema version")
	}

	if version == 0 {
		legacy, err := s.isLegacySchema()
		if err != nil {
			return errors.Wrap(err, errors.CodeMigration, "detect legacy schema")
		}
		if legacy {
			version = 1
		} else {
			// Fresh database: schema.sql already produced the latest shape.
			return s.setVersion(schemaVersion)
		}
	}

	if version > schemaVersion {
		return errors.Migrationf("database schema version %d is newer than supported version %d", version, schemaVersion)
	}

	for v := version + 1; v <= schemaVersion; v++ {
		s.logger.Info("applying schema migration", "from", v-1, "to", v)
		var err error
		switch v {
		case 2:
			err = s.migrateIdentifierSpace()
		case 3:
			err = s.migrateSyncTracking()
		default:
			err = fmt.Errorf("no migration step for version %d", v)
		}
		if err != nil {
			return errors.Wrapf(err, errors.CodeMigration, "migrate schema to version %d", v)
		}
		if err := s.setVersion(v); err != nil {
			return errors.Wrapf(err, errors.CodeMigration, "record schema version %d", v)
		}
	}

	return nil
}

// currentVersion returns the recorded schema version, or 0 if none.
func (s *Store) currentVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (s *Store) setVersion(v int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM schema_version`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, v); err != nil {
		return err
	}
	return tx.Commit()
}

// isLegacySchema reports whether the scans table predates the identifier
// rework (no remote_id column means a v1 database).
func (s *Store) isLegacySchema() (bool, error) {
	has, err := s.hasColumn("scans", "remote_id")
	if err != nil {
		return false, err
	}
	return !has, nil
}

func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &defaultVal, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// migrateIdentifierSpace replaces the legacy hash-based identifier tables
// with the UUID-keyed shape. There is no mapping from the old identifiers
// to the new ones, so every legacy row - including unsynced local edits -
// is discarded. That is an operator decision, not a default: without the
// destructive-migrations option this step refuses and the store stays
// closed.
func (s *Store) migrateIdentifierSpace() error {
	discarded := 0
	for _, table := range domain.SyncableTables {
		var n int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM ` + table.String()).Scan(&n); err != nil {
			return fmt.Errorf("count legacy rows in %s: %w", table, err)
		}
		discarded += n
	}

	if !s.allowDestructive {
		return errors.Migrationf(
			"legacy schema v1 detected: upgrading discards %d local record(s); re-run with destructive migrations enabled to proceed",
			discarded)
	}

	s.logger.Warn("destructive schema migration: discarding legacy records",
		"discarded_records", discarded,
		"reason", "identifier space change (v1 hash ids -> name-based UUIDs)")

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range domain.SyncableTables {
		if _, err := tx.Exec(`DROP TABLE IF EXISTS ` + table.String()); err != nil {
			return fmt.Errorf("drop legacy table %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Recreate the record tables at the current shape.
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("recreate record tables: %w", err)
	}
	return nil
}

// migrateSyncTracking adds the sync bookkeeping columns introduced in v3.
// Each ALTER tolerates "already applied" so a partially migrated database
// can resume.
func (s *Store) migrateSyncTracking() error {
	stmts := []string{
		`ALTER TABLE scans ADD COLUMN last_synced_at TEXT`,
		`ALTER TABLE diagnoses ADD COLUMN last_synced_at TEXT`,
		`ALTER TABLE recommendations ADD COLUMN last_synced_at TEXT`,
		`ALTER TABLE sync_metadata ADD COLUMN pending_push_count INTEGER NOT NULL DEFAULT 0`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

package store

import (
	"context"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

// GetStatistics returns the per-table observability snapshot: total rows,
// clean rows, dirty rows by kind, and soft-deleted rows. Soft-deleted rows
// stay in the total; deletion never removes a row from these counts.
func (s *Store) GetStatistics(ctx context.Context) ([]domain.TableStatistics, error) {
	stats := make([]domain.TableStatistics, 0, len(domain.SyncableTables))

	for _, table := range domain.SyncableTables {
		st := domain.TableStatistics{Table: table}

		err := s.db.QueryRowContext(ctx, `
			SELECT
				COUNT(*),
				COUNT(*) FILTER (WHERE sync_status = 'clean'),
				COUNT(*) FILTER (WHERE sync_status = 'dirty_create'),
				COUNT(*) FILTER (WHERE sync_status = 'dirty_update'),
				COUNT(*) FILTER (WHERE sync_status = 'dirty_delete'),
				COUNT(*) FILTER (WHERE deleted_at IS NOT NULL)
			FROM `+table.String()).Scan(
			&st.Total, &st.Clean, &st.DirtyCreate, &st.DirtyUpdate, &st.DirtyDelete, &st.SoftDeleted)
		if err != nil {
			return nil, err
		}

		stats = append(stats, st)
	}

	return stats, nil
}

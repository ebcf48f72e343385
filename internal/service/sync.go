package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
	"github.com/leafwise/leafwise-sync/internal/gateway"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/resolver"
	"github.com/leafwise/leafwise-sync/internal/store"
)

const defaultBatchSize = 50

// Gateway is the remote side of a sync cycle.
type Gateway interface {
	ProbeAvailability(ctx context.Context) error
	Identity(ctx context.Context) (*gateway.Identity, error)
	RegisterDevice(ctx context.Context, deviceName string) (*gateway.Identity, error)
	Push(ctx context.Context, table domain.Table, records []*domain.Record) ([]gateway.PushResult, error)
	Pull(ctx context.Context, table domain.Table, since *time.Time) ([]*domain.Record, time.Time, error)
}

// SyncService runs sync cycles against the remote backend. At most one cycle
// is active at a time; a second caller gets an AlreadyActive result instead
// of a second cycle.
type SyncService struct {
	store     *store.Store
	gw        Gateway
	resolver  *resolver.Resolver
	mapper    *identity.Mapper
	logger    *slog.Logger
	batchSize int

	active        atomic.Bool
	identityReady atomic.Bool

	mu         sync.Mutex
	state      domain.SyncState
	lastResult *domain.SyncResult
}

// NewSyncService creates a sync service.
func NewSyncService(st *store.Store, gw Gateway, res *resolver.Resolver, mapper *identity.Mapper, batchSize int, logger *slog.Logger) *SyncService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SyncService{
		store:     st,
		gw:        gw,
		resolver:  res,
		mapper:    mapper,
		logger:    logger,
		batchSize: batchSize,
		state:     domain.SyncStateIdle,
	}
}

// State returns the engine's current lifecycle state.
func (s *SyncService) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SyncService) setState(state domain.SyncState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// LastResult returns the most recent completed cycle, or nil before the
// first one.
func (s *SyncService) LastResult() *domain.SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// SyncNow runs one full sync cycle: probe the backend, push every table's
// dirty records in dependency order, then pull every table's remote changes
// in the same order. A failure in one table is recorded and the cycle moves
// on; only an unreachable backend aborts the whole cycle.
func (s *SyncService) SyncNow(ctx context.Context) *domain.SyncResult {
	result := &domain.SyncResult{StartedAt: time.Now().UTC()}

	if !s.active.CompareAndSwap(false, true) {
		result.AlreadyActive = true
		return result
	}
	defer s.active.Store(false)

	s.setState(domain.SyncStateSyncing)
	s.logger.Info("sync cycle started")

	if err := s.gw.ProbeAvailability(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("backend unreachable: %v", err))
		s.finish(result)
		return result
	}

	if err := s.ensureIdentity(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("establish identity: %v", err))
		s.finish(result)
		return result
	}

	// Push phase. Tables are ordered parents first so the backend never
	// sees a diagnosis before its scan.
	for _, table := range domain.SyncableTables {
		pushed, failed, err := s.pushTable(ctx, table)
		result.PushedCount += pushed
		result.FailedCount += failed
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("push %s: %v", table, err))
		}
	}

	// Pull phase, same order.
	for _, table := range domain.SyncableTables {
		pulled, conflicts, err := s.pullTable(ctx, table)
		result.PulledCount += pulled
		result.ConflictCount += conflicts
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("pull %s: %v", table, err))
		}
	}

	s.finish(result)
	return result
}

// ensureIdentity confirms the backend knows this device, registering it on
// first contact. Once established, later cycles skip the round trip.
func (s *SyncService) ensureIdentity(ctx context.Context) error {
	if s.identityReady.Load() {
		return nil
	}

	ident, err := s.gw.Identity(ctx)
	if errors.Is(err, errors.ErrNotFound) {
		name, herr := os.Hostname()
		if herr != nil || name == "" {
			name = "leafwise-device"
		}
		s.logger.Info("device unknown to backend, registering", "device_name", name)
		ident, err = s.gw.RegisterDevice(ctx, name)
	}
	if err != nil {
		return err
	}

	s.logger.Info("remote identity established",
		"user_id", ident.UserID,
		"device_id", ident.DeviceID,
	)
	s.identityReady.Store(true)
	return nil
}

func (s *SyncService) finish(result *domain.SyncResult) {
	result.Duration = time.Since(result.StartedAt)
	result.Success = len(result.Errors) == 0

	s.mu.Lock()
	s.lastResult = result
	if result.Success {
		s.state = domain.SyncStateIdle
	} else {
		s.state = domain.SyncStateFailed
	}
	s.mu.Unlock()

	s.logger.Info("sync cycle finished",
		"success", result.Success,
		"pushed", result.PushedCount,
		"pulled", result.PulledCount,
		"failed", result.FailedCount,
		"conflicts", result.ConflictCount,
		"duration", result.Duration,
		"errors", len(result.Errors),
	)
}

// pushTable uploads a table's dirty records in batches. Acknowledged records
// are marked clean; rejected ones stay dirty for the next cycle.
func (s *SyncService) pushTable(ctx context.Context, table domain.Table) (pushed, failed int, err error) {
	dirty, err := s.store.GetDirty(ctx, table)
	if err != nil {
		return 0, 0, err
	}
	if len(dirty) == 0 {
		return 0, 0, s.updatePushMetadata(ctx, table, 0)
	}

	for start := 0; start < len(dirty); start += s.batchSize {
		end := min(start+s.batchSize, len(dirty))
		batch := dirty[start:end]

		wire, werr := s.toWire(table, batch)
		if werr != nil {
			s.failPushMetadata(ctx, table, failed+len(dirty)-start, werr)
			return pushed, failed + len(dirty) - start, werr
		}

		results, perr := s.gw.Push(ctx, table, wire)
		if perr != nil {
			// Unacknowledged records stay dirty; the batch is replayed
			// next cycle because the remote upsert is idempotent.
			s.failPushMetadata(ctx, table, failed+len(dirty)-start, perr)
			return pushed, failed + len(dirty) - start, perr
		}

		acked := make(map[string]bool, len(results))
		for _, r := range results {
			if r.OK() {
				acked[r.RemoteID] = true
			} else {
				s.logger.Warn("record rejected by backend",
					"table", table,
					"remote_id", r.RemoteID,
					"reason", r.Message,
				)
			}
		}

		clean := make([]*domain.Record, 0, len(batch))
		for _, rec := range batch {
			if acked[rec.RemoteID] {
				clean = append(clean, rec)
			}
		}
		if err := s.store.MarkClean(ctx, table, clean); err != nil {
			s.failPushMetadata(ctx, table, failed+len(dirty)-start, err)
			return pushed, failed + len(dirty) - start, err
		}

		pushed += len(clean)
		failed += len(batch) - len(clean)
	}

	return pushed, failed, s.updatePushMetadata(ctx, table, failed)
}

// toWire clones records for transmission, rewriting payload references into
// the remote identifier space. Local rows are never mutated.
func (s *SyncService) toWire(table domain.Table, records []*domain.Record) ([]*domain.Record, error) {
	wire := make([]*domain.Record, 0, len(records))
	for _, rec := range records {
		clone := rec.Clone()
		payload, err := s.mapper.TransformPayload(table, clone.Payload)
		if err != nil {
			return nil, fmt.Errorf("transform payload of %s: %w", rec.ID, err)
		}
		clone.Payload = payload
		wire = append(wire, clone)
	}
	return wire, nil
}

func (s *SyncService) updatePushMetadata(ctx context.Context, table domain.Table, pending int) error {
	meta, err := s.store.GetSyncMetadata(ctx, table)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	meta.LastPushAt = &now
	meta.PendingPushCount = pending
	meta.Status = domain.SyncStateIdle
	meta.ErrorMessage = ""
	return s.store.SaveSyncMetadata(ctx, meta)
}

// failPushMetadata records a push-phase failure on the table's bookkeeping
// row so it stays visible even when the pull phase later succeeds.
func (s *SyncService) failPushMetadata(ctx context.Context, table domain.Table, pending int, cause error) {
	meta, err := s.store.GetSyncMetadata(ctx, table)
	if err != nil {
		s.logger.Error("load sync metadata", "table", table, "error", err)
		return
	}
	meta.Status = domain.SyncStateFailed
	meta.ErrorMessage = cause.Error()
	meta.PendingPushCount = pending
	if err := s.store.SaveSyncMetadata(ctx, meta); err != nil {
		s.logger.Error("save sync metadata", "table", table, "error", err)
	}
}

// pullTable fetches remote changes since the table's watermark and
// reconciles each against local state. The watermark advances to the
// backend's clock only after every record of the delta has been handled, so
// a failed pull is retried from the same point.
func (s *SyncService) pullTable(ctx context.Context, table domain.Table) (pulled, conflicts int, err error) {
	meta, err := s.store.GetSyncMetadata(ctx, table)
	if err != nil {
		return 0, 0, err
	}

	records, watermark, err := s.gw.Pull(ctx, table, meta.LastPullAt)
	if err != nil {
		s.failTable(ctx, meta, err)
		return 0, 0, err
	}

	for _, remote := range records {
		applied, conflicted, err := s.reconcile(ctx, table, remote)
		if err != nil {
			s.failTable(ctx, meta, err)
			return pulled, conflicts, err
		}
		if applied {
			pulled++
		}
		if conflicted {
			conflicts++
		}
	}

	now := time.Now().UTC()
	meta.LastPullAt = &watermark
	meta.LastSyncAt = &now
	// A failed status set by this cycle's push phase is kept; a clean pull
	// does not absolve a failed push.
	if meta.Status != domain.SyncStateFailed {
		meta.Status = domain.SyncStateIdle
		meta.ErrorMessage = ""
	}
	if err := s.store.SaveSyncMetadata(ctx, meta); err != nil {
		return pulled, conflicts, err
	}
	return pulled, conflicts, nil
}

// reconcile applies one pulled record or records a conflict.
func (s *SyncService) reconcile(ctx context.Context, table domain.Table, remote *domain.Record) (applied, conflicted bool, err error) {
	local, err := s.store.GetByRemoteID(ctx, table, remote.RemoteID)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			return false, false, err
		}
		local = nil
	}

	decision := s.resolver.Evaluate(table, local, remote)
	switch decision.Action {
	case resolver.ActionApplyRemote:
		if err := s.store.UpsertRemote(ctx, table, remote); err != nil {
			return false, false, err
		}
		return true, false, nil
	case resolver.ActionConflict:
		localJSON, remoteJSON, jerr := encodeVersions(local, remote)
		if jerr != nil {
			return false, false, jerr
		}
		if err := s.store.RecordConflict(ctx, table, local.ID, localJSON, remoteJSON, decision.Kind); err != nil {
			return false, false, err
		}
		return false, true, nil
	default:
		return false, false, errors.Internalf("unknown resolver action %d", decision.Action)
	}
}

// encodeVersions serializes both sides of a conflict for the ledger.
func encodeVersions(local, remote *domain.Record) ([]byte, []byte, error) {
	localJSON, err := json.Marshal(local)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "encode local version")
	}
	remoteJSON, err := json.Marshal(remote)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.CodeInternal, "encode remote version")
	}
	return localJSON, remoteJSON, nil
}

func (s *SyncService) failTable(ctx context.Context, meta *domain.SyncMetadata, cause error) {
	meta.Status = domain.SyncStateFailed
	meta.ErrorMessage = cause.Error()
	if err := s.store.SaveSyncMetadata(ctx, meta); err != nil {
		s.logger.Error("save sync metadata", "table", meta.Table, "error", err)
	}
}

// EngineStatus is the control API's view of the engine.
type EngineStatus struct {
	State               domain.SyncState       `json:"state"`
	Tables              []*domain.SyncMetadata `json:"tables"`
	UnresolvedConflicts int                    `json:"unresolved_conflicts"`
	LastResult          *domain.SyncResult     `json:"last_result,omitempty"`
}

// Status assembles the engine state, per-table bookkeeping, and the
// unresolved conflict count.
func (s *SyncService) Status(ctx context.Context) (*EngineStatus, error) {
	status := &EngineStatus{
		State:      s.State(),
		LastResult: s.LastResult(),
	}

	for _, table := range domain.SyncableTables {
		meta, err := s.store.GetSyncMetadata(ctx, table)
		if err != nil {
			return nil, err
		}
		status.Tables = append(status.Tables, meta)
	}

	n, err := s.store.CountUnresolvedConflicts(ctx)
	if err != nil {
		return nil, err
	}
	status.UnresolvedConflicts = n
	return status, nil
}

// Statistics returns the per-table record counts.
func (s *SyncService) Statistics(ctx context.Context) ([]domain.TableStatistics, error) {
	return s.store.GetStatistics(ctx)
}

// ListConflicts returns conflicts awaiting a decision, oldest first.
func (s *SyncService) ListConflicts(ctx context.Context) ([]*domain.ConflictRecord, error) {
	return s.store.ListUnresolvedConflicts(ctx)
}

// ResolveConflict applies the user's decision and immediately runs a sync
// cycle so the outcome propagates without waiting for the next scheduled
// one. The cycle result is returned alongside; if a cycle was already
// running the decision still took effect locally.
func (s *SyncService) ResolveConflict(ctx context.Context, conflictID int64, resolution domain.ConflictResolution) (*domain.SyncResult, error) {
	if err := s.store.ResolveConflict(ctx, conflictID, resolution); err != nil {
		return nil, err
	}
	s.logger.Info("conflict resolved", "conflict_id", conflictID, "resolution", resolution)
	return s.SyncNow(ctx), nil
}

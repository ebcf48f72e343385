package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/service"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/status",
		Summary:     "Get sync status",
		Description: "Returns engine state, per-table progress, and the unresolved conflict count",
		Tags:        []string{"Sync"},
	}, s.handleGetSyncStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "triggerSync",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/now",
		Summary:     "Trigger a sync cycle",
		Description: "Runs one push-then-pull cycle and returns its result. If a cycle is already running the result is flagged already_active.",
		Tags:        []string{"Sync"},
	}, s.handleTriggerSync)

	huma.Register(s.api, huma.Operation{
		OperationID: "listConflicts",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/conflicts",
		Summary:     "List unresolved conflicts",
		Description: "Returns conflicts awaiting a decision, oldest first",
		Tags:        []string{"Sync"},
	}, s.handleListConflicts)

	huma.Register(s.api, huma.Operation{
		OperationID: "resolveConflict",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/conflicts/{id}/resolve",
		Summary:     "Resolve a conflict",
		Description: "Applies the user's decision and immediately runs a sync cycle to propagate it",
		Tags:        []string{"Sync"},
	}, s.handleResolveConflict)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncStatistics",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/statistics",
		Summary:     "Get sync statistics",
		Description: "Returns per-table record counts by sync status",
		Tags:        []string{"Sync"},
	}, s.handleGetSyncStatistics)
}

// === DTOs ===

// SyncStatusOutput wraps the engine status for Huma.
type SyncStatusOutput struct {
	Body service.EngineStatus
}

// SyncResultOutput wraps a cycle result for Huma.
type SyncResultOutput struct {
	Body domain.SyncResult
}

// ConflictResponse contains one unresolved conflict. Local and Remote are
// the serialized record versions captured at detection time.
type ConflictResponse struct {
	ID         int64           `json:"id" doc:"Conflict ID"`
	Table      string          `json:"table" doc:"Table the record belongs to"`
	RecordID   string          `json:"record_id" doc:"Natural key of the conflicted record"`
	Local      json.RawMessage `json:"local" doc:"Local record version at detection time"`
	Remote     json.RawMessage `json:"remote" doc:"Remote record version at detection time"`
	Kind       string          `json:"kind" doc:"Conflict kind: update_conflict or delete_conflict"`
	DetectedAt time.Time       `json:"detected_at" doc:"When the conflict was detected"`
}

// ConflictsResponse contains the unresolved conflicts.
type ConflictsResponse struct {
	Conflicts []ConflictResponse `json:"conflicts" doc:"Unresolved conflicts, oldest first"`
}

// ConflictsOutput wraps the conflicts response for Huma.
type ConflictsOutput struct {
	Body ConflictsResponse
}

// ResolveConflictInput contains the conflict ID and the user's decision.
type ResolveConflictInput struct {
	ID   int64 `path:"id" doc:"Conflict ID"`
	Body struct {
		Resolution string `json:"resolution" enum:"use_local,use_remote" doc:"Which version wins"`
	}
}

// SyncStatisticsResponse contains per-table record counts.
type SyncStatisticsResponse struct {
	Tables []domain.TableStatistics `json:"tables" doc:"Per-table counts by sync status"`
}

// SyncStatisticsOutput wraps the statistics response for Huma.
type SyncStatisticsOutput struct {
	Body SyncStatisticsResponse
}

// === Handlers ===

func (s *Server) handleGetSyncStatus(ctx context.Context, _ *struct{}) (*SyncStatusOutput, error) {
	status, err := s.sync.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncStatusOutput{Body: *status}, nil
}

func (s *Server) handleTriggerSync(ctx context.Context, _ *struct{}) (*SyncResultOutput, error) {
	result := s.sync.SyncNow(ctx)
	return &SyncResultOutput{Body: *result}, nil
}

func (s *Server) handleListConflicts(ctx context.Context, _ *struct{}) (*ConflictsOutput, error) {
	conflicts, err := s.sync.ListConflicts(ctx)
	if err != nil {
		return nil, err
	}

	resp := make([]ConflictResponse, len(conflicts))
	for i, c := range conflicts {
		resp[i] = ConflictResponse{
			ID:         c.ID,
			Table:      string(c.Table),
			RecordID:   c.RecordID,
			Local:      json.RawMessage(c.Local),
			Remote:     json.RawMessage(c.Remote),
			Kind:       string(c.Kind),
			DetectedAt: c.DetectedAt,
		}
	}

	return &ConflictsOutput{Body: ConflictsResponse{Conflicts: resp}}, nil
}

func (s *Server) handleResolveConflict(ctx context.Context, input *ResolveConflictInput) (*SyncResultOutput, error) {
	result, err := s.sync.ResolveConflict(ctx, input.ID, domain.ConflictResolution(input.Body.Resolution))
	if err != nil {
		return nil, err
	}
	return &SyncResultOutput{Body: *result}, nil
}

func (s *Server) handleGetSyncStatistics(ctx context.Context, _ *struct{}) (*SyncStatisticsOutput, error) {
	stats, err := s.sync.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	return &SyncStatisticsOutput{Body: SyncStatisticsResponse{Tables: stats}}, nil
}

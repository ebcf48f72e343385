package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/service"
)

func createTestScan(t *testing.T, ts *testServer) *domain.Record {
	t.Helper()

	scan, err := ts.records.CreateScan(context.Background(), "user-1", domain.ScanPayload{
		CropType:   "maize",
		ImagePath:  "/img/leaf-001.jpg",
		CapturedAt: "2024-03-01T12:00:00Z",
	})
	require.NoError(t, err)
	return scan
}

// seedTestConflict records a conflict for a freshly created scan and returns
// the conflict's remote version payload.
func seedTestConflict(t *testing.T, ts *testServer) (*domain.Record, int64) {
	t.Helper()
	ctx := context.Background()

	scan := createTestScan(t, ts)

	remote := scan.Clone()
	remote.SyncStatus = domain.SyncStatusClean
	remote.Payload = json.RawMessage(`{"crop_type":"maize","image_path":"/img/leaf-001.jpg","captured_at":"2024-03-01T12:00:00Z","notes":"edited elsewhere"}`)

	localJSON, err := json.Marshal(scan)
	require.NoError(t, err)
	remoteJSON, err := json.Marshal(remote)
	require.NoError(t, err)

	require.NoError(t, ts.store.RecordConflict(ctx, domain.TableScans, scan.ID, localJSON, remoteJSON, domain.ConflictKindUpdate))

	conflicts, err := ts.store.ListUnresolvedConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	return scan, conflicts[0].ID
}

func TestGetSyncStatus(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/sync/status")
	require.Equal(t, http.StatusOK, resp.Code)

	var status service.EngineStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &status))

	assert.Equal(t, domain.SyncStateIdle, status.State)
	assert.Len(t, status.Tables, len(domain.SyncableTables))
	assert.Zero(t, status.UnresolvedConflicts)
	assert.Nil(t, status.LastResult)
}

func TestTriggerSync(t *testing.T) {
	ts := setupTestServer(t)
	scan := createTestScan(t, ts)

	resp := ts.api.Post("/api/v1/sync/now")
	require.Equal(t, http.StatusOK, resp.Code)

	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.PushedCount)

	stored, err := ts.store.Get(context.Background(), domain.TableScans, scan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusClean, stored.SyncStatus)
}

func TestTriggerSync_BackendUnreachable(t *testing.T) {
	ts := setupTestServer(t)
	ts.gw.probeErr = fmt.Errorf("dial tcp: no route to host")

	resp := ts.api.Post("/api/v1/sync/now")
	require.Equal(t, http.StatusOK, resp.Code)

	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestListConflicts_Empty(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Get("/api/v1/sync/conflicts")
	require.Equal(t, http.StatusOK, resp.Code)

	var body ConflictsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Empty(t, body.Conflicts)
}

func TestResolveConflict(t *testing.T) {
	ts := setupTestServer(t)
	scan, conflictID := seedTestConflict(t, ts)

	resp := ts.api.Get("/api/v1/sync/conflicts")
	require.Equal(t, http.StatusOK, resp.Code)

	var body ConflictsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, scan.ID, body.Conflicts[0].RecordID)
	assert.Equal(t, string(domain.ConflictKindUpdate), body.Conflicts[0].Kind)

	resp = ts.api.Post(fmt.Sprintf("/api/v1/sync/conflicts/%d/resolve", conflictID),
		map[string]any{"resolution": "use_remote"})
	require.Equal(t, http.StatusOK, resp.Code)

	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.True(t, result.Success)

	// The decision took effect and the conflict left the queue.
	resp = ts.api.Get("/api/v1/sync/conflicts")
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Empty(t, body.Conflicts)

	stored, err := ts.store.Get(context.Background(), domain.TableScans, scan.ID)
	require.NoError(t, err)
	var p domain.ScanPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &p))
	assert.Equal(t, "edited elsewhere", p.Notes)
}

func TestResolveConflict_NotFound(t *testing.T) {
	ts := setupTestServer(t)

	resp := ts.api.Post("/api/v1/sync/conflicts/99999/resolve",
		map[string]any{"resolution": "use_local"})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestResolveConflict_InvalidResolution(t *testing.T) {
	ts := setupTestServer(t)
	_, conflictID := seedTestConflict(t, ts)

	resp := ts.api.Post(fmt.Sprintf("/api/v1/sync/conflicts/%d/resolve", conflictID),
		map[string]any{"resolution": "discard"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestGetSyncStatistics(t *testing.T) {
	ts := setupTestServer(t)
	createTestScan(t, ts)

	resp := ts.api.Get("/api/v1/sync/statistics")
	require.Equal(t, http.StatusOK, resp.Code)

	var body SyncStatisticsResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Tables, len(domain.SyncableTables))

	assert.Equal(t, domain.TableScans, body.Tables[0].Table)
	assert.Equal(t, 1, body.Tables[0].Total)
	assert.Equal(t, 1, body.Tables[0].DirtyCreate)
}

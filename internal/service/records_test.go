package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/store"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

type recordFixture struct {
	store   *store.Store
	mapper  *identity.Mapper
	service *RecordService
}

func newRecordFixture(t *testing.T) *recordFixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	st, err := store.Open(filepath.Join(t.TempDir(), "records.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mapper := identity.NewMapper()
	svc := NewRecordService(st, mapper, validation.New(), logger)
	return &recordFixture{store: st, mapper: mapper, service: svc}
}

func validScanPayload() domain.ScanPayload {
	return domain.ScanPayload{
		CropType:   "maize",
		ImagePath:  "/img/leaf-001.jpg",
		Latitude:   -1.29,
		Longitude:  36.82,
		CapturedAt: "2024-03-01T12:00:00Z",
	}
}

func TestCreateScan(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	rec, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rec.ID, "scan-"))
	assert.Equal(t, f.mapper.RemoteID(rec.ID), rec.RemoteID)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, domain.SyncStatusDirtyCreate, rec.SyncStatus)

	stored, err := f.store.Get(ctx, domain.TableScans, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusDirtyCreate, stored.SyncStatus)

	var p domain.ScanPayload
	require.NoError(t, json.Unmarshal(stored.Payload, &p))
	assert.Equal(t, "maize", p.CropType)
}

func TestCreateScanValidation(t *testing.T) {
	f := newRecordFixture(t)

	p := validScanPayload()
	p.CropType = ""

	_, err := f.service.CreateScan(context.Background(), "u1", p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAttachDiagnosis(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	scan, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)

	diag, err := f.service.AttachDiagnosis(ctx, "u1", scan.ID, domain.DiagnosisPayload{
		Disease:    "leaf_rust",
		Confidence: 0.93,
		Severity:   "high",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(diag.ID, "diag-"))
	assert.Equal(t, f.mapper.DiagnosisID(scan.ID), diag.RemoteID)

	var p domain.DiagnosisPayload
	require.NoError(t, json.Unmarshal(diag.Payload, &p))
	assert.Equal(t, scan.ID, p.ScanID, "payload references the owning scan by natural key")

	// A scan carries at most one diagnosis: the derived remote identifier
	// collides.
	_, err = f.service.AttachDiagnosis(ctx, "u1", scan.ID, domain.DiagnosisPayload{
		Disease:    "blight",
		Confidence: 0.5,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestAttachDiagnosisMissingScan(t *testing.T) {
	f := newRecordFixture(t)

	_, err := f.service.AttachDiagnosis(context.Background(), "u1", "scan-missing", domain.DiagnosisPayload{
		Disease:    "leaf_rust",
		Confidence: 0.9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestAttachDiagnosisDeletedScan(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	scan, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)
	require.NoError(t, f.service.Delete(ctx, domain.TableScans, scan.ID))

	_, err = f.service.AttachDiagnosis(ctx, "u1", scan.ID, domain.DiagnosisPayload{
		Disease:    "leaf_rust",
		Confidence: 0.9,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAttachRecommendation(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	scan, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)

	rec, err := f.service.AttachRecommendation(ctx, "u1", scan.ID, domain.RecommendationPayload{
		Treatment:  "copper fungicide",
		Fertilizer: "NPK 17-17-17",
		Dosage:     "2ml per litre",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(rec.ID, "rec-"))
	assert.Equal(t, f.mapper.RecommendationID(scan.ID), rec.RemoteID)
}

func TestUpdate(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	scan, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)

	p := validScanPayload()
	p.Notes = "underside spotting visible"
	payload, _ := json.Marshal(p)

	updated, err := f.service.Update(ctx, domain.TableScans, scan.ID, payload)
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.After(scan.CreatedAt) || updated.UpdatedAt.Equal(scan.CreatedAt))
	assert.True(t, updated.SyncStatus.IsDirty())

	// Malformed and invalid payloads are rejected before touching the store.
	_, err = f.service.Update(ctx, domain.TableScans, scan.ID, []byte(`{not json`))
	assert.True(t, errors.Is(err, errors.ErrValidation))

	bad := validScanPayload()
	bad.Latitude = 300
	badPayload, _ := json.Marshal(bad)
	_, err = f.service.Update(ctx, domain.TableScans, scan.ID, badPayload)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestDeleteAndList(t *testing.T) {
	f := newRecordFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)
	second, err := f.service.CreateScan(ctx, "u1", validScanPayload())
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, domain.TableScans, first.ID))

	// The tombstone is hidden from listings but still present in the store.
	live, err := f.service.List(ctx, domain.TableScans)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, second.ID, live[0].ID)

	stored, err := f.store.Get(ctx, domain.TableScans, first.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.DeletedAt)
	assert.Equal(t, domain.SyncStatusDirtyDelete, stored.SyncStatus)
}

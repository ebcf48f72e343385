package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
	"github.com/leafwise/leafwise-sync/internal/id"
	"github.com/leafwise/leafwise-sync/internal/identity"
	"github.com/leafwise/leafwise-sync/internal/store"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

// RecordService is the local write path. Every mutation lands in the store
// as a dirty record; the sync engine picks it up on the next cycle. Nothing
// here ever talks to the network.
type RecordService struct {
	store     *store.Store
	mapper    *identity.Mapper
	validator *validation.Validator
	logger    *slog.Logger
}

// NewRecordService creates a record service.
func NewRecordService(st *store.Store, mapper *identity.Mapper, validator *validation.Validator, logger *slog.Logger) *RecordService {
	return &RecordService{
		store:     st,
		mapper:    mapper,
		validator: validator,
		logger:    logger,
	}
}

// CreateScan stores a new leaf scan. The natural key is minted here and the
// remote identifier derived from it immediately, so the record's remote
// identity is fixed before it ever reaches the network.
func (s *RecordService) CreateScan(ctx context.Context, userID string, p domain.ScanPayload) (*domain.Record, error) {
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	key, err := id.Generate("scan")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "mint scan key")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode scan payload")
	}

	rec := &domain.Record{
		Syncable: domain.Syncable{ID: key},
		RemoteID: s.mapper.RemoteID(key),
		UserID:   userID,
		Payload:  payload,
	}
	rec.InitTimestamps()

	if err := s.store.Put(ctx, domain.TableScans, rec); err != nil {
		return nil, err
	}

	s.logger.Info("scan captured",
		"scan_id", rec.ID,
		"crop_type", p.CropType,
	)
	return rec, nil
}

// AttachDiagnosis stores the diagnosis for a scan. A scan carries at most
// one diagnosis; its remote identifier is derived from the scan's natural
// key, so attaching a second one collides on the remote identifier and
// returns an already-exists error.
func (s *RecordService) AttachDiagnosis(ctx context.Context, userID, scanKey string, p domain.DiagnosisPayload) (*domain.Record, error) {
	p.ScanID = scanKey
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	scan, err := s.store.Get(ctx, domain.TableScans, scanKey)
	if err != nil {
		return nil, err
	}
	if scan.IsDeleted() {
		return nil, errors.Validationf("scan %s is deleted", scanKey)
	}

	key, err := id.Generate("diag")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "mint diagnosis key")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode diagnosis payload")
	}

	rec := &domain.Record{
		Syncable: domain.Syncable{ID: key},
		RemoteID: s.mapper.DiagnosisID(scanKey),
		UserID:   userID,
		Payload:  payload,
	}
	rec.InitTimestamps()

	if err := s.store.Put(ctx, domain.TableDiagnoses, rec); err != nil {
		return nil, err
	}

	s.logger.Info("diagnosis attached",
		"diagnosis_id", rec.ID,
		"scan_id", scanKey,
		"disease", p.Disease,
		"confidence", p.Confidence,
	)
	return rec, nil
}

// AttachRecommendation stores the treatment recommendation for a scan. Like
// diagnoses, a scan carries at most one recommendation.
func (s *RecordService) AttachRecommendation(ctx context.Context, userID, scanKey string, p domain.RecommendationPayload) (*domain.Record, error) {
	p.ScanID = scanKey
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	scan, err := s.store.Get(ctx, domain.TableScans, scanKey)
	if err != nil {
		return nil, err
	}
	if scan.IsDeleted() {
		return nil, errors.Validationf("scan %s is deleted", scanKey)
	}

	key, err := id.Generate("rec")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "mint recommendation key")
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode recommendation payload")
	}

	rec := &domain.Record{
		Syncable: domain.Syncable{ID: key},
		RemoteID: s.mapper.RecommendationID(scanKey),
		UserID:   userID,
		Payload:  payload,
	}
	rec.InitTimestamps()

	if err := s.store.Put(ctx, domain.TableRecommendations, rec); err != nil {
		return nil, err
	}

	s.logger.Info("recommendation attached",
		"recommendation_id", rec.ID,
		"scan_id", scanKey,
		"treatment", p.Treatment,
	)
	return rec, nil
}

// Update replaces a record's payload. The payload is validated against the
// table's schema before it is stored.
func (s *RecordService) Update(ctx context.Context, table domain.Table, recordID string, payload json.RawMessage) (*domain.Record, error) {
	if err := s.validatePayload(table, payload); err != nil {
		return nil, err
	}

	rec, err := s.store.Get(ctx, table, recordID)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted() {
		return nil, errors.Validationf("record %s is deleted", recordID)
	}

	rec.Payload = payload
	rec.Touch()

	if err := s.store.Put(ctx, table, rec); err != nil {
		return nil, err
	}

	s.logger.Info("record updated", "table", table, "record_id", recordID)
	return rec, nil
}

// Delete soft-deletes a record. The row stays in the store as a tombstone
// until its deletion has been pushed and pulled everywhere.
func (s *RecordService) Delete(ctx context.Context, table domain.Table, recordID string) error {
	if err := s.store.SoftDelete(ctx, table, recordID); err != nil {
		return err
	}
	s.logger.Info("record deleted", "table", table, "record_id", recordID)
	return nil
}

// Get returns one record by its natural key.
func (s *RecordService) Get(ctx context.Context, table domain.Table, recordID string) (*domain.Record, error) {
	return s.store.Get(ctx, table, recordID)
}

// List returns all live records of a table, newest first. Tombstones are
// filtered out; they exist only for the sync engine.
func (s *RecordService) List(ctx context.Context, table domain.Table) ([]*domain.Record, error) {
	all, err := s.store.List(ctx, table)
	if err != nil {
		return nil, err
	}
	live := make([]*domain.Record, 0, len(all))
	for _, rec := range all {
		if !rec.IsDeleted() {
			live = append(live, rec)
		}
	}
	return live, nil
}

func (s *RecordService) validatePayload(table domain.Table, payload json.RawMessage) error {
	switch table {
	case domain.TableScans:
		var p domain.ScanPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return errors.Validationf("malformed scan payload: %v", err)
		}
		return s.validator.Validate(p)
	case domain.TableDiagnoses:
		var p domain.DiagnosisPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return errors.Validationf("malformed diagnosis payload: %v", err)
		}
		return s.validator.Validate(p)
	case domain.TableRecommendations:
		var p domain.RecommendationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return errors.Validationf("malformed recommendation payload: %v", err)
		}
		return s.validator.Validate(p)
	default:
		return errors.Validationf("unknown table %q", table)
	}
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

func (s *Server) registerRecordRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createScan",
		Method:      http.MethodPost,
		Path:        "/api/v1/records/scans",
		Summary:     "Create a scan",
		Description: "Stores a new leaf scan locally; it is pushed on the next sync cycle",
		Tags:        []string{"Records"},
	}, s.handleCreateScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "attachDiagnosis",
		Method:      http.MethodPost,
		Path:        "/api/v1/records/scans/{id}/diagnosis",
		Summary:     "Attach a diagnosis",
		Description: "Attaches the diagnosis to a scan. A scan carries at most one diagnosis.",
		Tags:        []string{"Records"},
	}, s.handleAttachDiagnosis)

	huma.Register(s.api, huma.Operation{
		OperationID: "attachRecommendation",
		Method:      http.MethodPost,
		Path:        "/api/v1/records/scans/{id}/recommendation",
		Summary:     "Attach a recommendation",
		Description: "Attaches the treatment recommendation to a scan. A scan carries at most one recommendation.",
		Tags:        []string{"Records"},
	}, s.handleAttachRecommendation)

	huma.Register(s.api, huma.Operation{
		OperationID: "listRecords",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{table}",
		Summary:     "List records",
		Description: "Returns all live records of a table, newest first",
		Tags:        []string{"Records"},
	}, s.handleListRecords)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRecord",
		Method:      http.MethodGet,
		Path:        "/api/v1/records/{table}/{id}",
		Summary:     "Get a record",
		Tags:        []string{"Records"},
	}, s.handleGetRecord)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateRecord",
		Method:      http.MethodPut,
		Path:        "/api/v1/records/{table}/{id}",
		Summary:     "Update a record",
		Description: "Replaces the record's payload and marks it for push",
		Tags:        []string{"Records"},
	}, s.handleUpdateRecord)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteRecord",
		Method:        http.MethodDelete,
		Path:          "/api/v1/records/{table}/{id}",
		Summary:       "Delete a record",
		Description:   "Soft-deletes the record; the tombstone propagates on the next sync cycle",
		Tags:          []string{"Records"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteRecord)
}

// === DTOs ===

// CreateScanRequest contains the fields of a new leaf scan.
type CreateScanRequest struct {
	CropType   string  `json:"crop_type" doc:"Crop the leaf belongs to"`
	ImagePath  string  `json:"image_path" doc:"Path of the captured leaf image on the device"`
	Latitude   float64 `json:"latitude,omitempty" minimum:"-90" maximum:"90" doc:"Capture latitude"`
	Longitude  float64 `json:"longitude,omitempty" minimum:"-180" maximum:"180" doc:"Capture longitude"`
	CapturedAt string  `json:"captured_at" doc:"Capture time (RFC3339)"`
	Notes      string  `json:"notes,omitempty" doc:"Field notes"`
}

// CreateScanInput wraps the scan request for Huma.
type CreateScanInput struct {
	Body CreateScanRequest
}

// AttachDiagnosisInput contains the scan ID and the diagnosis fields.
type AttachDiagnosisInput struct {
	ID   string `path:"id" doc:"Natural key of the scan"`
	Body struct {
		Disease    string  `json:"disease" doc:"Detected disease"`
		Confidence float64 `json:"confidence" minimum:"0" maximum:"1" doc:"Model confidence"`
		Severity   string  `json:"severity,omitempty" enum:"low,medium,high" doc:"Severity grade"`
	}
}

// AttachRecommendationInput contains the scan ID and the recommendation fields.
type AttachRecommendationInput struct {
	ID   string `path:"id" doc:"Natural key of the scan"`
	Body struct {
		Treatment  string `json:"treatment" doc:"Recommended treatment"`
		Fertilizer string `json:"fertilizer,omitempty" doc:"Recommended fertilizer"`
		Dosage     string `json:"dosage,omitempty" doc:"Dosage instructions"`
	}
}

// ListRecordsInput identifies the table to list.
type ListRecordsInput struct {
	Table string `path:"table" enum:"scans,diagnoses,recommendations" doc:"Table name"`
}

// RecordInput identifies one record.
type RecordInput struct {
	Table string `path:"table" enum:"scans,diagnoses,recommendations" doc:"Table name"`
	ID    string `path:"id" doc:"Natural key of the record"`
}

// UpdateRecordInput carries the replacement payload as raw JSON; it is
// validated against the table's schema by the record service, not by the
// OpenAPI layer.
type UpdateRecordInput struct {
	Table   string `path:"table" enum:"scans,diagnoses,recommendations" doc:"Table name"`
	ID      string `path:"id" doc:"Natural key of the record"`
	RawBody []byte
}

// RecordOutput wraps a single record for Huma.
type RecordOutput struct {
	Body domain.Record
}

// RecordsResponse contains the live records of one table.
type RecordsResponse struct {
	Records []*domain.Record `json:"records" doc:"Live records, newest first"`
}

// RecordsOutput wraps the records response for Huma.
type RecordsOutput struct {
	Body RecordsResponse
}

// === Handlers ===

func (s *Server) handleCreateScan(ctx context.Context, input *CreateScanInput) (*RecordOutput, error) {
	rec, err := s.records.CreateScan(ctx, s.userID, domain.ScanPayload{
		CropType:   input.Body.CropType,
		ImagePath:  input.Body.ImagePath,
		Latitude:   input.Body.Latitude,
		Longitude:  input.Body.Longitude,
		CapturedAt: input.Body.CapturedAt,
		Notes:      input.Body.Notes,
	})
	if err != nil {
		return nil, err
	}
	return &RecordOutput{Body: *rec}, nil
}

func (s *Server) handleAttachDiagnosis(ctx context.Context, input *AttachDiagnosisInput) (*RecordOutput, error) {
	rec, err := s.records.AttachDiagnosis(ctx, s.userID, input.ID, domain.DiagnosisPayload{
		Disease:    input.Body.Disease,
		Confidence: input.Body.Confidence,
		Severity:   input.Body.Severity,
	})
	if err != nil {
		return nil, err
	}
	return &RecordOutput{Body: *rec}, nil
}

func (s *Server) handleAttachRecommendation(ctx context.Context, input *AttachRecommendationInput) (*RecordOutput, error) {
	rec, err := s.records.AttachRecommendation(ctx, s.userID, input.ID, domain.RecommendationPayload{
		Treatment:  input.Body.Treatment,
		Fertilizer: input.Body.Fertilizer,
		Dosage:     input.Body.Dosage,
	})
	if err != nil {
		return nil, err
	}
	return &RecordOutput{Body: *rec}, nil
}

func (s *Server) handleListRecords(ctx context.Context, input *ListRecordsInput) (*RecordsOutput, error) {
	table, err := domain.ParseTable(input.Table)
	if err != nil {
		return nil, err
	}

	records, err := s.records.List(ctx, table)
	if err != nil {
		return nil, err
	}
	return &RecordsOutput{Body: RecordsResponse{Records: records}}, nil
}

func (s *Server) handleGetRecord(ctx context.Context, input *RecordInput) (*RecordOutput, error) {
	table, err := domain.ParseTable(input.Table)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, table, input.ID)
	if err != nil {
		return nil, err
	}
	return &RecordOutput{Body: *rec}, nil
}

func (s *Server) handleUpdateRecord(ctx context.Context, input *UpdateRecordInput) (*RecordOutput, error) {
	table, err := domain.ParseTable(input.Table)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Update(ctx, table, input.ID, input.RawBody)
	if err != nil {
		return nil, err
	}
	return &RecordOutput{Body: *rec}, nil
}

func (s *Server) handleDeleteRecord(ctx context.Context, input *RecordInput) (*struct{}, error) {
	table, err := domain.ParseTable(input.Table)
	if err != nil {
		return nil, err
	}

	if err := s.records.Delete(ctx, table, input.ID); err != nil {
		return nil, err
	}
	return &struct{}{}, nil
}

package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leafwise/leafwise-sync/internal/domain"
	"github.com/leafwise/leafwise-sync/internal/errors"
	"github.com/leafwise/leafwise-sync/internal/validation"
)

func validScan() domain.ScanPayload {
	return domain.ScanPayload{
		CropType:   "maize",
		ImagePath:  "/img/scan.jpg",
		Latitude:   -1.29,
		Longitude:  36.82,
		CapturedAt: "2024-03-01T12:00:00Z",
	}
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()
	assert.NoError(t, v.Validate(validScan()))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name     string
		mutate   func(*domain.ScanPayload)
		wantWord string
	}{
		{
			name:     "missing crop type",
			mutate:   func(p *domain.ScanPayload) { p.CropType = "" },
			wantWord: "crop_type",
		},
		{
			name:     "missing image path",
			mutate:   func(p *domain.ScanPayload) { p.ImagePath = "" },
			wantWord: "image_path",
		},
		{
			name:     "latitude out of range",
			mutate:   func(p *domain.ScanPayload) { p.Latitude = 91 },
			wantWord: "latitude",
		},
		{
			name:     "longitude out of range",
			mutate:   func(p *domain.ScanPayload) { p.Longitude = -181 },
			wantWord: "longitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validScan()
			tt.mutate(&p)

			err := v.Validate(p)
			assert.Error(t, err)

			var domainErr *errors.Error
			if assert.True(t, errors.As(err, &domainErr)) {
				assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
				details, ok := domainErr.Details.(map[string]string)
				if assert.True(t, ok, "expected field error details") {
					assert.Contains(t, details, tt.wantWord)
				}
			}
		})
	}
}

func TestValidator_DiagnosisConfidenceBounds(t *testing.T) {
	v := validation.New()

	p := domain.DiagnosisPayload{
		ScanID:     "scan-abc",
		Disease:    "leaf_rust",
		Confidence: 1.2,
	}
	assert.Error(t, v.Validate(p))

	p.Confidence = 0.93
	assert.NoError(t, v.Validate(p))
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	p := validScan()
	p.CropType = ""

	err := v.Validate(p)
	assert.Error(t, err)

	var domainErr *errors.Error
	assert.True(t, errors.As(err, &domainErr))
	details := domainErr.Details.(map[string]string)
	assert.Contains(t, details, "crop_type")
	assert.NotContains(t, details, "CropType")
}

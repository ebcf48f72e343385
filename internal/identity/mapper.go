// Package identity maps locally minted natural keys to stable remote
// identifiers.
//
// The mobile client and the backend use different identifier spaces: locally
// a record is keyed by a client-minted natural key (see internal/id), while
// the backend keys everything by UUID. The mapping must be deterministic so
// that repeated pushes of the same record always target the same remote row
// (the batched upsert is idempotent by identifier), and collision-resistant
// so that two devices never mint the same remote identifier for different
// records. Name-based UUIDv5 over a fixed namespace gives both.
package identity

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/leafwise/leafwise-sync/internal/domain"
)

// Namespace for LeafWise remote identifiers. Fixed forever: changing it
// changes every derived identifier and orphans all previously pushed rows.
var leafwiseNamespace = uuid.MustParse("9f2c1a47-6a0e-4c9e-8d5b-3f8a21c7e0b4")

// Discriminators for identifiers derived from an owning scan's natural key.
const (
	discriminatorDiagnosis      = "diagnosis"
	discriminatorRecommendation = "recommendation"
)

// Mapper derives remote identifiers from natural keys. It is pure: no
// storage, no network, same input always yields the same output.
type Mapper struct {
	namespace uuid.UUID
}

// NewMapper creates a mapper over the LeafWise namespace.
func NewMapper() *Mapper {
	return &Mapper{namespace: leafwiseNamespace}
}

// RemoteID returns the remote identifier for a natural key. Keys that are
// already UUIDs (records born on the remote side and pulled down) pass
// through unchanged.
func (m *Mapper) RemoteID(naturalKey string) string {
	if id, err := uuid.Parse(naturalKey); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(m.namespace, []byte(naturalKey)).String()
}

// DerivedID returns the remote identifier for an entity that depends on an
// owning entity, computed from the owner's natural key plus a fixed
// discriminator. The same scan always yields the same diagnosis identifier
// across repeated transforms.
func (m *Mapper) DerivedID(ownerKey, discriminator string) string {
	return uuid.NewSHA1(m.namespace, []byte(ownerKey+"/"+discriminator)).String()
}

// DiagnosisID returns the remote identifier of the diagnosis owned by the
// given scan.
func (m *Mapper) DiagnosisID(scanKey string) string {
	return m.DerivedID(scanKey, discriminatorDiagnosis)
}

// RecommendationID returns the remote identifier of the recommendation owned
// by the given scan.
func (m *Mapper) RecommendationID(scanKey string) string {
	return m.DerivedID(scanKey, discriminatorRecommendation)
}

// TransformPayload rewrites cross-table references inside a record payload
// into the remote identifier space. Scans carry no references; diagnoses and
// recommendations reference their owning scan by natural key.
func (m *Mapper) TransformPayload(table domain.Table, payload json.RawMessage) (json.RawMessage, error) {
	switch table {
	case domain.TableScans:
		return payload, nil
	case domain.TableDiagnoses:
		var p domain.DiagnosisPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode diagnosis payload: %w", err)
		}
		p.ScanID = m.RemoteID(p.ScanID)
		return json.Marshal(p)
	case domain.TableRecommendations:
		var p domain.RecommendationPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode recommendation payload: %w", err)
		}
		p.ScanID = m.RemoteID(p.ScanID)
		return json.Marshal(p)
	default:
		return nil, fmt.Errorf("unknown syncable table %q", table)
	}
}

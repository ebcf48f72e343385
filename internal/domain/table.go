package domain

import "fmt"

// Table identifies one of the syncable record tables.
// The set is closed: table names are never interpolated from free-form
// strings, and the declared order is the push order, so that dependent
// records (a diagnosis referencing its scan) usually land after their
// parent.
type Table string

const (
	TableScans           Table = "scans"
	TableDiagnoses       Table = "diagnoses"
	TableRecommendations Table = "recommendations"
)

// SyncableTables lists every syncable table in push order.
var SyncableTables = []Table{TableScans, TableDiagnoses, TableRecommendations}

// Valid reports whether t is one of the declared syncable tables.
func (t Table) Valid() bool {
	switch t {
	case TableScans, TableDiagnoses, TableRecommendations:
		return true
	}
	return false
}

// String returns the table name.
func (t Table) String() string { return string(t) }

// ParseTable converts a string to a Table, rejecting anything outside the
// closed set.
func ParseTable(s string) (Table, error) {
	t := Table(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown syncable table %q", s)
	}
	return t, nil
}

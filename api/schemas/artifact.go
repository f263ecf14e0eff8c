package schemas

import "fmt"

// ArtifactID is the stable identifier of one of the fixed analyses.
type ArtifactID string

const (
	ArtifactTopReferrers      ArtifactID = "R01"
	ArtifactNetworkReach      ArtifactID = "R02"
	ArtifactReferralFunnel    ArtifactID = "R03"
	ArtifactTemporalSegments  ArtifactID = "R04"
	ArtifactStaffContribution ArtifactID = "R05"
	ArtifactCodeAttribution   ArtifactID = "R06"
	ArtifactVolumeTimeseries  ArtifactID = "R07"
	ArtifactScoreDistribution ArtifactID = "R08"
)

// ColumnType describes the values stored in a table column.
type ColumnType string

const (
	ColumnString ColumnType = "string"
	ColumnInt    ColumnType = "int"
	ColumnFloat  ColumnType = "float"
	ColumnBool   ColumnType = "bool"
	ColumnTime   ColumnType = "time"
)

// Column is a typed table header.
type Column struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// Table is a small typed data frame. Every row has len(Columns) cells.
type Table struct {
	Name    string          `json:"name" yaml:"name"`
	Columns []Column        `json:"columns" yaml:"columns"`
	Rows    [][]interface{} `json:"rows" yaml:"rows"`
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns ...Column) Table {
	return Table{Name: name, Columns: columns, Rows: [][]interface{}{}}
}

// AddRow appends a row, rejecting rows whose width does not match the header.
func (t *Table) AddRow(cells ...interface{}) error {
	if len(cells) != len(t.Columns) {
		return fmt.Errorf("table %s: row has %d cells, want %d", t.Name, len(cells), len(t.Columns))
	}
	t.Rows = append(t.Rows, cells)
	return nil
}

// MustAddRow is AddRow for rows built from a fixed literal.
func (t *Table) MustAddRow(cells ...interface{}) {
	if err := t.AddRow(cells...); err != nil {
		panic(err)
	}
}

// ColumnIndex returns the position of the named column or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Artifact is one named analytical output.
type Artifact struct {
	ID      ArtifactID         `json:"id" yaml:"id"`
	Name    string             `json:"name" yaml:"name"`
	Title   string             `json:"title" yaml:"title"`
	Main    Table              `json:"main" yaml:"main"`
	Extras  []Table            `json:"extras,omitempty" yaml:"extras,omitempty"`
	Summary map[string]float64 `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Extra returns the named secondary table.
func (a Artifact) Extra(name string) (Table, bool) {
	for _, t := range a.Extras {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

package schemas

import "time"

// -- Core Graph Models --
// These types represent the canonical entities and referral events of one run.

// EntityKind defines the categories of identities in the referral graph.
type EntityKind string

const (
	KindMember   EntityKind = "member"
	KindStaff    EntityKind = "staff"
	KindExternal EntityKind = "external"
)

// Rank orders kinds for upgrades during normalization. A staff hint beats an
// account-derived member classification, which beats the external fallback.
func (k EntityKind) Rank() int {
	switch k {
	case KindStaff:
		return 3
	case KindMember:
		return 2
	case KindExternal:
		return 1
	default:
		return 0
	}
}

// ParseEntityKind maps a loader hint to a kind. Unknown hints return false.
func ParseEntityKind(raw string) (EntityKind, bool) {
	switch raw {
	case "member", "MEMBER", "Member":
		return KindMember, true
	case "staff", "STAFF", "Staff", "employee", "Employee", "EMPLOYEE":
		return KindStaff, true
	case "external", "EXTERNAL", "External", "prospect", "Prospect":
		return KindExternal, true
	}
	return "", false
}

// Entity is a canonical identity after normalization.
// Index is the arena position inside the graph; ID is stable across runs.
type Entity struct {
	Index       int        `json:"-" yaml:"-"`
	ID          string     `json:"id" yaml:"id"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Canonical   string     `json:"canonical" yaml:"canonical"`
	Account     string     `json:"account,omitempty" yaml:"account,omitempty"`
	Kind        EntityKind `json:"kind" yaml:"kind"`
	StaffTier   string     `json:"staff_tier,omitempty" yaml:"staff_tier,omitempty"`
	RawIDs      []string   `json:"raw_identifiers" yaml:"raw_identifiers"`
}

// ReferralEdge is one directed, timestamped referral event.
type ReferralEdge struct {
	From         int       `json:"from" yaml:"from"`
	To           int       `json:"to" yaml:"to"`
	RecordIndex  int       `json:"record_index" yaml:"record_index"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	SourceCode   string    `json:"source_code,omitempty" yaml:"source_code,omitempty"`
	SourceLabel  string    `json:"source_label" yaml:"source_label"`
	BranchCode   string    `json:"branch_code,omitempty" yaml:"branch_code,omitempty"`
	BranchLabel  string    `json:"branch_label" yaml:"branch_label"`
	StaffCode    string    `json:"staff_code,omitempty" yaml:"staff_code,omitempty"`
	StaffLabel   string    `json:"staff_label" yaml:"staff_label"`
	OutcomeCode  string    `json:"outcome_code,omitempty" yaml:"outcome_code,omitempty"`
	OutcomeLabel string    `json:"outcome_label" yaml:"outcome_label"`
	SelfLoop     bool      `json:"self_loop" yaml:"self_loop"`
}

// StaffAssisted reports whether a staff code was attached to the referral.
func (e ReferralEdge) StaffAssisted() bool {
	return e.StaffCode != ""
}

// EntityMetrics holds the structural measures computed when the graph is frozen.
type EntityMetrics struct {
	OutDegree  int `json:"out_degree" yaml:"out_degree"`
	InDegree   int `json:"in_degree" yaml:"in_degree"`
	Volume     int `json:"volume" yaml:"volume"`
	SelfLoops  int `json:"self_loops" yaml:"self_loops"`
	Reach      int `json:"reach" yaml:"reach"`
	ChainDepth int `json:"chain_depth" yaml:"chain_depth"`
}

// IngestStats records what happened to the raw rows before they became edges.
type IngestStats struct {
	RawRecords        int `json:"raw_records" yaml:"raw_records"`
	InvalidRecords    int `json:"invalid_records" yaml:"invalid_records"`
	UnresolvedRecords int `json:"unresolved_records" yaml:"unresolved_records"`
	DuplicateRecords  int `json:"duplicate_records" yaml:"duplicate_records"`
}

// ValidRecords is the number of rows that should have produced an edge.
func (s IngestStats) ValidRecords() int {
	return s.RawRecords - s.InvalidRecords - s.UnresolvedRecords - s.DuplicateRecords
}

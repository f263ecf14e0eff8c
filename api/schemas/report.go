package schemas

import "time"

// WarningKind classifies a non-fatal problem found while processing a run.
type WarningKind string

const (
	WarnInvalidRecord      WarningKind = "invalid_record"
	WarnUnresolvedIdentity WarningKind = "unresolved_identity"
	WarnUnknownCode        WarningKind = "unknown_code"
)

// Warning is one entry in the run-level report.
type Warning struct {
	Kind        WarningKind `json:"kind" yaml:"kind"`
	RecordIndex int         `json:"record_index" yaml:"record_index"`
	Field       string      `json:"field,omitempty" yaml:"field,omitempty"`
	Raw         string      `json:"raw,omitempty" yaml:"raw,omitempty"`
	Message     string      `json:"message" yaml:"message"`
	Candidates  []string    `json:"candidates,omitempty" yaml:"candidates,omitempty"`
}

// RunReport collects warnings for a single run. It is owned by that run and
// is not safe for concurrent use.
type RunReport struct {
	warnings []Warning
}

// Add appends a warning.
func (r *RunReport) Add(w Warning) {
	r.warnings = append(r.warnings, w)
}

// Warnings returns a copy of the collected warnings in insertion order.
func (r *RunReport) Warnings() []Warning {
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// Count returns the number of warnings of the given kind.
func (r *RunReport) Count(kind WarningKind) int {
	n := 0
	for _, w := range r.warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// RunResult is the complete, self-contained output of one engine run.
// Entities, Metrics and Profiles share the graph's arena order.
type RunResult struct {
	RunID         string            `json:"run_id" yaml:"run_id"`
	Source        string            `json:"source,omitempty" yaml:"source,omitempty"`
	ConfigVersion string            `json:"config_version" yaml:"config_version"`
	AsOf          time.Time         `json:"as_of" yaml:"as_of"`
	Stats         IngestStats       `json:"stats" yaml:"stats"`
	Entities      []Entity          `json:"entities" yaml:"entities"`
	Metrics       []EntityMetrics   `json:"metrics" yaml:"metrics"`
	Edges         []ReferralEdge    `json:"edges" yaml:"edges"`
	Profiles      []TemporalProfile `json:"profiles" yaml:"profiles"`
	Scores        []InfluenceScore  `json:"scores" yaml:"scores"`
	Artifacts     []Artifact        `json:"artifacts" yaml:"artifacts"`
	Warnings      []Warning         `json:"warnings" yaml:"warnings"`
}

// Artifact returns the artifact with the given id.
func (r *RunResult) Artifact(id ArtifactID) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.ID == id {
			return a, true
		}
	}
	return Artifact{}, false
}

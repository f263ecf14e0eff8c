package schemas

import (
	"strings"
	"time"
)

// RawReferralRecord is one referral row as handed over by the record loader.
// Index is the zero-based row position in the source and is used in warnings.
// TimestampError carries the loader's reason when the timestamp was rejected.
type RawReferralRecord struct {
	Index           int       `json:"index" yaml:"index"`
	ReferrerName    string    `json:"referrer_name" yaml:"referrer_name"`
	ReferrerAccount string    `json:"referrer_account,omitempty" yaml:"referrer_account,omitempty"`
	ReferrerType    string    `json:"referrer_type,omitempty" yaml:"referrer_type,omitempty"`
	ReferredName    string    `json:"referred_name" yaml:"referred_name"`
	ReferredAccount string    `json:"referred_account,omitempty" yaml:"referred_account,omitempty"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
	TimestampError  string    `json:"timestamp_error,omitempty" yaml:"timestamp_error,omitempty"`
	SourceCode      string    `json:"source_code,omitempty" yaml:"source_code,omitempty"`
	BranchCode      string    `json:"branch_code,omitempty" yaml:"branch_code,omitempty"`
	StaffCode       string    `json:"staff_code,omitempty" yaml:"staff_code,omitempty"`
	OutcomeCode     string    `json:"outcome_code,omitempty" yaml:"outcome_code,omitempty"`
}

// Validate returns a human readable reason when the record cannot be used.
func (r RawReferralRecord) Validate() (string, bool) {
	switch {
	case strings.TrimSpace(r.ReferrerName) == "":
		return "missing referrer identifier", false
	case strings.TrimSpace(r.ReferredName) == "":
		return "missing referred identifier", false
	case r.Timestamp.IsZero() && r.TimestampError != "":
		return "invalid timestamp: " + r.TimestampError, false
	case r.Timestamp.IsZero():
		return "missing timestamp", false
	}
	return "", true
}

// -- Temporal Models --

// TemporalState is the single reported activity classification of an entity.
type TemporalState string

const (
	StateInsufficientData TemporalState = "insufficient-data"
	StateDormant          TemporalState = "dormant"
	StateBurst            TemporalState = "burst"
	StateSteady           TemporalState = "steady"
)

// Interval is a closed time range.
type Interval struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
	Count int       `json:"count" yaml:"count"`
}

// PeriodCount is one bucket of an activity timeline.
type PeriodCount struct {
	Period string `json:"period" yaml:"period"`
	Count  int    `json:"count" yaml:"count"`
}

// TemporalProfile summarizes an entity's activity as a referrer.
type TemporalProfile struct {
	EntityID      string        `json:"entity_id" yaml:"entity_id"`
	Events        int           `json:"events" yaml:"events"`
	FirstActivity time.Time     `json:"first_activity,omitempty" yaml:"first_activity,omitempty"`
	LastActivity  time.Time     `json:"last_activity,omitempty" yaml:"last_activity,omitempty"`
	Timeline      []PeriodCount `json:"timeline" yaml:"timeline"`
	State         TemporalState `json:"state" yaml:"state"`
	Bursts        []Interval    `json:"bursts,omitempty" yaml:"bursts,omitempty"`
	// Gap is the distance between the last event and the as-of date.
	// Zero when the entity never acted as a referrer.
	Gap      time.Duration `json:"gap" yaml:"gap"`
	Emerging bool          `json:"emerging" yaml:"emerging"`
}

// HasActivity reports whether the entity ever referred anyone.
func (p TemporalProfile) HasActivity() bool {
	return p.Events > 0
}

// -- Scoring Models --

// ScoreComponents is the normalized [0,1] input to the weighted score.
type ScoreComponents struct {
	Volume      float64 `json:"volume" yaml:"volume"`
	Reach       float64 `json:"reach" yaml:"reach"`
	Recency     float64 `json:"recency" yaml:"recency"`
	StaffAssist float64 `json:"staff_assist" yaml:"staff_assist"`
}

// InfluenceScore is the auditable 0-100 ranking of a single entity.
type InfluenceScore struct {
	EntityID      string          `json:"entity_id" yaml:"entity_id"`
	Score         float64         `json:"score" yaml:"score"`
	Components    ScoreComponents `json:"components" yaml:"components"`
	Contributions ScoreComponents `json:"contributions" yaml:"contributions"`
	ConfigVersion string          `json:"config_version" yaml:"config_version"`
}

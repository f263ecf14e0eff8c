// Package temporal classifies each entity's referral activity over time as
// burst, steady, dormant or insufficient-data.
package temporal

import (
	"fmt"
	"sort"
	"time"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
)

// Period is the timeline bucket size.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Key returns the bucket label of t. Labels sort chronologically.
func (p Period) Key(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodDay:
		return t.Format("2006-01-02")
	case PeriodWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	default:
		return t.Format("2006-01")
	}
}

// Detector holds the thresholds of one run.
type Detector struct {
	window   time.Duration
	minCount int
	dormancy time.Duration
	period   Period
}

// NewDetector creates a detector from a validated referral configuration.
func NewDetector(cfg config.ReferralConfig) *Detector {
	return &Detector{
		window:   cfg.BurstWindow,
		minCount: cfg.BurstMinCount,
		dormancy: cfg.DormancyGap,
		period:   Period(cfg.Period),
	}
}

// Period returns the timeline bucket size.
func (d *Detector) Period() Period {
	return d.period
}

// Profile classifies one entity. timestamps need not be sorted; the slice is
// not modified.
func (d *Detector) Profile(entityID string, timestamps []time.Time, asOf time.Time) schemas.TemporalProfile {
	ts := make([]time.Time, len(timestamps))
	copy(ts, timestamps)
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	p := schemas.TemporalProfile{
		EntityID: entityID,
		Events:   len(ts),
		Timeline: d.timeline(ts),
		State:    schemas.StateInsufficientData,
	}
	if len(ts) == 0 {
		return p
	}

	p.FirstActivity = ts[0]
	p.LastActivity = ts[len(ts)-1]
	if gap := asOf.Sub(p.LastActivity); gap > 0 {
		p.Gap = gap
	}

	// A single point says nothing about rate; never extrapolate from it.
	if len(ts) < 2 {
		return p
	}

	p.Bursts = d.bursts(ts)
	p.Emerging = asOf.Sub(p.FirstActivity) <= d.dormancy

	switch {
	case p.Gap > d.dormancy:
		p.State = schemas.StateDormant
	case len(p.Bursts) > 0:
		p.State = schemas.StateBurst
	default:
		p.State = schemas.StateSteady
	}
	return p
}

// bursts sweeps a window of length d.window over sorted timestamps and merges
// overlapping dense windows into intervals.
func (d *Detector) bursts(ts []time.Time) []schemas.Interval {
	type span struct{ lo, hi int }
	var spans []span

	j := 0
	for i := range ts {
		if j < i {
			j = i
		}
		for j+1 < len(ts) && ts[j+1].Sub(ts[i]) <= d.window {
			j++
		}
		if j-i+1 < d.minCount {
			continue
		}
		if n := len(spans); n > 0 && !ts[i].After(ts[spans[n-1].hi]) {
			if j > spans[n-1].hi {
				spans[n-1].hi = j
			}
			continue
		}
		spans = append(spans, span{lo: i, hi: j})
	}

	out := make([]schemas.Interval, len(spans))
	for k, s := range spans {
		out[k] = schemas.Interval{Start: ts[s.lo], End: ts[s.hi], Count: s.hi - s.lo + 1}
	}
	return out
}

func (d *Detector) timeline(ts []time.Time) []schemas.PeriodCount {
	counts := make(map[string]int)
	for _, t := range ts {
		counts[d.period.Key(t)]++
	}
	out := make([]schemas.PeriodCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, schemas.PeriodCount{Period: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// ProfileAll classifies every entity. events is indexed by entity arena index
// and holds the entity's timestamps as referrer.
func (d *Detector) ProfileAll(entities []schemas.Entity, events [][]time.Time, asOf time.Time) []schemas.TemporalProfile {
	out := make([]schemas.TemporalProfile, len(entities))
	for i, e := range entities {
		var ts []time.Time
		if i < len(events) {
			ts = events[i]
		}
		out[i] = d.Profile(e.ID, ts, asOf)
	}
	return out
}

// AsOf resolves the reference date of a run: the configured date when set,
// otherwise the latest event. The wall clock is never consulted.
func AsOf(cfg config.ReferralConfig, events [][]time.Time) (time.Time, error) {
	if t, ok, err := cfg.AsOfTime(); err != nil {
		return time.Time{}, err
	} else if ok {
		return t, nil
	}
	var latest time.Time
	for _, ts := range events {
		for _, t := range ts {
			if t.After(latest) {
				latest = t
			}
		}
	}
	return latest, nil
}

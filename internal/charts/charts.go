// Package charts derives the data contracts of the five summary charts from
// the named artifacts. Rendering is left to the consumer.
package charts

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/xkilldash9x/refintel/api/schemas"
)

// ErrMissingData is returned when an artifact a chart needs is absent or
// lacks the expected columns.
var ErrMissingData = errors.New("chart data missing")

// Kind is the visual form of a chart.
type Kind string

const (
	KindBar       Kind = "bar"
	KindHistogram Kind = "histogram"
	KindDonut     Kind = "donut"
	KindLine      Kind = "line"
)

// Series is one named sequence of values aligned with the chart labels.
type Series struct {
	Name   string    `json:"name" yaml:"name"`
	Values []float64 `json:"values" yaml:"values"`
}

// ChartSpec is everything a renderer needs to draw one chart.
type ChartSpec struct {
	ID       string             `json:"id" yaml:"id"`
	Title    string             `json:"title" yaml:"title"`
	Kind     Kind               `json:"kind" yaml:"kind"`
	Artifact schemas.ArtifactID `json:"artifact" yaml:"artifact"`
	Labels   []string           `json:"labels" yaml:"labels"`
	Series   []Series           `json:"series" yaml:"series"`
}

type definition struct {
	id       string
	title    string
	kind     Kind
	artifact schemas.ArtifactID
	table    string // empty selects the main table
	label    string
	series   []string
}

var definitions = []definition{
	{"top_referrers_bar", "Top Referrers by Influence Score", KindBar, schemas.ArtifactTopReferrers, "", "display_name", []string{"score"}},
	{"reach_histogram", "Network Reach Distribution", KindHistogram, schemas.ArtifactNetworkReach, "", "reach", []string{"entities"}},
	{"segment_donut", "Temporal Segments", KindDonut, schemas.ArtifactTemporalSegments, "", "state", []string{"entities"}},
	{"volume_line", "Referral Volume Over Time", KindLine, schemas.ArtifactVolumeTimeseries, "", "period", []string{"referrals", "distinct_referrers"}},
	{"score_histogram", "Influence Score Histogram", KindHistogram, schemas.ArtifactScoreDistribution, "score_histogram", "bin", []string{"entities"}},
}

// IDs lists the chart ids in build order.
func IDs() []string {
	out := make([]string, len(definitions))
	for i, d := range definitions {
		out[i] = d.id
	}
	return out
}

// Build derives every chart from the given artifacts.
func Build(artifacts []schemas.Artifact) ([]ChartSpec, error) {
	byID := make(map[schemas.ArtifactID]schemas.Artifact, len(artifacts))
	for _, a := range artifacts {
		byID[a.ID] = a
	}

	out := make([]ChartSpec, 0, len(definitions))
	for _, d := range definitions {
		a, ok := byID[d.artifact]
		if !ok {
			return nil, fmt.Errorf("%w: chart %s needs artifact %s", ErrMissingData, d.id, d.artifact)
		}
		spec, err := d.build(a)
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}

func (d definition) build(a schemas.Artifact) (ChartSpec, error) {
	tbl := a.Main
	if d.table != "" {
		extra, ok := a.Extra(d.table)
		if !ok {
			return ChartSpec{}, fmt.Errorf("%w: chart %s needs table %s of %s", ErrMissingData, d.id, d.table, a.ID)
		}
		tbl = extra
	}

	li := tbl.ColumnIndex(d.label)
	if li < 0 {
		return ChartSpec{}, fmt.Errorf("%w: chart %s needs column %s", ErrMissingData, d.id, d.label)
	}
	spec := ChartSpec{
		ID:       d.id,
		Title:    d.title,
		Kind:     d.kind,
		Artifact: a.ID,
		Labels:   make([]string, len(tbl.Rows)),
	}
	for r, row := range tbl.Rows {
		spec.Labels[r] = labelString(row[li])
	}

	for _, name := range d.series {
		ci := tbl.ColumnIndex(name)
		if ci < 0 {
			return ChartSpec{}, fmt.Errorf("%w: chart %s needs column %s", ErrMissingData, d.id, name)
		}
		s := Series{Name: name, Values: make([]float64, len(tbl.Rows))}
		for r, row := range tbl.Rows {
			v, err := toFloat(row[ci])
			if err != nil {
				return ChartSpec{}, fmt.Errorf("chart %s, column %s, row %d: %w", d.id, name, r, err)
			}
			s.Values[r] = v
		}
		spec.Series = append(spec.Series, s)
	}
	return spec, nil
}

func labelString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// toFloat accepts the numeric cell types an artifact holds in memory and
// after a JSON round trip.
func toFloat(v interface{}) (float64, error) {
	switch x := v.(type) {
	case int:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("%w: non-numeric cell %T", ErrMissingData, v)
	}
}

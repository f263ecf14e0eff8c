package artifacts

import (
	"fmt"
	"math"
	"sort"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// HistogramBins is the number of equal-width bins over [0, 100].
const HistogramBins = 10

var percentiles = []struct {
	name string
	p    float64
}{
	{"p10", 10}, {"p25", 25}, {"p50", 50}, {"p75", 75}, {"p90", 90}, {"p95", 95}, {"p99", 99},
}

// ScoreDistribution (R08) reports percentiles and a histogram of the scores
// of the graph's entities.
func ScoreDistribution(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	values := make([]float64, 0, len(scores))
	for _, s := range scores {
		if _, ok := g.EntityByID(s.EntityID); ok {
			values = append(values, s.Score)
		}
	}
	sort.Float64s(values)

	main := schemas.NewTable("score_distribution",
		col("statistic", schemas.ColumnString),
		col("value", schemas.ColumnFloat),
	)
	summary := map[string]float64{"entities": float64(len(values))}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	if len(values) > 0 {
		mean /= float64(len(values))
	}

	type stat struct {
		name  string
		value float64
	}
	stats := []stat{{"min", Percentile(values, 0)}}
	for _, p := range percentiles {
		stats = append(stats, stat{p.name, Percentile(values, p.p)})
	}
	stats = append(stats, stat{"max", Percentile(values, 100)}, stat{"mean", mean})

	for _, s := range stats {
		main.MustAddRow(s.name, s.value)
		summary[s.name] = s.value
	}

	hist := schemas.NewTable("score_histogram",
		col("bin", schemas.ColumnString),
		col("lower", schemas.ColumnFloat),
		col("upper", schemas.ColumnFloat),
		col("entities", schemas.ColumnInt),
	)
	counts := make([]int, HistogramBins)
	width := 100.0 / HistogramBins
	for _, v := range values {
		b := int(v / width)
		if b >= HistogramBins {
			b = HistogramBins - 1
		}
		if b < 0 {
			b = 0
		}
		counts[b]++
	}
	for i, c := range counts {
		lo, hi := float64(i)*width, float64(i+1)*width
		hist.MustAddRow(fmt.Sprintf("%g-%g", lo, hi), lo, hi, c)
	}

	return schemas.Artifact{
		Main:    main,
		Extras:  []schemas.Table{hist},
		Summary: summary,
	}
}

// Percentile returns the p-th percentile of sorted values using linear
// interpolation between closest ranks. An empty input yields 0.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

package artifacts

import (
	"sort"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
	"github.com/xkilldash9x/refintel/internal/scoring"
)

// TopReferrers (R01) ranks entities that referred at least once by score.
func TopReferrers(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	v := newView(g, scores, profiles)
	t := schemas.NewTable("top_referrers",
		col("rank", schemas.ColumnInt),
		col("entity_id", schemas.ColumnString),
		col("display_name", schemas.ColumnString),
		col("kind", schemas.ColumnString),
		col("score", schemas.ColumnFloat),
		col("referrals", schemas.ColumnInt),
		col("out_degree", schemas.ColumnInt),
		col("reach", schemas.ColumnInt),
		col("state", schemas.ColumnString),
	)

	referrers := 0
	total := 0.0
	top := 0.0
	for _, s := range scoring.Ranked(scores) {
		e, ok := g.EntityByID(s.EntityID)
		if !ok {
			continue
		}
		m := g.Metrics(e.Index)
		referrals := m.Volume + m.SelfLoops
		if referrals == 0 {
			continue
		}
		referrers++
		total += s.Score
		if referrers == 1 {
			top = s.Score
		}
		if referrers > cfg.TopN {
			continue
		}
		t.MustAddRow(referrers, e.ID, e.DisplayName, string(e.Kind), s.Score,
			referrals, m.OutDegree, m.Reach, string(v.profiles[e.ID].State))
	}

	mean := 0.0
	if referrers > 0 {
		mean = total / float64(referrers)
	}
	return schemas.Artifact{
		Main: t,
		Summary: map[string]float64{
			"referrers":  float64(referrers),
			"top_score":  top,
			"mean_score": mean,
		},
	}
}

// NetworkReach (R02) is the distribution of reach and chain depth.
func NetworkReach(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	reach := map[int]int{}
	depth := map[int]int{}
	maxReach, maxDepth, sumReach := 0, 0, 0
	for i := 0; i < g.Len(); i++ {
		m := g.Metrics(i)
		reach[m.Reach]++
		depth[m.ChainDepth]++
		sumReach += m.Reach
		if m.Reach > maxReach {
			maxReach = m.Reach
		}
		if m.ChainDepth > maxDepth {
			maxDepth = m.ChainDepth
		}
	}

	main := distribution("reach_distribution", "reach", reach)
	chain := distribution("chain_depth_distribution", "chain_depth", depth)

	return schemas.Artifact{
		Main:   main,
		Extras: []schemas.Table{chain},
		Summary: map[string]float64{
			"max_reach":       float64(maxReach),
			"mean_reach":      ratio(sumReach, g.Len()),
			"max_chain_depth": float64(maxDepth),
			"depth_bound":     float64(g.MaxChainDepth()),
		},
	}
}

func distribution(name, key string, counts map[int]int) schemas.Table {
	t := schemas.NewTable(name, col(key, schemas.ColumnInt), col("entities", schemas.ColumnInt))
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		t.MustAddRow(k, counts[k])
	}
	return t
}

// Funnel stages in reporting order.
const (
	StageRawRecords        = "raw_records"
	StageInvalidRecords    = "invalid_records"
	StageUnresolvedRecords = "unresolved_records"
	StageDuplicateRecords  = "duplicate_records"
	StageEdges             = "referral_edges"
	StageSelfLoops         = "self_loops"
	StageEntities          = "entities"
	StageScoredEntities    = "scored_entities"
)

// ReferralFunnel (R03) follows records from raw input to scored entities and
// splits referrers into one-time and repeat.
func ReferralFunnel(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	stats := g.IngestStats()
	selfLoops := 0
	for _, e := range g.Edges() {
		if e.SelfLoop {
			selfLoops++
		}
	}
	scored := 0
	for _, s := range scores {
		if _, ok := g.EntityByID(s.EntityID); ok {
			scored++
		}
	}

	t := schemas.NewTable("referral_funnel",
		col("stage", schemas.ColumnString),
		col("count", schemas.ColumnInt),
		col("share_of_raw", schemas.ColumnFloat),
	)
	stages := []struct {
		name  string
		count int
	}{
		{StageRawRecords, stats.RawRecords},
		{StageInvalidRecords, stats.InvalidRecords},
		{StageUnresolvedRecords, stats.UnresolvedRecords},
		{StageDuplicateRecords, stats.DuplicateRecords},
		{StageEdges, g.EdgeCount()},
		{StageSelfLoops, selfLoops},
		{StageEntities, g.Len()},
		{StageScoredEntities, scored},
	}
	for _, s := range stages {
		t.MustAddRow(s.name, s.count, ratio(s.count, stats.RawRecords))
	}

	freq := schemas.NewTable("referrer_frequency",
		col("segment", schemas.ColumnString),
		col("referrers", schemas.ColumnInt),
		col("referrals", schemas.ColumnInt),
	)
	oneTime, repeat, repeatReferrals := 0, 0, 0
	for i := 0; i < g.Len(); i++ {
		n := len(g.OutEdges(i))
		switch {
		case n == 1:
			oneTime++
		case n > 1:
			repeat++
			repeatReferrals += n
		}
	}
	freq.MustAddRow("one_time", oneTime, oneTime)
	freq.MustAddRow("repeat", repeat, repeatReferrals)

	return schemas.Artifact{
		Main:   t,
		Extras: []schemas.Table{freq},
		Summary: map[string]float64{
			"conversion_rate": ratio(g.EdgeCount(), stats.RawRecords),
			"self_loops":      float64(selfLoops),
			"repeat_share":    ratio(repeat, oneTime+repeat),
		},
	}
}

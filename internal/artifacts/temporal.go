package artifacts

import (
	"sort"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
	"github.com/xkilldash9x/refintel/internal/scoring"
	"github.com/xkilldash9x/refintel/internal/temporal"
)

// States lists the temporal states in reporting order.
var States = []schemas.TemporalState{
	schemas.StateBurst,
	schemas.StateSteady,
	schemas.StateDormant,
	schemas.StateInsufficientData,
}

// TemporalSegments (R04) counts entities per temporal state and lists burst
// intervals, emerging referrers and dormant high-value referrers.
func TemporalSegments(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	v := newView(g, scores, profiles)

	counts := map[schemas.TemporalState]int{}
	for i := 0; i < g.Len(); i++ {
		counts[v.profiles[g.Entity(i).ID].State]++
	}
	main := schemas.NewTable("temporal_segments",
		col("state", schemas.ColumnString),
		col("entities", schemas.ColumnInt),
		col("share", schemas.ColumnFloat),
	)
	for _, s := range States {
		main.MustAddRow(string(s), counts[s], ratio(counts[s], g.Len()))
	}

	bursts := schemas.NewTable("burst_intervals",
		col("entity_id", schemas.ColumnString),
		col("display_name", schemas.ColumnString),
		col("start", schemas.ColumnTime),
		col("end", schemas.ColumnTime),
		col("referrals", schemas.ColumnInt),
	)
	emerging := schemas.NewTable("emerging_referrers",
		col("entity_id", schemas.ColumnString),
		col("display_name", schemas.ColumnString),
		col("first_activity", schemas.ColumnTime),
		col("referrals", schemas.ColumnInt),
		col("score", schemas.ColumnFloat),
	)
	dormant := schemas.NewTable("dormant_high_value",
		col("entity_id", schemas.ColumnString),
		col("display_name", schemas.ColumnString),
		col("last_activity", schemas.ColumnTime),
		col("gap_days", schemas.ColumnFloat),
		col("score", schemas.ColumnFloat),
	)

	type burstRow struct {
		entity schemas.Entity
		span   schemas.Interval
	}
	var burstRows []burstRow

	burstEntities, emergingCount, dormantValued := 0, 0, 0
	for _, s := range scoring.Ranked(scores) {
		e, ok := g.EntityByID(s.EntityID)
		if !ok {
			continue
		}
		p := v.profiles[e.ID]
		if len(p.Bursts) > 0 {
			burstEntities++
		}
		for _, b := range p.Bursts {
			burstRows = append(burstRows, burstRow{entity: e, span: b})
		}
		if p.Emerging {
			emergingCount++
			if emergingCount <= cfg.TopN {
				emerging.MustAddRow(e.ID, e.DisplayName, p.FirstActivity, p.Events, s.Score)
			}
		}
		if p.State == schemas.StateDormant && s.Score > 0 {
			dormantValued++
			if dormantValued <= cfg.TopN {
				dormant.MustAddRow(e.ID, e.DisplayName, p.LastActivity, p.Gap.Hours()/24, s.Score)
			}
		}
	}
	sort.SliceStable(burstRows, func(i, j int) bool {
		return burstRows[i].span.Start.Before(burstRows[j].span.Start)
	})
	for _, r := range burstRows {
		bursts.MustAddRow(r.entity.ID, r.entity.DisplayName, r.span.Start, r.span.End, r.span.Count)
	}

	return schemas.Artifact{
		Main:   main,
		Extras: []schemas.Table{bursts, emerging, dormant},
		Summary: map[string]float64{
			"burst_entities":     float64(burstEntities),
			"dormant_entities":   float64(counts[schemas.StateDormant]),
			"emerging_entities":  float64(emergingCount),
			"dormant_high_value": float64(dormantValued),
		},
	}
}

// VolumeTimeseries (R07) buckets all referral edges by the configured period.
func VolumeTimeseries(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	period := temporal.Period(cfg.Period)

	type bucket struct {
		referrals int
		selfLoops int
		referrers map[int]struct{}
	}
	buckets := map[string]*bucket{}
	for _, e := range g.Edges() {
		key := period.Key(e.Timestamp)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{referrers: map[int]struct{}{}}
			buckets[key] = b
		}
		b.referrals++
		b.referrers[e.From] = struct{}{}
		if e.SelfLoop {
			b.selfLoops++
		}
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := schemas.NewTable("volume_timeseries",
		col("period", schemas.ColumnString),
		col("referrals", schemas.ColumnInt),
		col("distinct_referrers", schemas.ColumnInt),
		col("self_loops", schemas.ColumnInt),
	)
	peak := 0
	for _, k := range keys {
		b := buckets[k]
		t.MustAddRow(k, b.referrals, len(b.referrers), b.selfLoops)
		if b.referrals > peak {
			peak = b.referrals
		}
	}

	return schemas.Artifact{
		Main: t,
		Summary: map[string]float64{
			"periods":        float64(len(keys)),
			"peak_referrals": float64(peak),
			"mean_referrals": ratio(g.EdgeCount(), len(keys)),
		},
	}
}

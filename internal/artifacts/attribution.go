package artifacts

import (
	"sort"
	"strings"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/decode"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// Kinds lists entity kinds in reporting order.
var Kinds = []schemas.EntityKind{schemas.KindStaff, schemas.KindMember, schemas.KindExternal}

// StaffMemberContribution (R05) splits referrals and scores by entity kind
// and reports the configured staff tier multipliers.
func StaffMemberContribution(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	v := newView(g, scores, profiles)

	type agg struct {
		entities  int
		referrals int
		score     float64
	}
	byKind := map[schemas.EntityKind]*agg{}
	for _, k := range Kinds {
		byKind[k] = &agg{}
	}
	tierEntities := map[string]int{}
	for i := 0; i < g.Len(); i++ {
		e := g.Entity(i)
		a, ok := byKind[e.Kind]
		if !ok {
			a = byKind[schemas.KindExternal]
		}
		a.entities++
		a.referrals += len(g.OutEdges(i))
		a.score += v.score(e.ID)
		if e.Kind == schemas.KindStaff {
			tierEntities[tierKey(cfg, e.StaffTier)]++
		}
	}

	main := schemas.NewTable("staff_member_contribution",
		col("kind", schemas.ColumnString),
		col("entities", schemas.ColumnInt),
		col("referrals", schemas.ColumnInt),
		col("referral_share", schemas.ColumnFloat),
		col("mean_score", schemas.ColumnFloat),
	)
	for _, k := range Kinds {
		a := byKind[k]
		mean := 0.0
		if a.entities > 0 {
			mean = a.score / float64(a.entities)
		}
		main.MustAddRow(string(k), a.entities, a.referrals, ratio(a.referrals, g.EdgeCount()), mean)
	}

	assisted := map[string]int{}
	assistedTotal := 0
	for _, e := range g.Edges() {
		if e.StaffAssisted() {
			assisted[tierKey(cfg, e.StaffLabel)]++
			assistedTotal++
		}
	}

	tiers := make([]string, 0, len(cfg.StaffWeights))
	for t := range cfg.StaffWeights {
		tiers = append(tiers, t)
	}
	sort.Strings(tiers)
	maxMult := cfg.MaxStaffMultiplier()

	multipliers := schemas.NewTable("staff_tier_multipliers",
		col("tier", schemas.ColumnString),
		col("multiplier", schemas.ColumnFloat),
		col("normalized", schemas.ColumnFloat),
		col("staff_entities", schemas.ColumnInt),
		col("assisted_referrals", schemas.ColumnInt),
	)
	for _, t := range tiers {
		m := cfg.StaffWeights[t]
		norm := 0.0
		if maxMult > 0 {
			norm = m / maxMult
		}
		multipliers.MustAddRow(t, m, norm, tierEntities[t], assisted[t])
	}

	staffShare := 0.0
	if a := byKind[schemas.KindStaff]; a != nil {
		staffShare = ratio(a.referrals, g.EdgeCount())
	}
	return schemas.Artifact{
		Main:   main,
		Extras: []schemas.Table{multipliers},
		Summary: map[string]float64{
			"staff_referral_share": staffShare,
			"staff_assisted_share": ratio(assistedTotal, g.EdgeCount()),
		},
	}
}

// tierKey maps a tier label to its staff_weights key; unknown tiers fall into
// the default tier.
func tierKey(cfg config.ReferralConfig, tier string) string {
	k := strings.ToLower(strings.TrimSpace(tier))
	if _, ok := cfg.StaffWeights[k]; ok {
		return k
	}
	return config.DefaultStaffTier
}

// CodeAttribution (R06) counts referrals per decoded label of every coded
// field. Unknown sentinels are kept and flagged so coverage gaps stay visible.
// The branch influence table relates branch volume to referrer scores.
func CodeAttribution(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact {
	v := newView(g, scores, profiles)
	edges := g.Edges()

	main := schemas.NewTable("code_attribution",
		col("field", schemas.ColumnString),
		col("label", schemas.ColumnString),
		col("referrals", schemas.ColumnInt),
		col("share", schemas.ColumnFloat),
		col("unknown", schemas.ColumnBool),
	)

	unknownLabels, unknownRefs, coded := 0, 0, 0
	for _, f := range decode.Fields {
		counts := map[string]int{}
		for _, e := range edges {
			counts[labelOf(e, f)]++
		}
		labels := make([]string, 0, len(counts))
		for l := range counts {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			if counts[labels[i]] != counts[labels[j]] {
				return counts[labels[i]] > counts[labels[j]]
			}
			return labels[i] < labels[j]
		})
		for _, l := range labels {
			unknown := decode.IsUnknown(l)
			main.MustAddRow(string(f), l, counts[l], ratio(counts[l], len(edges)), unknown)
			if l != decode.NoneLabel {
				coded += counts[l]
			}
			if unknown {
				unknownLabels++
				unknownRefs += counts[l]
			}
		}
	}

	type branch struct {
		referrals int
		referrers map[int]struct{}
		score     float64
	}
	branches := map[string]*branch{}
	for _, e := range edges {
		b, ok := branches[e.BranchLabel]
		if !ok {
			b = &branch{referrers: map[int]struct{}{}}
			branches[e.BranchLabel] = b
		}
		b.referrals++
		if _, seen := b.referrers[e.From]; !seen {
			b.referrers[e.From] = struct{}{}
			b.score += v.score(g.Entity(e.From).ID)
		}
	}
	names := make([]string, 0, len(branches))
	for n := range branches {
		names = append(names, n)
	}
	sort.Strings(names)

	density := schemas.NewTable("branch_influence_density",
		col("branch", schemas.ColumnString),
		col("referrals", schemas.ColumnInt),
		col("referrers", schemas.ColumnInt),
		col("referrals_per_referrer", schemas.ColumnFloat),
		col("mean_referrer_score", schemas.ColumnFloat),
	)
	for _, n := range names {
		b := branches[n]
		density.MustAddRow(n, b.referrals, len(b.referrers),
			ratio(b.referrals, len(b.referrers)), b.score/float64(len(b.referrers)))
	}

	return schemas.Artifact{
		Main:   main,
		Extras: []schemas.Table{density},
		Summary: map[string]float64{
			"unknown_labels": float64(unknownLabels),
			"unknown_share":  ratio(unknownRefs, coded),
			"branches":       float64(len(names)),
		},
	}
}

func labelOf(e schemas.ReferralEdge, f decode.Field) string {
	var l string
	switch f {
	case decode.FieldSource:
		l = e.SourceLabel
	case decode.FieldBranch:
		l = e.BranchLabel
	case decode.FieldStaff:
		l = e.StaffLabel
	case decode.FieldOutcome:
		l = e.OutcomeLabel
	}
	if l == "" {
		return decode.NoneLabel
	}
	return l
}

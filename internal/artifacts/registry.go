// Package artifacts derives the eight fixed analyses of a run. Each artifact
// is a pure function of the frozen graph, the scores, the temporal profiles
// and the referral configuration; none of them mutates its inputs.
package artifacts

import (
	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// Func computes one artifact.
type Func func(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) schemas.Artifact

// Definition binds a stable id and name to an artifact function.
type Definition struct {
	ID    schemas.ArtifactID
	Name  string
	Title string
	Build Func
}

var registry = []Definition{
	{schemas.ArtifactTopReferrers, "top_referrers", "Top Referrers", TopReferrers},
	{schemas.ArtifactNetworkReach, "network_reach", "Network Reach and Chain Depth", NetworkReach},
	{schemas.ArtifactReferralFunnel, "referral_funnel", "Referral Funnel", ReferralFunnel},
	{schemas.ArtifactTemporalSegments, "temporal_segments", "Burst and Dormancy Segments", TemporalSegments},
	{schemas.ArtifactStaffContribution, "staff_member_contribution", "Staff vs Member Contribution", StaffMemberContribution},
	{schemas.ArtifactCodeAttribution, "code_attribution", "Source and Code Attribution", CodeAttribution},
	{schemas.ArtifactVolumeTimeseries, "volume_timeseries", "Referral Volume Over Time", VolumeTimeseries},
	{schemas.ArtifactScoreDistribution, "score_distribution", "Influence Score Distribution", ScoreDistribution},
}

// Registry returns the artifact definitions in R01..R08 order.
func Registry() []Definition {
	out := make([]Definition, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a definition by id.
func Lookup(id schemas.ArtifactID) (Definition, bool) {
	for _, d := range registry {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Generate computes every registered artifact. The result always has one
// entry per definition, in registry order.
func Generate(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile, cfg config.ReferralConfig) []schemas.Artifact {
	out := make([]schemas.Artifact, len(registry))
	for i, d := range registry {
		a := d.Build(g, scores, profiles, cfg)
		a.ID, a.Name, a.Title = d.ID, d.Name, d.Title
		if a.Summary == nil {
			a.Summary = map[string]float64{}
		}
		out[i] = a
	}
	return out
}

// view indexes scores and profiles by entity id so artifacts do not depend on
// slice alignment.
type view struct {
	g        *graph.Graph
	scores   map[string]schemas.InfluenceScore
	profiles map[string]schemas.TemporalProfile
}

func newView(g *graph.Graph, scores []schemas.InfluenceScore, profiles []schemas.TemporalProfile) view {
	v := view{
		g:        g,
		scores:   make(map[string]schemas.InfluenceScore, len(scores)),
		profiles: make(map[string]schemas.TemporalProfile, len(profiles)),
	}
	for _, s := range scores {
		v.scores[s.EntityID] = s
	}
	for _, p := range profiles {
		v.profiles[p.EntityID] = p
	}
	return v
}

func (v view) score(id string) float64 {
	return v.scores[id].Score
}

func col(name string, t schemas.ColumnType) schemas.Column {
	return schemas.Column{Name: name, Type: t}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

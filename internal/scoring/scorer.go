// Package scoring computes the 0-100 influence score of every entity from
// graph metrics, temporal profiles and staff-assist weighting.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// Scorer is a pure function of a frozen graph, its temporal profiles and the
// configuration it was created with. Weights are used as validated; they are
// never re-normalized here.
type Scorer struct {
	cfg      config.ReferralConfig
	weights  config.ScoringWeights
	maxStaff float64
	log      *zap.Logger
}

// NewScorer validates the weights of cfg and returns a scorer. An invalid
// weight set yields a *config.ConfigError.
func NewScorer(cfg config.ReferralConfig, logger *zap.Logger) (*Scorer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := cfg.Weights()
	if err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:      cfg,
		weights:  w,
		maxStaff: cfg.MaxStaffMultiplier(),
		log:      logger.Named("scorer"),
	}, nil
}

// Score returns one InfluenceScore per entity in arena order. profiles must be
// indexed like the graph's entities.
func (s *Scorer) Score(g *graph.Graph, profiles []schemas.TemporalProfile) ([]schemas.InfluenceScore, error) {
	n := g.Len()
	if len(profiles) != n {
		return nil, fmt.Errorf("%w: %d temporal profiles for %d entities", graph.ErrGraphIntegrity, len(profiles), n)
	}

	volume := make([]float64, n)
	reach := make([]float64, n)
	for i := 0; i < n; i++ {
		m := g.Metrics(i)
		volume[i] = math.Log1p(float64(m.OutDegree))
		reach[i] = float64(m.Reach)
	}
	volume = minMax(volume)
	reach = minMax(reach)

	out := make([]schemas.InfluenceScore, n)
	for i := 0; i < n; i++ {
		e := g.Entity(i)
		if profiles[i].EntityID != e.ID {
			return nil, fmt.Errorf("%w: profile %d belongs to '%s', expected '%s'", graph.ErrGraphIntegrity, i, profiles[i].EntityID, e.ID)
		}
		c := schemas.ScoreComponents{
			Volume:      volume[i],
			Reach:       reach[i],
			Recency:     s.recency(profiles[i]),
			StaffAssist: s.staffAssist(e, g.OutEdges(i)),
		}
		out[i] = s.compose(e.ID, c)
	}

	s.log.Info("Influence scores computed",
		zap.Int("entities", n),
		zap.String("config_version", s.cfg.Version))
	return out, nil
}

// compose applies the weights. Contributions are expressed in score points
// and add up to the unclamped score.
func (s *Scorer) compose(id string, c schemas.ScoreComponents) schemas.InfluenceScore {
	contrib := schemas.ScoreComponents{
		Volume:      100 * s.weights.Volume * c.Volume,
		Reach:       100 * s.weights.Reach * c.Reach,
		Recency:     100 * s.weights.Recency * c.Recency,
		StaffAssist: 100 * s.weights.StaffAssist * c.StaffAssist,
	}
	total := contrib.Volume + contrib.Reach + contrib.Recency + contrib.StaffAssist
	return schemas.InfluenceScore{
		EntityID:      id,
		Score:         clamp(total, 0, 100),
		Components:    c,
		Contributions: contrib,
		ConfigVersion: s.cfg.Version,
	}
}

// recency is zero for dormant entities and entities that never referred.
func (s *Scorer) recency(p schemas.TemporalProfile) float64 {
	if !p.HasActivity() || p.State == schemas.StateDormant || s.cfg.DormancyGap <= 0 {
		return 0
	}
	return clamp(1-float64(p.Gap)/float64(s.cfg.DormancyGap), 0, 1)
}

// staffAssist is the normalized tier multiplier for staff entities. For
// everybody else it is the staff-weighted share of their outgoing referrals
// that carried a staff code.
func (s *Scorer) staffAssist(e schemas.Entity, edges []schemas.ReferralEdge) float64 {
	if s.maxStaff <= 0 {
		return 0
	}
	if e.Kind == schemas.KindStaff {
		return clamp(s.cfg.StaffMultiplier(e.StaffTier)/s.maxStaff, 0, 1)
	}
	if len(edges) == 0 {
		return 0
	}
	sum := 0.0
	for _, edge := range edges {
		if edge.StaffAssisted() {
			sum += s.cfg.StaffMultiplier(edge.StaffLabel) / s.maxStaff
		}
	}
	return clamp(sum/float64(len(edges)), 0, 1)
}

// minMax rescales values to [0,1]. A zero-width range maps everything to 0.
func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// Ranked returns the scores ordered by descending score; ties break on the
// entity id so the order is deterministic.
func Ranked(scores []schemas.InfluenceScore) []schemas.InfluenceScore {
	out := make([]schemas.InfluenceScore, len(scores))
	copy(out, scores)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

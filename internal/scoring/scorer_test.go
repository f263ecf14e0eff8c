package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/graph"
)

// -- Test Helper Functions --

type testEdge struct {
	from, to   string
	staffLabel string
}

func testConfig() config.ReferralConfig {
	cfg := config.Default().Referral
	cfg.StaffWeights = map[string]float64{"default": 1.0, "manager": 1.5}
	return cfg
}

// fixture builds a graph plus steady temporal profiles with the given gap.
func fixture(t *testing.T, entities []schemas.Entity, edges []testEdge, gap time.Duration) (*graph.Graph, []schemas.TemporalProfile) {
	t.Helper()
	b := graph.NewBuilder(6, zap.NewNop())
	idx := map[string]int{}
	for _, e := range entities {
		i, err := b.AddEntity(e)
		require.NoError(t, err)
		idx[e.ID] = i
	}
	for k, e := range edges {
		edge := schemas.ReferralEdge{From: idx[e.from], To: idx[e.to], RecordIndex: k}
		if e.staffLabel != "" {
			edge.StaffCode = "S"
			edge.StaffLabel = e.staffLabel
		}
		require.NoError(t, b.AddEdge(edge))
	}
	g, err := b.Freeze()
	require.NoError(t, err)

	profiles := make([]schemas.TemporalProfile, g.Len())
	for i := range profiles {
		e := g.Entity(i)
		p := schemas.TemporalProfile{EntityID: e.ID, State: schemas.StateInsufficientData}
		if n := len(g.OutEdges(i)); n > 0 {
			p.Events = n
			p.Gap = gap
			p.State = schemas.StateSteady
		}
		profiles[i] = p
	}
	return g, profiles
}

func people(ids ...string) []schemas.Entity {
	out := make([]schemas.Entity, len(ids))
	for i, id := range ids {
		out[i] = schemas.Entity{ID: id, Kind: schemas.KindMember}
	}
	return out
}

func byID(scores []schemas.InfluenceScore) map[string]schemas.InfluenceScore {
	out := map[string]schemas.InfluenceScore{}
	for _, s := range scores {
		out[s.EntityID] = s
	}
	return out
}

// -- Test Cases --

func TestNewScorerRejectsInvalidWeights(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.ScoringWeights = map[string]float64{"volume": 0.5, "reach": 0.45}

	s, err := NewScorer(cfg, nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestScoresAreBounded(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	g, profiles := fixture(t, people("a", "b", "c", "d", "e"), []testEdge{
		{"a", "b", ""}, {"a", "c", "manager"}, {"a", "d", ""}, {"b", "c", ""},
		{"c", "a", ""}, {"d", "d", ""}, {"e", "a", "manager"},
	}, 24*time.Hour)

	scores, err := s.Score(g, profiles)
	require.NoError(t, err)
	require.Len(t, scores, g.Len())
	for _, sc := range scores {
		assert.GreaterOrEqual(t, sc.Score, 0.0)
		assert.LessOrEqual(t, sc.Score, 100.0)
		for _, c := range []float64{sc.Components.Volume, sc.Components.Reach, sc.Components.Recency, sc.Components.StaffAssist} {
			assert.GreaterOrEqual(t, c, 0.0)
			assert.LessOrEqual(t, c, 1.0)
		}
		sum := sc.Contributions.Volume + sc.Contributions.Reach + sc.Contributions.Recency + sc.Contributions.StaffAssist
		assert.InDelta(t, sc.Score, sum, 1e-9)
		assert.Equal(t, "v1", sc.ConfigVersion)
	}
}

func TestSingleEntityZeroDenominator(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	g, profiles := fixture(t, people("solo"), []testEdge{{"solo", "solo", ""}}, 0)
	scores, err := s.Score(g, profiles)
	require.NoError(t, err)

	require.Len(t, scores, 1)
	sc := scores[0]
	assert.Equal(t, 0.0, sc.Components.Volume)
	assert.Equal(t, 0.0, sc.Components.Reach)
	assert.Equal(t, 1.0, sc.Components.Recency)
	assert.False(t, math.IsNaN(sc.Score))
	assert.InDelta(t, 25.0, sc.Score, 1e-9)
}

func TestScoreIsMonotonicInVolume(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	g, profiles := fixture(t, people("big", "small", "x", "y", "z"), []testEdge{
		{"big", "x", ""}, {"big", "y", ""}, {"big", "z", ""},
		{"small", "x", ""},
	}, 0)
	scores, err := s.Score(g, profiles)
	require.NoError(t, err)

	m := byID(scores)
	assert.Greater(t, m["big"].Components.Volume, m["small"].Components.Volume)
	assert.Greater(t, m["big"].Score, m["small"].Score)
	assert.Equal(t, 1.0, m["big"].Components.Volume)
	assert.Equal(t, 0.0, m["x"].Components.Volume)
}

func TestRecency(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	s, err := NewScorer(cfg, zap.NewNop())
	require.NoError(t, err)

	testCases := []struct {
		name    string
		profile schemas.TemporalProfile
		want    float64
	}{
		{"no activity", schemas.TemporalProfile{}, 0},
		{"dormant", schemas.TemporalProfile{Events: 4, State: schemas.StateDormant, Gap: cfg.DormancyGap * 2}, 0},
		{"active today", schemas.TemporalProfile{Events: 4, State: schemas.StateSteady}, 1},
		{"half way", schemas.TemporalProfile{Events: 4, State: schemas.StateBurst, Gap: cfg.DormancyGap / 2}, 0.5},
		{"single event", schemas.TemporalProfile{Events: 1, State: schemas.StateInsufficientData, Gap: cfg.DormancyGap / 4}, 0.75},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, s.recency(tt.profile), 1e-9)
		})
	}
}

func TestStaffAssist(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	entities := []schemas.Entity{
		{ID: "mgr", Kind: schemas.KindStaff, StaffTier: "Manager"},
		{ID: "teller", Kind: schemas.KindStaff, StaffTier: "Teller"},
		{ID: "member", Kind: schemas.KindMember},
		{ID: "x", Kind: schemas.KindExternal},
	}
	g, profiles := fixture(t, entities, []testEdge{
		{"member", "x", "manager"},
		{"member", "x", "default"},
		{"member", "x", ""},
		{"member", "x", ""},
	}, 0)
	scores, err := s.Score(g, profiles)
	require.NoError(t, err)

	m := byID(scores)
	assert.InDelta(t, 1.0, m["mgr"].Components.StaffAssist, 1e-9)
	assert.InDelta(t, 1.0/1.5, m["teller"].Components.StaffAssist, 1e-9, "unknown tiers use the default multiplier")
	assert.InDelta(t, (1.0+1.0/1.5)/4, m["member"].Components.StaffAssist, 1e-9)
	assert.Equal(t, 0.0, m["x"].Components.StaffAssist)
}

func TestScoringIsDeterministic(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	g, profiles := fixture(t, people("a", "b", "c"), []testEdge{{"a", "b", ""}, {"b", "c", "manager"}, {"c", "a", ""}}, time.Hour)
	first, err := s.Score(g, profiles)
	require.NoError(t, err)
	second, err := s.Score(g, profiles)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScoreRejectsMismatchedProfiles(t *testing.T) {
	t.Parallel()
	s, err := NewScorer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	g, profiles := fixture(t, people("a", "b"), []testEdge{{"a", "b", ""}}, 0)
	_, err = s.Score(g, profiles[:1])
	assert.ErrorIs(t, err, graph.ErrGraphIntegrity)

	profiles[0].EntityID = "other"
	_, err = s.Score(g, profiles)
	assert.ErrorIs(t, err, graph.ErrGraphIntegrity)
}

func TestRanked(t *testing.T) {
	t.Parallel()
	in := []schemas.InfluenceScore{{EntityID: "b", Score: 10}, {EntityID: "c", Score: 50}, {EntityID: "a", Score: 10}}
	out := Ranked(in)

	assert.Equal(t, []string{"c", "a", "b"}, []string{out[0].EntityID, out[1].EntityID, out[2].EntityID})
	assert.Equal(t, "b", in[0].EntityID, "input must not be reordered")
}

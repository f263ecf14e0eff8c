package results

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
)

// -- Test Helper Functions --

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func rec(i int, from, to string, day int) schemas.RawReferralRecord {
	return schemas.RawReferralRecord{
		Index:        i,
		ReferrerName: from,
		ReferredName: to,
		Timestamp:    t0.AddDate(0, 0, day),
	}
}

func testConfig() config.ReferralConfig {
	cfg := config.Default().Referral
	cfg.BurstMinCount = 3
	cfg.CodePrefixMap = map[string]string{"WEB": "Online", "STF-M": "Manager", "BR-N": "North"}
	cfg.StaffWeights = map[string]float64{"default": 1.0, "manager": 1.5}
	return cfg
}

func entityNamed(t *testing.T, res *schemas.RunResult, canonical string) (schemas.Entity, schemas.EntityMetrics, schemas.TemporalProfile) {
	t.Helper()
	for i, e := range res.Entities {
		if e.Canonical == canonical {
			return e, res.Metrics[i], res.Profiles[i]
		}
	}
	t.Fatalf("entity %q not found", canonical)
	return schemas.Entity{}, schemas.EntityMetrics{}, schemas.TemporalProfile{}
}

// -- Test Cases --

func TestBurstReferrerScenario(t *testing.T) {
	t.Parallel()
	records := []schemas.RawReferralRecord{
		rec(0, "Alice", "Bob", 1),
		rec(1, "Alice", "Carol", 2),
		rec(2, "Alice", "Dana", 3),
	}

	res, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)

	alice, m, p := entityNamed(t, res, "alice")
	assert.Equal(t, schemas.StateBurst, p.State)
	assert.Equal(t, 3, m.OutDegree)
	assert.GreaterOrEqual(t, m.Reach, 3)
	assert.Len(t, res.Edges, 3)
	assert.Len(t, res.Scores, len(res.Entities))
	assert.Len(t, res.Artifacts, 8)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, records[2].Timestamp, res.AsOf)

	top, ok := res.Artifact(schemas.ArtifactTopReferrers)
	require.True(t, ok)
	require.NotEmpty(t, top.Main.Rows)
	assert.Equal(t, alice.ID, top.Main.Rows[0][top.Main.ColumnIndex("entity_id")])
}

func TestSelfReferralScenario(t *testing.T) {
	t.Parallel()
	res, err := RunPipeline(context.Background(), []schemas.RawReferralRecord{rec(0, "Bob", "Bob", 0)}, testConfig(), zap.NewNop())
	require.NoError(t, err)

	require.Len(t, res.Edges, 1)
	assert.True(t, res.Edges[0].SelfLoop)
	_, m, p := entityNamed(t, res, "bob")
	assert.Equal(t, 0, m.OutDegree)
	assert.Equal(t, 0, m.Reach)
	assert.Equal(t, schemas.StateInsufficientData, p.State)

	funnel, ok := res.Artifact(schemas.ArtifactReferralFunnel)
	require.True(t, ok)
	counts := map[string]interface{}{}
	for _, row := range funnel.Main.Rows {
		counts[row[0].(string)] = row[1]
	}
	assert.Equal(t, 1, counts["referral_edges"])
	assert.Equal(t, 1, counts["self_loops"])
}

func TestNameVariantsMergeScenario(t *testing.T) {
	t.Parallel()
	records := []schemas.RawReferralRecord{
		rec(0, "Jane Doe", "Bob Stone", 0),
		rec(1, "JANE DOE, ", "Carla Diaz", 1),
	}
	res, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)

	jane, m, _ := entityNamed(t, res, "jane doe")
	assert.Equal(t, 2, m.OutDegree)
	assert.ElementsMatch(t, []string{"Jane Doe", "JANE DOE,"}, jane.RawIDs)
	assert.Len(t, res.Entities, 3)
}

func TestInvalidWeightsFailBeforeProcessing(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.DebugLevel)
	cfg := testConfig()
	cfg.ScoringWeights = map[string]float64{"volume": 0.4, "reach": 0.25, "recency": 0.2, "staff_assist": 0.1}

	res, err := RunPipeline(context.Background(), []schemas.RawReferralRecord{rec(0, "A", "B", 0)}, cfg, zap.New(core))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 0, logs.Len(), "no record may be processed")
}

func TestPartialFailureIsolation(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)

	dup := rec(3, "Alice", "Bob", 1)
	records := []schemas.RawReferralRecord{
		rec(0, "Alice", "Bob", 1),
		{Index: 1, ReferrerName: "   ", ReferredName: "Bob", Timestamp: t0},
		{Index: 2, ReferrerName: "Alice", ReferredName: "Bob"},
		dup,
		rec(4, "?!", "Bob", 2),
		rec(5, "Alice", "Carol", 2),
	}
	res, err := RunPipeline(context.Background(), records, testConfig(), zap.New(core))
	require.NoError(t, err)

	assert.Equal(t, schemas.IngestStats{RawRecords: 6, InvalidRecords: 2, UnresolvedRecords: 1, DuplicateRecords: 1}, res.Stats)
	assert.Len(t, res.Edges, res.Stats.ValidRecords())
	assert.Equal(t, 2, logs.FilterMessage("Invalid record skipped").Len())

	kinds := map[schemas.WarningKind]int{}
	for _, w := range res.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 2, kinds[schemas.WarnInvalidRecord])
	assert.Equal(t, 1, kinds[schemas.WarnUnresolvedIdentity])
}

func TestRejectedTimestampReasonReachesWarning(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "referrals.csv")
	require.NoError(t, os.WriteFile(path, []byte("referrer,referred,date\nAlice,Bob,next tuesday\nAlice,Carol,2024-06-02\n"), 0o600))

	res, err := RunReferral(context.Background(), path, testConfig(), zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 1, res.Stats.InvalidRecords)

	var invalid []schemas.Warning
	for _, w := range res.Warnings {
		if w.Kind == schemas.WarnInvalidRecord {
			invalid = append(invalid, w)
		}
	}
	require.Len(t, invalid, 1)
	assert.Equal(t, 0, invalid[0].RecordIndex)
	assert.Contains(t, invalid[0].Message, "invalid timestamp")
	assert.Contains(t, invalid[0].Message, `"next tuesday"`)
}

func TestExcludedRecordAddsNoEntity(t *testing.T) {
	t.Parallel()
	records := []schemas.RawReferralRecord{
		rec(0, "Orphan Person", "!!!", 0),
		rec(1, "Alice", "Bob", 1),
	}
	res, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.UnresolvedRecords)
	assert.Len(t, res.Edges, 1)
	require.Len(t, res.Entities, 2)
	assert.Len(t, res.Scores, 2)
	for _, e := range res.Entities {
		assert.NotEqual(t, "orphan person", e.Canonical, "the referrer of an excluded record must not become an entity")
	}

	scoreDist, ok := res.Artifact(schemas.ArtifactScoreDistribution)
	require.True(t, ok)
	assert.Equal(t, 2.0, scoreDist.Summary["entities"])
}

func TestCodesAndStaffDetection(t *testing.T) {
	t.Parallel()
	records := []schemas.RawReferralRecord{
		{Index: 0, ReferrerName: "STF-M1", ReferredName: "Bob Stone", Timestamp: t0, SourceCode: "web01", StaffCode: "STF-M1", BranchCode: "BR-N2"},
		{Index: 1, ReferrerName: "Ann Lee", ReferrerAccount: "77", ReferredName: "Carla Diaz", Timestamp: t0, SourceCode: "ZZ9", StaffCode: "STF-M1"},
		{Index: 2, ReferrerName: "Ann Lee", ReferrerAccount: "77", ReferredName: "Dev Ray", Timestamp: t0.Add(time.Hour), SourceCode: "ZZ9"},
	}
	res, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)

	staff, _, _ := entityNamed(t, res, "stf m1")
	assert.Equal(t, schemas.KindStaff, staff.Kind)
	assert.Equal(t, "Manager", staff.StaffTier)
	ann, _, _ := entityNamed(t, res, "ann lee")
	assert.Equal(t, schemas.KindMember, ann.Kind)

	assert.Equal(t, "Online", res.Edges[0].SourceLabel)
	assert.Equal(t, "North", res.Edges[0].BranchLabel)
	assert.Equal(t, "Unknown:ZZ9", res.Edges[1].SourceLabel)
	assert.Equal(t, "None", res.Edges[2].StaffLabel)

	unknown := 0
	for _, w := range res.Warnings {
		if w.Kind == schemas.WarnUnknownCode {
			unknown++
			assert.Equal(t, "ZZ9", w.Raw)
		}
	}
	assert.Equal(t, 1, unknown, "one warning per distinct unknown code")

	for i, s := range res.Scores {
		assert.Equal(t, res.Entities[i].ID, s.EntityID)
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 100.0)
	}
}

func TestPipelineIsDeterministic(t *testing.T) {
	t.Parallel()
	records := []schemas.RawReferralRecord{
		rec(0, "Alice", "Bob", 1), rec(1, "Bob", "Alice", 2), rec(2, "Carol", "Alice", 30),
		rec(3, "Alice", "Dana", 31), rec(4, "Dana", "Evan", 90),
	}
	first, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)
	second, err := RunPipeline(context.Background(), records, testConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	first.RunID, second.RunID = "", ""
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("runs differ (-first +second):\n%s", diff)
	}
}

func TestPipelineCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunPipeline(ctx, []schemas.RawReferralRecord{rec(0, "A", "B", 0)}, testConfig(), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunReferral(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "referrals.csv")
	content := "referrer,referred,date,source\nAlice,Bob,2024-01-01,WEB1\nAlice,Carol,2024-01-02,WEB1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	res, err := RunReferral(context.Background(), path, testConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, path, res.Source)
	assert.Len(t, res.Edges, 2)
	assert.Len(t, res.Artifacts, 8)

	_, err = RunReferral(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), testConfig(), zap.NewNop())
	assert.Error(t, err)
}

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/config"
	"github.com/xkilldash9x/refintel/internal/engine"
	"github.com/xkilldash9x/refintel/internal/mocks"
	"github.com/xkilldash9x/refintel/internal/results"
	"github.com/xkilldash9x/refintel/internal/store"
)

// -- Test Fixture Setup --

// localFactory builds a runner without a database.
type localFactory struct{}

func (localFactory) Create(ctx context.Context, cfg *config.Config, persist bool) (*Components, error) {
	if persist {
		return nil, errors.New("no database in tests")
	}
	runner, err := engine.New(cfg, zap.NewNop(), nil)
	if err != nil {
		return nil, err
	}
	return &Components{Runner: runner}, nil
}

func sampleRun(t *testing.T) *schemas.RunResult {
	t.Helper()
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	records := []schemas.RawReferralRecord{
		{Index: 0, ReferrerName: "Alice", ReferredName: "Bob", Timestamp: at},
		{Index: 1, ReferrerName: "Alice", ReferredName: "Carol", Timestamp: at.AddDate(0, 0, 1)},
		{Index: 2, ReferrerName: "Bob", ReferredName: "Dana", Timestamp: at.AddDate(0, 0, 2), SourceCode: "ZZ"},
		{Index: 3, ReferrerName: "", ReferredName: "Dana", Timestamp: at},
	}
	res, err := results.RunPipeline(context.Background(), records, config.Default().Referral, zap.NewNop())
	require.NoError(t, err)
	return res
}

// -- Test Cases --

func TestRenderFormats(t *testing.T) {
	res := sampleRun(t)
	doc := docFromResult(res)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoc(&buf, doc, FormatTable))
		out := strings.ToLower(buf.String())
		assert.Contains(t, out, "run "+res.RunID)
		assert.Contains(t, out, "r01 top referrers")
		assert.Contains(t, out, "4 raw, 1 invalid")
		assert.Contains(t, out, "warnings (2)")
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoc(&buf, doc, FormatMarkdown))
		assert.Contains(t, buf.String(), "### R08")
		assert.Contains(t, buf.String(), "| ")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoc(&buf, doc, FormatJSON))
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, res.RunID, decoded["run_id"])
		assert.Len(t, decoded["artifacts"], 8)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderDoc(&buf, doc, FormatYAML))
		var decoded map[string]interface{}
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, res.RunID, decoded["run_id"])
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, renderDoc(&bytes.Buffer{}, doc, "xml"))
	})
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "0.50", formatCell(0.5))
	assert.Equal(t, "3", formatCell(3))
	assert.Equal(t, "2024-01-02", formatCell(time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)))
	assert.Equal(t, "summary: a=1 b=0.25", summaryLine(map[string]float64{"b": 0.25, "a": 1}))
}

func TestReferralCommand(t *testing.T) {
	config.Set(config.Default())

	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	require.NoError(t, os.WriteFile(good, []byte("referrer,referred,date\nAlice,Bob,2024-01-01\nAlice,Carol,2024-01-03\n"), 0o600))

	t.Run("renders json with charts", func(t *testing.T) {
		cmd := newReferralCmd(localFactory{})
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{good, "--format", "json", "--charts"})
		require.NoError(t, cmd.ExecuteContext(context.Background()))

		var doc reportDoc
		require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
		assert.Len(t, doc.Artifacts, 8)
		assert.Len(t, doc.Charts, 5)
		assert.Equal(t, good, doc.Source)
	})

	t.Run("reports failed files", func(t *testing.T) {
		cmd := newReferralCmd(localFactory{})
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{good, filepath.Join(dir, "missing.csv"), "--format", "table"})

		err := cmd.ExecuteContext(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 2 runs failed")
		assert.Contains(t, out.String(), "missing.csv: run failed")
		assert.Contains(t, out.String(), "R01")
	})

	t.Run("rejects unknown formats", func(t *testing.T) {
		cmd := newReferralCmd(localFactory{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{good, "--format", "xml"})
		assert.Error(t, cmd.ExecuteContext(context.Background()))
	})

	t.Run("persist needs a database", func(t *testing.T) {
		cmd := newReferralCmd(localFactory{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{good, "--persist"})
		assert.Error(t, cmd.ExecuteContext(context.Background()))
	})
}

func TestWriteReport(t *testing.T) {
	ctx := context.Background()
	res := sampleRun(t)

	t.Run("prints stored artifacts", func(t *testing.T) {
		reader := new(mocks.MockStore)
		reader.On("GetRun", mock.Anything, res.RunID).Return(store.RunSummary{
			RunID: res.RunID, Source: "referrals.csv", ConfigVersion: "v1", AsOf: res.AsOf, Stats: res.Stats,
		}, nil)
		reader.On("GetArtifacts", mock.Anything, res.RunID).Return(res.Artifacts, nil)

		var out bytes.Buffer
		require.NoError(t, writeReport(ctx, &out, reader, res.RunID, outputOptions{format: FormatYAML, charts: true}))

		var doc reportDoc
		require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
		assert.Equal(t, res.RunID, doc.RunID)
		assert.Len(t, doc.Artifacts, 8)
		assert.Len(t, doc.Charts, 5)
		reader.AssertExpectations(t)
	})

	t.Run("propagates unknown runs", func(t *testing.T) {
		reader := new(mocks.MockStore)
		reader.On("GetRun", mock.Anything, "nope").Return(nil, store.ErrRunNotFound)

		err := writeReport(ctx, &bytes.Buffer{}, reader, "nope", outputOptions{format: FormatTable})
		assert.ErrorIs(t, err, store.ErrRunNotFound)
		reader.AssertNotCalled(t, "GetArtifacts", mock.Anything, mock.Anything)
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	assert.True(t, strings.HasPrefix(out.String(), "refintel "))
}

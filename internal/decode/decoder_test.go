package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/refintel/api/schemas"
)

func testTable() *Table {
	return NewTable(map[string]string{
		"WEB":   "Online Banking",
		"BR":    "Branch",
		"BR01":  "Main Street Branch",
		"STF-M": "Manager",
		"stf":   "Staff",
		"OK":    "Opened",
	})
}

func TestTableLookup(t *testing.T) {
	t.Parallel()
	table := testTable()

	testCases := []struct {
		name  string
		code  string
		label string
		known bool
	}{
		{"exact prefix", "WEB", "Online Banking", true},
		{"longer code", "WEB-2024-77", "Online Banking", true},
		{"longest prefix wins", "BR0142", "Main Street Branch", true},
		{"shorter prefix fallback", "BR07", "Branch", true},
		{"case insensitive", "stf-m-19", "Manager", true},
		{"lower case key", "STF9", "Staff", true},
		{"surrounding whitespace", "  ok ", "Opened", true},
		{"no match", "XYZ", "", false},
		{"blank", "   ", "", false},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			label, ok := table.Lookup(tt.code)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestTableLabelSentinels(t *testing.T) {
	t.Parallel()
	table := testTable()

	assert.Equal(t, NoneLabel, table.Label(""))
	assert.Equal(t, "Unknown:XYZ-1", table.Label(" XYZ-1 "))
	assert.True(t, IsUnknown(table.Label("XYZ-1")))
	assert.False(t, IsUnknown(table.Label("WEB")))
}

func TestEmptyTableNeverFails(t *testing.T) {
	t.Parallel()
	table := NewTable(nil)
	assert.Equal(t, "Unknown:WEB", table.Label("WEB"))
}

func TestDecoderReportsUnknownCodesOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	report := &schemas.RunReport{}
	d := NewDecoder(testTable(), report, zap.New(core))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []schemas.RawReferralRecord{
		{Index: 0, ReferrerName: "a", ReferredName: "b", Timestamp: ts, SourceCode: "FAX1", StaffCode: "STF-M1"},
		{Index: 1, ReferrerName: "a", ReferredName: "c", Timestamp: ts, SourceCode: "FAX1"},
		{Index: 2, ReferrerName: "a", ReferredName: "d", Timestamp: ts, SourceCode: "WEB", OutcomeCode: "LOST"},
	}

	var decoded []Decoded
	for _, r := range records {
		decoded = append(decoded, d.DecodeRecord(r))
	}

	assert.Equal(t, "Unknown:FAX1", decoded[0].Source)
	assert.Equal(t, "Manager", decoded[0].Staff)
	assert.Equal(t, NoneLabel, decoded[0].Branch)
	assert.Equal(t, "Unknown:FAX1", decoded[1].Source, "unmapped codes keep their sentinel every time")
	assert.Equal(t, NoneLabel, decoded[1].Staff)
	assert.Equal(t, "Online Banking", decoded[2].Source)
	assert.Equal(t, "Unknown:LOST", decoded[2].Outcome)

	warnings := report.Warnings()
	require.Len(t, warnings, 2)
	assert.Equal(t, schemas.WarnUnknownCode, warnings[0].Kind)
	assert.Equal(t, "source", warnings[0].Field)
	assert.Equal(t, "FAX1", warnings[0].Raw)
	assert.Equal(t, 0, warnings[0].RecordIndex)
	assert.Equal(t, "outcome", warnings[1].Field)

	assert.Equal(t, 2, logs.FilterMessage("Unknown code, using sentinel label").Len())

	unknown := d.UnknownCodes()
	assert.Equal(t, []string{"FAX1"}, unknown[FieldSource])
	assert.Equal(t, []string{"LOST"}, unknown[FieldOutcome])
	assert.NotContains(t, unknown, FieldStaff)
}

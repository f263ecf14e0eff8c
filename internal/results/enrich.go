package results

import (
	"strings"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/decode"
)

// staffCodes collects the distinct staff codes of the run with their decoded
// tier. A name equal to one of them marks staff unless a type hint or an
// account says otherwise. Unmapped codes get no tier and fall back to the
// default multiplier.
func staffCodes(records []schemas.RawReferralRecord, table *decode.Table) map[string]string {
	out := make(map[string]string)
	for _, r := range records {
		code := strings.TrimSpace(r.StaffCode)
		if code == "" {
			continue
		}
		if _, ok := out[code]; ok {
			continue
		}
		tier, _ := table.Lookup(code)
		out[code] = tier
	}
	return out
}

// decodeEdges turns resolved records into labelled edges, in record order.
func decodeEdges(records []resolvedRecord, d *decode.Decoder) []schemas.ReferralEdge {
	edges := make([]schemas.ReferralEdge, len(records))
	for i, rec := range records {
		r := rec.raw
		labels := d.DecodeRecord(r)
		edges[i] = schemas.ReferralEdge{
			From:         rec.from,
			To:           rec.to,
			RecordIndex:  r.Index,
			Timestamp:    r.Timestamp.UTC(),
			SourceCode:   strings.TrimSpace(r.SourceCode),
			SourceLabel:  labels.Source,
			BranchCode:   strings.TrimSpace(r.BranchCode),
			BranchLabel:  labels.Branch,
			StaffCode:    strings.TrimSpace(r.StaffCode),
			StaffLabel:   labels.Staff,
			OutcomeCode:  strings.TrimSpace(r.OutcomeCode),
			OutcomeLabel: labels.Outcome,
			SelfLoop:     rec.from == rec.to,
		}
	}
	return edges
}

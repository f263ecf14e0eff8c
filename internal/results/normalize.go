package results

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
	"github.com/xkilldash9x/refintel/internal/normalize"
)

// resolvedRecord is a valid raw record whose two sides both resolved.
type resolvedRecord struct {
	raw  schemas.RawReferralRecord
	from int
	to   int
}

type ingested struct {
	records []resolvedRecord
	stats   schemas.IngestStats
}

// dedupKey identifies exact duplicates: same entities, same instant, same codes.
type dedupKey struct {
	from, to int
	at       int64
	source   string
	branch   string
	staff    string
	outcome  string
}

// ingest validates records, resolves both identities and drops exact
// duplicates. Malformed rows and unresolved identities are isolated with a
// warning; nothing here aborts the run.
func ingest(records []schemas.RawReferralRecord, norm *normalize.Normalizer, report *schemas.RunReport, log *zap.Logger) ingested {
	out := ingested{stats: schemas.IngestStats{RawRecords: len(records)}}
	seen := make(map[dedupKey]struct{}, len(records))

	for _, r := range records {
		if reason, ok := r.Validate(); !ok {
			out.stats.InvalidRecords++
			log.Warn("Invalid record skipped", zap.Int("record_index", r.Index), zap.String("reason", reason))
			report.Add(schemas.Warning{
				Kind:        schemas.WarnInvalidRecord,
				RecordIndex: r.Index,
				Message:     reason,
			})
			continue
		}

		hint, _ := schemas.ParseEntityKind(r.ReferrerType)
		from, to, ok := norm.ResolvePair(
			normalize.Identifier{Name: r.ReferrerName, Account: r.ReferrerAccount, KindHint: hint},
			normalize.Identifier{Name: r.ReferredName, Account: r.ReferredAccount},
			r.Index)
		if !ok {
			out.stats.UnresolvedRecords++
			continue
		}

		key := dedupKey{
			from: from.EntityIndex, to: to.EntityIndex,
			at:     r.Timestamp.UnixNano(),
			source: r.SourceCode, branch: r.BranchCode, staff: r.StaffCode, outcome: r.OutcomeCode,
		}
		if _, dup := seen[key]; dup {
			out.stats.DuplicateRecords++
			log.Debug("Exact duplicate record dropped", zap.Int("record_index", r.Index))
			continue
		}
		seen[key] = struct{}{}
		out.records = append(out.records, resolvedRecord{raw: r, from: from.EntityIndex, to: to.EntityIndex})
	}

	log.Info("Records ingested",
		zap.Int("raw", out.stats.RawRecords),
		zap.Int("invalid", out.stats.InvalidRecords),
		zap.Int("unresolved", out.stats.UnresolvedRecords),
		zap.Int("duplicates", out.stats.DuplicateRecords),
		zap.Int("valid", len(out.records)))
	return out
}

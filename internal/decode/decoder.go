// Package decode maps coded referral fields to human readable labels using the
// configured prefix table. Decoding never fails: codes without a matching
// prefix get the "Unknown:<raw>" sentinel and are still counted.
package decode

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
)

// Field names a coded column of a referral record.
type Field string

const (
	FieldSource  Field = "source"
	FieldBranch  Field = "branch"
	FieldStaff   Field = "staff"
	FieldOutcome Field = "outcome"
)

// Fields lists every decoded field in report order.
var Fields = []Field{FieldSource, FieldBranch, FieldStaff, FieldOutcome}

const (
	// UnknownPrefix starts every sentinel label for an unmapped code.
	UnknownPrefix = "Unknown:"
	// NoneLabel is used for blank codes. Blank is a value, not a coverage gap.
	NoneLabel = "None"
)

type prefixEntry struct {
	prefix string
	label  string
}

// Table is an immutable prefix lookup table.
type Table struct {
	entries []prefixEntry
}

// NewTable builds a lookup table; longer prefixes win, ties break alphabetically.
func NewTable(prefixMap map[string]string) *Table {
	entries := make([]prefixEntry, 0, len(prefixMap))
	for p, l := range prefixMap {
		entries = append(entries, prefixEntry{prefix: strings.ToUpper(strings.TrimSpace(p)), label: strings.TrimSpace(l)})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].prefix) != len(entries[j].prefix) {
			return len(entries[i].prefix) > len(entries[j].prefix)
		}
		return entries[i].prefix < entries[j].prefix
	})
	return &Table{entries: entries}
}

// Lookup returns the label of the longest matching prefix.
func (t *Table) Lookup(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return "", false
	}
	for _, e := range t.entries {
		if strings.HasPrefix(c, e.prefix) {
			return e.label, true
		}
	}
	return "", false
}

// Label decodes a code to its label or a sentinel.
func (t *Table) Label(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return NoneLabel
	}
	if label, ok := t.Lookup(trimmed); ok {
		return label
	}
	return UnknownPrefix + trimmed
}

// IsUnknown reports whether a label is the unmapped-code sentinel.
func IsUnknown(label string) bool {
	return strings.HasPrefix(label, UnknownPrefix)
}

// Decoder decodes the coded fields of one run and reports unknown codes once
// per distinct field/code pair.
type Decoder struct {
	table  *Table
	report *schemas.RunReport
	log    *zap.Logger
	seen   map[Field]map[string]struct{}
}

// NewDecoder creates a per-run decoder.
func NewDecoder(table *Table, report *schemas.RunReport, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[Field]map[string]struct{}, len(Fields))
	for _, f := range Fields {
		seen[f] = make(map[string]struct{})
	}
	return &Decoder{
		table:  table,
		report: report,
		log:    logger.Named("decoder"),
		seen:   seen,
	}
}

// Decode returns the label for a raw code of the given field.
func (d *Decoder) Decode(field Field, raw string, recordIndex int) string {
	label := d.table.Label(raw)
	if !IsUnknown(label) {
		return label
	}

	code := strings.TrimSpace(raw)
	if _, dup := d.seen[field][code]; dup {
		return label
	}
	d.seen[field][code] = struct{}{}

	d.log.Warn("Unknown code, using sentinel label",
		zap.String("field", string(field)),
		zap.String("code", code),
		zap.Int("record_index", recordIndex))
	if d.report != nil {
		d.report.Add(schemas.Warning{
			Kind:        schemas.WarnUnknownCode,
			RecordIndex: recordIndex,
			Field:       string(field),
			Raw:         code,
			Message:     "code not in prefix map; labelled " + label,
		})
	}
	return label
}

// Decoded holds the labels of one record's coded fields.
type Decoded struct {
	Source  string
	Branch  string
	Staff   string
	Outcome string
}

// DecodeRecord decodes every coded field of a record.
func (d *Decoder) DecodeRecord(r schemas.RawReferralRecord) Decoded {
	return Decoded{
		Source:  d.Decode(FieldSource, r.SourceCode, r.Index),
		Branch:  d.Decode(FieldBranch, r.BranchCode, r.Index),
		Staff:   d.Decode(FieldStaff, r.StaffCode, r.Index),
		Outcome: d.Decode(FieldOutcome, r.OutcomeCode, r.Index),
	}
}

// UnknownCodes returns the distinct unmapped codes seen per field, sorted.
func (d *Decoder) UnknownCodes() map[Field][]string {
	out := make(map[Field][]string, len(d.seen))
	for f, codes := range d.seen {
		if len(codes) == 0 {
			continue
		}
		list := make([]string, 0, len(codes))
		for c := range codes {
			list = append(list, c)
		}
		sort.Strings(list)
		out[f] = list
	}
	return out
}

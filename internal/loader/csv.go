package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/xkilldash9x/refintel/api/schemas"
)

type column int

const (
	colReferrerName column = iota
	colReferrerAccount
	colReferrerType
	colReferredName
	colReferredAccount
	colTimestamp
	colSource
	colBranch
	colStaff
	colOutcome
	numColumns
)

// headerAliases maps normalized header spellings to columns.
var headerAliases = map[string]column{
	"referrer":         colReferrerName,
	"referrer_name":    colReferrerName,
	"referred_by":      colReferrerName,
	"referring_member": colReferrerName,
	"referrer_account": colReferrerAccount,
	"referrer_acct":    colReferrerAccount,
	"referrer_acct_no": colReferrerAccount,
	"referrer_type":    colReferrerType,
	"referrer_kind":    colReferrerType,
	"referred":         colReferredName,
	"referred_name":    colReferredName,
	"referee":          colReferredName,
	"new_member":       colReferredName,
	"referred_account": colReferredAccount,
	"referred_acct":    colReferredAccount,
	"referred_acct_no": colReferredAccount,
	"timestamp":        colTimestamp,
	"date":             colTimestamp,
	"referral_date":    colTimestamp,
	"created_at":       colTimestamp,
	"source":           colSource,
	"source_code":      colSource,
	"channel":          colSource,
	"branch":           colBranch,
	"branch_code":      colBranch,
	"staff":            colStaff,
	"staff_code":       colStaff,
	"employee_code":    colStaff,
	"outcome":          colOutcome,
	"outcome_code":     colOutcome,
	"status":           colOutcome,
}

var requiredColumns = map[column]string{
	colReferrerName: "referrer_name",
	colReferredName: "referred_name",
	colTimestamp:    "timestamp",
}

// normalizeHeader lowercases a header and turns every run of non-alphanumeric
// characters into a single underscore.
func normalizeHeader(h string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	return b.String()
}

// ParseCSV reads records from CSV with a header row. Fully blank rows are
// skipped but still advance the record index so warnings point at the row.
func ParseCSV(r io.Reader) ([]schemas.RawReferralRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: file has no header row", ErrMissingColumn)
	}
	if err != nil {
		return nil, err
	}

	pos := make([]int, numColumns)
	for i := range pos {
		pos[i] = -1
	}
	for i, h := range header {
		if c, ok := headerAliases[normalizeHeader(h)]; ok && pos[c] < 0 {
			pos[c] = i
		}
	}
	for c, name := range requiredColumns {
		if pos[c] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var out []schemas.RawReferralRecord
	for index := 0; ; index++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", index+1, err)
		}
		if blank(row) {
			continue
		}

		cell := func(c column) string {
			if p := pos[c]; p >= 0 && p < len(row) {
				return strings.TrimSpace(row[p])
			}
			return ""
		}
		ts, tsErr := ParseTime(cell(colTimestamp))
		out = append(out, schemas.RawReferralRecord{
			Index:           index,
			ReferrerName:    cell(colReferrerName),
			ReferrerAccount: cell(colReferrerAccount),
			ReferrerType:    cell(colReferrerType),
			ReferredName:    cell(colReferredName),
			ReferredAccount: cell(colReferredAccount),
			Timestamp:       ts,
			TimestampError:  timestampProblem(tsErr),
			SourceCode:      cell(colSource),
			BranchCode:      cell(colBranch),
			StaffCode:       cell(colStaff),
			OutcomeCode:     cell(colOutcome),
		})
	}
	return out, nil
}

func blank(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Package loader reads referral record files (CSV, JSON or YAML) into raw
// records. It does no validation beyond locating the required columns;
// malformed rows are handed on and isolated by the engine.
package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/refintel/api/schemas"
)

var (
	// ErrUnsupportedFormat is returned for file extensions the loader cannot read.
	ErrUnsupportedFormat = errors.New("unsupported record file format")
	// ErrMissingColumn is returned when a required column has no header.
	ErrMissingColumn = errors.New("required column missing")
	// ErrMissingTimestamp is returned by ParseTime for a blank value.
	ErrMissingTimestamp = errors.New("missing timestamp")
	// ErrBadTimestamp is returned by ParseTime when no accepted layout matches.
	ErrBadTimestamp = errors.New("unparseable timestamp")
)

// timeLayouts are tried in order when parsing timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
}

// ParseTime parses a timestamp in any of the accepted layouts, in UTC.
// An empty or unparseable value yields the zero time and an error.
func ParseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w %q: expected a date such as 2006-01-02 or 01/02/2006", ErrBadTimestamp, raw)
}

// timestampProblem describes why a present timestamp was rejected. Blank and
// valid values yield "".
func timestampProblem(err error) string {
	if err == nil || errors.Is(err, ErrMissingTimestamp) {
		return ""
	}
	return err.Error()
}

// Loader reads record files.
type Loader struct {
	log *zap.Logger
}

// New creates a loader.
func New(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{log: logger.Named("loader")}
}

// LoadFile reads a file, choosing the format by extension.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]schemas.RawReferralRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var records []schemas.RawReferralRecord
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		records, err = ParseCSV(bytes.NewReader(content))
	case ".json":
		records, err = ParseJSON(content)
	case ".yaml", ".yml":
		records, err = ParseYAML(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	l.log.Info("Record file loaded", zap.String("path", path), zap.Int("records", len(records)))
	return records, nil
}

// fileRecord is the document shape of JSON and YAML record files.
type fileRecord struct {
	ReferrerName    string `json:"referrer_name" yaml:"referrer_name"`
	ReferrerAccount string `json:"referrer_account" yaml:"referrer_account"`
	ReferrerType    string `json:"referrer_type" yaml:"referrer_type"`
	ReferredName    string `json:"referred_name" yaml:"referred_name"`
	ReferredAccount string `json:"referred_account" yaml:"referred_account"`
	Timestamp       string `json:"timestamp" yaml:"timestamp"`
	SourceCode      string `json:"source_code" yaml:"source_code"`
	BranchCode      string `json:"branch_code" yaml:"branch_code"`
	StaffCode       string `json:"staff_code" yaml:"staff_code"`
	OutcomeCode     string `json:"outcome_code" yaml:"outcome_code"`
}

func (f fileRecord) toRaw(index int) schemas.RawReferralRecord {
	ts, err := ParseTime(f.Timestamp)
	return schemas.RawReferralRecord{
		Index:           index,
		ReferrerName:    f.ReferrerName,
		ReferrerAccount: f.ReferrerAccount,
		ReferrerType:    f.ReferrerType,
		ReferredName:    f.ReferredName,
		ReferredAccount: f.ReferredAccount,
		Timestamp:       ts,
		TimestampError:  timestampProblem(err),
		SourceCode:      f.SourceCode,
		BranchCode:      f.BranchCode,
		StaffCode:       f.StaffCode,
		OutcomeCode:     f.OutcomeCode,
	}
}

// ParseJSON reads a JSON array of records.
func ParseJSON(content []byte) ([]schemas.RawReferralRecord, error) {
	var docs []fileRecord
	if err := json.Unmarshal(content, &docs); err != nil {
		return nil, err
	}
	return convert(docs), nil
}

// ParseYAML reads a YAML sequence of records.
func ParseYAML(content []byte) ([]schemas.RawReferralRecord, error) {
	var docs []fileRecord
	if err := yaml.Unmarshal(content, &docs); err != nil {
		return nil, err
	}
	return convert(docs), nil
}

func convert(docs []fileRecord) []schemas.RawReferralRecord {
	out := make([]schemas.RawReferralRecord, len(docs))
	for i, d := range docs {
		out[i] = d.toRaw(i)
	}
	return out
}

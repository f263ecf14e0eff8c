package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/refintel/api/schemas"
)

// ErrRunNotFound is returned when no persisted run has the requested id.
var ErrRunNotFound = errors.New("referral run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ DBPool = (*pgxpool.Pool)(nil)

var (
	entityColumns = []string{"run_id", "entity_id", "display_name", "canonical", "account", "kind", "staff_tier",
		"out_degree", "in_degree", "volume", "self_loops", "reach", "chain_depth", "state"}
	edgeColumns = []string{"run_id", "record_index", "from_entity", "to_entity", "occurred_at",
		"source_label", "branch_label", "staff_label", "outcome_label", "self_loop"}
	scoreColumns = []string{"run_id", "entity_id", "score", "volume", "reach", "recency", "staff_assist", "config_version"}
)

// RunSummary is the header row of a persisted run.
type RunSummary struct {
	RunID         string              `json:"run_id" yaml:"run_id"`
	Source        string              `json:"source" yaml:"source"`
	ConfigVersion string              `json:"config_version" yaml:"config_version"`
	AsOf          time.Time           `json:"as_of" yaml:"as_of"`
	Stats         schemas.IngestStats `json:"stats" yaml:"stats"`
	Entities      int                 `json:"entities" yaml:"entities"`
	Edges         int                 `json:"edges" yaml:"edges"`
	Warnings      int                 `json:"warnings" yaml:"warnings"`
	CreatedAt     time.Time           `json:"created_at" yaml:"created_at"`
}

// Store persists referral runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the referral tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PersistRun writes a complete run result in one transaction. Either every
// table receives its rows or none does.
func (s *Store) PersistRun(ctx context.Context, result *schemas.RunResult) error {
	if result == nil || result.RunID == "" {
		return errors.New("cannot persist a run without a run id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if err := s.persistRun(ctx, tx, result); err != nil {
		return err
	}
	if len(result.Entities) > 0 {
		if err := s.persistEntities(ctx, tx, result); err != nil {
			return err
		}
	}
	if len(result.Edges) > 0 {
		if err := s.persistEdges(ctx, tx, result); err != nil {
			return err
		}
	}
	if len(result.Scores) > 0 {
		if err := s.persistScores(ctx, tx, result); err != nil {
			return err
		}
	}
	if err := s.persistArtifacts(ctx, tx, result.RunID, result.Artifacts); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Referral run persisted",
		zap.String("run_id", result.RunID),
		zap.Int("entities", len(result.Entities)),
		zap.Int("edges", len(result.Edges)),
		zap.Int("artifacts", len(result.Artifacts)))
	return nil
}

func (s *Store) persistRun(ctx context.Context, tx pgx.Tx, r *schemas.RunResult) error {
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}
	sql := `
        INSERT INTO referral_runs (run_id, source, config_version, as_of, raw_records, invalid_records,
            unresolved_records, duplicate_records, entity_count, edge_count, warnings, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	_, err = tx.Exec(ctx, sql,
		r.RunID, r.Source, r.ConfigVersion, r.AsOf,
		r.Stats.RawRecords, r.Stats.InvalidRecords, r.Stats.UnresolvedRecords, r.Stats.DuplicateRecords,
		len(r.Entities), len(r.Edges), warnings, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

func (s *Store) persistEntities(ctx context.Context, tx pgx.Tx, r *schemas.RunResult) error {
	rows := make([][]interface{}, len(r.Entities))
	for i, e := range r.Entities {
		var m schemas.EntityMetrics
		if i < len(r.Metrics) {
			m = r.Metrics[i]
		}
		var state string
		if i < len(r.Profiles) {
			state = string(r.Profiles[i].State)
		}
		rows[i] = []interface{}{
			r.RunID, e.ID, e.DisplayName, e.Canonical, e.Account, string(e.Kind), e.StaffTier,
			m.OutDegree, m.InDegree, m.Volume, m.SelfLoops, m.Reach, m.ChainDepth, state,
		}
	}
	return copyRows(ctx, tx, "referral_entities", entityColumns, rows)
}

func (s *Store) persistEdges(ctx context.Context, tx pgx.Tx, r *schemas.RunResult) error {
	rows := make([][]interface{}, len(r.Edges))
	for i, e := range r.Edges {
		if e.From >= len(r.Entities) || e.To >= len(r.Entities) || e.From < 0 || e.To < 0 {
			return fmt.Errorf("edge for record %d references an entity outside the run", e.RecordIndex)
		}
		rows[i] = []interface{}{
			r.RunID, e.RecordIndex, r.Entities[e.From].ID, r.Entities[e.To].ID, e.Timestamp,
			e.SourceLabel, e.BranchLabel, e.StaffLabel, e.OutcomeLabel, e.SelfLoop,
		}
	}
	return copyRows(ctx, tx, "referral_edges", edgeColumns, rows)
}

func (s *Store) persistScores(ctx context.Context, tx pgx.Tx, r *schemas.RunResult) error {
	rows := make([][]interface{}, len(r.Scores))
	for i, sc := range r.Scores {
		rows[i] = []interface{}{
			r.RunID, sc.EntityID, sc.Score,
			sc.Components.Volume, sc.Components.Reach, sc.Components.Recency, sc.Components.StaffAssist,
			sc.ConfigVersion,
		}
	}
	return copyRows(ctx, tx, "referral_scores", scoreColumns, rows)
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]interface{}) error {
	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), copyCount)
	}
	return nil
}

func (s *Store) persistArtifacts(ctx context.Context, tx pgx.Tx, runID string, arts []schemas.Artifact) error {
	sql := `
        INSERT INTO referral_artifacts (run_id, artifact_id, name, payload)
        VALUES ($1, $2, $3, $4);
    `
	for _, a := range arts {
		payload, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal artifact %s: %w", a.ID, err)
		}
		if _, err := tx.Exec(ctx, sql, runID, string(a.ID), a.Name, payload); err != nil {
			return fmt.Errorf("failed to execute insert for artifact %s: %w", a.ID, err)
		}
	}
	return nil
}

// GetRun fetches the header of a persisted run.
func (s *Store) GetRun(ctx context.Context, runID string) (RunSummary, error) {
	var (
		sum      RunSummary
		warnings []byte
	)
	err := s.pool.QueryRow(ctx, `
        SELECT run_id, source, config_version, as_of, raw_records, invalid_records, unresolved_records,
            duplicate_records, entity_count, edge_count, warnings, created_at
        FROM referral_runs WHERE run_id = $1;
    `, runID).Scan(
		&sum.RunID, &sum.Source, &sum.ConfigVersion, &sum.AsOf,
		&sum.Stats.RawRecords, &sum.Stats.InvalidRecords, &sum.Stats.UnresolvedRecords, &sum.Stats.DuplicateRecords,
		&sum.Entities, &sum.Edges, &warnings, &sum.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return RunSummary{}, fmt.Errorf("failed to query run: %w", err)
	}

	var list []json.RawMessage
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &list); err != nil {
			return RunSummary{}, fmt.Errorf("failed to unmarshal run warnings: %w", err)
		}
	}
	sum.Warnings = len(list)
	return sum, nil
}

// GetArtifacts reads the artifacts of a persisted run back in registry order.
func (s *Store) GetArtifacts(ctx context.Context, runID string) ([]schemas.Artifact, error) {
	query := `
        SELECT artifact_id, payload
        FROM referral_artifacts
        WHERE run_id = $1
        ORDER BY artifact_id ASC;
    `
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var arts []schemas.Artifact
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		var a schemas.Artifact
		if err := json.Unmarshal(payload, &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact %s: %w", id, err)
		}
		arts = append(arts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(arts) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return arts, nil
}

package store

// schemaSQL is applied by Migrate. Every statement is idempotent.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS referral_runs (
    run_id             UUID PRIMARY KEY,
    source             TEXT NOT NULL DEFAULT '',
    config_version     TEXT NOT NULL,
    as_of              TIMESTAMPTZ NOT NULL,
    raw_records        INTEGER NOT NULL,
    invalid_records    INTEGER NOT NULL,
    unresolved_records INTEGER NOT NULL,
    duplicate_records  INTEGER NOT NULL,
    entity_count       INTEGER NOT NULL,
    edge_count         INTEGER NOT NULL,
    warnings           JSONB NOT NULL DEFAULT '[]',
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS referral_entities (
    run_id       UUID NOT NULL REFERENCES referral_runs (run_id) ON DELETE CASCADE,
    entity_id    UUID NOT NULL,
    display_name TEXT NOT NULL,
    canonical    TEXT NOT NULL,
    account      TEXT NOT NULL DEFAULT '',
    kind         TEXT NOT NULL,
    staff_tier   TEXT NOT NULL DEFAULT '',
    out_degree   INTEGER NOT NULL,
    in_degree    INTEGER NOT NULL,
    volume       INTEGER NOT NULL,
    self_loops   INTEGER NOT NULL,
    reach        INTEGER NOT NULL,
    chain_depth  INTEGER NOT NULL,
    state        TEXT NOT NULL,
    PRIMARY KEY (run_id, entity_id)
);

CREATE TABLE IF NOT EXISTS referral_edges (
    run_id        UUID NOT NULL REFERENCES referral_runs (run_id) ON DELETE CASCADE,
    record_index  INTEGER NOT NULL,
    from_entity   UUID NOT NULL,
    to_entity     UUID NOT NULL,
    occurred_at   TIMESTAMPTZ NOT NULL,
    source_label  TEXT NOT NULL,
    branch_label  TEXT NOT NULL,
    staff_label   TEXT NOT NULL,
    outcome_label TEXT NOT NULL,
    self_loop     BOOLEAN NOT NULL,
    PRIMARY KEY (run_id, record_index)
);

CREATE TABLE IF NOT EXISTS referral_scores (
    run_id         UUID NOT NULL REFERENCES referral_runs (run_id) ON DELETE CASCADE,
    entity_id      UUID NOT NULL,
    score          DOUBLE PRECISION NOT NULL,
    volume         DOUBLE PRECISION NOT NULL,
    reach          DOUBLE PRECISION NOT NULL,
    recency        DOUBLE PRECISION NOT NULL,
    staff_assist   DOUBLE PRECISION NOT NULL,
    config_version TEXT NOT NULL,
    PRIMARY KEY (run_id, entity_id)
);

CREATE TABLE IF NOT EXISTS referral_artifacts (
    run_id      UUID NOT NULL REFERENCES referral_runs (run_id) ON DELETE CASCADE,
    artifact_id TEXT NOT NULL,
    name        TEXT NOT NULL,
    payload     JSONB NOT NULL,
    PRIMARY KEY (run_id, artifact_id)
);

CREATE INDEX IF NOT EXISTS idx_referral_scores_score ON referral_scores (run_id, score DESC);
`

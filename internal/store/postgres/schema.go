package postgres

// Schema contains the DDL for the default tables. Applied out of band;
// kept here so the tables and the scan order stay in one review.
const Schema = `
CREATE TABLE IF NOT EXISTS sources (
    id                     TEXT PRIMARY KEY,
    url                    TEXT NOT NULL,
    type                   TEXT NOT NULL,
    feed_url               TEXT NOT NULL DEFAULT '',
    status                 TEXT NOT NULL DEFAULT 'healthy',
    consecutive_failures   INTEGER NOT NULL DEFAULT 0,
    consecutive_successes  INTEGER NOT NULL DEFAULT 0,
    backoff_until          TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
    last_attempt           TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
    last_error             TEXT NOT NULL DEFAULT '',
    fetch_interval_seconds BIGINT NOT NULL DEFAULT 0,
    active_skill_id        TEXT NOT NULL DEFAULT '',
    created_at             TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sources_due ON sources (status, backoff_until);

CREATE TABLE IF NOT EXISTS skills (
    id               TEXT PRIMARY KEY,
    source_id        TEXT NOT NULL,
    version          INTEGER NOT NULL,
    rules            JSONB NOT NULL,
    generated_at     TIMESTAMPTZ NOT NULL,
    generating_model TEXT NOT NULL DEFAULT '',
    samples_passed   INTEGER NOT NULL,
    samples_total    INTEGER NOT NULL,
    field_coverage   DOUBLE PRECISION NOT NULL,
    UNIQUE (source_id, version)
);
CREATE INDEX IF NOT EXISTS idx_skills_source ON skills (source_id, version DESC);
`

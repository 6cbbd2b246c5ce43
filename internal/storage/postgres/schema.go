package postgres

const schema = `
-- Suggestions table: one row per stored AI exchange
CREATE TABLE IF NOT EXISTS suggestions (
    id BIGSERIAL PRIMARY KEY,
    file TEXT NOT NULL,
    question TEXT NOT NULL,
    response JSONB NOT NULL,
    model TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_suggestions_file ON suggestions(file);
CREATE INDEX IF NOT EXISTS idx_suggestions_created_at ON suggestions(created_at);

-- Run events table: the activity feed behind lintfix events
CREATE TABLE IF NOT EXISTS run_events (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    run_id TEXT NOT NULL,
    task_id TEXT NOT NULL DEFAULT '',
    file TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL CHECK(severity IN ('info', 'warning', 'error')),
    message TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
CREATE INDEX IF NOT EXISTS idx_run_events_severity ON run_events(severity);
CREATE INDEX IF NOT EXISTS idx_run_events_created_at ON run_events(created_at);
`

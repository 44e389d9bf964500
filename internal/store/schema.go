package store

const schema = `
CREATE TABLE IF NOT EXISTS update_attempts (
    id TEXT PRIMARY KEY,
    component TEXT NOT NULL,
    from_version TEXT NOT NULL,
    to_version TEXT NOT NULL,
    stage TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attempts_component ON update_attempts(component);
CREATE INDEX IF NOT EXISTS idx_attempts_started ON update_attempts(started_at);
`

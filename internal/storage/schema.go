package storage

const schema = `
-- Registered repositories. identity_hash is pinned at registration and
-- acts as the cache namespace for everything below.
CREATE TABLE IF NOT EXISTS repos (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    identity_hash TEXT NOT NULL UNIQUE,
    last_scanned_at DATETIME,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_repos_identity ON repos(identity_hash);

-- Per-file analysis results. One row per (repo_hash, file_path); a rewrite
-- of the same key overwrites (last write wins).
CREATE TABLE IF NOT EXISTS file_cache (
    repo_hash TEXT NOT NULL,
    file_path TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    findings TEXT NOT NULL DEFAULT '[]',
    model TEXT NOT NULL DEFAULT '',
    tokens_used INTEGER NOT NULL DEFAULT 0,
    analyzed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (repo_hash, file_path)
);

CREATE INDEX IF NOT EXISTS idx_file_cache_repo ON file_cache(repo_hash);

-- Cache hit/miss counters, one row per repo namespace.
CREATE TABLE IF NOT EXISTS cache_stats (
    repo_hash TEXT PRIMARY KEY,
    hits INTEGER NOT NULL DEFAULT 0,
    misses INTEGER NOT NULL DEFAULT 0,
    tokens_saved INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Tasks synthesized from findings. The fingerprint column backs
-- deduplication: at most one open task per fingerprint.
CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    description TEXT NOT NULL DEFAULT '',
    priority INTEGER NOT NULL DEFAULT 3 CHECK(priority >= 1 AND priority <= 4),
    status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'in_progress', 'done')),
    source TEXT NOT NULL DEFAULT 'manual',
    source_repo TEXT NOT NULL DEFAULT '',
    source_file TEXT NOT NULL DEFAULT '',
    source_line INTEGER NOT NULL DEFAULT 0,
    category TEXT NOT NULL DEFAULT '',
    fingerprint TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
CREATE INDEX IF NOT EXISTS idx_tasks_fingerprint ON tasks(fingerprint);
CREATE INDEX IF NOT EXISTS idx_tasks_source_repo ON tasks(source_repo);

-- Scan session bookkeeping for status reporting and resume.
CREATE TABLE IF NOT EXISTS scan_sessions (
    id TEXT PRIMARY KEY,
    repo_hash TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT 'pending'
        CHECK(state IN ('pending', 'scanning', 'completed', 'budget_halted', 'failed')),
    files_scanned INTEGER NOT NULL DEFAULT 0,
    files_skipped_cached INTEGER NOT NULL DEFAULT 0,
    files_failed INTEGER NOT NULL DEFAULT 0,
    tasks_created INTEGER NOT NULL DEFAULT 0,
    tokens_used INTEGER NOT NULL DEFAULT 0,
    cost_estimate REAL NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_sessions_repo ON scan_sessions(repo_hash);
`

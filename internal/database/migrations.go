package database

import "database/sql"

// Migration is one schema step of the run store.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations run in Version order. Versions are stored in PRAGMA user_version,
// so a step is never renumbered once released.
var migrations = []Migration{
	{
		Version:     1,
		Description: "run store",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    total INTEGER DEFAULT 0,
    backup_calls INTEGER DEFAULT 0,
    stats TEXT,
    saved_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_articles (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    category TEXT NOT NULL,
    rank INTEGER NOT NULL,
    title TEXT NOT NULL,
    url TEXT NOT NULL,
    snippet TEXT,
    published_date TEXT,
    source TEXT,
    source_type TEXT,
    score INTEGER DEFAULT 0,
    neighborhoods TEXT,
    priority INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, category, rank)
);

CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
CREATE INDEX IF NOT EXISTS idx_run_articles_url ON run_articles(url);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "per-source run counters",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS run_sources (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    source_type TEXT NOT NULL,
    attempted INTEGER DEFAULT 0,
    succeeded INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    articles INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, source_type)
);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

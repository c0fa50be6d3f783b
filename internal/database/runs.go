package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/CityPulse/internal/aggregate"
	"github.com/TobiSchelling/CityPulse/internal/article"
	"github.com/TobiSchelling/CityPulse/internal/snapshot"
)

// Fixed-width UTC timestamps so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SaveRun stores a snapshot's run header, per-source counters and ranked
// category lists in one transaction. Saving the same run ID twice replaces
// the earlier copy.
func (db *DB) SaveRun(s *snapshot.Snapshot) error {
	if s.RunID == "" {
		return errors.New("saving run: empty run id")
	}
	stats, err := json.Marshal(s.Stats)
	if err != nil {
		return fmt.Errorf("encoding run stats: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteRuns(tx, "run_id = ?", s.RunID); err != nil {
		return fmt.Errorf("replacing run %s: %w", s.RunID, err)
	}

	started := s.Stats.StartedAt
	if started.IsZero() {
		started = s.GeneratedAt
	}
	_, err = tx.Exec(
		`INSERT INTO runs (run_id, started_at, finished_at, total, backup_calls, stats)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.RunID, started.UTC().Format(timeLayout), s.GeneratedAt.UTC().Format(timeLayout),
		s.Total(), s.Stats.BackupCalls, string(stats),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for kind, st := range s.Stats.Sources {
		_, err := tx.Exec(
			`INSERT INTO run_sources (run_id, source_type, attempted, succeeded, failed, articles)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.RunID, string(kind), st.Attempted, st.Succeeded, st.Failed, st.Articles,
		)
		if err != nil {
			return fmt.Errorf("inserting %s counters: %w", kind, err)
		}
	}

	stmt, err := tx.Prepare(
		`INSERT INTO run_articles (run_id, category, rank, title, url, snippet, published_date,
			source, source_type, score, neighborhoods, priority)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing article insert: %w", err)
	}
	defer stmt.Close()

	for _, cat := range s.OrderedCategories() {
		for rank, a := range s.Categories[cat] {
			hoods, err := json.Marshal(a.Neighborhoods)
			if err != nil {
				return fmt.Errorf("encoding neighborhoods: %w", err)
			}
			_, err = stmt.Exec(
				s.RunID, string(cat), rank, a.Title, a.URL, a.Snippet, a.PublishedDate,
				a.Source, string(a.SourceType), a.Score, string(hoods), a.Priority,
			)
			if err != nil {
				return fmt.Errorf("inserting article %q: %w", a.URL, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", s.RunID, err)
	}
	return nil
}

// LatestRun returns the most recently finished run, or nil if the store is
// empty.
func (db *DB) LatestRun() (*snapshot.Snapshot, error) {
	var runID string
	err := db.conn.QueryRow(
		"SELECT run_id FROM runs ORDER BY finished_at DESC, saved_at DESC LIMIT 1",
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest run: %w", err)
	}
	return db.GetRun(runID)
}

// GetRun loads a stored run and rebuilds its indices. Returns nil if the run
// does not exist.
func (db *DB) GetRun(runID string) (*snapshot.Snapshot, error) {
	run, err := db.getRunHeader(runID)
	if err != nil || run == nil {
		return nil, err
	}

	articles, err := db.GetRunArticles(runID, "")
	if err != nil {
		return nil, err
	}
	cats := make(map[article.Category][]article.Article)
	for _, c := range article.PriorityOrder() {
		cats[c] = []article.Article{}
	}
	for _, a := range articles {
		cats[a.Category] = append(cats[a.Category], a)
	}

	run.Stats.StartedAt = run.StartedAt
	run.Stats.FinishedAt = run.FinishedAt
	return snapshot.FromCategories(run.RunID, run.FinishedAt, cats, run.Stats), nil
}

// GetRunArticles returns a run's articles in category priority order, then
// rank. An empty category returns every category.
func (db *DB) GetRunArticles(runID string, category article.Category) ([]article.Article, error) {
	query := `SELECT category, title, url, snippet, published_date, source, source_type,
		score, neighborhoods, priority
		FROM run_articles WHERE run_id = ?`
	args := []any{runID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	query += ` ORDER BY CASE category
		WHEN 'local' THEN 0 WHEN 'politics' THEN 1 WHEN 'economy' THEN 2 WHEN 'tech' THEN 3
		ELSE 4 END, category, rank`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying run articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// ListRuns returns the most recent run headers, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT run_id, started_at, finished_at, total, backup_calls, stats
		FROM runs ORDER BY finished_at DESC, saved_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes all but the keep most recent runs and returns how many
// were removed. keep <= 0 disables pruning.
func (db *DB) PruneRuns(keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	var total int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	if total <= keep {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	err = deleteRuns(tx, `run_id NOT IN (
		SELECT run_id FROM runs ORDER BY finished_at DESC, saved_at DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return total - keep, nil
}

// deleteRuns removes matching runs and their child rows. Children go first
// so the delete also works on stores opened without foreign_keys.
func deleteRuns(tx *sql.Tx, where string, args ...any) error {
	sel := "SELECT run_id FROM runs WHERE " + where
	for _, table := range []string{"run_articles", "run_sources"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id IN ("+sel+")", args...); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	_, err := tx.Exec("DELETE FROM runs WHERE "+where, args...)
	return err
}

// GetStats returns store-wide counts.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{SourceFailure: make(map[string]int)}

	err := db.conn.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(backup_calls), 0) FROM runs",
	).Scan(&s.Runs, &s.BackupCalls)
	if err != nil {
		return nil, fmt.Errorf("counting runs: %w", err)
	}
	err = db.conn.QueryRow(
		"SELECT COUNT(*), COUNT(DISTINCT url) FROM run_articles",
	).Scan(&s.Articles, &s.DistinctURLs)
	if err != nil {
		return nil, fmt.Errorf("counting articles: %w", err)
	}

	var runID, finished string
	err = db.conn.QueryRow(
		"SELECT run_id, finished_at FROM runs ORDER BY finished_at DESC, saved_at DESC LIMIT 1",
	).Scan(&runID, &finished)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("reading latest run: %w", err)
	default:
		s.LatestRunID = runID
		if t, err := time.Parse(timeLayout, finished); err == nil {
			s.LatestRunAt = &t
		}
	}

	rows, err := db.conn.Query(
		"SELECT source_type, SUM(failed) FROM run_sources GROUP BY source_type",
	)
	if err != nil {
		return nil, fmt.Errorf("summing source failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var failed int
		if err := rows.Scan(&kind, &failed); err != nil {
			return nil, err
		}
		s.SourceFailure[kind] = failed
	}
	return s, rows.Err()
}

func (db *DB) getRunHeader(runID string) (*Run, error) {
	row := db.conn.QueryRow(
		`SELECT run_id, started_at, finished_at, total, backup_calls, stats
		FROM runs WHERE run_id = ?`, runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started, finished string
	var stats sql.NullString
	if err := row.Scan(&r.RunID, &started, &finished, &r.Total, &r.BackupCalls, &stats); err != nil {
		return nil, err
	}

	var err error
	if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("run %s: bad started_at: %w", r.RunID, err)
	}
	if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("run %s: bad finished_at: %w", r.RunID, err)
	}
	if stats.Valid && stats.String != "" {
		if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
			return nil, fmt.Errorf("run %s: decoding stats: %w", r.RunID, err)
		}
	}
	if r.Stats.Sources == nil {
		r.Stats.Sources = make(map[article.SourceType]aggregate.SourceStats)
	}
	return &r, nil
}

func scanArticles(rows *sql.Rows) ([]article.Article, error) {
	var out []article.Article
	for rows.Next() {
		var a article.Article
		var cat, sourceType string
		var snippet, published, source, hoods sql.NullString
		if err := rows.Scan(&cat, &a.Title, &a.URL, &snippet, &published, &source,
			&sourceType, &a.Score, &hoods, &a.Priority); err != nil {
			return nil, err
		}
		a.Category = article.Category(cat)
		a.SourceType = article.SourceType(sourceType)
		a.Snippet = snippet.String
		a.PublishedDate = published.String
		a.Source = source.String
		if hoods.Valid && hoods.String != "" && hoods.String != "null" {
			if err := json.Unmarshal([]byte(hoods.String), &a.Neighborhoods); err != nil {
				return nil, fmt.Errorf("decoding neighborhoods for %q: %w", a.URL, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

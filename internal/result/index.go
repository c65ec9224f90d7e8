package result

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Index is the SQLite catalog of episodes across runs. It exists so past
// results can be listed and aggregated without re-walking run directories.
type Index struct {
	db *sql.DB
}

// OpenIndex opens (creating if needed) the episode index at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolving index path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating index dir: %w", err)
	}
	db, err := sql.Open("sqlite", abs)
	if err != nil {
		return nil, fmt.Errorf("opening index db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS episodes (
			episode_id    TEXT PRIMARY KEY,
			model         TEXT NOT NULL,
			app_name      TEXT NOT NULL,
			agent_status  TEXT NOT NULL,
			success       INTEGER NOT NULL,
			steps         INTEGER NOT NULL,
			overall_score REAL NOT NULL,
			overall_pass  INTEGER NOT NULL,
			episode_dir   TEXT NOT NULL,
			finished_at   DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating index schema: %w", err)
	}
	return nil
}

func (ix *Index) Close() error { return ix.db.Close() }

// Add upserts one episode record into the index.
func (ix *Index) Add(rec *Record, episodeDir string) error {
	_, err := ix.db.Exec(`
		INSERT OR REPLACE INTO episodes
			(episode_id, model, app_name, agent_status, success, steps, overall_score, overall_pass, episode_dir, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EpisodeID, rec.Model, rec.AppName, rec.AgentStatus,
		boolToInt(rec.Success), rec.Steps, rec.OverallScore,
		boolToInt(rec.OverallPass), episodeDir, rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("indexing episode %s: %w", rec.EpisodeID, err)
	}
	return nil
}

// Entry is one indexed episode.
type Entry struct {
	EpisodeID    string
	Model        string
	AppName      string
	AgentStatus  string
	Success      bool
	Steps        int
	OverallScore float64
	OverallPass  bool
	EpisodeDir   string
	FinishedAt   time.Time
}

// List returns indexed episodes, newest first. An empty model lists all.
func (ix *Index) List(model string) ([]Entry, error) {
	query := `
		SELECT episode_id, model, app_name, agent_status, success, steps, overall_score, overall_pass, episode_dir, finished_at
		FROM episodes`
	args := []any{}
	if model != "" {
		query += " WHERE model = ?"
		args = append(args, model)
	}
	query += " ORDER BY finished_at DESC"

	rows, err := ix.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing episodes: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success, pass int
		if err := rows.Scan(&e.EpisodeID, &e.Model, &e.AppName, &e.AgentStatus, &success, &e.Steps, &e.OverallScore, &pass, &e.EpisodeDir, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scanning episode row: %w", err)
		}
		e.Success = success != 0
		e.OverallPass = pass != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

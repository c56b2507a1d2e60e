// Package history keeps a local SQLite record of issued searches and settled
// index jobs. It is an audit trail for the user, not a copy of any index.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/abelbrown/ragdeck/internal/session"
)

// Store is the history database. Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ session.Recorder = (*Store)(nil)

// QueryEntry is one recorded search.
type QueryEntry struct {
	ID            string
	Seq           uint64
	Text          string
	Path          string
	MaxResults    int
	ContextChunks int
	TokenCount    int
	Err           string
	Issued        time.Time
	Dur           time.Duration
}

// JobEntry is one recorded index job.
type JobEntry struct {
	ID          string
	Path        string
	Model       string
	Extensions  []string
	Force       bool
	ModelChange bool
	Status      string
	Message     string
	Started     time.Time
	Finished    time.Time
}

// Open opens or creates the database at dbPath. ":memory:" is supported for tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		text TEXT NOT NULL,
		project_path TEXT,
		max_results INTEGER NOT NULL,
		context_chunks INTEGER DEFAULT 0,
		token_count INTEGER DEFAULT 0,
		err TEXT,
		issued_at DATETIME NOT NULL,
		dur_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS index_jobs (
		id TEXT PRIMARY KEY,
		project_path TEXT NOT NULL,
		model TEXT,
		extensions TEXT,
		force INTEGER DEFAULT 0,
		model_change INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		message TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_queries_issued ON queries(issued_at DESC);
	CREATE INDEX IF NOT EXISTS idx_jobs_started ON index_jobs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_jobs_path ON index_jobs(project_path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordQuery stores one resolved search.
func (s *Store) RecordQuery(q session.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO queries (
			id, seq, text, project_path, max_results,
			context_chunks, token_count, err, issued_at, dur_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		int64(q.Seq),
		q.Text,
		q.Path,
		q.MaxResults,
		q.ContextChunks,
		q.TokenCount,
		q.Err,
		q.Issued.UTC(),
		q.Dur.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

// RecordJob stores a settled index job, replacing any earlier row with the same ID.
func (s *Store) RecordJob(j session.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finished any
	if !j.Finished.IsZero() {
		finished = j.Finished.UTC()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO index_jobs (
			id, project_path, model, extensions, force, model_change,
			status, message, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		j.ID,
		j.Path,
		j.Model,
		strings.Join(j.Extensions, ","),
		boolToInt(j.Force),
		boolToInt(j.ModelChange),
		string(j.Status),
		j.Message,
		j.Started.UTC(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("insert index job: %w", err)
	}
	return nil
}

// Queries returns up to limit searches, newest first.
func (s *Store) Queries(limit int) ([]QueryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, seq, text, project_path, max_results,
			context_chunks, token_count, err, issued_at, dur_ms
		FROM queries
		ORDER BY issued_at DESC, seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryEntry
	for rows.Next() {
		var (
			e       QueryEntry
			seq     int64
			path    sql.NullString
			errText sql.NullString
			durMs   int64
		)
		if err := rows.Scan(&e.ID, &seq, &e.Text, &path, &e.MaxResults,
			&e.ContextChunks, &e.TokenCount, &errText, &e.Issued, &durMs); err != nil {
			return nil, err
		}
		e.Seq = uint64(seq)
		e.Path = path.String
		e.Err = errText.String
		e.Dur = time.Duration(durMs) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Jobs returns up to limit index jobs, newest first. A non-empty path
// restricts the result to that project.
func (s *Store) Jobs(path string, limit int) ([]JobEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, project_path, model, extensions, force, model_change,
			status, message, started_at, finished_at
		FROM index_jobs
	`
	var args []any
	if path != "" {
		query += " WHERE project_path = ?"
		args = append(args, path)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobEntry
	for rows.Next() {
		var (
			e                  JobEntry
			model, exts, msg   sql.NullString
			force, modelChange int
			finished           sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Path, &model, &exts, &force, &modelChange,
			&e.Status, &msg, &e.Started, &finished); err != nil {
			return nil, err
		}
		e.Model = model.String
		if exts.String != "" {
			e.Extensions = strings.Split(exts.String, ",")
		}
		e.Force = force != 0
		e.ModelChange = modelChange != 0
		e.Message = msg.String
		if finished.Valid {
			e.Finished = finished.Time
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune deletes rows older than age and returns how many were removed.
func (s *Store) Prune(age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-age).UTC()
	var total int64
	for _, stmt := range []string{
		"DELETE FROM queries WHERE issued_at < ?",
		"DELETE FROM index_jobs WHERE started_at < ?",
	} {
		res, err := s.db.Exec(stmt, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

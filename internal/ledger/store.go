package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the evolution ledger database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// NewStore creates or opens a ledger store under stateDir.
func NewStore(stateDir string) (*Store, error) {
	dbPath := filepath.Join(stateDir, "ledger.db")

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	schema := `
	-- Evolution attempts, append-only
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		type TEXT NOT NULL,
		action TEXT NOT NULL,
		file TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);
	CREATE INDEX IF NOT EXISTS idx_entries_status ON entries(status);
	CREATE INDEX IF NOT EXISTS idx_entries_file ON entries(file);

	-- Growth score snapshots for the stagnation detector
	CREATE TABLE IF NOT EXISTS growth_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		score INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_growth_timestamp ON growth_samples(timestamp);

	-- Loop state singleton
	CREATE TABLE IF NOT EXISTS loop_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		growth_score INTEGER NOT NULL DEFAULT 0,
		cycles_run INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO loop_state (id, growth_score, cycles_run) VALUES (1, 0, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY OPERATIONS
// =============================================================================

// Append stores a new ledger entry. Entries are never updated afterwards.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Type == "" {
		e.Type = "evolution"
	}

	_, err := s.db.Exec(`
		INSERT INTO entries (timestamp, type, action, file, description, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.Type, e.Action, e.File, e.Description, e.Status, e.Error)

	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

// Recent retrieves the most recent entries, newest last.
// A stale read racing a concurrent append is acceptable: the auditor
// detects trends, not exact state.
func (s *Store) Recent(limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, timestamp, type, action, file, description, status, error
		FROM entries
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var description, errText sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Type, &e.Action, &e.File,
			&description, &e.Status, &errText); err != nil {
			continue
		}
		e.Description = description.String
		e.Error = errText.String
		entries = append(entries, e)
	}

	// Reverse to chronological order: detectors reason about "the last entry"
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Count returns the total number of entries.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// =============================================================================
// GROWTH SCORE OPERATIONS
// =============================================================================

// AddGrowth adds points to the cumulative growth score, records a sample,
// and returns the new total.
func (s *Store) AddGrowth(points int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE loop_state SET growth_score = growth_score + ? WHERE id = 1`, points)
	if err != nil {
		return 0, fmt.Errorf("failed to update growth score: %w", err)
	}

	var score int
	if err := s.db.QueryRow(`SELECT growth_score FROM loop_state WHERE id = 1`).Scan(&score); err != nil {
		return 0, err
	}

	_, err = s.db.Exec(`INSERT INTO growth_samples (timestamp, score) VALUES (?, ?)`, time.Now(), score)
	if err != nil {
		return score, fmt.Errorf("failed to record growth sample: %w", err)
	}
	return score, nil
}

// RecordGrowthSample snapshots the current score without changing it.
// The daemon calls this on no-change cycles so the stagnation window
// still advances.
func (s *Store) RecordGrowthSample() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var score int
	if err := s.db.QueryRow(`SELECT growth_score FROM loop_state WHERE id = 1`).Scan(&score); err != nil {
		return 0, err
	}
	_, err := s.db.Exec(`INSERT INTO growth_samples (timestamp, score) VALUES (?, ?)`, time.Now(), score)
	if err != nil {
		return score, fmt.Errorf("failed to record growth sample: %w", err)
	}
	return score, nil
}

// GrowthScore returns the current cumulative growth score.
func (s *Store) GrowthScore() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score int
	if err := s.db.QueryRow(`SELECT growth_score FROM loop_state WHERE id = 1`).Scan(&score); err != nil {
		return 0, err
	}
	return score, nil
}

// RecentGrowthScores returns the last limit growth samples in
// chronological order.
func (s *Store) RecentGrowthScores(limit int) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT score FROM growth_samples ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query growth samples: %w", err)
	}
	defer rows.Close()

	var scores []int
	for rows.Next() {
		var score int
		if err := rows.Scan(&score); err != nil {
			continue
		}
		scores = append(scores, score)
	}

	for i, j := 0, len(scores)-1; i < j; i, j = i+1, j-1 {
		scores[i], scores[j] = scores[j], scores[i]
	}
	return scores, nil
}

// =============================================================================
// CYCLE COUNTER
// =============================================================================

// IncrementCycles bumps the cycles-run counter and returns the new value.
func (s *Store) IncrementCycles() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE loop_state SET cycles_run = cycles_run + 1 WHERE id = 1`)
	if err != nil {
		return 0, err
	}

	var count int
	s.db.QueryRow(`SELECT cycles_run FROM loop_state WHERE id = 1`).Scan(&count)
	return count, nil
}

// CyclesRun returns the total number of cycles executed.
func (s *Store) CyclesRun() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRow(`SELECT cycles_run FROM loop_state WHERE id = 1`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Package staging implements the local SQLite staging store. Every capture
// from the source tenant and every correlation written during replay lands
// here first, so a crashed run can be restarted at any point without
// reprocessing a duplicate as an error.
package staging

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	_ "modernc.org/sqlite"
)

// DBFileName is the database file created under the configured db dir.
const DBFileName = "backlog.db"

// Store owns the staging database. There is exactly one logical writer at
// a time; the connection pool is pinned to a single connection so the
// in-memory variant used by tests observes the same rows.
type Store struct {
	db       *sql.DB
	path     string
	closed   atomic.Bool
	Counters *Counters
}

// Open opens (creating if necessary) the staging database under dir.
func Open(ctx context.Context, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}
	path := filepath.Join(dir, DBFileName)
	return open(ctx, path)
}

// OpenMemory opens a private in-memory store; used by tests.
func OpenMemory(ctx context.Context) (*Store, error) {
	return open(ctx, ":memory:")
}

func open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staging db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to staging db: %w", err)
	}
	s := &Store{db: db, path: path, Counters: NewCounters()}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize staging schema: %w", err)
	}
	return nil
}

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path (":memory:" for test stores).
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for callers that need raw queries,
// mirroring how the storage layer is shared in the rest of the tool.
func (s *Store) DB() *sql.DB { return s.db }

// AppendLog implements logging.Sink: operator log lines are kept next to
// the staged data.
func (s *Store) AppendLog(level, message string) {
	// A failed log write must never fail the run it is describing.
	_, _ = s.db.Exec("INSERT INTO tool_log (level, message) VALUES (?, ?)", level, message)
}

// TableCount is a staged row count, for the status report.
type TableCount struct {
	Table string
	Rows  int
}

// TableCounts reports how many rows each staging table holds.
func (s *Store) TableCounts(ctx context.Context) ([]TableCount, error) {
	tables := []string{
		"projects", "users", "categories", "versions", "milestones",
		"issue_types", "statuses", "issues", "issue_custom_fields",
		"issue_comments", "issue_comment_change_logs", "issue_attachments",
		"wikis", "wiki_attachments", "shared_files",
		"target_project", "target_users", "target_issue_types",
		"target_priorities", "target_resolutions", "target_statuses",
		"target_categories", "target_versions", "target_milestones",
		"target_issues", "user_mapping",
	}
	out := make([]TableCount, 0, len(tables))
	for _, table := range tables {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s rows: %w", table, err)
		}
		out = append(out, TableCount{Table: table, Rows: n})
	}
	return out, nil
}

// twoPhasePut is the single implementation of the staging write contract:
// ensure a bare row keyed by key (counting an insert exactly once), then
// unconditionally update all non-key columns. Calling it twice with the
// same input leaves the row unchanged and counts an update.
func (s *Store) twoPhasePut(ctx context.Context, table, counter, keyCol string, key interface{}, cols []string, vals []interface{}) error {
	if len(cols) != len(vals) {
		return fmt.Errorf("staging: %s: column/value mismatch (%d vs %d)", table, len(cols), len(vals))
	}

	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM "+table+" WHERE "+keyCol+" = ?", key).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO "+table+" ("+keyCol+") VALUES (?)", key); err != nil {
			return fmt.Errorf("failed to insert %s row: %w", table, err)
		}
		s.Counters.IncrIns(counter)
	case err != nil:
		return fmt.Errorf("failed to probe %s row: %w", table, err)
	default:
		s.Counters.IncrUpd(counter)
	}

	if len(cols) == 0 {
		return nil
	}

	set := ""
	for i, col := range cols {
		if i > 0 {
			set += ", "
		}
		set += col + " = ?"
	}
	args := append(append([]interface{}{}, vals...), key)
	if _, err := s.db.ExecContext(ctx,
		"UPDATE "+table+" SET "+set+" WHERE "+keyCol+" = ?", args...); err != nil {
		return fmt.Errorf("failed to update %s row: %w", table, err)
	}
	return nil
}

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"abide2nidm/internal/config"
)

// ErrRunNotFound is returned by GetRun for an unknown identifier.
var ErrRunNotFound = errors.New("run not found")

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.HistoryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// RecordRun inserts run and its site rows in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("record run: id required")
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, started_at, finished_at, workers, isolation, forced, total, complete, partial, missing, summary_path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID,
			formatTime(run.StartedAt),
			formatTime(run.FinishedAt),
			run.Workers,
			run.Isolation,
			boolToInt(run.Forced),
			run.Total,
			run.Complete,
			run.Partial,
			run.Missing,
			nullableString(run.SummaryPath),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, site := range run.Sites {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO site_results (run_id, position, site, success, elapsed_ms, status) VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, site.Position, site.Site, boolToInt(site.Success), site.Elapsed.Milliseconds(), site.Status,
			); err != nil {
				return fmt.Errorf("insert site result %s: %w", site.Site, err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `id, started_at, finished_at, workers, isolation, forced, total, complete, partial, missing, summary_path`

// ListRuns returns the most recent runs first, without site rows. A limit of
// zero or less returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun loads one run with its site rows in batch order. id may be a unique
// prefix of the full run identifier.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx = ensureContext(ctx)
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrRunNotFound
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`, id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	var run *Run
	switch {
	case len(matches) == 0:
		return nil, ErrRunNotFound
	case len(matches) == 1:
		run = matches[0]
	default:
		for _, m := range matches {
			if m.ID == id {
				run = m
			}
		}
		if run == nil {
			return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
		}
	}

	siteRows, err := s.db.QueryContext(ctx,
		`SELECT position, site, success, elapsed_ms, status FROM site_results WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("get site results: %w", err)
	}
	defer siteRows.Close()
	for siteRows.Next() {
		var (
			rec       SiteRecord
			success   int
			elapsedMS int64
		)
		if err := siteRows.Scan(&rec.Position, &rec.Site, &success, &elapsedMS, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan site result: %w", err)
		}
		rec.Success = success != 0
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		run.Sites = append(run.Sites, rec)
	}
	if err := siteRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site results: %w", err)
	}
	return run, nil
}

// PruneBefore deletes runs that started before cutoff and returns how many
// were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

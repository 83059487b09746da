package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		startedRaw  string
		finishedRaw string
		forced      int
		summaryPath sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&startedRaw,
		&finishedRaw,
		&run.Workers,
		&run.Isolation,
		&forced,
		&run.Total,
		&run.Complete,
		&run.Partial,
		&run.Missing,
		&summaryPath,
	); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	var err error
	if run.StartedAt, err = parseTimeString(startedRaw); err != nil {
		return nil, fmt.Errorf("parse started_at for %s: %w", run.ID, err)
	}
	if run.FinishedAt, err = parseTimeString(finishedRaw); err != nil {
		return nil, fmt.Errorf("parse finished_at for %s: %w", run.ID, err)
	}
	run.Forced = forced != 0
	run.SummaryPath = summaryPath.String
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// formatTime uses a fixed-width layout so text ordering matches time ordering.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z")
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

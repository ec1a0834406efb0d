package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

// ReportRun is one execution attempt of a schedule
type ReportRun struct {
	ID          string          `json:"id"`
	ScheduleID  string          `json:"schedule_id"`
	Shop        string          `json:"shop"`
	Status      model.RunStatus `json:"status"`
	OrderCount  int             `json:"order_count"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
}

// RunHistory defines the interface for report run audit storage
type RunHistory interface {
	// Store records a run that has started
	Store(ctx context.Context, run *ReportRun) error

	// Update finalizes a run record
	Update(ctx context.Context, run *ReportRun) error

	// Get retrieves a run record by ID
	Get(ctx context.Context, id string) (*ReportRun, error)

	// List retrieves run records for a schedule, newest first
	List(ctx context.Context, scheduleID string, offset, limit int) ([]*ReportRun, error)

	// Count returns the number of run records for a schedule
	Count(ctx context.Context, scheduleID string) (int, error)

	// DeleteBefore deletes records older than the specified time
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteRunHistory implements RunHistory using SQLite
type SQLiteRunHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteRunHistory opens (or creates) the run history database
func NewSQLiteRunHistory(logger *zap.Logger, dbPath string) (*SQLiteRunHistory, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteRunHistory{
		logger: logger,
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteRunHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS report_runs (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL,
			shop TEXT NOT NULL,
			status TEXT NOT NULL,
			order_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at DATETIME NOT NULL,
			completed_at DATETIME,
			duration INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_report_runs_schedule_id ON report_runs(schedule_id);
		CREATE INDEX IF NOT EXISTS idx_report_runs_started_at ON report_runs(started_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements RunHistory.Store
func (s *SQLiteRunHistory) Store(ctx context.Context, run *ReportRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_runs (
			id, schedule_id, shop, status, started_at
		) VALUES (?, ?, ?, ?, ?)`,
		run.ID,
		run.ScheduleID,
		run.Shop,
		string(run.Status),
		run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store report run: %w", err)
	}
	return nil
}

// Update implements RunHistory.Update
func (s *SQLiteRunHistory) Update(ctx context.Context, run *ReportRun) error {
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE report_runs SET
			status = ?,
			order_count = ?,
			error = ?,
			completed_at = ?,
			duration = ?
		WHERE id = ?`,
		string(run.Status),
		run.OrderCount,
		sql.NullString{String: run.Error, Valid: run.Error != ""},
		completedAt,
		sql.NullInt64{Int64: int64(run.Duration), Valid: run.Duration != 0},
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update report run: %w", err)
	}
	return nil
}

// Get implements RunHistory.Get
func (s *SQLiteRunHistory) Get(ctx context.Context, id string) (*ReportRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, schedule_id, shop, status, order_count, error,
			started_at, completed_at, duration
		FROM report_runs
		WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report run: %w", err)
	}
	return run, nil
}

// List implements RunHistory.List
func (s *SQLiteRunHistory) List(ctx context.Context, scheduleID string, offset, limit int) ([]*ReportRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, schedule_id, shop, status, order_count, error,
			started_at, completed_at, duration
		FROM report_runs
		WHERE schedule_id = ?
		ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		scheduleID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list report runs: %w", err)
	}
	defer rows.Close()

	var runs []*ReportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// Count implements RunHistory.Count
func (s *SQLiteRunHistory) Count(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM report_runs WHERE schedule_id = ?", scheduleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count report runs: %w", err)
	}
	return count, nil
}

// DeleteBefore implements RunHistory.DeleteBefore
func (s *SQLiteRunHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM report_runs WHERE started_at < ?", before.UTC())
	if err != nil {
		return fmt.Errorf("failed to delete report runs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old report runs",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteRunHistory) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*ReportRun, error) {
	var run ReportRun
	var status string
	var errorStr sql.NullString
	var completedAt sql.NullTime
	var durationNanos sql.NullInt64

	err := row.Scan(
		&run.ID,
		&run.ScheduleID,
		&run.Shop,
		&status,
		&run.OrderCount,
		&errorStr,
		&run.StartedAt,
		&completedAt,
		&durationNanos,
	)
	if err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	if errorStr.Valid {
		run.Error = errorStr.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if durationNanos.Valid {
		run.Duration = time.Duration(durationNanos.Int64)
	}
	return &run, nil
}

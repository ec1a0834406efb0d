package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

// SQLiteScheduleStore implements ScheduleStore using SQLite
type SQLiteScheduleStore struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteScheduleStore opens (or creates) the schedule database
func NewSQLiteScheduleStore(logger *zap.Logger, dbPath string) (*SQLiteScheduleStore, error) {
	// The busy timeout lets concurrent sweeps contend on the claim
	// update instead of failing immediately with SQLITE_BUSY.
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteScheduleStore{
		logger: logger,
		db:     db,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteScheduleStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			shop TEXT NOT NULL,
			email TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			frequency TEXT NOT NULL,
			repeat_every INTEGER NOT NULL,
			schedule_time TEXT NOT NULL DEFAULT '00:00',
			run_days TEXT,
			monthly_mode TEXT,
			specific_day INTEGER,
			ordinal TEXT,
			pattern_day TEXT,
			order_status TEXT,
			payment_status TEXT,
			min_order_value REAL,
			min_items INTEGER,
			order_tags TEXT,
			disarm_reason TEXT,
			last_run_at DATETIME,
			next_run_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_schedules_shop ON schedules(shop);
		CREATE INDEX IF NOT EXISTS idx_schedules_next_run_at ON schedules(next_run_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

const scheduleColumns = `
	id, shop, email, enabled,
	frequency, repeat_every, schedule_time, run_days,
	monthly_mode, specific_day, ordinal, pattern_day,
	order_status, payment_status, min_order_value, min_items, order_tags,
	disarm_reason, last_run_at, next_run_at, created_at, updated_at`

// Create implements ScheduleStore.Create
func (s *SQLiteScheduleStore) Create(ctx context.Context, schedule *model.Schedule) error {
	runDays, orderTags, err := encodeLists(schedule)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		schedule.ID,
		schedule.Shop,
		schedule.Email,
		schedule.Enabled,
		string(schedule.Recurrence.Frequency),
		schedule.Recurrence.RepeatEvery,
		schedule.Recurrence.TimeOfDay.String(),
		runDays,
		nullString(string(schedule.Recurrence.MonthlyMode)),
		sql.NullInt64{Int64: int64(schedule.Recurrence.SpecificDay), Valid: schedule.Recurrence.SpecificDay > 0},
		nullString(string(schedule.Recurrence.Ordinal)),
		nullString(schedule.Recurrence.PatternDay),
		nullString(string(schedule.Filter.OrderStatus)),
		nullString(string(schedule.Filter.PaymentStatus)),
		nullFloat(schedule.Filter.MinOrderValue),
		nullInt(schedule.Filter.MinItems),
		orderTags,
		nullString(string(schedule.DisarmReason)),
		nullTime(schedule.LastRunAt),
		nullTime(schedule.NextRunAt),
		schedule.CreatedAt.UTC(),
		schedule.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

// Update implements ScheduleStore.Update
func (s *SQLiteScheduleStore) Update(ctx context.Context, schedule *model.Schedule) error {
	runDays, orderTags, err := encodeLists(schedule)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET
			email = ?, enabled = ?,
			frequency = ?, repeat_every = ?, schedule_time = ?, run_days = ?,
			monthly_mode = ?, specific_day = ?, ordinal = ?, pattern_day = ?,
			order_status = ?, payment_status = ?, min_order_value = ?, min_items = ?, order_tags = ?,
			disarm_reason = ?, last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ? AND shop = ?`,
		schedule.Email,
		schedule.Enabled,
		string(schedule.Recurrence.Frequency),
		schedule.Recurrence.RepeatEvery,
		schedule.Recurrence.TimeOfDay.String(),
		runDays,
		nullString(string(schedule.Recurrence.MonthlyMode)),
		sql.NullInt64{Int64: int64(schedule.Recurrence.SpecificDay), Valid: schedule.Recurrence.SpecificDay > 0},
		nullString(string(schedule.Recurrence.Ordinal)),
		nullString(schedule.Recurrence.PatternDay),
		nullString(string(schedule.Filter.OrderStatus)),
		nullString(string(schedule.Filter.PaymentStatus)),
		nullFloat(schedule.Filter.MinOrderValue),
		nullInt(schedule.Filter.MinItems),
		orderTags,
		nullString(string(schedule.DisarmReason)),
		nullTime(schedule.LastRunAt),
		nullTime(schedule.NextRunAt),
		time.Now().UTC(),
		schedule.ID,
		schedule.Shop,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	return requireRow(result)
}

// Delete implements ScheduleStore.Delete
func (s *SQLiteScheduleStore) Delete(ctx context.Context, id, shop string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM schedules WHERE id = ? AND shop = ?", id, shop)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return requireRow(result)
}

// Get implements ScheduleStore.Get
func (s *SQLiteScheduleStore) Get(ctx context.Context, id, shop string) (*model.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+scheduleColumns+" FROM schedules WHERE id = ? AND shop = ?", id, shop)

	schedule, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}
	return schedule, nil
}

// List implements ScheduleStore.List
func (s *SQLiteScheduleStore) List(ctx context.Context, shop string) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+scheduleColumns+" FROM schedules WHERE shop = ? ORDER BY created_at", shop)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// FindDue implements ScheduleStore.FindDue
func (s *SQLiteScheduleStore) FindDue(ctx context.Context, now time.Time) ([]*model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT"+scheduleColumns+` FROM schedules
		WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find due schedules: %w", err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

// ClaimAndAdvance implements ScheduleStore.ClaimAndAdvance. The WHERE
// clause re-checks due-ness so only one of any number of concurrent
// claimants observes an affected row.
func (s *SQLiteScheduleStore) ClaimAndAdvance(ctx context.Context, id string, now, next time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET last_run_at = ?, next_run_at = ?, updated_at = ?
		WHERE id = ? AND enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?`,
		now.UTC(), next.UTC(), now.UTC(), id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected == 1, nil
}

// Disarm implements ScheduleStore.Disarm
func (s *SQLiteScheduleStore) Disarm(ctx context.Context, id string, reason model.DisarmReason) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET next_run_at = NULL, disarm_reason = ?, updated_at = ?
		WHERE id = ?`,
		string(reason), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to disarm schedule: %w", err)
	}
	return requireRow(result)
}

// SetEnabled implements ScheduleStore.SetEnabled
func (s *SQLiteScheduleStore) SetEnabled(ctx context.Context, id, shop string, enabled bool, next *time.Time) error {
	var reason sql.NullString
	if !enabled {
		reason = sql.NullString{String: string(model.DisarmReasonPaused), Valid: true}
		next = nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE schedules SET enabled = ?, next_run_at = ?, disarm_reason = ?, updated_at = ?
		WHERE id = ? AND shop = ?`,
		enabled, nullTime(next), reason, time.Now().UTC(), id, shop)
	if err != nil {
		return fmt.Errorf("failed to toggle schedule: %w", err)
	}
	return requireRow(result)
}

// Close closes the database connection
func (s *SQLiteScheduleStore) Close() error {
	return s.db.Close()
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func encodeLists(schedule *model.Schedule) (sql.NullString, sql.NullString, error) {
	var runDays, orderTags sql.NullString

	if len(schedule.Recurrence.RunDays) > 0 {
		data, err := json.Marshal(schedule.Recurrence.RunDays)
		if err != nil {
			return runDays, orderTags, fmt.Errorf("failed to marshal run days: %w", err)
		}
		runDays = sql.NullString{String: string(data), Valid: true}
	}

	if len(schedule.Filter.Tags) > 0 {
		data, err := json.Marshal(schedule.Filter.Tags)
		if err != nil {
			return runDays, orderTags, fmt.Errorf("failed to marshal order tags: %w", err)
		}
		orderTags = sql.NullString{String: string(data), Valid: true}
	}

	return runDays, orderTags, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var schedule model.Schedule
	var frequency, scheduleTime string
	var runDays, monthlyMode, ordinal, patternDay sql.NullString
	var orderStatus, paymentStatus, orderTags, disarmReason sql.NullString
	var specificDay, minItems sql.NullInt64
	var minOrderValue sql.NullFloat64
	var lastRunAt, nextRunAt sql.NullTime

	err := row.Scan(
		&schedule.ID,
		&schedule.Shop,
		&schedule.Email,
		&schedule.Enabled,
		&frequency,
		&schedule.Recurrence.RepeatEvery,
		&scheduleTime,
		&runDays,
		&monthlyMode,
		&specificDay,
		&ordinal,
		&patternDay,
		&orderStatus,
		&paymentStatus,
		&minOrderValue,
		&minItems,
		&orderTags,
		&disarmReason,
		&lastRunAt,
		&nextRunAt,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	schedule.Recurrence.Frequency = model.Frequency(frequency)
	schedule.Recurrence.TimeOfDay = model.ParseTimeOfDay(scheduleTime)
	if runDays.Valid {
		if err := json.Unmarshal([]byte(runDays.String), &schedule.Recurrence.RunDays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run days: %w", err)
		}
	}
	if monthlyMode.Valid {
		schedule.Recurrence.MonthlyMode = model.MonthlyMode(monthlyMode.String)
	}
	if specificDay.Valid {
		schedule.Recurrence.SpecificDay = int(specificDay.Int64)
	}
	if ordinal.Valid {
		schedule.Recurrence.Ordinal = model.Ordinal(ordinal.String)
	}
	if patternDay.Valid {
		schedule.Recurrence.PatternDay = patternDay.String
	}
	if orderStatus.Valid {
		schedule.Filter.OrderStatus = model.OrderStatusFilter(orderStatus.String)
	}
	if paymentStatus.Valid {
		schedule.Filter.PaymentStatus = model.PaymentStatusFilter(paymentStatus.String)
	}
	if minOrderValue.Valid {
		schedule.Filter.MinOrderValue = &minOrderValue.Float64
	}
	if minItems.Valid {
		v := int(minItems.Int64)
		schedule.Filter.MinItems = &v
	}
	if orderTags.Valid {
		if err := json.Unmarshal([]byte(orderTags.String), &schedule.Filter.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order tags: %w", err)
		}
	}
	if disarmReason.Valid {
		schedule.DisarmReason = model.DisarmReason(disarmReason.String)
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		schedule.LastRunAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		schedule.NextRunAt = &t
	}

	return &schedule, nil
}

func collectSchedules(rows *sql.Rows) ([]*model.Schedule, error) {
	var schedules []*model.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return schedules, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

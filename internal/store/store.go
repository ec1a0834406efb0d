package store

import (
	"context"
	"errors"
	"time"

	"github.com/t77yq/report-scheduler/internal/model"
)

// ErrScheduleNotFound is returned when a schedule does not exist for
// the requesting shop
var ErrScheduleNotFound = errors.New("schedule not found")

// ScheduleStore defines persistence for report schedules.
//
// ClaimAndAdvance is the single concurrency-control point: it must be
// an atomic conditional update so that overlapping sweeps (or multiple
// process instances sharing one database) execute each due occurrence
// exactly once.
type ScheduleStore interface {
	// Create persists a new schedule
	Create(ctx context.Context, schedule *model.Schedule) error

	// Update replaces a schedule's configuration
	Update(ctx context.Context, schedule *model.Schedule) error

	// Delete removes a schedule owned by the shop
	Delete(ctx context.Context, id, shop string) error

	// Get retrieves a schedule owned by the shop
	Get(ctx context.Context, id, shop string) (*model.Schedule, error)

	// List retrieves all schedules owned by the shop
	List(ctx context.Context, shop string) ([]*model.Schedule, error)

	// FindDue returns enabled schedules whose next run is at or before now
	FindDue(ctx context.Context, now time.Time) ([]*model.Schedule, error)

	// ClaimAndAdvance atomically marks a due occurrence as taken: it
	// sets last_run_at to now and next_run_at to next, but only while
	// the schedule is still enabled and still due. It reports false
	// when a concurrent sweep won the race, which is not an error.
	ClaimAndAdvance(ctx context.Context, id string, now, next time.Time) (bool, error)

	// Disarm clears next_run_at and records why, so an unsatisfiable
	// rule is distinguishable from a manual pause
	Disarm(ctx context.Context, id string, reason model.DisarmReason) error

	// SetEnabled toggles a schedule. Disabling clears next_run_at;
	// enabling stores the caller-computed next run.
	SetEnabled(ctx context.Context, id, shop string, enabled bool, next *time.Time) error
}

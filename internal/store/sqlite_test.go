package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

func newTestStore(t *testing.T) *SQLiteScheduleStore {
	t.Helper()

	store, err := NewSQLiteScheduleStore(zap.NewNop(), filepath.Join(t.TempDir(), "schedules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSchedule(next *time.Time) *model.Schedule {
	minValue := 500.0
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Schedule{
		ID:      uuid.New().String(),
		Shop:    "demo-store.myshopify.com",
		Email:   "owner@demo-store.com",
		Enabled: true,
		Recurrence: model.RecurrenceRule{
			Frequency:   model.FrequencyWeekly,
			RepeatEvery: 2,
			TimeOfDay:   model.TimeOfDay{Hour: 10, Minute: 30},
			RunDays:     []string{"Mon", "Wed"},
		},
		Filter: model.FilterSpec{
			OrderStatus:   model.OrderStatusFulfilled,
			PaymentStatus: model.PaymentStatusPaid,
			MinOrderValue: &minValue,
			Tags:          []string{"wear", "fashion"},
		},
		NextRunAt: next,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	schedule := newTestSchedule(&next)
	require.NoError(t, store.Create(ctx, schedule))

	loaded, err := store.Get(ctx, schedule.ID, schedule.Shop)
	require.NoError(t, err)

	assert.Equal(t, schedule.ID, loaded.ID)
	assert.Equal(t, schedule.Recurrence.Frequency, loaded.Recurrence.Frequency)
	assert.Equal(t, schedule.Recurrence.RepeatEvery, loaded.Recurrence.RepeatEvery)
	assert.Equal(t, schedule.Recurrence.TimeOfDay, loaded.Recurrence.TimeOfDay)
	assert.Equal(t, schedule.Recurrence.RunDays, loaded.Recurrence.RunDays)
	assert.Equal(t, schedule.Filter.OrderStatus, loaded.Filter.OrderStatus)
	assert.Equal(t, schedule.Filter.Tags, loaded.Filter.Tags)
	require.NotNil(t, loaded.Filter.MinOrderValue)
	assert.Equal(t, 500.0, *loaded.Filter.MinOrderValue)
	require.NotNil(t, loaded.NextRunAt)
	assert.True(t, loaded.NextRunAt.Equal(next))
	assert.Nil(t, loaded.LastRunAt)
}

func TestGetScopedToShop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	schedule := newTestSchedule(nil)
	require.NoError(t, store.Create(ctx, schedule))

	_, err := store.Get(ctx, schedule.ID, "other-store.myshopify.com")
	assert.ErrorIs(t, err, ErrScheduleNotFound)

	err = store.Delete(ctx, schedule.ID, "other-store.myshopify.com")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestFindDue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	due := newTestSchedule(&past)
	require.NoError(t, store.Create(ctx, due))

	future := now.Add(time.Hour)
	notDue := newTestSchedule(&future)
	require.NoError(t, store.Create(ctx, notDue))

	disabled := newTestSchedule(&past)
	disabled.Enabled = false
	require.NoError(t, store.Create(ctx, disabled))

	unarmed := newTestSchedule(nil)
	require.NoError(t, store.Create(ctx, unarmed))

	found, err := store.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, due.ID, found[0].ID)
}

func TestClaimAndAdvance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	past := now.Add(-time.Minute)
	schedule := newTestSchedule(&past)
	require.NoError(t, store.Create(ctx, schedule))

	next := now.AddDate(0, 0, 1)

	claimed, err := store.ClaimAndAdvance(ctx, schedule.ID, now, next)
	require.NoError(t, err)
	assert.True(t, claimed)

	// The occurrence is taken; a second claim for the same due instant
	// is a silent no-op.
	claimed, err = store.ClaimAndAdvance(ctx, schedule.ID, now, next)
	require.NoError(t, err)
	assert.False(t, claimed)

	loaded, err := store.Get(ctx, schedule.ID, schedule.Shop)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastRunAt)
	assert.True(t, loaded.LastRunAt.Equal(now))
	require.NotNil(t, loaded.NextRunAt)
	assert.True(t, loaded.NextRunAt.Equal(next))
}

func TestClaimConcurrency(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	past := now.Add(-time.Minute)
	schedule := newTestSchedule(&past)
	require.NoError(t, store.Create(ctx, schedule))

	next := now.AddDate(0, 0, 1)

	const claimants = 8
	var wg sync.WaitGroup
	wins := make(chan bool, claimants)

	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimAndAdvance(ctx, schedule.ID, now, next)
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent claim must win")
}

func TestSetEnabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	schedule := newTestSchedule(&next)
	require.NoError(t, store.Create(ctx, schedule))

	// Disabling clears the next run regardless of what is passed.
	require.NoError(t, store.SetEnabled(ctx, schedule.ID, schedule.Shop, false, &next))

	loaded, err := store.Get(ctx, schedule.ID, schedule.Shop)
	require.NoError(t, err)
	assert.False(t, loaded.Enabled)
	assert.Nil(t, loaded.NextRunAt)
	assert.Equal(t, model.DisarmReasonPaused, loaded.DisarmReason)

	// Re-enabling arms the schedule with the caller's computed instant.
	rearmed := next.Add(30 * time.Minute)
	require.NoError(t, store.SetEnabled(ctx, schedule.ID, schedule.Shop, true, &rearmed))

	loaded, err = store.Get(ctx, schedule.ID, schedule.Shop)
	require.NoError(t, err)
	assert.True(t, loaded.Enabled)
	require.NotNil(t, loaded.NextRunAt)
	assert.True(t, loaded.NextRunAt.Equal(rearmed))
}

func TestDisarm(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	next := time.Now().UTC().Add(time.Hour)
	schedule := newTestSchedule(&next)
	require.NoError(t, store.Create(ctx, schedule))

	require.NoError(t, store.Disarm(ctx, schedule.ID, model.DisarmReasonUnsatisfiable))

	loaded, err := store.Get(ctx, schedule.ID, schedule.Shop)
	require.NoError(t, err)
	assert.True(t, loaded.Enabled, "disarming does not disable the schedule")
	assert.Nil(t, loaded.NextRunAt)
	assert.Equal(t, model.DisarmReasonUnsatisfiable, loaded.DisarmReason)
}

func TestListByShop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := newTestSchedule(nil)
	require.NoError(t, store.Create(ctx, first))

	second := newTestSchedule(nil)
	require.NoError(t, store.Create(ctx, second))

	other := newTestSchedule(nil)
	other.Shop = "other-store.myshopify.com"
	require.NoError(t, store.Create(ctx, other))

	schedules, err := store.List(ctx, first.Shop)
	require.NoError(t, err)
	assert.Len(t, schedules, 2)
}

package scheduler

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
	"github.com/t77yq/report-scheduler/internal/store"
	"github.com/t77yq/report-scheduler/internal/testutil"
)

func newTestStore(t *testing.T) *store.SQLiteScheduleStore {
	t.Helper()
	s, err := store.NewSQLiteScheduleStore(zap.NewNop(), filepath.Join(t.TempDir(), "schedules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dailySchedule(shop string) *model.Schedule {
	return &model.Schedule{
		Shop:  shop,
		Email: "owner@" + shop,
		Recurrence: model.RecurrenceRule{
			Frequency:   model.FrequencyDaily,
			RepeatEvery: 1,
			TimeOfDay:   model.TimeOfDay{Hour: 9},
		},
	}
}

func TestCommandHandler(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	schedules := newTestStore(t)
	handler := NewCommandHandler(zap.NewNop(), js, schedules)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, handler.Start(ctx))

	t.Run("Setup", func(t *testing.T) {
		stream, err := js.StreamInfo(scheduleStreamName)
		require.NoError(t, err)
		assert.Equal(t, scheduleStreamName, stream.Config.Name)
		assert.Equal(t, []string{"schedule.*"}, stream.Config.Subjects)
	})

	t.Run("Create Schedule", func(t *testing.T) {
		schedule := dailySchedule("demo-store.myshopify.com")
		schedule.ID = uuid.New().String()

		data, err := json.Marshal(schedule)
		require.NoError(t, err)
		_, err = js.Publish(scheduleCreateSubject, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			stored, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
			return err == nil && stored != nil
		}, 5*time.Second, 50*time.Millisecond)

		stored, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
		require.NoError(t, err)
		assert.True(t, stored.Enabled)
		require.NotNil(t, stored.NextRunAt, "a fresh schedule arms immediately")
		assert.True(t, stored.NextRunAt.After(time.Now().UTC().Add(-time.Minute)))
	})

	t.Run("Toggle Schedule", func(t *testing.T) {
		schedule := dailySchedule("toggle-store.myshopify.com")
		require.NoError(t, handler.CreateSchedule(ctx, schedule))

		data, err := json.Marshal(ToggleCommand{ID: schedule.ID, Shop: schedule.Shop, Enabled: false})
		require.NoError(t, err)
		_, err = js.Publish(scheduleToggleSubject, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			stored, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
			return err == nil && !stored.Enabled
		}, 5*time.Second, 50*time.Millisecond)

		stored, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
		require.NoError(t, err)
		assert.Nil(t, stored.NextRunAt, "paused schedules are never due")
		assert.Equal(t, model.DisarmReasonPaused, stored.DisarmReason)

		data, err = json.Marshal(ToggleCommand{ID: schedule.ID, Shop: schedule.Shop, Enabled: true})
		require.NoError(t, err)
		_, err = js.Publish(scheduleToggleSubject, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			stored, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
			return err == nil && stored.Enabled && stored.NextRunAt != nil
		}, 5*time.Second, 50*time.Millisecond)

		// Resuming recomputes from now rather than replaying the pause
		stored, err = schedules.Get(ctx, schedule.ID, schedule.Shop)
		require.NoError(t, err)
		assert.True(t, stored.NextRunAt.After(time.Now().UTC().Add(-time.Minute)))
	})

	t.Run("Remove Schedule", func(t *testing.T) {
		schedule := dailySchedule("remove-store.myshopify.com")
		require.NoError(t, handler.CreateSchedule(ctx, schedule))

		data, err := json.Marshal(RemoveCommand{ID: schedule.ID, Shop: schedule.Shop})
		require.NoError(t, err)
		_, err = js.Publish(scheduleRemoveSubject, data)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, err := schedules.Get(ctx, schedule.ID, schedule.Shop)
			return err == store.ErrScheduleNotFound
		}, 5*time.Second, 50*time.Millisecond)
	})
}

func TestCreateScheduleValidation(t *testing.T) {
	schedules := newTestStore(t)
	handler := NewCommandHandler(zap.NewNop(), nil, schedules)
	ctx := context.Background()

	t.Run("Missing Shop", func(t *testing.T) {
		schedule := dailySchedule("")
		err := handler.CreateSchedule(ctx, schedule)
		assert.ErrorIs(t, err, ErrMissingShop)
	})

	t.Run("Missing Email", func(t *testing.T) {
		schedule := dailySchedule("demo-store.myshopify.com")
		schedule.Email = ""
		err := handler.CreateSchedule(ctx, schedule)
		assert.ErrorIs(t, err, ErrMissingEmail)
	})

	t.Run("Invalid Recurrence", func(t *testing.T) {
		schedule := dailySchedule("demo-store.myshopify.com")
		schedule.Recurrence.RepeatEvery = 0
		err := handler.CreateSchedule(ctx, schedule)
		assert.Error(t, err)
	})

	t.Run("Weekly Without Run Days", func(t *testing.T) {
		schedule := dailySchedule("demo-store.myshopify.com")
		schedule.Recurrence.Frequency = model.FrequencyWeekly
		schedule.Recurrence.RunDays = nil
		err := handler.CreateSchedule(ctx, schedule)
		assert.Error(t, err)
	})

	t.Run("Defaults Filled", func(t *testing.T) {
		schedule := dailySchedule("defaults-store.myshopify.com")
		require.NoError(t, handler.CreateSchedule(ctx, schedule))
		assert.NotEmpty(t, schedule.ID)
		assert.False(t, schedule.CreatedAt.IsZero())
		assert.True(t, schedule.Enabled)
	})
}

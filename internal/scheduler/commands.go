package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
	"github.com/t77yq/report-scheduler/internal/recurrence"
	"github.com/t77yq/report-scheduler/internal/store"
)

// ToggleCommand enables or disables an existing schedule
type ToggleCommand struct {
	ID      string `json:"id"`
	Shop    string `json:"shop"`
	Enabled bool   `json:"enabled"`
}

// RemoveCommand deletes a schedule outright
type RemoveCommand struct {
	ID   string `json:"id"`
	Shop string `json:"shop"`
}

// CommandHandler applies schedule management commands arriving over
// JetStream. Durable consumers make commands survive restarts; the
// handler itself is stateless, so any instance may apply them.
type CommandHandler struct {
	logger    *zap.Logger
	js        nats.JetStreamContext
	schedules store.ScheduleStore
}

// NewCommandHandler creates a command handler backed by the store
func NewCommandHandler(logger *zap.Logger, js nats.JetStreamContext, schedules store.ScheduleStore) *CommandHandler {
	return &CommandHandler{
		logger:    logger,
		js:        js,
		schedules: schedules,
	}
}

// Start creates the command stream if needed and subscribes to the
// management subjects with durable consumers
func (h *CommandHandler) Start(ctx context.Context) error {
	_, err := h.js.StreamInfo(scheduleStreamName)
	if err != nil {
		if err != nats.ErrStreamNotFound {
			return fmt.Errorf("failed to get stream info: %w", err)
		}

		_, err = h.js.AddStream(&nats.StreamConfig{
			Name:     scheduleStreamName,
			Subjects: []string{"schedule.*"},
			Storage:  nats.FileStorage,
			MaxAge:   streamMaxAge,
			MaxMsgs:  streamMaxMsgs,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream: %w", err)
		}
		h.logger.Info("Created schedule stream", zap.String("name", scheduleStreamName))
	} else {
		h.logger.Info("Using existing schedule stream", zap.String("name", scheduleStreamName))
	}

	if _, err := h.js.Subscribe(scheduleCreateSubject, func(msg *nats.Msg) {
		var schedule model.Schedule
		if err := json.Unmarshal(msg.Data, &schedule); err != nil {
			h.logger.Error("Failed to unmarshal schedule", zap.Error(err))
			return
		}

		if err := h.CreateSchedule(ctx, &schedule); err != nil {
			h.logger.Error("Failed to create schedule",
				zap.String("shop", schedule.Shop),
				zap.Error(err))
			return
		}
	}, nats.Durable("schedule-create-consumer")); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scheduleCreateSubject, err)
	}

	if _, err := h.js.Subscribe(scheduleToggleSubject, func(msg *nats.Msg) {
		var cmd ToggleCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			h.logger.Error("Failed to unmarshal toggle command", zap.Error(err))
			return
		}

		if err := h.ToggleSchedule(ctx, cmd); err != nil {
			h.logger.Error("Failed to toggle schedule",
				zap.String("id", cmd.ID),
				zap.Error(err))
			return
		}
	}, nats.Durable("schedule-toggle-consumer")); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scheduleToggleSubject, err)
	}

	if _, err := h.js.Subscribe(scheduleRemoveSubject, func(msg *nats.Msg) {
		var cmd RemoveCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			h.logger.Error("Failed to unmarshal remove command", zap.Error(err))
			return
		}

		if err := h.RemoveSchedule(ctx, cmd); err != nil {
			h.logger.Error("Failed to remove schedule",
				zap.String("id", cmd.ID),
				zap.Error(err))
			return
		}
	}, nats.Durable("schedule-remove-consumer")); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", scheduleRemoveSubject, err)
	}

	return nil
}

// CreateSchedule validates, arms and persists a new schedule. A rule
// that validates but can never fire is stored disarmed rather than
// rejected, so the owner can fix it in place.
func (h *CommandHandler) CreateSchedule(ctx context.Context, schedule *model.Schedule) error {
	if schedule.Shop == "" {
		return ErrMissingShop
	}
	if schedule.Email == "" {
		return ErrMissingEmail
	}
	if err := schedule.Recurrence.Validate(); err != nil {
		return fmt.Errorf("invalid recurrence: %w", err)
	}

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now
	schedule.Enabled = true
	schedule.LastRunAt = nil
	schedule.DisarmReason = ""

	next, err := recurrence.NextRun(schedule.Recurrence, now, now)
	switch {
	case errors.Is(err, recurrence.ErrUnsatisfiable):
		schedule.NextRunAt = nil
		schedule.DisarmReason = model.DisarmReasonUnsatisfiable
		h.logger.Warn("Schedule created disarmed, rule cannot fire",
			zap.String("id", schedule.ID),
			zap.String("shop", schedule.Shop))
	case err != nil:
		return fmt.Errorf("failed to compute next run: %w", err)
	default:
		schedule.NextRunAt = &next
	}

	if err := h.schedules.Create(ctx, schedule); err != nil {
		return err
	}

	h.logger.Info("Created schedule",
		zap.String("id", schedule.ID),
		zap.String("shop", schedule.Shop),
		zap.String("frequency", string(schedule.Recurrence.Frequency)),
		zap.Timep("next_run", schedule.NextRunAt))
	return nil
}

// ToggleSchedule pauses or resumes a schedule. Resuming recomputes the
// next run from the current instant instead of replaying occurrences
// missed while paused.
func (h *CommandHandler) ToggleSchedule(ctx context.Context, cmd ToggleCommand) error {
	if !cmd.Enabled {
		if err := h.schedules.SetEnabled(ctx, cmd.ID, cmd.Shop, false, nil); err != nil {
			return err
		}
		h.logger.Info("Paused schedule", zap.String("id", cmd.ID))
		return nil
	}

	schedule, err := h.schedules.Get(ctx, cmd.ID, cmd.Shop)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	next, err := recurrence.NextRun(schedule.Recurrence, now, now)
	if errors.Is(err, recurrence.ErrUnsatisfiable) {
		if err := h.schedules.SetEnabled(ctx, cmd.ID, cmd.Shop, true, nil); err != nil {
			return err
		}
		if err := h.schedules.Disarm(ctx, cmd.ID, model.DisarmReasonUnsatisfiable); err != nil {
			return err
		}
		h.logger.Warn("Resumed schedule disarmed, rule cannot fire",
			zap.String("id", cmd.ID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to compute next run: %w", err)
	}

	if err := h.schedules.SetEnabled(ctx, cmd.ID, cmd.Shop, true, &next); err != nil {
		return err
	}
	h.logger.Info("Resumed schedule",
		zap.String("id", cmd.ID),
		zap.Time("next_run", next))
	return nil
}

// RemoveSchedule deletes a schedule owned by the shop
func (h *CommandHandler) RemoveSchedule(ctx context.Context, cmd RemoveCommand) error {
	if err := h.schedules.Delete(ctx, cmd.ID, cmd.Shop); err != nil {
		return err
	}
	h.logger.Info("Removed schedule",
		zap.String("id", cmd.ID),
		zap.String("shop", cmd.Shop))
	return nil
}

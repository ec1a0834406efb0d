package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/delivery"
	"github.com/t77yq/report-scheduler/internal/events"
	"github.com/t77yq/report-scheduler/internal/filter"
	"github.com/t77yq/report-scheduler/internal/history"
	"github.com/t77yq/report-scheduler/internal/model"
	"github.com/t77yq/report-scheduler/internal/provider"
	"github.com/t77yq/report-scheduler/internal/recurrence"
	"github.com/t77yq/report-scheduler/internal/render"
	"github.com/t77yq/report-scheduler/internal/store"
)

// Config defines configuration for the orchestrator
type Config struct {
	// PipelineTimeout bounds one schedule's fetch/render/deliver pipeline
	PipelineTimeout time.Duration

	// MaxConcurrent caps how many due schedules run at once per sweep
	MaxConcurrent int
}

// SweepStats summarizes one sweep for logging and metrics
type SweepStats struct {
	Due       int
	Claimed   int
	Completed int
	Failed    int
	Disarmed  int
	LostClaim int
}

// Orchestrator drives due schedules through claim and execution. All
// cross-sweep coordination happens in the store's conditional claim;
// the orchestrator itself holds no locks across the pipeline.
type Orchestrator struct {
	logger    *zap.Logger
	schedules store.ScheduleStore
	orders    provider.OrderProvider
	renderer  render.Renderer
	deliverer delivery.Deliverer
	runs      history.RunHistory
	events    *events.Publisher
	config    Config
}

// New creates a new orchestrator. The events publisher may be nil when
// no messaging backbone is wired in (e.g. in tests).
func New(
	logger *zap.Logger,
	schedules store.ScheduleStore,
	orders provider.OrderProvider,
	renderer render.Renderer,
	deliverer delivery.Deliverer,
	runs history.RunHistory,
	publisher *events.Publisher,
	config Config,
) *Orchestrator {
	if config.PipelineTimeout == 0 {
		config.PipelineTimeout = 2 * time.Minute
	}
	if config.MaxConcurrent == 0 {
		config.MaxConcurrent = 4
	}
	return &Orchestrator{
		logger:    logger,
		schedules: schedules,
		orders:    orders,
		renderer:  renderer,
		deliverer: deliverer,
		runs:      runs,
		events:    publisher,
		config:    config,
	}
}

// Sweep finds every schedule due at now and executes each claimed
// occurrence exactly once. A store failure aborts the whole tick; the
// next tick retries. Individual pipeline failures never abort a sweep.
func (o *Orchestrator) Sweep(ctx context.Context, now time.Time) SweepStats {
	var stats SweepStats

	due, err := o.schedules.FindDue(ctx, now)
	if err != nil {
		o.logger.Error("Failed to find due schedules, skipping tick", zap.Error(err))
		return stats
	}
	stats.Due = len(due)
	if len(due) == 0 {
		return stats
	}

	o.logger.Info("Sweeping due schedules",
		zap.Int("count", len(due)),
		zap.Time("now", now))

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.config.MaxConcurrent)

	for _, schedule := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func(schedule *model.Schedule) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := o.runOne(ctx, schedule, now)

			mu.Lock()
			switch outcome {
			case outcomeCompleted:
				stats.Claimed++
				stats.Completed++
			case outcomeFailed:
				stats.Claimed++
				stats.Failed++
			case outcomeDisarmed:
				stats.Disarmed++
			case outcomeLostClaim:
				stats.LostClaim++
			}
			mu.Unlock()
		}(schedule)
	}
	wg.Wait()

	return stats
}

type outcome int

const (
	outcomeLostClaim outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeDisarmed
)

func (o *Orchestrator) runOne(ctx context.Context, schedule *model.Schedule, now time.Time) outcome {
	// Compute the follow-up occurrence before touching any state, from
	// the pre-execution next run. If anything past the claim fails, the
	// schedule is already armed for its next occurrence instead of
	// stuck re-targeting this one.
	next, err := recurrence.NextRun(schedule.Recurrence, schedule.RecurrenceBase(), now)
	if errors.Is(err, recurrence.ErrUnsatisfiable) {
		o.logger.Warn("Recurrence cannot fire again, disarming schedule",
			zap.String("schedule_id", schedule.ID),
			zap.String("shop", schedule.Shop))
		if err := o.schedules.Disarm(ctx, schedule.ID, model.DisarmReasonUnsatisfiable); err != nil {
			o.logger.Error("Failed to disarm schedule",
				zap.String("schedule_id", schedule.ID),
				zap.Error(err))
		}
		return outcomeDisarmed
	}
	if err != nil {
		o.logger.Error("Failed to compute next run",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
		return outcomeLostClaim
	}

	claimed, err := o.schedules.ClaimAndAdvance(ctx, schedule.ID, now, next)
	if err != nil {
		o.logger.Error("Failed to claim schedule",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
		return outcomeLostClaim
	}
	if !claimed {
		// A concurrent sweep won the race. Expected steady-state
		// behavior, not an error.
		o.logger.Debug("Lost claim for schedule",
			zap.String("schedule_id", schedule.ID))
		return outcomeLostClaim
	}

	runCtx, cancel := context.WithTimeout(ctx, o.config.PipelineTimeout)
	defer cancel()

	run := &history.ReportRun{
		ID:         uuid.New().String(),
		ScheduleID: schedule.ID,
		Shop:       schedule.Shop,
		Status:     model.RunStatusRunning,
		StartedAt:  now,
	}
	if err := o.runs.Store(runCtx, run); err != nil {
		o.logger.Error("Failed to store run record",
			zap.String("schedule_id", schedule.ID),
			zap.Error(err))
	}

	count, execErr := o.execute(runCtx, schedule, now)

	completedAt := time.Now()
	run.CompletedAt = &completedAt
	run.Duration = completedAt.Sub(now)
	run.OrderCount = count
	if execErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = execErr.Error()
		o.logger.Error("Report pipeline failed",
			zap.String("schedule_id", schedule.ID),
			zap.String("shop", schedule.Shop),
			zap.Error(execErr))
	} else {
		run.Status = model.RunStatusCompleted
		o.logger.Info("Report delivered",
			zap.String("schedule_id", schedule.ID),
			zap.String("shop", schedule.Shop),
			zap.Int("orders", count),
			zap.Time("next_run", next))
	}

	if err := o.runs.Update(runCtx, run); err != nil {
		o.logger.Error("Failed to update run record",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}

	o.publishResult(ctx, run)

	if execErr != nil {
		return outcomeFailed
	}
	return outcomeCompleted
}

// execute runs the fetch/filter/render/deliver pipeline for one
// claimed occurrence and returns the matched order count.
func (o *Orchestrator) execute(ctx context.Context, schedule *model.Schedule, now time.Time) (int, error) {
	from, to := schedule.LookbackWindow(now)

	orders, err := o.orders.Fetch(ctx, provider.FetchQuery{
		Shop:          schedule.Shop,
		From:          from,
		To:            to,
		OrderStatus:   schedule.Filter.OrderStatus,
		PaymentStatus: schedule.Filter.PaymentStatus,
	})
	if err != nil {
		return 0, fmt.Errorf("fetch orders: %w", err)
	}

	matched := filter.Apply(orders, schedule.Filter)

	subject := fmt.Sprintf("%s Orders Report - %s",
		titleFrequency(schedule.Recurrence.Frequency), schedule.Shop)

	if len(matched) == 0 {
		// An empty result still completes the occurrence; the owner
		// gets a notice instead of silence.
		err := o.deliverer.Deliver(ctx, delivery.Request{
			To:      schedule.Email,
			Subject: subject,
			Body:    "No orders matched your report filters for this period.",
		})
		if err != nil {
			return 0, fmt.Errorf("deliver notice: %w", err)
		}
		return 0, nil
	}

	artifact, filename, err := o.renderer.Render(matched)
	if err != nil {
		return len(matched), fmt.Errorf("render report: %w", err)
	}

	err = o.deliverer.Deliver(ctx, delivery.Request{
		To:             schedule.Email,
		Subject:        subject,
		Body:           "Attached is your scheduled orders report.",
		Attachment:     artifact,
		AttachmentName: filename,
	})
	if err != nil {
		return len(matched), fmt.Errorf("deliver report: %w", err)
	}

	return len(matched), nil
}

func (o *Orchestrator) publishResult(ctx context.Context, run *history.ReportRun) {
	if o.events == nil {
		return
	}

	result := &model.RunResult{
		RunID:       run.ID,
		ScheduleID:  run.ScheduleID,
		Shop:        run.Shop,
		Status:      run.Status,
		OrderCount:  run.OrderCount,
		Error:       run.Error,
		CompletedAt: *run.CompletedAt,
	}
	if err := o.events.PublishRunResult(ctx, result); err != nil {
		o.logger.Error("Failed to publish run result",
			zap.String("run_id", run.ID),
			zap.Error(err))
	}
}

func titleFrequency(f model.Frequency) string {
	switch f {
	case model.FrequencyHourly:
		return "Hourly"
	case model.FrequencyDaily:
		return "Daily"
	case model.FrequencyWeekly:
		return "Weekly"
	case model.FrequencyMonthly:
		return "Monthly"
	default:
		return "Scheduled"
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/orchestrator"
)

// Sweeper drives the orchestrator on a fixed cadence. It deliberately
// knows nothing about individual schedules: the store decides what is
// due on every tick, so a missed or delayed tick only postpones work,
// never loses it.
type Sweeper struct {
	logger       *zap.Logger
	cron         *cron.Cron
	orchestrator *orchestrator.Orchestrator
	interval     time.Duration
	entryID      cron.EntryID
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// NewSweeper creates a sweeper ticking at the given interval. A zero
// interval falls back to one minute.
func NewSweeper(logger *zap.Logger, o *orchestrator.Orchestrator, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	cl := &cronLogger{logger: logger.Named("cron")}
	cronOptions := []cron.Option{
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cl)),
	}

	return &Sweeper{
		logger:       logger,
		cron:         cron.New(cronOptions...),
		orchestrator: o,
		interval:     interval,
	}
}

// Start registers the sweep entry and begins ticking. The first sweep
// runs immediately so restarts pick up overdue schedules without
// waiting out a full interval.
func (s *Sweeper) Start(ctx context.Context) error {
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep entry: %w", err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.logger.Info("Sweeper started", zap.Duration("interval", s.interval))

	go s.sweep(ctx)
	return nil
}

// Stop halts ticking and waits for an in-flight sweep entry to finish
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Sweeper stopped")
}

func (s *Sweeper) sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now().UTC()
	stats := s.orchestrator.Sweep(ctx, now)

	if stats.Due == 0 {
		return
	}
	s.logger.Info("Sweep finished",
		zap.Int("due", stats.Due),
		zap.Int("completed", stats.Completed),
		zap.Int("failed", stats.Failed),
		zap.Int("disarmed", stats.Disarmed),
		zap.Int("lost_claims", stats.LostClaim))
}

// NextTick reports when the next sweep fires, for health reporting
func (s *Sweeper) NextTick() time.Time {
	return s.cron.Entry(s.entryID).Next
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

const (
	reportStreamName = "REPORTS"

	// RunCompletedSubject carries successful run results
	RunCompletedSubject = "report.run.completed"
	// RunFailedSubject carries failed run results
	RunFailedSubject = "report.run.failed"

	streamMaxAge = 7 * 24 * time.Hour
)

// Publisher fans out run results over JetStream so dashboards and
// alerting can observe executions without touching the databases.
type Publisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewPublisher creates the run event publisher and its backing stream
func NewPublisher(js nats.JetStreamContext, logger *zap.Logger) (*Publisher, error) {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:     reportStreamName,
		Subjects: []string{"report.run.*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return nil, fmt.Errorf("failed to create report stream: %w", err)
	}

	return &Publisher{
		js:     js,
		logger: logger,
	}, nil
}

// PublishRunResult publishes a run result on the subject matching its status
func (p *Publisher) PublishRunResult(ctx context.Context, result *model.RunResult) error {
	subject := RunCompletedSubject
	if result.Status == model.RunStatusFailed {
		subject = RunFailedSubject
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal run result: %w", err)
	}

	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish run result",
			zap.String("run_id", result.RunID),
			zap.Error(err))
		return err
	}

	return nil
}

// SubscribeRunResults delivers every run result to the handler until
// the context is canceled
func (p *Publisher) SubscribeRunResults(ctx context.Context, handler func(model.RunResult)) error {
	sub, err := p.js.Subscribe("report.run.*", func(msg *nats.Msg) {
		var result model.RunResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			p.logger.Error("Failed to unmarshal run result", zap.Error(err))
			return
		}

		handler(result)
		msg.Ack()
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}

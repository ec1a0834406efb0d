package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/model"
)

// RunCounters aggregates run outcomes observed since startup
type RunCounters struct {
	Completed      int64 `json:"completed"`
	Failed         int64 `json:"failed"`
	OrdersReported int64 `json:"orders_reported"`
}

// MetricsCollector collects host metrics and run outcome counters and
// publishes them periodically for dashboards
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration
	mu       sync.RWMutex
	counters RunCounters
	stop     chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the metrics collector
func (c *MetricsCollector) Start(ctx context.Context) error {
	c.logger.Info("Starting metrics collector")

	// Tally run results as they flow past on the event stream
	if _, err := c.js.Subscribe("report.run.*", c.handleRunResult); err != nil {
		return fmt.Errorf("failed to subscribe to run results: %w", err)
	}

	go c.collectLoop(ctx)

	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.logger.Info("Stopping metrics collector")
	close(c.stop)
}

func (c *MetricsCollector) handleRunResult(msg *nats.Msg) {
	var result model.RunResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		c.logger.Error("Failed to unmarshal run result", zap.Error(err))
		return
	}

	c.mu.Lock()
	switch result.Status {
	case model.RunStatusCompleted:
		c.counters.Completed++
		c.counters.OrdersReported += int64(result.OrderCount)
	case model.RunStatusFailed:
		c.counters.Failed++
	}
	c.mu.Unlock()
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collectMetrics()
		}
	}
}

// collectMetrics collects host metrics and publishes a snapshot
func (c *MetricsCollector) collectMetrics() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		c.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	metrics := struct {
		Timestamp   time.Time   `json:"timestamp"`
		CPUUsage    float64     `json:"cpu_usage"`
		MemoryUsage float64     `json:"memory_usage"`
		Runs        RunCounters `json:"runs"`
	}{
		Timestamp:   time.Now(),
		CPUUsage:    cpuPercent[0],
		MemoryUsage: memInfo.UsedPercent,
		Runs:        c.Counters(),
	}

	data, err := json.Marshal(metrics)
	if err != nil {
		c.logger.Error("Failed to marshal metrics", zap.Error(err))
		return
	}

	if _, err := c.js.Publish("metrics.system", data); err != nil {
		c.logger.Error("Failed to publish metrics", zap.Error(err))
		return
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int64("runs_completed", metrics.Runs.Completed),
		zap.Int64("runs_failed", metrics.Runs.Failed))
}

// Counters returns a copy of the current run counters
func (c *MetricsCollector) Counters() RunCounters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters
}

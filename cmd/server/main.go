package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/report-scheduler/internal/delivery"
	"github.com/t77yq/report-scheduler/internal/events"
	"github.com/t77yq/report-scheduler/internal/history"
	"github.com/t77yq/report-scheduler/internal/monitor"
	"github.com/t77yq/report-scheduler/internal/orchestrator"
	"github.com/t77yq/report-scheduler/internal/provider"
	"github.com/t77yq/report-scheduler/internal/render"
	"github.com/t77yq/report-scheduler/internal/scheduler"
	"github.com/t77yq/report-scheduler/internal/store"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Connect to NATS with more options
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error",
				zap.String("subject", sub.Subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	// Create JetStream context
	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Open schedule storage
	schedules, err := store.NewSQLiteScheduleStore(logger.Named("store"), viper.GetString("storage.schedules_path"))
	if err != nil {
		logger.Fatal("Failed to open schedule store", zap.Error(err))
	}
	defer schedules.Close()

	// Open run history storage
	runs, err := history.NewSQLiteRunHistory(logger.Named("history"), viper.GetString("storage.runs_path"))
	if err != nil {
		logger.Fatal("Failed to open run history", zap.Error(err))
	}
	defer runs.Close()

	// Create run event publisher
	publisher, err := events.NewPublisher(js, logger.Named("events"))
	if err != nil {
		logger.Fatal("Failed to create event publisher", zap.Error(err))
	}

	// Create order provider
	orders := provider.NewRESTOrderProvider(logger.Named("provider"), provider.RESTConfig{
		BaseURL:     viper.GetString("provider.base_url"),
		AccessToken: viper.GetString("provider.access_token"),
		Timeout:     viper.GetDuration("provider.timeout"),
	})

	// Create report mailer
	mailer := delivery.NewSMTPMailer(logger.Named("mailer"), delivery.SMTPConfig{
		Host:     viper.GetString("smtp.host"),
		Port:     viper.GetInt("smtp.port"),
		Username: viper.GetString("smtp.username"),
		Password: viper.GetString("smtp.password"),
		From:     viper.GetString("smtp.from"),
	})

	// Wire the report pipeline
	reportOrchestrator := orchestrator.New(
		logger.Named("orchestrator"),
		schedules,
		orders,
		render.NewExcelRenderer(),
		mailer,
		runs,
		publisher,
		orchestrator.Config{
			PipelineTimeout: viper.GetDuration("sweep.pipeline_timeout"),
			MaxConcurrent:   viper.GetInt("sweep.max_concurrent"),
		},
	)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Start the schedule command handler
	commands := scheduler.NewCommandHandler(logger.Named("commands"), js, schedules)
	if err := commands.Start(ctx); err != nil {
		logger.Fatal("Failed to start command handler", zap.Error(err))
	}

	// Start the sweeper
	sweeper := scheduler.NewSweeper(logger.Named("sweeper"), reportOrchestrator, viper.GetDuration("sweep.interval"))
	if err := sweeper.Start(ctx); err != nil {
		logger.Fatal("Failed to start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Start the metrics collector
	metricsCollector := monitor.NewMetricsCollector(js, viper.GetDuration("metrics.interval"), logger)
	if err := metricsCollector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer metricsCollector.Stop()

	logger.Info("Report scheduler started",
		zap.Duration("sweep_interval", viper.GetDuration("sweep.interval")))

	<-ctx.Done()
	logger.Info("Shutting down")
}

package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/config"
	"github.com/mathemusician/church-volunteers/internal/db"
	"github.com/mathemusician/church-volunteers/internal/kafka"
	"github.com/mathemusician/church-volunteers/internal/logger"
	"github.com/mathemusician/church-volunteers/internal/metrics"
	"github.com/mathemusician/church-volunteers/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "triggers",
		Short: "Consume scheduler triggers (instance maintenance, generation, reminders) from Kafka",
		RunE:  runTriggers,
	})
	return cmd
}

func runTriggers(cmd *cobra.Command, args []string) error {
	flags := cmd.Root().PersistentFlags()
	cfgPath, _ := flags.GetString("config")
	cfg, err := config.Load(config.ResolvePath(cfgPath, flags.Changed("config")))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.App)
	log := logger.Log

	metrics.MustRegister(prometheus.DefaultRegisterer)

	dbx, err := db.OpenMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()

	svc := app.Build(cfg, app.MySQLRepos(dbx, nil), app.NewGateway(cfg.Gateway, log.Named("gateway")), log)

	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.TriggerTopic == "" {
		return fmt.Errorf("kafka brokers and trigger_topic are required")
	}
	consumer := kafka.NewConsumer(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.TriggerTopic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewTriggers(consumer, svc.Generator, svc.Dispatcher, log.Named("triggers"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("trigger worker started",
		zap.String("topic", cfg.Kafka.TriggerTopic),
		zap.String("group", cfg.Kafka.GroupID),
	)
	err = w.Run(ctx)
	_ = log.Sync()
	return err
}

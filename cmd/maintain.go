package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/db"
	"github.com/mathemusician/church-volunteers/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Top up every active template to its instance horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Log

		mysqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		svc := app.Build(cfg, app.MySQLRepos(mysqlDB, nil), app.NewGateway(cfg.Gateway, log), log)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		results, err := svc.Generator.MaintainAll(ctx, time.Now())
		for _, r := range results {
			log.Info("template maintained",
				zap.Int64("template_id", r.TemplateID),
				zap.Int("created", len(r.Created)),
				zap.Int("skipped", len(r.Skipped)),
			)
		}
		_ = log.Sync()
		return err
	},
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mathemusician/church-volunteers/internal/app"
	"github.com/mathemusician/church-volunteers/internal/db"
	httpSrv "github.com/mathemusician/church-volunteers/internal/http"
	"github.com/mathemusician/church-volunteers/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
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

		// Reports and rate limiting degrade instead of blocking startup.
		var chDB *sqlx.DB
		if chDB, err = db.OpenClickHouse(cfg.ClickHouse); err != nil {
			log.Warn("clickhouse unavailable, reports disabled", zap.Error(err))
			chDB = nil
		} else {
			defer chDB.Close()
		}

		var rds *redis.Client
		if rds, err = db.OpenRedis(cfg.Redis); err != nil {
			log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			rds = nil
		} else {
			defer func() { _ = rds.Close() }()
		}

		svc := app.Build(cfg, app.MySQLRepos(mysqlDB, chDB), app.NewGateway(cfg.Gateway, log.Named("gateway")), log)
		server := httpSrv.NewServer(cfg, svc, rds)

		errCh := make(chan error, 1)
		go func() {
			log.Info("starting http", zap.String("addr", cfg.HTTP.Addr))
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		_ = log.Sync()
		return nil
	},
}

package cmd

import (
	"fmt"
	"os"

	"github.com/mathemusician/church-volunteers/cmd/worker"
	"github.com/mathemusician/church-volunteers/internal/config"
	"github.com/mathemusician/church-volunteers/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "volunteers",
		Short: "Church volunteer scheduling and SMS reminders",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig reads the config and initializes the global logger from it.
func loadConfig() (config.Config, error) {
	explicit := rootCmd.PersistentFlags().Changed("config")
	cfg, err := config.Load(config.ResolvePath(cfgPath, explicit))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.App)
	return cfg, nil
}

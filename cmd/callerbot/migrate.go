package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/m3rciful/callerbot/bot/config"
	"github.com/m3rciful/callerbot/core/bootstrap"
	corecmd "github.com/m3rciful/callerbot/core/cmd"
	"github.com/m3rciful/callerbot/core/logger"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the postgres session store",
		Long: `Connects to the database section of the config and applies the
embedded migrations. Safe to run multiple times.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+configEnvVar+" or config.yaml)")
	return cmd
}

func runMigrate(out io.Writer, configPath string) error {
	path, err := corecmd.ResolveConfigPath(corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: "config.yaml",
	})
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if cfg.Database.Host == "" || cfg.Database.Name == "" {
		return fmt.Errorf("migrate: database.host and database.name are required")
	}

	res, err := bootstrap.Run(bootstrap.Options{
		Config:       cfg.CoreConfig(),
		Database:     cfg.Database,
		WithDatabase: true,
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()
	if err := res.Close(); err != nil {
		return fmt.Errorf("migrate: close database: %w", err)
	}

	fmt.Fprintf(out, "migrations applied to %s/%s\n", cfg.Database.Host, cfg.Database.Name)
	return nil
}

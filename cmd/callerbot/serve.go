package main

import (
	"github.com/spf13/cobra"

	"github.com/m3rciful/callerbot/bot/app"
	corecmd "github.com/m3rciful/callerbot/core/cmd"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Runs the bot in the mode set by telegram.run_mode.

webhook   serves Telegram deliveries on webhook.listen:webhook.port and
          replies inline; registers the webhook when webhook.register is set
longpoll  polls getUpdates and replies with sendMessage`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(serveOptions(configPath))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default $"+configEnvVar+" or config.yaml)")
	return cmd
}

func serveOptions(configPath string) corecmd.Options {
	return corecmd.Options{
		ConfigPath:        configPath,
		ConfigEnvVar:      configEnvVar,
		DefaultConfigPath: "config.yaml",
		LoadConfig:        app.LoadConfig,
		Bootstrap:         app.Bootstrap,
	}
}

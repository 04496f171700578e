package main

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/park285/chess-duet/internal/config"
	"github.com/park285/chess-duet/internal/obslog"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duetd",
		Short: "Chess session relay and engine host",
		Long: heredoc.Doc(`
			duetd hosts chess sessions: it executes moves against the rules
			oracle, stores documents with version preconditions and streams
			every commit to feed subscribers.

			Configuration comes from the environment (and .env), or from the
			file named by CONFIG_PATH.
		`),
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newReplayCommand())
	return cmd
}

// loadConfig reads the configuration and installs the global logger.
func loadConfig() (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := obslog.Init(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/park285/chess-duet/internal/archive"
	"github.com/park285/chess-duet/internal/obslog"
	"github.com/park285/chess-duet/internal/rules"
	"github.com/park285/chess-duet/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply archive schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer obslog.Sync()
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			return archive.Migrate(cfg.DatabaseURL, obslog.Named("archive"))
		},
	}
}

func newReplayCommand() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Check that a stored session replays to its recorded position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer obslog.Sync()

			var st store.Store
			if local || cfg.RedisURL == "" {
				ls, err := store.OpenLocal(cfg.LocalStorePath, obslog.Named("store"))
				if err != nil {
					return err
				}
				defer ls.Close()
				st = ls
			} else {
				rs, err := store.NewRedis(cfg.RedisURL)
				if err != nil {
					return err
				}
				defer rs.Close()
				st = rs
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			doc, err := st.Get(ctx, args[0])
			if err != nil {
				return err
			}
			oracle := rules.NewStandard()
			pos, err := oracle.Replay(doc.Start(), doc.MoveHistory)
			if err != nil {
				return fmt.Errorf("replay %s: %w", doc.ID, err)
			}
			if oracle.ToNotation(pos) != oracle.ToNotation(doc.Position) {
				return fmt.Errorf("session %s v%d diverges: replay gives %q, stored %q", doc.ID, doc.Version, pos, doc.Position)
			}
			status, err := oracle.Status(pos)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%d ok: %d plies, %s to move, outcome %s\n",
				doc.ID, doc.Version, len(doc.MoveHistory), doc.Turn, status.Outcome)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "read the local SQLite store even when REDIS_URL is set")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/taskdesk-api/internal/config"
	"github.com/jwalitptl/taskdesk-api/internal/migrations"
)

var dsn string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the taskdesk database schema",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	},
}

func run(command string, target int64) error {
	if dsn == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		dsn = cfg.Database.DSN()
	}
	return migrations.Run(migrations.Options{
		DSN:     dsn,
		Command: command,
		Target:  target,
		Logger:  &log.Logger,
	})
}

func simple(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(use, 0)
		},
	}
}

func targeted(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := cmd.Flags().GetInt64("version")
			if err != nil {
				return err
			}
			return run(use, version)
		},
	}
	cmd.Flags().Int64P("version", "v", 0, "Target migration version")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN (defaults to the database section of config.yaml)")

	rootCmd.AddCommand(
		simple("up", "Apply all pending migrations"),
		simple("down", "Roll back the latest migration"),
		simple("status", "Display status of each migration"),
		simple("version", "Print the current schema version"),
		simple("redo", "Roll back and re-apply the latest migration"),
		simple("reset", "Roll back all migrations"),
		targeted("up-to", "Apply migrations up to a version"),
		targeted("down-to", "Roll back migrations down to a version"),
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

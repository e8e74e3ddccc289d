package main

import (
	"errors"

	"qmsgov/internal/database"

	"github.com/spf13/cobra"
)

func migrateCmd(configPath *string) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate [up|down]",
		Short: "Apply or roll back database migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Database.IsMemory() {
				return errors.New("the memory driver has no migrations")
			}

			direction := "up"
			if len(args) > 0 {
				direction = args[0]
			}

			ctx := cmd.Context()

			switch direction {
			case "up":
				return database.Migrate(ctx, &cfg.Database, logger)
			case "down":
				if steps < 1 {
					return errors.New("--steps must be at least 1")
				}
				return database.Migrate(ctx, &cfg.Database, logger, -steps)
			default:
				return errors.New("direction must be up or down")
			}
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	return cmd
}

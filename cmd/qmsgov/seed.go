package main

import (
	"errors"
	"fmt"

	"qmsgov/internal/service"

	"github.com/spf13/cobra"
)

func seedCmd(configPath *string) *cobra.Command {
	var (
		file  string
		actor string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, workflows and propagation rules from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}

			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Database.IsMemory() {
				logger.Warn("Seeding the memory store; data is lost when the command exits")
			}

			seed, err := service.LoadSeed(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			svc, err := service.Open(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize service: %w", err)
			}
			defer func() { _ = svc.Stop() }()

			res, err := svc.ApplySeed(ctx, seed, actor)
			if err != nil {
				return err
			}
			fmt.Printf("seeded %d users, %d workflows, %d rules\n", res.Users, res.Workflows, res.Rules)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Seed file path")
	cmd.Flags().StringVar(&actor, "actor", "system", "User recorded as the author of seeded entries")
	return cmd
}

package main

import (
	"fmt"

	"qmsgov/internal/service"

	"github.com/spf13/cobra"
)

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Escalate overdue approvals once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()

			svc, err := service.Open(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize service: %w", err)
			}
			defer func() { _ = svc.Stop() }()

			escalated, err := svc.ProcessOverdueApprovals(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("escalated %d overdue approvals\n", escalated)
			return nil
		},
	}
}

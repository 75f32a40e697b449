package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func expireCmd(configPath *string) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire authorised consents whose validity time has passed, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApplication(*configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			count, err := app.consents.ExpireConsents(ctx, orgID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d consents\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "limit the run to one organization")
	return cmd
}

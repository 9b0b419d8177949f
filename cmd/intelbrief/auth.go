package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"intelbrief.app/brief/internal/auth"
)

func authCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage service credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Authorize read-only Gmail and Calendar access",
		Long: `Runs the OAuth consent flow in your browser and stores the resulting
token next to the client secret. Place the OAuth client secret JSON
(Desktop app) at the configured credentials path first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			cfg, cleanup, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			cfg.Google.Interactive = true
			provider := auth.NewProvider(cfg.Google, auth.WithConsent(auth.Consent{Out: cmd.ErrOrStderr()}.Run))
			if _, err := provider.Login(ctx); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Google token saved to %s\n", cfg.Google.TokenPath)
			return nil
		},
	})

	return cmd
}

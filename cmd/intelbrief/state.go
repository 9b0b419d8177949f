package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intelbrief.app/brief/internal/store"
)

func stateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the last-run marker",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print when the last clean run happened",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			lookback := time.Duration(cfg.LookbackHours) * time.Hour
			s := store.NewRunStateStore(cfg.StatePath(), lookback)
			out := cmd.OutOrStdout()

			last, ok := s.LastRun()
			if !ok {
				fmt.Fprintf(out, "No clean run recorded; the next run looks back %d hours.\n", cfg.LookbackHours)
				return nil
			}
			fmt.Fprintf(out, "Last clean run: %s (%s ago)\n",
				last.Local().Format(time.RFC3339),
				time.Since(last).Round(time.Minute))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget the last run so the next one uses the lookback window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			s := store.NewRunStateStore(cfg.StatePath(), time.Duration(cfg.LookbackHours)*time.Hour)
			if err := s.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Run state cleared (%s)\n", s.Path())
			return nil
		},
	})

	return cmd
}

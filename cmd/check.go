package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

func newCheckCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one check pass and print the summary as JSON",
		Long: `Checks every active target whose interval has elapsed, or every active
target with --all, then prints the same JSON the HTTP API returns.`,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, app.Close(cmd.Context()))
			}()

			mode := monitor.PassDue
			if all {
				mode = monitor.PassAll
			}
			summary, err := app.RunPass(cmd.Context(), mode)
			if err != nil {
				return fmt.Errorf("run %s pass: %w", mode, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(api.NewPassResponse(summary)); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "check every active target regardless of interval")
	return cmd
}

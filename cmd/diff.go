package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pagewatch/internal/diff"
)

func newDiffCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:         "diff <old-file> <new-file>",
		Short:       "Show the word-level change summary between two text files",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			oldText, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read old file: %w", err)
			}
			newText, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read new file: %w", err)
			}

			result := diff.Words(string(oldText), string(newText))
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return fmt.Errorf("write diff: %w", err)
				}
				return nil
			}

			fmt.Fprintln(out, result.Summary)
			if diff.Long(string(oldText), string(newText)) {
				fmt.Fprintf(out, "\n%s\n", diff.Window(string(oldText), string(newText)))
			} else if result.Rendered != "" {
				fmt.Fprintf(out, "\n%s\n", result.Rendered)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

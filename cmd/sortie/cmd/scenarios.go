package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sortie/internal/aggregate"
	"sortie/internal/scenario"
)

// List the scenario catalog.
func scenariosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "List the available scenarios.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, err := cmd.Flags().GetString("search")
			if err != nil {
				return err
			}
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return err
			}
			if err := checkOutput(output); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			catalog, err := cfg.Catalog()
			if err != nil {
				return err
			}

			summaries := catalog.List(search)
			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			return printScenarios(cmd.OutOrStdout(), summaries)
		},
	}
	cmd.Flags().String("search", "", "only list scenarios whose name or description contains this text")
	cmd.Flags().StringP("output", "o", "text", "output format: text, json")
	return cmd
}

func printScenarios(out io.Writer, summaries []scenario.Summary) error {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No scenarios found")
		return nil
	}
	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPHASES\tEVENTS\tDURATION\tNAME")
	for _, s := range summaries {
		name := s.Name
		if s.Custom {
			name += " (custom)"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			s.ID, s.PhaseCount, s.EventCount, aggregate.FormatDuration(s.EstimatedDuration), name)
	}
	return w.Flush()
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"sortie/internal/config"
	"sortie/internal/execution"
)

// Build a scenario's timeline and print it without sending anything.
func timelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <scenario>",
		Short: "Print the event timeline a run would dispatch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := cmd.Flags().GetString("speed")
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

			cfg, err := loadConfig(cmd, map[string]string{config.KeyWindow: "window"})
			if err != nil {
				return err
			}
			engine, err := newEngine(cfg, engineOptions{})
			if err != nil {
				return err
			}
			preview, err := engine.PreviewTimeline(args[0], speed)
			if err != nil {
				return err
			}

			if output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(timelineJSON(preview))
			}
			return printTimeline(cmd.OutOrStdout(), preview)
		},
	}
	cmd.Flags().String("speed", execution.SpeedFast, "timestamp layout: fast, realtime")
	cmd.Flags().Duration("window", 0, "width of the fast-speed window ending now")
	cmd.Flags().StringP("output", "o", "text", "output format: text, json")
	return cmd
}

type jsonEvent struct {
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Phase     string    `json:"phase"`
	Source    string    `json:"source"`
}

type jsonTimeline struct {
	execution.Preview
	Events []jsonEvent `json:"events"`
}

func timelineJSON(p execution.Preview) jsonTimeline {
	events := make([]jsonEvent, len(p.Envelopes))
	for i, env := range p.Envelopes {
		events[i] = jsonEvent{Seq: env.Seq, Timestamp: env.Timestamp, Phase: env.Phase, Source: env.Source}
	}
	return jsonTimeline{Preview: p, Events: events}
}

func printTimeline(out io.Writer, p execution.Preview) error {
	fmt.Fprintf(out, "Scenario: %s\n", p.ScenarioID)
	fmt.Fprintf(out, "Mode:     %s\n", p.Mode)
	fmt.Fprintf(out, "Events:   %d\n\n", len(p.Envelopes))

	w := tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tEVENTS\tFIRST\tLAST")
	for _, ph := range p.Phases {
		if ph.Count == 0 {
			fmt.Fprintf(w, "%s\t0\t-\t-\n", ph.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			ph.Name, ph.Count, ph.First.Format(time.RFC3339), ph.Last.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 1, 1, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIMESTAMP\tPHASE\tSOURCE")
	for _, env := range p.Envelopes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", env.Seq, env.Timestamp.Format(time.RFC3339), env.Phase, env.Source)
	}
	return w.Flush()
}

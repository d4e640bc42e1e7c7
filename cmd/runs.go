package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved valuations and anomaly scans",
	Long:  "Commands for listing, viewing, and summarizing stored runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := runFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeJSON(os.Stdout, run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

func runFilterFromFlags(cmd *cobra.Command) (store.RunFilter, error) {
	kind, _ := cmd.Flags().GetString("kind")
	label, _ := cmd.Flags().GetString("label")
	limit, _ := cmd.Flags().GetInt("limit")

	switch model.RunKind(kind) {
	case "", model.RunKindValuation, model.RunKindAnomalyScan:
	default:
		return store.RunFilter{}, eris.Errorf("unknown run kind %q", kind)
	}
	return store.RunFilter{Kind: model.RunKind(kind), Label: label, Limit: limit}, nil
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by run kind (valuation, anomaly_scan)")
	runsListCmd.Flags().String("label", "", "filter by label substring")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total        int
	Valuations   int
	Scans        int
	Findings     int
	AvgEstimate  float64
	ByConfidence map[model.ConfidenceLabel]int
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{Total: len(runs), ByConfidence: make(map[model.ConfidenceLabel]int)}

	var estimateSum float64
	for _, r := range runs {
		switch r.Kind {
		case model.RunKindValuation:
			s.Valuations++
			estimateSum += r.EstimatedValue
			s.ByConfidence[r.Confidence]++
		case model.RunKindAnomalyScan:
			s.Scans++
			s.Findings += r.Findings
		}
	}

	if s.Valuations > 0 {
		s.AvgEstimate = estimateSum / float64(s.Valuations)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tLABEL\tESTIMATE\tCONFIDENCE\tFINDINGS\tCREATED")
	for _, r := range runs {
		estimate, confidence := "-", "-"
		if r.Kind == model.RunKindValuation {
			estimate = fmt.Sprintf("%.0f", r.EstimatedValue)
			confidence = string(r.Confidence)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(r.ID),
			r.Kind,
			r.Label,
			estimate,
			confidence,
			r.Findings,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate statistics to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Valuations:\t%d\n", s.Valuations)
	_, _ = fmt.Fprintf(w, "Anomaly scans:\t%d\n", s.Scans)
	_, _ = fmt.Fprintf(w, "Findings:\t%d\n", s.Findings)
	if s.Valuations > 0 {
		_, _ = fmt.Fprintf(w, "Avg estimate:\t%.0f\n", s.AvgEstimate)
		for _, l := range []model.ConfidenceLabel{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
			_, _ = fmt.Fprintf(w, "  %s confidence:\t%d\n", l, s.ByConfidence[l])
		}
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of an ID.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

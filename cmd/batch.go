package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/profile"
	"github.com/sells-group/comps-cli/internal/records"
	"github.com/sells-group/comps-cli/internal/store"
	"github.com/sells-group/comps-cli/internal/valuation"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Value many subject properties against one comparables file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		subjectsPath, _ := cmd.Flags().GetString("subjects")
		compsPath, _ := cmd.Flags().GetString("comps")
		category, _ := cmd.Flags().GetString("category")
		asOf, _ := cmd.Flags().GetString("as-of")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		format, _ := cmd.Flags().GetString("format")
		save, _ := cmd.Flags().GetBool("save")

		subjects, err := records.ReadSubjects(subjectsPath)
		if err != nil {
			return err
		}
		if len(subjects) == 0 {
			return eris.Errorf("batch: no subjects in %s", subjectsPath)
		}
		res, err := readTransactions(ctx, compsPath)
		if err != nil {
			return err
		}
		ref, err := parseAsOf(asOf)
		if err != nil {
			return err
		}

		profiles, err := loadProfiles()
		if err != nil {
			return err
		}
		jobs := buildBatchJobs(subjects, res.Transactions, profiles, category, valuation.Options{
			ReferenceDate:  ref,
			MaxComparables: cfg.Engine.MaxComparables,
		})

		if concurrency <= 0 {
			concurrency = cfg.Engine.Concurrency
		}
		fallback := profiles.Get(resolveCategory(category, "")).Params()
		results, err := valuation.EvaluateBatch(ctx, jobs, fallback, concurrency)
		if err != nil {
			return eris.Wrap(err, "batch")
		}

		switch format {
		case "json":
			if err := writeJSON(os.Stdout, batchOutput(results)); err != nil {
				return eris.Wrap(err, "batch: write json")
			}
		case "text":
			formatBatchResults(os.Stdout, results)
		default:
			return eris.Errorf("batch: unsupported format %q (want text or json)", format)
		}

		if !save {
			return nil
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		return saveBatch(cmd, st, results)
	},
}

// buildBatchJobs creates one job per subject. Each job is valued with the
// profile of the --category flag, else of the subject's own category.
func buildBatchJobs(subjects []records.LabeledSubject, comps []model.Transaction, profiles profile.Set, category string, opts valuation.Options) []valuation.Job {
	jobs := make([]valuation.Job, len(subjects))
	for i, s := range subjects {
		params := profiles.Get(resolveCategory(category, s.Subject.Category)).Params()
		jobs[i] = valuation.Job{
			Label:       s.Label,
			Subject:     s.Subject,
			Comparables: comps,
			Params:      &params,
			Options:     opts,
		}
	}
	return jobs
}

type batchEntry struct {
	Label  string `json:"label"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func batchOutput(results []valuation.BatchResult) []batchEntry {
	out := make([]batchEntry, len(results))
	for i, r := range results {
		out[i] = batchEntry{Label: r.Label}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		} else {
			out[i].Result = r.Result
		}
	}
	return out
}

func saveBatch(cmd *cobra.Command, st store.Store, results []valuation.BatchResult) error {
	ctx := cmd.Context()
	saved := 0
	for _, r := range results {
		if r.Err != nil || r.Result == nil {
			continue
		}
		if _, err := st.SaveValuation(ctx, r.Label, r.Result); err != nil {
			return eris.Wrapf(err, "batch: save %s", r.Label)
		}
		saved++
	}
	zap.L().Info("batch: runs saved", zap.Int("saved", saved), zap.Int("total", len(results)))
	fmt.Fprintf(os.Stderr, "Saved %d of %d valuations.\n", saved, len(results))
	return nil
}

// formatBatchResults writes one row per job to out.
func formatBatchResults(out io.Writer, results []valuation.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LABEL\tESTIMATE\tRANGE\tCONFIDENCE\tCOMPS\tERROR")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%s\n", r.Label, r.Err.Error())
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%.0f\t%.0f-%.0f\t%s (%.2f)\t%d\t\n",
			r.Label,
			r.Result.EstimatedValue,
			r.Result.ValueRange.Min, r.Result.ValueRange.Max,
			r.Result.Confidence.Label, r.Result.Confidence.Score,
			r.Result.SampleSize,
		)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d valued, %d failed\n", len(results)-failed, failed)
}

func init() {
	batchCmd.Flags().String("subjects", "", "subjects file: a YAML or JSON list of {label, subject}")
	batchCmd.Flags().String("comps", "", "comparables file (.csv, .json, .xlsx)")
	batchCmd.Flags().String("category", "", "profile name (default engine.default_category)")
	batchCmd.Flags().String("as-of", "", "reference date YYYY-MM-DD")
	batchCmd.Flags().Int("concurrency", 0, "parallel valuations (default engine.concurrency)")
	batchCmd.Flags().String("format", "text", "output format (text, json)")
	batchCmd.Flags().Bool("save", false, "persist each successful valuation as a run")
	_ = batchCmd.MarkFlagRequired("subjects")
	_ = batchCmd.MarkFlagRequired("comps")
	rootCmd.AddCommand(batchCmd)
}

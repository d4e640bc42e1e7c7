package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/export"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/records"
	"github.com/sells-group/comps-cli/internal/store"
	"github.com/sells-group/comps-cli/internal/valuation"
)

var valueCmd = &cobra.Command{
	Use:   "value",
	Short: "Value a subject property against comparable transactions",
	Long: "Adjusts each comparable to the subject, weights and aggregates them into an estimate with a value range " +
		"and confidence. Comparables come from --comps or, when omitted, from stored transactions in the subject's city.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("value"); err != nil {
			return err
		}

		subjectPath, _ := cmd.Flags().GetString("subject")
		compsPath, _ := cmd.Flags().GetString("comps")
		category, _ := cmd.Flags().GetString("category")
		asOf, _ := cmd.Flags().GetString("as-of")
		disable, _ := cmd.Flags().GetStringSlice("disable")
		maxComps, _ := cmd.Flags().GetInt("max-comps")
		format, _ := cmd.Flags().GetString("format")
		exportFmt, _ := cmd.Flags().GetString("export")
		out, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")
		label, _ := cmd.Flags().GetString("label")

		if exportFmt != "" && out == "" {
			return eris.New("value: --export requires --out")
		}

		subject, err := records.ReadSubject(subjectPath)
		if err != nil {
			return err
		}
		ref, err := parseAsOf(asOf)
		if err != nil {
			return err
		}

		var st store.Store
		if compsPath == "" || save {
			if st, err = initStore(ctx); err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		comps, err := loadComparables(ctx, st, compsPath, subject)
		if err != nil {
			return err
		}

		overrides, err := buildOverrides(disable, comps)
		if err != nil {
			return err
		}
		if maxComps == 0 {
			maxComps = cfg.Engine.MaxComparables
		}

		profiles, err := loadProfiles()
		if err != nil {
			return err
		}
		p := profiles.Get(resolveCategory(category, subject.Category))

		result, err := valuation.Evaluate(subject, comps, p.Params(), valuation.Options{
			ReferenceDate:  ref,
			Overrides:      overrides,
			MaxComparables: maxComps,
		})
		if err != nil {
			return eris.Wrap(err, "value")
		}

		switch format {
		case "json":
			if err := writeJSON(os.Stdout, result); err != nil {
				return eris.Wrap(err, "value: write json")
			}
		case "text":
			formatValuation(os.Stdout, result)
		default:
			return eris.Errorf("value: unsupported format %q (want text or json)", format)
		}

		if exportFmt != "" {
			if err := exportValuation(exportFmt, out, result); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Exported %s to %s\n", exportFmt, out)
		}

		if save {
			run, err := st.SaveValuation(ctx, label, result)
			if err != nil {
				return eris.Wrap(err, "value: save")
			}
			fmt.Fprintf(os.Stderr, "Saved run %s\n", run.ID)
		}
		return nil
	},
}

// loadComparables reads comparables from path, or from the store by the
// subject's city when path is empty.
func loadComparables(ctx context.Context, st store.Store, path string, subject model.SubjectProperty) ([]model.Transaction, error) {
	if path != "" {
		res, err := readTransactions(ctx, path)
		if err != nil {
			return nil, err
		}
		return res.Transactions, nil
	}

	if st == nil {
		return nil, eris.New("value: no comparables source")
	}
	if strings.TrimSpace(subject.City) == "" {
		return nil, eris.New("value: --comps is required when the subject has no city")
	}
	comps, err := st.ListTransactions(ctx, store.TransactionFilter{City: subject.City})
	if err != nil {
		return nil, eris.Wrap(err, "value: load stored comparables")
	}
	zap.L().Info("comparables loaded from store",
		zap.String("city", subject.City),
		zap.Int("count", len(comps)),
	)
	return comps, nil
}

func exportValuation(format, path string, result *model.ValuationResult) error {
	var write func(io.Writer) error
	switch format {
	case "csv":
		write = func(w io.Writer) error { return export.WriteComparablesCSV(w, result.Comparables) }
	case "xlsx":
		write = func(w io.Writer) error { return export.WriteValuationXLSX(w, result) }
	default:
		return eris.Errorf("value: unsupported export format %q (want csv or xlsx)", format)
	}
	return writeOutput(path, write)
}

// formatValuation writes the narrative and a table of comparables to out.
func formatValuation(out io.Writer, r *model.ValuationResult) {
	fmt.Fprintln(out, r.Summary)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tADDRESS\tPRICE/AREA\tADJ %\tADJUSTED/AREA\tWEIGHT\tINCLUDED")
	for _, ev := range r.Comparables {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f\t%+.1f\t%.0f\t%.3f\t%t\n",
			truncateID(ev.Transaction.ID),
			ev.Transaction.Address(),
			ev.Transaction.PricePerUnitArea,
			ev.TotalAdjustmentPercent,
			ev.AdjustedPricePerUnitArea,
			ev.Weight,
			ev.Included,
		)
	}
	_ = w.Flush()
}

func init() {
	valueCmd.Flags().String("subject", "", "subject property file (.yaml, .json)")
	valueCmd.Flags().String("comps", "", "comparables file (.csv, .json, .xlsx); default: stored transactions in the subject's city")
	valueCmd.Flags().String("category", "", "profile name (default: subject category, then engine.default_category)")
	valueCmd.Flags().String("as-of", "", "reference date YYYY-MM-DD (default: subject valuation date, then today)")
	valueCmd.Flags().StringSlice("disable", nil, "adjustment to switch off: a factor ID (comp-id:category) or a category")
	valueCmd.Flags().Int("max-comps", 0, "keep only the N highest-weighted comparables (default engine.max_comparables)")
	valueCmd.Flags().String("format", "text", "output format (text, json)")
	valueCmd.Flags().String("export", "", "also export to --out as csv or xlsx")
	valueCmd.Flags().String("out", "", "export file path")
	valueCmd.Flags().Bool("save", false, "persist the valuation as a run")
	valueCmd.Flags().String("label", "", "run label when saving (default: subject address)")
	_ = valueCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(valueCmd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps-cli/internal/anomaly"
	"github.com/sells-group/comps-cli/internal/export"
	"github.com/sells-group/comps-cli/internal/model"
)

var anomaliesCmd = &cobra.Command{
	Use:   "anomalies",
	Short: "Flag statistically unusual transactions",
	Long:  "Runs z-score outlier detection over a normalized population; --all-passes adds rapid price change and data gap checks.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		category, _ := cmd.Flags().GetString("category")
		metric, _ := cmd.Flags().GetString("metric")
		allPasses, _ := cmd.Flags().GetBool("all-passes")
		format, _ := cmd.Flags().GetString("format")
		exportFmt, _ := cmd.Flags().GetString("export")
		out, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")
		label, _ := cmd.Flags().GetString("label")

		res, err := readTransactions(ctx, input)
		if err != nil {
			return err
		}

		profiles, err := loadProfiles()
		if err != nil {
			return err
		}
		acfg := profiles.Get(resolveCategory(category, "")).Anomaly
		if metric != "" {
			m, err := parseMetric(metric)
			if err != nil {
				return err
			}
			acfg.Metric = m
		}
		if err := acfg.Validate(); err != nil {
			return err
		}

		var reports []model.AnomalyReport
		if allPasses {
			reports = anomaly.Scan(res.Transactions, acfg)
		} else {
			reports = anomaly.Detect(res.Transactions, acfg)
		}

		switch format {
		case "json":
			if err := writeJSON(os.Stdout, reports); err != nil {
				return eris.Wrap(err, "anomalies: write json")
			}
		case "text":
			formatAnomalies(os.Stdout, reports)
		default:
			return eris.Errorf("anomalies: unsupported format %q (want text or json)", format)
		}

		if exportFmt != "" {
			if exportFmt != "csv" {
				return eris.Errorf("anomalies: unsupported export format %q (want csv)", exportFmt)
			}
			if err := writeOutput(out, func(w io.Writer) error {
				return export.WriteAnomaliesCSV(w, reports)
			}); err != nil {
				return err
			}
		}

		if !save {
			return nil
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if label == "" {
			label = input
		}
		run, err := st.SaveAnomalyScan(ctx, label, reports)
		if err != nil {
			return eris.Wrap(err, "anomalies: save")
		}
		fmt.Fprintf(os.Stderr, "Saved run %s\n", run.ID)
		return nil
	},
}

// parseMetric maps a --metric value to a detection metric.
func parseMetric(s string) (string, error) {
	switch s {
	case "price":
		return anomaly.MetricPrice, nil
	case "ppua", "price_per_unit_area":
		return anomaly.MetricPricePerUnitArea, nil
	default:
		return "", eris.Errorf("unknown metric %q (want price or ppua)", s)
	}
}

// formatAnomalies writes a table of findings to out.
func formatAnomalies(out io.Writer, reports []model.AnomalyReport) {
	if len(reports) == 0 {
		_, _ = fmt.Fprintln(out, "No anomalies found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SEVERITY\tTYPE\tCLASS\tADDRESS\tVALUE\tZ\tDEVIATION")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\t%.2f\t%+.1f%%\n",
			r.Severity, r.AnomalyType, r.Classification, r.Address, r.Value, r.ZScore, r.DeviationPercent)
	}
	_ = w.Flush()
}

func init() {
	anomaliesCmd.Flags().String("input", "", "transactions file (.csv, .json, .xlsx)")
	anomaliesCmd.Flags().String("category", "", "profile supplying thresholds (default engine.default_category)")
	anomaliesCmd.Flags().String("metric", "", "metric to test: price or ppua (default from profile)")
	anomaliesCmd.Flags().Bool("all-passes", false, "also detect rapid price changes and data gaps")
	anomaliesCmd.Flags().String("format", "text", "output format (text, json)")
	anomaliesCmd.Flags().String("export", "", "also export findings to --out as csv")
	anomaliesCmd.Flags().String("out", "", "export file path")
	anomaliesCmd.Flags().Bool("save", false, "persist the scan as a run")
	anomaliesCmd.Flags().String("label", "", "run label when saving (default: input path)")
	_ = anomaliesCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(anomaliesCmd)
}

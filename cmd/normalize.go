package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/comps-cli/internal/export"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Validate and canonicalize raw transaction records",
	Long:  "Reads a CSV, JSON or XLSX file of raw transactions, drops invalid rows, and prints the normalized transactions.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		input, _ := cmd.Flags().GetString("input")
		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		save, _ := cmd.Flags().GetBool("save")

		res, err := readTransactions(ctx, input)
		if err != nil {
			return err
		}

		var write func(io.Writer) error
		switch format {
		case "json":
			write = func(w io.Writer) error {
				return eris.Wrap(writeJSON(w, res), "normalize: write json")
			}
		case "csv":
			write = func(w io.Writer) error { return export.WriteTransactionsCSV(w, res.Transactions) }
		default:
			return eris.Errorf("normalize: unsupported format %q (want json or csv)", format)
		}
		if err := writeOutput(out, write); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Normalized %d transactions, dropped %d.\n", len(res.Transactions), res.Dropped)
		for _, reason := range slices.Sorted(maps.Keys(res.DropReasons)) {
			fmt.Fprintf(os.Stderr, "  %s: %d\n", reason, res.DropReasons[reason])
		}

		if !save {
			return nil
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.SaveTransactions(ctx, res.Transactions)
		if err != nil {
			return eris.Wrap(err, "normalize: save")
		}
		fmt.Fprintf(os.Stderr, "Saved %d transactions.\n", n)
		return nil
	},
}

func init() {
	normalizeCmd.Flags().String("input", "", "raw transactions file (.csv, .json, .xlsx)")
	normalizeCmd.Flags().String("format", "json", "output format (json, csv)")
	normalizeCmd.Flags().String("out", "", "output file (default stdout)")
	normalizeCmd.Flags().Bool("save", false, "upsert normalized transactions into the store")
	_ = normalizeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(normalizeCmd)
}

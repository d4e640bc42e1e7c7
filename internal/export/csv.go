// Package export writes transactions and valuation results to CSV and XLSX.
// Every column comes straight from the model; nothing is recomputed here.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// TransactionColumns is the header of a transaction export.
var TransactionColumns = []string{"address", "city", "area", "price", "price_per_unit_area", "date"}

// ComparableColumns is the header of a comparable export.
var ComparableColumns = append(append([]string{}, TransactionColumns...),
	"adjusted_price", "adjusted_price_per_unit_area", "total_adjustment_percent", "weight", "included")

// WriteTransactionsCSV writes one row per transaction.
func WriteTransactionsCSV(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TransactionColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, tx := range txs {
		if err := cw.Write(transactionRow(tx)); err != nil {
			return eris.Wrapf(err, "export: write transaction %s", tx.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteComparablesCSV writes one row per comparable evaluation, in result order.
func WriteComparablesCSV(w io.Writer, evals []model.ComparableEvaluation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ComparableColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, ev := range evals {
		row := append(transactionRow(ev.Transaction),
			formatFloat(ev.AdjustedPrice),
			formatFloat(ev.AdjustedPricePerUnitArea),
			formatFloat(ev.TotalAdjustmentPercent),
			strconv.FormatFloat(ev.Weight, 'f', 6, 64),
			strconv.FormatBool(ev.Included),
		)
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write comparable %s", ev.Transaction.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func transactionRow(tx model.Transaction) []string {
	return []string{
		tx.Address(),
		tx.City,
		formatFloat(tx.Area),
		formatFloat(tx.Price),
		formatFloat(tx.PricePerUnitArea),
		formatDate(tx.Date),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}

// AnomalyColumns is the header of an anomaly export.
var AnomalyColumns = []string{
	"transaction_id", "address", "city", "price", "metric", "value", "z_score",
	"deviation_percent", "anomaly_type", "classification", "severity", "recommendation",
}

// WriteAnomaliesCSV writes one row per anomaly report, in report order.
func WriteAnomaliesCSV(w io.Writer, reports []model.AnomalyReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnomalyColumns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, r := range reports {
		row := []string{
			r.TransactionID,
			r.Address,
			r.City,
			formatFloat(r.Price),
			r.Metric,
			formatFloat(r.Value),
			strconv.FormatFloat(r.ZScore, 'f', 3, 64),
			formatFloat(r.DeviationPercent),
			string(r.AnomalyType),
			string(r.Classification),
			string(r.Severity),
			r.Recommendation,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "export: write anomaly %s", r.TransactionID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

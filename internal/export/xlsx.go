package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/comps-cli/internal/model"
)

// Sheet names of a valuation workbook.
const (
	SummarySheet     = "Summary"
	ComparablesSheet = "Comparables"
	AdjustmentsSheet = "Adjustments"
)

const moneyFormat = "#,##0"

// WriteValuationXLSX writes a workbook with a summary sheet, one row per
// comparable, and one row per adjustment factor.
func WriteValuationXLSX(w io.Writer, r *model.ValuationResult) error {
	if r == nil {
		return eris.New("export: nil valuation result")
	}

	f := xlsx.NewFile()
	if err := writeSummary(f, r); err != nil {
		return err
	}
	if err := writeComparables(f, r.Comparables); err != nil {
		return err
	}
	if err := writeAdjustments(f, r.Comparables); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func writeSummary(f *xlsx.File, r *model.ValuationResult) error {
	sheet, err := f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	text := func(label, value string) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetString(value)
	}
	money := func(label string, v float64) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetFloatWithFormat(v, moneyFormat)
	}
	number := func(label string, v float64) {
		row := sheet.AddRow()
		row.AddCell().SetString(label)
		row.AddCell().SetFloat(v)
	}

	text("Subject", r.Subject.Address())
	text("Profile", r.Profile)
	text("Reference date", formatDate(r.ReferenceDate))
	number("Area", r.Subject.Area)
	money("Estimated value", r.EstimatedValue)
	money("Range min", r.ValueRange.Min)
	money("Range max", r.ValueRange.Max)
	money("Base price per unit area", r.BasePricePerUnitArea)
	money("Adjusted price per unit area", r.AdjustedPricePerUnitArea)
	number("Confidence score", r.Confidence.Score)
	text("Confidence", string(r.Confidence.Label))
	number("Sample size", float64(r.SampleSize))
	money("Median", r.Statistics.Median)
	money("Std dev", r.Statistics.StdDev)
	number("Coefficient of variation", r.Statistics.CoefficientOfVariation)
	text("Summary", r.Summary)
	return nil
}

func writeComparables(f *xlsx.File, evals []model.ComparableEvaluation) error {
	sheet, err := f.AddSheet(ComparablesSheet)
	if err != nil {
		return eris.Wrap(err, "export: add comparables sheet")
	}

	header := sheet.AddRow()
	for _, col := range ComparableColumns {
		header.AddCell().SetString(col)
	}

	for _, ev := range evals {
		tx := ev.Transaction
		row := sheet.AddRow()
		row.AddCell().SetString(tx.Address())
		row.AddCell().SetString(tx.City)
		row.AddCell().SetFloat(tx.Area)
		row.AddCell().SetFloatWithFormat(tx.Price, moneyFormat)
		row.AddCell().SetFloatWithFormat(tx.PricePerUnitArea, moneyFormat)
		row.AddCell().SetString(formatDate(tx.Date))
		row.AddCell().SetFloatWithFormat(ev.AdjustedPrice, moneyFormat)
		row.AddCell().SetFloatWithFormat(ev.AdjustedPricePerUnitArea, moneyFormat)
		row.AddCell().SetFloat(ev.TotalAdjustmentPercent)
		row.AddCell().SetFloat(ev.Weight)
		row.AddCell().SetBool(ev.Included)
	}
	return nil
}

func writeAdjustments(f *xlsx.File, evals []model.ComparableEvaluation) error {
	sheet, err := f.AddSheet(AdjustmentsSheet)
	if err != nil {
		return eris.Wrap(err, "export: add adjustments sheet")
	}

	header := sheet.AddRow()
	for _, col := range []string{"id", "address", "category", "percent", "applied", "reasoning", "source"} {
		header.AddCell().SetString(col)
	}

	for _, ev := range evals {
		for _, a := range ev.Adjustments {
			row := sheet.AddRow()
			row.AddCell().SetString(a.ID)
			row.AddCell().SetString(ev.Transaction.Address())
			row.AddCell().SetString(string(a.Category))
			row.AddCell().SetFloat(a.Value)
			row.AddCell().SetBool(a.Applied)
			row.AddCell().SetString(a.Reasoning)
			row.AddCell().SetString(a.Source)
		}
	}
	return nil
}

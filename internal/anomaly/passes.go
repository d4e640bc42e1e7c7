package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/model"
)

const day = 24 * time.Hour

// DetectRapidChanges flags repeat sales of the same address whose price per
// unit area moved more than RapidChangePercent within RapidChangeWindowDays.
// The report is attached to the later sale.
func DetectRapidChanges(population []model.Transaction, cfg Config) []model.AnomalyReport {
	reports := []model.AnomalyReport{}
	window := time.Duration(cfg.RapidChangeWindowDays) * day

	groups := make(map[string][]model.Transaction)
	for _, tx := range population {
		if tx.Street == "" || tx.Date.IsZero() {
			continue
		}
		key := tx.AddressKey()
		groups[key] = append(groups[key], tx)
	}

	for _, sales := range groups {
		if len(sales) < 2 {
			continue
		}
		sort.SliceStable(sales, func(i, j int) bool { return sales[i].Date.Before(sales[j].Date) })

		for i := 1; i < len(sales); i++ {
			prev, cur := sales[i-1], sales[i]
			if cur.Date.Sub(prev.Date) > window {
				continue
			}
			before := metricValue(prev, MetricPricePerUnitArea)
			after := metricValue(cur, MetricPricePerUnitArea)
			if before <= 0 {
				continue
			}
			change := (after - before) / before * 100
			if math.Abs(change) <= cfg.RapidChangePercent {
				continue
			}

			r := newReport(cur, MetricPricePerUnitArea, after)
			r.DeviationPercent = change
			r.AnomalyType = model.AnomalyRapidChange
			r.Classification = model.ClassRapidChange
			r.Severity = model.SeverityWarning
			if math.Abs(change) > 2*cfg.RapidChangePercent {
				r.Severity = model.SeverityCritical
			}
			r.Recommendation = fmt.Sprintf("Price per unit area moved %+.1f%% within %d days of the previous sale (%s); confirm both records.",
				change, int(cur.Date.Sub(prev.Date)/day), prev.ID)
			reports = append(reports, r)
		}
	}

	sortReports(reports)
	return reports
}

// DetectDataGaps flags periods longer than DataGapDays with no transactions.
// The report is attached to the first transaction after the gap; its Value is
// the gap length in days.
func DetectDataGaps(population []model.Transaction, cfg Config) []model.AnomalyReport {
	reports := []model.AnomalyReport{}

	dated := make([]model.Transaction, 0, len(population))
	for _, tx := range population {
		if !tx.Date.IsZero() {
			dated = append(dated, tx)
		}
	}
	sort.SliceStable(dated, func(i, j int) bool { return dated[i].Date.Before(dated[j].Date) })

	for i := 1; i < len(dated); i++ {
		gap := int(dated[i].Date.Sub(dated[i-1].Date) / day)
		if gap <= cfg.DataGapDays {
			continue
		}
		r := newReport(dated[i], "days_since_previous", float64(gap))
		r.AnomalyType = model.AnomalyDataGap
		r.Classification = model.ClassDataGap
		r.Severity = model.SeverityInfo
		r.Recommendation = fmt.Sprintf("No transactions between %s and %s; market movement in that period is unobserved.",
			dated[i-1].Date.Format(time.DateOnly), dated[i].Date.Format(time.DateOnly))
		reports = append(reports, r)
	}

	sortReports(reports)
	return reports
}

// Scan runs every detection pass and merges the findings into one sorted list.
func Scan(population []model.Transaction, cfg Config) []model.AnomalyReport {
	outliers := Detect(population, cfg)
	rapid := DetectRapidChanges(population, cfg)
	gaps := DetectDataGaps(population, cfg)

	all := make([]model.AnomalyReport, 0, len(outliers)+len(rapid)+len(gaps))
	all = append(all, outliers...)
	all = append(all, rapid...)
	all = append(all, gaps...)
	sortReports(all)

	zap.L().Info("anomaly: scan complete",
		zap.Int("population", len(population)),
		zap.Int("outliers", len(outliers)),
		zap.Int("rapid_changes", len(rapid)),
		zap.Int("data_gaps", len(gaps)),
	)
	return all
}

// Package anomaly flags statistically unusual transactions in a normalized
// population. It runs over raw transactions and never consumes valuation results.
package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/valuation"
)

// Metrics a detection pass can run over.
const (
	MetricPrice            = "price"
	MetricPricePerUnitArea = "price_per_unit_area"
)

// Config holds the detection thresholds.
type Config struct {
	Metric        string  `yaml:"metric" json:"metric"`
	MinPopulation int     `yaml:"min_population" json:"min_population"`
	ReportZ       float64 `yaml:"report_z" json:"report_z"`
	WarningZ      float64 `yaml:"warning_z" json:"warning_z"`
	CriticalZ     float64 `yaml:"critical_z" json:"critical_z"`

	RapidChangePercent    float64 `yaml:"rapid_change_percent" json:"rapid_change_percent"`
	RapidChangeWindowDays int     `yaml:"rapid_change_window_days" json:"rapid_change_window_days"`
	DataGapDays           int     `yaml:"data_gap_days" json:"data_gap_days"`
}

// DefaultConfig returns the baseline thresholds.
func DefaultConfig() Config {
	return Config{
		Metric:                MetricPrice,
		MinPopulation:         5,
		ReportZ:               1.8,
		WarningZ:              2.0,
		CriticalZ:             2.5,
		RapidChangePercent:    30,
		RapidChangeWindowDays: 365,
		DataGapDays:           180,
	}
}

// Validate checks the thresholds are ordered and the metric is known.
func (c Config) Validate() error {
	var errs []string
	if c.Metric != MetricPrice && c.Metric != MetricPricePerUnitArea {
		errs = append(errs, fmt.Sprintf("unknown metric %q", c.Metric))
	}
	if c.MinPopulation < 2 {
		errs = append(errs, "min_population must be >= 2")
	}
	if c.ReportZ <= 0 || c.ReportZ > c.WarningZ || c.WarningZ > c.CriticalZ {
		errs = append(errs, "z thresholds must satisfy 0 < report_z <= warning_z <= critical_z")
	}
	if c.RapidChangePercent <= 0 {
		errs = append(errs, "rapid_change_percent must be > 0")
	}
	if c.RapidChangeWindowDays <= 0 || c.DataGapDays <= 0 {
		errs = append(errs, "day windows must be > 0")
	}
	if len(errs) > 0 {
		return eris.Errorf("anomaly: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Detect runs the z-score pass. Populations smaller than MinPopulation, or
// with zero dispersion, yield no findings. The result is never nil.
func Detect(population []model.Transaction, cfg Config) []model.AnomalyReport {
	reports := []model.AnomalyReport{}
	if len(population) < cfg.MinPopulation || len(population) == 0 {
		return reports
	}

	values := make([]float64, len(population))
	for i, tx := range population {
		values[i] = metricValue(tx, cfg.Metric)
	}
	mean, sd := valuation.MeanStdDev(values)
	if sd == 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		return reports
	}

	for i, tx := range population {
		z := (values[i] - mean) / sd
		if math.Abs(z) < cfg.ReportZ {
			continue
		}
		r := newReport(tx, cfg.Metric, values[i])
		r.ZScore = z
		if mean != 0 {
			r.DeviationPercent = (values[i] - mean) / mean * 100
		}
		classify(&r, z, cfg)
		reports = append(reports, r)
	}

	sortReports(reports)
	zap.L().Debug("anomaly: z-score pass complete",
		zap.Int("population", len(population)),
		zap.Float64("mean", mean),
		zap.Float64("std_dev", sd),
		zap.Int("findings", len(reports)),
	)
	return reports
}

// classify sets type, classification and severity from z. Direction always
// lands in AnomalyType (outlier-high/outlier-low). Classification only reads
// above-market or below-market past CriticalZ; a row at exactly WarningZ,
// such as the 1000 in [100 100 100 100 1000] (z = 2.0 under the population
// deviation), stays a price-outlier of info severity.
func classify(r *model.AnomalyReport, z float64, cfg Config) {
	r.AnomalyType = model.AnomalyOutlierHigh
	if z < 0 {
		r.AnomalyType = model.AnomalyOutlierLow
	}

	switch {
	case z > cfg.CriticalZ:
		r.Classification = model.ClassAboveMarket
		r.Severity = model.SeverityCritical
		r.Recommendation = "Price far above market; verify the record or look for unlisted premium features."
	case z < -cfg.CriticalZ:
		r.Classification = model.ClassBelowMarket
		r.Severity = model.SeverityCritical
		r.Recommendation = "Price far below market; check for a non-arm's-length sale or a data entry error."
	default:
		r.Classification = model.ClassPriceOutlier
		r.Severity = model.SeverityInfo
		if math.Abs(z) > cfg.WarningZ {
			r.Severity = model.SeverityWarning
		}
		r.Recommendation = "Review before using as a comparable."
	}
}

func newReport(tx model.Transaction, metric string, value float64) model.AnomalyReport {
	return model.AnomalyReport{
		TransactionID: tx.ID,
		Address:       tx.Address(),
		City:          tx.City,
		Price:         tx.Price,
		Metric:        metric,
		Value:         value,
	}
}

func metricValue(tx model.Transaction, metric string) float64 {
	if metric == MetricPricePerUnitArea {
		if tx.PricePerUnitArea != 0 {
			return tx.PricePerUnitArea
		}
		if tx.Area > 0 {
			return tx.Price / tx.Area
		}
		return 0
	}
	return tx.Price
}

// sortReports orders by descending |deviation|, ties broken by transaction ID
// so output is stable across runs.
func sortReports(reports []model.AnomalyReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		di, dj := math.Abs(reports[i].DeviationPercent), math.Abs(reports[j].DeviationPercent)
		if di != dj {
			return di > dj
		}
		if reports[i].TransactionID != reports[j].TransactionID {
			return reports[i].TransactionID < reports[j].TransactionID
		}
		return reports[i].AnomalyType < reports[j].AnomalyType
	})
}

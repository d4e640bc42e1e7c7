package valuation

import (
	"context"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/comps-cli/internal/model"
)

// DefaultConcurrency bounds EvaluateBatch when the caller passes <= 0.
const DefaultConcurrency = 4

// Job is one subject to value within a batch. Params, when set, replaces the
// batch-wide parameters for this job only.
type Job struct {
	Label       string                `json:"label"`
	Subject     model.SubjectProperty `json:"subject"`
	Comparables []model.Transaction   `json:"comparables"`
	Params      *Params               `json:"-"`
	Options     Options               `json:"-"`
}

// BatchResult pairs a job with its outcome. Exactly one of Result and Err is set.
type BatchResult struct {
	Label  string
	Result *model.ValuationResult
	Err    error
}

// EvaluateBatch values every job concurrently and returns results in job
// order. A failing job records its error and does not abort the rest; only
// context cancellation stops the batch early.
func EvaluateBatch(ctx context.Context, jobs []Job, params Params, concurrency int) ([]BatchResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	log := zap.L().With(zap.Int("jobs", len(jobs)), zap.Int("concurrency", concurrency))

	results := make([]BatchResult, len(jobs))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := params
			if job.Params != nil {
				p = *job.Params
			}
			res, err := Evaluate(job.Subject, job.Comparables, p, job.Options)
			results[i] = BatchResult{Label: job.Label, Result: res, Err: err}
			if err != nil {
				failed.Add(1)
				log.Warn("valuation: job failed", zap.String("label", job.Label), zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, eris.Wrap(err, "valuation: batch")
	}

	log.Info("valuation: batch complete",
		zap.Int("succeeded", len(jobs)-int(failed.Load())),
		zap.Int64("failed", failed.Load()),
	)
	return results, nil
}

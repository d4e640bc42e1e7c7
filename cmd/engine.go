package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/comps-cli/internal/adjust"
	"github.com/sells-group/comps-cli/internal/model"
	"github.com/sells-group/comps-cli/internal/normalize"
	"github.com/sells-group/comps-cli/internal/profile"
	"github.com/sells-group/comps-cli/internal/records"
)

// loadProfiles returns the built-in profiles overlaid with engine.profile_path.
func loadProfiles() (profile.Set, error) {
	if cfg == nil || cfg.Engine.ProfilePath == "" {
		return profile.DefaultSet(), nil
	}
	set, err := profile.Load(cfg.Engine.ProfilePath)
	if err != nil {
		return nil, eris.Wrap(err, "load profiles")
	}
	return set, nil
}

// resolveCategory picks the profile name: explicit flag, then the subject's
// own category, then engine.default_category.
func resolveCategory(flag, subjectCategory string) string {
	if c := strings.TrimSpace(flag); c != "" {
		return c
	}
	if c := strings.TrimSpace(subjectCategory); c != "" {
		return c
	}
	if cfg != nil && cfg.Engine.DefaultCategory != "" {
		return cfg.Engine.DefaultCategory
	}
	return model.CategoryResidential
}

// parseAsOf parses a YYYY-MM-DD reference date. Empty yields the zero time.
func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "invalid --as-of %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// readTransactions reads a CSV, JSON or XLSX file and normalizes it.
func readTransactions(ctx context.Context, path string) (normalize.Result, error) {
	raw, err := records.ReadFile(ctx, path)
	if err != nil {
		return normalize.Result{}, err
	}
	res := normalize.Normalize(raw)
	zap.L().Info("transactions loaded",
		zap.String("path", path),
		zap.Int("rows", len(raw)),
		zap.Int("kept", len(res.Transactions)),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

// buildOverrides turns --disable values into factor overrides. A value is
// either a factor ID ("<comp-id>:<category>") or a bare category, which
// disables that category on every comparable.
func buildOverrides(disable []string, comps []model.Transaction) (map[string]bool, error) {
	if len(disable) == 0 {
		return nil, nil
	}
	overrides := make(map[string]bool)
	for _, d := range disable {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if strings.Contains(d, ":") {
			overrides[d] = false
			continue
		}
		cat := model.AdjustmentCategory(strings.ToLower(d))
		if !cat.Valid() {
			return nil, eris.Errorf("unknown adjustment category %q", d)
		}
		for _, c := range comps {
			overrides[adjust.FactorID(c.ID, cat)] = false
		}
	}
	return overrides, nil
}

// createOutput opens path for writing, or returns stdout for "" and "-".
func createOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "create %s", path)
	}
	return f, nil
}

// writeOutput runs write against the output for path and reports a failed
// close, so a file truncated on flush is not mistaken for a finished export.
func writeOutput(path string, write func(io.Writer) error) error {
	w, err := createOutput(path)
	if err != nil {
		return err
	}
	return eris.Wrapf(writeAndClose(w, write), "output %s", path)
}

func writeAndClose(w io.WriteCloser, write func(io.Writer) error) (err error) {
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = eris.Wrap(cerr, "close")
		}
	}()
	return write(w)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

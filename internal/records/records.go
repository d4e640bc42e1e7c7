package records

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/comps-cli/internal/model"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = eris.New("records: unsupported file format")

// ReadFile reads raw transaction records, choosing the reader by extension:
// .csv, .json, or .xlsx.
func ReadFile(ctx context.Context, path string) ([]model.RawRecord, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var (
		recs []model.RawRecord
		err  error
	)
	switch ext {
	case ".xlsx":
		recs, err = ReadXLSX(path, XLSXOptions{})
	case ".csv", ".json":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "records: open %s", path)
		}
		defer f.Close()
		if ext == ".csv" {
			recs, err = ReadCSV(ctx, f)
		} else {
			recs, err = ReadJSON(ctx, f)
		}
	default:
		return nil, eris.Wrapf(ErrUnsupportedFormat, "records: %s", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "records: read %s", path)
	}

	zap.L().Debug("records: read file",
		zap.String("path", path),
		zap.String("format", strings.TrimPrefix(ext, ".")),
		zap.Int("records", len(recs)),
	)
	return recs, nil
}

// ReadSubject reads one subject property from a JSON or YAML file. YAML dates
// may be bare YYYY-MM-DD; quoted and JSON dates must be RFC 3339.
func ReadSubject(path string) (model.SubjectProperty, error) {
	var s model.SubjectProperty
	if err := readYAML(path, &s); err != nil {
		return s, err
	}
	return s, nil
}

// LabeledSubject is one entry of a batch subjects file.
type LabeledSubject struct {
	Label   string                `yaml:"label" json:"label"`
	Subject model.SubjectProperty `yaml:"subject" json:"subject"`
}

// ReadSubjects reads a JSON or YAML list of labeled subjects. Entries without
// a label are labeled with their address.
func ReadSubjects(path string) ([]LabeledSubject, error) {
	var list []LabeledSubject
	if err := readYAML(path, &list); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Label == "" {
			list[i].Label = list[i].Subject.Address()
		}
	}
	return list, nil
}

// readYAML decodes JSON or YAML (JSON is a YAML subset), so both formats share
// the yaml tags of the target type.
func readYAML(path string, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return eris.Wrapf(ErrUnsupportedFormat, "records: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "records: read %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "records: parse %s", path)
	}
	return nil
}

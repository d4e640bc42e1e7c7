package records

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/comps-cli/internal/model"
)

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Expects input in the form [{...},{...}].
// Both channels are closed when processing completes.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)
		decoder.UseNumber()

		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return
			}
			errCh <- eris.Wrap(err, "records: read json opening token")
			return
		}

		delim, ok := tok.(json.Delim)
		if !ok || delim != '[' {
			errCh <- eris.Errorf("records: expected '[', got %v", tok)
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "records: json context cancelled")
				return
			}

			var item T
			if err := decoder.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "records: decode json element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "records: json context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "records: read json closing token")
		}
	}()

	return outCh, errCh
}

// ReadJSON reads a JSON array of objects into raw records. Numbers are kept
// as json.Number so no precision is lost before normalization.
func ReadJSON(ctx context.Context, r io.Reader) ([]model.RawRecord, error) {
	outCh, errCh := DecodeJSONArray[model.RawRecord](ctx, r)

	var out []model.RawRecord
	for rec := range outCh {
		if rec != nil {
			out = append(out, rec)
		}
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

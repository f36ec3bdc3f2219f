package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// LoadCSV reads a labelled dataset from a CSV file with a header row:
//
//	label,x0,x1,...,xn
//	3,0.12,-1.5,...,0.7
//
// Every row must have the same width. NumClasses is one more than the
// largest label.
func LoadCSV(path string) (*Dataset, error) {
	//nolint:gosec // G304: path is chosen by the caller
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dataset")
	}
	defer func() { _ = file.Close() }()

	ds, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return ds, nil
}

// ReadCSV reads a labelled dataset in LoadCSV's format from r.
func ReadCSV(r io.Reader) (*Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse CSV")
	}
	if len(records) < 2 {
		return nil, errors.New("CSV file is empty or missing header")
	}

	header, records := records[0], records[1:]
	dim := len(header) - 1
	if dim < 1 {
		return nil, errors.Errorf("header has %d columns, need a label and at least one feature", len(header))
	}

	ds := &Dataset{
		Inputs: make([][]float32, len(records)),
		Labels: make([]int32, len(records)),
	}
	for i, record := range records {
		row := i + 2 // 1-based, after the header
		if len(record) != dim+1 {
			return nil, errors.Errorf("row %d: got %d columns, want %d", row, len(record), dim+1)
		}

		label, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, errors.Wrapf(err, "row %d: invalid label", row)
		}
		if label < 0 {
			return nil, errors.Errorf("row %d: negative label %d", row, label)
		}
		ds.Labels[i] = int32(label)

		ds.Inputs[i] = make([]float32, dim)
		for j, field := range record[1:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column %d: invalid value", row, j+2)
			}
			ds.Inputs[i][j] = float32(v)
		}
	}

	ds.NumClasses = int(lo.Max(ds.Labels)) + 1
	return ds, nil
}

// Package dataset reads and writes the semicolon-delimited bank marketing
// training file and can generate synthetic data with the same layout.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"term-deposit/internal/common"
	"term-deposit/internal/features"

	"github.com/rs/zerolog/log"
)

// Dataset is a labelled training table. Labels are 1 for "yes", 0 for "no".
type Dataset struct {
	Rows   []features.RawRecord
	Labels []int
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Rows) }

// Positives counts rows labelled 1.
func (d *Dataset) Positives() int {
	n := 0
	for _, y := range d.Labels {
		n += y
	}
	return n
}

// LoadCSV loads a training file. Numeric schema columns are parsed to float64;
// any malformed row fails the load with its line number.
func LoadCSV(filePath string, schema features.Schema) (*Dataset, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	ds, err := ReadCSV(file, schema)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	log.Info().
		Str("file", filePath).
		Int("rows", ds.Len()).
		Int("positives", ds.Positives()).
		Msg("Dataset loaded")

	return ds, nil
}

// ReadCSV parses a training table from r.
func ReadCSV(r io.Reader, schema features.Schema) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.Comma = common.DatasetDelimiter
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[col] = i
	}

	required := append(schema.Columns(), common.TargetColumn)
	var missing []string
	for _, col := range required {
		if _, ok := indices[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &features.SchemaMismatchError{Missing: missing}
	}

	columns := schema.Columns()
	groups := make([]features.Group, len(columns))
	for i, col := range columns {
		groups[i], _ = schema.GroupOf(col)
	}

	ds := &Dataset{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		line, _ := reader.FieldPos(0)

		row := make(features.RawRecord, len(columns))
		for i, col := range columns {
			raw := record[indices[col]]
			if groups[i] != features.GroupNumeric {
				row[col] = raw
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line,
					&features.EncodingError{Column: col, Value: raw, Reason: "not a number"})
			}
			row[col] = v
		}

		var label int
		switch target := record[indices[common.TargetColumn]]; target {
		case common.PositiveLabel:
			label = 1
		case common.NegativeLabel:
			label = 0
		default:
			return nil, fmt.Errorf("line %d: target %q must be %q or %q",
				line, target, common.PositiveLabel, common.NegativeLabel)
		}

		ds.Rows = append(ds.Rows, row)
		ds.Labels = append(ds.Labels, label)
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("dataset has no rows")
	}
	return ds, nil
}

// WriteCSV writes the dataset in the training file layout.
func WriteCSV(w io.Writer, ds *Dataset, schema features.Schema) error {
	writer := csv.NewWriter(w)
	writer.Comma = common.DatasetDelimiter

	columns := schema.Columns()
	if err := writer.Write(append(columns, common.TargetColumn)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(columns)+1)
	for i, row := range ds.Rows {
		for j, col := range columns {
			switch v := row[col].(type) {
			case float64:
				record[j] = strconv.FormatFloat(v, 'f', -1, 64)
			case string:
				record[j] = v
			default:
				record[j] = fmt.Sprint(v)
			}
		}
		record[len(columns)] = common.NegativeLabel
		if ds.Labels[i] == 1 {
			record[len(columns)] = common.PositiveLabel
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

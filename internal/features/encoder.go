package features

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// encoderFormatVersion is bumped whenever the persisted encoder layout changes.
const encoderFormatVersion = 1

// Binary taxonomy values.
const (
	BinaryYes = "yes"
	BinaryNo  = "no"
)

// RawRecord maps an attribute name to its raw value (a number or a string).
type RawRecord map[string]any

// Frame is a table of encoded rows. Its column set and order are fixed by the
// encoder that produced it.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// Encoder is a fitted feature transformation. Numeric columns are standard
// scaled with statistics taken from the fitting rows, categorical columns are
// one-hot encoded against the categories seen while fitting and binary columns
// go through the yes/no taxonomy. Output column order is numeric, categorical
// indicators, then binary passthrough columns.
//
// An Encoder never changes after Fit; Transform is safe for concurrent use.
type Encoder struct {
	schema     Schema
	means      []float64
	stds       []float64
	categories [][]string
	columns    []string
}

// Fit computes the encoding statistics from training rows.
func Fit(rows []RawRecord, schema Schema) (*Encoder, error) {
	if schema.IsZero() {
		return nil, fmt.Errorf("encoder requires a schema")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("encoder requires at least one training row")
	}
	for i, r := range rows {
		if err := checkColumns(r, schema); err != nil {
			return nil, fmt.Errorf("training row %d: %w", i, err)
		}
	}

	numeric := schema.Numeric()
	e := &Encoder{
		schema:     schema,
		means:      make([]float64, len(numeric)),
		stds:       make([]float64, len(numeric)),
		categories: make([][]string, 0, len(schema.categorical)),
	}

	values := make([]float64, len(rows))
	for j, col := range numeric {
		for i, r := range rows {
			v, err := numericValue(col, r[col])
			if err != nil {
				return nil, fmt.Errorf("training row %d: %w", i, err)
			}
			values[i] = v
		}
		mean, std := stat.PopMeanStdDev(values, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		e.means[j] = mean
		e.stds[j] = std
	}

	for _, col := range schema.categorical {
		seen := make(map[string]struct{})
		for i, r := range rows {
			c, err := categoryValue(col, r[col])
			if err != nil {
				return nil, fmt.Errorf("training row %d: %w", i, err)
			}
			seen[c] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		e.categories = append(e.categories, cats)
	}

	for _, col := range schema.binary {
		for i, r := range rows {
			if _, err := binaryValue(col, r[col]); err != nil {
				return nil, fmt.Errorf("training row %d: %w", i, err)
			}
		}
	}

	e.columns = e.buildColumns()
	return e, nil
}

func (e *Encoder) buildColumns() []string {
	cols := make([]string, 0, len(e.means)+len(e.schema.binary))
	for _, col := range e.schema.numeric {
		cols = append(cols, "num__"+col)
	}
	for i, col := range e.schema.categorical {
		for _, c := range e.categories[i] {
			cols = append(cols, "cat__"+col+"_"+c)
		}
	}
	for _, col := range e.schema.binary {
		cols = append(cols, "remainder__"+col)
	}
	return cols
}

// Schema returns the schema the encoder was fit against.
func (e *Encoder) Schema() Schema { return e.schema }

// Columns returns the encoded column names in output order.
func (e *Encoder) Columns() []string { return slices.Clone(e.columns) }

// Width is the number of encoded columns.
func (e *Encoder) Width() int { return len(e.columns) }

// Categories returns the categories learned for a categorical column.
func (e *Encoder) Categories(column string) []string {
	i := slices.Index(e.schema.categorical, column)
	if i < 0 {
		return nil
	}
	return slices.Clone(e.categories[i])
}

// Transform encodes every row. It fails on the first row that cannot be encoded.
func (e *Encoder) Transform(rows []RawRecord) (Frame, error) {
	out := Frame{
		Columns: e.Columns(),
		Rows:    make([][]float64, len(rows)),
	}
	for i, r := range rows {
		enc, err := e.TransformRecord(r)
		if err != nil {
			return Frame{}, fmt.Errorf("row %d: %w", i, err)
		}
		out.Rows[i] = enc
	}
	return out, nil
}

// TransformRecord encodes a single record.
func (e *Encoder) TransformRecord(r RawRecord) ([]float64, error) {
	if err := checkColumns(r, e.schema); err != nil {
		return nil, err
	}

	row := make([]float64, 0, len(e.columns))
	for j, col := range e.schema.numeric {
		v, err := numericValue(col, r[col])
		if err != nil {
			return nil, err
		}
		row = append(row, (v-e.means[j])/e.stds[j])
	}

	for i, col := range e.schema.categorical {
		c, err := categoryValue(col, r[col])
		if err != nil {
			return nil, err
		}
		cats := e.categories[i]
		block := make([]float64, len(cats))
		// Unseen categories leave the whole block at zero.
		if k, found := slices.BinarySearch(cats, c); found {
			block[k] = 1
		}
		row = append(row, block...)
	}

	for _, col := range e.schema.binary {
		v, err := binaryValue(col, r[col])
		if err != nil {
			return nil, err
		}
		row = append(row, v)
	}
	return row, nil
}

func checkColumns(r RawRecord, schema Schema) error {
	var missing []string
	for _, col := range schema.columns {
		if _, ok := r[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &SchemaMismatchError{Missing: missing}
	}
	return nil
}

func numericValue(col string, v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, &EncodingError{Column: col, Value: v, Reason: "not a number"}
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, &EncodingError{Column: col, Value: v, Reason: "not a number"}
		}
		f = parsed
	default:
		return 0, &EncodingError{Column: col, Value: v, Reason: "not a number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &EncodingError{Column: col, Value: v, Reason: "not a finite number"}
	}
	return f, nil
}

func categoryValue(col string, v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", &EncodingError{Column: col, Value: v, Reason: "null category"}
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	default:
		return fmt.Sprint(x), nil
	}
}

func binaryValue(col string, v any) (float64, error) {
	s, ok := v.(string)
	if ok {
		switch s {
		case BinaryYes:
			return 1, nil
		case BinaryNo:
			return 0, nil
		}
	}
	return 0, &EncodingError{Column: col, Value: v, Reason: `expected "yes" or "no"`}
}

type encoderDocument struct {
	FormatVersion int            `json:"format_version"`
	Schema        SchemaDocument `json:"schema"`
	Means         []float64      `json:"means"`
	Stds          []float64      `json:"stds"`
	Categories    [][]string     `json:"categories"`
}

// MarshalJSON persists the fitted state.
func (e *Encoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(encoderDocument{
		FormatVersion: encoderFormatVersion,
		Schema:        e.schema.Document(),
		Means:         e.means,
		Stds:          e.stds,
		Categories:    e.categories,
	})
}

// UnmarshalJSON restores a fitted encoder, rejecting inconsistent state.
func (e *Encoder) UnmarshalJSON(data []byte) error {
	var doc encoderDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if doc.FormatVersion != encoderFormatVersion {
		return fmt.Errorf("unsupported encoder format version %d", doc.FormatVersion)
	}
	schema, err := doc.Schema.Schema()
	if err != nil {
		return fmt.Errorf("encoder schema: %w", err)
	}
	if len(doc.Means) != len(schema.numeric) || len(doc.Stds) != len(schema.numeric) {
		return fmt.Errorf("encoder has %d/%d scaling statistics for %d numeric features",
			len(doc.Means), len(doc.Stds), len(schema.numeric))
	}
	for i, s := range doc.Stds {
		if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("encoder std for %q is invalid: %v", schema.numeric[i], s)
		}
	}
	if len(doc.Categories) != len(schema.categorical) {
		return fmt.Errorf("encoder has %d category lists for %d categorical features",
			len(doc.Categories), len(schema.categorical))
	}
	for i, cats := range doc.Categories {
		for j := 1; j < len(cats); j++ {
			if cats[j-1] >= cats[j] {
				return fmt.Errorf("categories for %q are not strictly increasing at %q", schema.categorical[i], cats[j])
			}
		}
	}

	*e = Encoder{
		schema:     schema,
		means:      doc.Means,
		stds:       doc.Stds,
		categories: doc.Categories,
	}
	e.columns = e.buildColumns()
	return nil
}

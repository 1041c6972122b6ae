// Package features holds the feature contract shared by training and serving:
// the ordered input schema, the fitted encoder that turns raw customer records
// into numeric rows, and the class imbalance ratio derived from the labels.
package features

import (
	"fmt"
	"slices"
)

// Group identifies how a schema column is encoded.
type Group string

const (
	GroupNumeric     Group = "numeric"
	GroupCategorical Group = "categorical"
	GroupBinary      Group = "binary"
)

// Schema is the ordered list of expected input columns together with the
// encoding group of every column. A Schema is immutable: accessors return copies.
type Schema struct {
	columns     []string
	numeric     []string
	categorical []string
	binary      []string
}

// NewSchema builds a schema. Every column must belong to exactly one group and
// every group member must be listed in columns.
func NewSchema(columns, numeric, categorical, binary []string) (Schema, error) {
	s := Schema{
		columns:     slices.Clone(columns),
		numeric:     slices.Clone(numeric),
		categorical: slices.Clone(categorical),
		binary:      slices.Clone(binary),
	}
	if err := s.validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}

// BankMarketingSchema returns the schema of the 16 customer attributes used to
// predict term deposit subscription.
func BankMarketingSchema() Schema {
	s, err := NewSchema(
		[]string{
			"age", "job", "marital", "education", "default", "balance", "housing", "loan",
			"contact", "day", "month", "duration", "campaign", "pdays", "previous", "poutcome",
		},
		[]string{"age", "balance", "day", "duration", "campaign", "pdays", "previous"},
		[]string{"job", "marital", "education", "contact", "month", "poutcome"},
		[]string{"default", "housing", "loan"},
	)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Schema) validate() error {
	if len(s.columns) == 0 {
		return fmt.Errorf("schema has no columns")
	}

	position := make(map[string]int, len(s.columns))
	for i, c := range s.columns {
		if c == "" {
			return fmt.Errorf("schema column %d has an empty name", i)
		}
		if _, dup := position[c]; dup {
			return fmt.Errorf("duplicate schema column %q", c)
		}
		position[c] = i
	}

	assigned := make(map[string]Group, len(s.columns))
	for _, g := range []struct {
		group Group
		names []string
	}{
		{GroupNumeric, s.numeric},
		{GroupCategorical, s.categorical},
		{GroupBinary, s.binary},
	} {
		for _, name := range g.names {
			if _, ok := position[name]; !ok {
				return fmt.Errorf("%s feature %q is not a schema column", g.group, name)
			}
			if prev, ok := assigned[name]; ok {
				return fmt.Errorf("feature %q is both %s and %s", name, prev, g.group)
			}
			assigned[name] = g.group
		}
	}

	for _, c := range s.columns {
		if _, ok := assigned[c]; !ok {
			return fmt.Errorf("schema column %q has no feature group", c)
		}
	}
	return nil
}

// Columns returns the ordered input columns.
func (s Schema) Columns() []string { return slices.Clone(s.columns) }

// Numeric returns the columns that are standard-scaled.
func (s Schema) Numeric() []string { return slices.Clone(s.numeric) }

// Categorical returns the columns that are one-hot encoded.
func (s Schema) Categorical() []string { return slices.Clone(s.categorical) }

// Binary returns the columns mapped through the yes/no taxonomy.
func (s Schema) Binary() []string { return slices.Clone(s.binary) }

// GroupOf reports the encoding group of a column.
func (s Schema) GroupOf(column string) (Group, bool) {
	switch {
	case slices.Contains(s.numeric, column):
		return GroupNumeric, true
	case slices.Contains(s.categorical, column):
		return GroupCategorical, true
	case slices.Contains(s.binary, column):
		return GroupBinary, true
	}
	return "", false
}

// Equal reports whether both schemas have identical membership and order.
func (s Schema) Equal(o Schema) bool {
	return slices.Equal(s.columns, o.columns) &&
		slices.Equal(s.numeric, o.numeric) &&
		slices.Equal(s.categorical, o.categorical) &&
		slices.Equal(s.binary, o.binary)
}

// IsZero reports whether the schema was never constructed.
func (s Schema) IsZero() bool { return len(s.columns) == 0 }

// SchemaDocument is the persisted form of a schema.
type SchemaDocument struct {
	Columns     []string `json:"columns"`
	Numeric     []string `json:"numeric"`
	Categorical []string `json:"categorical"`
	Binary      []string `json:"binary,omitempty"`
}

// Document returns the persisted form of the schema.
func (s Schema) Document() SchemaDocument {
	return SchemaDocument{
		Columns:     s.Columns(),
		Numeric:     s.Numeric(),
		Categorical: s.Categorical(),
		Binary:      s.Binary(),
	}
}

// Schema validates the document and builds the schema it describes.
func (d SchemaDocument) Schema() (Schema, error) {
	return NewSchema(d.Columns, d.Numeric, d.Categorical, d.Binary)
}

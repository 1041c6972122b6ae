package features

import "fmt"

// EncodingError reports a raw value that cannot be mapped for its feature.
// Unknown categories are not encoding errors; they encode to an all-zero block.
type EncodingError struct {
	Column string
	Value  any
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode %q value %v: %s", e.Column, e.Value, e.Reason)
}

// SchemaMismatchError reports a record that lacks required schema columns.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("record is missing schema columns %v", e.Missing)
}

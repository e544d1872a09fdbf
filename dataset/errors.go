package dataset

import "fmt"

// DataQualityError reports an unfillable column or degenerate statistics.
type DataQualityError struct {
	Column string
	Reason string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: column %q: %s", e.Column, e.Reason)
}

// ParseError reports a value that could not be parsed.
type ParseError struct {
	Column string
	Row    int
	Raw    string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse: column %q row %d value %q: %v", e.Column, e.Row, e.Raw, e.Err)
	}
	return fmt.Sprintf("parse: column %q row %d value %q", e.Column, e.Row, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// BinningError reports a value outside the configured bin edges.
type BinningError struct {
	Column string
	Row    int
	Value  float64
	Low    float64
	High   float64
}

func (e *BinningError) Error() string {
	return fmt.Sprintf("binning: column %q row %d value %g outside [%g, %g]", e.Column, e.Row, e.Value, e.Low, e.High)
}

// SchemaError reports an absent or mistyped column.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: column %q: %s", e.Column, e.Reason)
}

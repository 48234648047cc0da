package dataset

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/emissionslake/lake/etl/pkg/table"
)

type ColumnType string

const (
	TypeInt64   ColumnType = "Nullable(Int64)"
	TypeFloat64 ColumnType = "Nullable(Float64)"
	TypeString  ColumnType = "Nullable(String)"
)

// Column is a warehouse column of a table loaded from CSV text.
type Column struct {
	Name string
	Type ColumnType
}

var (
	integerPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)$`)
	decimalPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][-+]?[0-9]+)?$`)
)

// InferColumns picks the narrowest type that holds every present value of each column:
// Int64, then Float64, then String. Codes with leading zeros such as "01" stay strings.
// Columns with no present values are strings.
func InferColumns(t *table.Table) []Column {
	cols := make([]Column, len(t.Columns))
	for j, name := range t.Columns {
		isInt, isFloat, seen := true, true, false
		for _, r := range t.Rows {
			c := r[j]
			if !c.Valid {
				continue
			}
			seen = true
			if isInt && !integerPattern.MatchString(c.Value) {
				isInt = false
			}
			if isInt {
				if _, err := strconv.ParseInt(c.Value, 10, 64); err != nil {
					isInt = false
				}
			}
			if !isInt && !decimalPattern.MatchString(c.Value) {
				isFloat = false
				break
			}
		}
		typ := TypeString
		switch {
		case !seen:
		case isInt:
			typ = TypeInt64
		case isFloat:
			typ = TypeFloat64
		}
		cols[j] = Column{Name: name, Type: typ}
	}
	return cols
}

// Value converts a cell to the Go value the driver appends for the column type.
// Null cells become typed nil pointers.
func (c Column) Value(cell table.Cell) (any, error) {
	switch c.Type {
	case TypeInt64:
		if !cell.Valid {
			return (*int64)(nil), nil
		}
		v, err := strconv.ParseInt(cell.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return &v, nil
	case TypeFloat64:
		if !cell.Valid {
			return (*float64)(nil), nil
		}
		v, err := strconv.ParseFloat(cell.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return &v, nil
	default:
		if !cell.Valid {
			return (*string)(nil), nil
		}
		v := cell.Value
		return &v, nil
	}
}

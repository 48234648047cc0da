package curation

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/emissionslake/lake/etl/pkg/table"
)

// NumericKind is the declared target type of a numeric coercion.
type NumericKind int

const (
	Integer NumericKind = iota + 1
	Float
)

func (k NumericKind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return fmt.Sprintf("NumericKind(%d)", int(k))
	}
}

var errNotFinite = errors.New("value is not finite")
var errNotIntegral = errors.New("value is not integral")

// Parser normalizes a textual value into the canonical text of a typed value.
type Parser func(string) (string, error)

// ParseFloat accepts any finite decimal and renders it in shortest round-trip form.
func ParseFloat(s string) (string, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return "", err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errNotFinite
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// ParseInteger accepts integers and integral decimals ("2019.0").
func ParseInteger(s string) (string, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errNotFinite
	}
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return "", errNotIntegral
	}
	return strconv.FormatInt(int64(f), 10), nil
}

// ParseOrNull turns a parser into a cell transform where a failed parse yields a
// null cell. Errors are never propagated: a bad cell must not fail its file.
func ParseOrNull(parse Parser) func(table.Cell) table.Cell {
	return func(c table.Cell) table.Cell {
		if c.IsNull() {
			return c
		}
		v, err := parse(c.Value)
		if err != nil {
			return table.Null()
		}
		return table.String(v)
	}
}

func (k NumericKind) parser() Parser {
	if k == Integer {
		return ParseInteger
	}
	return ParseFloat
}

// Coercion converts a column to a numeric kind.
type Coercion struct {
	Column string
	Kind   NumericKind
}

// Apply coerces the column in place and returns how many present cells became null.
func (c Coercion) Apply(t *table.Table) int {
	fn := ParseOrNull(c.Kind.parser())
	nulled := 0
	t.Map(c.Column, func(in table.Cell) table.Cell {
		out := fn(in)
		if in.Valid && !out.Valid {
			nulled++
		}
		return out
	})
	return nulled
}

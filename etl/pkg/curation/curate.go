package curation

import (
	"errors"
	"fmt"
	"io"

	"github.com/emissionslake/lake/etl/pkg/table"
)

var ErrNoRule = errors.New("no curation rule")

// Result is a curated table and what curation removed or nulled to produce it.
type Result struct {
	Table *table.Table

	RowsIn         int
	Filtered       int
	EmptyDropped   int
	NullKeyDropped int
	Duplicates     int
	CoercionNulls  int
}

func (r *Result) RowsOut() int {
	return r.Table.Len()
}

// Apply curates raw in place according to the rule and returns the result.
//
// The steps run in a fixed order: source filters on raw text, fully-empty rows,
// required keys, numeric coercion, then set deduplication. Required keys are checked
// again after coercion so that a key that failed to parse cannot survive as null.
func (rule Rule) Apply(raw *table.Table) *Result {
	res := &Result{Table: raw, RowsIn: raw.Len()}

	for _, f := range rule.SourceFilters {
		res.Filtered += f.Apply(raw)
	}

	if rule.DropFullyEmpty {
		before := raw.Len()
		raw.DropEmptyRows()
		res.EmptyDropped = before - raw.Len()
	}

	res.NullKeyDropped += rule.dropNullKeys(raw)

	for _, c := range rule.NumericCoercions {
		res.CoercionNulls += c.Apply(raw)
	}
	res.NullKeyDropped += rule.dropNullKeys(raw)

	res.Duplicates = raw.Dedup()
	return res
}

func (rule Rule) dropNullKeys(t *table.Table) int {
	before := t.Len()
	for _, col := range rule.RequiredNonNull {
		t.DropNulls(col)
	}
	return before - t.Len()
}

// Engine curates raw source files using a rule registry.
type Engine struct {
	rules *Registry
}

func NewEngine(rules *Registry) *Engine {
	if rules == nil {
		rules = DefaultRegistry()
	}
	return &Engine{rules: rules}
}

func (e *Engine) Registry() *Registry {
	return e.rules
}

// Curate cleans an already-parsed raw table for the given source.
func (e *Engine) Curate(raw *table.Table, family, sourceID string) (*Result, error) {
	rule, err := e.rules.Lookup(family, sourceID)
	if err != nil {
		return nil, err
	}
	return rule.Apply(raw), nil
}

// CurateCSV parses a raw file with its source's dialect and curates it.
// Parse failures are file-level: the file yields no output.
func (e *Engine) CurateCSV(r io.Reader, family, sourceID string) (*Result, error) {
	rule, err := e.rules.Lookup(family, sourceID)
	if err != nil {
		return nil, err
	}
	raw, err := table.ReadCSV(r, rule.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", sourceID, err)
	}
	return rule.Apply(raw), nil
}

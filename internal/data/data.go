// Package data holds the immutable time series and tables a run is evaluated
// against. Loading them from files is the caller's concern; the planner only
// needs whole-array access by name.
package data

import (
	"sort"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// Provider exposes named series and tables of a declared length.
type Provider interface {
	// Series returns the time series for name. Callers must not modify it.
	Series(name string) ([]float64, error)
	// Table returns a row-major table for name. Callers must not modify it.
	Table(name string) ([][]float64, error)
	// Length is the number of timesteps in every series.
	Length() int
	// Has reports whether a series or table is available under name.
	Has(name string) bool
}

// Static is an in-memory Provider.
type Static struct {
	length int
	series map[string][]float64
	tables map[string][][]float64
}

// NewStatic builds a provider and checks that every series has tsLength
// entries.
func NewStatic(tsLength int, series map[string][]float64, tables map[string][][]float64) (*Static, error) {
	const op = "data.NewStatic"
	if tsLength <= 0 {
		return nil, apperrors.Config(op, "data length must be positive, got %d", tsLength)
	}

	s := &Static{
		length: tsLength,
		series: make(map[string][]float64, len(series)),
		tables: make(map[string][][]float64, len(tables)),
	}
	for name, values := range series {
		if len(values) != tsLength {
			return nil, apperrors.Config(op, "series %s has length %d, expected %d", name, len(values), tsLength)
		}
		s.series[name] = append([]float64(nil), values...)
	}
	for name, rows := range tables {
		copied := make([][]float64, len(rows))
		for i, row := range rows {
			copied[i] = append([]float64(nil), row...)
		}
		s.tables[name] = copied
	}
	return s, nil
}

// Series implements Provider.
func (s *Static) Series(name string) ([]float64, error) {
	v, ok := s.series[name]
	if !ok {
		return nil, apperrors.Config("data.Series", "series %s not provided (have %v)", name, s.names())
	}
	return v, nil
}

// Table implements Provider.
func (s *Static) Table(name string) ([][]float64, error) {
	v, ok := s.tables[name]
	if !ok {
		return nil, apperrors.Config("data.Table", "table %s not provided", name)
	}
	return v, nil
}

// Length implements Provider.
func (s *Static) Length() int {
	return s.length
}

// Has implements Provider.
func (s *Static) Has(name string) bool {
	_, series := s.series[name]
	_, table := s.tables[name]
	return series || table
}

func (s *Static) names() []string {
	names := make([]string, 0, len(s.series))
	for k := range s.series {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Column extracts column c of a row-major table as a series.
func Column(table [][]float64, c int) ([]float64, error) {
	out := make([]float64, len(table))
	for i, row := range table {
		if c < 0 || c >= len(row) {
			return nil, apperrors.Config("data.Column", "column %d out of range for row %d of width %d", c, i, len(row))
		}
		out[i] = row[c]
	}
	return out, nil
}

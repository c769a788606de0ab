// Package generator defines the capability set every dispatchable component
// of a plan provides, and the built-in models: variable renewables, thermal
// plant, missed supply and demand.
package generator

import (
	"sort"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// Generator is one entry in the dispatch order. Implementations must be safe
// for concurrent use once SetData has returned: all per-evaluation state
// lives in the *capacity.State handed to CalculateTimePeriod.
type Generator interface {
	// Name is the scenario section the generator was built from.
	Name() string
	// ParamCount is the number of gene positions used per period.
	ParamCount() int
	// ParamStarts returns per-parameter bounds for the initial population,
	// or nils to use the global bounds.
	ParamStarts() (min, max []int)
	// DataTypes lists the series and tables SetData needs.
	DataTypes() []string
	SetData(p data.Provider) error
	// StartingState returns an independent copy of the pre-run state.
	StartingState() *capacity.State
	// CalculateTimePeriod advances s through period. supplyRequest is the
	// residual demand before this generator and is not modified; it may be
	// negative.
	CalculateTimePeriod(s *capacity.State, period int, params []int, supplyRequest []float64, full bool) (*capacity.PeriodResult, error)
	// TerminalValue is the residual value of s after finalPeriod.
	TerminalValue(finalPeriod int, s *capacity.State) (float64, map[int]float64)
	Details() Details
}

// Details describes a generator for reports.
type Details struct {
	Section      string `json:"section"`
	Model        string `json:"model"`
	Dispatchable bool   `json:"dispatchable"`
	Technology   string `json:"technology,omitempty"`
}

// Model is a registered generator implementation.
type Model struct {
	Name string
	// NewConfig returns a pointer to a zero configuration to decode into.
	NewConfig func() interface{}
	// Build constructs the generator from a decoded configuration.
	Build func(section string, cfg interface{}) (Generator, error)
}

var models = map[string]Model{}

// Register adds a model. It panics on duplicates, so call it from init.
func Register(m Model) {
	if _, dup := models[m.Name]; dup {
		panic("generator: model registered twice: " + m.Name)
	}
	models[m.Name] = m
}

// Lookup returns the model registered under name.
func Lookup(section, name string) (Model, error) {
	m, ok := models[name]
	if !ok {
		return Model{}, apperrors.ClassType("generator.Lookup",
			"In section %s, model %q is not a known generator (have %v)", section, name, Models())
	}
	return m, nil
}

// Models lists the registered model names.
func Models() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func configType(section, model string, want, got interface{}) error {
	return apperrors.ClassType("generator.Build",
		"In section %s, model %s expects configuration %T, got %T", section, model, want, got)
}

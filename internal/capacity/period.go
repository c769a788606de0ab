package capacity

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Number is the set of types a per-period parameter may hold.
type Number interface {
	~int | ~float64
}

// PeriodValue is a parameter that is either a single value or a schedule
// keyed by period. The value in force for a period is the entry with the
// greatest key not after it; periods before the first key use the first
// entry.
type PeriodValue[T Number] struct {
	scalar   T
	set      bool
	byPeriod map[int]T
	keys     []int
}

// Scalar returns a value that is the same in every period.
func Scalar[T Number](v T) PeriodValue[T] {
	return PeriodValue[T]{scalar: v, set: true}
}

// Schedule returns a value that changes at the given periods.
func Schedule[T Number](m map[int]T) PeriodValue[T] {
	p := PeriodValue[T]{byPeriod: make(map[int]T, len(m)), set: len(m) > 0}
	for k, v := range m {
		p.byPeriod[k] = v
		p.keys = append(p.keys, k)
	}
	sort.Ints(p.keys)
	return p
}

// IsSet reports whether a value was supplied.
func (p PeriodValue[T]) IsSet() bool {
	return p.set
}

// At returns the value in force for period.
func (p PeriodValue[T]) At(period int) T {
	if len(p.keys) == 0 {
		return p.scalar
	}
	i := sort.SearchInts(p.keys, period+1) - 1
	if i < 0 {
		i = 0
	}
	return p.byPeriod[p.keys[i]]
}

// Values returns every distinct configured value, in period order.
func (p PeriodValue[T]) Values() []T {
	if len(p.keys) == 0 {
		if !p.set {
			return nil
		}
		return []T{p.scalar}
	}
	out := make([]T, len(p.keys))
	for i, k := range p.keys {
		out[i] = p.byPeriod[k]
	}
	return out
}

// OrDefault returns p if set, otherwise a scalar holding def.
func (p PeriodValue[T]) OrDefault(def T) PeriodValue[T] {
	if p.set {
		return p
	}
	return Scalar(def)
}

// UnmarshalYAML accepts either a scalar or a {period: value} mapping.
func (p *PeriodValue[T]) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v T
		if err := node.Decode(&v); err != nil {
			return err
		}
		*p = Scalar(v)
		return nil
	case yaml.MappingNode:
		var m map[int]T
		if err := node.Decode(&m); err != nil {
			return err
		}
		*p = Schedule(m)
		return nil
	default:
		return fmt.Errorf("line %d: expected a value or a {period: value} map", node.Line)
	}
}

// MarshalYAML writes the scalar or the schedule back out.
func (p PeriodValue[T]) MarshalYAML() (interface{}, error) {
	if len(p.keys) == 0 {
		return p.scalar, nil
	}
	return p.byPeriod, nil
}

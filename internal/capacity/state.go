package capacity

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Ledger records the capacity installed at one site. The three slices always
// have the same length; entry i was built in Build[i] and is retired at the
// end of Decommission[i].
type Ledger struct {
	Capacity     []float64
	Build        []int
	Decommission []int
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.Capacity)
}

// Total returns the installed capacity at the site.
func (l *Ledger) Total() float64 {
	return floats.Sum(l.Capacity)
}

func (l *Ledger) add(capacity float64, build, decommission int) {
	l.Capacity = append(l.Capacity, capacity)
	l.Build = append(l.Build, build)
	l.Decommission = append(l.Decommission, decommission)
}

// builtIn returns the indices of entries built in period.
func (l *Ledger) builtIn(period int) []int {
	var idx []int
	for i, b := range l.Build {
		if b == period {
			idx = append(idx, i)
		}
	}
	return idx
}

// retire removes every entry decommissioned at period and returns the
// capacity removed.
func (l *Ledger) retire(period int) (removed float64, count int) {
	keep := 0
	for i := range l.Capacity {
		if l.Decommission[i] == period {
			removed += l.Capacity[i]
			count++
			continue
		}
		l.Capacity[keep] = l.Capacity[i]
		l.Build[keep] = l.Build[i]
		l.Decommission[keep] = l.Decommission[i]
		keep++
	}
	l.Capacity = l.Capacity[:keep]
	l.Build = l.Build[:keep]
	l.Decommission = l.Decommission[:keep]
	return removed, count
}

func (l *Ledger) clone() *Ledger {
	return &Ledger{
		Capacity:     append([]float64(nil), l.Capacity...),
		Build:        append([]int(nil), l.Build...),
		Decommission: append([]int(nil), l.Decommission...),
	}
}

// State is the per-evaluation snapshot of one generator: the period last
// simulated and the ledger of every site with capacity. A starting state
// has no period.
type State struct {
	Period    int
	HasPeriod bool
	Sites     map[int]*Ledger
}

// NewState returns an empty starting state.
func NewState() *State {
	return &State{Sites: make(map[int]*Ledger)}
}

// Clone returns a deep copy that shares no slices with s.
func (s *State) Clone() *State {
	c := &State{
		Period:    s.Period,
		HasPeriod: s.HasPeriod,
		Sites:     make(map[int]*Ledger, len(s.Sites)),
	}
	for site, l := range s.Sites {
		c.Sites[site] = l.clone()
	}
	return c
}

// SetPeriod marks period as the one being simulated.
func (s *State) SetPeriod(period int) {
	s.Period = period
	s.HasPeriod = true
}

// Install appends an entry to the site's ledger, creating it if needed.
func (s *State) Install(site int, capacity float64, build, decommission int) {
	l, ok := s.Sites[site]
	if !ok {
		l = &Ledger{}
		s.Sites[site] = l
	}
	l.add(capacity, build, decommission)
}

// SiteIndices returns the sites with capacity, ascending.
func (s *State) SiteIndices() []int {
	sites := make([]int, 0, len(s.Sites))
	for site := range s.Sites {
		sites = append(sites, site)
	}
	sort.Ints(sites)
	return sites
}

// Capacity returns the installed capacity per site, in SiteIndices order.
func (s *State) Capacity() []float64 {
	sites := s.SiteIndices()
	out := make([]float64, len(sites))
	for i, site := range sites {
		out[i] = s.Sites[site].Total()
	}
	return out
}

package dispatch

import (
	"fmt"
	"strings"

	"github.com/copyleftdev/gridplan/internal/capacity"
)

// Results is the full breakdown of one gene.
type Results struct {
	Totals   Totals           `json:"totals"`
	Periods  []PeriodResults  `json:"periods"`
	Terminal []TerminalResult `json:"terminal"`
}

// Totals are summed over every period. Cost is net of terminal value.
type Totals struct {
	Cost          float64 `json:"cost"`
	Carbon        float64 `json:"carbon"`
	TerminalValue float64 `json:"terminal_value"`
}

// PeriodResults holds one period's generators in dispatch order.
type PeriodResults struct {
	Period     int               `json:"period"`
	Cost       float64           `json:"cost"`
	Carbon     float64           `json:"carbon"`
	Demand     float64           `json:"demand"`
	Generators []GeneratorResult `json:"generators"`
}

// GeneratorResult is one generator's outcome for a period.
type GeneratorResult struct {
	Name string `json:"name"`
	*capacity.PeriodResult
}

// TerminalResult is one generator's residual value at the horizon.
type TerminalResult struct {
	Name  string          `json:"name"`
	Total float64         `json:"total"`
	Sites map[int]float64 `json:"sites,omitempty"`
}

// Summary renders the breakdown as a multi-line report.
func (r *Results) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total cost ($M): %.2f, including carbon (MT): %.2f, terminal value ($M): %.2f\n",
		r.Totals.Cost, r.Totals.Carbon*1e-6, r.Totals.TerminalValue)
	for _, p := range r.Periods {
		fmt.Fprintf(&b, "PERIOD %d: cost ($M) %.2f, carbon (MT) %.2f, demand (GWh) %.2f\n",
			p.Period, p.Cost, p.Carbon*1e-6, p.Demand/1000)
		for _, g := range p.Generators {
			fmt.Fprintf(&b, "  %s ($M %.2f, GWh %.2f): %s\n", g.Name, g.Cost, g.TotalSupply/1000, g.Description)
		}
	}
	return b.String()
}

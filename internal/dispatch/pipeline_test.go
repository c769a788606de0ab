package dispatch

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/gridplan/internal/capacity"
	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/generator"
)

func plant(capital float64) generator.CapacityConfig {
	return generator.CapacityConfig{Config: capacity.Config{
		TimePeriodYrs: 10,
		Lifetime:      capacity.Scalar(20),
		CapitalCost:   capacity.Scalar(capital),
		Size:          capacity.Scalar(10.0),
		SiteCount:     1,
	}}
}

func testProvider(t testing.TB) data.Provider {
	t.Helper()
	p, err := data.NewStatic(2,
		map[string][]float64{"ts_demand": {100, 100}},
		map[string][][]float64{"wind_cf": {{0.5}, {0.5}}})
	require.NoError(t, err)
	return p
}

func testGenerators(t testing.TB, withDemand bool) []generator.Generator {
	t.Helper()
	wind, err := generator.NewVariable("Wind", generator.VariableConfig{
		CapacityConfig:         plant(1),
		CapacityFactorDataName: "wind_cf",
	})
	require.NoError(t, err)
	gas, err := generator.NewThermal("Gas", generator.ThermalConfig{CapacityConfig: plant(2)})
	require.NoError(t, err)
	missed, err := generator.NewMissedSupply("Missed", generator.MissedSupplyConfig{
		CostPerMWh: capacity.Scalar(1e6),
	})
	require.NoError(t, err)

	gens := []generator.Generator{wind, gas, missed}
	if withDemand {
		demand, err := generator.NewDemand("Demand", generator.DemandConfig{})
		require.NoError(t, err)
		gens = append([]generator.Generator{demand}, gens...)
	}
	return gens
}

func testPipeline(t testing.TB, withDemand bool) *Pipeline {
	t.Helper()
	p, err := New(Config{
		RunPeriods:    []int{2010, 2020},
		TimePeriodYrs: 10,
		MinParamVal:   0,
		MaxParamVal:   20,
	}, testGenerators(t, withDemand), testProvider(t))
	require.NoError(t, err)
	return p
}

func TestPointerTable(t *testing.T) {
	p := testPipeline(t, false)
	assert.Equal(t, 2, p.ParamCount())
	assert.Equal(t, 4, p.GeneLength())
	assert.Equal(t, map[string]Span{
		"Wind":   {0, 1},
		"Gas":    {1, 2},
		"Missed": {2, 2},
	}, p.Pointers())
	assert.Equal(t, []string{"Wind", "Gas", "Missed"}, p.Names())
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	p := testPipeline(t, false)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		values := make([]int, p.GeneLength())
		for j := range values {
			values[j] = rng.Intn(21)
		}
		blocks, err := p.Decode(values)
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Empty(t, blocks[0][2])

		back, err := p.Encode(blocks)
		require.NoError(t, err)
		assert.Equal(t, values, back)
	}

	_, err := p.Decode([]int{1, 2, 3})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
	_, err = p.Encode([][][]int{{{1}, {2}, {}}})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestFitness(t *testing.T) {
	p := testPipeline(t, false)

	tests := []struct {
		name string
		gene []int
		want float64
	}{
		// 200 MWh missed per period at $1M/MWh
		{"nothing built", []int{0, 0, 0, 0}, -400},
		// wind 20 MW × $1M + gas 100 MW × $2M, retired at the end of 2020
		{"built in first period", []int{2, 10, 0, 0}, -220},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, err := p.Fitness(tt.gene)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}

	_, err := p.Fitness([]int{1})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestTerminalValueCredited(t *testing.T) {
	p := testPipeline(t, false)
	// gas built in 2020 survives to 2030: half its lifetime remains
	score, err := p.Fitness([]int{0, 10, 0, 10})
	require.NoError(t, err)
	res, err := p.Evaluate([]int{0, 10, 0, 10})
	require.NoError(t, err)

	assert.InDelta(t, 100, res.Totals.TerminalValue, 1e-9)
	assert.InDelta(t, 200+200-100, res.Totals.Cost, 1e-9)
	assert.InDelta(t, -res.Totals.Cost, score, 1e-9)
}

func TestEvaluate(t *testing.T) {
	p := testPipeline(t, false)
	res, err := p.Evaluate([]int{2, 10, 0, 0})
	require.NoError(t, err)

	require.Len(t, res.Periods, 2)
	first := res.Periods[0]
	assert.Equal(t, 2010, first.Period)
	assert.InDelta(t, 220, first.Cost, 1e-9)
	assert.InDelta(t, 200, first.Demand, 1e-9)
	require.Len(t, first.Generators, 3)
	assert.Equal(t, "Wind", first.Generators[0].Name)
	assert.Equal(t, []float64{10, 10}, first.Generators[0].Supply)
	assert.Equal(t, []float64{90, 90}, first.Generators[1].Supply)
	assert.Equal(t, []float64{0, 0}, first.Generators[2].Supply)

	assert.InDelta(t, 220, res.Totals.Cost, 1e-9)
	require.Len(t, res.Terminal, 3)
	assert.Contains(t, res.Summary(), "PERIOD 2020")
}

func TestDemandDispatched(t *testing.T) {
	p := testPipeline(t, true)
	assert.Equal(t, Span{0, 0}, p.Pointers()["Demand"])

	score, err := p.Fitness([]int{2, 10, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, -220, score, 1e-9)

	res, err := p.Evaluate([]int{0, 0, 0, 0})
	require.NoError(t, err)
	assert.InDelta(t, 200, res.Periods[1].Demand, 1e-9)
	assert.InDelta(t, 400, res.Totals.Cost, 1e-9)
}

func TestRunPeriodSpacing(t *testing.T) {
	_, err := New(Config{RunPeriods: []int{2010, 2030}, TimePeriodYrs: 10},
		testGenerators(t, false), testProvider(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
	assert.Contains(t, err.Error(), "run_periods must be separated by time_period_yrs")

	_, err = New(Config{RunPeriods: []int{2010}, TimePeriodYrs: 10}, nil, testProvider(t))
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestDuplicateGenerator(t *testing.T) {
	gens := testGenerators(t, false)
	_, err := New(Config{RunPeriods: []int{2010}, TimePeriodYrs: 10},
		append(gens, gens[0]), testProvider(t))
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestMissingDataIsConfigError(t *testing.T) {
	solar, err := generator.NewVariable("Solar", generator.VariableConfig{
		CapacityConfig:         plant(1),
		CapacityFactorDataName: "solar_cf",
	})
	require.NoError(t, err)
	gens := testGenerators(t, false)
	gens[0] = solar

	_, err = New(Config{RunPeriods: []int{2010}, TimePeriodYrs: 10}, gens, testProvider(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
	assert.Contains(t, err.Error(), "In section Solar, data solar_cf is not loaded")
}

func TestParamBounds(t *testing.T) {
	cfg := plant(1)
	cfg.StartMin = []int{3}
	cfg.StartMax = []int{5}
	gas, err := generator.NewThermal("Gas", generator.ThermalConfig{CapacityConfig: cfg})
	require.NoError(t, err)
	gens := testGenerators(t, false)
	gens[1] = gas

	p, err := New(Config{RunPeriods: []int{2010, 2020}, TimePeriodYrs: 10, MinParamVal: 0, MaxParamVal: 20},
		gens, testProvider(t))
	require.NoError(t, err)

	lo, hi := p.ParamBounds()
	assert.Equal(t, []int{0, 3, 0, 3}, lo)
	assert.Equal(t, []int{20, 5, 20, 5}, hi)
}

func TestConcurrentEvaluationIsolated(t *testing.T) {
	p := testPipeline(t, false)
	rng := rand.New(rand.NewSource(11))
	genes := make([][]int, 32)
	want := make([]float64, len(genes))
	for i := range genes {
		genes[i] = []int{rng.Intn(21), rng.Intn(21), rng.Intn(21), rng.Intn(21)}
		score, err := p.Fitness(genes[i])
		require.NoError(t, err)
		want[i] = score
	}

	got := make([]float64, len(genes))
	var wg sync.WaitGroup
	for i := range genes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], _ = p.Fitness(genes[i])
		}(i)
	}
	wg.Wait()
	assert.Equal(t, want, got)
}

func BenchmarkFitness(b *testing.B) {
	p := testPipeline(b, false)
	gene := []int{2, 10, 1, 3}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Fitness(gene); err != nil {
			b.Fatal(err)
		}
	}
}

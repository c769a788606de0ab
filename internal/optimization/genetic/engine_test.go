package genetic

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/optimization"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PopSize = 20
	cfg.MinParamVal = 0
	cfg.MaxParamVal = 9
	cfg.MinLen = 6
	cfg.MaxLen = 6
	cfg.BaseMute = 0.05
	cfg.GeneMute = 0
	cfg.NukePower = 2
	cfg.Seed = 1234
	return cfg
}

func genesOf(e *Engine) [][]int {
	var out [][]int
	for _, g := range e.Genes() {
		out = append(out, g.Values)
	}
	return out
}

func TestCullProbability(t *testing.T) {
	assert.InDelta(t, 0.047619, CullProbability(0, 10, 0.5), 1e-6)
	assert.InDelta(t, 1.047619, CullProbability(9, 10, 0.5), 1e-6)
	assert.Greater(t, CullProbability(9, 10, 0.5), 1.0)

	for i := 1; i < 10; i++ {
		assert.Greater(t, CullProbability(i, 10, 0.5), CullProbability(i-1, 10, 0.5))
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"pop size one", func(c *Config) { c.PopSize = 1 }},
		{"negative mort", func(c *Config) { c.Mort = -0.1 }},
		{"base mute above one", func(c *Config) { c.BaseMute = 1.5 }},
		{"gene mute negative", func(c *Config) { c.GeneMute = -1 }},
		{"negative nuke", func(c *Config) { c.NukePower = -1 }},
		{"length inverted", func(c *Config) { c.MinLen = 7 }},
		{"zero max length", func(c *Config) { c.MinLen, c.MaxLen = 0, 0 }},
		{"values inverted", func(c *Config) { c.MinParamVal = 10 }},
		{"negative processes", func(c *Config) { c.Processes = -2 }},
		{"half start bounds", func(c *Config) { c.StartValuesMin = []int{0, 0, 0, 0, 0, 0} }},
		{"start bounds short", func(c *Config) {
			c.StartValuesMin = []int{0}
			c.StartValuesMax = []int{1}
		}},
		{"start gene too long", func(c *Config) { c.StartGene = make([]int, 7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfig)
		})
	}

	cfg := testConfig()
	assert.NoError(t, cfg.Validate())
}

func TestPopulationSizeInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.MinLen, cfg.MaxLen = 2, 9
	cfg.GeneMute = 0.3
	cfg.Mort = 0.4

	e, err := New(cfg, optimization.SumFitness)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Prepare(context.Background()))

	for i := 0; i < 40; i++ {
		stats, err := e.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, stats.Iteration)
		assert.Len(t, e.Genes(), cfg.PopSize, "iteration %d", i)
		optimization.AssertGenesWithin(t, genesOf(e), cfg.MinLen, cfg.MaxLen, cfg.MinParamVal, cfg.MaxParamVal)
	}
}

func TestPairListLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	tall := []int{1, 1, 1, 1, 1, 1, 1}
	short := []int{2, 2, 2}

	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		child := PairList(rng, tall, short)
		require.Contains(t, []int{len(tall), len(short)}, len(child))
		seen[len(child)] = true
		for j, v := range child {
			if j >= len(short) {
				assert.Equal(t, 1, v)
				continue
			}
			assert.Contains(t, []int{1, 2}, v)
		}
	}
	assert.True(t, seen[len(tall)] && seen[len(short)], "both crossover branches taken")
}

func TestCloneTest(t *testing.T) {
	for _, size := range []int{2, 10, 37} {
		p := &Population{}
		for i := 0; i < size; i++ {
			p.Genes = append(p.Genes, &Gene{Values: []int{4, 0, 7}})
		}
		modal, ok := p.cloneTest(size)
		assert.True(t, ok, "size %d", size)
		assert.Equal(t, []int{4, 0, 7}, modal)
	}

	p := &Population{}
	for i := 0; i < 10; i++ {
		p.Genes = append(p.Genes, &Gene{Values: []int{1, i % 2}})
	}
	_, ok := p.cloneTest(10)
	assert.False(t, ok)

	// 9 of 10 agree everywhere: exactly the threshold
	p = &Population{}
	for i := 0; i < 9; i++ {
		p.Genes = append(p.Genes, &Gene{Values: []int{3, 3}})
	}
	p.Genes = append(p.Genes, &Gene{Values: []int{5}})
	modal, ok := p.cloneTest(10)
	assert.True(t, ok)
	assert.Equal(t, []int{3, 3}, modal)
}

func TestDeclonerRecordsEvent(t *testing.T) {
	cfg := testConfig()
	cfg.MinParamVal, cfg.MaxParamVal = 0, 0
	cfg.NukePower = 1

	e, err := New(cfg, optimization.SumFitness)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Prepare(context.Background()))

	stats, err := e.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Cloned)

	res, err := e.Final(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Clones, 1)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 0}, res.Clones[0].Values)
	assert.Equal(t, 0.0, res.Clones[0].Score)
	assert.Equal(t, 0, res.Clones[0].Iteration)
}

func TestCullingEverythingIsAlgorithmError(t *testing.T) {
	cfg := testConfig()
	cfg.Mort = 11

	e, err := New(cfg, optimization.SumFitness)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Prepare(context.Background()))

	stats, err := e.Step(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlgorithm)
	assert.Equal(t, cfg.PopSize, stats.Culled)
}

func TestParallelAndSerialRunsAgree(t *testing.T) {
	run := func(processes int) *optimization.Result {
		cfg := testConfig()
		cfg.Processes = processes
		e, err := New(cfg, optimization.TargetFitness([]int{1, 2, 3, 4, 5, 6}, 9))
		require.NoError(t, err)
		defer e.Close()
		require.NoError(t, e.Prepare(context.Background()))
		for i := 0; i < 15; i++ {
			_, err := e.Step(context.Background())
			require.NoError(t, err)
		}
		res, err := e.Final(context.Background())
		require.NoError(t, err)
		return res
	}

	serial := run(0)
	parallel := run(4)
	assert.Equal(t, serial, parallel)
}

func TestSearchImproves(t *testing.T) {
	cfg := testConfig()
	cfg.PopSize = 40
	e, err := New(cfg, optimization.TargetFitness([]int{9, 0, 9, 0, 9, 0}, 9))
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.Prepare(context.Background()))

	for i := 0; i < 60; i++ {
		_, err := e.Step(context.Background())
		require.NoError(t, err)
	}
	res, err := e.Final(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Best, 60)
	best, ok := res.BestEver()
	require.True(t, ok)
	assert.GreaterOrEqual(t, best.Score, res.Best[0].Score)
	assert.Equal(t, 60, res.Iterations)
	assert.Len(t, res.Population, cfg.PopSize)
}

func TestStartGeneAndBounds(t *testing.T) {
	cfg := testConfig()
	cfg.StartValuesMin = []int{2, 2, 2, 2, 2, 2}
	cfg.StartValuesMax = []int{3, 3, 3, 3, 3, 3}
	cfg.StartGene = []int{9, 9, 9, 9, 9, 9}

	e, err := New(cfg, optimization.SumFitness)
	require.NoError(t, err)
	genes := genesOf(e)
	assert.Equal(t, cfg.StartGene, genes[0])
	optimization.AssertGenesWithin(t, genes[1:], 6, 6, 2, 3)
}

func TestLifecycle(t *testing.T) {
	e, err := New(testConfig(), optimization.SumFitness)
	require.NoError(t, err)

	_, err = e.Step(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	require.NoError(t, e.Prepare(context.Background()))
	assert.ErrorIs(t, e.Prepare(context.Background()), apperrors.ErrConfig)

	res, err := e.Final(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Iterations)
	assert.Empty(t, res.Best)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, err = e.Step(context.Background())
	assert.Error(t, err)
}

func TestSeedFromClock(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = 0
	e, err := New(cfg, optimization.SumFitness)
	require.NoError(t, err)
	assert.NotZero(t, e.Seed())
}

func TestFitnessErrorStopsStep(t *testing.T) {
	cfg := testConfig()
	cfg.MinParamVal, cfg.MaxParamVal = 13, 13
	e, err := New(cfg, optimization.FailingFitness(13))
	require.NoError(t, err)
	defer e.Close()
	assert.ErrorIs(t, e.Prepare(context.Background()), optimization.ErrFitness)
}

func BenchmarkStep(b *testing.B) {
	cfg := testConfig()
	cfg.PopSize = 100
	cfg.MinLen, cfg.MaxLen = 30, 30
	e, err := New(cfg, optimization.SumFitness)
	if err != nil {
		b.Fatal(err)
	}
	defer e.Close()
	if err := e.Prepare(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Step(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

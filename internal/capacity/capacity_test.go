package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/copyleftdev/gridplan/internal/data"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

func multiPeriodConfig() Config {
	return Config{
		Section:              "Generator",
		TimePeriodYrs:        10,
		Lifetime:             Schedule(map[int]int{2000: 10, 2020: 30}),
		CapitalCost:          Schedule(map[int]float64{2000: 5, 2010: 6, 2020: 7, 2030: 8}),
		DecommissioningCost:  Schedule(map[int]float64{2000: 0.1, 2010: 0.2}),
		Size:                 Schedule(map[int]float64{2000: 10, 2010: 20, 2030: 30}),
		StartupDataName:      "gen_startup",
		ParamsToSiteDataName: "gen_site_map",
	}
}

func startupProvider(t *testing.T) data.Provider {
	t.Helper()
	p, err := data.NewStatic(1, nil,
		map[string][][]float64{"gen_site_map": {{33, 22, 44, 55, 11}}, "gen_startup": {
			{22, 100, 1990, 2020},
			{22, 200, 2000, 2030},
			{11, 300, 2000, 2010},
			{44, 400, 1990, 2010},
			{44, 1000, 1990, 2020},
		}})
	require.NoError(t, err)
	return p
}

func assertLedger(t *testing.T, s *State, site int, caps []float64, build, decomm []int) {
	t.Helper()
	l, ok := s.Sites[site]
	require.True(t, ok, "site %d missing", site)
	assert.Equal(t, caps, l.Capacity, "capacity at site %d", site)
	assert.Equal(t, build, l.Build, "build at site %d", site)
	assert.Equal(t, decomm, l.Decommission, "decommission at site %d", site)
}

func TestDataTypes(t *testing.T) {
	cfg := multiPeriodConfig()
	cfg.StartupDataName = ""
	cfg.ParamsToSiteDataName = ""
	b, err := NewBase(cfg)
	require.NoError(t, err)
	assert.Empty(t, b.DataTypes())

	cfg.StartupDataName = "gen_startup"
	b, err = NewBase(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen_startup"}, b.DataTypes())

	cfg.ParamsToSiteDataName = "gen_site_map"
	b, err = NewBase(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen_startup", "gen_site_map"}, b.DataTypes())
}

func TestStateMachineAcrossPeriods(t *testing.T) {
	b, err := NewBase(multiPeriodConfig())
	require.NoError(t, err)
	require.NoError(t, b.SetData(startupProvider(t)))

	assert.Equal(t, []int{33, 22, 44, 55, 11}, b.ParamsToSite())
	assert.Equal(t, 5, b.ParamCount())

	start := b.StartingState()
	assert.False(t, start.HasPeriod)
	assert.Len(t, start.Sites, 3)
	assertLedger(t, start, 22, []float64{100, 200}, []int{1990, 2000}, []int{2020, 2030})
	assertLedger(t, start, 11, []float64{300}, []int{2000}, []int{2010})
	assertLedger(t, start, 44, []float64{400, 1000}, []int{1990, 1990}, []int{2010, 2020})

	s := b.StartingState()
	b.UpdateStateNewPeriodList(s, 2010, []NewCapacity{
		{Site: 33, Capacity: 1000, Decommission: 2040},
		{Site: 44, Capacity: 2000, Decommission: 2010},
		{Site: 22, Capacity: 1000, Decommission: 2020},
	})
	assert.Equal(t, 2010, s.Period)
	assertLedger(t, s, 22, []float64{100, 200, 1000}, []int{1990, 2000, 2010}, []int{2020, 2030, 2020})
	assertLedger(t, s, 44, []float64{400, 1000, 2000}, []int{1990, 1990, 2010}, []int{2010, 2020, 2010})
	assertLedger(t, s, 33, []float64{1000}, []int{2010}, []int{2040})

	assert.Equal(t, []int{11, 22, 33, 44}, s.SiteIndices())
	assert.Equal(t, []float64{300, 1300, 1000, 3400}, s.Capacity())

	total, built := b.CalculateNewCapacityCost(s)
	assert.InDelta(t, 24000, total, 1e-9)
	assert.Equal(t, []SiteAmount{
		{Site: 22, Capacity: 1000, Cost: 6000},
		{Site: 33, Capacity: 1000, Cost: 6000},
		{Site: 44, Capacity: 2000, Cost: 12000},
	}, built)

	total, retired := b.CalculateUpdateDecommission(s)
	assert.InDelta(t, 540, total, 1e-9)
	require.Len(t, retired, 2)
	assert.Equal(t, 11, retired[0].Site)
	assert.InDelta(t, 60, retired[0].Cost, 1e-9)
	assert.Equal(t, 44, retired[1].Site)
	assert.InDelta(t, 2400, retired[1].Capacity, 1e-9)
	assert.InDelta(t, 480, retired[1].Cost, 1e-9)

	_, ok := s.Sites[11]
	assert.False(t, ok, "emptied site should be dropped")
	assertLedger(t, s, 44, []float64{1000}, []int{1990}, []int{2020})

	require.NoError(t, b.UpdateStateNewPeriodParams(s, 2020, []int{0, 220, 0, 550, 110}))
	assertLedger(t, s, 11, []float64{2200}, []int{2020}, []int{2040})
	assertLedger(t, s, 22, []float64{100, 200, 1000, 4400}, []int{1990, 2000, 2010, 2020}, []int{2020, 2030, 2020, 2040})
	assertLedger(t, s, 55, []float64{11000}, []int{2020}, []int{2040})
	assertLedger(t, s, 33, []float64{1000}, []int{2010}, []int{2040})

	clean := b.StartingState()
	assert.Len(t, clean.Sites, 3)
	assertLedger(t, clean, 22, []float64{100, 200}, []int{1990, 2000}, []int{2020, 2030})
}

func TestDecommissionRemovesOnlyEntry(t *testing.T) {
	b, err := NewBase(Config{
		Section:       "Generator",
		TimePeriodYrs: 10,
		Lifetime:      Scalar(20),
		CapitalCost:   Scalar(1.0),
	})
	require.NoError(t, err)

	s := b.StartingState()
	s.Install(0, 100, 2010, 2020)

	s.SetPeriod(2010)
	_, retired := b.CalculateUpdateDecommission(s)
	assert.Empty(t, retired)
	assert.Contains(t, s.Sites, 0)

	s.SetPeriod(2020)
	_, retired = b.CalculateUpdateDecommission(s)
	require.Len(t, retired, 1)
	assert.InDelta(t, 100, retired[0].Capacity, 1e-9)
	assert.NotContains(t, s.Sites, 0)
}

func TestPerPeriodValues(t *testing.T) {
	cfg := multiPeriodConfig()
	cfg.ApplyDefaults()

	tests := []struct {
		period   int
		size     float64
		capital  float64
		decomm   float64
		lifetime int
	}{
		{1990, 10, 5, 0.1, 10},
		{2000, 10, 5, 0.1, 10},
		{2010, 20, 6, 0.2, 10},
		{2020, 20, 7, 0.2, 30},
		{2030, 30, 8, 0.2, 30},
		{2050, 30, 8, 0.2, 30},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.size, cfg.Size.At(tt.period), "size %d", tt.period)
		assert.Equal(t, tt.capital, cfg.CapitalCost.At(tt.period), "capital %d", tt.period)
		assert.Equal(t, tt.decomm, cfg.DecommissioningCost.At(tt.period), "decomm %d", tt.period)
		assert.Equal(t, tt.lifetime, cfg.Lifetime.At(tt.period), "lifetime %d", tt.period)
		assert.Equal(t, 1.0, cfg.VariableCostMult.At(tt.period))
		assert.Equal(t, 1.0, cfg.TimeScaleUpMult.At(tt.period))
		assert.Equal(t, 0.0, cfg.CarbonPrice.At(tt.period))
	}
}

func TestLifetimeMustBeMultipleOfPeriod(t *testing.T) {
	tests := []struct {
		name     string
		lifetime PeriodValue[int]
		want     string
	}{
		{"scalar", Scalar(8), "In section Generator, lifetime = 8 which is required to be a multiple of time_period_yrs of 10"},
		{"schedule", Schedule(map[int]int{2000: 15, 2020: 30}), "In section Generator, lifetime = 15 which is required to be a multiple of time_period_yrs of 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := multiPeriodConfig()
			cfg.Lifetime = tt.lifetime
			_, err := NewBase(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfig)

			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.want, appErr.Message)
		})
	}
}

func TestMissingRequiredParameters(t *testing.T) {
	_, err := NewBase(Config{Section: "Wind", TimePeriodYrs: 10, CapitalCost: Scalar(1.0)})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = NewBase(Config{Section: "Wind", TimePeriodYrs: 10, Lifetime: Scalar(10)})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = NewBase(Config{Section: "Wind", Lifetime: Scalar(10), CapitalCost: Scalar(1.0)})
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

type flatOutput struct {
	cf      float64
	vcPerMW float64
	carbon  float64
}

func (f flatOutput) OutputsAndCosts(s *State, request []float64) (Outputs, error) {
	var out Outputs
	for _, c := range s.Capacity() {
		series := make([]float64, len(request))
		for i := range series {
			series[i] = c * f.cf
		}
		out.Supply = append(out.Supply, series)
		out.VariableCost = append(out.VariableCost, c*f.vcPerMW)
		out.Carbon = append(out.Carbon, c*f.carbon)
	}
	return out, nil
}

func TestCalculateTimePeriod(t *testing.T) {
	b, err := NewBase(Config{
		Section:             "Gas",
		TimePeriodYrs:       10,
		Lifetime:            Scalar(20),
		CapitalCost:         Scalar(2.0),
		DecommissioningCost: Scalar(0.5),
		Size:                Scalar(10.0),
		VariableCostMult:    Scalar(2.0),
		CarbonPrice:         Scalar(3.0),
		SiteCount:           2,
	})
	require.NoError(t, err)

	s := b.StartingState()
	model := flatOutput{cf: 0.5, vcPerMW: 1, carbon: 0.1}
	request := []float64{100, 100}

	res, err := b.CalculateTimePeriod(s, 2010, []int{1, 2}, request, model, true)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Sites)
	assert.Equal(t, []float64{10, 20}, res.Capacity)
	assert.InDelta(t, 60, res.CapitalCost, 1e-9)
	// (30 vc + 3 carbon × 3) × 2
	assert.InDelta(t, 78, res.VarCost, 1e-9)
	assert.InDelta(t, 0, res.DecommCost, 1e-9)
	assert.InDelta(t, 138, res.Cost, 1e-9)
	assert.Equal(t, []float64{15, 15}, res.Supply)
	assert.Equal(t, []float64{100, 100}, request)

	res, err = b.CalculateTimePeriod(s, 2020, []int{0, 0}, request, model, false)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.CapitalCost, 1e-9)
	assert.InDelta(t, 15, res.DecommCost, 1e-9)
	assert.Empty(t, s.Sites)
	assert.Nil(t, res.Capacity)

	_, err = b.CalculateTimePeriod(s, 2030, []int{1}, request, model, false)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestTerminalValue(t *testing.T) {
	b, err := NewBase(Config{
		Section:       "Wind",
		TimePeriodYrs: 10,
		Lifetime:      Scalar(30),
		CapitalCost:   Schedule(map[int]float64{2000: 10, 2010: 20}),
		SiteCount:     1,
	})
	require.NoError(t, err)

	s := b.StartingState()
	s.Install(0, 100, 2000, 2020)
	s.Install(0, 50, 2010, 2030)
	s.Install(3, 10, 1990, 2010)

	total, perSite := b.TerminalValue(2010, s)
	// 100 × 10 × 10/30 + 50 × 20 × 20/30
	assert.InDelta(t, 1000.0/3+2000.0/3, total, 1e-9)
	assert.NotContains(t, perSite, 3)
	assert.InDelta(t, total, perSite[0], 1e-9)
}

func TestTerminalValueCappedAtCapitalCost(t *testing.T) {
	b, err := NewBase(Config{
		Section:       "Hydro",
		TimePeriodYrs: 10,
		Lifetime:      Scalar(10),
		CapitalCost:   Scalar(2.0),
	})
	require.NoError(t, err)

	s := b.StartingState()
	// existing plant lasting far beyond the configured 10 year lifetime
	s.Install(0, 5, 2000, 2050)
	// new plant with half its lifetime left
	s.Install(1, 3, 2010, 2015)

	total, perSite := b.TerminalValue(2010, s)
	assert.InDelta(t, 5*2.0, perSite[0], 1e-9)
	assert.InDelta(t, 3*2.0*5/10, perSite[1], 1e-9)
	assert.InDelta(t, 13, total, 1e-9)
}

func TestPeriodValueYAML(t *testing.T) {
	var doc struct {
		Lifetime PeriodValue[int]     `yaml:"lifetime"`
		Size     PeriodValue[float64] `yaml:"size"`
		Absent   PeriodValue[float64] `yaml:"absent"`
	}
	err := yaml.Unmarshal([]byte("lifetime: 30\nsize:\n  2010: 1.5\n  2030: 2.5\n"), &doc)
	require.NoError(t, err)

	assert.True(t, doc.Lifetime.IsSet())
	assert.Equal(t, 30, doc.Lifetime.At(2050))
	assert.Equal(t, 1.5, doc.Size.At(2000))
	assert.Equal(t, 1.5, doc.Size.At(2020))
	assert.Equal(t, 2.5, doc.Size.At(2030))
	assert.False(t, doc.Absent.IsSet())

	err = yaml.Unmarshal([]byte("lifetime: [1, 2]\n"), &doc)
	assert.Error(t, err)
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	s.Install(1, 10, 2000, 2010)
	c := s.Clone()
	c.Install(1, 20, 2010, 2020)
	c.Sites[1].Capacity[0] = 99

	assert.Equal(t, []float64{10}, s.Sites[1].Capacity)
	assert.Equal(t, []float64{10}, s.Capacity())
	assert.Equal(t, []float64{119}, c.Capacity())
}

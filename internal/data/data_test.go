package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

func TestNewStaticValidatesLength(t *testing.T) {
	_, err := NewStatic(3, map[string][]float64{"ts_demand": {1, 2}}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = NewStatic(0, nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestStaticIsolatedFromCaller(t *testing.T) {
	demand := []float64{1, 2, 3}
	p, err := NewStatic(3, map[string][]float64{"ts_demand": demand}, map[string][][]float64{
		"wind_cf": {{0.1, 0.2}, {0.3, 0.4}, {0.5, 0.6}},
	})
	require.NoError(t, err)

	demand[0] = 99
	got, err := p.Series("ts_demand")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)
	assert.Equal(t, 3, p.Length())
	assert.True(t, p.Has("wind_cf"))
	assert.False(t, p.Has("solar_cf"))

	_, err = p.Series("missing")
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

func TestColumn(t *testing.T) {
	col, err := Column([][]float64{{1, 2}, {3, 4}}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4}, col)

	_, err = Column([][]float64{{1}}, 2)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}

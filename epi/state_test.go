package epi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometry_Defaults(t *testing.T) {
	g := DefaultGeometry()
	require.NoError(t, g.Validate())
	assert.Equal(t, 21, g.Window)
	assert.Equal(t, 12, g.WindowLength())
	assert.Equal(t, 20, g.DeathAge())
}

func TestGeometry_Validate(t *testing.T) {
	tests := []struct {
		name string
		g    Geometry
		ok   bool
	}{
		{"reference", DefaultGeometry(), true},
		{"shrunk", Geometry{Window: 5, InfectiousLow: 1, InfectiousHigh: 3}, true},
		{"window too small", Geometry{Window: 1, InfectiousLow: 0, InfectiousHigh: 0}, false},
		{"negative low", Geometry{Window: 5, InfectiousLow: -1, InfectiousHigh: 3}, false},
		{"high below low", Geometry{Window: 5, InfectiousLow: 3, InfectiousHigh: 2}, false},
		{"window exceeded", Geometry{Window: 5, InfectiousLow: 1, InfectiousHigh: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.g.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var cerr *ConfigError
				assert.ErrorAs(t, err, &cerr)
			}
		})
	}
}

func TestParameters_Validate(t *testing.T) {
	good := Parameters{R0: 2.0, MortalityProb: 0.01, ObservationProb: 0.3}
	require.NoError(t, good.Validate(false))

	var derr *DomainError
	assert.ErrorAs(t, Parameters{R0: -1}.Validate(false), &derr)
	assert.ErrorAs(t, Parameters{R0: 1, MortalityProb: 1.5}.Validate(false), &derr)
	assert.ErrorAs(t, Parameters{R0: 1, ObservationProb: -0.2}.Validate(false), &derr)
	assert.ErrorAs(t, Parameters{R0: 1, InflowRate: -3}.Validate(true), &derr)
	assert.ErrorAs(t, Parameters{R0: math.NaN()}.Validate(false), &derr)
	assert.ErrorAs(t, Parameters{R0: 1, MortalityProb: math.NaN()}.Validate(false), &derr)

	// Inflow rate set on the base variant is a configuration mistake.
	var cerr *ConfigError
	assert.ErrorAs(t, Parameters{R0: 1, InflowRate: 0.5}.Validate(false), &cerr)
	assert.NoError(t, Parameters{R0: 1, InflowRate: 0.5}.Validate(true))
}

func TestAgeStructuredState_CloneIsIndependent(t *testing.T) {
	s := AgeStructuredState{3, 2, 1}
	c := s.Clone()
	c[0] = 99
	assert.Equal(t, int64(3), s[0])
	assert.Equal(t, int64(6), s.Total())
}

func TestObservationSeries_Validate(t *testing.T) {
	ok := ObservationSeries{
		CumulativeObservedCases: []int64{0, 1, 3},
		DailyDeaths:             []int64{0, 0, 1},
	}
	require.NoError(t, ok.Validate(3))

	var cerr *ConfigError
	assert.ErrorAs(t, ok.Validate(4), &cerr)

	bad := ObservationSeries{
		CumulativeObservedCases: []int64{0, -1, 3},
		DailyDeaths:             []int64{0, 0, 1},
	}
	assert.ErrorAs(t, bad.Validate(3), &cerr)
}

func TestObservationSeries_CumulativeDeaths(t *testing.T) {
	o := ObservationSeries{DailyDeaths: []int64{1, 0, 2, 3}}
	assert.Equal(t, []int64{1, 1, 3, 6}, o.CumulativeDeaths())
}

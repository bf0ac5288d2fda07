package mcmc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outbreak-sim/outbreak-sim/epi"
)

func fixture(t *testing.T, withInflow bool) (*epi.ModelSpec, epi.ObservationSeries, epi.SeedSpec) {
	t.Helper()
	geom := epi.Geometry{Window: 5, InfectiousLow: 1, InfectiousHigh: 3}
	params := epi.Parameters{R0: 1.5, MortalityProb: 0.1, ObservationProb: 0.5}
	var spec *epi.ModelSpec
	if withInflow {
		params.InflowRate = 0.6
		spec = epi.NewInflowModel(geom, 8)
	} else {
		spec = epi.NewBaseModel(geom, 8)
	}
	cfg := epi.SimConfig{Horizon: 8, Geometry: geom, WithInflow: withInflow}
	res, err := epi.Simulate(cfg, params, epi.AgeStructuredState{2, 0, 1, 0, 0}, epi.NewPartitionedRNG(epi.NewSimulationKey(51)))
	require.NoError(t, err)
	seed, err := epi.DeriveSeed(spec, res)
	require.NoError(t, err)
	return spec, res.Observations(), seed
}

func TestSampler_ShapesAndSupport(t *testing.T) {
	for _, withInflow := range []bool{false, true} {
		spec, data, seed := fixture(t, withInflow)

		post, err := New(Options{Seed: 7}).Sample(spec, data, seed, 2, 30)
		require.NoError(t, err)
		require.Len(t, post.Chains, 2)

		for _, ch := range post.Chains {
			require.Len(t, ch.Draws, 30)
			for _, d := range ch.Draws {
				assert.Greater(t, d.Params.R0, 0.0)
				assert.Greater(t, d.Params.MortalityProb, 0.0)
				assert.Less(t, d.Params.MortalityProb, 1.0)
				assert.Greater(t, d.Params.ObservationProb, 0.0)
				assert.Less(t, d.Params.ObservationProb, 1.0)
				if withInflow {
					assert.Greater(t, d.Params.InflowRate, 0.0)
				}
				require.Len(t, d.CumulativeInfections, 8)
				prev := int64(0)
				for day, c := range d.CumulativeInfections {
					assert.GreaterOrEqual(t, c, prev, "cumulative infections must be non-decreasing at day %d", day)
					prev = c
				}
			}
		}
	}
}

func TestSampler_Reproducible(t *testing.T) {
	spec, data, seed := fixture(t, false)

	a, err := New(Options{Seed: 7}).Sample(spec, data, seed, 2, 20)
	require.NoError(t, err)
	b, err := New(Options{Seed: 7}).Sample(spec, data, seed, 2, 20)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same master seed must reproduce every chain")

	c, err := New(Options{Seed: 8}).Sample(spec, data, seed, 2, 20)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSampler_ChainsAreIndependentStreams(t *testing.T) {
	spec, data, seed := fixture(t, false)

	post, err := New(Options{Seed: 7}).Sample(spec, data, seed, 2, 20)
	require.NoError(t, err)
	assert.NotEqual(t, post.Chains[0], post.Chains[1], "chains must not share an RNG stream")
}

func TestSampler_InfeasibleDataReported(t *testing.T) {
	spec, data, seed := fixture(t, false)
	data.DailyDeaths[3] = 100000 // impossible given the pipeline

	_, err := New(Options{Seed: 7}).Sample(spec, data, seed, 1, 10)
	var ierr *epi.InfeasibilityError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 3, ierr.Day)
	assert.Equal(t, "deaths[3]", ierr.Variable)
}

func TestSampler_HonorsFixedSeeds(t *testing.T) {
	spec, data, seed := fixture(t, false)

	// Pin the parameters too; the first draw of every chain must start
	// from a state that included these exact values.
	seed[epi.ParamR0] = epi.FixedSeed(1.5)
	seed[epi.ParamMortalityProb] = epi.FixedSeed(0.1)
	seed[epi.ParamObservationProb] = epi.FixedSeed(0.5)

	post, err := New(Options{Seed: 7}).Sample(spec, data, seed, 1, 1)
	require.NoError(t, err)
	require.Len(t, post.Chains[0].Draws, 1)
	// After a single sweep the parameters can have moved at most one
	// proposal step from the pinned start.
	d := post.Chains[0].Draws[0]
	assert.InDelta(t, 1.5, d.Params.R0, 1.0)
	assert.InDelta(t, 0.1, d.Params.MortalityProb, 0.2)
}

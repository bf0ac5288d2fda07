package epi

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallGeometry() Geometry {
	return Geometry{Window: 5, InfectiousLow: 1, InfectiousHigh: 3}
}

func TestSimulate_NoReproduction_ShiftsPipelineDeterministically(t *testing.T) {
	// R0=0: the single initial infection must age one bin per day and no
	// new infections can ever appear.
	cfg := SimConfig{Horizon: 5, Geometry: smallGeometry()}
	params := Parameters{R0: 0, MortalityProb: 0, ObservationProb: 0}
	initial := AgeStructuredState{1, 0, 0, 0, 0}

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(1)))
	require.NoError(t, err)

	for day := 0; day < 5; day++ {
		for i := 0; i < 5; i++ {
			want := int64(0)
			if i == day {
				want = 1
			}
			assert.Equal(t, want, res.States[day][i], "day %d bin %d", day, i)
		}
	}
	for day := 1; day < 5; day++ {
		assert.Equal(t, int64(0), res.States[day][0], "day %d must have no new infections", day)
	}
}

func TestSimulate_CertainMortality(t *testing.T) {
	// mortalityProb=1: deaths equal the oldest-bin cohort exactly.
	cfg := SimConfig{Horizon: 8, Geometry: smallGeometry()}
	params := Parameters{R0: 2.5, MortalityProb: 1.0, ObservationProb: 0.5}
	initial := AgeStructuredState{3, 1, 0, 2, 4}

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(2)))
	require.NoError(t, err)

	for day := 0; day < 8; day++ {
		assert.Equal(t, res.States[day][4], res.DailyDeaths[day], "day %d", day)
	}
}

func TestSimulate_CertainObservation(t *testing.T) {
	// observationProb=1: the observed series equals cumulative infections.
	cfg := SimConfig{Horizon: 8, Geometry: smallGeometry()}
	params := Parameters{R0: 2.5, MortalityProb: 0.1, ObservationProb: 1.0}
	initial := AgeStructuredState{3, 1, 0, 2, 4}

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(3)))
	require.NoError(t, err)
	assert.Equal(t, res.CumulativeInfections, res.CumulativeObservedCases)
}

func TestSimulate_MalformedInitialState(t *testing.T) {
	cfg := SimConfig{Horizon: 5, Geometry: smallGeometry()}
	params := Parameters{R0: 1, MortalityProb: 0.1, ObservationProb: 0.5}

	res, err := Simulate(cfg, params, AgeStructuredState{1, 0, 0}, NewPartitionedRNG(NewSimulationKey(4)))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Nil(t, res, "a failed run must not produce a partial trajectory")
}

func TestSimulate_HorizonTooShort(t *testing.T) {
	cfg := SimConfig{Horizon: 1, Geometry: smallGeometry()}
	params := Parameters{R0: 1, MortalityProb: 0.1, ObservationProb: 0.5}

	_, err := Simulate(cfg, params, AgeStructuredState{1, 0, 0, 0, 0}, NewPartitionedRNG(NewSimulationKey(5)))
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "horizon", cerr.Field)
}

func TestSimulate_ShiftInvariant(t *testing.T) {
	cfg := SimConfig{Horizon: 30, Geometry: DefaultGeometry()}
	params := Parameters{R0: 2.0, MortalityProb: 0.02, ObservationProb: 0.4}
	initial := make(AgeStructuredState, 21)
	initial[0] = 5

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(6)))
	require.NoError(t, err)

	for day := 0; day < 29; day++ {
		for i := 1; i < 21; i++ {
			assert.Equal(t, res.States[day][i-1], res.States[day+1][i],
				"shift invariant broken at day %d bin %d", day+1, i)
		}
	}
}

func TestSimulate_Conservation(t *testing.T) {
	cfg := SimConfig{Horizon: 25, Geometry: DefaultGeometry(), WithInflow: true}
	params := Parameters{R0: 1.8, MortalityProb: 0.02, ObservationProb: 0.4, InflowRate: 0.7}
	initial := make(AgeStructuredState, 21)
	initial[0] = 2

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(7)))
	require.NoError(t, err)

	var run int64
	for day := 0; day < 25; day++ {
		run += res.States[day][0]
		assert.Equal(t, run, res.CumulativeInfections[day], "day %d", day)
		assert.Equal(t, res.NewInfections[day]+res.Inflow[day], res.States[day][0], "day %d", day)
	}
}

func TestSimulate_Reproducibility(t *testing.T) {
	cfg := SimConfig{Horizon: 40, Geometry: DefaultGeometry(), WithInflow: true}
	params := Parameters{R0: 2.2, MortalityProb: 0.03, ObservationProb: 0.25, InflowRate: 0.4}
	initial := make(AgeStructuredState, 21)
	initial[0] = 3
	initial[10] = 1

	a, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(99)))
	require.NoError(t, err)
	b, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(99)))
	require.NoError(t, err)

	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical seeds must produce bit-identical results")
	}

	c, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(100)))
	require.NoError(t, err)
	if reflect.DeepEqual(a.States, c.States) {
		t.Fatal("different seeds produced identical trajectories")
	}
}

func TestSimulate_NonNegativityRandomizedTrials(t *testing.T) {
	// Randomized parameter sweep: no sampled count may ever be negative.
	src := rand.New(rand.NewSource(1234))
	geom := Geometry{Window: 8, InfectiousLow: 2, InfectiousHigh: 5}

	for trial := 0; trial < 10000; trial++ {
		params := Parameters{
			R0:              src.Float64() * 5,
			MortalityProb:   src.Float64(),
			ObservationProb: src.Float64(),
			InflowRate:      src.Float64() * 2,
		}
		initial := make(AgeStructuredState, 8)
		for i := range initial {
			initial[i] = int64(src.Intn(4))
		}
		cfg := SimConfig{Horizon: 6, Geometry: geom, WithInflow: true}

		res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(int64(trial))))
		require.NoError(t, err)

		for day := 0; day < 6; day++ {
			for i, c := range res.States[day] {
				if c < 0 {
					t.Fatalf("trial %d: negative count %d at day %d bin %d", trial, c, day, i)
				}
			}
			if res.DailyDeaths[day] < 0 || res.CumulativeObservedCases[day] < 0 {
				t.Fatalf("trial %d: negative derived count at day %d", trial, day)
			}
			if res.DailyDeaths[day] > res.States[day][7] {
				t.Fatalf("trial %d: deaths exceed oldest cohort at day %d", trial, day)
			}
		}
	}
}

func TestSimulate_ObservedSeriesCanDecrease(t *testing.T) {
	// The observed-case series redraws a Binomial on the cumulative total
	// every day rather than observing increments, so it may decrease from
	// one day to the next even though cumulative infections never do.
	cfg := SimConfig{Horizon: 12, Geometry: smallGeometry()}
	params := Parameters{R0: 2.0, MortalityProb: 0.05, ObservationProb: 0.5}
	initial := AgeStructuredState{4, 0, 0, 0, 0}

	for s := int64(0); s < 50; s++ {
		res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(s)))
		require.NoError(t, err)
		for day := 1; day < cfg.Horizon; day++ {
			require.LessOrEqual(t, res.CumulativeInfections[day-1], res.CumulativeInfections[day])
			if res.CumulativeObservedCases[day] < res.CumulativeObservedCases[day-1] {
				return
			}
		}
	}
	t.Fatal("no decreasing step in the observed series across 50 seeds")
}

func TestSimulate_BaseVariantHasNoInflowSeries(t *testing.T) {
	cfg := SimConfig{Horizon: 5, Geometry: smallGeometry()}
	params := Parameters{R0: 1.0, MortalityProb: 0.1, ObservationProb: 0.5}

	res, err := Simulate(cfg, params, AgeStructuredState{1, 0, 0, 0, 0}, NewPartitionedRNG(NewSimulationKey(8)))
	require.NoError(t, err)
	assert.Nil(t, res.Inflow)
}

func TestSampleInitialState(t *testing.T) {
	state, err := SampleInitialState(DefaultGeometry(), 1.0, NewPartitionedRNG(NewSimulationKey(11)))
	require.NoError(t, err)
	require.Len(t, state, 21)
	for i, c := range state {
		assert.GreaterOrEqual(t, c, int64(0), "bin %d", i)
	}

	_, err = SampleInitialState(DefaultGeometry(), -0.5, NewPartitionedRNG(NewSimulationKey(11)))
	var derr *DomainError
	assert.ErrorAs(t, err, &derr)
}

func TestSummarize(t *testing.T) {
	cfg := SimConfig{Horizon: 10, Geometry: smallGeometry()}
	params := Parameters{R0: 2.0, MortalityProb: 0.5, ObservationProb: 0.5}
	initial := AgeStructuredState{4, 0, 0, 0, 1}

	res, err := Simulate(cfg, params, initial, NewPartitionedRNG(NewSimulationKey(12)))
	require.NoError(t, err)

	s := Summarize(res)
	assert.Equal(t, 10, s.Horizon)
	assert.Equal(t, res.CumulativeInfections[9], s.TotalInfections)
	assert.Equal(t, res.CumulativeDeaths[9], s.TotalDeaths)
	assert.GreaterOrEqual(t, s.PeakDailyInfections, int64(4))
}

func TestObservations_CopiesSeries(t *testing.T) {
	cfg := SimConfig{Horizon: 5, Geometry: smallGeometry()}
	params := Parameters{R0: 1.0, MortalityProb: 0.2, ObservationProb: 0.5}

	res, err := Simulate(cfg, params, AgeStructuredState{2, 0, 0, 0, 0}, NewPartitionedRNG(NewSimulationKey(13)))
	require.NoError(t, err)

	obs := res.Observations()
	obs.DailyDeaths[0] = 999
	assert.NotEqual(t, int64(999), res.DailyDeaths[0], "Observations must copy, not alias")
}

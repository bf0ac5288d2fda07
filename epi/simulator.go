package epi

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// SimConfig groups the forward-simulation inputs that are not epidemic
// parameters.
type SimConfig struct {
	Horizon    int      // number of simulated days tMax (must be >= 2)
	Geometry   Geometry // pipeline shape; DefaultGeometry() for the reference model
	WithInflow bool     // true = extended variant with the external Poisson inflow term
}

// Validate checks the simulation configuration.
func (c SimConfig) Validate() error {
	if c.Horizon < 2 {
		return configErrorf("horizon", "a single-day trajectory has no transition to simulate; need >= 2, got %d", c.Horizon)
	}
	return c.Geometry.Validate()
}

// Result is one complete forward run: the trajectory plus every derived
// series. A Result is immutable once Simulate returns.
type Result struct {
	States Trajectory

	// NewInfections[t] is the Poisson transition draw that landed in bin 0 on
	// day t. NewInfections[0] simply records the initial state's bin 0; the
	// transition latents proper start at t=1.
	NewInfections []int64

	// Inflow[t] is the external-inflow draw added into bin 0 on day t.
	// nil in the base variant; Inflow[0] is always 0 (day 0 is prior-drawn,
	// not decomposed).
	Inflow []int64

	CumulativeInfections []int64
	DailyDeaths          []int64
	CumulativeDeaths     []int64

	// CumulativeObservedCases[t] is an independent Binomial draw on
	// CumulativeInfections[t] each day. Because each day redraws the
	// cumulative total rather than observing an increment, this series is
	// NOT guaranteed to be non-decreasing even though CumulativeInfections
	// is. The non-monotone behavior is deliberate and mirrored by the model
	// spec's observation nodes.
	CumulativeObservedCases []int64
}

// Simulate runs the forward stochastic process for cfg.Horizon days starting
// from initial, drawing all randomness from rng's subsystem streams. Identical
// (cfg, params, initial, seed) inputs produce bit-identical Results.
func Simulate(cfg SimConfig, params Parameters, initial AgeStructuredState, rng *PartitionedRNG) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(cfg.WithInflow); err != nil {
		return nil, err
	}
	w := cfg.Geometry.Window
	if len(initial) != w {
		return nil, configErrorf("initial_state", "length %d, want pipeline width %d", len(initial), w)
	}
	for i, c := range initial {
		if c < 0 {
			return nil, domainError(fmt.Sprintf("initial_state[%d]", i), float64(c))
		}
	}

	res := &Result{
		States:        make(Trajectory, cfg.Horizon),
		NewInfections: make([]int64, cfg.Horizon),
	}
	if cfg.WithInflow {
		res.Inflow = make([]int64, cfg.Horizon)
	}
	res.States[0] = initial.Clone()
	res.NewInfections[0] = initial[0]

	transRNG := rng.ForSubsystem(SubsystemTransition)
	inflowRNG := rng.ForSubsystem(SubsystemInflow)

	windowLen := float64(cfg.Geometry.WindowLength())
	for t := 0; t < cfg.Horizon-1; t++ {
		cur := res.States[t]
		next := make(AgeStructuredState, w)
		// Deterministic aging: everyone moves one infection-age bin forward.
		copy(next[1:], cur[:w-1])

		var infectious int64
		for a := cfg.Geometry.InfectiousLow; a <= cfg.Geometry.InfectiousHigh; a++ {
			infectious += cur[a]
		}
		lambda := float64(infectious) * params.R0 / windowLen
		newInf, err := poissonRand(transRNG, lambda)
		if err != nil {
			return nil, err
		}
		next[0] = newInf
		res.NewInfections[t+1] = newInf

		if cfg.WithInflow {
			inflow, err := poissonRand(inflowRNG, params.InflowRate)
			if err != nil {
				return nil, err
			}
			next[0] += inflow
			res.Inflow[t+1] = inflow
		}

		res.States[t+1] = next
		logrus.Debugf("[day %03d] infectious=%d lambda=%.3f new=%d", t+1, infectious, lambda, next[0])
	}

	deathsRNG := rng.ForSubsystem(SubsystemDeaths)
	obsRNG := rng.ForSubsystem(SubsystemObservation)
	deathAge := cfg.Geometry.DeathAge()

	res.DailyDeaths = make([]int64, cfg.Horizon)
	res.CumulativeInfections = make([]int64, cfg.Horizon)
	res.CumulativeObservedCases = make([]int64, cfg.Horizon)
	var cumInf int64
	for t := 0; t < cfg.Horizon; t++ {
		deaths, err := binomialRand(deathsRNG, res.States[t][deathAge], params.MortalityProb)
		if err != nil {
			return nil, err
		}
		res.DailyDeaths[t] = deaths

		cumInf += res.States[t][0]
		res.CumulativeInfections[t] = cumInf

		obs, err := binomialRand(obsRNG, cumInf, params.ObservationProb)
		if err != nil {
			return nil, err
		}
		res.CumulativeObservedCases[t] = obs
	}
	res.CumulativeDeaths = prefixSum(res.DailyDeaths)

	return res, nil
}

// Observations extracts the observed-data view of the run, shaped exactly as
// the inference driver expects it.
func (r *Result) Observations() ObservationSeries {
	return ObservationSeries{
		CumulativeObservedCases: append([]int64(nil), r.CumulativeObservedCases...),
		DailyDeaths:             append([]int64(nil), r.DailyDeaths...),
	}
}

// SampleInitialState draws a day-0 pipeline from the initial-state prior:
// each age bin independently Poisson(rate).
func SampleInitialState(geom Geometry, rate float64, rng *PartitionedRNG) (AgeStructuredState, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if rate < 0 || math.IsNaN(rate) {
		return nil, domainError("initial_state_rate", rate)
	}
	src := rng.ForSubsystem(SubsystemInitialState)
	state := make(AgeStructuredState, geom.Window)
	for i := range state {
		c, err := poissonRand(src, rate)
		if err != nil {
			return nil, err
		}
		state[i] = c
	}
	return state, nil
}

// RunSummary aggregates a forward run for final reporting.
type RunSummary struct {
	Horizon             int
	TotalInfections     int64 // cumulative infections at the final day
	TotalDeaths         int64
	TotalObservedFinal  int64 // last day's observed-case draw
	PeakDailyInfections int64
	PeakDay             int
}

// Summarize computes a RunSummary from a Result.
func Summarize(res *Result) RunSummary {
	s := RunSummary{Horizon: len(res.States)}
	if s.Horizon == 0 {
		return s
	}
	s.TotalInfections = res.CumulativeInfections[s.Horizon-1]
	s.TotalDeaths = res.CumulativeDeaths[s.Horizon-1]
	s.TotalObservedFinal = res.CumulativeObservedCases[s.Horizon-1]
	for t, st := range res.States {
		if st[0] > s.PeakDailyInfections {
			s.PeakDailyInfections = st[0]
			s.PeakDay = t
		}
	}
	return s
}

// Print displays the run summary.
func (s RunSummary) Print() {
	fmt.Println("=== Simulation Summary ===")
	fmt.Printf("Days simulated       : %d\n", s.Horizon)
	fmt.Printf("Total infections     : %d\n", s.TotalInfections)
	fmt.Printf("Total deaths         : %d\n", s.TotalDeaths)
	fmt.Printf("Observed (final day) : %d\n", s.TotalObservedFinal)
	fmt.Printf("Peak daily infections: %d (day %d)\n", s.PeakDailyInfections, s.PeakDay)
}

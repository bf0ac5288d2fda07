package epi

import "math"

// AgeStructuredState is one day's snapshot of the infection-age pipeline:
// index 0 holds the number of individuals newly infected today, index i the
// number infected i days ago. A FIFO of cohort sizes by infection age.
type AgeStructuredState []int64

// Clone returns an independent copy of the state.
func (s AgeStructuredState) Clone() AgeStructuredState {
	out := make(AgeStructuredState, len(s))
	copy(out, s)
	return out
}

// Total returns the number of individuals currently tracked in the pipeline.
func (s AgeStructuredState) Total() int64 {
	var sum int64
	for _, c := range s {
		sum += c
	}
	return sum
}

// Trajectory is one AgeStructuredState per simulated day. A Trajectory is
// immutable once its producing loop completes; downstream consumers copy
// rather than mutate.
type Trajectory []AgeStructuredState

// Clone returns a deep copy of the trajectory.
func (tr Trajectory) Clone() Trajectory {
	out := make(Trajectory, len(tr))
	for i, s := range tr {
		out[i] = s.Clone()
	}
	return out
}

// Geometry fixes the shape of the infection-age pipeline: its width and the
// contiguous range of ages counted as infectious. The oldest age bin
// (Window-1) is the one exposed to the mortality draw.
type Geometry struct {
	Window         int // pipeline width W (number of tracked infection ages)
	InfectiousLow  int // first infectious age, inclusive
	InfectiousHigh int // last infectious age, inclusive
}

// DefaultGeometry returns the reference geometry: a 21-day pipeline with
// ages 4-15 infectious (a 12-day infectious period).
func DefaultGeometry() Geometry {
	return Geometry{Window: 21, InfectiousLow: 4, InfectiousHigh: 15}
}

// WindowLength returns the number of days in the infectious window. The
// Poisson transition divides R0 by this to get a per-day-of-infectiousness
// rate.
func (g Geometry) WindowLength() int {
	return g.InfectiousHigh - g.InfectiousLow + 1
}

// DeathAge returns the infection age whose cohort is exposed to the
// mortality draw (the oldest tracked age).
func (g Geometry) DeathAge() int {
	return g.Window - 1
}

// Validate checks the geometry invariants: the window must be wide enough
// to contain the infectious range and the time-to-death age strictly.
func (g Geometry) Validate() error {
	if g.Window < 2 {
		return configErrorf("geometry.window", "pipeline width must be >= 2, got %d", g.Window)
	}
	if g.InfectiousLow < 0 {
		return configErrorf("geometry.infectious_low", "must be >= 0, got %d", g.InfectiousLow)
	}
	if g.InfectiousHigh < g.InfectiousLow {
		return configErrorf("geometry.infectious_high", "must be >= infectious_low %d, got %d", g.InfectiousLow, g.InfectiousHigh)
	}
	if g.InfectiousHigh >= g.Window {
		return configErrorf("geometry.infectious_high", "infectious window must fit inside pipeline width %d, got %d", g.Window, g.InfectiousHigh)
	}
	return nil
}

// Parameters holds the epidemic parameters. In simulation mode they are
// fixed inputs; in inference mode they are latent and owned by the sampler.
type Parameters struct {
	R0              float64 // effective reproduction number over the full infectious period
	MortalityProb   float64 // probability an individual reaching the oldest age bin dies that day
	ObservationProb float64 // per-day ascertainment probability of the cumulative infection count
	InflowRate      float64 // Poisson rate of external infection inflow (inflow variant only)
}

// Validate checks the parameter domains. withInflow controls whether
// InflowRate participates; in the base variant a nonzero InflowRate is a
// configuration mistake rather than a domain violation, and is reported as
// such.
func (p Parameters) Validate(withInflow bool) error {
	if p.R0 < 0 || math.IsNaN(p.R0) {
		return domainError("r0", p.R0)
	}
	if p.MortalityProb < 0 || p.MortalityProb > 1 || math.IsNaN(p.MortalityProb) {
		return domainError("mortality_prob", p.MortalityProb)
	}
	if p.ObservationProb < 0 || p.ObservationProb > 1 || math.IsNaN(p.ObservationProb) {
		return domainError("observation_prob", p.ObservationProb)
	}
	if withInflow {
		if p.InflowRate < 0 || math.IsNaN(p.InflowRate) {
			return domainError("inflow_rate", p.InflowRate)
		}
	} else if p.InflowRate != 0 {
		return configErrorf("inflow_rate", "base variant does not model inflow, got rate %v", p.InflowRate)
	}
	return nil
}

// ObservationSeries holds the observed data handed to inference: the per-day
// observed cumulative case counts and the per-day death counts.
type ObservationSeries struct {
	CumulativeObservedCases []int64
	DailyDeaths             []int64
}

// Validate checks that both series have length tMax and contain no negative
// counts.
func (o ObservationSeries) Validate(tMax int) error {
	if len(o.CumulativeObservedCases) != tMax {
		return configErrorf("data.cumulative_observed_cases", "length %d, want horizon %d", len(o.CumulativeObservedCases), tMax)
	}
	if len(o.DailyDeaths) != tMax {
		return configErrorf("data.daily_deaths", "length %d, want horizon %d", len(o.DailyDeaths), tMax)
	}
	for t, c := range o.CumulativeObservedCases {
		if c < 0 {
			return configErrorf("data.cumulative_observed_cases", "negative count %d at day %d", c, t)
		}
	}
	for t, d := range o.DailyDeaths {
		if d < 0 {
			return configErrorf("data.daily_deaths", "negative count %d at day %d", d, t)
		}
	}
	return nil
}

// CumulativeDeaths returns the prefix sum of DailyDeaths.
func (o ObservationSeries) CumulativeDeaths() []int64 {
	return prefixSum(o.DailyDeaths)
}

func prefixSum(xs []int64) []int64 {
	out := make([]int64, len(xs))
	var run int64
	for i, x := range xs {
		run += x
		out[i] = run
	}
	return out
}

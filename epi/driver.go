package epi

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Sampler is the external inference engine boundary. Implementations own the
// MCMC mechanics entirely; they receive the model as data plus a validated
// seed and must return Chains x Iterations posterior draws. The default
// backend lives in epi/mcmc.
type Sampler interface {
	Sample(spec *ModelSpec, data ObservationSeries, seed SeedSpec, chains, iterations int) (*PosteriorSamples, error)
}

// Draw is one posterior sample: parameter values plus the implied
// cumulative-infection trajectory.
type Draw struct {
	Params               Parameters
	CumulativeInfections []int64
}

// Chain is one sampler chain's draws, in iteration order.
type Chain struct {
	Draws []Draw
}

// PosteriorSamples holds all completed chains. Chains are produced by
// independent workers; after Sample returns they are read-only.
type PosteriorSamples struct {
	Chains []Chain
}

// ParamSummary is a pooled posterior summary for one parameter.
type ParamSummary struct {
	Mean   float64
	StdDev float64
	Q05    float64
	Median float64
	Q95    float64
}

// Summary computes pooled cross-chain summaries for each parameter name.
func (p *PosteriorSamples) Summary(names []string) map[string]ParamSummary {
	out := make(map[string]ParamSummary, len(names))
	for _, name := range names {
		var xs []float64
		for _, ch := range p.Chains {
			for _, d := range ch.Draws {
				xs = append(xs, paramValue(d.Params, name))
			}
		}
		if len(xs) == 0 {
			continue
		}
		sort.Float64s(xs)
		out[name] = ParamSummary{
			Mean:   stat.Mean(xs, nil),
			StdDev: stat.StdDev(xs, nil),
			Q05:    stat.Quantile(0.05, stat.Empirical, xs, nil),
			Median: stat.Quantile(0.5, stat.Empirical, xs, nil),
			Q95:    stat.Quantile(0.95, stat.Empirical, xs, nil),
		}
	}
	return out
}

// InferenceDriver packages data, model spec, and seed for a Sampler. It
// performs no inference itself: it enforces the preconditions that make a
// sampler run well-posed, then delegates.
type InferenceDriver struct {
	Sampler Sampler
}

// NewInferenceDriver wraps a sampler backend.
func NewInferenceDriver(s Sampler) *InferenceDriver {
	return &InferenceDriver{Sampler: s}
}

// Fit validates the bundle and delegates to the sampler. All precondition
// failures are reported before any sampler invocation is attempted.
func (d *InferenceDriver) Fit(data ObservationSeries, spec *ModelSpec, seed SeedSpec, chains, iterations int) (*PosteriorSamples, error) {
	if d.Sampler == nil {
		return nil, configErrorf("sampler", "no backend configured")
	}
	if chains < 1 {
		return nil, configErrorf("chains", "need >= 1, got %d", chains)
	}
	if iterations < 1 {
		return nil, configErrorf("iterations", "need >= 1, got %d", iterations)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if err := data.Validate(spec.Horizon); err != nil {
		return nil, err
	}

	free := spec.FreeLatents()
	if missing := seed.Missing(free); len(missing) > 0 {
		return nil, configErrorf("seed", "missing entries for %s", strings.Join(missing, ", "))
	}
	// A seed entry for a variable outside the free set means someone seeded
	// a derived quantity; the engine would reject it, so fail here instead.
	known := make(map[string]struct{}, len(free))
	for _, name := range free {
		known[name] = struct{}{}
	}
	for name := range seed {
		if _, ok := known[name]; !ok {
			return nil, configErrorf("seed", "entry %q does not name a free latent variable", name)
		}
	}

	logrus.Infof("fitting %s variant: horizon=%d chains=%d iterations=%d fixed-seeds=%d",
		spec.Variant, spec.Horizon, chains, iterations, len(seed.FixedNames()))
	return d.Sampler.Sample(spec, data, seed, chains, iterations)
}

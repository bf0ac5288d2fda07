// Package mcmc is the default backend for the epi.Sampler boundary: a
// random-walk Metropolis sampler over the model's free latents. It is a
// minimal, correct reference engine, not a production MCMC system; the
// point of the boundary is that it can be swapped out without touching the
// statistical model in epi.
package mcmc

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/outbreak-sim/outbreak-sim/epi"
)

// Options configures the sampler.
type Options struct {
	Seed int64 // master seed; chain c uses the stream for SubsystemChain(c)

	// R0Step, ProbStep, RateStep are the Gaussian random-walk standard
	// deviations for R0/inflow-rate and for the two probabilities.
	// Zero values take defaults.
	R0Step   float64
	ProbStep float64
	RateStep float64
}

func (o Options) withDefaults() Options {
	if o.R0Step == 0 {
		o.R0Step = 0.1
	}
	if o.ProbStep == 0 {
		o.ProbStep = 0.02
	}
	if o.RateStep == 0 {
		o.RateStep = 0.05
	}
	return o
}

// Sampler implements epi.Sampler with Metropolis-within-Gibbs updates:
// symmetric Gaussian proposals on the parameters (out-of-support proposals
// rejected) and unit random-walk proposals on each free count latent, with
// the deterministic pipeline rebuilt from the free latents on every move.
type Sampler struct {
	opts Options
}

var _ epi.Sampler = (*Sampler)(nil)

// New creates a Sampler.
func New(opts Options) *Sampler {
	return &Sampler{opts: opts.withDefaults()}
}

// Sample runs the requested chains concurrently. Each chain owns its own
// RNG stream, latent copy, and parameter state; nothing is shared until all
// chains have completed.
func (s *Sampler) Sample(spec *epi.ModelSpec, data epi.ObservationSeries, seed epi.SeedSpec, chains, iterations int) (*epi.PosteriorSamples, error) {
	post := &epi.PosteriorSamples{Chains: make([]epi.Chain, chains)}
	errs := make([]error, chains)

	var wg sync.WaitGroup
	for c := 0; c < chains; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			prng := epi.NewPartitionedRNG(epi.NewSimulationKey(s.opts.Seed))
			rng := prng.ForSubsystem(epi.SubsystemChain(c))
			draws, err := s.runChain(spec, data, seed, iterations, rng)
			if err != nil {
				errs[c] = err
				return
			}
			post.Chains[c] = epi.Chain{Draws: draws}
		}(c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return post, nil
}

// chainState is one chain's current position.
type chainState struct {
	params epi.Parameters
	state0 epi.AgeStructuredState
	newInf []int64
	inflow []int64
	states epi.Trajectory
	logp   float64
}

func (s *Sampler) runChain(spec *epi.ModelSpec, data epi.ObservationSeries, seed epi.SeedSpec, iterations int, rng *rand.Rand) ([]epi.Draw, error) {
	ch, err := s.initChain(spec, data, seed, rng)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("chain start logp=%.3f", ch.logp)

	draws := make([]epi.Draw, 0, iterations)
	for it := 0; it < iterations; it++ {
		s.updateParams(ch, spec, data, rng)
		s.updateLatents(ch, spec, data, rng)
		draws = append(draws, epi.Draw{
			Params:               ch.params,
			CumulativeInfections: cumInfections(ch.states),
		})
	}
	return draws, nil
}

// initChain builds the starting position. Fixed seed entries are taken
// verbatim and never perturbed. Free parameters are drawn from their
// priors; free count latents start from a generative forward fill and are
// then raised just enough to satisfy the observed data's hard constraints
// (deaths cannot exceed the cohort that produces them, observed cases
// cannot exceed cumulative infections). This is the engine solving for
// the unconstrained latents that the initializer deliberately left free.
// If the fixed entries themselves conflict with the data the start has
// zero density and the model's InfeasibilityError is reported, never
// silently perturbed.
func (s *Sampler) initChain(spec *epi.ModelSpec, data epi.ObservationSeries, seed epi.SeedSpec, rng *rand.Rand) (*chainState, error) {
	ch := &chainState{}

	for _, name := range spec.ParameterNames() {
		var v float64
		if e, ok := seed[name]; ok && e.Kind == epi.SeedFixed {
			v = e.Value
		} else {
			var err error
			v, err = drawPrior(spec.Priors[name], rng)
			if err != nil {
				return nil, err
			}
		}
		setParam(&ch.params, name, v)
	}

	w := spec.Geometry.Window
	horizon := spec.Horizon
	isFixed := func(name string) (int64, bool) {
		if e, ok := seed[name]; ok && e.Kind == epi.SeedFixed {
			return int64(e.Value), true
		}
		return 0, false
	}
	// deathsNeed is the minimum size of the cohort that reaches the oldest
	// age bin on the given day.
	deathsNeed := func(day int) int64 {
		if day >= 0 && day < horizon {
			return data.DailyDeaths[day]
		}
		return 0
	}

	ch.state0 = make(epi.AgeStructuredState, w)
	for i := 0; i < w; i++ {
		if v, ok := isFixed(epi.State0Name(i)); ok {
			ch.state0[i] = v
			continue
		}
		c := poissonDraw(rng, spec.InitStateRate)
		// Free counts start at >= 1 so every infectious-window sum, and
		// with it every transition rate, stays positive at the start.
		if c < 1 && spec.InitStateRate > 0 {
			c = 1
		}
		// The bin at age i reaches the death draw on day w-1-i.
		if need := deathsNeed(w - 1 - i); c < need {
			c = need
		}
		ch.state0[i] = c
	}
	// Day-0 observation constraint: cumulative infections on day 0 are
	// exactly bin 0.
	if _, fixed := isFixed(epi.State0Name(0)); !fixed && ch.state0[0] < data.CumulativeObservedCases[0] {
		ch.state0[0] = data.CumulativeObservedCases[0]
	}

	ch.newInf = make([]int64, horizon)
	ch.newInf[0] = ch.state0[0]
	if spec.WithInflow() {
		ch.inflow = make([]int64, horizon)
	}

	// Forward fill day by day, raising the free component of each day's
	// bin 0 to cover the death cohort it will become and the running
	// observed-case floor.
	states := make(epi.Trajectory, horizon)
	states[0] = ch.state0.Clone()
	windowLen := float64(spec.Geometry.WindowLength())
	cumInf := ch.state0[0]
	for t := 0; t < horizon-1; t++ {
		day := t + 1
		newInfFixed := false
		if v, ok := isFixed(epi.NewInfectionsName(day)); ok {
			ch.newInf[day] = v
			newInfFixed = true
		} else {
			var infectious int64
			for a := spec.Geometry.InfectiousLow; a <= spec.Geometry.InfectiousHigh; a++ {
				infectious += states[t][a]
			}
			draw := poissonDraw(rng, float64(infectious)*ch.params.R0/windowLen)
			if draw < 1 {
				draw = 1
			}
			ch.newInf[day] = draw
		}
		inflowFixed := false
		if spec.WithInflow() {
			if v, ok := isFixed(epi.InflowName(day)); ok {
				ch.inflow[day] = v
				inflowFixed = true
			} else {
				draw := poissonDraw(rng, ch.params.InflowRate)
				if draw < 1 {
					draw = 1
				}
				ch.inflow[day] = draw
			}
		}

		// Floor for this day's bin 0: it must cover the death cohort it
		// becomes on day day+w-1 and keep cumulative infections at or above
		// the observed cases so far.
		required := deathsNeed(day + w - 1)
		if m := data.CumulativeObservedCases[day] - cumInf; m > required {
			required = m
		}
		bin0 := ch.newInf[day]
		if spec.WithInflow() {
			bin0 += ch.inflow[day]
		}
		if bin0 < required {
			raise := required - bin0
			switch {
			case spec.WithInflow() && !inflowFixed:
				ch.inflow[day] += raise
			case !newInfFixed:
				ch.newInf[day] += raise
			}
			// Both components fixed: leave the conflict for LogJoint to
			// locate and report.
		}

		next := make(epi.AgeStructuredState, w)
		copy(next[1:], states[t][:w-1])
		next[0] = ch.newInf[day]
		if spec.WithInflow() {
			next[0] += ch.inflow[day]
		}
		states[day] = next
		cumInf += next[0]
	}
	ch.states = states

	logp, err := spec.LogJoint(ch.params, epi.LatentState{States: ch.states, NewInfections: ch.newInf, Inflow: ch.inflow}, data)
	if err != nil {
		return nil, err
	}
	if math.IsInf(logp, -1) {
		// LogJoint returns an error alongside -Inf; reaching here means an
		// underflow without a located variable.
		return nil, &epi.InfeasibilityError{Variable: "joint", Day: 0}
	}
	ch.logp = logp
	return ch, nil
}

// updateParams performs one Metropolis pass over the parameters.
func (s *Sampler) updateParams(ch *chainState, spec *epi.ModelSpec, data epi.ObservationSeries, rng *rand.Rand) {
	for _, name := range spec.ParameterNames() {
		step := s.stepFor(name)
		proposal := ch.params
		setParam(&proposal, name, paramOf(ch.params, name)+rng.NormFloat64()*step)
		if !inSupport(name, paramOf(proposal, name)) {
			continue
		}
		logp, err := spec.LogJoint(proposal, epi.LatentState{States: ch.states, NewInfections: ch.newInf, Inflow: ch.inflow}, data)
		if err != nil || math.IsInf(logp, -1) {
			continue
		}
		if accept(rng, logp-ch.logp) {
			ch.params = proposal
			ch.logp = logp
		}
	}
}

// stepFor returns the proposal standard deviation for a parameter.
func (s *Sampler) stepFor(name string) float64 {
	switch name {
	case epi.ParamR0:
		return s.opts.R0Step
	case epi.ParamInflowRate:
		return s.opts.RateStep
	}
	return s.opts.ProbStep
}

// updateLatents performs one single-site pass over the free count latents.
// Each move perturbs one draw by +-1, rebuilds the deterministic pipeline,
// and accepts or rejects on the joint density.
func (s *Sampler) updateLatents(ch *chainState, spec *epi.ModelSpec, data epi.ObservationSeries, rng *rand.Rand) {
	for i := range ch.state0 {
		old := ch.state0[i]
		ch.state0[i] = old + unitStep(rng)
		if ch.state0[i] < 0 || !s.tryMove(ch, spec, data, rng) {
			ch.state0[i] = old
		}
	}
	for t := 1; t < spec.Horizon; t++ {
		old := ch.newInf[t]
		ch.newInf[t] = old + unitStep(rng)
		if ch.newInf[t] < 0 || !s.tryMove(ch, spec, data, rng) {
			ch.newInf[t] = old
		}
	}
	if spec.WithInflow() {
		for t := 1; t < spec.Horizon; t++ {
			old := ch.inflow[t]
			ch.inflow[t] = old + unitStep(rng)
			if ch.inflow[t] < 0 || !s.tryMove(ch, spec, data, rng) {
				ch.inflow[t] = old
			}
		}
	}
	// state0[0] doubles as newInf[0]; keep the series aligned after moves.
	ch.newInf[0] = ch.state0[0]
}

// tryMove rebuilds the pipeline from the (already perturbed) free latents
// and runs the Metropolis acceptance test. It reports whether the move was
// accepted; on rejection the caller restores the perturbed latent and the
// chain state is untouched.
func (s *Sampler) tryMove(ch *chainState, spec *epi.ModelSpec, data epi.ObservationSeries, rng *rand.Rand) bool {
	ch.newInf[0] = ch.state0[0]
	states, err := spec.BuildStates(ch.state0, ch.newInf, ch.inflow)
	if err != nil {
		return false
	}
	logp, err := spec.LogJoint(ch.params, epi.LatentState{States: states, NewInfections: ch.newInf, Inflow: ch.inflow}, data)
	if err != nil || math.IsInf(logp, -1) {
		return false
	}
	if !accept(rng, logp-ch.logp) {
		return false
	}
	ch.states = states
	ch.logp = logp
	return true
}

// === helpers ===

func accept(rng *rand.Rand, logRatio float64) bool {
	if logRatio >= 0 {
		return true
	}
	return math.Log(rng.Float64()) < logRatio
}

func unitStep(rng *rand.Rand) int64 {
	if rng.Intn(2) == 0 {
		return -1
	}
	return 1
}

func poissonDraw(rng *rand.Rand, lambda float64) int64 {
	if lambda <= 0 {
		return 0
	}
	return int64(distuv.Poisson{Lambda: lambda, Src: rng}.Rand())
}

// drawPrior samples a starting value from a prior, redrawing boundary hits
// (possible for near-improper hyperparameters) so the start has positive
// prior density.
func drawPrior(p epi.PriorSpec, rng *rand.Rand) (float64, error) {
	for attempt := 0; attempt < 100; attempt++ {
		var v float64
		switch p.Dist {
		case "gamma":
			v = distuv.Gamma{Alpha: p.Alpha, Beta: p.Beta, Src: rng}.Rand()
			if v > 0 && !math.IsInf(v, 1) {
				return v, nil
			}
		case "beta":
			v = distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: rng}.Rand()
			if v > 0 && v < 1 {
				return v, nil
			}
		default:
			return 0, &epi.ConfigError{Field: "prior", Msg: "unknown distribution " + p.Dist}
		}
	}
	return 0, &epi.InfeasibilityError{Variable: "prior draw", Day: 0}
}

func paramOf(p epi.Parameters, name string) float64 {
	switch name {
	case epi.ParamR0:
		return p.R0
	case epi.ParamMortalityProb:
		return p.MortalityProb
	case epi.ParamObservationProb:
		return p.ObservationProb
	case epi.ParamInflowRate:
		return p.InflowRate
	}
	return math.NaN()
}

func setParam(p *epi.Parameters, name string, v float64) {
	switch name {
	case epi.ParamR0:
		p.R0 = v
	case epi.ParamMortalityProb:
		p.MortalityProb = v
	case epi.ParamObservationProb:
		p.ObservationProb = v
	case epi.ParamInflowRate:
		p.InflowRate = v
	}
}

func inSupport(name string, v float64) bool {
	switch name {
	case epi.ParamR0, epi.ParamInflowRate:
		return v > 0
	}
	return v > 0 && v < 1
}

func cumInfections(states epi.Trajectory) []int64 {
	out := make([]int64, len(states))
	var run int64
	for t, st := range states {
		run += st[0]
		out[t] = run
	}
	return out
}

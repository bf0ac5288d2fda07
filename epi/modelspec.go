package epi

import (
	"fmt"
	"math"
)

// Parameter names, shared by priors, seeds, and posterior output.
const (
	ParamR0              = "r0"
	ParamMortalityProb   = "mortality_prob"
	ParamObservationProb = "observation_prob"
	ParamInflowRate      = "inflow_rate"
)

// Variant selects between the two published model forms.
type Variant string

const (
	// VariantBase is the model with no external inflow.
	VariantBase Variant = "base"
	// VariantInflow adds the per-day external Poisson inflow term.
	VariantInflow Variant = "inflow"
)

// PriorSpec is one prior distribution, as data. Dist is "gamma"
// (Alpha=shape, Beta=rate) or "beta" (Alpha, Beta shape parameters).
type PriorSpec struct {
	Dist  string  `yaml:"dist"`
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// logPDF evaluates the prior log density at x.
func (p PriorSpec) logPDF(x float64) float64 {
	switch p.Dist {
	case "gamma":
		return gammaLogPDF(p.Alpha, p.Beta, x)
	case "beta":
		return betaLogPDF(p.Alpha, p.Beta, x)
	}
	return math.Inf(-1)
}

// ModelSpec is the declarative description of the epidemic state-space
// model: geometry, horizon, priors, and variant. It performs no sampling
// itself; Simulate realizes it stochastically and LogJoint scores a
// realization, and the two must stay mathematically consistent. Swapping
// Sampler backends never changes this statistical model.
type ModelSpec struct {
	Variant  Variant  `yaml:"variant"`
	Geometry Geometry `yaml:"-"`
	Horizon  int      `yaml:"horizon"`

	// InitStateRate is the Poisson rate of the day-0 prior: each age bin of
	// the initial pipeline is independently Poisson(InitStateRate).
	InitStateRate float64 `yaml:"init_state_rate"`

	Priors map[string]PriorSpec `yaml:"priors"`
}

// NewBaseModel returns the reference base-variant spec: no inflow, day-0
// bins Poisson(1), and the published prior hyperparameters.
func NewBaseModel(geom Geometry, horizon int) *ModelSpec {
	return &ModelSpec{
		Variant:       VariantBase,
		Geometry:      geom,
		Horizon:       horizon,
		InitStateRate: 1.0,
		Priors: map[string]PriorSpec{
			ParamR0:              {Dist: "gamma", Alpha: 0.01, Beta: 0.01},
			ParamMortalityProb:   {Dist: "beta", Alpha: 0.01, Beta: 0.9},
			ParamObservationProb: {Dist: "beta", Alpha: 0.5, Beta: 0.5},
		},
	}
}

// NewInflowModel returns the extended-variant spec: identical to the base
// model except for the additional inflow_rate prior and a sparser day-0
// prior (Poisson(0.1)).
func NewInflowModel(geom Geometry, horizon int) *ModelSpec {
	m := NewBaseModel(geom, horizon)
	m.Variant = VariantInflow
	m.InitStateRate = 0.1
	m.Priors[ParamInflowRate] = PriorSpec{Dist: "gamma", Alpha: 0.01, Beta: 0.01}
	return m
}

// WithInflow reports whether the spec is the extended variant.
func (m *ModelSpec) WithInflow() bool {
	return m.Variant == VariantInflow
}

// ParameterNames returns the free parameter names of the variant, in stable
// order.
func (m *ModelSpec) ParameterNames() []string {
	names := []string{ParamR0, ParamMortalityProb, ParamObservationProb}
	if m.WithInflow() {
		names = append(names, ParamInflowRate)
	}
	return names
}

// Validate checks structural consistency of the spec.
func (m *ModelSpec) Validate() error {
	switch m.Variant {
	case VariantBase, VariantInflow:
	default:
		return configErrorf("spec.variant", "unknown variant %q", m.Variant)
	}
	if m.Horizon < 2 {
		return configErrorf("spec.horizon", "need >= 2 days, got %d", m.Horizon)
	}
	if err := m.Geometry.Validate(); err != nil {
		return err
	}
	if m.InitStateRate < 0 || math.IsNaN(m.InitStateRate) {
		return domainError("spec.init_state_rate", m.InitStateRate)
	}
	for _, name := range m.ParameterNames() {
		prior, ok := m.Priors[name]
		if !ok {
			return configErrorf("spec.priors", "missing prior for %s", name)
		}
		if prior.Dist != "gamma" && prior.Dist != "beta" {
			return configErrorf("spec.priors", "%s: unknown distribution %q", name, prior.Dist)
		}
		if prior.Alpha <= 0 || prior.Beta <= 0 {
			return configErrorf("spec.priors", "%s: hyperparameters must be positive, got (%v, %v)", name, prior.Alpha, prior.Beta)
		}
	}
	return nil
}

// === Latent variable naming ===

// State0Name names the day-0 pipeline bin i latent.
func State0Name(i int) string { return fmt.Sprintf("state0[%d]", i) }

// NewInfectionsName names the day-t Poisson transition latent (t >= 1).
func NewInfectionsName(t int) string { return fmt.Sprintf("new_infections[%d]", t) }

// InflowName names the day-t external-inflow latent (t >= 1, inflow variant).
func InflowName(t int) string { return fmt.Sprintf("inflow[%d]", t) }

// FreeLatents lists every genuinely stochastic latent variable of the model,
// in stable order: parameters, day-0 bins, per-day transition draws, and in
// the inflow variant the per-day inflow draws. Everything else in the graph
// (aged bins, cumulative sums) is deterministic and must never be seeded.
func (m *ModelSpec) FreeLatents() []string {
	names := m.ParameterNames()
	for i := 0; i < m.Geometry.Window; i++ {
		names = append(names, State0Name(i))
	}
	for t := 1; t < m.Horizon; t++ {
		names = append(names, NewInfectionsName(t))
	}
	if m.WithInflow() {
		for t := 1; t < m.Horizon; t++ {
			names = append(names, InflowName(t))
		}
	}
	return names
}

// === Dependency graph ===

// NodeRole classifies a node in the model's dependency graph.
type NodeRole string

const (
	RoleParameter     NodeRole = "parameter"
	RoleLatent        NodeRole = "latent"
	RoleDeterministic NodeRole = "deterministic"
	RoleObserved      NodeRole = "observed"
)

// Node is one vertex of the unrolled dependency graph. Dist is the
// distribution family for stochastic nodes ("gamma", "beta", "poisson",
// "binomial") or the deterministic rule ("shift", "prefix_sum") otherwise.
type Node struct {
	Name    string
	Role    NodeRole
	Dist    string
	Parents []string
	Hyper   []float64 // fixed hyperparameters, where the node has any
}

func stateName(t int) string { return fmt.Sprintf("state[%d]", t) }
func cumName(t int) string   { return fmt.Sprintf("cum_infections[%d]", t) }

// Nodes renders the full unrolled dependency graph for the spec's horizon.
// The graph is data: it can be inspected, diffed between variants, and
// validated without executing anything.
func (m *ModelSpec) Nodes() []Node {
	var nodes []Node
	for _, name := range m.ParameterNames() {
		prior := m.Priors[name]
		nodes = append(nodes, Node{
			Name:  name,
			Role:  RoleParameter,
			Dist:  prior.Dist,
			Hyper: []float64{prior.Alpha, prior.Beta},
		})
	}

	state0Parents := make([]string, 0, m.Geometry.Window)
	for i := 0; i < m.Geometry.Window; i++ {
		nodes = append(nodes, Node{
			Name:  State0Name(i),
			Role:  RoleLatent,
			Dist:  "poisson",
			Hyper: []float64{m.InitStateRate},
		})
		state0Parents = append(state0Parents, State0Name(i))
	}
	nodes = append(nodes, Node{
		Name:    stateName(0),
		Role:    RoleDeterministic,
		Dist:    "shift",
		Parents: state0Parents,
	})
	nodes = append(nodes, Node{
		Name:    cumName(0),
		Role:    RoleDeterministic,
		Dist:    "prefix_sum",
		Parents: []string{stateName(0)},
	})

	for t := 1; t < m.Horizon; t++ {
		nodes = append(nodes, Node{
			Name:    NewInfectionsName(t),
			Role:    RoleLatent,
			Dist:    "poisson",
			Parents: []string{ParamR0, stateName(t - 1)},
		})
		stateParents := []string{stateName(t - 1), NewInfectionsName(t)}
		if m.WithInflow() {
			nodes = append(nodes, Node{
				Name:    InflowName(t),
				Role:    RoleLatent,
				Dist:    "poisson",
				Parents: []string{ParamInflowRate},
			})
			stateParents = append(stateParents, InflowName(t))
		}
		nodes = append(nodes, Node{
			Name:    stateName(t),
			Role:    RoleDeterministic,
			Dist:    "shift",
			Parents: stateParents,
		})
		nodes = append(nodes, Node{
			Name:    cumName(t),
			Role:    RoleDeterministic,
			Dist:    "prefix_sum",
			Parents: []string{cumName(t - 1), stateName(t)},
		})
	}

	for t := 0; t < m.Horizon; t++ {
		nodes = append(nodes, Node{
			Name:    fmt.Sprintf("deaths[%d]", t),
			Role:    RoleObserved,
			Dist:    "binomial",
			Parents: []string{stateName(t), ParamMortalityProb},
		})
		nodes = append(nodes, Node{
			Name:    fmt.Sprintf("observed_cases[%d]", t),
			Role:    RoleObserved,
			Dist:    "binomial",
			Parents: []string{cumName(t), ParamObservationProb},
		})
	}
	return nodes
}

// === Joint density ===

// LatentState is one concrete realization of every latent in the graph: the
// full trajectory plus the separated stochastic draw series the trajectory
// was combined from. In the base variant Inflow is nil and NewInfections[t]
// equals States[t][0].
type LatentState struct {
	States        Trajectory
	NewInfections []int64
	Inflow        []int64
}

// LatentFromResult wraps a simulation Result as a LatentState without
// copying. The Result stays the owner of the slices; LatentState is a
// read-only view.
func LatentFromResult(res *Result) LatentState {
	return LatentState{States: res.States, NewInfections: res.NewInfections, Inflow: res.Inflow}
}

// BuildStates reconstructs the deterministic trajectory implied by the free
// latents: day-0 bins plus the per-day draw series. This is the "shift"
// rule of the graph executed as code, used by samplers that move in
// free-latent space.
func (m *ModelSpec) BuildStates(state0 AgeStructuredState, newInfections, inflow []int64) (Trajectory, error) {
	w := m.Geometry.Window
	if len(state0) != w {
		return nil, configErrorf("state0", "length %d, want pipeline width %d", len(state0), w)
	}
	if len(newInfections) != m.Horizon {
		return nil, configErrorf("new_infections", "length %d, want horizon %d", len(newInfections), m.Horizon)
	}
	if m.WithInflow() && len(inflow) != m.Horizon {
		return nil, configErrorf("inflow", "length %d, want horizon %d", len(inflow), m.Horizon)
	}
	states := make(Trajectory, m.Horizon)
	states[0] = state0.Clone()
	for t := 0; t < m.Horizon-1; t++ {
		next := make(AgeStructuredState, w)
		copy(next[1:], states[t][:w-1])
		next[0] = newInfections[t+1]
		if m.WithInflow() {
			next[0] += inflow[t+1]
		}
		states[t+1] = next
	}
	return states, nil
}

// LogJoint evaluates the joint log density of (params, latents, data) under
// the spec: priors, initial-state prior, per-day Poisson transitions (and
// inflow draws in the extended variant), Binomial deaths, and the per-day
// independent Binomial observation of the cumulative infection count. The
// conditionals mirror Simulate exactly.
//
// A structurally inconsistent latent state (shift invariant broken, draw
// series disagreeing with bin 0) or any zero-probability conditional yields
// (-Inf, *InfeasibilityError) locating the first offending variable and day.
func (m *ModelSpec) LogJoint(params Parameters, ls LatentState, obs ObservationSeries) (float64, error) {
	if err := m.Validate(); err != nil {
		return math.Inf(-1), err
	}
	if err := params.Validate(m.WithInflow()); err != nil {
		return math.Inf(-1), err
	}
	if err := obs.Validate(m.Horizon); err != nil {
		return math.Inf(-1), err
	}
	if len(ls.States) != m.Horizon {
		return math.Inf(-1), configErrorf("latent.states", "length %d, want horizon %d", len(ls.States), m.Horizon)
	}
	if len(ls.NewInfections) != m.Horizon {
		return math.Inf(-1), configErrorf("latent.new_infections", "length %d, want horizon %d", len(ls.NewInfections), m.Horizon)
	}
	if m.WithInflow() && len(ls.Inflow) != m.Horizon {
		return math.Inf(-1), configErrorf("latent.inflow", "length %d, want horizon %d", len(ls.Inflow), m.Horizon)
	}
	w := m.Geometry.Window
	for t, st := range ls.States {
		if len(st) != w {
			return math.Inf(-1), configErrorf("latent.states", "day %d has width %d, want %d", t, len(st), w)
		}
	}

	var logp float64

	for _, name := range m.ParameterNames() {
		lp := m.Priors[name].logPDF(paramValue(params, name))
		if math.IsInf(lp, -1) {
			return math.Inf(-1), &InfeasibilityError{Variable: name, Day: 0}
		}
		logp += lp
	}

	for i, c := range ls.States[0] {
		lp := poissonLogPMF(m.InitStateRate, c)
		if math.IsInf(lp, -1) {
			return math.Inf(-1), &InfeasibilityError{Variable: State0Name(i), Day: 0}
		}
		logp += lp
	}
	if ls.NewInfections[0] != ls.States[0][0] {
		return math.Inf(-1), &InfeasibilityError{Variable: NewInfectionsName(0), Day: 0}
	}

	windowLen := float64(m.Geometry.WindowLength())
	for t := 0; t < m.Horizon-1; t++ {
		cur, next := ls.States[t], ls.States[t+1]
		for i := 1; i < w; i++ {
			if next[i] != cur[i-1] {
				return math.Inf(-1), &InfeasibilityError{Variable: fmt.Sprintf("state[%d][%d]", t+1, i), Day: t + 1}
			}
		}
		combined := ls.NewInfections[t+1]
		if m.WithInflow() {
			combined += ls.Inflow[t+1]
		}
		if next[0] != combined {
			return math.Inf(-1), &InfeasibilityError{Variable: fmt.Sprintf("state[%d][0]", t+1), Day: t + 1}
		}

		var infectious int64
		for a := m.Geometry.InfectiousLow; a <= m.Geometry.InfectiousHigh; a++ {
			infectious += cur[a]
		}
		lambda := float64(infectious) * params.R0 / windowLen
		lp := poissonLogPMF(lambda, ls.NewInfections[t+1])
		if math.IsInf(lp, -1) {
			return math.Inf(-1), &InfeasibilityError{Variable: NewInfectionsName(t + 1), Day: t + 1}
		}
		logp += lp

		if m.WithInflow() {
			lp := poissonLogPMF(params.InflowRate, ls.Inflow[t+1])
			if math.IsInf(lp, -1) {
				return math.Inf(-1), &InfeasibilityError{Variable: InflowName(t + 1), Day: t + 1}
			}
			logp += lp
		}
	}

	deathAge := m.Geometry.DeathAge()
	var cumInf int64
	for t := 0; t < m.Horizon; t++ {
		lp := binomialLogPMF(ls.States[t][deathAge], params.MortalityProb, obs.DailyDeaths[t])
		if math.IsInf(lp, -1) {
			return math.Inf(-1), &InfeasibilityError{Variable: fmt.Sprintf("deaths[%d]", t), Day: t}
		}
		logp += lp

		cumInf += ls.States[t][0]
		lp = binomialLogPMF(cumInf, params.ObservationProb, obs.CumulativeObservedCases[t])
		if math.IsInf(lp, -1) {
			return math.Inf(-1), &InfeasibilityError{Variable: fmt.Sprintf("observed_cases[%d]", t), Day: t}
		}
		logp += lp
	}

	return logp, nil
}

func paramValue(p Parameters, name string) float64 {
	switch name {
	case ParamR0:
		return p.R0
	case ParamMortalityProb:
		return p.MortalityProb
	case ParamObservationProb:
		return p.ObservationProb
	case ParamInflowRate:
		return p.InflowRate
	}
	return math.NaN()
}

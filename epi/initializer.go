package epi

import "sort"

// SeedKind tags a SeedEntry as a concrete starting value or as left to the
// sampler.
type SeedKind string

const (
	// SeedFixed supplies a concrete starting value for a free latent.
	SeedFixed SeedKind = "fixed"
	// SeedFree marks a latent unconstrained: the sampler derives or draws
	// its own starting value.
	SeedFree SeedKind = "free"
)

// SeedEntry is one latent variable's initialization instruction.
type SeedEntry struct {
	Kind  SeedKind
	Value float64 // meaningful only when Kind == SeedFixed
}

// FixedSeed returns a fixed-value entry.
func FixedSeed(v float64) SeedEntry { return SeedEntry{Kind: SeedFixed, Value: v} }

// FreeSeed returns an unconstrained entry.
func FreeSeed() SeedEntry { return SeedEntry{Kind: SeedFree} }

// SeedSpec maps every free latent variable of a model to its initialization
// instruction. A variable absent from the map is a coverage error, caught by
// the driver before the sampler runs.
type SeedSpec map[string]SeedEntry

// FixedNames returns the names of all fixed entries, sorted.
func (s SeedSpec) FixedNames() []string {
	var names []string
	for name, e := range s {
		if e.Kind == SeedFixed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Missing returns the required names not covered by the spec, sorted.
func (s SeedSpec) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := s[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// DeriveSeed produces a feasible sampler starting point from a reference
// forward run: a SeedSpec covering every free latent of the model, with
// concrete values only where seeding cannot conflict with the sampler's own
// consistency enforcement.
//
// Base variant: only the very first day's first bin is seeded. Every other
// pipeline entry is deterministically derivable via the shift rule, and
// handing the sampler a value for a derived quantity makes it reject the
// seed, so those are marked free.
//
// Inflow variant: the per-day new-infection draws are seeded (they are the
// separately-drawn component), while the combined bin-0 values and the
// inflow draws are left free: seeding a quantity that the graph decomposes
// into independent draws elsewhere over-constrains it.
//
// Parameters are always left free: their priors give any prior draw
// positive density, and the reference trajectory does not determine them.
func DeriveSeed(spec *ModelSpec, ref *Result) (SeedSpec, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(ref.States) != spec.Horizon {
		return nil, configErrorf("reference.states", "length %d, want horizon %d", len(ref.States), spec.Horizon)
	}
	w := spec.Geometry.Window
	for t, st := range ref.States {
		if len(st) != w {
			return nil, configErrorf("reference.states", "day %d has width %d, want %d", t, len(st), w)
		}
	}
	if len(ref.NewInfections) != spec.Horizon {
		return nil, configErrorf("reference.new_infections", "length %d, want horizon %d", len(ref.NewInfections), spec.Horizon)
	}
	// The reference must itself satisfy the shift rule, or the seed would
	// encode an impossible pipeline.
	for t := 0; t < spec.Horizon-1; t++ {
		for i := 1; i < w; i++ {
			if ref.States[t+1][i] != ref.States[t][i-1] {
				return nil, &InfeasibilityError{Variable: stateName(t + 1), Day: t + 1}
			}
		}
	}

	seed := make(SeedSpec, len(spec.FreeLatents()))
	for _, name := range spec.FreeLatents() {
		seed[name] = FreeSeed()
	}

	if spec.WithInflow() {
		for t := 1; t < spec.Horizon; t++ {
			seed[NewInfectionsName(t)] = FixedSeed(float64(ref.NewInfections[t]))
		}
	} else {
		seed[State0Name(0)] = FixedSeed(float64(ref.States[0][0]))
	}
	return seed, nil
}

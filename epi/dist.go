package epi

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Count-distribution helpers shared by the simulator and the model spec's
// joint density. Degenerate parameter values (zero rate, zero trials,
// boundary probabilities) are handled here before delegating to distuv, so
// every caller gets exact counts at the boundaries instead of NaNs, and a
// sampled count can never be negative.

// poissonRand draws a count from Poisson(lambda).
func poissonRand(rng *rand.Rand, lambda float64) (int64, error) {
	if lambda < 0 || math.IsNaN(lambda) {
		return 0, domainError("poisson rate", lambda)
	}
	if lambda == 0 {
		return 0, nil
	}
	return int64(distuv.Poisson{Lambda: lambda, Src: rng}.Rand()), nil
}

// binomialRand draws a count from Binomial(n, p).
func binomialRand(rng *rand.Rand, n int64, p float64) (int64, error) {
	if n < 0 {
		return 0, domainError("binomial trials", float64(n))
	}
	if p < 0 || p > 1 || math.IsNaN(p) {
		return 0, domainError("binomial probability", p)
	}
	switch {
	case n == 0 || p == 0:
		return 0, nil
	case p == 1:
		return n, nil
	}
	return int64(distuv.Binomial{N: float64(n), P: p, Src: rng}.Rand()), nil
}

// poissonLogPMF evaluates log P(K = k) for K ~ Poisson(lambda).
func poissonLogPMF(lambda float64, k int64) float64 {
	if k < 0 {
		return math.Inf(-1)
	}
	if lambda == 0 {
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	return distuv.Poisson{Lambda: lambda}.LogProb(float64(k))
}

// binomialLogPMF evaluates log P(K = k) for K ~ Binomial(n, p).
func binomialLogPMF(n int64, p float64, k int64) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	if p == 0 {
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	}
	if p == 1 {
		if k == n {
			return 0
		}
		return math.Inf(-1)
	}
	if n == 0 {
		// k must be 0 here (0 <= k <= n).
		return 0
	}
	return distuv.Binomial{N: float64(n), P: p}.LogProb(float64(k))
}

// gammaLogPDF evaluates the log density of Gamma(shape, rate) at x.
func gammaLogPDF(shape, rate, x float64) float64 {
	if x <= 0 {
		return math.Inf(-1)
	}
	return distuv.Gamma{Alpha: shape, Beta: rate}.LogProb(x)
}

// betaLogPDF evaluates the log density of Beta(a, b) at x.
func betaLogPDF(a, b, x float64) float64 {
	if x <= 0 || x >= 1 {
		// The reference priors concentrate mass near the boundaries but the
		// density support stays open; exact 0/1 values get zero density.
		return math.Inf(-1)
	}
	return distuv.Beta{Alpha: a, Beta: b}.LogProb(x)
}

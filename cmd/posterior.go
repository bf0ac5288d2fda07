package cmd

import (
	"fmt"

	"github.com/outbreak-sim/outbreak-sim/epi"
)

// printPosterior displays pooled posterior summaries for the free
// parameters of the fitted model.
func printPosterior(spec *epi.ModelSpec, post *epi.PosteriorSamples) {
	names := spec.ParameterNames()
	summary := post.Summary(names)

	fmt.Println("=== Posterior Summary ===")
	fmt.Printf("%-18s %10s %10s %10s %10s %10s\n", "parameter", "mean", "sd", "q05", "median", "q95")
	for _, name := range names {
		s, ok := summary[name]
		if !ok {
			continue
		}
		fmt.Printf("%-18s %10.4f %10.4f %10.4f %10.4f %10.4f\n", name, s.Mean, s.StdDev, s.Q05, s.Median, s.Q95)
	}
	fmt.Printf("Chains               : %d\n", len(post.Chains))
	if len(post.Chains) > 0 {
		fmt.Printf("Draws per chain      : %d\n", len(post.Chains[0].Draws))
	}
}

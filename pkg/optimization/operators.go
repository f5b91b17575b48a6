package optimization

import (
	"math/rand"

	"github.com/quantforge/backtest-engine/pkg/params"
)

// tournamentSelect picks the fittest of k random individuals.
func tournamentSelect(population []*Individual, k int, rng *rand.Rand) *Individual {
	best := population[rng.Intn(len(population))]
	for i := 1; i < k; i++ {
		candidate := population[rng.Intn(len(population))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best
}

// crossover builds a child by uniform gene mixing. With probability
// 1 - rate the child is a plain copy of the first parent. Numeric genes
// are snapped back onto their step grid to absorb float drift.
func crossover(p1, p2 *Individual, domains []params.Domain, rate float64, rng *rand.Rand) *Individual {
	child := &Individual{Params: p1.Params.Clone()}
	if rng.Float64() >= rate {
		return child
	}
	for _, d := range domains {
		if rng.Float64() < 0.5 {
			child.Params[d.Name] = p2.Params[d.Name]
		}
		if d.Kind == params.KindNumber {
			child.Params[d.Name] = d.Snap(child.Params.Number(d.Name, d.Min))
		}
	}
	return child
}

// mutate resamples each gene from its domain with the given per-gene
// probability. A mutated individual needs re-evaluation.
func mutate(ind *Individual, domains []params.Domain, rate float64, rng *rand.Rand) {
	for _, d := range domains {
		if rng.Float64() < rate {
			ind.Params[d.Name] = d.Sample(rng)
			ind.evaluated = false
			ind.Result = nil
			ind.Fitness = 0
		}
	}
}

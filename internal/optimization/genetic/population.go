package genetic

import (
	"math/rand"
	"sort"

	apperrors "github.com/copyleftdev/gridplan/internal/errors"
)

// Gene is one candidate: a bounded-length integer vector and its score.
type Gene struct {
	Values []int
	Score  float64
	Scored bool
}

func (g *Gene) clone() *Gene {
	return &Gene{Values: append([]int(nil), g.Values...), Score: g.Score, Scored: g.Scored}
}

// randInt returns a uniform integer in [lo, hi].
func randInt(rng *rand.Rand, lo, hi int) int {
	return lo + rng.Intn(hi-lo+1)
}

// grow gives g a random length and random values, clearing its score.
func grow(rng *rand.Rand, cfg *Config) *Gene {
	n := randInt(rng, cfg.MinLen, cfg.MaxLen)
	g := &Gene{Values: make([]int, n)}
	for i := range g.Values {
		if cfg.StartValuesMin != nil {
			g.Values[i] = randInt(rng, cfg.StartValuesMin[i], cfg.StartValuesMax[i])
			continue
		}
		g.Values[i] = randInt(rng, cfg.MinParamVal, cfg.MaxParamVal)
	}
	return g
}

// Population is the current generation.
type Population struct {
	Genes []*Gene
}

func newPopulation(rng *rand.Rand, cfg *Config) *Population {
	p := &Population{Genes: make([]*Gene, cfg.PopSize)}
	for i := range p.Genes {
		p.Genes[i] = grow(rng, cfg)
	}
	if cfg.StartGene != nil {
		p.Genes[0] = &Gene{Values: append([]int(nil), cfg.StartGene...)}
	}
	return p
}

func (p *Population) values() [][]int {
	out := make([][]int, len(p.Genes))
	for i, g := range p.Genes {
		out[i] = g.Values
	}
	return out
}

// mutate replaces each position with probability BaseMute and resizes each
// gene with probability GeneMute, truncating or padding with random values.
func (p *Population) mutate(rng *rand.Rand, cfg *Config) {
	for _, g := range p.Genes {
		for j := range g.Values {
			if rng.Float64() < cfg.BaseMute {
				g.Values[j] = randInt(rng, cfg.MinParamVal, cfg.MaxParamVal)
				g.Scored = false
			}
		}
		if rng.Float64() < cfg.GeneMute {
			n := randInt(rng, cfg.MinLen, cfg.MaxLen)
			if len(g.Values) >= n {
				g.Values = g.Values[:n:n]
			} else {
				for len(g.Values) < n {
					g.Values = append(g.Values, randInt(rng, cfg.MinParamVal, cfg.MaxParamVal))
				}
			}
			g.Scored = false
		}
	}
}

// best returns the index of the highest-scoring gene, the first on ties.
func (p *Population) best() int {
	idx := -1
	for i, g := range p.Genes {
		if idx < 0 || g.Score > p.Genes[idx].Score {
			idx = i
		}
	}
	return idx
}

// CullProbability is the chance that the gene at rank i (0 is best) dies, for
// a configured population size n and mortality mort. It exceeds 1 for the
// worst ranks when mort is large enough, which always culls them.
func CullProbability(i, n int, mort float64) float64 {
	nf := float64(n)
	return (mort / 10.5) * ((19*nf-1)/((nf-1)*(nf-1))*float64(i) + 1)
}

// cull sorts by descending score, removes genes by rank probability and
// shuffles the survivors. It returns the number removed.
func (p *Population) cull(rng *rand.Rand, cfg *Config) (int, error) {
	const op = "genetic.Population.cull"
	if len(p.Genes) == 0 {
		return 0, apperrors.Algorithm(op, "population is empty before culling")
	}

	sort.SliceStable(p.Genes, func(a, b int) bool {
		return p.Genes[a].Score > p.Genes[b].Score
	})

	survivors := p.Genes[:0]
	culled := 0
	for i, g := range p.Genes {
		if rng.Float64() < CullProbability(i, cfg.PopSize, cfg.Mort) {
			culled++
			continue
		}
		survivors = append(survivors, g)
	}
	for i := len(survivors); i < len(p.Genes); i++ {
		p.Genes[i] = nil
	}
	p.Genes = survivors

	if len(p.Genes) == 0 {
		return culled, apperrors.Algorithm(op, "culling removed all %d genes (mort %g)", culled, cfg.Mort)
	}
	rng.Shuffle(len(p.Genes), func(a, b int) {
		p.Genes[a], p.Genes[b] = p.Genes[b], p.Genes[a]
	})
	return culled, nil
}

// breed refills the population to PopSize with children of random pairs.
// Parents are drawn with replacement from everything present, including
// children already added.
func (p *Population) breed(rng *rand.Rand, cfg *Config) error {
	if len(p.Genes) == 0 {
		return apperrors.Algorithm("genetic.Population.breed", "population is empty before breeding")
	}
	for len(p.Genes) < cfg.PopSize {
		mum := p.Genes[rng.Intn(len(p.Genes))]
		dad := p.Genes[rng.Intn(len(p.Genes))]
		var child []int
		if len(mum.Values) < len(dad.Values) {
			child = PairList(rng, dad.Values, mum.Values)
		} else {
			child = PairList(rng, mum.Values, dad.Values)
		}
		p.Genes = append(p.Genes, &Gene{Values: child})
	}
	return nil
}

// PairList crosses tall with the no-longer short. Half the time the child
// has tall's length, taking short's value with probability 0.5 wherever
// short has one; otherwise it has short's length, taking either parent's
// value with probability 0.5.
func PairList(rng *rand.Rand, tall, short []int) []int {
	if rng.Float64() < 0.5 {
		child := make([]int, len(tall))
		for i := range tall {
			if rng.Float64() < 0.5 && i < len(short) {
				child[i] = short[i]
			} else {
				child[i] = tall[i]
			}
		}
		return child
	}
	child := make([]int, len(short))
	for i := range short {
		if rng.Float64() < 0.5 {
			child[i] = tall[i]
		} else {
			child[i] = short[i]
		}
	}
	return child
}

// cloneTest reports whether, at every position up to the longest gene, one
// value is held by at least 90% of popSize genes, and returns those values.
func (p *Population) cloneTest(popSize int) ([]int, bool) {
	width := 0
	for _, g := range p.Genes {
		if len(g.Values) > width {
			width = len(g.Values)
		}
	}

	threshold := 0.9 * float64(popSize)
	modal := make([]int, width)
	counts := make(map[int]int)
	for pos := 0; pos < width; pos++ {
		for k := range counts {
			delete(counts, k)
		}
		for _, g := range p.Genes {
			if pos < len(g.Values) {
				counts[g.Values[pos]]++
			}
		}
		found := false
		for v, n := range counts {
			if float64(n) >= threshold {
				modal[pos] = v
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return modal, true
}

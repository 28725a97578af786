package em

import "math/rand/v2"

// Initializer supplies the starting bias estimates of a run.
type Initializer interface {
	Initial() (Theta, error)
}

// FixedInit starts from the given estimates.
type FixedInit Theta

func (f FixedInit) Initial() (Theta, error) {
	t := Theta(f)
	return t, t.Validate()
}

// RandomInit draws both starting estimates uniformly from (0,1) using a PCG
// source seeded with Seed, so a seed always yields the same start.
type RandomInit struct {
	Seed uint64
}

func (r RandomInit) Initial() (Theta, error) {
	return drawTheta(newRand(r.Seed)), nil
}

// RandomStarts returns n seeded starting points for MultiStart.
func RandomStarts(seed uint64, n int) []Theta {
	rng := newRand(seed)
	starts := make([]Theta, n)
	for i := range starts {
		starts[i] = drawTheta(rng)
	}
	return starts
}

// drawTheta draws a start strictly inside (0,1)x(0,1). A bias of exactly 0
// gives zero likelihood to every experiment with heads.
func drawTheta(rng *rand.Rand) Theta {
	return Theta{A: openUnit(rng), B: openUnit(rng)}
}

func openUnit(rng *rand.Rand) float64 {
	for {
		if v := rng.Float64(); v > 0 {
			return v
		}
	}
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(newSource(seed))
}

func newSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// Package gacha implements weighted rarity draws and eidolon attunement.
package gacha

import (
	"slices"
	"strings"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// Rand is the random source used for draws. *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// Weighted is one label and its relative weight.
type Weighted struct {
	Label  string
	Weight int
}

// Weights is an ordered weight table. Order is the iteration order of a draw.
type Weights []Weighted

// FromMap builds Weights from a label->weight map, sorted by label so the
// draw order is stable across runs.
func FromMap(m map[string]int) Weights {
	w := make(Weights, 0, len(m))
	for label, weight := range m {
		w = append(w, Weighted{Label: label, Weight: weight})
	}
	slices.SortFunc(w, func(a, b Weighted) int {
		return strings.Compare(a.Label, b.Label)
	})
	return w
}

// Total returns the sum of all weights, or an error if any weight is negative
// or the total is not positive.
func (w Weights) Total() (int, error) {
	total := 0
	for _, item := range w {
		if item.Weight < 0 {
			return 0, combat.ErrInvalidWeights.WithMessage("negative weight for %q", item.Label)
		}
		total += item.Weight
	}
	if total <= 0 {
		return 0, combat.ErrInvalidWeights
	}
	return total, nil
}

// SelectWeighted draws r uniformly in [0,total) and returns the first label
// whose cumulative weight exceeds r. Zero-weight labels are never returned.
func SelectWeighted(rng Rand, w Weights) (string, error) {
	total, err := w.Total()
	if err != nil {
		return "", err
	}

	r := rng.IntN(total)
	cumulative := 0
	for _, item := range w {
		cumulative += item.Weight
		if r < cumulative {
			return item.Label, nil
		}
	}

	// Unreachable while Total() > 0
	return "", combat.ErrInvalidWeights
}

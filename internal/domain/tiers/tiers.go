// Package tiers partitions a ranked player list into value tiers.
package tiers

import (
	"sort"

	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/internal/domain/scoring"
)

// DefaultTierCount is used when a caller asks for fewer than one tier.
const DefaultTierCount = 8

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithValuer sets the value function used to find breaks.
func WithValuer(v *scoring.Valuer) Option {
	return func(c *Clusterer) {
		if v != nil {
			c.valuer = v
		}
	}
}

// WithDefaultTiers sets the tier count used when k < 1.
func WithDefaultTiers(k int) Option {
	return func(c *Clusterer) {
		if k > 0 {
			c.defaultTiers = k
		}
	}
}

// Clusterer splits players at the largest value drops. It holds no mutable
// state and is safe for concurrent use.
type Clusterer struct {
	valuer       *scoring.Valuer
	defaultTiers int
}

// New creates a Clusterer.
func New(opts ...Option) *Clusterer {
	c := &Clusterer{
		valuer:       scoring.NewValuer(),
		defaultTiers: DefaultTierCount,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultTiers returns the tier count used when a caller passes k < 1.
func (c *Clusterer) DefaultTiers() int {
	return c.defaultTiers
}

// Build partitions players into at most k contiguous tiers. The input is
// copied and stably sorted by average rank first; it is never modified.
func (c *Clusterer) Build(players []model.Player, format model.Format, k int) []model.TierGroup {
	if len(players) == 0 {
		return []model.TierGroup{}
	}
	if k < 1 {
		k = c.defaultTiers
	}

	sorted := model.ClonePlayers(players)
	model.SortByAvgRank(sorted)

	values := make([]float64, len(sorted))
	for i, p := range sorted {
		values[i] = c.valuer.Value(p, format)
	}

	boundaries := selectBoundaries(values, k)

	out := make([]model.TierGroup, 0, len(boundaries)+1)
	start := 0
	for _, b := range append(boundaries, len(sorted)-1) {
		end := b + 1
		out = append(out, model.TierGroup{
			Tier:     len(out) + 1,
			Players:  sorted[start:end],
			AvgValue: mean(values[start:end]),
			MinRank:  start + 1,
			MaxRank:  end,
		})
		start = end
	}
	return out
}

// MinTierSize returns the minimum spacing between two tier boundaries.
func MinTierSize(n, k int) int {
	if k < 1 {
		k = 1
	}
	return max(2, n/(2*k))
}

// selectBoundaries returns ascending indices i such that a tier ends at i.
// Candidates are taken greedily by largest drop, lower index first on ties,
// and rejected when closer than MinTierSize to a chosen boundary.
func selectBoundaries(values []float64, k int) []int {
	n := len(values)
	if n < 2 || k < 2 {
		return nil
	}

	drops := make([]float64, n-1)
	order := make([]int, n-1)
	for i := range drops {
		drops[i] = values[i] - values[i+1]
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return drops[order[a]] > drops[order[b]]
	})

	minSize := MinTierSize(n, k)
	chosen := make([]int, 0, k-1)
	for _, cand := range order {
		if len(chosen) == k-1 || drops[cand] <= 0 {
			break
		}
		if tooClose(cand, chosen, minSize) {
			continue
		}
		chosen = append(chosen, cand)
	}
	sort.Ints(chosen)
	return chosen
}

func tooClose(cand int, chosen []int, minSize int) bool {
	for _, b := range chosen {
		d := cand - b
		if d < 0 {
			d = -d
		}
		if d < minSize {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

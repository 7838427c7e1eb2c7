// Package scoring derives a comparable value score from a ranked player.
package scoring

import (
	"math"

	"github.com/okian/draftboard/internal/domain/model"
)

// Default valuation constants.
const (
	baseValueScale           = 100.0
	defaultMultiplier        = 1.0
	defaultProjectionWeight  = 0.05
	defaultStdDevPenaltyRate = 0.02
	maxStdDevPenalty         = 0.5
)

// defaultMultipliers reflect relative positional scarcity per scoring format.
func defaultMultipliers() map[model.Format]map[model.Group]float64 {
	return map[model.Format]map[model.Group]float64{
		model.FormatStandard: {
			model.GroupQB: 1.0, model.GroupRB: 1.15, model.GroupWR: 1.0,
			model.GroupTE: 0.9, model.GroupK: 0.5, model.GroupDST: 0.55,
		},
		model.FormatHalfPPR: {
			model.GroupQB: 1.0, model.GroupRB: 1.1, model.GroupWR: 1.05,
			model.GroupTE: 0.95, model.GroupK: 0.5, model.GroupDST: 0.55,
		},
		model.FormatPPR: {
			model.GroupQB: 1.0, model.GroupRB: 1.05, model.GroupWR: 1.1,
			model.GroupTE: 1.0, model.GroupK: 0.5, model.GroupDST: 0.55,
		},
	}
}

// Option applies a configuration option to the Valuer.
type Option func(*Valuer)

// WithMultipliers overrides positional multipliers. Keys are format and group
// names; unknown or non-positive entries are ignored.
func WithMultipliers(overrides map[string]map[string]float64) Option {
	return func(v *Valuer) {
		for fs, groups := range overrides {
			f, err := model.ParseFormat(fs)
			if err != nil {
				continue
			}
			for gs, m := range groups {
				g, err := model.ParseGroup(gs)
				if err != nil || m <= 0 {
					continue
				}
				v.multipliers[f][g] = m
			}
		}
	}
}

// WithProjectionWeight sets the bonus per projected point.
func WithProjectionWeight(w float64) Option {
	return func(v *Valuer) {
		if w >= 0 {
			v.projectionWeight = w
		}
	}
}

// WithStdDevPenaltyRate sets the value fraction lost per unit of rank stddev.
func WithStdDevPenaltyRate(rate float64) Option {
	return func(v *Valuer) {
		if rate >= 0 {
			v.stdDevPenaltyRate = rate
		}
	}
}

// Valuer computes player values.
type Valuer struct {
	multipliers       map[model.Format]map[model.Group]float64
	projectionWeight  float64
	stdDevPenaltyRate float64
}

// NewValuer creates a Valuer with default multipliers.
func NewValuer(opts ...Option) *Valuer {
	v := &Valuer{
		multipliers:       defaultMultipliers(),
		projectionWeight:  defaultProjectionWeight,
		stdDevPenaltyRate: defaultStdDevPenaltyRate,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Multiplier returns the scarcity multiplier for a group under a format.
func (v *Valuer) Multiplier(f model.Format, g model.Group) float64 {
	if byGroup, ok := v.multipliers[f]; ok {
		if m, ok := byGroup[g]; ok {
			return m
		}
	}
	return defaultMultiplier
}

// Value returns 100/sqrt(avgRank) scaled by the positional multiplier, plus a
// projection bonus, minus a consistency penalty capped at half the value.
// Within one position and without bonuses it decreases as avgRank grows.
func (v *Valuer) Value(p model.Player, f model.Format) float64 {
	value := baseValueScale / math.Sqrt(p.SortRank()) * v.Multiplier(f, p.Position)
	if p.ProjectedPoints > 0 {
		value += p.ProjectedPoints * v.projectionWeight
	}
	if p.StdDev > 0 {
		penalty := math.Min(p.StdDev*v.stdDevPenaltyRate, maxStdDevPenalty)
		value *= 1 - penalty
	}
	return value
}

package pipeline

import (
	"fmt"

	"github.com/okian/draftboard/internal/domain/model"
)

// Request selects which (group, format) pairs a run covers.
type Request struct {
	Groups       []model.Group  `json:"groups"`
	Formats      []model.Format `json:"formats"`
	ForceRefresh bool           `json:"forceRefresh"`
	UpdateCache  bool           `json:"updateCache"`
}

// Pair is one (group, format) combination.
type Pair struct {
	Group  model.Group
	Format model.Format
}

// Pairs validates the request and expands it into the group × format matrix.
// Empty lists mean every group or format; duplicates are dropped.
func (r Request) Pairs() ([]Pair, error) {
	groups := r.Groups
	if len(groups) == 0 {
		groups = model.AllGroups
	}
	formats := r.Formats
	if len(formats) == 0 {
		formats = model.AllFormats
	}

	seenG := make(map[model.Group]bool, len(groups))
	seenF := make(map[model.Format]bool, len(formats))
	var gs []model.Group
	var fs []model.Format
	for _, g := range groups {
		if !g.Valid() {
			return nil, fmt.Errorf("%w: unknown group %q", ErrInvalidRequest, g)
		}
		if !seenG[g] {
			seenG[g] = true
			gs = append(gs, g)
		}
	}
	for _, f := range formats {
		if !f.Valid() {
			return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidRequest, f)
		}
		if !seenF[f] {
			seenF[f] = true
			fs = append(fs, f)
		}
	}

	pairs := make([]Pair, 0, len(gs)*len(fs))
	for _, g := range gs {
		for _, f := range fs {
			pairs = append(pairs, Pair{Group: g, Format: f})
		}
	}
	return pairs, nil
}

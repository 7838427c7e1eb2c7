// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// MissingAvgRank is the rank used for ordering and valuation when a player
// has no average rank.
const MissingAvgRank = 999.0

// Group is a ranking partition, i.e. a roster position.
type Group string

// Supported groups.
const (
	GroupQB  Group = "QB"
	GroupRB  Group = "RB"
	GroupWR  Group = "WR"
	GroupTE  Group = "TE"
	GroupK   Group = "K"
	GroupDST Group = "DST"
)

// AllGroups lists every supported group in display order.
var AllGroups = []Group{GroupQB, GroupRB, GroupWR, GroupTE, GroupK, GroupDST}

// Valid reports whether g is a supported group.
func (g Group) Valid() bool {
	for _, known := range AllGroups {
		if g == known {
			return true
		}
	}
	return false
}

// ParseGroup normalizes s and validates it.
func ParseGroup(s string) (Group, error) {
	g := Group(strings.ToUpper(strings.TrimSpace(s)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: unknown group %q", ErrInvalid, s)
	}
	return g, nil
}

// Format is a scoring variant.
type Format string

// Supported scoring formats.
const (
	FormatStandard Format = "STD"
	FormatHalfPPR  Format = "HALF"
	FormatPPR      Format = "PPR"
)

// AllFormats lists every supported format.
var AllFormats = []Format{FormatStandard, FormatHalfPPR, FormatPPR}

// Valid reports whether f is a supported format.
func (f Format) Valid() bool {
	for _, known := range AllFormats {
		if f == known {
			return true
		}
	}
	return false
}

// ParseFormat normalizes s and validates it. An empty string maps to STD.
func ParseFormat(s string) (Format, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return FormatStandard, nil
	}
	f := Format(v)
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalid, s)
	}
	return f, nil
}

// Source tags which collaborator produced a dataset.
type Source string

// Provenance values.
const (
	SourceAPI        Source = "api"
	SourceCache      Source = "cache"
	SourceCacheStale Source = "cache-stale"
	SourceSample     Source = "sample"
	SourceIngest     Source = "ingest"
	SourceStore      Source = "store"
)

// Player is one ranked entity.
type Player struct {
	ID              string            `json:"id" yaml:"id"`
	Name            string            `json:"name" yaml:"name"`
	Position        Group             `json:"position" yaml:"position"`
	Team            string            `json:"team,omitempty" yaml:"team"`
	Rank            int               `json:"rank,omitempty" yaml:"rank"`         // consensus ordinal from the provider
	AvgRank         float64           `json:"avgRank,omitempty" yaml:"avg_rank"` // <= 0 means absent
	StdDev          float64           `json:"stdDev,omitempty" yaml:"std_dev"`
	ProjectedPoints float64           `json:"projectedPoints,omitempty" yaml:"projected_points"`
	ImageURL        string            `json:"imageUrl,omitempty" yaml:"image_url"`
	ExternalIDs     map[string]string `json:"externalIds,omitempty" yaml:"external_ids"`
}

// HasAvgRank reports whether the player carries an average rank.
func (p Player) HasAvgRank() bool {
	return p.AvgRank > 0
}

// SortRank returns the rank used for ordering; absent ranks sort last.
func (p Player) SortRank() float64 {
	if !p.HasAvgRank() {
		return MissingAvgRank
	}
	return p.AvgRank
}

// SortByAvgRank orders players best first. The sort is stable so equal
// ranks keep their input order.
func SortByAvgRank(players []Player) {
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].SortRank() < players[j].SortRank()
	})
}

// ClonePlayers returns a deep copy of players.
func ClonePlayers(players []Player) []Player {
	if players == nil {
		return nil
	}
	out := make([]Player, len(players))
	for i, p := range players {
		out[i] = p
		if p.ExternalIDs != nil {
			ids := make(map[string]string, len(p.ExternalIDs))
			for k, v := range p.ExternalIDs {
				ids[k] = v
			}
			out[i].ExternalIDs = ids
		}
	}
	return out
}

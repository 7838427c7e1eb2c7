// Package sample serves a static built-in dataset per group, used when the
// provider and the cache both have nothing.
package sample

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/okian/draftboard/internal/domain/model"
)

//go:embed players.yaml
var builtin []byte

// ErrEmptyDataset is returned when a sample document contains no groups.
var ErrEmptyDataset = errors.New("sample dataset is empty")

// Provider returns the sample list for a group.
type Provider interface {
	For(g model.Group) ([]model.Player, bool)
}

type document struct {
	Groups map[string][]model.Player `yaml:"groups"`
}

// Static is an immutable Provider.
type Static struct {
	groups map[model.Group][]model.Player
}

// Builtin parses the embedded dataset.
func Builtin() (*Static, error) {
	return Parse(builtin)
}

// Parse builds a Static provider from a YAML document. Players inherit their
// group from the section they appear in and are sorted by average rank.
func Parse(data []byte) (*Static, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sample dataset: %w", err)
	}
	if len(doc.Groups) == 0 {
		return nil, ErrEmptyDataset
	}

	s := &Static{groups: make(map[model.Group][]model.Player, len(doc.Groups))}
	for name, players := range doc.Groups {
		g, err := model.ParseGroup(name)
		if err != nil {
			return nil, fmt.Errorf("parse sample dataset: %w", err)
		}
		for i := range players {
			players[i].Position = g
		}
		model.SortByAvgRank(players)
		s.groups[g] = players
	}
	return s, nil
}

// For implements Provider. The returned slice is a copy.
func (s *Static) For(g model.Group) ([]model.Player, bool) {
	players, ok := s.groups[g]
	if !ok || len(players) == 0 {
		return nil, false
	}
	return model.ClonePlayers(players), true
}

// Package repository persists the latest player dataset per (group, format).
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/draftboard/internal/domain/model"
)

// Dataset is the durable copy of one (group, format) list.
type Dataset struct {
	Group     model.Group    `json:"group"`
	Format    model.Format   `json:"format"`
	Players   []model.Player `json:"players"`
	Source    model.Source   `json:"source"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (d Dataset) validate() error {
	if !d.Group.Valid() || !d.Format.Valid() {
		return fmt.Errorf("%w: %s/%s", ErrInvalidDataset, d.Group, d.Format)
	}
	return nil
}

// DatasetStore is the durable collaborator behind the cache. Implementations
// must be safe for concurrent use.
type DatasetStore interface {
	// Save replaces the dataset for its key. UpdatedAt is set by the store.
	Save(ctx context.Context, d Dataset) error
	// Append merges players into the stored list: matching IDs are replaced
	// in place and new IDs are appended.
	Append(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) (Dataset, error)
	// Clear deletes the dataset for a key. Clearing a missing key is not an error.
	Clear(ctx context.Context, g model.Group, f model.Format) error
	// Load returns the dataset for a key or ErrNotFound.
	Load(ctx context.Context, g model.Group, f model.Format) (Dataset, error)
	// List returns stored datasets ordered by group and format, optionally
	// restricted to groups.
	List(ctx context.Context, groups ...model.Group) ([]Dataset, error)
	// PurgeOlderThan deletes datasets updated before cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Ping checks the backing store.
	Ping(ctx context.Context) error
}

// mergePlayers applies Append semantics to a copy of existing.
func mergePlayers(existing, incoming []model.Player) []model.Player {
	out := model.ClonePlayers(existing)
	if out == nil {
		out = []model.Player{}
	}
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.ID] = i
	}
	for _, p := range model.ClonePlayers(incoming) {
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/draftboard/internal/domain/model"
)

type datasetKey struct {
	g model.Group
	f model.Format
}

// MemoryStore keeps datasets in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[datasetKey]Dataset
	now  func() time.Time
}

var _ DatasetStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{data: make(map[datasetKey]Dataset), now: o.now}
}

// Save implements DatasetStore.
func (m *MemoryStore) Save(ctx context.Context, d Dataset) error {
	if err := d.validate(); err != nil {
		return err
	}
	d.Players = model.ClonePlayers(d.Players)
	if d.Players == nil {
		d.Players = []model.Player{}
	}
	d.UpdatedAt = m.now()

	m.mu.Lock()
	m.data[datasetKey{d.Group, d.Format}] = d
	m.mu.Unlock()
	return nil
}

// Append implements DatasetStore.
func (m *MemoryStore) Append(ctx context.Context, g model.Group, f model.Format, players []model.Player, source model.Source) (Dataset, error) {
	d := Dataset{Group: g, Format: f, Source: source}
	if err := d.validate(); err != nil {
		return Dataset{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := datasetKey{g, f}
	d.Players = mergePlayers(m.data[k].Players, players)
	d.UpdatedAt = m.now()
	m.data[k] = d
	return cloneDataset(d), nil
}

// Clear implements DatasetStore.
func (m *MemoryStore) Clear(ctx context.Context, g model.Group, f model.Format) error {
	m.mu.Lock()
	delete(m.data, datasetKey{g, f})
	m.mu.Unlock()
	return nil
}

// Load implements DatasetStore.
func (m *MemoryStore) Load(ctx context.Context, g model.Group, f model.Format) (Dataset, error) {
	m.mu.RLock()
	d, ok := m.data[datasetKey{g, f}]
	m.mu.RUnlock()
	if !ok {
		return Dataset{}, ErrNotFound
	}
	return cloneDataset(d), nil
}

// List implements DatasetStore.
func (m *MemoryStore) List(ctx context.Context, groups ...model.Group) ([]Dataset, error) {
	want := make(map[model.Group]bool, len(groups))
	for _, g := range groups {
		want[g] = true
	}

	m.mu.RLock()
	out := make([]Dataset, 0, len(m.data))
	for k, d := range m.data {
		if len(want) == 0 || want[k.g] {
			out = append(out, cloneDataset(d))
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].Format < out[j].Format
	})
	return out, nil
}

// PurgeOlderThan implements DatasetStore.
func (m *MemoryStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, d := range m.data {
		if d.UpdatedAt.Before(cutoff) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// Ping implements DatasetStore.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneDataset(d Dataset) Dataset {
	d.Players = model.ClonePlayers(d.Players)
	return d
}

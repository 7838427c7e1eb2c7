package service

import (
	"time"

	"github.com/okian/draftboard/internal/domain/model"
)

// Result is a dataset together with where it came from.
type Result struct {
	Group       model.Group       `json:"group"`
	Format      model.Format      `json:"format"`
	Players     []model.Player    `json:"entities"`
	Source      model.Source      `json:"source"`
	CacheStatus model.CacheStatus `json:"cacheStatus"`
	Error       string            `json:"error,omitempty"`
}

// TierResult is a Result split into tiers.
type TierResult struct {
	Result
	K     int               `json:"k"`
	Tiers []model.TierGroup `json:"tiers"`
}

// SourceView describes what one source holds for a pair.
type SourceView struct {
	Available bool              `json:"available"`
	Count     int               `json:"count"`
	Status    model.CacheStatus `json:"status,omitempty"`
	Source    model.Source      `json:"source,omitempty"`
	UpdatedAt *time.Time        `json:"updatedAt,omitempty"`
	Players   []model.Player    `json:"entities,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Comparison shows every source side by side for a pair.
type Comparison struct {
	Group   model.Group           `json:"group"`
	Format  model.Format          `json:"format"`
	Sources map[string]SourceView `json:"sources"`
}

// IngestAction selects how ingested players are applied.
type IngestAction string

// Ingest actions.
const (
	ActionSet    IngestAction = "set"
	ActionAppend IngestAction = "append"
	ActionClear  IngestAction = "clear"
)

// IngestRequest writes a dataset supplied by a client.
type IngestRequest struct {
	Group          model.Group
	Format         model.Format
	Players        []model.Player
	Action         IngestAction
	IdempotencyKey string
}

// IngestResult reports the dataset size after an ingest.
type IngestResult struct {
	Group     model.Group  `json:"group"`
	Format    model.Format `json:"format"`
	Count     int          `json:"count"`
	Action    IngestAction `json:"action"`
	Duplicate bool         `json:"duplicate,omitempty"`
}

// PairStatus is the cache state of one pair.
type PairStatus struct {
	Group        model.Group       `json:"group"`
	Format       model.Format      `json:"format"`
	Status       model.CacheStatus `json:"status"`
	NeedsRefresh bool              `json:"needsRefresh"`
}

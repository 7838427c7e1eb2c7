package pipeline

import (
	"time"

	"github.com/okian/draftboard/internal/domain/model"
)

// Outcome is the result for one (group, format) pair.
type Outcome struct {
	Group      model.Group  `json:"group"`
	Format     model.Format `json:"format"`
	Success    bool         `json:"success"`
	Count      int          `json:"count"`
	Source     model.Source `json:"source,omitempty"`
	Stored     bool         `json:"stored"`
	DurationMs int64        `json:"durationMs"`
	Error      string       `json:"error,omitempty"`
}

// Report is the summary of one run. It is final once Run returns.
type Report struct {
	ExecutionID string    `json:"executionId"`
	StartedAt   time.Time `json:"startTime"`
	FinishedAt  time.Time `json:"endTime"`
	DurationMs  int64     `json:"durationMs"`
	Outcomes    []Outcome `json:"results"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	TotalStored int       `json:"totalStored"` // players written to the cache
	Errors      []string  `json:"errors"`
	Success     bool      `json:"success"`
}

// finish derives counters from the outcomes. A run succeeds when at least
// one item was served by the provider or a fresh cache entry.
func (r *Report) finish(end time.Time) {
	r.FinishedAt = end
	r.DurationMs = end.Sub(r.StartedAt).Milliseconds()
	r.Errors = []string{}
	for _, o := range r.Outcomes {
		if o.Success {
			r.Successes++
		} else {
			r.Failures++
		}
		if o.Stored {
			r.TotalStored += o.Count
		}
		if o.Source == model.SourceAPI || o.Source == model.SourceCache {
			r.Success = true
		}
		if o.Error != "" && o.Source != model.SourceCacheStale {
			r.Errors = append(r.Errors, string(o.Group)+"/"+string(o.Format)+": "+o.Error)
		}
	}
}

// PurgeResult summarizes a purge.
type PurgeResult struct {
	Days            int  `json:"days"`
	CacheCleared    bool `json:"cacheCleared"`
	CacheRemoved    int  `json:"cacheRemoved"`
	DatasetsRemoved int  `json:"datasetsRemoved"`
}

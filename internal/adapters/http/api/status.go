package api

import (
	"context"
	"net/http"

	service "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/domain/model"
)

// StatusDependencies reports cache state.
type StatusDependencies interface {
	Status(ctx context.Context) []service.PairStatus
	NeedsBackgroundRefresh(ctx context.Context) map[model.Group]bool
}

// StatusHandler handles cache status requests.
type StatusHandler struct {
	deps StatusDependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps StatusDependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

type statusResponse struct {
	Success      bool                 `json:"success"`
	Pairs        []service.PairStatus `json:"pairs"`
	NeedsRefresh map[model.Group]bool `json:"needsRefresh"`
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Success:      true,
		Pairs:        h.deps.Status(r.Context()),
		NeedsRefresh: h.deps.NeedsBackgroundRefresh(r.Context()),
	})
}

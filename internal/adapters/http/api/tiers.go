package api

import (
	"context"
	"net/http"
	"strconv"

	service "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/domain/model"
)

// TiersDependencies clusters a dataset.
type TiersDependencies interface {
	Tiers(ctx context.Context, g model.Group, f model.Format, k int) (service.TierResult, error)
}

// TiersHandler handles tier requests.
type TiersHandler struct {
	deps TiersDependencies
}

// NewTiersHandler creates a new tiers handler.
func NewTiersHandler(deps TiersDependencies) *TiersHandler {
	return &TiersHandler{deps: deps}
}

type tiersResponse struct {
	Success     bool              `json:"success"`
	Group       model.Group       `json:"group"`
	Format      model.Format      `json:"format"`
	Source      model.Source      `json:"source"`
	CacheStatus model.CacheStatus `json:"cacheStatus"`
	K           int               `json:"k"`
	Tiers       []model.TierGroup `json:"tiers"`
}

// HandleGetTiers handles GET /tiers?group=&format=[&k=] requests.
func (h *TiersHandler) HandleGetTiers(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_tiers"
	g, f, err := parsePair(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	k := 0
	if v := r.URL.Query().Get("k"); v != "" {
		if k, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	res, err := h.deps.Tiers(r.Context(), g, f, k)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, tiersResponse{
		Success:     true,
		Group:       g,
		Format:      f,
		Source:      res.Source,
		CacheStatus: res.CacheStatus,
		K:           res.K,
		Tiers:       res.Tiers,
	})
}

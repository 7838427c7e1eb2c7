package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/model"
)

const defaultPurgeDays = 30

// PipelineHandler handles /pipeline requests.
type PipelineHandler struct {
	deps PipelineDependencies
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(deps PipelineDependencies) *PipelineHandler {
	return &PipelineHandler{deps: deps}
}

type runRequest struct {
	Groups       []string `json:"groups"`
	Formats      []string `json:"formats"`
	ForceRefresh bool     `json:"forceRefresh"`
	UpdateCache  *bool    `json:"updateCache"`
}

func (b runRequest) toRequest() (pipeline.Request, error) {
	req := pipeline.Request{ForceRefresh: b.ForceRefresh, UpdateCache: true}
	if b.UpdateCache != nil {
		req.UpdateCache = *b.UpdateCache
	}
	for _, s := range b.Groups {
		g, err := model.ParseGroup(s)
		if err != nil {
			return req, err
		}
		req.Groups = append(req.Groups, g)
	}
	for _, s := range b.Formats {
		f, err := model.ParseFormat(s)
		if err != nil {
			return req, err
		}
		req.Formats = append(req.Formats, f)
	}
	return req, nil
}

type purgeResponse struct {
	Success bool `json:"success"`
	pipeline.PurgeResult
}

// HandleRun handles POST /pipeline requests. The status is 200 when at least
// one item succeeded from the provider or fresh cache, otherwise 500.
func (h *PipelineHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	const op = "api.run_pipeline"
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	req, err := body.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	rep, err := h.deps.RunPipeline(r.Context(), req)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	status := http.StatusOK
	if !rep.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, rep)
}

// HandlePurge handles DELETE /pipeline?days=N&clearCache=bool requests.
func (h *PipelineHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	const op = "api.purge"
	q := r.URL.Query()

	days := defaultPurgeDays
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		days = n
	}
	clearCache := false
	if v := q.Get("clearCache"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		clearCache = b
	}

	res, err := h.deps.Purge(r.Context(), days, clearCache)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Success: true, PurgeResult: res})
}

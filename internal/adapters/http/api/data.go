package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/model"
)

const maxIngestBytes = 4 << 20

// DataHandler handles /data requests.
type DataHandler struct {
	deps DataDependencies
}

// NewDataHandler creates a new data handler.
func NewDataHandler(deps DataDependencies) *DataHandler {
	return &DataHandler{deps: deps}
}

type dataResponse struct {
	Success     bool              `json:"success"`
	Group       model.Group       `json:"group"`
	Format      model.Format      `json:"format"`
	Entities    []model.Player    `json:"entities"`
	Count       int               `json:"count"`
	Source      model.Source      `json:"source"`
	CacheStatus model.CacheStatus `json:"cacheStatus"`
	Error       string            `json:"error,omitempty"`
}

type compareResponse struct {
	Success bool                          `json:"success"`
	Group   model.Group                   `json:"group"`
	Format  model.Format                  `json:"format"`
	Sources map[string]service.SourceView `json:"sources"`
}

// ingestRequest is the POST /data body. "players" is accepted as an alias
// of "entities"; any other unknown field rejects the request.
type ingestRequest struct {
	Group    string         `json:"group"`
	Format   string         `json:"format"`
	Entities []model.Player `json:"entities"`
	Players  []model.Player `json:"players"`
	Action   string         `json:"action"`
}

func (b ingestRequest) players() ([]model.Player, error) {
	switch {
	case b.Entities != nil && b.Players != nil:
		return nil, errors.New("entities and players are mutually exclusive")
	case b.Entities != nil:
		return b.Entities, nil
	default:
		return b.Players, nil
	}
}

type ingestResponse struct {
	Success   bool                 `json:"success"`
	Group     model.Group          `json:"group"`
	Format    model.Format         `json:"format"`
	Count     int                  `json:"count"`
	Action    service.IngestAction `json:"action"`
	Duplicate bool                 `json:"duplicate"`
}

// parsePair reads the group and format query parameters.
func parsePair(r *http.Request) (model.Group, model.Format, error) {
	q := r.URL.Query()
	g, err := model.ParseGroup(q.Get("group"))
	if err != nil {
		return "", "", err
	}
	f, err := model.ParseFormat(q.Get("format"))
	if err != nil {
		return "", "", err
	}
	return g, f, nil
}

// HandleGetData handles GET /data?group=&format=[&compare=true] requests.
func (h *DataHandler) HandleGetData(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_data"
	g, f, err := parsePair(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if compare, _ := strconv.ParseBool(r.URL.Query().Get("compare")); compare {
		cmp, err := h.deps.Compare(r.Context(), g, f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, compareResponse{Success: true, Group: g, Format: f, Sources: cmp.Sources})
		return
	}

	res, err := h.deps.Get(r.Context(), g, f)
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{
		Success:     true,
		Group:       g,
		Format:      f,
		Entities:    res.Players,
		Count:       len(res.Players),
		Source:      res.Source,
		CacheStatus: res.CacheStatus,
		Error:       res.Error,
	})
}

// HandlePostData handles POST /data requests. A repeated Idempotency-Key
// header is acknowledged with duplicate:true and not applied again.
func (h *DataHandler) HandlePostData(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_data"
	var body ingestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	players, err := body.players()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	g, err := model.ParseGroup(body.Group)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	f, err := model.ParseFormat(body.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.Ingest(r.Context(), service.IngestRequest{
		Group:          g,
		Format:         f,
		Players:        players,
		Action:         service.IngestAction(strings.ToLower(strings.TrimSpace(body.Action))),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		status, code := statusFor(err)
		writeError(w, status, code, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Success:   true,
		Group:     res.Group,
		Format:    res.Format,
		Count:     res.Count,
		Action:    res.Action,
		Duplicate: res.Duplicate,
	})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnknownAction),
		errors.Is(err, pipeline.ErrInvalidRequest),
		errors.Is(err, model.ErrInvalid):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, pipeline.ErrAllSourcesExhausted):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/draftboard/internal/adapters/http/api"
	service "github.com/okian/draftboard/internal/app"
	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/metrics"
)

type mockDeps struct {
	mu        sync.Mutex
	runs      []pipeline.Request
	purges    []int
	ingests   []service.IngestRequest
	getErr    error
	reportOK  bool
	seenKeys  map[string]bool
	lastClear bool
}

func newMockDeps() *mockDeps {
	return &mockDeps{reportOK: true, seenKeys: map[string]bool{}}
}

func (m *mockDeps) Get(_ context.Context, g model.Group, f model.Format) (service.Result, error) {
	if m.getErr != nil {
		return service.Result{Group: g, Format: f}, m.getErr
	}
	return service.Result{
		Group: g, Format: f,
		Players:     []model.Player{{ID: "1", Name: "A", Position: g, AvgRank: 1}},
		Source:      model.SourceCache,
		CacheStatus: model.StatusFresh,
	}, nil
}

func (m *mockDeps) Compare(_ context.Context, g model.Group, f model.Format) (service.Comparison, error) {
	return service.Comparison{Group: g, Format: f, Sources: map[string]service.SourceView{
		"cache":  {Available: true, Count: 1},
		"store":  {},
		"sample": {Available: true, Count: 8},
	}}, nil
}

func (m *mockDeps) Ingest(_ context.Context, req service.IngestRequest) (service.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req.Action == "" {
		req.Action = service.ActionSet
	}
	res := service.IngestResult{Group: req.Group, Format: req.Format, Action: req.Action}
	if req.Action != service.ActionSet && req.Action != service.ActionAppend && req.Action != service.ActionClear {
		return res, service.ErrUnknownAction
	}
	if req.IdempotencyKey != "" && m.seenKeys[req.IdempotencyKey] {
		res.Duplicate = true
		return res, nil
	}
	m.seenKeys[req.IdempotencyKey] = true
	m.ingests = append(m.ingests, req)
	res.Count = len(req.Players)
	return res, nil
}

func (m *mockDeps) RunPipeline(_ context.Context, req pipeline.Request) (*pipeline.Report, error) {
	m.mu.Lock()
	m.runs = append(m.runs, req)
	m.mu.Unlock()
	return &pipeline.Report{ExecutionID: "run-1", Success: m.reportOK, Errors: []string{}}, nil
}

func (m *mockDeps) Purge(_ context.Context, days int, clearCache bool) (pipeline.PurgeResult, error) {
	m.mu.Lock()
	m.purges = append(m.purges, days)
	m.lastClear = clearCache
	m.mu.Unlock()
	return pipeline.PurgeResult{Days: days, CacheCleared: clearCache, CacheRemoved: 2, DatasetsRemoved: 1}, nil
}

func (m *mockDeps) Tiers(_ context.Context, g model.Group, f model.Format, k int) (service.TierResult, error) {
	if k < 1 {
		k = 8
	}
	res, _ := m.Get(context.Background(), g, f)
	return service.TierResult{Result: res, K: k, Tiers: []model.TierGroup{{Tier: 1, Players: res.Players, MinRank: 1, MaxRank: 1}}}, nil
}

func (m *mockDeps) Status(context.Context) []service.PairStatus {
	return []service.PairStatus{{Group: model.GroupQB, Format: model.FormatPPR, Status: model.StatusStale, NeedsRefresh: true}}
}

func (m *mockDeps) NeedsBackgroundRefresh(context.Context) map[model.Group]bool {
	return map[model.Group]bool{model.GroupQB: true}
}

func (m *mockDeps) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newRouter(deps *mockDeps, secret, env string) http.Handler {
	return api.NewServer(deps, api.WithAuthenticator(api.NewAuthenticator(secret, env))).Router()
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	So(json.Unmarshal(w.Body.Bytes(), &out), ShouldBeNil)
	return out
}

// requestCount reads the HTTP request counter for one label set.
func requestCount(endpoint, method, code string) float64 {
	families, err := metrics.GetRegistry().Gather()
	So(err, ShouldBeNil)
	for _, mf := range families {
		if mf.GetName() != "draftboard_rankings_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["endpoint"] == endpoint && labels["method"] == method && labels["status_code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestDataRoutes(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDeps()
		h := newRouter(deps, "", "development")

		Convey("When GET /data is called for a valid pair", func() {
			w := do(h, http.MethodGet, "/data?group=qb&format=ppr", "", nil)

			Convey("Then the dataset is returned with provenance", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["success"], ShouldEqual, true)
				So(body["group"], ShouldEqual, "QB")
				So(body["format"], ShouldEqual, "PPR")
				So(body["count"], ShouldEqual, 1.0)
				So(body["source"], ShouldEqual, "cache")
				So(body["cacheStatus"], ShouldEqual, "fresh")
				So(body["entities"], ShouldHaveLength, 1)
				So(body, ShouldNotContainKey, "players")
			})
		})

		Convey("When the format is omitted", func() {
			w := do(h, http.MethodGet, "/data?group=WR", "", nil)

			Convey("Then standard scoring is assumed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["format"], ShouldEqual, "STD")
			})
		})

		Convey("When the group is unknown", func() {
			w := do(h, http.MethodGet, "/data?group=LB", "", nil)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["success"], ShouldEqual, false)
			})
		})

		Convey("When every source is exhausted", func() {
			deps.getErr = pipeline.ErrAllSourcesExhausted
			w := do(h, http.MethodGet, "/data?group=K", "", nil)

			Convey("Then 503 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When compare=true is set", func() {
			w := do(h, http.MethodGet, "/data?group=QB&format=PPR&compare=true", "", nil)

			Convey("Then all three sources are listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				sources := decode(w)["sources"].(map[string]interface{})
				So(sources, ShouldContainKey, "cache")
				So(sources, ShouldContainKey, "store")
				So(sources, ShouldContainKey, "sample")
			})
		})

		Convey("When POST /data is sent twice with the same Idempotency-Key", func() {
			body := `{"group":"TE","format":"PPR","action":"append","entities":[{"id":"t1","name":"T","avgRank":1}]}`
			hdr := map[string]string{"Idempotency-Key": "abc", "Content-Type": "application/json"}
			first := do(h, http.MethodPost, "/data", body, hdr)
			second := do(h, http.MethodPost, "/data", body, hdr)

			Convey("Then the second is acknowledged as a duplicate", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				So(decode(first)["duplicate"], ShouldEqual, false)
				So(decode(first)["count"], ShouldEqual, 1.0)
				So(second.Code, ShouldEqual, http.StatusOK)
				So(decode(second)["duplicate"], ShouldEqual, true)
				So(len(deps.ingests), ShouldEqual, 1)
			})
		})

		Convey("When POST /data carries entities", func() {
			body := `{"group":"QB","format":"PPR","action":"set","entities":[{"id":"a","name":"A","avgRank":1},{"id":"b","name":"B","avgRank":2}]}`
			w := do(h, http.MethodPost, "/data", body, nil)

			Convey("Then every entity reaches the service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["count"], ShouldEqual, 2.0)
				So(deps.ingests, ShouldHaveLength, 1)
				So(deps.ingests[0].Players, ShouldHaveLength, 2)
				So(deps.ingests[0].Players[1].ID, ShouldEqual, "b")
			})
		})

		Convey("When POST /data uses the players alias", func() {
			body := `{"group":"QB","action":"set","players":[{"id":"a","name":"A"}]}`
			w := do(h, http.MethodPost, "/data", body, nil)

			Convey("Then it is accepted as entities", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.ingests[0].Players, ShouldHaveLength, 1)
			})
		})

		Convey("When POST /data sends both entities and players", func() {
			body := `{"group":"QB","entities":[{"id":"a"}],"players":[{"id":"b"}]}`
			w := do(h, http.MethodPost, "/data", body, nil)

			Convey("Then 400 is returned and nothing is ingested", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(deps.ingests, ShouldBeEmpty)
			})
		})

		Convey("When POST /data has an unknown field", func() {
			body := `{"group":"QB","action":"set","rows":[{"id":"a","name":"A"}]}`
			w := do(h, http.MethodPost, "/data", body, nil)

			Convey("Then 400 is returned and nothing is ingested", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decode(w)["message"], ShouldContainSubstring, "rows")
				So(deps.ingests, ShouldBeEmpty)
			})
		})

		Convey("When POST /data has malformed JSON", func() {
			w := do(h, http.MethodPost, "/data", `{"group":`, nil)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When POST /data has an unknown action", func() {
			w := do(h, http.MethodPost, "/data", `{"group":"QB","action":"merge"}`, nil)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestPipelineAuth(t *testing.T) {
	Convey("Given a server with a pipeline secret", t, func() {
		deps := newMockDeps()
		h := newRouter(deps, "s3cret", "production")

		Convey("When POST /pipeline has no Authorization header", func() {
			before := requestCount("/pipeline", http.MethodPost, "401")
			w := do(h, http.MethodPost, "/pipeline", `{}`, nil)

			Convey("Then 401 is returned and no run starts", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(len(deps.runs), ShouldEqual, 0)
			})

			Convey("Then the rejection is counted under the route pattern", func() {
				So(requestCount("/pipeline", http.MethodPost, "401"), ShouldEqual, before+1)
			})
		})

		Convey("When the bearer token is wrong", func() {
			w := do(h, http.MethodDelete, "/pipeline?days=7", "", map[string]string{"Authorization": "Bearer nope"})

			Convey("Then 401 is returned and nothing is purged", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(len(deps.purges), ShouldEqual, 0)
			})
		})

		Convey("When the bearer token equals the secret", func() {
			w := do(h, http.MethodPost, "/pipeline", `{"groups":["qb"],"formats":["ppr"]}`, map[string]string{"Authorization": "Bearer s3cret"})

			Convey("Then the run is triggered with caching on by default", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(deps.runs), ShouldEqual, 1)
				So(deps.runs[0].Groups, ShouldResemble, []model.Group{model.GroupQB})
				So(deps.runs[0].Formats, ShouldResemble, []model.Format{model.FormatPPR})
				So(deps.runs[0].UpdateCache, ShouldBeTrue)
				So(decode(w)["executionId"], ShouldEqual, "run-1")
			})
		})

		Convey("When the bearer token is a JWT signed with the secret", func() {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "cron", "exp": time.Now().Add(time.Minute).Unix()})
			signed, err := tok.SignedString([]byte("s3cret"))
			So(err, ShouldBeNil)
			w := do(h, http.MethodDelete, "/pipeline?days=7&clearCache=true", "", map[string]string{"Authorization": "Bearer " + signed})

			Convey("Then the purge runs", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(deps.purges, ShouldResemble, []int{7})
				So(deps.lastClear, ShouldBeTrue)
				body := decode(w)
				So(body["cacheRemoved"], ShouldEqual, 2.0)
				So(body["datasetsRemoved"], ShouldEqual, 1.0)
			})
		})

		Convey("When the JWT is signed with another key", func() {
			tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "cron"})
			signed, _ := tok.SignedString([]byte("other"))
			w := do(h, http.MethodPost, "/pipeline", `{}`, map[string]string{"Authorization": "Bearer " + signed})

			Convey("Then 401 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
			})
		})
	})

	Convey("Given no secret configured", t, func() {
		Convey("When running in production", func() {
			deps := newMockDeps()
			w := do(newRouter(deps, "", "production"), http.MethodPost, "/pipeline", `{}`, nil)

			Convey("Then requests are rejected", func() {
				So(w.Code, ShouldEqual, http.StatusUnauthorized)
				So(len(deps.runs), ShouldEqual, 0)
			})
		})

		Convey("When running in development", func() {
			deps := newMockDeps()
			w := do(newRouter(deps, "", "development"), http.MethodPost, "/pipeline", "", nil)

			Convey("Then requests are allowed and the empty body means everything", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(len(deps.runs), ShouldEqual, 1)
				So(deps.runs[0].Groups, ShouldBeEmpty)
			})
		})
	})
}

func TestPipelineRoutes(t *testing.T) {
	Convey("Given an open pipeline endpoint", t, func() {
		deps := newMockDeps()
		h := newRouter(deps, "", "development")

		Convey("When the run has no successful item", func() {
			deps.reportOK = false
			w := do(h, http.MethodPost, "/pipeline", `{"updateCache":false}`, nil)

			Convey("Then 500 carries the report", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(deps.runs[0].UpdateCache, ShouldBeFalse)
				So(decode(w)["success"], ShouldEqual, false)
			})
		})

		Convey("When the request names an unknown format", func() {
			w := do(h, http.MethodPost, "/pipeline", `{"formats":["dynasty"]}`, nil)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(len(deps.runs), ShouldEqual, 0)
			})
		})

		Convey("When days is omitted or invalid", func() {
			ok := do(h, http.MethodDelete, "/pipeline", "", nil)
			bad := do(h, http.MethodDelete, "/pipeline?days=-2", "", nil)

			Convey("Then the default applies and negatives are rejected", func() {
				So(ok.Code, ShouldEqual, http.StatusOK)
				So(deps.purges, ShouldResemble, []int{30})
				So(bad.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestReadRoutes(t *testing.T) {
	Convey("Given an API server", t, func() {
		h := newRouter(newMockDeps(), "", "development")

		Convey("Then GET /tiers returns tiers", func() {
			w := do(h, http.MethodGet, "/tiers?group=RB&format=HALF&k=4", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(body["k"], ShouldEqual, 4.0)
			So(len(body["tiers"].([]interface{})), ShouldEqual, 1)
		})

		Convey("Then GET /tiers rejects a non-numeric k", func() {
			w := do(h, http.MethodGet, "/tiers?group=RB&k=many", "", nil)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then GET /status lists pairs", func() {
			w := do(h, http.MethodGet, "/status", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			body := decode(w)
			So(len(body["pairs"].([]interface{})), ShouldEqual, 1)
			So(body["needsRefresh"].(map[string]interface{})["QB"], ShouldEqual, true)
		})

		Convey("Then GET /stats returns service stats", func() {
			w := do(h, http.MethodGet, "/stats", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w)["started"], ShouldEqual, true)
		})

		Convey("Then GET /healthz serves metrics", func() {
			w := do(h, http.MethodGet, "/healthz", "", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then unknown methods are not allowed", func() {
			w := do(h, http.MethodPut, "/data", "", nil)
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestErrors(t *testing.T) {
	Convey("Given API error helpers", t, func() {
		cause := errors.New("boom")

		Convey("Then WrapKind exposes kind and cause", func() {
			err := api.WrapKind("api.op", api.ErrBadRequest, cause)
			So(err.Error(), ShouldEqual, "api.op: bad request: boom")
			So(errors.Is(err, api.ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
		})

		Convey("Then NewKind and Wrap format op first", func() {
			So(api.NewKind("api.op", api.ErrUnauthorized).Error(), ShouldEqual, "api.op: unauthorized")
			So(api.Wrap("api.op", cause).Error(), ShouldEqual, "api.op: boom")
			So(api.Wrap("api.op", nil), ShouldBeNil)
		})
	})
}

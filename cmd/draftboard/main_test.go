package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/draftboard/internal/adapters/http/api"
	"github.com/okian/draftboard/internal/adapters/http/swagger"
	"github.com/okian/draftboard/internal/config"
	"github.com/okian/draftboard/internal/domain/model"
	"github.com/okian/draftboard/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

const upstreamBody = `{"players":[
	{"player_id":"1","player_name":"Josh Allen","player_position_id":"QB","player_team_id":"BUF","rank_ecr":1,"rank_ave":1.4},
	{"player_id":"2","player_name":"Lamar Jackson","player_position_id":"QB","player_team_id":"BAL","rank_ecr":2,"rank_ave":2.1}
]}`

func TestBuildRequest(t *testing.T) {
	convey.Convey("Given flag values for a pipeline request", t, func() {
		convey.Convey("When they are valid", func() {
			req, err := buildRequest([]string{"qb", "WR"}, []string{"ppr"}, true, false)

			convey.Convey("Then they are normalized", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(req.Groups, convey.ShouldResemble, []model.Group{model.GroupQB, model.GroupWR})
				convey.So(req.Formats, convey.ShouldResemble, []model.Format{model.FormatPPR})
				convey.So(req.ForceRefresh, convey.ShouldBeTrue)
				convey.So(req.UpdateCache, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a group is unknown", func() {
			_, err := buildRequest([]string{"LB"}, nil, false, true)

			convey.Convey("Then an error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestSignToken(t *testing.T) {
	convey.Convey("Given the CLI token signer", t, func() {
		convey.Convey("When no secret is configured", func() {
			token, err := signToken("", time.Now())

			convey.Convey("Then no token is produced", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(token, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When a secret is configured", func() {
			token, err := signToken("s3cret", time.Now())
			convey.So(err, convey.ShouldBeNil)

			req := httptest.NewRequest(http.MethodPost, "/pipeline", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			convey.Convey("Then the server accepts it", func() {
				convey.So(api.NewAuthenticator("s3cret", "production").Verify(req), convey.ShouldBeNil)
			})

			convey.Convey("Then a server with another secret rejects it", func() {
				convey.So(api.NewAuthenticator("other", "production").Verify(req), convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the token has expired", func() {
			token, err := signToken("s3cret", time.Now().Add(-time.Hour))
			convey.So(err, convey.ShouldBeNil)

			req := httptest.NewRequest(http.MethodPost, "/pipeline", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			convey.Convey("Then the server rejects it", func() {
				convey.So(api.NewAuthenticator("s3cret", "production").Verify(req), convey.ShouldNotBeNil)
			})
		})
	})
}

func TestWiredServer(t *testing.T) {
	convey.Convey("Given a server wired from default config", t, func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("position") != "QB" {
				http.Error(w, "no data", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(upstreamBody))
		}))
		defer upstream.Close()

		cfg := config.New()
		cfg.UpstreamURL = upstream.URL
		cfg.PipelineSecret = "s3cret"
		cfg.Environment = "production"
		cfg.PolitenessDelay = 0
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		ctx := context.Background()
		c, err := wire(ctx, cfg, logger.Get())
		convey.So(err, convey.ShouldBeNil)
		defer func() { _ = c.Close() }()

		router := c.api.Router()
		swagger.Register(router)
		srv := httptest.NewServer(router)
		defer srv.Close()

		token, err := signToken(cfg.PipelineSecret, time.Now())
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When the pipeline is triggered remotely", func() {
			r := remote{server: srv.URL, token: token}
			var out bytes.Buffer
			req, _ := buildRequest([]string{"QB", "TE"}, []string{"PPR"}, false, true)
			err := r.do(ctx, http.MethodPost, "/pipeline", nil, req, &out)

			convey.Convey("Then the report shows the api and sample sources", func() {
				convey.So(err, convey.ShouldBeNil)

				var rep struct {
					Success bool `json:"success"`
					Results []struct {
						Group  string `json:"group"`
						Source string `json:"source"`
					} `json:"results"`
				}
				convey.So(json.Unmarshal(out.Bytes(), &rep), convey.ShouldBeNil)
				convey.So(rep.Success, convey.ShouldBeTrue)
				convey.So(rep.Results, convey.ShouldHaveLength, 2)

				sources := map[string]string{}
				for _, o := range rep.Results {
					sources[o.Group] = o.Source
				}
				convey.So(sources["QB"], convey.ShouldEqual, "api")
				convey.So(sources["TE"], convey.ShouldEqual, "sample")
			})

			convey.Convey("Then the fetched data is served from the cache", func() {
				resp, err := http.Get(srv.URL + "/data?group=QB&format=PPR")
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = resp.Body.Close() }()

				var body struct {
					Source string `json:"source"`
					Count  int    `json:"count"`
				}
				convey.So(json.NewDecoder(resp.Body).Decode(&body), convey.ShouldBeNil)
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				convey.So(body.Source, convey.ShouldEqual, "cache")
				convey.So(body.Count, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When a dataset is posted as entities", func() {
			r := remote{server: srv.URL, token: token}
			var out bytes.Buffer
			body := map[string]interface{}{
				"group":  "WR",
				"format": "HALF",
				"action": "set",
				"entities": []map[string]interface{}{
					{"id": "w1", "name": "Ja'Marr Chase", "avgRank": 1.2},
					{"id": "w2", "name": "Justin Jefferson", "avgRank": 2.4},
				},
			}
			err := r.do(ctx, http.MethodPost, "/data", nil, body, &out)

			convey.Convey("Then the same entities are read back", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `"count":2`)

				resp, err := http.Get(srv.URL + "/data?group=WR&format=HALF")
				convey.So(err, convey.ShouldBeNil)
				defer func() { _ = resp.Body.Close() }()

				var got struct {
					Source   string `json:"source"`
					Count    int    `json:"count"`
					Entities []struct {
						ID string `json:"id"`
					} `json:"entities"`
				}
				convey.So(json.NewDecoder(resp.Body).Decode(&got), convey.ShouldBeNil)
				convey.So(got.Source, convey.ShouldEqual, "cache")
				convey.So(got.Count, convey.ShouldEqual, 2)
				convey.So(got.Entities, convey.ShouldHaveLength, 2)
				convey.So(got.Entities[0].ID, convey.ShouldEqual, "w1")
			})
		})

		convey.Convey("When the pipeline is triggered with a bad token", func() {
			r := remote{server: srv.URL, token: "wrong"}
			var out bytes.Buffer
			err := r.do(ctx, http.MethodPost, "/pipeline", nil, nil, &out)

			convey.Convey("Then the call is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "401")
			})
		})

		convey.Convey("When a purge is requested remotely", func() {
			r := remote{server: srv.URL, token: token}
			var out bytes.Buffer
			err := r.do(ctx, http.MethodDelete, "/pipeline", map[string][]string{"clearCache": {"true"}}, nil, &out)

			convey.Convey("Then it succeeds", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, `"success":true`)
			})
		})

		convey.Convey("When the docs and health routes are requested", func() {
			for _, path := range []string{"/healthz", "/api-docs", "/openapi.yaml"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})
	})
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			for _, want := range []string{"serve", "refresh", "trigger", "purge"} {
				convey.So(names[want], convey.ShouldBeTrue)
			}
		})

		convey.Convey("When purge is given negative days", func() {
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{"purge", "--days=-1", "--token", "x"})

			convey.Convey("Then it fails before calling the server", func() {
				err := root.Execute()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "days must not be negative")
			})
		})
	})
}

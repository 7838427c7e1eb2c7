package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/draftboard/internal/adapters/upstream"
	"github.com/okian/draftboard/internal/domain/model"
)

const rankingsBody = `{
  "players": [
    {"player_id": 17298, "player_name": "Josh Allen", "player_position_id": "QB", "player_team_id": "BUF",
     "rank_ecr": 1, "rank_ave": "1.40", "rank_std": 0.7, "proj_pts": "380.5", "player_sleeper_id": "4984"},
    {"player_id": "19781", "player_name": "Lamar Jackson", "player_team_id": "BAL",
     "rank_ecr": 2, "rank_ave": 2.1, "rank_std": "", "proj_pts": null}
  ]
}`

func TestClient_Fetch(t *testing.T) {
	Convey("Given a provider that returns rankings", t, func() {
		var gotQuery, gotKey string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			gotKey = r.Header.Get("x-api-key")
			if r.URL.Path != "/consensus-rankings" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(rankingsBody))
		}))
		defer srv.Close()

		c := upstream.New(srv.URL+"/", upstream.WithAPIKey("secret"))

		Convey("When fetching a group and format", func() {
			players, err := c.Fetch(context.Background(), model.GroupQB, model.FormatPPR)

			Convey("Then the request carries position, scoring and key", func() {
				So(err, ShouldBeNil)
				So(gotQuery, ShouldEqual, "position=QB&scoring=PPR")
				So(gotKey, ShouldEqual, "secret")
			})

			Convey("Then players are mapped in provider order", func() {
				So(len(players), ShouldEqual, 2)
				So(players[0].ID, ShouldEqual, "17298")
				So(players[0].Team, ShouldEqual, "BUF")
				So(players[0].Rank, ShouldEqual, 1)
				So(players[0].AvgRank, ShouldEqual, 1.4)
				So(players[0].ProjectedPoints, ShouldEqual, 380.5)
				So(players[0].ExternalIDs, ShouldResemble, map[string]string{"sleeper": "4984"})
				So(players[1].ID, ShouldEqual, "19781")
				So(players[1].Position, ShouldEqual, model.GroupQB)
				So(players[1].StdDev, ShouldEqual, 0)
				So(players[1].ExternalIDs, ShouldBeNil)
			})
		})
	})

	Convey("Given a provider that returns an empty list", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"players": []}`))
		}))
		defer srv.Close()

		players, err := upstream.New(srv.URL).Fetch(context.Background(), model.GroupK, model.FormatStandard)

		Convey("Then the result is an empty success", func() {
			So(err, ShouldBeNil)
			So(players, ShouldNotBeNil)
			So(players, ShouldBeEmpty)
		})
	})
}

func TestClient_FetchErrors(t *testing.T) {
	Convey("Given a provider that fails", t, func() {
		Convey("When it answers with a non-2xx status", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
			}))
			defer srv.Close()

			_, err := upstream.New(srv.URL).Fetch(context.Background(), model.GroupWR, model.FormatHalfPPR)

			Convey("Then a typed transient error carries the status", func() {
				So(errors.Is(err, upstream.ErrTransientFetch), ShouldBeTrue)
				var fe *upstream.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.StatusCode, ShouldEqual, http.StatusTooManyRequests)
				So(fe.Group, ShouldEqual, model.GroupWR)
			})
		})

		Convey("When a long error body has multibyte text at the cut", func() {
			body := strings.Repeat("a", 199) + strings.Repeat("é", 10)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := upstream.New(srv.URL).Fetch(context.Background(), model.GroupQB, model.FormatPPR)

			Convey("Then the message is truncated on a rune boundary", func() {
				So(errors.Is(err, upstream.ErrTransientFetch), ShouldBeTrue)
				So(utf8.ValidString(err.Error()), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, strings.Repeat("a", 199)+"...")
			})
		})

		Convey("When the body is not JSON", func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			}))
			defer srv.Close()

			players, err := upstream.New(srv.URL).Fetch(context.Background(), model.GroupWR, model.FormatPPR)

			Convey("Then it is a fetch error, not an empty list", func() {
				So(players, ShouldBeNil)
				So(errors.Is(err, upstream.ErrTransientFetch), ShouldBeTrue)
			})
		})

		Convey("When the provider is slower than the timeout", func() {
			release := make(chan struct{})
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}))
			defer srv.Close()
			defer close(release)

			_, err := upstream.New(srv.URL, upstream.WithTimeout(50*time.Millisecond)).
				Fetch(context.Background(), model.GroupTE, model.FormatPPR)

			Convey("Then the timeout surfaces as a transient fetch error", func() {
				So(errors.Is(err, upstream.ErrTransientFetch), ShouldBeTrue)
			})
		})

		Convey("When nothing is listening", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			addr := srv.URL
			srv.Close()

			_, err := upstream.New(addr).Fetch(context.Background(), model.GroupRB, model.FormatPPR)

			Convey("Then the transport error is wrapped", func() {
				var fe *upstream.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)
				So(fe.StatusCode, ShouldEqual, 0)
			})
		})
	})
}

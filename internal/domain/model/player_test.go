package model_test

import (
	"errors"
	"testing"

	"github.com/okian/draftboard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseGroup(t *testing.T) {
	Convey("Given group strings", t, func() {
		Convey("When the input is lower case with spaces", func() {
			g, err := model.ParseGroup("  rb ")

			Convey("Then it should normalize to the upper-case group", func() {
				So(err, ShouldBeNil)
				So(g, ShouldEqual, model.GroupRB)
			})
		})

		Convey("When the input is unknown", func() {
			_, err := model.ParseGroup("LB")

			Convey("Then it should return ErrInvalid", func() {
				So(errors.Is(err, model.ErrInvalid), ShouldBeTrue)
			})
		})
	})
}

func TestParseFormat(t *testing.T) {
	Convey("Given format strings", t, func() {
		Convey("Then empty input defaults to standard", func() {
			f, err := model.ParseFormat("")
			So(err, ShouldBeNil)
			So(f, ShouldEqual, model.FormatStandard)
		})

		Convey("Then known formats parse case-insensitively", func() {
			f, err := model.ParseFormat("ppr")
			So(err, ShouldBeNil)
			So(f, ShouldEqual, model.FormatPPR)
		})

		Convey("Then unknown formats are rejected", func() {
			_, err := model.ParseFormat("dynasty")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSortByAvgRank(t *testing.T) {
	Convey("Given players with and without average ranks", t, func() {
		players := []model.Player{
			{ID: "c", AvgRank: 3},
			{ID: "none"},
			{ID: "a", AvgRank: 1},
			{ID: "b", AvgRank: 2},
			{ID: "b2", AvgRank: 2},
		}

		model.SortByAvgRank(players)

		Convey("Then ranked players come first and missing ranks sort last", func() {
			ids := make([]string, len(players))
			for i, p := range players {
				ids[i] = p.ID
			}
			So(ids, ShouldResemble, []string{"a", "b", "b2", "c", "none"})
		})

		Convey("Then the missing rank uses the sentinel", func() {
			So(players[4].SortRank(), ShouldEqual, model.MissingAvgRank)
			So(players[4].HasAvgRank(), ShouldBeFalse)
		})
	})
}

func TestClonePlayers(t *testing.T) {
	Convey("Given a player with external ids", t, func() {
		in := []model.Player{{ID: "1", ExternalIDs: map[string]string{"espn": "42"}}}

		out := model.ClonePlayers(in)
		out[0].ExternalIDs["espn"] = "changed"

		Convey("Then the clone does not share maps with the input", func() {
			So(in[0].ExternalIDs["espn"], ShouldEqual, "42")
		})
	})
}

func TestCacheStatusOrdering(t *testing.T) {
	Convey("Given the cache statuses", t, func() {
		Convey("Then weights order fresh > stale > expired > missing", func() {
			So(model.StatusFresh.Weight(), ShouldBeGreaterThan, model.StatusStale.Weight())
			So(model.StatusStale.Weight(), ShouldBeGreaterThan, model.StatusExpired.Weight())
			So(model.StatusExpired.Weight(), ShouldBeGreaterThan, model.StatusMissing.Weight())
		})

		Convey("Then only fresh does not need a refresh", func() {
			So(model.StatusFresh.NeedsRefresh(), ShouldBeFalse)
			So(model.StatusStale.NeedsRefresh(), ShouldBeTrue)
			So(model.StatusExpired.NeedsRefresh(), ShouldBeTrue)
			So(model.StatusMissing.NeedsRefresh(), ShouldBeTrue)
		})
	})
}

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/draftboard/internal/adapters/repository"
	"github.com/okian/draftboard/internal/domain/model"
)

func TestMemoryStore(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
		store := repository.NewMemoryStore(repository.WithClock(func() time.Time { return now }))

		Convey("When loading a key that was never saved", func() {
			_, err := store.Load(ctx, model.GroupQB, model.FormatPPR)

			Convey("Then it reports not found", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a dataset is saved", func() {
			in := []model.Player{{ID: "1", Name: "A", ExternalIDs: map[string]string{"espn": "9"}}}
			So(store.Save(ctx, repository.Dataset{Group: model.GroupQB, Format: model.FormatPPR, Players: in, Source: model.SourceAPI}), ShouldBeNil)
			in[0].ExternalIDs["espn"] = "mutated"

			Convey("Then it loads an isolated copy stamped with the clock", func() {
				d, err := store.Load(ctx, model.GroupQB, model.FormatPPR)
				So(err, ShouldBeNil)
				So(d.UpdatedAt.Equal(now), ShouldBeTrue)
				So(d.Players[0].ExternalIDs["espn"], ShouldEqual, "9")
			})

			Convey("Then appending merges by player id", func() {
				d, err := store.Append(ctx, model.GroupQB, model.FormatPPR, []model.Player{
					{ID: "1", Name: "A2"},
					{ID: "2", Name: "B"},
				}, model.SourceIngest)
				So(err, ShouldBeNil)
				So(len(d.Players), ShouldEqual, 2)
				So(d.Players[0].Name, ShouldEqual, "A2")
				So(d.Players[1].Name, ShouldEqual, "B")
				So(d.Source, ShouldEqual, model.SourceIngest)
			})

			Convey("Then clearing removes it", func() {
				So(store.Clear(ctx, model.GroupQB, model.FormatPPR), ShouldBeNil)
				_, err := store.Load(ctx, model.GroupQB, model.FormatPPR)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When datasets of different ages exist", func() {
			So(store.Save(ctx, repository.Dataset{Group: model.GroupRB, Format: model.FormatStandard}), ShouldBeNil)
			now = now.Add(96 * time.Hour)
			So(store.Save(ctx, repository.Dataset{Group: model.GroupK, Format: model.FormatStandard}), ShouldBeNil)
			So(store.Save(ctx, repository.Dataset{Group: model.GroupDST, Format: model.FormatPPR}), ShouldBeNil)

			Convey("Then List orders by group and filters", func() {
				all, err := store.List(ctx)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 3)
				So(all[0].Group, ShouldEqual, model.GroupDST)
				So(all[1].Group, ShouldEqual, model.GroupK)

				only, err := store.List(ctx, model.GroupRB)
				So(err, ShouldBeNil)
				So(len(only), ShouldEqual, 1)
				So(only[0].Players, ShouldNotBeNil)
			})

			Convey("Then purging removes only the old ones", func() {
				n, err := store.PurgeOlderThan(ctx, now.Add(-48*time.Hour))
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				_, err = store.Load(ctx, model.GroupRB, model.FormatStandard)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the key is invalid", func() {
			_, err := store.Append(ctx, "LB", model.FormatPPR, nil, model.SourceIngest)

			Convey("Then the dataset is rejected", func() {
				So(errors.Is(err, repository.ErrInvalidDataset), ShouldBeTrue)
			})
		})
	})
}

package loadgen

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGenerator(t *testing.T) {
	Convey("Given two generators with the same seed", t, func() {
		a, b := NewGenerator(42), NewGenerator(42)

		Convey("They produce the same leads", func() {
			for i := 0; i < 20; i++ {
				So(a.Lead(), ShouldResemble, b.Lead())
			}
		})
	})

	Convey("Given generated leads", t, func() {
		g := NewGenerator(7)

		Convey("Every lead is a valid draft with attributes from the pools", func() {
			for i := 0; i < 200; i++ {
				l := g.Lead()
				So(l.Validate(), ShouldBeNil)
				So(titles, ShouldContain, l.Attributes.Title)
				So(locations, ShouldContain, l.Attributes.Location)
				So(fundingStages, ShouldContain, l.Attributes.CompanyFunding)
				if l.Attributes.RecentPublication {
					So(l.Attributes.PublicationYear, ShouldBeBetweenOrEqual, 2022, 2024)
					So(l.Attributes.PublicationTitle, ShouldNotBeEmpty)
				} else {
					So(l.Attributes.PublicationYear, ShouldEqual, 0)
				}
			}
		})
	})

	Convey("Given imports split into batches", t, func() {
		owners := OwnerIDs("run1", 3)
		imports := NewGenerator(1).Imports("run1", owners, 25, 10)

		Convey("Each owner gets ceil(n/batch) imports covering n leads", func() {
			So(imports, ShouldHaveLength, 9)
			perOwner := map[string]int{}
			for _, imp := range imports {
				perOwner[imp.Owner] += len(imp.Leads)
				So(len(imp.Leads), ShouldBeLessThanOrEqualTo, 10)
				So(imp.Score, ShouldBeTrue)
			}
			for _, o := range owners {
				So(perOwner[o], ShouldEqual, 25)
			}
		})

		Convey("Import IDs are unique", func() {
			seen := map[string]bool{}
			for _, imp := range imports {
				So(seen[imp.ID], ShouldBeFalse)
				seen[imp.ID] = true
			}
		})

		Convey("A non-positive batch size means one import per owner", func() {
			So(NewGenerator(1).Imports("run1", owners, 25, 0), ShouldHaveLength, 3)
		})
	})
}

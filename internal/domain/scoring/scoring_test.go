package scoring_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/leadrank/internal/domain/model"
	scoring "github.com/okian/leadrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

var fixedNow = func() time.Time { return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC) }

type stubEnricher struct {
	bonus float64
	calls atomic.Int64
}

func (e *stubEnricher) RelevanceBonus(ctx context.Context, subject string) float64 {
	e.calls.Add(1)
	return e.bonus
}

func newService(opts ...scoring.Option) *scoring.Service {
	opts = append([]scoring.Option{scoring.WithCalculator(scoring.NewCalculator(scoring.WithClock(fixedNow)))}, opts...)
	s, err := scoring.NewService(scoring.DefaultWeights(), opts...)
	So(err, ShouldBeNil)
	return s
}

func TestParseWeights(t *testing.T) {
	Convey("Given weight maps", t, func() {
		Convey("When the map is the default split", func() {
			w, err := scoring.ParseWeights(map[string]int{"role_fit": 30, "publication": 40, "funding": 20, "location": 10})
			So(err, ShouldBeNil)
			So(w, ShouldResemble, scoring.DefaultWeights())
			So(w.Map()["publication"], ShouldEqual, 40)
		})

		Convey("When names differ in case and spacing", func() {
			w, err := scoring.ParseWeights(map[string]int{" Role_Fit ": 25, "PUBLICATION": 25, "funding": 25, "location": 25})
			So(err, ShouldBeNil)
			So(w.RoleFit, ShouldEqual, 25)
		})

		Convey("When the weights do not sum to 100", func() {
			_, err := scoring.ParseWeights(map[string]int{"role_fit": 30, "publication": 40, "funding": 20, "location": 20})
			So(errors.Is(err, scoring.ErrInvalidWeightConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "got 110")
		})

		Convey("When a factor is unknown", func() {
			_, err := scoring.ParseWeights(map[string]int{"role_fit": 30, "publication": 40, "funding": 20, "vibes": 10})
			So(errors.Is(err, scoring.ErrInvalidWeightConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "vibes")
		})

		Convey("When a factor is missing", func() {
			_, err := scoring.ParseWeights(map[string]int{"role_fit": 60, "publication": 40})
			So(errors.Is(err, scoring.ErrInvalidWeightConfig), ShouldBeTrue)
		})

		Convey("When a weight is negative", func() {
			_, err := scoring.ParseWeights(map[string]int{"role_fit": -10, "publication": 70, "funding": 30, "location": 10})
			So(errors.Is(err, scoring.ErrInvalidWeightConfig), ShouldBeTrue)
		})

		Convey("When building a service from invalid weights", func() {
			s, err := scoring.NewService(scoring.Weights{RoleFit: 1})
			So(s, ShouldBeNil)
			So(errors.Is(err, scoring.ErrInvalidWeightConfig), ShouldBeTrue)
		})
	})
}

func TestCalculatorFactors(t *testing.T) {
	Convey("Given a calculator with a fixed clock", t, func() {
		calc := scoring.NewCalculator(scoring.WithClock(fixedNow))
		w := scoring.DefaultWeights()

		Convey("When every attribute is absent", func() {
			total, b := calc.Score(model.Attributes{}, w)

			Convey("Then each factor gets its baseline and the total is 16", func() {
				So(b.RoleFit, ShouldAlmostEqual, 6, 1e-9)
				So(b.Publication, ShouldAlmostEqual, 4, 1e-9)
				So(b.Funding, ShouldAlmostEqual, 4, 1e-9)
				So(b.Location, ShouldAlmostEqual, 2, 1e-9)
				So(total, ShouldEqual, 16)
				So(b.ScientificIntentAI, ShouldBeNil)
			})
		})

		Convey("When the lead is a senior toxicology director in a primary hub", func() {
			total, b := calc.Score(model.Attributes{
				Title:             "Director of Toxicology",
				RecentPublication: true,
				PublicationYear:   2025,
				PublicationTitle:  "Novel 3D hepatic models for DILI assessment",
				CompanyFunding:    "Series B",
				Location:          "Cambridge, MA",
			}, w)

			Convey("Then the seniority bonus is capped and the total is 100", func() {
				So(b.RoleFit, ShouldEqual, 30)
				So(b.Publication, ShouldEqual, 40)
				So(b.Funding, ShouldEqual, 20)
				So(b.Location, ShouldEqual, 10)
				So(total, ShouldEqual, 100)
			})
		})

		Convey("When comparing titles with and without seniority", func() {
			_, plain := calc.Score(model.Attributes{Title: "Research Scientist"}, w)
			_, senior := calc.Score(model.Attributes{Title: "Principal Scientist"}, w)
			_, tech := calc.Score(model.Attributes{Title: "3D Cell Culture Specialist"}, w)
			_, other := calc.Score(model.Attributes{Title: "Account Manager"}, w)

			Convey("Then seniority never lowers role fit", func() {
				So(plain.RoleFit, ShouldAlmostEqual, 18, 1e-9)
				So(senior.RoleFit, ShouldAlmostEqual, 21.6, 1e-9)
				So(senior.RoleFit, ShouldBeGreaterThanOrEqualTo, plain.RoleFit)
				So(tech.RoleFit, ShouldAlmostEqual, 24, 1e-9)
				So(other.RoleFit, ShouldAlmostEqual, 6, 1e-9)
			})
		})

		Convey("When publication recency varies", func() {
			pub := func(year int, title string) float64 {
				_, b := calc.Score(model.Attributes{RecentPublication: true, PublicationYear: year, PublicationTitle: title}, w)
				return b.Publication
			}

			Convey("Then recent relevant work scores highest", func() {
				So(pub(2024, "Liver organoid applications"), ShouldAlmostEqual, 40, 1e-9)
				So(pub(2024, "Kinase inhibitors"), ShouldAlmostEqual, 32, 1e-9)
				So(pub(2022, "Liver organoid applications"), ShouldAlmostEqual, 20, 1e-9)
				So(pub(2015, "Liver organoid applications"), ShouldAlmostEqual, 4, 1e-9)
				So(pub(0, "DILI"), ShouldAlmostEqual, 4, 1e-9)
			})
		})

		Convey("When funding and location vary", func() {
			score := func(a model.Attributes) model.Breakdown {
				_, b := calc.Score(a, w)
				return b
			}

			Convey("Then stages and hubs map to their fractions", func() {
				So(score(model.Attributes{CompanyFunding: "Public"}).Funding, ShouldAlmostEqual, 16, 1e-9)
				So(score(model.Attributes{CompanyFunding: "Seed"}).Funding, ShouldAlmostEqual, 8, 1e-9)
				So(score(model.Attributes{CompanyFunding: "Unknown"}).Funding, ShouldAlmostEqual, 4, 1e-9)
				So(score(model.Attributes{CompanyFunding: "Private"}).Funding, ShouldAlmostEqual, 4, 1e-9)
				So(score(model.Attributes{Location: "Basel, Switzerland"}).Location, ShouldAlmostEqual, 10, 1e-9)
				So(score(model.Attributes{Location: "London, UK"}).Location, ShouldAlmostEqual, 6, 1e-9)
				So(score(model.Attributes{Location: "Remote - Texas"}).Location, ShouldAlmostEqual, 2, 1e-9)
			})
		})

		Convey("When keyword sets are replaced", func() {
			k := scoring.DefaultKeywords()
			k.PrimaryHubs = []string{"remote"}
			custom := scoring.NewCalculator(scoring.WithClock(fixedNow), scoring.WithKeywords(k))
			_, b := custom.Score(model.Attributes{Location: "Remote - Colorado"}, w)
			So(b.Location, ShouldAlmostEqual, 10, 1e-9)
		})
	})
}

func TestServiceScore(t *testing.T) {
	Convey("Given a scoring service", t, func() {
		ctx := context.Background()
		lead := model.Lead{ID: "lead-1", Name: "Dr. Sarah Mitchell", Attributes: model.Attributes{
			Title: "Director of Toxicology", RecentPublication: true, PublicationYear: 2025,
			PublicationTitle: "DILI prediction", CompanyFunding: "Series B", Location: "Cambridge, MA",
		}}

		Convey("When no enricher is configured", func() {
			r := newService().Score(ctx, lead)

			Convey("Then there is no intent entry", func() {
				So(r.Total, ShouldEqual, 100)
				So(r.Tier, ShouldEqual, model.TierHigh)
				So(r.Breakdown.ScientificIntentAI, ShouldBeNil)
				So(r.LeadID, ShouldEqual, "lead-1")
			})
		})

		Convey("When the enricher grants a full bonus to a perfect lead", func() {
			e := &stubEnricher{bonus: 1}
			r := newService(scoring.WithEnricher(e)).Score(ctx, lead)

			Convey("Then the intent entry is recorded and the total stays clamped", func() {
				So(*r.Breakdown.ScientificIntentAI, ShouldEqual, 20)
				So(r.Total, ShouldEqual, 100)
				So(r.Total, ShouldEqual, r.Breakdown.Total())
				So(e.calls.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the enricher grants half a bonus to a baseline lead", func() {
			e := &stubEnricher{bonus: 0.5}
			r := newService(scoring.WithEnricher(e)).Score(ctx, model.Lead{Name: "Dr. James Chen"})

			Convey("Then half the cap is added", func() {
				So(*r.Breakdown.ScientificIntentAI, ShouldEqual, 10)
				So(r.Total, ShouldEqual, 26)
				So(r.Tier, ShouldEqual, model.TierLow)
			})
		})

		Convey("When the cap is configured", func() {
			e := &stubEnricher{bonus: 1}
			r := newService(scoring.WithEnricher(e), scoring.WithBonusCap(5)).Score(ctx, model.Lead{Name: "Dr. James Chen"})
			So(*r.Breakdown.ScientificIntentAI, ShouldEqual, 5)
			So(r.Total, ShouldEqual, 21)
		})

		Convey("When the enricher misbehaves", func() {
			high := newService(scoring.WithEnricher(&stubEnricher{bonus: 3})).Score(ctx, model.Lead{Name: "x"})
			nan := newService(scoring.WithEnricher(&stubEnricher{bonus: math.NaN()})).Score(ctx, model.Lead{Name: "x"})
			neg := newService(scoring.WithEnricher(&stubEnricher{bonus: -1})).Score(ctx, model.Lead{Name: "x"})

			Convey("Then the bonus is clamped to [0,1]", func() {
				So(*high.Breakdown.ScientificIntentAI, ShouldEqual, 20)
				So(*nan.Breakdown.ScientificIntentAI, ShouldEqual, 0)
				So(*neg.Breakdown.ScientificIntentAI, ShouldEqual, 0)
				So(nan.Total, ShouldEqual, 16)
			})
		})

		Convey("When scoring the same lead twice", func() {
			s := newService(scoring.WithEnricher(&stubEnricher{bonus: 0.5}))
			So(s.Score(ctx, lead), ShouldResemble, s.Score(ctx, lead))
		})

		Convey("When weights come from a custom map", func() {
			s, err := scoring.NewServiceFromMap(map[string]int{"role_fit": 50, "publication": 20, "funding": 20, "location": 10},
				scoring.WithCalculator(scoring.NewCalculator(scoring.WithClock(fixedNow))))
			So(err, ShouldBeNil)
			r := s.Score(ctx, model.Lead{Attributes: model.Attributes{Title: "Toxicologist"}})
			So(r.Breakdown.RoleFit, ShouldEqual, 50)
			So(r.Total, ShouldEqual, 50+2+4+2)
			So(s.Weights().RoleFit, ShouldEqual, 50)
		})
	})
}

func TestServiceScoreEdgeWeights(t *testing.T) {
	Convey("Given extreme weight splits and a full relevance bonus", t, func() {
		ctx := context.Background()
		splits := []map[string]int{
			{"role_fit": 100, "publication": 0, "funding": 0, "location": 0},
			{"role_fit": 0, "publication": 100, "funding": 0, "location": 0},
			{"role_fit": 0, "publication": 0, "funding": 100, "location": 0},
			{"role_fit": 0, "publication": 0, "funding": 0, "location": 100},
			{"role_fit": 25, "publication": 25, "funding": 25, "location": 25},
		}
		leads := []model.Lead{
			{Name: "Dr. Sarah Mitchell", Attributes: model.Attributes{
				Title: "Director of Toxicology", RecentPublication: true, PublicationYear: 2026,
				PublicationTitle: "DILI prediction", CompanyFunding: "Series B", Location: "Cambridge, MA",
			}},
			{Name: "Alex Smith", Attributes: model.Attributes{Title: "Account Manager"}},
			{Name: "Nobody"},
		}

		for _, split := range splits {
			s, err := scoring.NewServiceFromMap(split,
				scoring.WithCalculator(scoring.NewCalculator(scoring.WithClock(fixedNow))),
				scoring.WithEnricher(&stubEnricher{bonus: 1}))
			So(err, ShouldBeNil)

			for _, lead := range leads {
				r := s.Score(ctx, lead)
				So(r.Total, ShouldBeBetweenOrEqual, model.MinScore, model.MaxScore)
				So(r.Total, ShouldEqual, r.Breakdown.Total())
				So(r.Tier, ShouldEqual, model.TierFor(r.Total))
				So(*r.Breakdown.ScientificIntentAI, ShouldEqual, scoring.DefaultBonusCap)
				So(r.Breakdown.Weights, ShouldResemble, split)
				for _, c := range r.Breakdown.Components()[:len(scoring.Factors)] {
					So(c.Points, ShouldBeBetweenOrEqual, 0.0, float64(split[c.Name]))
				}
			}
		}
	})
}

func TestServiceScoreBatch(t *testing.T) {
	Convey("Given a batch of leads", t, func() {
		e := &stubEnricher{bonus: 0}
		s := newService(scoring.WithEnricher(e), scoring.WithBatchConcurrency(3))
		titles := []string{"Director of Toxicology", "", "Principal Scientist", "Account Manager", "VP Safety Assessment", "Staff Scientist"}
		leads := make([]model.Lead, len(titles))
		for i, title := range titles {
			leads[i] = model.Lead{ID: string(rune('a' + i)), Name: "Dr. Lee", Attributes: model.Attributes{Title: title}}
		}

		Convey("When scoring in parallel", func() {
			results := s.ScoreBatch(context.Background(), leads)

			Convey("Then results keep input order and match sequential scoring", func() {
				So(len(results), ShouldEqual, len(leads))
				for i := range leads {
					So(results[i].LeadID, ShouldEqual, leads[i].ID)
					So(results[i], ShouldResemble, s.Score(context.Background(), leads[i]))
					So(results[i].Total, ShouldBeBetweenOrEqual, 0, 100)
				}
				So(e.calls.Load(), ShouldEqual, 2*len(leads))
			})
		})

		Convey("When the batch is empty", func() {
			So(s.ScoreBatch(context.Background(), nil), ShouldBeEmpty)
		})
	})
}

func TestExplain(t *testing.T) {
	Convey("Given a scored lead", t, func() {
		s := newService(scoring.WithEnricher(&stubEnricher{bonus: 0.5}))
		lead := model.Lead{Name: "Dr. Maria Garcia", Attributes: model.Attributes{
			Title: "Head of Preclinical Safety", RecentPublication: true, PublicationYear: 2025,
			PublicationTitle: "Organ-on-chip", CompanyFunding: "Public", Location: "Boston, MA",
		}}
		r := s.Score(context.Background(), lead)
		text := s.Explain(lead, r)

		Convey("Then the explanation lists every factor against its weight", func() {
			So(text, ShouldStartWith, "Lead Score: 98/100 (HIGH Priority)")
			So(text, ShouldContainSubstring, "• Role Fit: 30.0/30 points")
			So(text, ShouldContainSubstring, "  - Job title: Head of Preclinical Safety")
			So(text, ShouldContainSubstring, "• Publication: 32.0/40 points")
			So(text, ShouldContainSubstring, "  - Year: 2025")
			So(text, ShouldContainSubstring, "• Funding: 16.0/20 points")
			So(text, ShouldContainSubstring, "• Location: 10.0/10 points")
			So(text, ShouldContainSubstring, "• Scientific Intent (AI): 10.0/20 points")
			So(text, ShouldEndWith, "Recommendation: HIGH priority outreach - strong fit!")
		})

		Convey("Then a result scored under other weights is rendered against them", func() {
			current, err := scoring.NewServiceFromMap(map[string]int{"role_fit": 10, "publication": 10, "funding": 10, "location": 70},
				scoring.WithCalculator(scoring.NewCalculator(scoring.WithClock(fixedNow))))
			So(err, ShouldBeNil)
			out := current.Explain(lead, r)
			So(out, ShouldContainSubstring, "• Publication: 32.0/40 points")
			So(out, ShouldContainSubstring, "• Location: 10.0/10 points")
			So(out, ShouldContainSubstring, "Note: scored under earlier weights (role_fit=30 publication=40 funding=20 location=10)")
			So(out, ShouldContainSubstring, "current weights are (role_fit=10 publication=10 funding=10 location=70)")
			So(text, ShouldNotContainSubstring, "Note:")
		})

		Convey("Then missing attributes render placeholders", func() {
			plain := newService()
			empty := model.Lead{}
			out := plain.Explain(empty, plain.Score(context.Background(), empty))
			So(out, ShouldContainSubstring, "Job title: N/A")
			So(out, ShouldContainSubstring, "Company stage: Unknown")
			So(out, ShouldNotContainSubstring, "Scientific Intent")
			So(strings.HasSuffix(out, "consider for nurture campaign"), ShouldBeTrue)
		})
	})
}

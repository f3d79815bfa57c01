package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/leadrank/internal/adapters/http/api"
	service "github.com/okian/leadrank/internal/app"
	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/scoring"
	"github.com/okian/leadrank/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// shiftingEnricher grants no bonus on its first lookup and a full bonus on
// every later one.
type shiftingEnricher struct {
	calls atomic.Int32
}

func (e *shiftingEnricher) RelevanceBonus(context.Context, string) float64 {
	if e.calls.Add(1) == 1 {
		return 0
	}
	return 1
}

var fixedNow = func() time.Time { return time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC) }

const strongLead = `{"name":"Dr. Sarah Mitchell","attributes":{"title":"Director of Toxicology",
"recent_publication":true,"publication_year":2026,"publication_title":"DILI in liver organoids",
"company_funding":"Series B","location":"Cambridge, MA"}}`

const weakLead = `{"name":"Alex Smith","attributes":{"title":"Account Manager"}}`

type client struct {
	base string
}

func (c client) do(method, path, owner, body string) (int, []byte) {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	So(err, ShouldBeNil)
	if owner != "" {
		req.Header.Set(api.OwnerHeader, owner)
	}
	resp, err := http.DefaultClient.Do(req)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp.StatusCode, data
}

func decode[T any](data []byte) T {
	var v T
	So(json.Unmarshal(data, &v), ShouldBeNil)
	return v
}

func newTestServer(ctx context.Context, opts ...service.Option) (client, *service.Service, func()) {
	svc, err := service.New(append([]service.Option{
		service.WithCalculator(scoring.NewCalculator(scoring.WithClock(fixedNow))),
		service.WithWorkerCount(2),
	}, opts...)...)
	So(err, ShouldBeNil)
	So(svc.Start(ctx), ShouldBeNil)

	mux := http.NewServeMux()
	api.NewServer(svc).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return client{base: srv.URL}, svc, func() {
		srv.Close()
		svc.Stop()
	}
}

func TestLeadRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		c, _, stop := newTestServer(ctx)
		defer stop()

		Convey("When a lead is created without an owner header", func() {
			status, body := c.do(http.MethodPost, "/leads", "", strongLead)

			Convey("Then the request is rejected", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(string(body), ShouldContainSubstring, "X-Owner-ID")
			})
		})

		Convey("When the body is not JSON", func() {
			status, _ := c.do(http.MethodPost, "/leads", "owner-1", "{")
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the lead has no name", func() {
			status, _ := c.do(http.MethodPost, "/leads", "owner-1", `{"name":" "}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When two leads are created", func() {
			status, body := c.do(http.MethodPost, "/leads", "owner-1", weakLead)
			So(status, ShouldEqual, http.StatusCreated)
			weak := decode[model.Lead](body)
			status, body = c.do(http.MethodPost, "/leads", "owner-1", strongLead)
			So(status, ShouldEqual, http.StatusCreated)
			strong := decode[model.Lead](body)

			Convey("Then they are scored", func() {
				So(weak.Score, ShouldEqual, 16)
				So(strong.Score, ShouldEqual, 100)
				So(strong.Tier, ShouldEqual, model.TierHigh)
				So(*strong.Rank, ShouldEqual, 1)
			})

			Convey("Then the list is in rank order", func() {
				status, body := c.do(http.MethodGet, "/leads", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				list := decode[struct {
					Count int          `json:"count"`
					Leads []model.Lead `json:"leads"`
				}](body)
				So(list.Count, ShouldEqual, 2)
				So(list.Leads[0].ID, ShouldEqual, strong.ID)
				So(*list.Leads[1].Rank, ShouldEqual, 2)
			})

			Convey("Then the owner ranks are consistent", func() {
				status, body := c.do(http.MethodGet, "/owners/owner-1/ranks", "", "")
				So(status, ShouldEqual, http.StatusOK)
				ranks := decode[struct {
					Status string `json:"status"`
					Ranks  []struct {
						Rank   int    `json:"rank"`
						LeadID string `json:"lead_id"`
					} `json:"ranks"`
				}](body)
				So(ranks.Status, ShouldEqual, "consistent")
				So(ranks.Ranks, ShouldHaveLength, 2)
				So(ranks.Ranks[1].LeadID, ShouldEqual, weak.ID)
			})

			Convey("Then another owner cannot read them", func() {
				status, _ := c.do(http.MethodGet, "/leads/"+strong.ID, "owner-2", "")
				So(status, ShouldEqual, http.StatusNotFound)
			})

			Convey("Then a lead can be explained", func() {
				status, body := c.do(http.MethodGet, "/leads/"+strong.ID+"/explain", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, "Lead Score: 100/100 (HIGH Priority)")
			})

			Convey("Then the list can be filtered and paged", func() {
				type page struct {
					Count int          `json:"count"`
					Total int          `json:"total"`
					Pages int          `json:"pages"`
					Leads []model.Lead `json:"leads"`
				}
				list := func(query string) page {
					status, body := c.do(http.MethodGet, "/leads?"+query, "owner-1", "")
					So(status, ShouldEqual, http.StatusOK)
					return decode[page](body)
				}
				So(list("priority_tier=high").Leads[0].ID, ShouldEqual, strong.ID)
				So(list("priority_tier=high").Total, ShouldEqual, 1)
				So(list("min_score=50").Leads[0].ID, ShouldEqual, strong.ID)
				So(list("max_score=16").Leads[0].ID, ShouldEqual, weak.ID)
				So(list("search=toxicology").Leads[0].ID, ShouldEqual, strong.ID)
				So(list("has_publication=false").Leads[0].ID, ShouldEqual, weak.ID)
				So(list("search=nobody").Total, ShouldEqual, 0)

				second := list("size=1&page=2")
				So(second.Count, ShouldEqual, 1)
				So(second.Total, ShouldEqual, 2)
				So(second.Pages, ShouldEqual, 2)
				So(second.Leads[0].ID, ShouldEqual, weak.ID)

				for _, bad := range []string{"min_score=abc", "size=500", "page=0&size=0&priority_tier=urgent", "has_publication=maybe", "min_score=80&max_score=20"} {
					status, _ := c.do(http.MethodGet, "/leads?"+bad, "owner-1", "")
					So(status, ShouldEqual, http.StatusBadRequest)
				}
			})

			Convey("Then bulk delete reports unknown IDs and re-ranks the rest", func() {
				status, body := c.do(http.MethodPost, "/leads/bulk/delete", "owner-1",
					`{"ids":["`+strong.ID+`","missing","`+strong.ID+`"]}`)
				So(status, ShouldEqual, http.StatusOK)
				res := decode[struct {
					SuccessCount int `json:"success_count"`
					FailureCount int `json:"failure_count"`
					Total        int `json:"total"`
					Errors       []struct {
						ID    string `json:"id"`
						Error string `json:"error"`
					} `json:"errors"`
				}](body)
				So(res.SuccessCount, ShouldEqual, 1)
				So(res.FailureCount, ShouldEqual, 1)
				So(res.Total, ShouldEqual, 2)
				So(res.Errors[0].ID, ShouldEqual, "missing")

				status, body = c.do(http.MethodGet, "/leads/"+weak.ID, "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(*decode[model.Lead](body).Rank, ShouldEqual, 1)

				status, body = c.do(http.MethodGet, "/owners/owner-1/ranks", "", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"status":"consistent"`)
			})

			Convey("Then another owner cannot bulk delete them", func() {
				status, body := c.do(http.MethodPost, "/leads/bulk/delete", "owner-2", `{"ids":["`+weak.ID+`"]}`)
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"success_count":0`)
				status, _ = c.do(http.MethodGet, "/leads/"+weak.ID, "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
			})

			Convey("Then bulk delete without IDs is rejected", func() {
				status, _ := c.do(http.MethodPost, "/leads/bulk/delete", "owner-1", `{"ids":[]}`)
				So(status, ShouldEqual, http.StatusBadRequest)
			})

			Convey("Then a lead explained after a weight change shows the weights it was scored under", func() {
				status, _ := c.do(http.MethodPut, "/owners/owner-1/weights", "",
					`{"role_fit":10,"publication":10,"funding":10,"location":70}`)
				So(status, ShouldEqual, http.StatusOK)

				status, body := c.do(http.MethodGet, "/leads/"+strong.ID+"/explain", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, "Publication: 40.0/40 points")
				So(string(body), ShouldContainSubstring, "scored under earlier weights")

				status, _ = c.do(http.MethodPost, "/leads/"+strong.ID+"/score", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				status, body = c.do(http.MethodGet, "/leads/"+strong.ID+"/explain", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, "Location: 70.0/70 points")
				So(string(body), ShouldNotContainSubstring, "earlier weights")
			})

			Convey("Then updating the weak lead moves it up", func() {
				status, body := c.do(http.MethodPut, "/leads/"+weak.ID, "owner-1", strongLead)
				So(status, ShouldEqual, http.StatusOK)
				So(decode[model.Lead](body).Score, ShouldEqual, 100)
			})

			Convey("Then deleting the strong lead re-ranks the scope", func() {
				status, _ := c.do(http.MethodDelete, "/leads/"+strong.ID, "owner-1", "")
				So(status, ShouldEqual, http.StatusNoContent)
				status, _ = c.do(http.MethodGet, "/leads/"+strong.ID, "owner-1", "")
				So(status, ShouldEqual, http.StatusNotFound)
				status, body := c.do(http.MethodGet, "/leads/"+weak.ID, "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(*decode[model.Lead](body).Rank, ShouldEqual, 1)
			})

			Convey("Then new weights apply once the owner is rescored", func() {
				status, body := c.do(http.MethodPut, "/owners/owner-1/weights", "",
					`{"role_fit":10,"publication":10,"funding":10,"location":70}`)
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"location":70`)

				status, body = c.do(http.MethodPost, "/owners/owner-1/rescore", "", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"rescored":2`)

				status, body = c.do(http.MethodPost, "/leads/"+weak.ID+"/score", "owner-1", "")
				So(status, ShouldEqual, http.StatusOK)
				So(decode[model.Lead](body).Score, ShouldEqual, 19)
			})
		})

		Convey("When weights do not sum to 100", func() {
			status, body := c.do(http.MethodPut, "/owners/owner-1/weights", "", `{"role_fit":10}`)

			Convey("Then they are rejected", func() {
				So(status, ShouldEqual, http.StatusBadRequest)
				So(string(body), ShouldContainSubstring, "invalid_weights")
				status, body := c.do(http.MethodGet, "/owners/owner-1/weights", "", "")
				So(status, ShouldEqual, http.StatusOK)
				So(string(body), ShouldContainSubstring, `"publication":40`)
			})
		})

		Convey("When bulk creating", func() {
			status, body := c.do(http.MethodPost, "/leads/bulk", "owner-3",
				`{"leads":[`+weakLead+`,`+strongLead+`]}`)

			Convey("Then every lead is stored and ranked", func() {
				So(status, ShouldEqual, http.StatusCreated)
				So(string(body), ShouldContainSubstring, `"count":2`)
			})
		})
	})
}

func TestScoreRoute(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		c, svc, stop := newTestServer(ctx)
		defer stop()

		Convey("When scoring with explanations", func() {
			status, body := c.do(http.MethodPost, "/score", "", `{"leads":[`+strongLead+`,`+weakLead+`],"explain":true}`)

			Convey("Then results keep the input order and nothing is stored", func() {
				So(status, ShouldEqual, http.StatusOK)
				resp := decode[struct {
					Results      []scoring.Result `json:"results"`
					Explanations []string         `json:"explanations"`
				}](body)
				So(resp.Results, ShouldHaveLength, 2)
				So(resp.Results[0].Total, ShouldEqual, 100)
				So(resp.Results[1].Total, ShouldEqual, 16)
				So(resp.Explanations[1], ShouldContainSubstring, "nurture campaign")
				So(svc.GetStats(ctx)["totalLeads"], ShouldEqual, 0)
			})
		})

		Convey("When scoring with invalid weights", func() {
			status, _ := c.do(http.MethodPost, "/score", "", `{"leads":[`+weakLead+`],"weights":{"charm":100}}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When scoring nothing", func() {
			status, _ := c.do(http.MethodPost, "/score", "", `{"leads":[]}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When using the wrong method", func() {
			status, _ := c.do(http.MethodGet, "/score", "", "")
			So(status, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestScoreRouteExplainsReturnedResults(t *testing.T) {
	Convey("Given an API whose enricher answers differently on each lookup", t, func() {
		ctx := context.Background()
		c, _, stop := newTestServer(ctx, service.WithEnricher(&shiftingEnricher{}))
		defer stop()

		Convey("When scoring one lead with an explanation", func() {
			status, body := c.do(http.MethodPost, "/score", "", `{"leads":[`+weakLead+`],"explain":true}`)

			Convey("Then the explanation describes the returned score", func() {
				So(status, ShouldEqual, http.StatusOK)
				resp := decode[struct {
					Results      []scoring.Result `json:"results"`
					Explanations []string         `json:"explanations"`
				}](body)
				So(resp.Results[0].Total, ShouldEqual, 16)
				So(resp.Explanations[0], ShouldStartWith, "Lead Score: 16/100 (LOW Priority)")
				So(resp.Explanations[0], ShouldContainSubstring, "Scientific Intent (AI): 0.0/20 points")
			})
		})
	})
}

func TestImportRoute(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		c, svc, stop := newTestServer(ctx)
		defer stop()

		Convey("When the same import is submitted twice", func() {
			body := `{"import_id":"batch-1","leads":[` + weakLead + `,` + strongLead + `]}`
			status, first := c.do(http.MethodPost, "/imports", "owner-1", body)
			So(status, ShouldEqual, http.StatusAccepted)
			status, second := c.do(http.MethodPost, "/imports", "owner-1", body)

			Convey("Then the second is acknowledged as a duplicate", func() {
				So(string(first), ShouldContainSubstring, `"status":"accepted"`)
				So(status, ShouldEqual, http.StatusOK)
				So(string(second), ShouldContainSubstring, `"duplicate":true`)
			})

			Convey("Then the leads are created once", func() {
				deadline := time.Now().Add(5 * time.Second)
				for time.Now().Before(deadline) && svc.GetStats(ctx)["importsProcessed"] != int64(1) {
					time.Sleep(10 * time.Millisecond)
				}
				leads, err := svc.ListLeads(ctx, "owner-1")
				So(err, ShouldBeNil)
				So(leads, ShouldHaveLength, 2)
			})

			Convey("Then another owner may reuse the import id", func() {
				status, _ := c.do(http.MethodPost, "/imports", "owner-2", body)
				So(status, ShouldEqual, http.StatusAccepted)
			})
		})

		Convey("When an import carries an invalid lead", func() {
			status, _ := c.do(http.MethodPost, "/imports", "owner-1", `{"leads":[{"name":""}]}`)
			So(status, ShouldEqual, http.StatusBadRequest)
		})
	})
}

type fullQueue struct{}

func (fullQueue) SubmitImport(context.Context, model.ImportJob) (bool, bool) { return false, false }

func TestImportBackpressure(t *testing.T) {
	Convey("Given an importer whose queue is full", t, func() {
		h := api.NewImportsHandler(fullQueue{})
		req := httptest.NewRequest(http.MethodPost, "/imports", bytes.NewBufferString(`{"leads":[`+weakLead+`]}`))
		req.Header.Set(api.OwnerHeader, "owner-1")
		rec := httptest.NewRecorder()

		h.HandleSubmit(rec, req)

		Convey("Then the client is told to back off", func() {
			So(rec.Code, ShouldEqual, http.StatusTooManyRequests)
			So(rec.Body.String(), ShouldContainSubstring, "backpressure")
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		ctx := context.Background()
		c, _, stop := newTestServer(ctx)
		defer stop()

		Convey("Then /healthz exposes metrics", func() {
			c.do(http.MethodGet, "/stats", "", "")
			status, body := c.do(http.MethodGet, "/healthz", "", "")
			So(status, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "leadrank_")
		})

		Convey("Then /readyz reports ok", func() {
			status, _ := c.do(http.MethodGet, "/readyz", "", "")
			So(status, ShouldEqual, http.StatusOK)
		})

		Convey("Then /stats reports a started service", func() {
			status, body := c.do(http.MethodGet, "/stats", "", "")
			So(status, ShouldEqual, http.StatusOK)
			So(decode[map[string]any](body)["started"], ShouldEqual, true)
		})
	})
}

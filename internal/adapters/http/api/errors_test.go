package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	service "github.com/okian/leadrank/internal/app"
	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/ranking"
	"github.com/okian/leadrank/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrorKinds(t *testing.T) {
	Convey("Given wrapped API errors", t, func() {
		cause := errors.New("unexpected EOF")
		err := WrapKind("api.op", ErrBadRequest, cause)

		Convey("Then both the kind and the cause match", func() {
			So(errors.Is(err, ErrBadRequest), ShouldBeTrue)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(err.Error(), ShouldEqual, "api.op: bad request: unexpected EOF")
		})

		Convey("Then NewKind and Wrap render their parts", func() {
			So(NewKind("api.op", ErrBackpressure).Error(), ShouldEqual, "api.op: backpressure")
			So(Wrap("api.op", cause).Error(), ShouldEqual, "api.op: unexpected EOF")
			So(Wrap("api.op", nil), ShouldBeNil)
		})
	})
}

func TestWriteFailure(t *testing.T) {
	Convey("Given domain errors", t, func() {
		cases := []struct {
			err    error
			status int
		}{
			{fmt.Errorf("get: %w", model.ErrNotFound), http.StatusNotFound},
			{scoring.ErrInvalidWeightConfig, http.StatusBadRequest},
			{model.ErrInvalidLead, http.StatusBadRequest},
			{service.ErrEmptyImport, http.StatusBadRequest},
			{Wrap("api.op", fmt.Errorf("%w: o: %w", ranking.ErrRecomputeFailed, model.ErrRankConflict)), http.StatusConflict},
			{NewKind("api.op", ErrBackpressure), http.StatusTooManyRequests},
			{errors.New("disk on fire"), http.StatusInternalServerError},
		}

		Convey("Then each maps to its status code", func() {
			for _, c := range cases {
				rec := httptest.NewRecorder()
				writeFailure(rec, c.err)
				So(rec.Code, ShouldEqual, c.status)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			}
		})
	})
}

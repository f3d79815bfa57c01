// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	service "github.com/okian/leadrank/internal/app"
	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/ranking"
	"github.com/okian/leadrank/internal/domain/scoring"
	"github.com/okian/leadrank/internal/domain/types"
)

// OwnerHeader carries the scope of lead operations.
const OwnerHeader = "X-Owner-ID"

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 16 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	LeadDependencies
	ScoreDependencies
	ImportDependencies
	OwnerDependencies
	StatsProvider
	ReadinessChecker
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	leadsHandler   *LeadsHandler
	scoreHandler   *ScoreHandler
	importsHandler *ImportsHandler
	ownersHandler  *OwnersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(deps),
		statsHandler:   NewStatsHandler(deps),
		leadsHandler:   NewLeadsHandler(deps),
		scoreHandler:   NewScoreHandler(deps),
		importsHandler: NewImportsHandler(deps),
		ownersHandler:  NewOwnersHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /leads", MetricsMiddleware(s.leadsHandler.HandleList, "leads"))
	mux.HandleFunc("POST /leads", MetricsMiddleware(s.leadsHandler.HandleCreate, "leads"))
	mux.HandleFunc("POST /leads/bulk", MetricsMiddleware(s.leadsHandler.HandleBulkCreate, "leads_bulk"))
	mux.HandleFunc("POST /leads/bulk/delete", MetricsMiddleware(s.leadsHandler.HandleBulkDelete, "leads_bulk_delete"))
	mux.HandleFunc("GET /leads/{id}", MetricsMiddleware(s.leadsHandler.HandleGet, "lead"))
	mux.HandleFunc("PUT /leads/{id}", MetricsMiddleware(s.leadsHandler.HandleUpdate, "lead"))
	mux.HandleFunc("DELETE /leads/{id}", MetricsMiddleware(s.leadsHandler.HandleDelete, "lead"))
	mux.HandleFunc("POST /leads/{id}/score", MetricsMiddleware(s.leadsHandler.HandleRescore, "lead_score"))
	mux.HandleFunc("GET /leads/{id}/explain", MetricsMiddleware(s.leadsHandler.HandleExplain, "lead_explain"))

	mux.HandleFunc("POST /score", MetricsMiddleware(s.scoreHandler.HandleScore, "score"))
	mux.HandleFunc("POST /imports", MetricsMiddleware(s.importsHandler.HandleSubmit, "imports"))

	mux.HandleFunc("GET /owners/{owner}/ranks", MetricsMiddleware(s.ownersHandler.HandleGetRanks, "owner_ranks"))
	mux.HandleFunc("POST /owners/{owner}/ranks", MetricsMiddleware(s.ownersHandler.HandleRecompute, "owner_ranks"))
	mux.HandleFunc("GET /owners/{owner}/weights", MetricsMiddleware(s.ownersHandler.HandleGetWeights, "owner_weights"))
	mux.HandleFunc("PUT /owners/{owner}/weights", MetricsMiddleware(s.ownersHandler.HandleSetWeights, "owner_weights"))
	mux.HandleFunc("POST /owners/{owner}/rescore", MetricsMiddleware(s.ownersHandler.HandleRescore, "owner_rescore"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors to status codes.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, scoring.ErrInvalidWeightConfig):
		writeError(w, http.StatusBadRequest, "invalid_weights", err)
	case errors.Is(err, model.ErrInvalidLead),
		errors.Is(err, service.ErrMissingOwner),
		errors.Is(err, service.ErrEmptyImport),
		errors.Is(err, service.ErrEmptyBulk),
		errors.Is(err, types.ErrInvalidFilter),
		errors.Is(err, ErrMissingOwner),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, ranking.ErrRecomputeFailed), errors.Is(err, model.ErrRankConflict):
		writeError(w, http.StatusConflict, "rank_conflict", err)
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}

func ownerFrom(r *http.Request) (string, error) {
	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	if owner == "" {
		return "", ErrMissingOwner
	}
	return owner, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/scoring"
)

const maxScoreBatch = 500

// ScoreDependencies defines stateless scoring.
type ScoreDependencies interface {
	ScoreBatch(ctx context.Context, leads []model.Lead, weights map[string]int) ([]scoring.Result, error)
	ExplainResult(ctx context.Context, lead model.Lead, r scoring.Result, weights map[string]int) (string, error)
}

// ScoreHandler handles POST /score. Nothing is persisted.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

type scoreLead struct {
	ID         string           `json:"id,omitempty"`
	Name       string           `json:"name"`
	Attributes model.Attributes `json:"attributes"`
}

// scoreRequest scores leads with explicit weights, or with the weights of
// the X-Owner-ID scope when weights is omitted.
type scoreRequest struct {
	Leads   []scoreLead    `json:"leads"`
	Weights map[string]int `json:"weights,omitempty"`
	Explain bool           `json:"explain,omitempty"`
}

type scoreResponse struct {
	Results      []scoring.Result `json:"results"`
	Explanations []string         `json:"explanations,omitempty"`
}

// HandleScore handles POST /score.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.score"
	var req scoreRequest
	if err := decodeJSON(w, r, maxImportBytes, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Leads) == 0 || len(req.Leads) > maxScoreBatch {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}

	owner := strings.TrimSpace(r.Header.Get(OwnerHeader))
	leads := make([]model.Lead, len(req.Leads))
	for i, l := range req.Leads {
		leads[i] = model.Lead{ID: l.ID, OwnerID: owner, Name: l.Name, Attributes: l.Attributes}
	}

	results, err := h.deps.ScoreBatch(r.Context(), leads, req.Weights)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	resp := scoreResponse{Results: results}
	if req.Explain {
		resp.Explanations = make([]string, len(leads))
		for i := range leads {
			text, err := h.deps.ExplainResult(r.Context(), leads[i], results[i], req.Weights)
			if err != nil {
				writeFailure(w, Wrap(op, err))
				return
			}
			resp.Explanations[i] = text
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

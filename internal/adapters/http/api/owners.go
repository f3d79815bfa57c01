package api

import (
	"context"
	"net/http"

	"github.com/okian/leadrank/internal/domain/ranking"
	"github.com/okian/leadrank/internal/domain/scoring"
	"github.com/okian/leadrank/internal/domain/types"
)

// OwnerDependencies defines scope-wide operations.
type OwnerDependencies interface {
	Ranks(ctx context.Context, owner string) ([]types.RankEntry, error)
	RankStatus(owner string) ranking.Status
	RecomputeRanks(ctx context.Context, owner string) error
	OwnerWeights(owner string) scoring.Weights
	SetOwnerWeights(ctx context.Context, owner string, weights map[string]int) (scoring.Weights, error)
	RescoreOwner(ctx context.Context, owner string) (int, error)
}

// OwnersHandler handles /owners/{owner} requests.
type OwnersHandler struct {
	deps OwnerDependencies
}

// NewOwnersHandler creates a new owners handler.
func NewOwnersHandler(deps OwnerDependencies) *OwnersHandler {
	return &OwnersHandler{deps: deps}
}

type ranksResponse struct {
	Owner  string            `json:"owner"`
	Status string            `json:"status"`
	Ranks  []types.RankEntry `json:"ranks"`
}

type weightsResponse struct {
	Owner   string          `json:"owner"`
	Weights scoring.Weights `json:"weights"`
}

type rescoreResponse struct {
	Owner    string `json:"owner"`
	Rescored int    `json:"rescored"`
}

// HandleGetRanks handles GET /owners/{owner}/ranks.
func (h *OwnersHandler) HandleGetRanks(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_ranks"
	owner := r.PathValue("owner")
	entries, err := h.deps.Ranks(r.Context(), owner)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ranksResponse{Owner: owner, Status: h.deps.RankStatus(owner).String(), Ranks: entries})
}

// HandleRecompute handles POST /owners/{owner}/ranks.
func (h *OwnersHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute_ranks"
	owner := r.PathValue("owner")
	if err := h.deps.RecomputeRanks(r.Context(), owner); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	h.HandleGetRanks(w, r)
}

// HandleGetWeights handles GET /owners/{owner}/weights.
func (h *OwnersHandler) HandleGetWeights(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	writeJSON(w, http.StatusOK, weightsResponse{Owner: owner, Weights: h.deps.OwnerWeights(owner)})
}

// HandleSetWeights handles PUT /owners/{owner}/weights. The body is a
// factor-name to points map summing to 100. Existing scores are not
// changed until the owner is rescored.
func (h *OwnersHandler) HandleSetWeights(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_weights"
	owner := r.PathValue("owner")
	var req map[string]int
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	weights, err := h.deps.SetOwnerWeights(r.Context(), owner, req)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, weightsResponse{Owner: owner, Weights: weights})
}

// HandleRescore handles POST /owners/{owner}/rescore.
func (h *OwnersHandler) HandleRescore(w http.ResponseWriter, r *http.Request) {
	const op = "api.rescore_owner"
	owner := r.PathValue("owner")
	n, err := h.deps.RescoreOwner(r.Context(), owner)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rescoreResponse{Owner: owner, Rescored: n})
}

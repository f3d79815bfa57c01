package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/leadrank/internal/domain/model"
	"github.com/okian/leadrank/internal/domain/types"
)

// LeadDependencies defines the lead lifecycle operations.
type LeadDependencies interface {
	CreateLead(ctx context.Context, owner string, draft model.LeadDraft, score bool) (model.Lead, error)
	BulkCreate(ctx context.Context, owner string, drafts []model.LeadDraft, score bool) ([]model.Lead, error)
	GetLead(ctx context.Context, owner, id string) (model.Lead, error)
	UpdateLead(ctx context.Context, owner, id string, draft model.LeadDraft) (model.Lead, error)
	DeleteLead(ctx context.Context, owner, id string) error
	BulkDelete(ctx context.Context, owner string, ids []string) (types.BulkResult, error)
	RescoreLead(ctx context.Context, owner, id string) (model.Lead, error)
	ExplainLead(ctx context.Context, owner, id string) (string, error)
	SearchLeads(ctx context.Context, owner string, filter types.LeadFilter) (types.LeadPage, error)
}

// LeadsHandler handles /leads requests. Every route is scoped by the
// X-Owner-ID header.
type LeadsHandler struct {
	deps LeadDependencies
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(deps LeadDependencies) *LeadsHandler {
	return &LeadsHandler{deps: deps}
}

type leadListResponse struct {
	Owner string       `json:"owner"`
	Count int          `json:"count"`
	Leads []model.Lead `json:"leads"`
}

type leadPageResponse struct {
	Owner string       `json:"owner"`
	Count int          `json:"count"`
	Leads []model.Lead `json:"leads"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
	Total int          `json:"total"`
	Pages int          `json:"pages"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type bulkRequest struct {
	Leads []model.LeadDraft `json:"leads"`
	Score *bool             `json:"score,omitempty"`
}

type explainResponse struct {
	LeadID      string `json:"lead_id"`
	Explanation string `json:"explanation"`
}

// HandleList handles GET /leads[?search=&min_score=&max_score=&priority_tier=
// &has_publication=&page=&size=]. Leads come back in rank order.
func (h *LeadsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_leads"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	filter, err := leadFilterFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	page, err := h.deps.SearchLeads(r.Context(), owner, filter)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, leadPageResponse{
		Owner: owner,
		Count: len(page.Leads),
		Leads: page.Leads,
		Page:  page.Page,
		Size:  page.Size,
		Total: page.Total,
		Pages: page.Pages,
	})
}

func leadFilterFrom(r *http.Request) (types.LeadFilter, error) {
	q := r.URL.Query()
	f := types.LeadFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Tier:   model.Tier(strings.ToUpper(strings.TrimSpace(q.Get("priority_tier")))),
	}
	var err error
	if f.MinScore, err = optionalInt(q.Get("min_score"), "min_score"); err != nil {
		return f, err
	}
	if f.MaxScore, err = optionalInt(q.Get("max_score"), "max_score"); err != nil {
		return f, err
	}
	if raw := q.Get("has_publication"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, fmt.Errorf("has_publication: %w", err)
		}
		f.HasPublication = &v
	}
	for name, dst := range map[string]*int{"page": &f.Page, "size": &f.Size} {
		v, err := optionalInt(q.Get(name), name)
		if err != nil {
			return f, err
		}
		if v != nil {
			*dst = *v
		}
	}
	return f, nil
}

func optionalInt(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &v, nil
}

// HandleCreate handles POST /leads[?score=false].
func (h *LeadsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	score, err := boolQuery(r, "score", true)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var draft model.LeadDraft
	if err := decodeJSON(w, r, maxBodyBytes, &draft); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	lead, err := h.deps.CreateLead(r.Context(), owner, draft, score)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

// HandleBulkCreate handles POST /leads/bulk. Scoring defaults to on.
func (h *LeadsHandler) HandleBulkCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.bulk_create"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req bulkRequest
	if err := decodeJSON(w, r, maxImportBytes, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	score := req.Score == nil || *req.Score
	leads, err := h.deps.BulkCreate(r.Context(), owner, req.Leads, score)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, leadListResponse{Owner: owner, Count: len(leads), Leads: leads})
}

// HandleGet handles GET /leads/{id}.
func (h *LeadsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	lead, err := h.deps.GetLead(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HandleUpdate handles PUT /leads/{id}.
func (h *LeadsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var draft model.LeadDraft
	if err := decodeJSON(w, r, maxBodyBytes, &draft); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	lead, err := h.deps.UpdateLead(r.Context(), owner, r.PathValue("id"), draft)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HandleDelete handles DELETE /leads/{id}.
func (h *LeadsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.DeleteLead(r.Context(), owner, r.PathValue("id")); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBulkDelete handles POST /leads/bulk/delete. IDs that are not in the
// owner's scope are reported in the response, not as a failure.
func (h *LeadsHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.bulk_delete"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, maxBodyBytes, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.BulkDelete(r.Context(), owner, req.IDs)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRescore handles POST /leads/{id}/score.
func (h *LeadsHandler) HandleRescore(w http.ResponseWriter, r *http.Request) {
	const op = "api.rescore_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	lead, err := h.deps.RescoreLead(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HandleExplain handles GET /leads/{id}/explain.
func (h *LeadsHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	const op = "api.explain_lead"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	id := r.PathValue("id")
	text, err := h.deps.ExplainLead(r.Context(), owner, id)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, explainResponse{LeadID: id, Explanation: text})
}

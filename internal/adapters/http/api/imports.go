package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/leadrank/internal/domain/model"
)

// ImportDependencies defines asynchronous bulk import.
type ImportDependencies interface {
	// SubmitImport queues a job. duplicate reports an already seen import
	// ID; accepted is false on backpressure.
	SubmitImport(ctx context.Context, job model.ImportJob) (duplicate bool, accepted bool)
}

// ImportsHandler handles import requests.
type ImportsHandler struct {
	deps ImportDependencies
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(deps ImportDependencies) *ImportsHandler {
	return &ImportsHandler{deps: deps}
}

// importRequest mirrors the OpenAPI schema for POST /imports. Clients send
// a stable import_id so a retried submission is not created twice.
type importRequest struct {
	ImportID string            `json:"import_id"`
	Leads    []model.LeadDraft `json:"leads"`
	Score    *bool             `json:"score,omitempty"`
}

type ackResponse struct {
	Status    string `json:"status"`
	ImportID  string `json:"import_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandleSubmit handles POST /imports.
func (h *ImportsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_import"
	owner, err := ownerFrom(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req importRequest
	if err := decodeJSON(w, r, maxImportBytes, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(req.Leads) == 0 {
		writeFailure(w, NewKind(op, ErrBadRequest))
		return
	}
	for _, d := range req.Leads {
		if err := d.Validate(); err != nil {
			writeFailure(w, WrapKind(op, ErrBadRequest, err))
			return
		}
	}

	id := strings.TrimSpace(req.ImportID)
	if id == "" {
		id = uuid.NewString()
	}
	job := model.ImportJob{
		ID:      owner + "/" + id,
		OwnerID: owner,
		Leads:   req.Leads,
		Score:   req.Score == nil || *req.Score,
	}

	duplicate, accepted := h.deps.SubmitImport(r.Context(), job)
	switch {
	case duplicate:
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ImportID: id, Duplicate: true})
	case !accepted:
		writeFailure(w, NewKind(op, ErrBackpressure))
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ImportID: id})
	}
}

package http

import (
	"fmt"
	"net/http"

	"cantiere/internal/auth"
	"cantiere/internal/core"
)

func (s *Server) handleCreateVenture(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	var req createVentureRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	res, err := s.ventures.Create(r.Context(), actor, req.Name)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.dashCache.Clear()
	NewResponse().Status(http.StatusCreated).
		JSON(ventureResponse{Venture: ventureToJSON(res.Venture), Warning: res.Warning}).
		Write(w)
}

func (s *Server) handleListVentures(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	items, err := s.ventures.List(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	out := make([]ventureJSON, 0, len(items))
	for _, v := range items {
		out = append(out, ventureToJSON(v))
	}
	NewResponse().JSON(struct {
		Items []ventureJSON `json:"items"`
	}{Items: out}).Write(w)
}

func (s *Server) handleGetVenture(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	v, err := s.ventures.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	NewResponse().JSON(ventureToJSON(v)).Write(w)
}

// handleProvisionLedger creates a ledger for a venture that was created
// without one, or whose create-time provisioning failed.
func (s *Server) handleProvisionLedger(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}
	if !auth.SeesAllRecords(actor.Role) {
		WriteError(w, r, fmt.Errorf("provision ledger: %w", core.ErrForbidden))
		return
	}

	v, err := s.ventures.ProvisionLedger(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	NewResponse().JSON(ventureToJSON(v)).Write(w)
}

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cantiere/internal/auth"
	"cantiere/internal/core"
)

var errInvalidUpload = errors.New("invalid upload")

const defaultPageLimit = 20

// storeUpload pushes inline attachment bytes to the document store and
// returns the reference the expense will carry.
func (s *Server) storeUpload(r *http.Request, up *uploadJSON, folder string) (core.Attachment, error) {
	if s.docs == nil {
		return core.Attachment{}, fmt.Errorf("%w: no document store configured", errInvalidUpload)
	}
	if len(up.Content) == 0 || strings.TrimSpace(up.Name) == "" {
		return core.Attachment{}, fmt.Errorf("%w: name and content required", errInvalidUpload)
	}
	stored, err := s.docs.Store(r.Context(), up.Content, up.Name, up.MimeType, folder)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("store attachment %q: %w", up.Name, err)
	}
	return core.Attachment{FileID: stored.ID, Name: stored.Name, URL: stored.URL}, nil
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	var req createExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req.Upload != nil {
		stored, err := s.storeUpload(r, req.Upload, in.VentureID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		in.Attachments = append(in.Attachments, stored)
	}

	res, err := s.lifecycle.Create(r.Context(), actor, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.invalidateDashboards(res.Expense.VentureID)
	NewResponse().Status(http.StatusCreated).
		JSON(mutationResponse{Expense: expenseToJSON(res.Expense), Warning: res.Warning}).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	e, err := s.lifecycle.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	NewResponse().JSON(expenseToJSON(e)).Write(w)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	in := parseListQuery(r)
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = defaultPageLimit
	}

	res, err := s.lifecycle.List(r.Context(), actor, in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	items := make([]expenseJSON, 0, len(res.Items))
	for _, e := range res.Items {
		items = append(items, expenseToJSON(e))
	}
	NewResponse().JSON(listResponse{
		Items: items,
		Pagination: paginationJSON{
			Total:   res.Total,
			Page:    in.Page,
			Limit:   in.Limit,
			HasMore: int64(in.Page*in.Limit) < res.Total,
		},
	}).Write(w)
}

func (s *Server) handleEditExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	var req editExpenseRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}
	in, err := req.toInput()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req.Upload != nil {
		stored, err := s.storeUpload(r, req.Upload, "")
		if err != nil {
			WriteError(w, r, err)
			return
		}
		// The stored list is replaced wholesale, never merged.
		in.Attachments = append(in.Attachments, stored)
	}

	res, err := s.lifecycle.Edit(r.Context(), actor, r.PathValue("id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.invalidateDashboards(res.Expense.VentureID)
	NewResponse().JSON(mutationResponse{Expense: expenseToJSON(res.Expense), Warning: res.Warning}).Write(w)
}

func (s *Server) handleReviewExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	var req reviewRequest
	if err := decodeJSON(r, &req); err != nil {
		BadRequest(w, err.Error())
		return
	}

	res, err := s.lifecycle.Review(r.Context(), actor, r.PathValue("id"), req.decision())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.invalidateDashboards(res.Expense.VentureID)
	NewResponse().JSON(mutationResponse{Expense: expenseToJSON(res.Expense), Warning: res.Warning}).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	warning, err := s.lifecycle.Delete(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}

	s.dashCache.Clear()
	NewResponse().JSON(deleteResponse{Deleted: true, Warning: warning}).Write(w)
}

package http

import (
	"net/http"
	"strings"

	"cantiere/internal/auth"
	"cantiere/internal/core"
	applog "cantiere/internal/log"
)

// handleDashboard serves the aggregation rollups. Results are cached per
// window and venture with a short TTL; any expense mutation clears the
// cache.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		WriteError(w, r, auth.ErrMissingToken)
		return
	}

	q := r.URL.Query()
	var from, to core.Date
	var err error
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = core.ParseDate(v); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = core.ParseDate(v); err != nil {
			WriteError(w, r, err)
			return
		}
	}
	ventureID := q.Get("ventureId")

	key := ventureID + "|" + from.String() + "|" + to.String()
	if cached, ok := s.dashCache.Get(key); ok {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Dashboard cache hit", "key", key)
		NewResponse().JSON(dashboardToJSON(cached)).Write(w)
		return
	}

	d, err := s.engine.Dashboard(r.Context(), from, to, ventureID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	s.dashCache.Set(key, d)
	NewResponse().JSON(dashboardToJSON(d)).Write(w)
}

// invalidateDashboards drops cached rollups affected by a mutation in
// ventureID: the venture's own windows plus the unscoped ones.
func (s *Server) invalidateDashboards(ventureID string) {
	s.dashCache.DeletePrefix("|")
	if ventureID != "" {
		s.dashCache.DeletePrefix(ventureID + "|")
	}
}

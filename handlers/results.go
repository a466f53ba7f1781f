// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"strconv"

	"github.com/danielhkuo/elvox/election"
	"github.com/danielhkuo/elvox/middleware"
	"github.com/danielhkuo/elvox/models"
)

type ResultsHandler struct {
	svc *election.Service
}

func NewResultsHandler(svc *election.Service) *ResultsHandler {
	return &ResultsHandler{svc: svc}
}

// parseClassID reads a positive class ID from a path or query value.
func parseClassID(raw string) (int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// GetResults handles GET /elections/{id}/results?status=&class=&year=
func (h *ResultsHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}

	q := r.URL.Query()
	filter := models.ResultsFilter{Status: models.ResultStatus(q.Get("status"))}
	if raw := q.Get("class"); raw != "" {
		id, ok := parseClassID(raw)
		if !ok {
			middleware.ErrorResponse(w, http.StatusBadRequest, "class must be a positive integer")
			return
		}
		filter.ClassID = id
	}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			middleware.ErrorResponse(w, http.StatusBadRequest, "year must be a positive integer")
			return
		}
		filter.Year = year
	}

	results, err := h.svc.Results(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, results)
}

// TieBreakStatus handles GET /elections/{id}/classes/{class}/tie-break
func (h *ResultsHandler) TieBreakStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}

	classID, ok := parseClassID(r.PathValue("class"))
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "class must be a positive integer")
		return
	}

	status, err := h.svc.TieBreakStatus(r.Context(), r.PathValue("id"), classID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, status)
}

// ResolveTieBreak handles POST /elections/{id}/classes/{class}/tie-break
func (h *ResultsHandler) ResolveTieBreak(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	classID, ok := parseClassID(r.PathValue("class"))
	if !ok {
		middleware.ErrorResponse(w, http.StatusBadRequest, "class must be a positive integer")
		return
	}

	var req models.ResolveTieBreakRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.ResolveTieBreak(r.Context(), a, r.PathValue("id"), classID, req.Assignments); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Tie-breaker resolved"})
}

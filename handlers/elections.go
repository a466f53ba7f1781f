// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"net/http"
	"time"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/election"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/middleware"
	"github.com/danielhkuo/elvox/models"
)

type ElectionHandler struct {
	svc *election.Service
	hub *events.Hub
	now func() time.Time
}

func NewElectionHandler(svc *election.Service, hub *events.Hub) *ElectionHandler {
	return &ElectionHandler{svc: svc, hub: hub, now: time.Now}
}

// actor returns the authenticated caller, writing a 401 when there is none.
func actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	a, ok := middleware.ActorFrom(r.Context())
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Authentication required")
	}
	return a, ok
}

// ListElections handles GET /elections
func (h *ElectionHandler) ListElections(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListElections(r.Context(), a)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, list)
}

// CreateElection handles POST /elections
func (h *ElectionHandler) CreateElection(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.CreateElectionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	id, err := h.svc.CreateElection(r.Context(), a, req)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, models.CreateElectionResponse{ElectionID: id})
}

// GetElection handles GET /elections/{id}
func (h *ElectionHandler) GetElection(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	e, err := h.svc.GetElection(r.Context(), a, r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, e)
}

// UpdateElection handles PATCH /elections/{id}
func (h *ElectionHandler) UpdateElection(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.UpdateElectionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.UpdateElection(r.Context(), a, r.PathValue("id"), req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Election updated"})
}

// DeleteElection handles DELETE /elections/{id}
func (h *ElectionHandler) DeleteElection(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteElection(r.Context(), a, r.PathValue("id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetReservedClasses handles PUT /elections/{id}/reserved-classes
func (h *ElectionHandler) SetReservedClasses(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.ReservedClassesRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.SetReservedClasses(r.Context(), a, r.PathValue("id"), req.Classes); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Reserved classes updated"})
}

// SetAutoPublish handles PUT /elections/{id}/auto-publish
func (h *ElectionHandler) SetAutoPublish(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.AutoPublishRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.SetAutoPublish(r.Context(), a, r.PathValue("id"), req.Enabled); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Auto-publish updated"})
}

// ListSupervisors handles GET /elections/{id}/supervisors
func (h *ElectionHandler) ListSupervisors(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}

	list, err := h.svc.ListSupervisors(r.Context(), r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, list)
}

// UpdateSupervisors handles POST /elections/{id}/supervisors
func (h *ElectionHandler) UpdateSupervisors(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.UpdateSupervisorsRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.UpdateSupervisors(r.Context(), a, r.PathValue("id"), req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Supervisors updated"})
}

// GenerateSecretKey handles POST /elections/{id}/secret-key
func (h *ElectionHandler) GenerateSecretKey(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.GenerateSecretKey(r.Context(), a, r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// logRanges maps the ?range= values accepted by the log endpoints.
var logRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"all": 0,
}

// Logs handles GET /elections/{id}/logs?range=1h|24h|7d|all
func (h *ElectionHandler) Logs(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	rng := r.URL.Query().Get("range")
	if rng == "" {
		rng = "24h"
	}
	d, known := logRanges[rng]
	if !known {
		middleware.ErrorResponse(w, http.StatusBadRequest, "range must be one of 1h, 24h, 7d, all")
		return
	}
	var since time.Time
	if d > 0 {
		since = h.now().Add(-d)
	}

	entries, err := h.svc.Logs(r.Context(), a, r.PathValue("id"), since)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, entries)
}

// StreamLogs handles GET /elections/{id}/logs/stream
func (h *ElectionHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	if !a.IsAdmin() {
		middleware.WriteError(w, apperr.Forbidden("Admin access required"))
		return
	}

	e, err := h.svc.GetElection(r.Context(), a, r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	ch, cancel := h.hub.Subscribe(events.ElectionTopic(e.ID))
	defer cancel()
	middleware.StreamEvents(w, r, ch)
}

// PublishResults handles POST /elections/{id}/results/publish
func (h *ElectionHandler) PublishResults(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.svc.PublishResults(r.Context(), a, r.PathValue("id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Results published"})
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/election"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/middleware"
	"github.com/danielhkuo/elvox/models"
)

type VotingHandler struct {
	svc *election.Service
	hub *events.Hub
}

func NewVotingHandler(svc *election.Service, hub *events.Hub) *VotingHandler {
	return &VotingHandler{svc: svc, hub: hub}
}

// device returns the authenticated voting terminal, writing a 401 when there is none.
func device(w http.ResponseWriter, r *http.Request) (models.VotingDevice, bool) {
	d, ok := middleware.DeviceFrom(r.Context())
	if !ok {
		middleware.ErrorResponse(w, http.StatusUnauthorized, "Device authentication required")
	}
	return d, ok
}

// VerifyVoter handles POST /elections/{id}/voters/verify
func (h *VotingHandler) VerifyVoter(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	var req models.VerifyVoterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Admno == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "admno is required")
		return
	}

	resp, err := h.svc.VerifyVoter(r.Context(), a, r.PathValue("id"), req.Admno)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// StreamVoters handles GET /elections/{id}/voters/stream
// Supervisors watch it to see when an OTP they issued has been used.
func (h *VotingHandler) StreamVoters(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if !a.IsSupervisorOf(id) {
		middleware.WriteError(w, apperr.Forbidden("Only supervisors of this election can watch voters"))
		return
	}

	ch, cancel := h.hub.Subscribe(events.ElectionTopic(id), events.TypeOTPUsed)
	defer cancel()
	middleware.StreamEvents(w, r, ch)
}

// AuthenticateVoter handles POST /desktop/elections/{id}/voters/authenticate
func (h *VotingHandler) AuthenticateVoter(w http.ResponseWriter, r *http.Request) {
	d, ok := device(w, r)
	if !ok {
		return
	}

	var req models.AuthenticateVoterRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Admno == "" || req.OTP == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "admno and otp are required")
		return
	}

	resp, err := h.svc.AuthenticateVoter(r.Context(), d, r.PathValue("id"), req.Admno, req.OTP)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, resp)
}

// Ballot handles POST /desktop/elections/{id}/ballot
func (h *VotingHandler) Ballot(w http.ResponseWriter, r *http.Request) {
	d, ok := device(w, r)
	if !ok {
		return
	}

	var req models.BallotRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	ballot, err := h.svc.VoterBallot(r.Context(), d, r.PathValue("id"), req.VotingToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, ballot)
}

// CastVote handles POST /desktop/elections/{id}/vote
func (h *VotingHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	d, ok := device(w, r)
	if !ok {
		return
	}

	var req models.CastVoteRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := h.svc.CastVote(r.Context(), d, r.PathValue("id"), req.VotingToken, req.Votes); err != nil {
		middleware.WriteError(w, err)
		return
	}

	slog.Info("vote recorded", "election_id", r.PathValue("id"), "device_id", d.DeviceID)
	middleware.JSONResponse(w, http.StatusCreated, models.MessageResponse{Message: "Your vote has been recorded successfully"})
}

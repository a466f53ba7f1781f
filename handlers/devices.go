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

type DeviceHandler struct {
	svc *election.Service
	hub *events.Hub
}

func NewDeviceHandler(svc *election.Service, hub *events.Hub) *DeviceHandler {
	return &DeviceHandler{svc: svc, hub: hub}
}

// Activate handles POST /desktop/elections/{id}/activate
func (h *DeviceHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req models.ActivateDeviceRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.SecretKey == "" || req.DeviceID == "" {
		middleware.ErrorResponse(w, http.StatusBadRequest, "secret_key and device_id are required")
		return
	}

	resp, err := h.svc.ActivateDevice(r.Context(), r.PathValue("id"), req)
	if err != nil {
		if apperr.Is(err, apperr.KindUnauthorized) {
			slog.Warn("device activation rejected", "election_id", r.PathValue("id"),
				"device_id", req.DeviceID, "remote", middleware.GetClientIP(r))
		}
		middleware.WriteError(w, err)
		return
	}

	slog.Info("device activated", "election_id", r.PathValue("id"), "device_id", resp.DeviceID)
	middleware.JSONResponse(w, http.StatusCreated, resp)
}

// ListDevices handles GET /elections/{id}/devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	list, err := h.svc.ListDevices(r.Context(), a, r.PathValue("id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, list)
}

// Revoke handles POST /elections/{id}/devices/{device}/revoke
func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r)
	if !ok {
		return
	}

	if err := h.svc.RevokeDevice(r.Context(), a, r.PathValue("id"), r.PathValue("device")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.MessageResponse{Message: "Device revoked"})
}

// StreamRevocations handles GET /desktop/elections/{id}/revocations.
// The terminal keeps this stream open and shuts itself down on device-revoked.
func (h *DeviceHandler) StreamRevocations(w http.ResponseWriter, r *http.Request) {
	d, ok := device(w, r)
	if !ok {
		return
	}
	if d.ElectionID != r.PathValue("id") {
		middleware.WriteError(w, apperr.Forbidden("Device is not activated for this election"))
		return
	}

	ch, cancel := h.hub.Subscribe(events.DeviceTopic(d.ElectionID, d.DeviceID))
	defer cancel()
	middleware.StreamEvents(w, r, ch)
}

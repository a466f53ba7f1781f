// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package middleware provides HTTP middleware and helper functions.

# Request Logging

Wrap handlers with request logging:

	mux.HandleFunc("GET /health", middleware.WithLogging(handler))

Logs one line per request with request_id, method, path, status, remote and
duration_ms. Responses of 500 and above are logged at error level. The
request ID comes from X-Request-ID when the caller sends one and is echoed
back in the response.

# Authentication

Web users send a session token; RequireActor verifies it and loads the
caller's capabilities once per request:

	sessions := middleware.NewSessions(db, sessionTokens)
	mux.HandleFunc("GET /elections", sessions.RequireActor(h.List))

	actor, _ := middleware.ActorFrom(r.Context())

Voting terminals send their device token; RequireDevice resolves it and
rejects revoked devices:

	mux.HandleFunc("POST /desktop/elections/{id}/vote", middleware.RequireDevice(svc, h.CastVote))

Both read "Authorization: Bearer <token>".

# CORS Middleware

Enable cross-origin requests for frontend access:

	server := http.Server{
		Handler: middleware.CORS(cfg.CORSOrigin)(mux),
	}

# JSON Helpers

Write JSON responses:

	middleware.JSONResponse(w, http.StatusOK, data)
	middleware.ErrorResponse(w, http.StatusBadRequest, "message")
	middleware.WriteError(w, err) // status from the apperr kind

Parse JSON request bodies (at most MaxBodyBytes, one JSON value):

	var req models.CreateElectionRequest
	if err := middleware.ParseJSONBody(r, &req); err != nil {
		middleware.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

# Event Streams

StreamEvents relays a hub subscription as server-sent events until the
client disconnects.
*/
package middleware

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the Elvox API.

# Route Registration

NewRouter creates a configured http.ServeMux from the shared services:

	mux := router.NewRouter(router.Deps{
		Service:  svc,
		Hub:      hub,
		Notifier: notifier,
		Sessions: middleware.NewSessions(conn, sessionTokens),
	})

# Authentication

Web routes take a session token (Authorization: Bearer) and run with the
caller's Actor in context. Desktop routes, apart from activation, take the
device token issued by activation.

# Endpoints

Elections (admin unless noted):

	GET    /elections                        - List (any user)
	POST   /elections                        - Create
	GET    /elections/{id}                   - Details (any user)
	PATCH  /elections/{id}                   - Update editable fields
	DELETE /elections/{id}                   - Delete a draft
	PUT    /elections/{id}/reserved-classes  - Configure reserved classes
	PUT    /elections/{id}/auto-publish      - Toggle auto-publish
	GET    /elections/{id}/supervisors       - List supervisors
	POST   /elections/{id}/supervisors       - Add/remove supervisors
	POST   /elections/{id}/secret-key        - Generate desktop secret key
	GET    /elections/{id}/devices           - List voting terminals
	POST   /elections/{id}/devices/{device}/revoke
	GET    /elections/{id}/logs              - Audit log (?range=1h|24h|7d|all)
	GET    /elections/{id}/logs/stream       - Live audit log (SSE)
	POST   /elections/{id}/results/publish   - Publish results

Nominations:

	GET   /elections/{id}/candidates - Visible candidates
	POST  /elections/{id}/candidates - Nominate (student)
	POST  /candidates/{id}/withdraw  - Withdraw (student)
	PATCH /candidates/{id}/status    - Approve/reject (class tutor)

Voting:

	POST /elections/{id}/voters/verify                 - Supervisor issues OTP
	GET  /elections/{id}/voters/stream                 - OTP-used events for supervisors (SSE)
	POST /desktop/elections/{id}/activate              - Secret key to device token
	POST /desktop/elections/{id}/voters/authenticate   - OTP to voting token
	POST /desktop/elections/{id}/ballot                - Voter's ballot
	POST /desktop/elections/{id}/vote                  - Cast vote
	GET  /desktop/elections/{id}/revocations           - Revocation stream (SSE)

Results:

	GET  /elections/{id}/results                    - Published results (?status=&class=&year=)
	GET  /elections/{id}/classes/{class}/tie-break  - Tie-break status
	POST /elections/{id}/classes/{class}/tie-break  - Resolve tie-break

Inbox:

	GET  /notifications      - Caller's notifications (?limit=)
	POST /notifications/read - Mark notifications read
*/
package router

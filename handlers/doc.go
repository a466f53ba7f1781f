// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Elvox API.

# Handler Types

Each handler is a thin struct over the election service:

  - ElectionHandler: Election admin, supervisors, secret keys, audit logs
  - CandidateHandler: Nominations and tutor review
  - VotingHandler: Supervisor verification and terminal voting
  - DeviceHandler: Terminal activation, listing and revocation
  - ResultsHandler: Results and tie-break resolution
  - NotificationHandler: Per-user inbox

Handlers decode the request, call one service method, and map its error
with middleware.WriteError:

	svc := election.NewService(db, tokens, audit, notifier, hub)
	h := handlers.NewElectionHandler(svc, hub)

# Callers

Session endpoints expect the router to have placed a models.Actor in the
request context (middleware.RequireActor). Terminal endpoints under
/desktop expect a models.VotingDevice (middleware.RequireDevice). A handler
reached without either writes 401.

# Voting Flow

	POST /elections/{id}/voters/verify               → VerifyVoter (supervisor, returns OTP)
	POST /desktop/elections/{id}/voters/authenticate → AuthenticateVoter (returns voting_token)
	POST /desktop/elections/{id}/ballot              → Ballot
	POST /desktop/elections/{id}/vote                → CastVote

# Streams

StreamLogs, StreamVoters and StreamRevocations hold the connection open and
forward hub events as server-sent events until the client disconnects.
StreamVoters only passes otp-used events, for supervisor desks.
*/
package handlers

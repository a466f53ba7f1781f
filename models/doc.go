// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines domain, request, and response types for the election API.

# Enumerations

  - Status: draft, nominations, pre-voting, voting, post-voting, closed
  - Category: general, reserved
  - CandidateStatus: pending, approved, rejected, withdrawn
  - ResultStatus: won, lost, tie
  - LogLevel: info, warning, error
  - Field: editable election attributes, grouped in a FieldSet

Status values are ordered. Index, Before and Next compare and step through
the lifecycle:

	next, ok := models.StatusVoting.Next() // post-voting, true

# Domain Types

  - Election: timeline, phase, reserved classes, publication flags
  - Candidate: a nomination and its review state
  - BallotEntry: one selectable option (candidate or NOTA)
  - Result: counted totals, rank and outcome of a ballot entry
  - VotingDevice: an activated desktop voting terminal
  - LogEntry: an audit log row
  - Notification: message delivered to users

# Actors

Actor carries the authenticated user with capabilities resolved once per
request (admin, class tutor, election supervisor). Checks read fields and
never re-query the database.

# Request and Response Types

Types for parsing incoming JSON and encoding responses, e.g.
CreateElectionRequest, CastVoteRequest, ResolveTieBreakRequest,
VerifyVoterResponse and ErrorResponse.
*/
package models

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package main provides the entry point for the Elvox API server.

Elvox runs school council elections: nominations reviewed by class tutors,
supervised voting on desktop terminals with one-time passwords, per-class
counting with tie detection, and published results.

# Starting the Server

The server reads a .env file if present, then environment variables, then
CLI flags:

	DATABASE_URL=postgres://... VOTING_TOKEN_SECRET=... SESSION_TOKEN_SECRET=... go run .

Or with flags:

	go run . -p 3318 -d "postgres://..." -voting-secret ... -session-secret ...

# Configuration

Required settings:

  - DATABASE_URL (-d): PostgreSQL connection string (15 or newer)
  - VOTING_TOKEN_SECRET (-voting-secret): signs voting tokens
  - SESSION_TOKEN_SECRET (-session-secret): signs web session tokens

Optional settings:

  - PORT (-p): Server port (default: 3318)
  - SCHEDULER_INTERVAL (-tick): phase scheduler interval (default: 30s)
  - CORS_ORIGIN (-origin): allowed browser origin (default: *)

# Architecture

  - election: phase machine, ballots, voting protocol, counting, tie-breaks
  - scheduler: periodic phase driver
  - events: in-process event hub, audit log, notifications
  - handlers: HTTP request handlers
  - router: Route definitions using Go 1.22+ routing
  - middleware: CORS, logging, authentication, JSON and SSE helpers
  - models: Domain, request and response types
  - apperr: Typed user-facing errors
  - auth: IDs, OTPs, secret keys and signed tokens
  - db: Schema creation and transactions
  - cliparse: Configuration parsing

The server and the scheduler run in one errgroup and stop together on
SIGINT or SIGTERM.

See package documentation for each component.
*/
package main

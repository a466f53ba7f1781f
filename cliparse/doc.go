// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

LoadDotEnv reads an optional .env file into the environment, then
ParseFlags returns a Config struct with all settings:

	_ = cliparse.LoadDotEnv()
	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: PostgreSQL connection string (required)
  - VotingTokenSecret: HMAC secret for voting tokens (required)
  - SessionTokenSecret: HMAC secret for web session tokens (required)
  - TickInterval: Scheduler interval (default: 30s)
  - CORSOrigin: Allowed browser origin (default: *)

# CLI Flags

	-p               Server port
	-d               Database URL
	-tick            Scheduler interval
	-origin          CORS origin
	-voting-secret   Voting token secret
	-session-secret  Session token secret

# Environment Variables

Flags fall back to environment variables:

	PORT                 → -p
	DATABASE_URL         → -d
	SCHEDULER_INTERVAL   → -tick
	CORS_ORIGIN          → -origin
	VOTING_TOKEN_SECRET  → -voting-secret
	SESSION_TOKEN_SECRET → -session-secret

CLI flags take precedence over environment variables, and environment
variables take precedence over the .env file.

# Validation

ParseFlags returns an error if required values are missing or malformed.
The two token secrets must differ so that a session token can never pass
as a voting token.
*/
package cliparse

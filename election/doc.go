// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package election implements the election lifecycle: phases, nominations,
ballots, voting, counting and tie-breaks.

All operations hang off a Service built from a database pool, the voting
token signer and the injected audit log, notifier and event hub:

	svc := election.NewService(db, votingTokens, audit, notifier, hub)

# Phases

An election moves through draft → nominations → pre-voting → voting →
post-voting → closed. ExpectedStatus derives the phase from the timeline
and Advance steps the stored phase forward, one phase at a time, inside a
single transaction holding the election row lock:

	status, err := svc.Advance(ctx, electionID)

Entering pre-voting generates ballots. Entering post-voting counts votes
and, with auto-publish on, publishes results. EditableFields lists the
fields an admin may change in each phase.

# Voting

Voting is supervisor assisted:

	VerifyVoter        supervisor checks the student, receives a 60s OTP
	AuthenticateVoter  terminal exchanges the OTP for a 2 minute voting token
	CastVote           terminal submits one choice per required category

Every class votes in the general category; reserved classes also vote in
the reserved category. Votes carry no voter reference.

# Counting

Totals are ranked per class and category with competition ranking: equal
totals share a rank and the next rank skips. A shared first place is a
tie, settled later by ResolveTieBreak from the class tutor or an admin.

# Errors

Operations return *apperr.Error values for caller mistakes and plain
wrapped errors for infrastructure failures.
*/
package election

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package apperr defines the error taxonomy shared by the service and HTTP layers.

Every user-facing failure is an *Error with a Kind:

	Validation   → 400  bad or missing input
	NotFound     → 404  referenced entity absent
	Conflict     → 409  phase or state precondition violated
	Unauthorized → 401  invalid or expired token
	Forbidden    → 403  wrong role or capability
	Fatal        → 500  invariant violation, never caused by input

Errors that are not *Error are treated as Fatal. Codes such as
ALREADY_VOTED or OTP_EXPIRED give clients a stable value to branch on:

	return apperr.Conflict("You have already voted").WithCode(apperr.CodeAlreadyVoted)
*/
package apperr

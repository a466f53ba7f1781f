// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides identity, token, and secret handling.

# Identifiers

Database records use UUIDs:

	id := auth.NewID()
	ok := auth.IsUUID(input)

# One-Time Passwords

Supervisors issue six digit OTPs. Only the SHA-256 hash is stored and
verification compares hashes in constant time:

	otp, err := auth.GenerateOTP()
	hash := auth.HashToken(otp)
	ok := auth.MatchHash(submitted, hash)

Device tokens use the same HashToken/MatchHash pair.

# Tokens

Signer issues HS256 JWTs. Voting tokens carry admno, electionId, deviceId
and scope=voting and expire after two minutes. Session tokens carry the user
ID as subject. Each parser rejects the other's scope:

	signer := auth.NewSigner(secret)
	token, expiresAt, err := signer.IssueVotingToken(admno, electionID, deviceID)
	claims, err := signer.ParseVotingToken(token) // ErrTokenExpired, ErrTokenInvalid, ErrTokenScope

# Desktop Secret Key

The election's desktop voting key is 32 random bytes in hex, shown once to
the admin and stored as a bcrypt hash:

	key, _ := auth.GenerateSecretKey()
	hash, _ := auth.HashSecretKey(key)
	err := auth.CompareSecretKey(hash, submitted)

# Actors

LoadActor resolves a user ID into a models.Actor with role, class, tutor
class and supervised elections, once per request.
*/
package auth

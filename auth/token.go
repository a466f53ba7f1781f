// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeVoting  = "voting"
	ScopeSession = "session"

	// VotingTokenTTL is how long a voter has between OTP entry and casting.
	VotingTokenTTL = 2 * time.Minute
	// SessionTokenTTL bounds a web session.
	SessionTokenTTL = 12 * time.Hour
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenScope   = errors.New("token has wrong scope")
)

// VotingClaims authorize exactly one ballot for one voter on one device.
type VotingClaims struct {
	Admno      string `json:"admno"`
	ElectionID string `json:"electionId"`
	DeviceID   string `json:"deviceId"`
	Scope      string `json:"scope"`
	jwt.RegisteredClaims
}

// SessionClaims identify a signed-in web user. Subject holds the user ID.
type SessionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens with a single secret.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of s that reads time from now.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	return &Signer{secret: s.secret, now: now}
}

// IssueVotingToken mints a voting token valid for VotingTokenTTL.
func (s *Signer) IssueVotingToken(admno, electionID, deviceID string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(VotingTokenTTL)
	claims := VotingClaims{
		Admno:      admno,
		ElectionID: electionID,
		DeviceID:   deviceID,
		Scope:      ScopeVoting,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admno,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign voting token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseVotingToken verifies signature, expiry and scope.
func (s *Signer) ParseVotingToken(raw string) (*VotingClaims, error) {
	var claims VotingClaims
	if err := s.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Scope != ScopeVoting {
		return nil, ErrTokenScope
	}
	return &claims, nil
}

// IssueSessionToken mints a session token for userID.
func (s *Signer) IssueSessionToken(userID string) (string, error) {
	now := s.now()
	claims := SessionClaims{
		Scope: ScopeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken returns the user ID of a valid session token.
func (s *Signer) ParseSessionToken(raw string) (string, error) {
	var claims SessionClaims
	if err := s.parse(raw, &claims); err != nil {
		return "", err
	}
	if claims.Scope != ScopeSession || claims.Subject == "" {
		return "", ErrTokenScope
	}
	return claims.Subject, nil
}

func (s *Signer) parse(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrTokenInvalid
	}
}

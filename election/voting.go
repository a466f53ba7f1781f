// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// OTPLifetime is how long a supervisor-issued OTP stays valid.
const OTPLifetime = 60 * time.Second

// OTPUsed is the payload of an otp-used event.
type OTPUsed struct {
	Admno    string `json:"admno"`
	DeviceID string `json:"device_id"`
}

// lockVoter locks the voter row and rejects voters who already voted.
func lockVoter(ctx context.Context, tx *db.Tx, electionID, admno string) error {
	var hasVoted bool
	err := tx.QueryRowContext(ctx, `
		SELECT has_voted FROM voters
		WHERE admno = $1 AND election_id = $2
		FOR UPDATE
	`, admno, electionID).Scan(&hasVoted)
	if err == sql.ErrNoRows {
		return apperr.NotFound("Voter has not been verified by a supervisor")
	}
	if err != nil {
		return fmt.Errorf("failed to lock voter: %w", err)
	}
	if hasVoted {
		return apperr.Conflict("You have already voted").WithCode(apperr.CodeAlreadyVoted)
	}
	return nil
}

// VerifyVoter is run by a supervisor who has checked the student in person.
// It issues a fresh OTP, replacing any earlier one, and returns it in plain
// text for the supervisor to read out.
func (s *Service) VerifyVoter(ctx context.Context, supervisor models.Actor, electionID, admno string) (models.VerifyVoterResponse, error) {
	admno = strings.TrimSpace(admno)
	if admno == "" {
		return models.VerifyVoterResponse{}, apperr.Validation("Admission number is required")
	}
	if !supervisor.IsSupervisorOf(electionID) {
		return models.VerifyVoterResponse{}, apperr.Forbidden("Only supervisors of this election can verify voters")
	}

	var resp models.VerifyVoterResponse
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forShare)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Voting is not open", models.StatusVoting); err != nil {
			return err
		}

		var studentName string
		err = tx.QueryRowContext(ctx, `SELECT name FROM students WHERE admno = $1`, admno).Scan(&studentName)
		if err == sql.ErrNoRows {
			return apperr.NotFound("Student not found")
		}
		if err != nil {
			return fmt.Errorf("failed to query student: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO voters (admno, election_id, verified_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (admno, election_id) DO NOTHING
		`, admno, e.ID, supervisor.UserID)
		if err != nil {
			return fmt.Errorf("failed to insert voter: %w", err)
		}
		if err := lockVoter(ctx, tx, e.ID, admno); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM otp_verifications WHERE admno = $1 AND election_id = $2`, admno, e.ID)
		if err != nil {
			return fmt.Errorf("failed to clear old otp: %w", err)
		}

		otp, err := auth.GenerateOTP()
		if err != nil {
			return err
		}
		issuedAt := s.now()
		expiresAt := issuedAt.Add(OTPLifetime)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO otp_verifications (admno, election_id, otp_hash, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, admno, e.ID, auth.HashToken(otp), expiresAt, issuedAt)
		if err != nil {
			return fmt.Errorf("failed to store otp: %w", err)
		}

		msg := fmt.Sprintf("Voter %s (%s) verified by %s", admno, studentName, supervisor.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}

		resp = models.VerifyVoterResponse{Admno: admno, OTP: otp, IssuedAt: issuedAt, ExpiresAt: expiresAt}
		return nil
	})
	return resp, err
}

// AuthenticateVoter exchanges a valid OTP entered on a voting terminal for a
// short-lived voting token bound to that terminal.
func (s *Service) AuthenticateVoter(ctx context.Context, device models.VotingDevice, electionID, admno, otp string) (models.AuthenticateVoterResponse, error) {
	admno = strings.TrimSpace(admno)
	if admno == "" {
		return models.AuthenticateVoterResponse{}, apperr.Validation("Admission number is required")
	}
	if !auth.ValidOTPFormat(otp) {
		return models.AuthenticateVoterResponse{}, apperr.Validation("OTP must be six digits")
	}
	if device.ElectionID != electionID {
		return models.AuthenticateVoterResponse{}, apperr.Forbidden("Device is not activated for this election")
	}

	var resp models.AuthenticateVoterResponse
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forShare)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Voting is not open", models.StatusVoting); err != nil {
			return err
		}
		if err := lockVoter(ctx, tx, e.ID, admno); err != nil {
			return err
		}

		var (
			hash      string
			expiresAt time.Time
			usedAt    sql.NullTime
		)
		err = tx.QueryRowContext(ctx, `
			SELECT otp_hash, expires_at, used_at
			FROM otp_verifications
			WHERE admno = $1 AND election_id = $2
			FOR UPDATE
		`, admno, e.ID).Scan(&hash, &expiresAt, &usedAt)
		if err == sql.ErrNoRows {
			return apperr.Unauthorized("No OTP has been issued, ask a supervisor to verify you").WithCode(apperr.CodeOTPInvalid)
		}
		if err != nil {
			return fmt.Errorf("failed to query otp: %w", err)
		}
		if usedAt.Valid {
			return apperr.Unauthorized("OTP has already been used").WithCode(apperr.CodeOTPInvalid)
		}
		now := s.now()
		if !now.Before(expiresAt) {
			return apperr.Unauthorized("OTP has expired, ask a supervisor for a new one").WithCode(apperr.CodeOTPExpired)
		}
		if !auth.MatchHash(otp, hash) {
			return apperr.Unauthorized("Invalid OTP").WithCode(apperr.CodeOTPInvalid)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE otp_verifications SET used_at = $3
			WHERE admno = $1 AND election_id = $2
		`, admno, e.ID, now)
		if err != nil {
			return fmt.Errorf("failed to mark otp used: %w", err)
		}

		token, tokenExpiry, err := s.tokens.IssueVotingToken(admno, e.ID, device.DeviceID)
		if err != nil {
			return err
		}

		electionTopic := events.ElectionTopic(e.ID)
		used := OTPUsed{Admno: admno, DeviceID: device.DeviceID}
		tx.AfterCommit(func() {
			s.hub.Publish(electionTopic, events.Event{Type: events.TypeOTPUsed, Data: used})
		})

		resp = models.AuthenticateVoterResponse{VotingToken: token, ExpiresAt: tokenExpiry}
		return nil
	})
	return resp, err
}

func (s *Service) parseVotingToken(raw string) (*auth.VotingClaims, error) {
	claims, err := s.tokens.ParseVotingToken(raw)
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return nil, apperr.Unauthorized("Voting session expired").WithCode(apperr.CodeTokenExpired)
	case err != nil:
		return nil, apperr.Unauthorized("Invalid voting token").WithCode(apperr.CodeTokenInvalid)
	}
	return claims, nil
}

// checkVoteCategories enforces the category set for a voter's class:
// general always, reserved exactly when the class is a reserved class.
func checkVoteCategories(e models.Election, classID int, votes map[models.Category]string) error {
	required := e.RequiredCategories(classID)
	for cat := range votes {
		if !cat.Valid() {
			return apperr.Validation("Unknown category %q", cat)
		}
		if cat == models.CategoryReserved && !e.HasReserved(classID) {
			return apperr.Validation("Reserved vote is not applicable for this class")
		}
	}
	for _, cat := range required {
		id, ok := votes[cat]
		if !ok || strings.TrimSpace(id) == "" {
			return apperr.Validation("A %s vote is required for this class", cat)
		}
		if !auth.IsUUID(id) {
			return apperr.Validation("Invalid ballot entry id for %s", cat)
		}
	}
	return nil
}

// CastVote records one ballot for the voter named in the voting token. All
// checks and writes share one transaction; on any failure nothing changes
// and the voter may retry with a fresh OTP.
func (s *Service) CastVote(ctx context.Context, device models.VotingDevice, electionID, votingToken string, votes map[models.Category]string) error {
	if votingToken == "" {
		return apperr.Unauthorized("Voting token is required").WithCode(apperr.CodeTokenInvalid)
	}
	claims, err := s.parseVotingToken(votingToken)
	if err != nil {
		return err
	}
	if claims.ElectionID != electionID {
		return apperr.Forbidden("Voting token is not valid for this election")
	}
	if claims.DeviceID != device.DeviceID || device.ElectionID != electionID {
		return apperr.Forbidden("Voting token was issued to another device")
	}
	if len(votes) == 0 {
		return apperr.Validation("Votes are required")
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forShare)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Voting is not open", models.StatusVoting); err != nil {
			return err
		}
		if err := lockVoter(ctx, tx, e.ID, claims.Admno); err != nil {
			return err
		}

		var (
			classID int
			userID  sql.NullString
		)
		err = tx.QueryRowContext(ctx, `SELECT class_id, user_id FROM students WHERE admno = $1`, claims.Admno).Scan(&classID, &userID)
		if err == sql.ErrNoRows {
			return apperr.NotFound("Student not found")
		}
		if err != nil {
			return fmt.Errorf("failed to query student: %w", err)
		}

		if err := checkVoteCategories(e, classID, votes); err != nil {
			return err
		}

		required := e.RequiredCategories(classID)
		ids := make([]string, len(required))
		cats := make([]string, len(required))
		for i, cat := range required {
			ids[i] = votes[cat]
			cats[i] = string(cat)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO votes (election_id, ballot_entry_id, candidate_id, is_nota, class_id, category, device_id, created_at)
			SELECT be.election_id, be.id, be.candidate_id, be.is_nota, be.class_id, be.category, $3, $4
			FROM ballot_entries be
			JOIN UNNEST($5::uuid[], $6::text[]) AS v(id, category)
			  ON v.id = be.id AND v.category = be.category
			WHERE be.election_id = $1 AND be.class_id = $2
		`, e.ID, classID, device.DeviceID, s.now(), pq.Array(ids), pq.Array(cats))
		if err != nil {
			return fmt.Errorf("failed to insert votes: %w", err)
		}
		inserted, _ := res.RowsAffected()
		if inserted != int64(len(required)) {
			return apperr.Validation("Invalid ballot entry")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE voters SET has_voted = TRUE
			WHERE admno = $1 AND election_id = $2
		`, claims.Admno, e.ID)
		if err != nil {
			return fmt.Errorf("failed to mark voter: %w", err)
		}

		msg := fmt.Sprintf("A vote has been recorded for %q", e.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}

		if userID.Valid {
			s.notifyAfterCommit(tx, events.Users(userID.String), models.Notification{
				Title:   "Vote Recorded!",
				Message: "Your vote has been recorded successfully",
				Type:    "info",
			})
		}
		return nil
	})
}

// VoterBallot returns the ballot shown to the voter holding votingToken.
func (s *Service) VoterBallot(ctx context.Context, device models.VotingDevice, electionID, votingToken string) (map[models.Category][]models.BallotEntry, error) {
	claims, err := s.parseVotingToken(votingToken)
	if err != nil {
		return nil, err
	}
	if claims.ElectionID != electionID || claims.DeviceID != device.DeviceID {
		return nil, apperr.Forbidden("Voting token is not valid for this device")
	}

	var classID int
	err = s.db.QueryRowContext(ctx, `SELECT class_id FROM students WHERE admno = $1`, claims.Admno).Scan(&classID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("Student not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query student: %w", err)
	}
	return s.Ballot(ctx, electionID, classID)
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

const candidateColumns = `
	id, election_id, user_id, name, category, class_id, status,
	nominee1_admno, COALESCE(nominee1_proof, ''), nominee2_admno, COALESCE(nominee2_proof, ''),
	rejection_reason, actioned_by, created_at, updated_at`

func scanCandidate(row rowScanner) (models.Candidate, error) {
	var c models.Candidate
	var reason, actionedBy sql.NullString
	err := row.Scan(&c.ID, &c.ElectionID, &c.UserID, &c.Name, &c.Category, &c.ClassID, &c.Status,
		&c.Nominee1Admno, &c.Nominee1Proof, &c.Nominee2Admno, &c.Nominee2Proof,
		&reason, &actionedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Candidate{}, err
	}
	if reason.Valid {
		c.RejectionReason = &reason.String
	}
	if actionedBy.Valid {
		c.ActionedBy = &actionedBy.String
	}
	return c, nil
}

// lockCandidate locks the election (shared) and then the candidate row, in
// that order.
func lockCandidate(ctx context.Context, tx *db.Tx, candidateID string) (models.Election, models.Candidate, error) {
	if !auth.IsUUID(candidateID) {
		return models.Election{}, models.Candidate{}, apperr.NotFound("Candidate not found")
	}

	var electionID string
	err := tx.QueryRowContext(ctx, `SELECT election_id FROM candidates WHERE id = $1`, candidateID).Scan(&electionID)
	if err == sql.ErrNoRows {
		return models.Election{}, models.Candidate{}, apperr.NotFound("Candidate not found")
	}
	if err != nil {
		return models.Election{}, models.Candidate{}, fmt.Errorf("failed to query candidate: %w", err)
	}

	e, err := loadElection(ctx, tx, electionID, forShare)
	if err != nil {
		return models.Election{}, models.Candidate{}, err
	}

	row := tx.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM candidates WHERE id = $1 FOR UPDATE`, candidateID)
	c, err := scanCandidate(row)
	if err != nil {
		return models.Election{}, models.Candidate{}, fmt.Errorf("failed to lock candidate: %w", err)
	}
	return e, c, nil
}

func validateNomination(actor models.Actor, req models.NominationRequest) error {
	if !req.Category.Valid() {
		return apperr.Validation("Invalid category %q", req.Category)
	}
	n1 := strings.TrimSpace(req.Nominee1Admno)
	n2 := strings.TrimSpace(req.Nominee2Admno)
	if n1 == "" || n2 == "" {
		return apperr.Validation("Two nominees are required")
	}
	if n1 == n2 {
		return apperr.Validation("Nominees must be two different students")
	}
	if n1 == actor.Admno || n2 == actor.Admno {
		return apperr.Validation("You cannot nominate yourself")
	}
	return nil
}

// Nominate files a student's application during the nomination phase.
// Reserved applications are only accepted from reserved classes, and both
// nominees must come from the applicant's class.
func (s *Service) Nominate(ctx context.Context, actor models.Actor, electionID string, req models.NominationRequest) (models.Candidate, error) {
	if !actor.IsStudent() || actor.Admno == "" {
		return models.Candidate{}, apperr.Forbidden("Only students can apply as candidates")
	}
	if err := validateNomination(actor, req); err != nil {
		return models.Candidate{}, err
	}

	var c models.Candidate
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forShare)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Nominations are not open", models.StatusNominations); err != nil {
			return err
		}
		if req.Category == models.CategoryReserved && !e.HasReserved(actor.ClassID) {
			return apperr.Validation("Reserved category is not available for your class")
		}

		var matched int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM students
			WHERE admno IN ($1, $2) AND class_id = $3
		`, strings.TrimSpace(req.Nominee1Admno), strings.TrimSpace(req.Nominee2Admno), actor.ClassID).Scan(&matched)
		if err != nil {
			return fmt.Errorf("failed to check nominees: %w", err)
		}
		if matched != 2 {
			return apperr.Validation("Nominees must be students of your class")
		}

		row := tx.QueryRowContext(ctx, `
			INSERT INTO candidates (election_id, user_id, name, category, class_id,
				nominee1_admno, nominee1_proof, nominee2_admno, nominee2_proof, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10, $10)
			RETURNING `+candidateColumns,
			e.ID, actor.UserID, actor.Name, req.Category, actor.ClassID,
			strings.TrimSpace(req.Nominee1Admno), req.Nominee1Proof,
			strings.TrimSpace(req.Nominee2Admno), req.Nominee2Proof, s.now())
		c, err = scanCandidate(row)
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("You already have an active application for this election")
		}
		if err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}

		msg := fmt.Sprintf("%s applied as a %s candidate for class %d", actor.Name, c.Category, c.ClassID)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}
		s.notifyAfterCommit(tx, events.TutorsOf(actor.ClassID), models.Notification{
			Title:   "New application",
			Message: fmt.Sprintf("%s has applied as a candidate, please review the application", actor.Name),
			Type:    "info",
		})
		return nil
	})
	return c, err
}

// Withdraw lets a student pull their own application while nominations are open.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, candidateID string) error {
	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, c, err := lockCandidate(ctx, tx, candidateID)
		if err != nil {
			return err
		}
		if c.UserID != actor.UserID {
			return apperr.Forbidden("You can only withdraw your own application")
		}
		if err := requireStatus(e, "Applications can only be withdrawn during nominations", models.StatusNominations); err != nil {
			return err
		}
		switch c.Status {
		case models.CandidateWithdrawn:
			return apperr.Conflict("Application is already withdrawn")
		case models.CandidateRejected:
			return apperr.Conflict("A rejected application cannot be withdrawn")
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE candidates SET status = 'withdrawn', updated_at = $2 WHERE id = $1
		`, c.ID, s.now())
		if err != nil {
			return fmt.Errorf("failed to withdraw candidate: %w", err)
		}

		msg := fmt.Sprintf("%s withdrew their %s application", c.Name, c.Category)
		return s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg)
	})
}

// Review approves or rejects a pending application. Only the tutor of the
// candidate's class may review, and a rejection needs a reason.
func (s *Service) Review(ctx context.Context, actor models.Actor, candidateID string, req models.ReviewCandidateRequest) error {
	reason := strings.TrimSpace(req.Reason)
	switch req.Status {
	case models.CandidateApproved:
	case models.CandidateRejected:
		if reason == "" {
			return apperr.Validation("A reason is required when rejecting an application")
		}
	default:
		return apperr.Validation("Status must be approved or rejected")
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, c, err := lockCandidate(ctx, tx, candidateID)
		if err != nil {
			return err
		}
		if !actor.IsTutorOf(c.ClassID) {
			return apperr.Forbidden("Only the class tutor can review this application")
		}
		if err := requireStatus(e, "Applications can only be reviewed during nominations", models.StatusNominations); err != nil {
			return err
		}
		if c.Status != models.CandidatePending {
			return apperr.Conflict("Application is already %s", c.Status).WithCode(apperr.CodeAlreadyReviewed)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE candidates
			SET status = $2, rejection_reason = NULLIF($3, ''), actioned_by = $4, updated_at = $5
			WHERE id = $1
		`, c.ID, req.Status, reason, actor.UserID, s.now())
		if err != nil {
			return fmt.Errorf("failed to update candidate: %w", err)
		}

		msg := fmt.Sprintf("%s %s the %s application of %s", actor.Name, req.Status, c.Category, c.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}

		n := models.Notification{
			Title:   "Application approved",
			Message: fmt.Sprintf("Your application for %s has been approved", e.Name),
			Type:    "info",
		}
		if req.Status == models.CandidateRejected {
			n = models.Notification{
				Title:   "Application rejected",
				Message: fmt.Sprintf("Your application for %s has been rejected: %s", e.Name, reason),
				Type:    "warning",
			}
		}
		s.notifyAfterCommit(tx, events.Users(c.UserID), n)
		return nil
	})
}

// ListCandidates returns the applications the actor may see: admins see all,
// tutors see their class, and everyone sees approved candidates and their
// own applications.
func (s *Service) ListCandidates(ctx context.Context, actor models.Actor, electionID string) ([]models.Candidate, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}

	tutorOf := 0
	if actor.IsTeacher() {
		tutorOf = actor.TutorOf
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+candidateColumns+`
		FROM candidates
		WHERE election_id = $1
		  AND ($2 OR status = 'approved' OR user_id::text = $3 OR class_id = $4)
		ORDER BY class_id, category, name
	`, e.ID, actor.IsAdmin(), actor.UserID, tutorOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	out := []models.Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

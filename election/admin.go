// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// CreateElection stores a new draft election. The whole timeline must lie
// in the future and be strictly ordered.
func (s *Service) CreateElection(ctx context.Context, actor models.Actor, req models.CreateElectionRequest) (string, error) {
	if err := requireAdmin(actor); err != nil {
		return "", err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", apperr.Validation("Election name is required")
	}
	if err := validateTimeline(req.Timeline, models.StatusDraft, EditableFields(models.StatusDraft), s.now()); err != nil {
		return "", err
	}

	var id string
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		id = auth.NewID()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO elections (id, name, nomination_start, nomination_end, voting_start,
				voting_end, election_end, election_start, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $8)
		`, id, name, req.NominationStart, req.NominationEnd, req.VotingStart,
			req.VotingEnd, req.ElectionEnd, s.now(), actor.UserID)
		if err != nil {
			return fmt.Errorf("failed to insert election: %w", err)
		}

		msg := fmt.Sprintf("Election %q created by %s", name, actor.Name)
		if err := s.audit.Record(ctx, tx, id, models.LogInfo, msg); err != nil {
			return err
		}
		s.notifyAfterCommit(tx, events.Everyone(), models.Notification{
			Title:   name,
			Message: fmt.Sprintf("A new election has been scheduled, nominations open on %s", req.NominationStart.Format("Jan 2, 15:04")),
			Type:    "info",
		})

		tx.AfterCommit(func() {
			s.logger.Info("election created", "election_id", id, "name", name)
		})
		return nil
	})
	return id, err
}

// UpdateElection applies a partial edit. Fields outside the current phase's
// editable set are rejected before anything is written.
func (s *Service) UpdateElection(ctx context.Context, actor models.Actor, electionID string, req models.UpdateElectionRequest) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	changed := req.Fields()
	if len(changed) == 0 {
		return apperr.Validation("No fields to update")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return apperr.Validation("Election name cannot be empty")
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}

		editable := EditableFields(e.Status)
		for _, f := range changed {
			if !editable.Has(f) {
				return apperr.Conflict("%s cannot be changed while the election is %s", f, e.Status).WithCode(apperr.CodeFieldLocked)
			}
		}

		t := e.Timeline
		name := e.Name
		if req.Name != nil {
			name = strings.TrimSpace(*req.Name)
		}
		if req.NominationStart != nil {
			t.NominationStart = *req.NominationStart
		}
		if req.NominationEnd != nil {
			t.NominationEnd = *req.NominationEnd
		}
		if req.VotingStart != nil {
			t.VotingStart = *req.VotingStart
		}
		if req.VotingEnd != nil {
			t.VotingEnd = *req.VotingEnd
		}
		if req.ElectionEnd != nil {
			t.ElectionEnd = *req.ElectionEnd
		}
		if err := validateTimeline(t, e.Status, changed, s.now()); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE elections
			SET name = $2, nomination_start = $3, nomination_end = $4,
				voting_start = $5, voting_end = $6, election_end = $7
			WHERE id = $1
		`, e.ID, name, t.NominationStart, t.NominationEnd, t.VotingStart, t.VotingEnd, t.ElectionEnd)
		if err != nil {
			return fmt.Errorf("failed to update election: %w", err)
		}

		fields := make([]string, len(changed))
		for i, f := range changed {
			fields[i] = string(f)
		}
		msg := fmt.Sprintf("Election %q updated by %s: %s", name, actor.Name, strings.Join(fields, ", "))
		return s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg)
	})
}

// DeleteElection removes a draft election and everything attached to it.
func (s *Service) DeleteElection(ctx context.Context, actor models.Actor, electionID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Only draft elections can be deleted", models.StatusDraft); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM elections WHERE id = $1`, e.ID); err != nil {
			return fmt.Errorf("failed to delete election: %w", err)
		}

		tx.AfterCommit(func() {
			s.logger.Warn("election deleted", "election_id", e.ID, "name", e.Name, "by", actor.UserID)
		})
		return nil
	})
}

// GetElection returns one election. Admins also see whether a secret key
// exists and how many voting devices are active.
func (s *Service) GetElection(ctx context.Context, actor models.Actor, electionID string) (models.Election, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return models.Election{}, err
	}
	if !actor.IsAdmin() {
		e.HasSecretKey = false
		e.SecretKeyGeneratedAt = nil
		return e, nil
	}

	var active int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM voting_devices
		WHERE election_id = $1 AND revoked_at IS NULL
	`, e.ID).Scan(&active)
	if err != nil {
		return models.Election{}, fmt.Errorf("failed to count devices: %w", err)
	}
	e.TotalActivatedSystems = &active
	return e, nil
}

// ListElections returns every election, newest first.
func (s *Service) ListElections(ctx context.Context, actor models.Actor) ([]models.Election, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+electionColumns+` FROM elections ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query elections: %w", err)
	}
	defer rows.Close()

	out := []models.Election{}
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan election: %w", err)
		}
		if !actor.IsAdmin() {
			e.HasSecretKey = false
			e.SecretKeyGeneratedAt = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ActiveElectionIDs lists elections the scheduler still has to drive.
func (s *Service) ActiveElectionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM elections WHERE status <> 'closed' ORDER BY nomination_start`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active elections: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan election id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetReservedClasses replaces the set of classes that also vote in the
// reserved category. Only allowed in draft.
func (s *Service) SetReservedClasses(ctx context.Context, actor models.Actor, electionID string, classes []int) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	set := make(map[int]bool, len(classes))
	ids := []int{}
	for _, c := range classes {
		if c <= 0 {
			return apperr.Validation("Invalid class id %d", c)
		}
		if !set[c] {
			set[c] = true
			ids = append(ids, c)
		}
	}
	sort.Ints(ids)

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Reserved classes can only be changed in draft", models.StatusDraft); err != nil {
			return err
		}

		if len(ids) > 0 {
			var known int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes WHERE id = ANY($1::int[])`, intArray(ids)).Scan(&known)
			if err != nil {
				return fmt.Errorf("failed to check classes: %w", err)
			}
			if known != len(ids) {
				return apperr.Validation("Unknown class in reserved classes")
			}
		}

		config, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE elections SET category_config = $2 WHERE id = $1`, e.ID, config)
		if err != nil {
			return fmt.Errorf("failed to update reserved classes: %w", err)
		}

		msg := fmt.Sprintf("Reserved classes for %q set to %v by %s", e.Name, ids, actor.Name)
		return s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg)
	})
}

// SetAutoPublish toggles automatic publication. It is fixed once voting has ended.
func (s *Service) SetAutoPublish(ctx context.Context, actor models.Actor, electionID string, enabled bool) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if !e.Status.Before(models.StatusPostVoting) {
			return apperr.Conflict("Auto-publish cannot be changed after voting has ended").WithCode(apperr.CodeWrongPhase)
		}

		_, err = tx.ExecContext(ctx, `UPDATE elections SET auto_publish_results = $2 WHERE id = $1`, e.ID, enabled)
		if err != nil {
			return fmt.Errorf("failed to update auto-publish: %w", err)
		}

		state := "disabled"
		if enabled {
			state = "enabled"
		}
		msg := fmt.Sprintf("Auto-publish %s for %q by %s", state, e.Name, actor.Name)
		return s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg)
	})
}

// UpdateSupervisors adds and removes supervising teachers. Added IDs must
// belong to teachers. The list is frozen once voting has ended.
func (s *Service) UpdateSupervisors(ctx context.Context, actor models.Actor, electionID string, req models.UpdateSupervisorsRequest) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if len(req.Add) == 0 && len(req.Remove) == 0 {
		return apperr.Validation("No supervisors to add or remove")
	}
	for _, id := range append(append([]string{}, req.Add...), req.Remove...) {
		if !auth.IsUUID(id) {
			return apperr.Validation("Invalid user id %q", id)
		}
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if !e.Status.Before(models.StatusPostVoting) {
			return apperr.Conflict("Supervisors cannot be changed after voting has ended").WithCode(apperr.CodeWrongPhase)
		}

		var added, removed []string
		if len(req.Add) > 0 {
			rows, err := tx.QueryContext(ctx, `
				INSERT INTO supervisors (election_id, user_id, name, empcode)
				SELECT $1, t.user_id, t.name, t.empcode
				FROM teachers t
				WHERE t.user_id = ANY($2::uuid[])
				ON CONFLICT (election_id, user_id) DO NOTHING
				RETURNING user_id
			`, e.ID, stringArray(req.Add))
			if err != nil {
				return fmt.Errorf("failed to add supervisors: %w", err)
			}
			added, err = scanIDs(rows)
			if err != nil {
				return err
			}
		}
		if len(req.Remove) > 0 {
			rows, err := tx.QueryContext(ctx, `
				DELETE FROM supervisors
				WHERE election_id = $1 AND user_id = ANY($2::uuid[])
				RETURNING user_id
			`, e.ID, stringArray(req.Remove))
			if err != nil {
				return fmt.Errorf("failed to remove supervisors: %w", err)
			}
			removed, err = scanIDs(rows)
			if err != nil {
				return err
			}
		}

		msg := fmt.Sprintf("Supervisors for %q updated by %s: %d added, %d removed", e.Name, actor.Name, len(added), len(removed))
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}
		if len(added) > 0 {
			s.notifyAfterCommit(tx, events.Users(added...), models.Notification{
				Title:   e.Name,
				Message: "You have been assigned as a supervisor for this election",
				Type:    "info",
			})
		}
		if len(removed) > 0 {
			s.notifyAfterCommit(tx, events.Users(removed...), models.Notification{
				Title:   e.Name,
				Message: "You have been removed as a supervisor for this election",
				Type:    "info",
			})
		}
		return nil
	})
}

// ListSupervisors returns the supervising teachers of an election.
func (s *Service) ListSupervisors(ctx context.Context, electionID string) ([]models.Supervisor, error) {
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, name, empcode FROM supervisors
		WHERE election_id = $1
		ORDER BY name
	`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query supervisors: %w", err)
	}
	defer rows.Close()

	out := []models.Supervisor{}
	for rows.Next() {
		var sup models.Supervisor
		if err := rows.Scan(&sup.UserID, &sup.Name, &sup.Empcode); err != nil {
			return nil, fmt.Errorf("failed to scan supervisor: %w", err)
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

// GenerateSecretKey creates or replaces the desktop voting secret key. The
// plaintext is returned once; only its bcrypt hash is stored.
func (s *Service) GenerateSecretKey(ctx context.Context, actor models.Actor, electionID string) (models.SecretKeyResponse, error) {
	if err := requireAdmin(actor); err != nil {
		return models.SecretKeyResponse{}, err
	}

	var resp models.SecretKeyResponse
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Secret keys can only be generated before or during voting",
			models.StatusPreVoting, models.StatusVoting); err != nil {
			return err
		}

		key, err := auth.GenerateSecretKey()
		if err != nil {
			return err
		}
		hash, err := auth.HashSecretKey(key)
		if err != nil {
			return err
		}
		now := s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE elections
			SET desktop_voting_key_hash = $2, desktop_voting_key_generated_at = $3
			WHERE id = $1
		`, e.ID, hash, now)
		if err != nil {
			return fmt.Errorf("failed to store secret key: %w", err)
		}

		verb := "generated"
		if e.HasSecretKey {
			verb = "regenerated"
		}
		msg := fmt.Sprintf("Desktop voting secret key %s by %s", verb, actor.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogWarning, msg); err != nil {
			return err
		}

		resp = models.SecretKeyResponse{SecretKey: key, GeneratedAt: now}
		return nil
	})
	return resp, err
}

// Logs returns audit entries of an election created at or after since.
func (s *Service) Logs(ctx context.Context, actor models.Actor, electionID string, since time.Time) ([]models.LogEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}
	return s.audit.List(ctx, s.db, e.ID, since)
}

func stringArray(ids []string) any {
	return pq.Array(ids)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
)

var ErrUnknownUser = errors.New("unknown user")

// LoadActor resolves a user and every capability they hold.
// Supervisor rights are collected for elections that are not closed.
func LoadActor(ctx context.Context, q db.Querier, userID string) (models.Actor, error) {
	if !IsUUID(userID) {
		return models.Actor{}, ErrUnknownUser
	}

	var (
		a       models.Actor
		role    string
		admno   sql.NullString
		classID sql.NullInt64
		empcode sql.NullString
		tutorOf sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.role, s.admno, s.class_id, t.empcode, t.tutor_of
		FROM users u
		LEFT JOIN students s ON s.user_id = u.id
		LEFT JOIN teachers t ON t.user_id = u.id
		WHERE u.id = $1
	`, userID).Scan(&a.UserID, &a.Name, &role, &admno, &classID, &empcode, &tutorOf)
	if err == sql.ErrNoRows {
		return models.Actor{}, ErrUnknownUser
	}
	if err != nil {
		return models.Actor{}, fmt.Errorf("failed to load user: %w", err)
	}

	a.Role = models.Role(role)
	a.Admno = admno.String
	a.ClassID = int(classID.Int64)
	a.Empcode = empcode.String
	a.TutorOf = int(tutorOf.Int64)

	if a.Role != models.RoleTeacher {
		return a, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT sp.election_id
		FROM supervisors sp
		JOIN elections e ON e.id = sp.election_id
		WHERE sp.user_id = $1 AND e.status <> 'closed'
	`, userID)
	if err != nil {
		return models.Actor{}, fmt.Errorf("failed to load supervisor elections: %w", err)
	}
	defer rows.Close()

	a.SupervisorOf = make(map[string]bool)
	for rows.Next() {
		var electionID string
		if err := rows.Scan(&electionID); err != nil {
			return models.Actor{}, fmt.Errorf("failed to scan supervisor election: %w", err)
		}
		a.SupervisorOf[electionID] = true
	}
	return a, rows.Err()
}

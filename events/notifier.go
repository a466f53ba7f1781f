// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/danielhkuo/elvox/models"
)

type audienceKind int

const (
	audienceUsers audienceKind = iota
	audienceEveryone
	audienceStudentsOf
	audienceTutorsOf
	audienceAllStudents
	audienceAllTutors
	audienceStaff
)

// Audience selects the users a notification is delivered to.
type Audience struct {
	kind     audienceKind
	userIDs  []string
	classIDs []int64
}

// Everyone targets every user account.
func Everyone() Audience { return Audience{kind: audienceEveryone} }

// Users targets the given user IDs.
func Users(ids ...string) Audience { return Audience{kind: audienceUsers, userIDs: ids} }

// StudentsOf targets the students enrolled in the given classes.
func StudentsOf(classIDs ...int) Audience {
	return Audience{kind: audienceStudentsOf, classIDs: toInt64(classIDs)}
}

// TutorsOf targets the class tutors of the given classes.
func TutorsOf(classIDs ...int) Audience {
	return Audience{kind: audienceTutorsOf, classIDs: toInt64(classIDs)}
}

// AllStudents targets every student account.
func AllStudents() Audience { return Audience{kind: audienceAllStudents} }

// AllTutors targets every teacher who tutors a class.
func AllTutors() Audience { return Audience{kind: audienceAllTutors} }

// Staff targets users who are neither students nor class tutors.
func Staff() Audience { return Audience{kind: audienceStaff} }

func toInt64(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// selectQuery returns the SELECT producing user IDs for the audience and its argument.
func (a Audience) selectQuery() (string, any) {
	switch a.kind {
	case audienceEveryone:
		return `SELECT id FROM users`, nil
	case audienceStudentsOf:
		return `SELECT user_id FROM students WHERE user_id IS NOT NULL AND class_id = ANY($4::int[])`, pq.Array(a.classIDs)
	case audienceTutorsOf:
		return `SELECT user_id FROM teachers WHERE tutor_of = ANY($4::int[])`, pq.Array(a.classIDs)
	case audienceAllStudents:
		return `SELECT id FROM users WHERE role = 'student'`, nil
	case audienceAllTutors:
		return `SELECT user_id FROM teachers WHERE tutor_of IS NOT NULL`, nil
	case audienceStaff:
		return `
			SELECT u.id FROM users u
			WHERE u.role <> 'student'
			  AND NOT EXISTS (SELECT 1 FROM teachers t WHERE t.user_id = u.id AND t.tutor_of IS NOT NULL)`, nil
	default:
		return `SELECT DISTINCT unnest($4::uuid[])`, pq.Array(a.userIDs)
	}
}

func (a Audience) empty() bool {
	switch a.kind {
	case audienceUsers:
		return len(a.userIDs) == 0
	case audienceStudentsOf, audienceTutorsOf:
		return len(a.classIDs) == 0
	}
	return false
}

// Notifier stores notifications in each recipient's inbox.
type Notifier struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewNotifier(db *sql.DB, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{db: db, logger: logger}
}

// Notify writes n to the inbox of every user in the audience.
func (n *Notifier) Notify(ctx context.Context, to Audience, msg models.Notification) error {
	if to.empty() {
		return nil
	}
	if msg.Type == "" {
		msg.Type = "info"
	}

	sel, arg := to.selectQuery()
	args := []any{msg.Title, msg.Message, msg.Type}
	if arg != nil {
		args = append(args, arg)
	}

	res, err := n.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type)
		SELECT r.uid, $1, $2, $3 FROM (`+sel+`) AS r(uid)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}

	count, _ := res.RowsAffected()
	n.logger.Debug("notifications sent", "title", msg.Title, "recipients", count)
	return nil
}

// Inbox returns the latest notifications of a user, newest first.
func (n *Notifier) Inbox(ctx context.Context, userID string, limit int) ([]models.InboxItem, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := n.db.QueryContext(ctx, `
		SELECT id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	items := []models.InboxItem{}
	for rows.Next() {
		var it models.InboxItem
		if err := rows.Scan(&it.ID, &it.Title, &it.Message, &it.Type, &it.IsRead, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkRead marks the given notifications of a user as read and returns how
// many changed. Notifications of other users are left alone.
func (n *Notifier) MarkRead(ctx context.Context, userID string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := n.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE user_id = $1 AND id = ANY($2::bigint[]) AND NOT is_read
	`, userID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

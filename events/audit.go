// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/models"
)

// AuditLog appends entries to the logs table and streams them to
// subscribers of the election topic.
type AuditLog struct {
	hub *Hub
}

func NewAuditLog(hub *Hub) *AuditLog {
	return &AuditLog{hub: hub}
}

// Record inserts the entry inside tx. Subscribers see it only after commit.
func (a *AuditLog) Record(ctx context.Context, tx *db.Tx, electionID string, level models.LogLevel, message string) error {
	entry, err := insertLog(ctx, tx, electionID, level, message)
	if err != nil {
		return err
	}
	tx.AfterCommit(func() {
		a.hub.Publish(ElectionTopic(electionID), Event{Type: TypeAuditLog, Data: entry})
	})
	return nil
}

// RecordDirect inserts and broadcasts the entry immediately. It is used for
// entries that must outlive a rolled back transaction.
func (a *AuditLog) RecordDirect(ctx context.Context, q db.Querier, electionID string, level models.LogLevel, message string) error {
	entry, err := insertLog(ctx, q, electionID, level, message)
	if err != nil {
		return err
	}
	a.hub.Publish(ElectionTopic(electionID), Event{Type: TypeAuditLog, Data: entry})
	return nil
}

// List returns entries for an election, newest first. A zero since returns all entries.
func (a *AuditLog) List(ctx context.Context, q db.Querier, electionID string, since time.Time) ([]models.LogEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, election_id, level, message, created_at
		FROM logs
		WHERE election_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC
	`, electionID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.ElectionID, &e.Level, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func insertLog(ctx context.Context, q db.Querier, electionID string, level models.LogLevel, message string) (models.LogEntry, error) {
	e := models.LogEntry{ElectionID: electionID, Level: level, Message: message}
	err := q.QueryRowContext(ctx, `
		INSERT INTO logs (election_id, level, message)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, electionID, level, message).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return models.LogEntry{}, fmt.Errorf("failed to insert log: %w", err)
	}
	return e, nil
}

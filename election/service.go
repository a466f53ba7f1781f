// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// AuditLog appends entries to an election's audit trail.
type AuditLog interface {
	Record(ctx context.Context, tx *db.Tx, electionID string, level models.LogLevel, message string) error
	RecordDirect(ctx context.Context, q db.Querier, electionID string, level models.LogLevel, message string) error
	List(ctx context.Context, q db.Querier, electionID string, since time.Time) ([]models.LogEntry, error)
}

// Notifier delivers inbox notifications. Failures are logged, never returned to callers.
type Notifier interface {
	Notify(ctx context.Context, to events.Audience, n models.Notification) error
}

// Publisher fans live events out to subscribers.
type Publisher interface {
	Publish(topic string, ev events.Event) int
}

// notifyTimeout bounds post-commit notification writes.
const notifyTimeout = 10 * time.Second

type Service struct {
	db       *sql.DB
	tokens   *auth.Signer
	audit    AuditLog
	notifier Notifier
	hub      Publisher
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock used for phase and expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(conn *sql.DB, tokens *auth.Signer, audit AuditLog, notifier Notifier, hub Publisher, opts ...Option) *Service {
	s := &Service{
		db:       conn,
		tokens:   tokens,
		audit:    audit,
		notifier: notifier,
		hub:      hub,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// notifyAfterCommit queues a notification that is sent only if tx commits.
func (s *Service) notifyAfterCommit(tx *db.Tx, to events.Audience, n models.Notification) {
	tx.AfterCommit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, to, n); err != nil {
			s.logger.Warn("notification failed", "title", n.Title, "error", err)
		}
	})
}

// warnOnRollback records a warning audit entry once tx has rolled back.
func (s *Service) warnOnRollback(ctx context.Context, tx *db.Tx, electionID, message string) {
	tx.OnRollback(func() {
		ctx := context.WithoutCancel(ctx)
		if err := s.audit.RecordDirect(ctx, s.db, electionID, models.LogWarning, message); err != nil {
			s.logger.Error("failed to write warning log", "election_id", electionID, "error", err)
		}
	})
}

type lockMode string

const (
	noLock    lockMode = ""
	forUpdate lockMode = " FOR UPDATE"
	forShare  lockMode = " FOR SHARE"
)

const electionColumns = `
	id, name, nomination_start, nomination_end, voting_start, voting_end,
	election_start, election_end, status, category_config,
	auto_publish_results, result_published,
	desktop_voting_key_hash IS NOT NULL, desktop_voting_key_generated_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (models.Election, error) {
	var (
		e           models.Election
		status      string
		config      []byte
		generatedAt sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.Name, &e.NominationStart, &e.NominationEnd, &e.VotingStart, &e.VotingEnd,
		&e.ElectionStart, &e.ElectionEnd, &status, &config,
		&e.AutoPublishResults, &e.ResultPublished,
		&e.HasSecretKey, &generatedAt, &e.CreatedAt,
	)
	if err != nil {
		return models.Election{}, err
	}

	if e.Status, err = models.ParseStatus(status); err != nil {
		return models.Election{}, err
	}
	if err := json.Unmarshal(config, &e.ReservedClasses); err != nil {
		return models.Election{}, fmt.Errorf("invalid category_config: %w", err)
	}
	if e.ReservedClasses == nil {
		e.ReservedClasses = []int{}
	}
	if generatedAt.Valid {
		t := generatedAt.Time
		e.SecretKeyGeneratedAt = &t
	}
	return e, nil
}

// loadElection reads an election, optionally taking a row lock.
func loadElection(ctx context.Context, q db.Querier, electionID string, lock lockMode) (models.Election, error) {
	if !auth.IsUUID(electionID) {
		return models.Election{}, apperr.NotFound("Election not found")
	}

	row := q.QueryRowContext(ctx, `SELECT `+electionColumns+` FROM elections WHERE id = $1`+string(lock), electionID)
	e, err := scanElection(row)
	if err == sql.ErrNoRows {
		return models.Election{}, apperr.NotFound("Election not found")
	}
	if err != nil {
		return models.Election{}, fmt.Errorf("failed to load election: %w", err)
	}
	return e, nil
}

// requireStatus fails with a conflict unless e is in one of the given phases.
func requireStatus(e models.Election, message string, allowed ...models.Status) error {
	for _, st := range allowed {
		if e.Status == st {
			return nil
		}
	}
	return apperr.Conflict("%s", message).WithCode(apperr.CodeWrongPhase)
}

func requireAdmin(actor models.Actor) error {
	if !actor.IsAdmin() {
		return apperr.Forbidden("Admin access required")
	}
	return nil
}

// intArray wraps class IDs for an int[] parameter.
func intArray(ids []int) any {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return pq.Array(out)
}

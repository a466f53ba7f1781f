// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/db"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

// DeviceRevoked is the payload of a device-revoked event.
type DeviceRevoked struct {
	DeviceID  string `json:"device_id"`
	RevokedBy string `json:"revoked_by"`
}

const deviceColumns = `id, election_id, device_id, device_name, activated_at, revoked_at`

func scanDevice(row rowScanner) (models.VotingDevice, error) {
	var d models.VotingDevice
	var revokedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.ElectionID, &d.DeviceID, &d.DeviceName, &d.ActivatedAt, &revokedAt); err != nil {
		return models.VotingDevice{}, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		d.RevokedAt = &t
	}
	return d, nil
}

// ActivateDevice registers a voting terminal with the election's secret key
// and returns its bearer token. Activating an already known device rotates
// its token. A revoked device stays revoked.
func (s *Service) ActivateDevice(ctx context.Context, electionID string, req models.ActivateDeviceRequest) (models.ActivateDeviceResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	deviceName := strings.TrimSpace(req.DeviceName)
	if req.SecretKey == "" || deviceID == "" {
		return models.ActivateDeviceResponse{}, apperr.Validation("Secret key and device id are required")
	}
	if deviceName == "" {
		deviceName = deviceID
	}

	var resp models.ActivateDeviceResponse
	err := db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}
		if err := requireStatus(e, "Devices can only be activated before or during voting",
			models.StatusPreVoting, models.StatusVoting); err != nil {
			return err
		}

		var hash sql.NullString
		err = tx.QueryRowContext(ctx, `SELECT desktop_voting_key_hash FROM elections WHERE id = $1`, e.ID).Scan(&hash)
		if err != nil {
			return fmt.Errorf("failed to read secret key: %w", err)
		}
		if !hash.Valid {
			return apperr.Conflict("No secret key has been generated for this election")
		}
		if err := auth.CompareSecretKey(hash.String, req.SecretKey); err != nil {
			if errors.Is(err, auth.ErrInvalidSecretKey) {
				return apperr.Unauthorized("Invalid secret key")
			}
			return err
		}

		var revoked bool
		err = tx.QueryRowContext(ctx, `
			SELECT revoked_at IS NOT NULL FROM voting_devices
			WHERE election_id = $1 AND device_id = $2
			FOR UPDATE
		`, e.ID, deviceID).Scan(&revoked)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to query device: %w", err)
		}
		if revoked {
			return apperr.Forbidden("This device has been revoked").WithCode(apperr.CodeDeviceRevoked)
		}

		token, err := auth.GenerateDeviceToken()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO voting_devices (election_id, device_id, device_name, auth_token_hash, activated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (election_id, device_id) DO UPDATE SET
				device_name = EXCLUDED.device_name,
				auth_token_hash = EXCLUDED.auth_token_hash,
				activated_at = EXCLUDED.activated_at
		`, e.ID, deviceID, deviceName, auth.HashToken(token), s.now())
		if err != nil {
			return fmt.Errorf("failed to store device: %w", err)
		}

		msg := fmt.Sprintf("Voting device %s (%s) activated", deviceName, deviceID)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogInfo, msg); err != nil {
			return err
		}

		resp = models.ActivateDeviceResponse{DeviceID: deviceID, DeviceToken: token}
		return nil
	})
	return resp, err
}

// AuthenticateDevice resolves a device bearer token.
func (s *Service) AuthenticateDevice(ctx context.Context, token string) (models.VotingDevice, error) {
	if token == "" {
		return models.VotingDevice{}, apperr.Unauthorized("Device token is required")
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM voting_devices WHERE auth_token_hash = $1`, auth.HashToken(token))
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return models.VotingDevice{}, apperr.Unauthorized("Invalid device token")
	}
	if err != nil {
		return models.VotingDevice{}, fmt.Errorf("failed to query device: %w", err)
	}
	if d.RevokedAt != nil {
		return models.VotingDevice{}, apperr.Forbidden("This device has been revoked").WithCode(apperr.CodeDeviceRevoked)
	}
	return d, nil
}

// RevokeDevice permanently disables a voting terminal and tells it so.
func (s *Service) RevokeDevice(ctx context.Context, actor models.Actor, electionID, deviceID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx *db.Tx) error {
		e, err := loadElection(ctx, tx, electionID, forUpdate)
		if err != nil {
			return err
		}

		var name string
		err = tx.QueryRowContext(ctx, `
			UPDATE voting_devices SET revoked_at = $3
			WHERE election_id = $1 AND device_id = $2 AND revoked_at IS NULL
			RETURNING device_name
		`, e.ID, deviceID, s.now()).Scan(&name)
		if err == sql.ErrNoRows {
			return apperr.NotFound("Active device not found")
		}
		if err != nil {
			return fmt.Errorf("failed to revoke device: %w", err)
		}

		msg := fmt.Sprintf("Voting device %s (%s) revoked by %s", name, deviceID, actor.Name)
		if err := s.audit.Record(ctx, tx, e.ID, models.LogWarning, msg); err != nil {
			return err
		}

		topic := events.DeviceTopic(e.ID, deviceID)
		payload := DeviceRevoked{DeviceID: deviceID, RevokedBy: actor.Name}
		tx.AfterCommit(func() {
			s.hub.Publish(topic, events.Event{Type: events.TypeDeviceRevoked, Data: payload})
		})
		return nil
	})
}

// ListDevices returns every device ever activated for an election.
func (s *Service) ListDevices(ctx context.Context, actor models.Actor, electionID string) ([]models.VotingDevice, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	e, err := loadElection(ctx, s.db, electionID, noLock)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deviceColumns+` FROM voting_devices
		WHERE election_id = $1
		ORDER BY activated_at
	`, e.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	out := []models.VotingDevice{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

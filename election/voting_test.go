// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/auth"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
)

func TestCheckVoteCategories(t *testing.T) {
	e := models.Election{ReservedClasses: []int{1}}
	id1, id2 := auth.NewID(), auth.NewID()

	testCases := []struct {
		name    string
		classID int
		votes   map[models.Category]string
		wantErr bool
	}{
		{"reserved class with both", 1, map[models.Category]string{"general": id1, "reserved": id2}, false},
		{"reserved class missing reserved", 1, map[models.Category]string{"general": id1}, true},
		{"reserved class missing general", 1, map[models.Category]string{"reserved": id2}, true},
		{"plain class general only", 2, map[models.Category]string{"general": id1}, false},
		{"plain class with reserved", 2, map[models.Category]string{"general": id1, "reserved": id2}, true},
		{"unknown category", 2, map[models.Category]string{"general": id1, "sports": id2}, true},
		{"blank entry", 2, map[models.Category]string{"general": "  "}, true},
		{"non-uuid entry", 2, map[models.Category]string{"general": "entry-1"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkVoteCategories(e, tc.classID, tc.votes)
			if tc.wantErr {
				if !apperr.Is(err, apperr.KindValidation) {
					t.Errorf("Expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// votingSchool returns a school whose election is open for voting, with one
// activated terminal.
func votingSchool(t *testing.T, h *harness) (school, models.VotingDevice) {
	t.Helper()

	s := newSchool(t, h)
	h.at(t, s.electionID, models.StatusPreVoting)
	h.at(t, s.electionID, models.StatusVoting)
	return s, h.activate(t, s.admin, s.electionID, "desk-1")
}

func TestVerifyVoterRequiresSupervisor(t *testing.T) {
	h := newHarness(t)
	s, _ := votingSchool(t, h)

	_, err := h.svc.VerifyVoter(context.Background(), s.tutorA, s.electionID, "A1")
	assertCode(t, err, apperr.KindForbidden, "")

	_, err = h.svc.VerifyVoter(context.Background(), s.supervisor, s.electionID, "NOPE")
	assertCode(t, err, apperr.KindNotFound, "")
}

func TestVerifyVoterOutsideVoting(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)

	_, err := h.svc.VerifyVoter(context.Background(), s.supervisor, s.electionID, "A1")
	assertCode(t, err, apperr.KindConflict, apperr.CodeWrongPhase)
}

func TestAuthenticateVoterOTP(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)
	ctx := context.Background()

	t.Run("unverified voter", func(t *testing.T) {
		_, err := h.svc.AuthenticateVoter(ctx, d, s.electionID, "A3", "123456")
		assertCode(t, err, apperr.KindNotFound, "")
	})

	t.Run("malformed otp", func(t *testing.T) {
		_, err := h.svc.AuthenticateVoter(ctx, d, s.electionID, "A1", "12ab")
		assertCode(t, err, apperr.KindValidation, "")
	})

	t.Run("wrong otp", func(t *testing.T) {
		v, err := h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "A1")
		if err != nil {
			t.Fatalf("VerifyVoter failed: %v", err)
		}
		wrong := "000000"
		if v.OTP == wrong {
			wrong = "111111"
		}
		_, err = h.svc.AuthenticateVoter(ctx, d, s.electionID, "A1", wrong)
		assertCode(t, err, apperr.KindUnauthorized, apperr.CodeOTPInvalid)
	})

	t.Run("otp is single use", func(t *testing.T) {
		v, err := h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "A1")
		if err != nil {
			t.Fatalf("VerifyVoter failed: %v", err)
		}
		if _, err := h.svc.AuthenticateVoter(ctx, d, s.electionID, "A1", v.OTP); err != nil {
			t.Fatalf("AuthenticateVoter failed: %v", err)
		}
		_, err = h.svc.AuthenticateVoter(ctx, d, s.electionID, "A1", v.OTP)
		assertCode(t, err, apperr.KindUnauthorized, apperr.CodeOTPInvalid)
	})

	t.Run("reissue replaces old otp", func(t *testing.T) {
		first, err := h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "A2")
		if err != nil {
			t.Fatalf("VerifyVoter failed: %v", err)
		}
		second, err := h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "A2")
		if err != nil {
			t.Fatalf("VerifyVoter failed: %v", err)
		}
		if first.OTP != second.OTP {
			_, err = h.svc.AuthenticateVoter(ctx, d, s.electionID, "A2", first.OTP)
			assertCode(t, err, apperr.KindUnauthorized, apperr.CodeOTPInvalid)
		}
		if _, err := h.svc.AuthenticateVoter(ctx, d, s.electionID, "A2", second.OTP); err != nil {
			t.Errorf("Expected latest OTP to work, got %v", err)
		}
	})

	t.Run("expired otp", func(t *testing.T) {
		v, err := h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "B1")
		if err != nil {
			t.Fatalf("VerifyVoter failed: %v", err)
		}
		h.clock.Advance(OTPLifetime)
		defer h.clock.Advance(-OTPLifetime)

		_, err = h.svc.AuthenticateVoter(ctx, d, s.electionID, "B1", v.OTP)
		assertCode(t, err, apperr.KindUnauthorized, apperr.CodeOTPExpired)
	})
}

func TestAuthenticateVoterPublishesOTPUsed(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)

	ch, cancel := h.hub.Subscribe(events.ElectionTopic(s.electionID))
	defer cancel()

	h.votingToken(t, s.supervisor, d, "A1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type != events.TypeOTPUsed {
				continue
			}
			used, ok := ev.Data.(OTPUsed)
			if !ok || used.Admno != "A1" || used.DeviceID != d.DeviceID {
				t.Errorf("Unexpected otp-used payload: %#v", ev.Data)
			}
			return
		case <-deadline:
			t.Fatal("Timed out waiting for otp-used event")
		}
	}
}

func TestCastVoteRules(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)
	ctx := context.Background()

	ballotA, err := h.svc.Ballot(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	ballotB, err := h.svc.Ballot(ctx, s.electionID, s.classB)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	genA := entryFor(t, ballotA[models.CategoryGeneral], s.generalA1)
	resA := entryFor(t, ballotA[models.CategoryReserved], s.reservedA)
	genB := entryFor(t, ballotB[models.CategoryGeneral], s.generalB)

	t.Run("reserved class must vote reserved", func(t *testing.T) {
		token := h.votingToken(t, s.supervisor, d, "A1")
		err := h.svc.CastVote(ctx, d, s.electionID, token, map[models.Category]string{models.CategoryGeneral: genA})
		assertCode(t, err, apperr.KindValidation, "")
	})

	t.Run("plain class cannot vote reserved", func(t *testing.T) {
		token := h.votingToken(t, s.supervisor, d, "B1")
		err := h.svc.CastVote(ctx, d, s.electionID, token, map[models.Category]string{
			models.CategoryGeneral:  genB,
			models.CategoryReserved: resA,
		})
		assertCode(t, err, apperr.KindValidation, "")
	})

	t.Run("entry from another class", func(t *testing.T) {
		token := h.votingToken(t, s.supervisor, d, "B1")
		err := h.svc.CastVote(ctx, d, s.electionID, token, map[models.Category]string{models.CategoryGeneral: genA})
		assertCode(t, err, apperr.KindValidation, "")

		// Nothing was written, so the voter can still vote.
		var hasVoted bool
		if err := h.conn.QueryRow(`SELECT has_voted FROM voters WHERE admno = 'B1' AND election_id = $1`, s.electionID).Scan(&hasVoted); err != nil {
			t.Fatalf("Failed to read voter: %v", err)
		}
		if hasVoted {
			t.Error("Voter marked as voted after a rejected ballot")
		}
	})

	t.Run("token bound to device", func(t *testing.T) {
		other := h.activate(t, s.admin, s.electionID, "desk-2")
		token := h.votingToken(t, s.supervisor, d, "A2")
		err := h.svc.CastVote(ctx, other, s.electionID, token, map[models.Category]string{
			models.CategoryGeneral:  genA,
			models.CategoryReserved: resA,
		})
		assertCode(t, err, apperr.KindForbidden, "")
	})

	t.Run("expired token", func(t *testing.T) {
		token := h.votingToken(t, s.supervisor, d, "A2")
		h.clock.Advance(auth.VotingTokenTTL + time.Second)
		defer h.clock.Advance(-(auth.VotingTokenTTL + time.Second))

		err := h.svc.CastVote(ctx, d, s.electionID, token, map[models.Category]string{
			models.CategoryGeneral:  genA,
			models.CategoryReserved: resA,
		})
		assertCode(t, err, apperr.KindUnauthorized, apperr.CodeTokenExpired)
	})

	t.Run("double vote", func(t *testing.T) {
		votes := map[models.Category]string{models.CategoryGeneral: genA, models.CategoryReserved: resA}
		token := h.votingToken(t, s.supervisor, d, "A3")
		if err := h.svc.CastVote(ctx, d, s.electionID, token, votes); err != nil {
			t.Fatalf("CastVote failed: %v", err)
		}

		err := h.svc.CastVote(ctx, d, s.electionID, token, votes)
		assertCode(t, err, apperr.KindConflict, apperr.CodeAlreadyVoted)

		_, err = h.svc.VerifyVoter(ctx, s.supervisor, s.electionID, "A3")
		assertCode(t, err, apperr.KindConflict, apperr.CodeAlreadyVoted)
	})
}

func TestConcurrentCastVote(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)
	ctx := context.Background()

	ballotA, err := h.svc.Ballot(ctx, s.electionID, s.classA)
	if err != nil {
		t.Fatalf("Ballot failed: %v", err)
	}
	votes := map[models.Category]string{
		models.CategoryGeneral:  entryFor(t, ballotA[models.CategoryGeneral], s.generalA1),
		models.CategoryReserved: entryFor(t, ballotA[models.CategoryReserved], ""),
	}
	token := h.votingToken(t, s.supervisor, d, "A1")

	const attempts = 10
	var wg sync.WaitGroup
	var succeeded, alreadyVoted, other atomic.Int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.svc.CastVote(ctx, d, s.electionID, token, votes)
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperr.CodeOf(err) == apperr.CodeAlreadyVoted:
				alreadyVoted.Add(1)
			default:
				t.Logf("unexpected error: %v", err)
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Errorf("Expected exactly 1 successful vote, got %d", succeeded.Load())
	}
	if alreadyVoted.Load() != attempts-1 {
		t.Errorf("Expected %d already-voted rejections, got %d (other: %d)", attempts-1, alreadyVoted.Load(), other.Load())
	}

	var rows int
	if err := h.conn.QueryRow(`SELECT COUNT(*) FROM votes WHERE election_id = $1`, s.electionID).Scan(&rows); err != nil {
		t.Fatalf("Failed to count votes: %v", err)
	}
	if rows != 2 {
		t.Errorf("Expected 2 vote rows (general + reserved), got %d", rows)
	}
}

func TestRevokeDevice(t *testing.T) {
	h := newHarness(t)
	s, d := votingSchool(t, h)
	ctx := context.Background()

	ch, cancel := h.hub.Subscribe(events.DeviceTopic(s.electionID, d.DeviceID))
	defer cancel()

	err := h.svc.RevokeDevice(ctx, s.tutorA, s.electionID, d.DeviceID)
	assertCode(t, err, apperr.KindForbidden, "")

	if err := h.svc.RevokeDevice(ctx, s.admin, s.electionID, d.DeviceID); err != nil {
		t.Fatalf("RevokeDevice failed: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != events.TypeDeviceRevoked {
			t.Errorf("Expected %s event, got %s", events.TypeDeviceRevoked, ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for device-revoked event")
	}

	err = h.svc.RevokeDevice(ctx, s.admin, s.electionID, d.DeviceID)
	assertCode(t, err, apperr.KindNotFound, "")

	// The revoked terminal cannot come back with a fresh key.
	key, err := h.svc.GenerateSecretKey(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("GenerateSecretKey failed: %v", err)
	}
	_, err = h.svc.ActivateDevice(ctx, s.electionID, models.ActivateDeviceRequest{SecretKey: key.SecretKey, DeviceID: d.DeviceID})
	assertCode(t, err, apperr.KindForbidden, apperr.CodeDeviceRevoked)

	_, err = h.svc.ActivateDevice(ctx, s.electionID, models.ActivateDeviceRequest{SecretKey: "wrong", DeviceID: "desk-9"})
	assertCode(t, err, apperr.KindUnauthorized, "")
}

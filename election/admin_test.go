// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"context"
	"testing"
	"time"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/events"
	"github.com/danielhkuo/elvox/models"
	"github.com/danielhkuo/elvox/testutil"
)

func TestCreateElection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.actor(t, testutil.CreateTestUser(t, h.conn, "Admin", models.RoleAdmin))
	teacher := h.actor(t, testutil.CreateTestTeacher(t, h.conn, "Teacher", "EMP1", 0))

	now := h.clock.Now()
	req := models.CreateElectionRequest{
		Name: "Student Council 2025",
		Timeline: models.Timeline{
			NominationStart: now.Add(24 * time.Hour),
			NominationEnd:   now.Add(48 * time.Hour),
			VotingStart:     now.Add(72 * time.Hour),
			VotingEnd:       now.Add(80 * time.Hour),
			ElectionEnd:     now.Add(96 * time.Hour),
		},
	}

	_, err := h.svc.CreateElection(ctx, teacher, req)
	assertCode(t, err, apperr.KindForbidden, "")

	bad := req
	bad.VotingStart = bad.VotingEnd
	_, err = h.svc.CreateElection(ctx, admin, bad)
	assertCode(t, err, apperr.KindValidation, "")

	id, err := h.svc.CreateElection(ctx, admin, req)
	if err != nil {
		t.Fatalf("CreateElection failed: %v", err)
	}

	e, err := h.svc.GetElection(ctx, admin, id)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	if e.Status != models.StatusDraft || e.Name != req.Name {
		t.Errorf("Unexpected election: %+v", e)
	}
	if e.TotalActivatedSystems == nil || *e.TotalActivatedSystems != 0 {
		t.Errorf("Expected admin view with 0 active devices, got %v", e.TotalActivatedSystems)
	}

	// The scheduler sees it and leaves it alone until nominations open.
	ids, err := h.svc.ActiveElectionIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveElectionIDs failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("Expected [%s], got %v", id, ids)
	}
	status, err := h.svc.Advance(ctx, id)
	if err != nil || status != models.StatusDraft {
		t.Errorf("Expected draft with no error, got %s, %v", status, err)
	}
}

func TestUpdateElectionFieldLocks(t *testing.T) {
	h := newHarness(t)
	s, _ := votingSchool(t, h)
	ctx := context.Background()

	name := "Renamed"
	err := h.svc.UpdateElection(ctx, s.admin, s.electionID, models.UpdateElectionRequest{Name: &name})
	assertCode(t, err, apperr.KindConflict, apperr.CodeFieldLocked)

	start := h.clock.Now().Add(time.Hour)
	err = h.svc.UpdateElection(ctx, s.admin, s.electionID, models.UpdateElectionRequest{VotingStart: &start})
	assertCode(t, err, apperr.KindConflict, apperr.CodeFieldLocked)

	err = h.svc.UpdateElection(ctx, s.admin, s.electionID, models.UpdateElectionRequest{})
	assertCode(t, err, apperr.KindValidation, "")

	e, err := h.svc.GetElection(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	end := e.VotingEnd.Add(10 * time.Minute)
	if err := h.svc.UpdateElection(ctx, s.admin, s.electionID, models.UpdateElectionRequest{VotingEnd: &end}); err != nil {
		t.Fatalf("UpdateElection failed: %v", err)
	}

	e, err = h.svc.GetElection(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	if !e.VotingEnd.Equal(end) {
		t.Errorf("Expected voting end %v, got %v", end, e.VotingEnd)
	}
	if !e.HasSecretKey {
		t.Error("Expected admin to see has_secret_key")
	}

	viewer, err := h.svc.GetElection(ctx, s.supervisor, s.electionID)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	if viewer.HasSecretKey || viewer.TotalActivatedSystems != nil {
		t.Errorf("Expected secret-key details hidden from non-admins, got %+v", viewer)
	}
}

func TestDraftOnlyOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.actor(t, testutil.CreateTestUser(t, h.conn, "Admin", models.RoleAdmin))
	class := testutil.CreateTestClass(t, h.conn, "9-C", 9)

	draft := testutil.CreateTestElection(t, h.conn, models.StatusDraft, h.start)
	open := testutil.CreateTestElection(t, h.conn, models.StatusNominations, h.start)

	err := h.svc.SetReservedClasses(ctx, admin, draft, []int{class + 100})
	assertCode(t, err, apperr.KindValidation, "")

	if err := h.svc.SetReservedClasses(ctx, admin, draft, []int{class, class}); err != nil {
		t.Fatalf("SetReservedClasses failed: %v", err)
	}
	e, err := h.svc.GetElection(ctx, admin, draft)
	if err != nil {
		t.Fatalf("GetElection failed: %v", err)
	}
	if len(e.ReservedClasses) != 1 || e.ReservedClasses[0] != class {
		t.Errorf("Expected reserved classes [%d], got %v", class, e.ReservedClasses)
	}

	err = h.svc.SetReservedClasses(ctx, admin, open, []int{class})
	assertCode(t, err, apperr.KindConflict, apperr.CodeWrongPhase)

	err = h.svc.DeleteElection(ctx, admin, open)
	assertCode(t, err, apperr.KindConflict, apperr.CodeWrongPhase)

	if err := h.svc.DeleteElection(ctx, admin, draft); err != nil {
		t.Fatalf("DeleteElection failed: %v", err)
	}
	_, err = h.svc.GetElection(ctx, admin, draft)
	assertCode(t, err, apperr.KindNotFound, "")
}

func TestUpdateSupervisors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := h.actor(t, testutil.CreateTestUser(t, h.conn, "Admin", models.RoleAdmin))
	teacher := testutil.CreateTestTeacher(t, h.conn, "Teacher", "EMP1", 0)
	class := testutil.CreateTestClass(t, h.conn, "9-C", 9)
	student := testutil.CreateTestStudent(t, h.conn, "S1", "Student", class)
	electionID := testutil.CreateTestElection(t, h.conn, models.StatusNominations, h.start)

	err := h.svc.UpdateSupervisors(ctx, admin, electionID, models.UpdateSupervisorsRequest{})
	assertCode(t, err, apperr.KindValidation, "")

	// Students are silently skipped; only teachers can supervise.
	err = h.svc.UpdateSupervisors(ctx, admin, electionID, models.UpdateSupervisorsRequest{Add: []string{teacher, student}})
	if err != nil {
		t.Fatalf("UpdateSupervisors failed: %v", err)
	}
	list, err := h.svc.ListSupervisors(ctx, electionID)
	if err != nil {
		t.Fatalf("ListSupervisors failed: %v", err)
	}
	if len(list) != 1 || list[0].UserID != teacher {
		t.Errorf("Expected only the teacher as supervisor, got %+v", list)
	}

	// The actor picks up the new capability on its next load.
	if !h.actor(t, teacher).IsSupervisorOf(electionID) {
		t.Error("Expected teacher to supervise the election")
	}

	inbox, err := events.NewNotifier(h.conn, nil).Inbox(ctx, teacher, 10)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(inbox) == 0 {
		t.Error("Expected the new supervisor to be notified")
	}

	err = h.svc.UpdateSupervisors(ctx, admin, electionID, models.UpdateSupervisorsRequest{Remove: []string{teacher}})
	if err != nil {
		t.Fatalf("UpdateSupervisors failed: %v", err)
	}
	if h.actor(t, teacher).IsSupervisorOf(electionID) {
		t.Error("Expected supervision to be removed")
	}
}

func TestSecretKeyPhases(t *testing.T) {
	h := newHarness(t)
	s := newSchool(t, h)
	ctx := context.Background()

	_, err := h.svc.GenerateSecretKey(ctx, s.admin, s.electionID)
	assertCode(t, err, apperr.KindConflict, "")

	h.at(t, s.electionID, models.StatusPreVoting)
	first, err := h.svc.GenerateSecretKey(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("GenerateSecretKey failed: %v", err)
	}
	second, err := h.svc.GenerateSecretKey(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("GenerateSecretKey failed: %v", err)
	}
	if first.SecretKey == second.SecretKey {
		t.Error("Expected regeneration to produce a new key")
	}

	// The old key stops working once replaced.
	_, err = h.svc.ActivateDevice(ctx, s.electionID, models.ActivateDeviceRequest{SecretKey: first.SecretKey, DeviceID: "desk-1"})
	assertCode(t, err, apperr.KindUnauthorized, "")

	resp, err := h.svc.ActivateDevice(ctx, s.electionID, models.ActivateDeviceRequest{SecretKey: second.SecretKey, DeviceID: "desk-1"})
	if err != nil {
		t.Fatalf("ActivateDevice failed: %v", err)
	}
	// Activating again rotates the device token.
	again, err := h.svc.ActivateDevice(ctx, s.electionID, models.ActivateDeviceRequest{SecretKey: second.SecretKey, DeviceID: "desk-1"})
	if err != nil {
		t.Fatalf("ActivateDevice failed: %v", err)
	}
	_, err = h.svc.AuthenticateDevice(ctx, resp.DeviceToken)
	assertCode(t, err, apperr.KindUnauthorized, "")
	if _, err := h.svc.AuthenticateDevice(ctx, again.DeviceToken); err != nil {
		t.Errorf("Expected rotated token to authenticate, got %v", err)
	}

	devices, err := h.svc.ListDevices(ctx, s.admin, s.electionID)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("Expected 1 device, got %d", len(devices))
	}
}

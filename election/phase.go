// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package election

import (
	"time"

	"github.com/danielhkuo/elvox/apperr"
	"github.com/danielhkuo/elvox/models"
)

// ExpectedStatus returns the phase an election with timeline t should be in at now.
// Each boundary belongs to the phase it opens.
func ExpectedStatus(t models.Timeline, now time.Time) models.Status {
	switch {
	case now.Before(t.NominationStart):
		return models.StatusDraft
	case now.Before(t.NominationEnd):
		return models.StatusNominations
	case now.Before(t.VotingStart):
		return models.StatusPreVoting
	case now.Before(t.VotingEnd):
		return models.StatusVoting
	case now.Before(t.ElectionEnd):
		return models.StatusPostVoting
	default:
		return models.StatusClosed
	}
}

// EditableFields returns the election fields that may change while in status.
func EditableFields(status models.Status) models.FieldSet {
	switch status {
	case models.StatusDraft:
		return models.FieldSet{
			models.FieldName,
			models.FieldNominationStart,
			models.FieldNominationEnd,
			models.FieldVotingStart,
			models.FieldVotingEnd,
			models.FieldElectionEnd,
		}
	case models.StatusNominations:
		return models.FieldSet{
			models.FieldNominationEnd,
			models.FieldVotingStart,
			models.FieldVotingEnd,
			models.FieldElectionEnd,
		}
	case models.StatusPreVoting:
		return models.FieldSet{
			models.FieldVotingStart,
			models.FieldVotingEnd,
			models.FieldElectionEnd,
		}
	case models.StatusVoting:
		return models.FieldSet{
			models.FieldVotingEnd,
			models.FieldElectionEnd,
		}
	case models.StatusPostVoting:
		return models.FieldSet{models.FieldElectionEnd}
	case models.StatusClosed:
		return nil
	}
	return nil
}

// phaseNotice is the broadcast sent when an election enters status.
func phaseNotice(name string, status models.Status) models.Notification {
	var msg string
	switch status {
	case models.StatusNominations:
		msg = "Nominations are now open"
	case models.StatusPreVoting:
		msg = "Nominations have closed"
	case models.StatusVoting:
		msg = "Voting is now open"
	case models.StatusPostVoting:
		msg = "Voting has closed"
	case models.StatusClosed:
		msg = "The election has ended"
	default:
		msg = "Election status changed"
	}
	return models.Notification{Title: name, Message: msg, Type: "info"}
}

type boundary struct {
	field models.Field
	at    time.Time
}

func boundaries(t models.Timeline) []boundary {
	return []boundary{
		{models.FieldNominationStart, t.NominationStart},
		{models.FieldNominationEnd, t.NominationEnd},
		{models.FieldVotingStart, t.VotingStart},
		{models.FieldVotingEnd, t.VotingEnd},
		{models.FieldElectionEnd, t.ElectionEnd},
	}
}

// validateTimeline checks a proposed timeline. Every changed boundary must lie
// after now and every adjacent pair touching an editable field must be in
// strict order. In draft the nomination start must also be in the future.
func validateTimeline(t models.Timeline, status models.Status, changed models.FieldSet, now time.Time) error {
	editable := EditableFields(status)
	seq := boundaries(t)

	for _, b := range seq {
		if b.at.IsZero() {
			return apperr.Validation("%s is required", b.field)
		}
	}

	if status == models.StatusDraft && !t.NominationStart.After(now) {
		return apperr.Validation("%s must be in the future", models.FieldNominationStart)
	}
	for _, b := range seq {
		if changed.Has(b.field) && !b.at.After(now) {
			return apperr.Validation("%s must be in the future", b.field)
		}
	}

	for i := 0; i+1 < len(seq); i++ {
		a, b := seq[i], seq[i+1]
		if !editable.Has(a.field) && !editable.Has(b.field) {
			continue
		}
		if !a.at.Before(b.at) {
			return apperr.Validation("%s must be before %s", a.field, b.field)
		}
	}
	return nil
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "fmt"

// Status is the lifecycle phase of an election.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusNominations Status = "nominations"
	StatusPreVoting   Status = "pre-voting"
	StatusVoting      Status = "voting"
	StatusPostVoting  Status = "post-voting"
	StatusClosed      Status = "closed"
)

// Statuses lists every phase in lifecycle order.
var Statuses = []Status{
	StatusDraft,
	StatusNominations,
	StatusPreVoting,
	StatusVoting,
	StatusPostVoting,
	StatusClosed,
}

// Index returns the position of s in the lifecycle, or -1 for an unknown status.
func (s Status) Index() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Status) Valid() bool {
	return s.Index() >= 0
}

// Before reports whether s comes strictly earlier in the lifecycle than other.
func (s Status) Before(other Status) bool {
	return s.Index() < other.Index()
}

// Next returns the phase following s. It returns false for closed.
func (s Status) Next() (Status, bool) {
	i := s.Index()
	if i < 0 || i == len(Statuses)-1 {
		return s, false
	}
	return Statuses[i+1], true
}

// ParseStatus converts a stored status string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown election status %q", raw)
	}
	return s, nil
}

// Category is a voting track inside a class.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryReserved Category = "reserved"
)

func (c Category) Valid() bool {
	return c == CategoryGeneral || c == CategoryReserved
}

// CandidateStatus is the review state of a nomination.
type CandidateStatus string

const (
	CandidatePending   CandidateStatus = "pending"
	CandidateApproved  CandidateStatus = "approved"
	CandidateRejected  CandidateStatus = "rejected"
	CandidateWithdrawn CandidateStatus = "withdrawn"
)

// ResultStatus is the outcome of a ballot entry after counting.
type ResultStatus string

const (
	ResultWon  ResultStatus = "won"
	ResultLost ResultStatus = "lost"
	ResultTie  ResultStatus = "tie"
)

// LogLevel is the severity of an audit log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// Field names an editable election attribute.
type Field string

const (
	FieldName            Field = "name"
	FieldNominationStart Field = "nomination_start"
	FieldNominationEnd   Field = "nomination_end"
	FieldVotingStart     Field = "voting_start"
	FieldVotingEnd       Field = "voting_end"
	FieldElectionEnd     Field = "election_end"
)

// FieldSet is an unordered set of election fields.
type FieldSet []Field

func (fs FieldSet) Has(f Field) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

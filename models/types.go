// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

import "time"

// Domain types

// Timeline holds the five configurable phase boundaries of an election.
type Timeline struct {
	NominationStart time.Time `json:"nomination_start"`
	NominationEnd   time.Time `json:"nomination_end"`
	VotingStart     time.Time `json:"voting_start"`
	VotingEnd       time.Time `json:"voting_end"`
	ElectionEnd     time.Time `json:"election_end"`
}

type Election struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Timeline
	ElectionStart      time.Time `json:"election_start"`
	Status             Status    `json:"status"`
	ReservedClasses    []int     `json:"reserved_classes"`
	AutoPublishResults bool      `json:"auto_publish_results"`
	ResultPublished    bool      `json:"result_published"`
	CreatedAt          time.Time `json:"created_at"`

	// Admin-only view
	HasSecretKey          bool       `json:"has_secret_key,omitempty"`
	SecretKeyGeneratedAt  *time.Time `json:"secret_key_generated_at,omitempty"`
	TotalActivatedSystems *int       `json:"total_activated_systems,omitempty"`
}

// HasReserved reports whether classID votes in the reserved category.
func (e Election) HasReserved(classID int) bool {
	for _, c := range e.ReservedClasses {
		if c == classID {
			return true
		}
	}
	return false
}

// RequiredCategories returns the categories a voter of classID must fill.
func (e Election) RequiredCategories(classID int) []Category {
	if e.HasReserved(classID) {
		return []Category{CategoryGeneral, CategoryReserved}
	}
	return []Category{CategoryGeneral}
}

type Candidate struct {
	ID              string          `json:"id"`
	ElectionID      string          `json:"election_id"`
	UserID          string          `json:"user_id"`
	Name            string          `json:"name"`
	Category        Category        `json:"category"`
	ClassID         int             `json:"class_id"`
	Status          CandidateStatus `json:"status"`
	Nominee1Admno   string          `json:"nominee1_admno"`
	Nominee1Proof   string          `json:"nominee1_proof,omitempty"`
	Nominee2Admno   string          `json:"nominee2_admno"`
	Nominee2Proof   string          `json:"nominee2_proof,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	ActionedBy      *string         `json:"actioned_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type BallotEntry struct {
	ID            string   `json:"id"`
	ElectionID    string   `json:"election_id"`
	ClassID       int      `json:"class_id"`
	Category      Category `json:"category"`
	CandidateID   *string  `json:"candidate_id"`
	CandidateName string   `json:"candidate_name,omitempty"`
	IsNOTA        bool     `json:"is_nota"`
}

// Result is one counted ballot entry. Lead is only filled by result queries.
type Result struct {
	ID            string       `json:"id"`
	ElectionID    string       `json:"election_id"`
	ClassID       int          `json:"class_id"`
	Category      Category     `json:"category"`
	CandidateID   *string      `json:"candidate_id"`
	CandidateName string       `json:"candidate_name,omitempty"`
	IsNOTA        bool         `json:"is_nota"`
	TotalVotes    int          `json:"total_votes"`
	Rank          int          `json:"rank"`
	Status        ResultStatus `json:"result_status"`
	HadTie        bool         `json:"had_tie"`
	Lead          *int         `json:"lead,omitempty"`
}

type ClassResults struct {
	ClassID   int      `json:"class_id"`
	ClassName string   `json:"class_name"`
	Year      int      `json:"year"`
	General   []Result `json:"general"`
	Reserved  []Result `json:"reserved"`
}

type CategoryTies struct {
	Category Category `json:"category"`
	Tied     []Result `json:"tied"`
}

type TieBreakStatus struct {
	ElectionID string         `json:"election_id"`
	ClassID    int            `json:"class_id"`
	Pending    bool           `json:"pending"`
	Categories []CategoryTies `json:"categories"`
}

type Supervisor struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Empcode string `json:"empcode"`
}

type VotingDevice struct {
	ID          string     `json:"id"`
	ElectionID  string     `json:"election_id"`
	DeviceID    string     `json:"device_id"`
	DeviceName  string     `json:"device_name"`
	ActivatedAt time.Time  `json:"activated_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

type LogEntry struct {
	ID         int64     `json:"id"`
	ElectionID string    `json:"election_id"`
	Level      LogLevel  `json:"level"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is the payload delivered to a set of users.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// InboxItem is a notification as stored for one recipient.
type InboxItem struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Request types

type CreateElectionRequest struct {
	Name string `json:"name"`
	Timeline
}

// UpdateElectionRequest carries only the fields the caller wants to change.
type UpdateElectionRequest struct {
	Name            *string    `json:"name,omitempty"`
	NominationStart *time.Time `json:"nomination_start,omitempty"`
	NominationEnd   *time.Time `json:"nomination_end,omitempty"`
	VotingStart     *time.Time `json:"voting_start,omitempty"`
	VotingEnd       *time.Time `json:"voting_end,omitempty"`
	ElectionEnd     *time.Time `json:"election_end,omitempty"`
}

// Fields lists the fields present in the request.
func (r UpdateElectionRequest) Fields() FieldSet {
	var fs FieldSet
	if r.Name != nil {
		fs = append(fs, FieldName)
	}
	if r.NominationStart != nil {
		fs = append(fs, FieldNominationStart)
	}
	if r.NominationEnd != nil {
		fs = append(fs, FieldNominationEnd)
	}
	if r.VotingStart != nil {
		fs = append(fs, FieldVotingStart)
	}
	if r.VotingEnd != nil {
		fs = append(fs, FieldVotingEnd)
	}
	if r.ElectionEnd != nil {
		fs = append(fs, FieldElectionEnd)
	}
	return fs
}

type ReservedClassesRequest struct {
	Classes []int `json:"classes"`
}

type AutoPublishRequest struct {
	Enabled bool `json:"enabled"`
}

// UpdateSupervisorsRequest lists teacher user IDs to add and remove.
type UpdateSupervisorsRequest struct {
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

type NominationRequest struct {
	Category      Category `json:"category"`
	Nominee1Admno string   `json:"nominee1_admno"`
	Nominee1Proof string   `json:"nominee1_proof"`
	Nominee2Admno string   `json:"nominee2_admno"`
	Nominee2Proof string   `json:"nominee2_proof"`
}

type ReviewCandidateRequest struct {
	Status CandidateStatus `json:"status"`
	Reason string          `json:"reason,omitempty"`
}

type ActivateDeviceRequest struct {
	SecretKey  string `json:"secret_key"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type VerifyVoterRequest struct {
	Admno string `json:"admno"`
}

type AuthenticateVoterRequest struct {
	Admno string `json:"admno"`
	OTP   string `json:"otp"`
}

type BallotRequest struct {
	VotingToken string `json:"voting_token"`
}

// CastVoteRequest maps each category to the chosen ballot entry ID.
type CastVoteRequest struct {
	VotingToken string              `json:"voting_token"`
	Votes       map[Category]string `json:"votes"`
}

type MarkReadRequest struct {
	IDs []int64 `json:"ids"`
}

type TieAssignment struct {
	ResultID  string `json:"result_id"`
	FinalRank int    `json:"final_rank"`
}

type ResolveTieBreakRequest struct {
	Assignments []TieAssignment `json:"assignments"`
}

// ResultsFilter narrows a results query. Zero values match everything.
type ResultsFilter struct {
	Status  ResultStatus
	ClassID int
	Year    int
}

// Response types

type CreateElectionResponse struct {
	ElectionID string `json:"election_id"`
}

type SecretKeyResponse struct {
	SecretKey   string    `json:"secret_key"`
	GeneratedAt time.Time `json:"generated_at"`
}

type ActivateDeviceResponse struct {
	DeviceID    string `json:"device_id"`
	DeviceToken string `json:"device_token"`
}

type VerifyVoterResponse struct {
	Admno     string    `json:"admno"`
	OTP       string    `json:"otp"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthenticateVoterResponse struct {
	VotingToken string    `json:"voting_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package models

// Role is the account type stored on a user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// Actor is the authenticated user behind a request, with every capability
// resolved up front. Student fields are set only for students and teacher
// fields only for teachers.
type Actor struct {
	UserID string
	Name   string
	Role   Role

	// Student
	Admno   string
	ClassID int

	// Teacher
	Empcode      string
	TutorOf      int             // 0 when the teacher tutors no class
	SupervisorOf map[string]bool // election IDs this teacher supervises
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsStudent() bool {
	return a.Role == RoleStudent
}

func (a Actor) IsTeacher() bool {
	return a.Role == RoleTeacher
}

// IsTutorOf reports whether the actor is the class tutor of classID.
func (a Actor) IsTutorOf(classID int) bool {
	return a.Role == RoleTeacher && a.TutorOf != 0 && a.TutorOf == classID
}

// IsSupervisorOf reports whether the actor supervises voting for electionID.
func (a Actor) IsSupervisorOf(electionID string) bool {
	return a.Role == RoleTeacher && a.SupervisorOf[electionID]
}

package models

import "time"

// Subject is a course that must be taught a fixed number of hours per week
// for one (year, section) partition.
type Subject struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	HoursPerWeek int       `db:"hours_per_week" json:"hours_per_week"`
	Year         int       `db:"year" json:"year"`
	Section      string    `db:"section" json:"section"`
	TeacherID    *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AssignedTeacher returns the owning teacher id or "" when the subject is TBA.
func (s Subject) AssignedTeacher() string {
	if s.TeacherID == nil {
		return ""
	}
	return *s.TeacherID
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Year      int
	Section   string
	TeacherID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

package models

import (
	"time"

	"github.com/lib/pq"
)

// Teacher represents an instructor record. MaxHoursPerWeek is advisory and
// never enforced by the allocator.
type Teacher struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Email           string         `db:"email" json:"email"`
	Subjects        pq.StringArray `db:"subjects" json:"subjects"`
	MaxHoursPerWeek int            `db:"max_hours_per_week" json:"max_hours_per_week"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

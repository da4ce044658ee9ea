package models

import "time"

// EntrySource records how a schedule entry came to exist.
type EntrySource string

const (
	EntrySourceGenerated EntrySource = "GENERATED"
	EntrySourceManual    EntrySource = "MANUAL"
)

// Slot is one (day, period) cell of the weekly grid.
type Slot struct {
	Day       string `db:"day" json:"day"`
	Period    int    `db:"period" json:"period"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// ScheduleEntry places one hour of a subject into one slot for a (year, section).
// TeacherID is empty when the subject has no teacher yet.
type ScheduleEntry struct {
	ID        string      `db:"id" json:"id"`
	SubjectID string      `db:"subject_id" json:"subject_id"`
	TeacherID string      `db:"teacher_id" json:"teacher_id"`
	Year      int         `db:"year" json:"year"`
	Section   string      `db:"section" json:"section"`
	Slot      `json:"time_slot"`
	Room      *string     `db:"room" json:"room,omitempty"`
	Source    EntrySource `db:"source" json:"source"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// ConflictKind distinguishes the two double-booking dimensions.
type ConflictKind string

const (
	ConflictKindTeacher ConflictKind = "TEACHER_CONFLICT"
	ConflictKindSection ConflictKind = "SECTION_CONFLICT"
)

// TimetableConflict describes one occupancy key held by more than one entry.
type TimetableConflict struct {
	Kind      ConflictKind `json:"kind"`
	Key       string       `json:"key"`
	TeacherID string       `json:"teacher_id,omitempty"`
	Year      int          `json:"year,omitempty"`
	Section   string       `json:"section,omitempty"`
	Day       string       `json:"day"`
	Period    int          `json:"period"`
	EntryIDs  []string     `json:"entry_ids"`
}

// Shortfall reports a subject that received fewer slots than requested.
type Shortfall struct {
	SubjectID string `json:"subject_id"`
	Requested int    `json:"requested"`
	Allocated int    `json:"allocated"`
}

package dto

import "github.com/noah-isme/sma-timetable-api/internal/models"

// GenerateTimetableRequest asks the allocator to build a partition timetable.
// Persist defaults to true; false returns a preview without storing it.
type GenerateTimetableRequest struct {
	Year    int    `json:"year" validate:"required,min=1,max=12"`
	Section string `json:"section" validate:"required,max=16"`
	Persist *bool  `json:"persist"`
}

// ShouldPersist reports whether the generated entries replace the stored ones.
func (r GenerateTimetableRequest) ShouldPersist() bool {
	return r.Persist == nil || *r.Persist
}

// CapacityStats summarises how much of the week the partition consumed.
type CapacityStats struct {
	Slots     int `json:"slots"`
	Requested int `json:"requested"`
	Allocated int `json:"allocated"`
	Unfilled  int `json:"unfilled"`
}

// GenerateTimetableResponse is the outcome of a generate or preview run.
type GenerateTimetableResponse struct {
	Mode       string                 `json:"mode"`
	Year       int                    `json:"year"`
	Section    string                 `json:"section"`
	Entries    []models.ScheduleEntry `json:"entries"`
	Conflicts  []ConflictView         `json:"conflicts"`
	Shortfalls []models.Shortfall     `json:"shortfalls"`
	Capacity   CapacityStats          `json:"capacity"`
}

// TimetableQuery identifies one (year, section) partition.
type TimetableQuery struct {
	Year    int    `form:"year" json:"year" validate:"required,min=1,max=12"`
	Section string `form:"section" json:"section" validate:"required,max=16"`
}

// TimetableView is the stored timetable of a partition in grid order.
type TimetableView struct {
	Year    int                    `json:"year"`
	Section string                 `json:"section"`
	Entries []models.ScheduleEntry `json:"entries"`
}

// ConflictQuery optionally narrows a conflict report to one partition.
type ConflictQuery struct {
	Year    int    `form:"year" json:"year" validate:"omitempty,min=1,max=12"`
	Section string `form:"section" json:"section" validate:"omitempty,max=16"`
}

// ConflictView pairs a conflict descriptor with its display message.
type ConflictView struct {
	models.TimetableConflict
	Message string `json:"message"`
}

// CheckConflictsRequest carries caller-supplied entries for a stateless audit.
type CheckConflictsRequest struct {
	Entries []CheckEntry `json:"entries" validate:"required,dive"`
}

// CheckEntry is the minimal entry shape the detector needs.
type CheckEntry struct {
	ID        string `json:"id" validate:"required"`
	SubjectID string `json:"subject_id"`
	TeacherID string `json:"teacher_id"`
	Year      int    `json:"year" validate:"required,min=1,max=12"`
	Section   string `json:"section" validate:"required"`
	Day       string `json:"day" validate:"required"`
	Period    int    `json:"period" validate:"required,min=1"`
}

// ConflictReport is returned by the conflict endpoints.
type ConflictReport struct {
	Total     int            `json:"total"`
	Conflicts []ConflictView `json:"conflicts"`
}

// CreateEntryRequest places one manual entry into a partition slot.
type CreateEntryRequest struct {
	Year      int     `json:"year" validate:"required,min=1,max=12"`
	Section   string  `json:"section" validate:"required,max=16"`
	SubjectID string  `json:"subject_id" validate:"required"`
	TeacherID string  `json:"teacher_id"`
	Day       string  `json:"day" validate:"required"`
	Period    int     `json:"period" validate:"required,min=1"`
	Room      *string `json:"room" validate:"omitempty,max=64"`
}

// ManualEntryResponse returns the stored entry and the post-insert audit.
type ManualEntryResponse struct {
	Entry     models.ScheduleEntry `json:"entry"`
	Conflicts []ConflictView       `json:"conflicts"`
}

// PeriodView describes one grid period.
type PeriodView struct {
	Number    int    `json:"number"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Label     string `json:"label"`
}

// GridView exposes the configured week grid.
type GridView struct {
	Days     []string     `json:"days"`
	Periods  []PeriodView `json:"periods"`
	Capacity int          `json:"capacity"`
}

// ExportQuery drives the synchronous export endpoint.
type ExportQuery struct {
	Year    int                 `form:"year" json:"year" validate:"required,min=1,max=12"`
	Section string              `form:"section" json:"section" validate:"required,max=16"`
	Format  models.ExportFormat `form:"format" json:"format" validate:"omitempty,oneof=csv pdf"`
}

// CreateExportRequest queues an asynchronous export.
type CreateExportRequest struct {
	Year    int                 `json:"year" validate:"required,min=1,max=12"`
	Section string              `json:"section" validate:"required,max=16"`
	Format  models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobView is an export job plus its signed download link once finished.
type ExportJobView struct {
	models.ExportJob
	DownloadURL *string `json:"download_url,omitempty"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
}

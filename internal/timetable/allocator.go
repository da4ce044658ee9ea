package timetable

import (
	"errors"
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

// ErrCapacityExceeded is returned when a partition needs more hours than the grid holds.
var ErrCapacityExceeded = errors.New("not enough time slots")

// CapacityError carries the numbers behind ErrCapacityExceeded.
type CapacityError struct {
	Needed    int
	Available int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: need %d, have %d", ErrCapacityExceeded, e.Needed, e.Available)
}

// Is lets errors.Is match ErrCapacityExceeded.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

type allocateConfig struct {
	reservations []models.ScheduleEntry
}

// AllocateOption tunes a single Allocate call.
type AllocateOption func(*allocateConfig)

// WithReservations marks the teacher slots already held by entries of other
// partitions as busy. Entries of the target partition, entries without a
// teacher and entries outside the grid are ignored.
func WithReservations(entries []models.ScheduleEntry) AllocateOption {
	return func(cfg *allocateConfig) {
		cfg.reservations = append(cfg.reservations, entries...)
	}
}

// Allocate places every required hour of the (year, section) subjects into
// the grid using a single forward cursor shared by all subjects. The cursor
// never rewinds, so a subject that cannot find a free slot before the end of
// the week simply receives fewer entries; see Shortfalls.
func Allocate(subjects []models.Subject, teachers []models.Teacher, year int, section string, grid *WeekGrid, opts ...AllocateOption) ([]models.ScheduleEntry, error) {
	if grid == nil {
		grid = DefaultGrid()
	}
	cfg := allocateConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	partition := filterPartition(subjects, year, section)
	needed := 0
	for _, s := range partition {
		needed += s.HoursPerWeek
	}
	if needed > grid.Capacity() {
		return nil, &CapacityError{Needed: needed, Available: grid.Capacity()}
	}

	busyTeacher := make(map[string]map[int]struct{}, len(teachers))
	for _, t := range teachers {
		busyTeacher[t.ID] = make(map[int]struct{})
	}
	for _, r := range cfg.reservations {
		if r.TeacherID == "" || (r.Year == year && r.Section == section) {
			continue
		}
		idx, ok := grid.indexOf(r.Day, r.Period)
		if !ok {
			continue
		}
		markTeacher(busyTeacher, r.TeacherID, idx)
	}
	busySection := make(map[int]struct{}, needed)

	entries := make([]models.ScheduleEntry, 0, needed)
	cursor := 0
	for _, subject := range partition {
		teacherID := subject.AssignedTeacher()
		placed := 0
		for placed < subject.HoursPerWeek && cursor < grid.Capacity() {
			idx := cursor
			cursor++

			if _, taken := busySection[idx]; taken {
				continue
			}
			if teacherID != "" {
				if _, taken := busyTeacher[teacherID][idx]; taken {
					continue
				}
			}

			slot, _ := grid.SlotAt(idx)
			entries = append(entries, models.ScheduleEntry{
				ID:        EntryID(subject.ID, slot.Day, slot.Period),
				SubjectID: subject.ID,
				TeacherID: teacherID,
				Year:      year,
				Section:   section,
				Slot:      slot,
				Source:    models.EntrySourceGenerated,
			})
			busySection[idx] = struct{}{}
			if teacherID != "" {
				markTeacher(busyTeacher, teacherID, idx)
			}
			placed++
		}
	}
	return entries, nil
}

// EntryID is the deterministic id of a generated entry.
func EntryID(subjectID, day string, period int) string {
	return fmt.Sprintf("%s-%s-%d", subjectID, day, period)
}

// Shortfalls lists the partition subjects that received fewer entries than
// their weekly hours, in subject order.
func Shortfalls(subjects []models.Subject, year int, section string, entries []models.ScheduleEntry) []models.Shortfall {
	placed := make(map[string]int, len(subjects))
	for _, e := range entries {
		if e.Year == year && e.Section == section {
			placed[e.SubjectID]++
		}
	}
	var out []models.Shortfall
	for _, s := range filterPartition(subjects, year, section) {
		if got := placed[s.ID]; got < s.HoursPerWeek {
			out = append(out, models.Shortfall{SubjectID: s.ID, Requested: s.HoursPerWeek, Allocated: got})
		}
	}
	return out
}

func filterPartition(subjects []models.Subject, year int, section string) []models.Subject {
	out := make([]models.Subject, 0, len(subjects))
	for _, s := range subjects {
		if s.Year == year && s.Section == section {
			out = append(out, s)
		}
	}
	return out
}

func markTeacher(busy map[string]map[int]struct{}, teacherID string, idx int) {
	slots, ok := busy[teacherID]
	if !ok {
		slots = make(map[int]struct{})
		busy[teacherID] = slots
	}
	slots[idx] = struct{}{}
}

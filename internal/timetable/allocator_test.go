package timetable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestAllocateSharedTeacherOnTwoSlotGrid(t *testing.T) {
	grid := mustGrid(t, []string{"Monday"}, 2)
	subjects := []models.Subject{
		subject("math", 1, 10, "A", "T1"),
		subject("physics", 1, 10, "A", "T1"),
	}

	entries, err := Allocate(subjects, []models.Teacher{{ID: "T1"}}, 10, "A", grid)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "math-Monday-1", entries[0].ID)
	assert.Equal(t, 1, entries[0].Period)
	assert.Equal(t, "physics-Monday-2", entries[1].ID)
	assert.Equal(t, 2, entries[1].Period)
	assert.Equal(t, models.EntrySourceGenerated, entries[1].Source)
	assert.Empty(t, DetectConflicts(entries))
}

func TestAllocateCapacityExceeded(t *testing.T) {
	grid := mustGrid(t, []string{"Monday"}, 1)
	subjects := []models.Subject{
		subject("math", 1, 10, "A", "T1"),
		subject("art", 1, 10, "A", "T2"),
	}

	entries, err := Allocate(subjects, nil, 10, "A", grid)
	require.Error(t, err)
	assert.Nil(t, entries)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	var capErr *CapacityError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, 2, capErr.Needed)
	assert.Equal(t, 1, capErr.Available)
}

func TestAllocateFullDefaultGrid(t *testing.T) {
	subjects := []models.Subject{
		subject("math", 24, 11, "B", "T1"),
		subject("bio", 24, 11, "B", ""),
	}

	entries, err := Allocate(subjects, nil, 11, "B", DefaultGrid())
	require.NoError(t, err)
	assert.Len(t, entries, 48)
	assert.Empty(t, DetectConflicts(entries))

	subjects = append(subjects, subject("pe", 1, 11, "B", ""))
	_, err = Allocate(subjects, nil, 11, "B", DefaultGrid())
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestAllocateIgnoresOtherPartitions(t *testing.T) {
	subjects := []models.Subject{
		subject("other-year", 40, 12, "A", "T1"),
		subject("other-section", 40, 10, "B", "T1"),
		subject("math", 3, 10, "A", "T1"),
	}

	entries, err := Allocate(subjects, []models.Teacher{{ID: "T1"}}, 10, "A", DefaultGrid())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "math", e.SubjectID)
		assert.Equal(t, 10, e.Year)
		assert.Equal(t, "A", e.Section)
	}
}

func TestAllocateHonoursHourCapAndOrder(t *testing.T) {
	subjects := []models.Subject{
		subject("math", 5, 10, "A", "T1"),
		subject("chem", 3, 10, "A", "T2"),
		subject("history", 2, 10, "A", ""),
	}

	entries, err := Allocate(subjects, []models.Teacher{{ID: "T1"}, {ID: "T2"}}, 10, "A", DefaultGrid())
	require.NoError(t, err)

	counts := map[string]int{}
	for _, e := range entries {
		counts[e.SubjectID]++
	}
	assert.Equal(t, map[string]int{"math": 5, "chem": 3, "history": 2}, counts)

	assert.Equal(t, "math-Monday-1", entries[0].ID)
	assert.Equal(t, "chem-Monday-6", entries[5].ID)
	assert.Equal(t, "history-Tuesday-1", entries[8].ID)
	assert.Equal(t, "", entries[8].TeacherID)
	assert.Empty(t, Shortfalls(subjects, 10, "A", entries))
}

func TestAllocateIsDeterministic(t *testing.T) {
	subjects := []models.Subject{
		subject("math", 6, 10, "A", "T1"),
		subject("eng", 4, 10, "A", "T2"),
		subject("art", 2, 10, "A", "T1"),
	}
	teachers := []models.Teacher{{ID: "T1"}, {ID: "T2"}}

	first, err := Allocate(subjects, teachers, 10, "A", DefaultGrid())
	require.NoError(t, err)
	second, err := Allocate(subjects, teachers, 10, "A", DefaultGrid())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAllocateDoesNotMutateInputs(t *testing.T) {
	subjects := []models.Subject{subject("math", 2, 10, "A", "T1")}
	teachers := []models.Teacher{{ID: "T1", MaxHoursPerWeek: 1}}
	before := append([]models.Subject(nil), subjects...)

	_, err := Allocate(subjects, teachers, 10, "A", DefaultGrid())
	require.NoError(t, err)
	assert.Equal(t, before, subjects)
	assert.Equal(t, 1, teachers[0].MaxHoursPerWeek)
}

func TestAllocateWithReservationsSkipsBusyTeacherSlots(t *testing.T) {
	grid := mustGrid(t, []string{"Monday"}, 2)
	reserved := []models.ScheduleEntry{
		{ID: "x", SubjectID: "math-b", TeacherID: "T1", Year: 10, Section: "B", Slot: models.Slot{Day: "Monday", Period: 1}},
	}
	subjects := []models.Subject{subject("math", 2, 10, "A", "T1")}

	entries, err := Allocate(subjects, []models.Teacher{{ID: "T1"}}, 10, "A", grid, WithReservations(reserved))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "math-Monday-2", entries[0].ID)

	combined := append(append([]models.ScheduleEntry{}, reserved...), entries...)
	assert.Empty(t, DetectConflicts(combined))

	short := Shortfalls(subjects, 10, "A", entries)
	require.Len(t, short, 1)
	assert.Equal(t, models.Shortfall{SubjectID: "math", Requested: 2, Allocated: 1}, short[0])
}

func TestAllocateReservationsIgnoreTargetPartition(t *testing.T) {
	grid := mustGrid(t, []string{"Monday"}, 1)
	stale := []models.ScheduleEntry{
		{ID: "old", TeacherID: "T1", Year: 10, Section: "A", Slot: models.Slot{Day: "Monday", Period: 1}},
	}
	subjects := []models.Subject{subject("math", 1, 10, "A", "T1")}

	entries, err := Allocate(subjects, nil, 10, "A", grid, WithReservations(stale))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "math-Monday-1", entries[0].ID)
}

func TestAllocateEmptyPartition(t *testing.T) {
	entries, err := Allocate(nil, nil, 10, "A", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func mustGrid(t *testing.T, days []string, periods int) *WeekGrid {
	t.Helper()
	defs := make([]Period, 0, periods)
	for i := 1; i <= periods; i++ {
		defs = append(defs, Period{Number: i})
	}
	g, err := NewWeekGrid(days, defs)
	require.NoError(t, err)
	return g
}

func subject(id string, hours, year int, section, teacherID string) models.Subject {
	s := models.Subject{ID: id, Name: id, HoursPerWeek: hours, Year: year, Section: section}
	if teacherID != "" {
		s.TeacherID = &teacherID
	}
	return s
}

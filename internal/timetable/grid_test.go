package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

func TestDefaultGrid(t *testing.T) {
	g := DefaultGrid()

	assert.Equal(t, 48, g.Capacity())
	assert.Equal(t, DefaultDays, g.Days())

	periods := g.Periods()
	require.Len(t, periods, 8)
	assert.Equal(t, "08:00-09:00", periods[0].Label())
	assert.Equal(t, "15:00-16:00", periods[7].Label())
}

func TestWeekGridSlotAtIsRowMajor(t *testing.T) {
	g := DefaultGrid()

	slot, ok := g.SlotAt(9)
	require.True(t, ok)
	assert.Equal(t, "Tuesday", slot.Day)
	assert.Equal(t, 2, slot.Period)
	assert.Equal(t, "09:00", slot.StartTime)
	assert.Equal(t, "10:00", slot.EndTime)

	_, ok = g.SlotAt(48)
	assert.False(t, ok)
	_, ok = g.SlotAt(-1)
	assert.False(t, ok)
}

func TestWeekGridLookup(t *testing.T) {
	g := DefaultGrid()

	slot, ok := g.Lookup("Saturday", 8)
	require.True(t, ok)
	assert.Equal(t, "15:00", slot.StartTime)

	_, ok = g.Lookup("Sunday", 1)
	assert.False(t, ok)
	_, ok = g.Lookup("Monday", 9)
	assert.False(t, ok)
}

func TestWeekGridAccessorsReturnCopies(t *testing.T) {
	g := DefaultGrid()

	days := g.Days()
	days[0] = "Funday"
	periods := g.Periods()
	periods[0].StartTime = "00:00"

	assert.Equal(t, "Monday", g.Days()[0])
	assert.Equal(t, "08:00", g.Periods()[0].StartTime)
}

func TestNewWeekGridRejectsInvalidShapes(t *testing.T) {
	one := []Period{{Number: 1, StartTime: "08:00", EndTime: "09:00"}}

	_, err := NewWeekGrid(nil, one)
	assert.Error(t, err)
	_, err = NewWeekGrid([]string{"Monday"}, nil)
	assert.Error(t, err)
	_, err = NewWeekGrid([]string{"Monday", "Monday"}, one)
	assert.Error(t, err)
	_, err = NewWeekGrid([]string{"Monday"}, append(one, one[0]))
	assert.Error(t, err)
	_, err = NewWeekGrid([]string{"Monday"}, []Period{{Number: 0}})
	assert.Error(t, err)
}

func TestBuildGrid(t *testing.T) {
	g, err := BuildGrid([]string{"Monday", "Tuesday"}, 3, "07:30", 45*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 6, g.Capacity())
	p, ok := g.Period(3)
	require.True(t, ok)
	assert.Equal(t, "09:00-09:45", p.Label())

	_, err = BuildGrid([]string{"Monday"}, 3, "7am", time.Hour)
	assert.Error(t, err)
	_, err = BuildGrid([]string{"Monday"}, 0, "08:00", time.Hour)
	assert.Error(t, err)
	_, err = BuildGrid([]string{"Monday"}, 10, "20:00", time.Hour)
	assert.Error(t, err)
}

func TestWeekGridSortEntries(t *testing.T) {
	g := DefaultGrid()
	entries := []models.ScheduleEntry{
		{ID: "off", Slot: models.Slot{Day: "Sunday", Period: 1}},
		{ID: "tue-1", Slot: models.Slot{Day: "Tuesday", Period: 1}},
		{ID: "mon-2", Slot: models.Slot{Day: "Monday", Period: 2}},
		{ID: "mon-1", Slot: models.Slot{Day: "Monday", Period: 1}},
	}

	g.SortEntries(entries)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"mon-1", "mon-2", "tue-1", "off"}, ids)
}

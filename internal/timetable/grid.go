// Package timetable holds the pure weekly slot allocator and the conflict
// detector. Nothing here touches storage; callers pass catalog data in and
// receive schedule entries or conflict reports back.
package timetable

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const clockLayout = "15:04"

// DefaultDays are the teaching days used when no configuration overrides them.
var DefaultDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Period is one numbered teaching period with its wall-clock bounds.
type Period struct {
	Number    int    `json:"number"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Label renders the period as "HH:MM-HH:MM".
func (p Period) Label() string {
	return p.StartTime + "-" + p.EndTime
}

// WeekGrid is the immutable set of (day, period) slots available every week.
type WeekGrid struct {
	days     []string
	periods  []Period
	dayIndex map[string]int
	perIndex map[int]int
}

// NewWeekGrid validates and freezes a grid. Period numbers need not be
// contiguous but must be unique and positive.
func NewWeekGrid(days []string, periods []Period) (*WeekGrid, error) {
	if len(days) == 0 {
		return nil, errors.New("timetable: grid needs at least one day")
	}
	if len(periods) == 0 {
		return nil, errors.New("timetable: grid needs at least one period")
	}

	g := &WeekGrid{
		days:     make([]string, 0, len(days)),
		periods:  make([]Period, 0, len(periods)),
		dayIndex: make(map[string]int, len(days)),
		perIndex: make(map[int]int, len(periods)),
	}
	for _, raw := range days {
		day := strings.TrimSpace(raw)
		if day == "" {
			return nil, errors.New("timetable: blank day name")
		}
		if _, dup := g.dayIndex[day]; dup {
			return nil, fmt.Errorf("timetable: duplicate day %q", day)
		}
		g.dayIndex[day] = len(g.days)
		g.days = append(g.days, day)
	}
	for _, p := range periods {
		if p.Number <= 0 {
			return nil, fmt.Errorf("timetable: invalid period number %d", p.Number)
		}
		if _, dup := g.perIndex[p.Number]; dup {
			return nil, fmt.Errorf("timetable: duplicate period %d", p.Number)
		}
		g.perIndex[p.Number] = len(g.periods)
		g.periods = append(g.periods, p)
	}
	return g, nil
}

// BuildGrid derives back-to-back periods of equal length starting at firstStart (HH:MM).
func BuildGrid(days []string, count int, firstStart string, length time.Duration) (*WeekGrid, error) {
	if count <= 0 {
		return nil, fmt.Errorf("timetable: invalid period count %d", count)
	}
	if length <= 0 {
		return nil, fmt.Errorf("timetable: invalid period length %s", length)
	}
	start, err := time.Parse(clockLayout, strings.TrimSpace(firstStart))
	if err != nil {
		return nil, fmt.Errorf("timetable: parse first period start: %w", err)
	}
	end := start.Add(time.Duration(count) * length)
	if end.Day() != start.Day() {
		return nil, errors.New("timetable: periods run past midnight")
	}

	periods := make([]Period, 0, count)
	cursor := start
	for i := 1; i <= count; i++ {
		next := cursor.Add(length)
		periods = append(periods, Period{
			Number:    i,
			StartTime: cursor.Format(clockLayout),
			EndTime:   next.Format(clockLayout),
		})
		cursor = next
	}
	return NewWeekGrid(days, periods)
}

// DefaultGrid is Monday-Saturday with eight one-hour periods from 08:00.
func DefaultGrid() *WeekGrid {
	g, err := BuildGrid(DefaultDays, 8, "08:00", time.Hour)
	if err != nil {
		panic(err)
	}
	return g
}

// Days returns a copy of the ordered day names.
func (g *WeekGrid) Days() []string {
	out := make([]string, len(g.days))
	copy(out, g.days)
	return out
}

// Periods returns a copy of the ordered periods.
func (g *WeekGrid) Periods() []Period {
	out := make([]Period, len(g.periods))
	copy(out, g.periods)
	return out
}

// Capacity is the number of slots in one week.
func (g *WeekGrid) Capacity() int {
	return len(g.days) * len(g.periods)
}

// SlotAt maps a row-major index (day-major, period-minor) to its slot.
func (g *WeekGrid) SlotAt(index int) (models.Slot, bool) {
	if index < 0 || index >= g.Capacity() {
		return models.Slot{}, false
	}
	p := g.periods[index%len(g.periods)]
	return models.Slot{
		Day:       g.days[index/len(g.periods)],
		Period:    p.Number,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
	}, true
}

// Lookup resolves a (day, period) pair to a fully populated slot.
func (g *WeekGrid) Lookup(day string, period int) (models.Slot, bool) {
	idx, ok := g.indexOf(day, period)
	if !ok {
		return models.Slot{}, false
	}
	return g.SlotAt(idx)
}

// Period returns the period definition for a period number.
func (g *WeekGrid) Period(number int) (Period, bool) {
	i, ok := g.perIndex[number]
	if !ok {
		return Period{}, false
	}
	return g.periods[i], true
}

// SortEntries orders entries by grid position, day-major. Entries whose slot
// is not on the grid keep their relative order after all on-grid entries.
func (g *WeekGrid) SortEntries(entries []models.ScheduleEntry) {
	pos := func(e models.ScheduleEntry) int {
		if idx, ok := g.indexOf(e.Day, e.Period); ok {
			return idx
		}
		return g.Capacity()
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return pos(entries[i]) < pos(entries[j])
	})
}

func (g *WeekGrid) indexOf(day string, period int) (int, bool) {
	d, ok := g.dayIndex[day]
	if !ok {
		return 0, false
	}
	p, ok := g.perIndex[period]
	if !ok {
		return 0, false
	}
	return d*len(g.periods) + p, true
}

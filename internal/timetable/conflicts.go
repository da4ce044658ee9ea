package timetable

import (
	"fmt"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

type conflictGroup struct {
	conflict models.TimetableConflict
	ids      []string
}

type teacherSlot struct {
	teacherID string
	day       string
	period    int
}

type sectionSlot struct {
	year    int
	section string
	day     string
	period  int
}

// DetectConflicts reports every teacher and every section double booking in
// entries. Each occupancy tuple held by two or more entries yields exactly one
// conflict. Teacher conflicts precede section conflicts; within a kind the
// order follows the first entry holding the tuple. Entries without a teacher
// are never grouped by teacher.
func DetectConflicts(entries []models.ScheduleEntry) []models.TimetableConflict {
	teacherGroups := make(map[teacherSlot]*conflictGroup)
	sectionGroups := make(map[sectionSlot]*conflictGroup)
	var teacherOrder []*conflictGroup
	var sectionOrder []*conflictGroup

	for _, e := range entries {
		if e.TeacherID != "" {
			tk := teacherSlot{teacherID: e.TeacherID, day: e.Day, period: e.Period}
			g, ok := teacherGroups[tk]
			if !ok {
				g = &conflictGroup{conflict: models.TimetableConflict{
					Kind:      models.ConflictKindTeacher,
					Key:       TeacherKey(e.TeacherID, e.Day, e.Period),
					TeacherID: e.TeacherID,
					Day:       e.Day,
					Period:    e.Period,
				}}
				teacherGroups[tk] = g
				teacherOrder = append(teacherOrder, g)
			}
			g.ids = append(g.ids, e.ID)
		}

		sk := sectionSlot{year: e.Year, section: e.Section, day: e.Day, period: e.Period}
		g, ok := sectionGroups[sk]
		if !ok {
			g = &conflictGroup{conflict: models.TimetableConflict{
				Kind:    models.ConflictKindSection,
				Key:     SectionKey(e.Year, e.Section, e.Day, e.Period),
				Year:    e.Year,
				Section: e.Section,
				Day:     e.Day,
				Period:  e.Period,
			}}
			sectionGroups[sk] = g
			sectionOrder = append(sectionOrder, g)
		}
		g.ids = append(g.ids, e.ID)
	}

	var out []models.TimetableConflict
	out = appendConflicts(out, teacherOrder)
	out = appendConflicts(out, sectionOrder)
	return out
}

// TeacherKey formats the display key of a teacher occupancy tuple.
func TeacherKey(teacherID, day string, period int) string {
	return fmt.Sprintf("%s-%s-%d", teacherID, day, period)
}

// SectionKey formats the display key of a section occupancy tuple.
func SectionKey(year int, section, day string, period int) string {
	return fmt.Sprintf("%d-%s-%s-%d", year, section, day, period)
}

// Message renders a conflict the way operators read it in reports.
func Message(c models.TimetableConflict) string {
	if c.Kind == models.ConflictKindTeacher {
		return "Teacher conflict: " + c.Key
	}
	return "Section conflict: " + c.Key
}

func appendConflicts(out []models.TimetableConflict, groups []*conflictGroup) []models.TimetableConflict {
	for _, g := range groups {
		if len(g.ids) < 2 {
			continue
		}
		c := g.conflict
		c.EntryIDs = g.ids
		out = append(out, c)
	}
	return out
}

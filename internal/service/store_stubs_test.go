package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
)

type stubSubjectRepo struct {
	items      []models.Subject
	listErr    error
	unassigned []string
	deleted    []string
}

func (m *stubSubjectRepo) List(_ context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var out []models.Subject
	for _, s := range m.items {
		if filter.Year != 0 && s.Year != filter.Year {
			continue
		}
		if filter.Section != "" && s.Section != filter.Section {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *stubSubjectRepo) ListByPartition(_ context.Context, year int, section string) ([]models.Subject, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []models.Subject
	for _, s := range m.items {
		if s.Year == year && s.Section == section {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *stubSubjectRepo) FindByID(_ context.Context, id string) (*models.Subject, error) {
	for _, s := range m.items {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubSubjectRepo) ExistsByCode(_ context.Context, code string, year int, section, excludeID string) (bool, error) {
	for _, s := range m.items {
		if strings.EqualFold(s.Code, code) && s.Year == year && s.Section == section && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *stubSubjectRepo) Create(_ context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = "generated"
	}
	subject.CreatedAt = time.Now()
	subject.UpdatedAt = subject.CreatedAt
	m.items = append(m.items, *subject)
	return nil
}

func (m *stubSubjectRepo) Update(_ context.Context, subject *models.Subject) error {
	for i := range m.items {
		if m.items[i].ID == subject.ID {
			m.items[i] = *subject
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *stubSubjectRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *stubSubjectRepo) UnassignTeacher(_ context.Context, teacherID string) (int64, error) {
	var n int64
	for i := range m.items {
		if m.items[i].AssignedTeacher() == teacherID {
			m.items[i].TeacherID = nil
			n++
		}
	}
	m.unassigned = append(m.unassigned, teacherID)
	return n, nil
}

type stubTeacherRepo struct {
	items     []models.Teacher
	createErr error
	deleted   []string
}

func (m *stubTeacherRepo) List(_ context.Context, _ models.TeacherFilter) ([]models.Teacher, int, error) {
	return m.items, len(m.items), nil
}

func (m *stubTeacherRepo) ListAll(_ context.Context) ([]models.Teacher, error) {
	return m.items, nil
}

func (m *stubTeacherRepo) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	for _, t := range m.items {
		if t.ID == id {
			cp := t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubTeacherRepo) ExistsByEmail(_ context.Context, email, excludeID string) (bool, error) {
	for _, t := range m.items {
		if strings.EqualFold(t.Email, email) && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *stubTeacherRepo) Create(_ context.Context, teacher *models.Teacher) error {
	if m.createErr != nil {
		return m.createErr
	}
	if teacher.ID == "" {
		teacher.ID = "generated"
	}
	m.items = append(m.items, *teacher)
	return nil
}

func (m *stubTeacherRepo) Update(_ context.Context, teacher *models.Teacher) error {
	for i := range m.items {
		if m.items[i].ID == teacher.ID {
			m.items[i] = *teacher
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *stubTeacherRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type stubEntryStore struct {
	items     []models.ScheduleEntry
	replaced  int
	createErr error
}

func (m *stubEntryStore) ListByPartition(_ context.Context, year int, section string) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	for _, e := range m.items {
		if e.Year == year && e.Section == section {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *stubEntryStore) ListAll(_ context.Context) ([]models.ScheduleEntry, error) {
	return append([]models.ScheduleEntry(nil), m.items...), nil
}

func (m *stubEntryStore) ListOutsidePartition(_ context.Context, year int, section string) ([]models.ScheduleEntry, error) {
	var out []models.ScheduleEntry
	for _, e := range m.items {
		if (e.Year != year || e.Section != section) && e.TeacherID != "" {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *stubEntryStore) FindByID(_ context.Context, id string) (*models.ScheduleEntry, error) {
	for _, e := range m.items {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *stubEntryStore) Create(_ context.Context, entry *models.ScheduleEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, e := range m.items {
		if e.Year == entry.Year && e.Section == entry.Section && e.Day == entry.Day && e.Period == entry.Period {
			return repository.ErrDuplicate
		}
	}
	m.items = append(m.items, *entry)
	return nil
}

func (m *stubEntryStore) ReplacePartition(_ context.Context, year int, section string, entries []models.ScheduleEntry) error {
	kept := m.items[:0:0]
	for _, e := range m.items {
		if e.Year != year || e.Section != section {
			kept = append(kept, e)
		}
	}
	m.items = append(kept, entries...)
	m.replaced++
	return nil
}

func (m *stubEntryStore) Delete(_ context.Context, id string) (bool, error) {
	for i, e := range m.items {
		if e.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func strPtr(v string) *string { return &v }

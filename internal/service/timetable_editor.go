package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const manualEntryPrefix = "manual-"

// AddEntry stores a hand-placed entry. The partition slot must be free;
// teacher clashes with other sections are stored and reported, not refused.
func (s *TimetableService) AddEntry(ctx context.Context, req dto.CreateEntryRequest) (*dto.ManualEntryResponse, error) {
	req.Section = strings.TrimSpace(req.Section)
	req.Day = strings.TrimSpace(req.Day)
	req.TeacherID = strings.TrimSpace(req.TeacherID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable entry payload")
	}

	slot, ok := s.grid.Lookup(req.Day, req.Period)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s period %d is not on the week grid", req.Day, req.Period))
	}

	subject, err := s.subjects.FindByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.Year != req.Year || subject.Section != req.Section {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject belongs to a different year or section")
	}

	teacherID := req.TeacherID
	if teacherID == "" {
		teacherID = subject.AssignedTeacher()
	} else if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	current, err := s.entries.ListByPartition(ctx, req.Year, req.Section)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	for _, e := range current {
		if e.Day == slot.Day && e.Period == slot.Period {
			return nil, slotOccupied(slot)
		}
	}

	entry := models.ScheduleEntry{
		ID:        manualEntryPrefix + uuid.NewString(),
		SubjectID: subject.ID,
		TeacherID: teacherID,
		Year:      req.Year,
		Section:   req.Section,
		Slot:      slot,
		Room:      normalizeOptional(req.Room),
		Source:    models.EntrySourceManual,
	}
	if err := s.entries.Create(ctx, &entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, slotOccupied(slot)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable entry")
	}
	s.invalidate(ctx, req.Year, req.Section)

	resp := &dto.ManualEntryResponse{Entry: entry, Conflicts: []dto.ConflictView{}}
	all, err := s.entries.ListAll(ctx)
	if err != nil {
		s.logger.Warn("post-insert conflict audit skipped", zap.String("entry_id", entry.ID), zap.Error(err))
		return resp, nil
	}
	conflicts := timetable.DetectConflicts(all)
	s.metrics.SetConflicts(len(conflicts))
	resp.Conflicts = conflictViews(touching(conflicts, []models.ScheduleEntry{entry}))
	return resp, nil
}

// RemoveEntry deletes a stored entry, generated or manual.
func (s *TimetableService) RemoveEntry(ctx context.Context, id string) error {
	entry, err := s.entries.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entry")
	}
	deleted, err := s.entries.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable entry")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable entry not found")
	}
	s.invalidate(ctx, entry.Year, entry.Section)
	return nil
}

func slotOccupied(slot models.Slot) error {
	return appErrors.Clone(appErrors.ErrSlotOccupied, fmt.Sprintf("slot already occupied: %s period %d", slot.Day, slot.Period))
}

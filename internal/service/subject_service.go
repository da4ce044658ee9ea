package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByCode(ctx context.Context, code string, year int, section, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
}

type teacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

// CreateSubjectRequest captures fields for creating subjects.
type CreateSubjectRequest struct {
	Code         string  `json:"code" validate:"required,max=32"`
	Name         string  `json:"name" validate:"required,max=120"`
	HoursPerWeek int     `json:"hours_per_week" validate:"required,min=1,max=60"`
	Year         int     `json:"year" validate:"required,min=1,max=12"`
	Section      string  `json:"section" validate:"required,max=16"`
	TeacherID    *string `json:"teacher_id"`
}

// UpdateSubjectRequest modifies subject fields.
type UpdateSubjectRequest struct {
	Code         string  `json:"code" validate:"required,max=32"`
	Name         string  `json:"name" validate:"required,max=120"`
	HoursPerWeek int     `json:"hours_per_week" validate:"required,min=1,max=60"`
	Year         int     `json:"year" validate:"required,min=1,max=12"`
	Section      string  `json:"section" validate:"required,max=16"`
	TeacherID    *string `json:"teacher_id"`
}

// SubjectService handles subject catalog workflows.
type SubjectService struct {
	repo      subjectRepository
	teachers  teacherLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, teachers teacherLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, teachers: teachers, cache: cache, validator: validate, logger: logger}
}

// List returns paginated subjects.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns subject by identifier.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create adds a new subject ensuring code uniqueness within its partition.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	req.Code, req.Name, req.Section = strings.TrimSpace(req.Code), strings.TrimSpace(req.Name), strings.TrimSpace(req.Section)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject := &models.Subject{
		Code:         strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:         strings.TrimSpace(req.Name),
		HoursPerWeek: req.HoursPerWeek,
		Year:         req.Year,
		Section:      strings.TrimSpace(req.Section),
		TeacherID:    normalizeOptional(req.TeacherID),
	}
	if err := s.checkReferences(ctx, subject, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, subject); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.invalidate(ctx, subject.Year, subject.Section)
	return subject, nil
}

// Update modifies an existing subject. Stored timetables keep their entries
// until the partition is regenerated.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	req.Code, req.Name, req.Section = strings.TrimSpace(req.Code), strings.TrimSpace(req.Name), strings.TrimSpace(req.Section)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}

	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prevYear, prevSection := subject.Year, subject.Section

	subject.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	subject.Name = strings.TrimSpace(req.Name)
	subject.HoursPerWeek = req.HoursPerWeek
	subject.Year = req.Year
	subject.Section = strings.TrimSpace(req.Section)
	subject.TeacherID = normalizeOptional(req.TeacherID)
	if err := s.checkReferences(ctx, subject, id); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, subject); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.invalidate(ctx, prevYear, prevSection)
	if prevYear != subject.Year || prevSection != subject.Section {
		s.invalidate(ctx, subject.Year, subject.Section)
	}
	return subject, nil
}

// Delete removes a subject together with its stored timetable entries.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	subject, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.invalidate(ctx, subject.Year, subject.Section)
	return nil
}

func (s *SubjectService) checkReferences(ctx context.Context, subject *models.Subject, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, subject.Code, subject.Year, subject.Section, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject code")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "subject code already exists")
	}

	if subject.TeacherID == nil {
		return nil
	}
	if _, err := s.teachers.FindByID(ctx, *subject.TeacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return nil
}

func (s *SubjectService) invalidate(ctx context.Context, year int, section string) {
	if err := s.cache.Invalidate(ctx, PartitionCacheKey(year, section)); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.Int("year", year), zap.String("section", section), zap.Error(err))
	}
}

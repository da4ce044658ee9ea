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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id string) error
}

type subjectUnassigner interface {
	UnassignTeacher(ctx context.Context, teacherID string) (int64, error)
}

// CreateTeacherRequest represents payload for creating teachers.
type CreateTeacherRequest struct {
	Name            string   `json:"name" validate:"required,max=120"`
	Email           string   `json:"email" validate:"required,email"`
	Subjects        []string `json:"subjects" validate:"omitempty,dive,required"`
	MaxHoursPerWeek int      `json:"max_hours_per_week" validate:"min=0,max=168"`
}

// UpdateTeacherRequest represents payload for updating teachers.
type UpdateTeacherRequest struct {
	Name            string   `json:"name" validate:"required,max=120"`
	Email           string   `json:"email" validate:"required,email"`
	Subjects        []string `json:"subjects" validate:"omitempty,dive,required"`
	MaxHoursPerWeek int      `json:"max_hours_per_week" validate:"min=0,max=168"`
}

// TeacherService orchestrates teacher operations.
type TeacherService struct {
	repo      teacherRepository
	subjects  subjectUnassigner
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, subjects subjectUnassigner, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, subjects: subjects, cache: cache, validator: validate, logger: logger}
}

// List returns teachers plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, pagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher record.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	req.Subjects = normalizeList(req.Subjects)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	email := normalizeEmail(req.Email)
	if err := s.ensureUniqueEmail(ctx, email, ""); err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		Name:            strings.TrimSpace(req.Name),
		Email:           email,
		Subjects:        req.Subjects,
		MaxHoursPerWeek: req.MaxHoursPerWeek,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	return teacher, nil
}

// Update modifies an existing teacher.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	req.Subjects = normalizeList(req.Subjects)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)
	if err := s.ensureUniqueEmail(ctx, email, id); err != nil {
		return nil, err
	}

	teacher.Name = strings.TrimSpace(req.Name)
	teacher.Email = email
	teacher.Subjects = req.Subjects
	teacher.MaxHoursPerWeek = req.MaxHoursPerWeek

	if err := s.repo.Update(ctx, teacher); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	return teacher, nil
}

// Delete removes a teacher. Subjects they taught stay in the catalog as TBA
// and stored entries lose their teacher reference.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	unassigned, err := s.subjects.UnassignTeacher(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unassign teacher subjects")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	if err := s.cache.InvalidatePattern(ctx, "timetable:*"); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.String("teacher_id", id), zap.Error(err))
	}
	s.logger.Info("teacher deleted", zap.String("teacher_id", id), zap.Int64("subjects_unassigned", unassigned))
	return nil
}

func (s *TeacherService) ensureUniqueEmail(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func pagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const teacherColumns = "id, name, email, subjects, max_hours_per_week, created_at, updated_at"

// TeacherRepository manages persistence for teachers.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var args []interface{}

	if filter.Search != "" {
		base += " AND (LOWER(name) LIKE $1 OR LOWER(email) LIKE $1)"
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	allowedSorts := map[string]string{
		"name":       "name",
		"email":      "email",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, (page-1)*size)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}
	return teachers, total, nil
}

// ListAll returns the full roster used to seed allocation.
func (r *TeacherRepository) ListAll(ctx context.Context) ([]models.Teacher, error) {
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, "SELECT "+teacherColumns+" FROM teachers ORDER BY name ASC, id ASC"); err != nil {
		return nil, fmt.Errorf("list all teachers: %w", err)
	}
	return teachers, nil
}

// FindByID fetches a teacher by identifier.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, "SELECT "+teacherColumns+" FROM teachers WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByEmail reports whether another teacher already uses email.
func (r *TeacherRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check teacher email: %w", err)
	}
	return true, nil
}

// Create inserts a teacher.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	if teacher.Subjects == nil {
		teacher.Subjects = []string{}
	}

	const query = `INSERT INTO teachers (id, name, email, subjects, max_hours_per_week, created_at, updated_at)
VALUES (:id, :name, :email, :subjects, :max_hours_per_week, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", translateUnique(err))
	}
	return nil
}

// Update modifies teacher details.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	if teacher.Subjects == nil {
		teacher.Subjects = []string{}
	}
	const query = `UPDATE teachers SET name = :name, email = :email, subjects = :subjects, max_hours_per_week = :max_hours_per_week, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("update teacher: %w", translateUnique(err))
	}
	return nil
}

// Delete removes the teacher row.
func (r *TeacherRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete teacher: %w", err)
	}
	return nil
}

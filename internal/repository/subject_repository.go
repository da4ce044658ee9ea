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

const subjectColumns = "id, code, name, hours_per_week, year, section, teacher_id, created_at, updated_at"

// SubjectRepository handles persistence for subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository creates a new repository instance.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// List returns subjects matching filters with pagination metadata.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := "FROM subjects WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Section != "" {
		conditions = append(conditions, fmt.Sprintf("section = $%d", len(args)+1))
		args = append(args, filter.Section)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(code) LIKE $%d OR LOWER(name) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"code":           true,
		"name":           true,
		"year":           true,
		"section":        true,
		"hours_per_week": true,
		"created_at":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d", subjectColumns, base, sortBy, order, size, offset)
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}

	return subjects, total, nil
}

// ListByPartition returns every subject of one (year, section) in catalog
// order. Allocation walks subjects in exactly this order.
func (r *SubjectRepository) ListByPartition(ctx context.Context, year int, section string) ([]models.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects WHERE year = $1 AND section = $2 ORDER BY created_at ASC, id ASC"
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, year, section); err != nil {
		return nil, fmt.Errorf("list partition subjects: %w", err)
	}
	return subjects, nil
}

// FindByID returns a subject by id.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := "SELECT " + subjectColumns + " FROM subjects WHERE id = $1"
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// ExistsByCode checks uniqueness of a subject code within a partition.
func (r *SubjectRepository) ExistsByCode(ctx context.Context, code string, year int, section, excludeID string) (bool, error) {
	query := "SELECT 1 FROM subjects WHERE LOWER(code) = LOWER($1) AND year = $2 AND section = $3"
	args := []interface{}{code, year, section}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}

	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check subject code: %w", err)
	}
	return true, nil
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = now
	}
	subject.UpdatedAt = now

	const query = `INSERT INTO subjects (id, code, name, hours_per_week, year, section, teacher_id, created_at, updated_at)
VALUES (:id, :code, :name, :hours_per_week, :year, :section, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", translateUnique(err))
	}
	return nil
}

// Update modifies a subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET code = :code, name = :name, hours_per_week = :hours_per_week, year = :year, section = :section, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("update subject: %w", translateUnique(err))
	}
	return nil
}

// Delete removes a subject record.
func (r *SubjectRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	return nil
}

// UnassignTeacher clears the teacher from every subject they own and returns
// the number of subjects touched.
func (r *SubjectRepository) UnassignTeacher(ctx context.Context, teacherID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE subjects SET teacher_id = NULL, updated_at = $2 WHERE teacher_id = $1`, teacherID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("unassign teacher: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unassign teacher rows: %w", err)
	}
	return affected, nil
}

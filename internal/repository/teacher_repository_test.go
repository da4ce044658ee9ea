package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

var teacherCols = []string{"id", "name", "email", "subjects", "max_hours_per_week", "created_at", "updated_at"}

func TestTeacherRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(teacherCols).AddRow("t1", "Budi", "budi@example.com", "{Mathematics,Physics}", 24, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, subjects, max_hours_per_week, created_at, updated_at FROM teachers WHERE 1=1 ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TeacherFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"Mathematics", "Physics"}, []string(list[0].Subjects))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryListSearch(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM teachers WHERE 1=1 AND (LOWER(name) LIKE $1 OR LOWER(email) LIKE $1) ORDER BY email DESC")).
		WithArgs("%budi%").
		WillReturnRows(sqlmock.NewRows(teacherCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers")).
		WithArgs("%budi%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	list, total, err := repo.List(context.Background(), models.TeacherFilter{Search: "Budi", SortBy: "email", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateDefaultsSubjects(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").
		WithArgs(sqlmock.AnyArg(), "Budi", "budi@example.com", sqlmock.AnyArg(), 24, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	teacher := &models.Teacher{Name: "Budi", Email: "budi@example.com", MaxHoursPerWeek: 24}
	require.NoError(t, repo.Create(context.Background(), teacher))
	assert.NotEmpty(t, teacher.ID)
	assert.NotNil(t, teacher.Subjects)
	assert.NoError(t, mock.ExpectationsWereMet())
}

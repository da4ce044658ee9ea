package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const entryColumns = "id, subject_id, COALESCE(teacher_id, '') AS teacher_id, year, section, day, period, start_time, end_time, room, source, created_at"

const insertEntry = `INSERT INTO schedule_entries (id, subject_id, teacher_id, year, section, day, period, start_time, end_time, room, source, created_at)
VALUES (:id, :subject_id, NULLIF(:teacher_id, ''), :year, :section, :day, :period, :start_time, :end_time, :room, :source, :created_at)`

// ScheduleEntryRepository stores placed timetable entries. The table carries
// a unique index on (year, section, day, period).
type ScheduleEntryRepository struct {
	db *sqlx.DB
}

// NewScheduleEntryRepository constructs the repository.
func NewScheduleEntryRepository(db *sqlx.DB) *ScheduleEntryRepository {
	return &ScheduleEntryRepository{db: db}
}

// ListByPartition returns the stored entries for one (year, section).
func (r *ScheduleEntryRepository) ListByPartition(ctx context.Context, year int, section string) ([]models.ScheduleEntry, error) {
	query := "SELECT " + entryColumns + " FROM schedule_entries WHERE year = $1 AND section = $2 ORDER BY created_at ASC, id ASC"
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, year, section); err != nil {
		return nil, fmt.Errorf("list partition entries: %w", err)
	}
	return entries, nil
}

// ListAll returns every stored entry across partitions.
func (r *ScheduleEntryRepository) ListAll(ctx context.Context) ([]models.ScheduleEntry, error) {
	query := "SELECT " + entryColumns + " FROM schedule_entries ORDER BY year ASC, section ASC, created_at ASC, id ASC"
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// ListOutsidePartition returns the entries of every other partition that
// have a teacher; generation reserves these teacher slots.
func (r *ScheduleEntryRepository) ListOutsidePartition(ctx context.Context, year int, section string) ([]models.ScheduleEntry, error) {
	query := "SELECT " + entryColumns + ` FROM schedule_entries
WHERE NOT (year = $1 AND section = $2) AND teacher_id IS NOT NULL
ORDER BY year ASC, section ASC, created_at ASC, id ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, year, section); err != nil {
		return nil, fmt.Errorf("list entries outside partition: %w", err)
	}
	return entries, nil
}

// FindByID returns one entry. sql.ErrNoRows is passed through.
func (r *ScheduleEntryRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, "SELECT "+entryColumns+" FROM schedule_entries WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create inserts a single entry. A taken partition slot yields ErrDuplicate.
func (r *ScheduleEntryRepository) Create(ctx context.Context, entry *models.ScheduleEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.NamedExecContext(ctx, insertEntry, entry); err != nil {
		return fmt.Errorf("create schedule entry: %w", translateUnique(err))
	}
	return nil
}

// ReplacePartition atomically swaps the stored entries of one partition.
func (r *ScheduleEntryRepository) ReplacePartition(ctx context.Context, year int, section string, entries []models.ScheduleEntry) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace partition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE year = $1 AND section = $2`, year, section); err != nil {
		return fmt.Errorf("clear partition entries: %w", err)
	}

	now := time.Now().UTC()
	for i := range entries {
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		if _, err = sqlx.NamedExecContext(ctx, tx, insertEntry, &entries[i]); err != nil {
			return fmt.Errorf("insert partition entry: %w", translateUnique(err))
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace partition: %w", err)
	}
	return nil
}

// Delete removes an entry and reports whether a row existed.
func (r *ScheduleEntryRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete schedule entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete schedule entry rows: %w", err)
	}
	return affected > 0, nil
}

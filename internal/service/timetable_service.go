package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const (
	modePersisted = "persisted"
	modePreview   = "preview"
)

type timetableSubjectReader interface {
	ListByPartition(ctx context.Context, year int, section string) ([]models.Subject, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

type timetableTeacherReader interface {
	ListAll(ctx context.Context) ([]models.Teacher, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
}

type scheduleEntryStore interface {
	ListByPartition(ctx context.Context, year int, section string) ([]models.ScheduleEntry, error)
	ListAll(ctx context.Context) ([]models.ScheduleEntry, error)
	ListOutsidePartition(ctx context.Context, year int, section string) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Create(ctx context.Context, entry *models.ScheduleEntry) error
	ReplacePartition(ctx context.Context, year int, section string, entries []models.ScheduleEntry) error
	Delete(ctx context.Context, id string) (bool, error)
}

// TimetableConfig tunes generation and read caching.
type TimetableConfig struct {
	// ReserveTeachers pre-books teacher slots already used by other partitions.
	ReserveTeachers bool
	CacheTTL        time.Duration
}

// TimetableService generates, stores and audits partition timetables.
type TimetableService struct {
	subjects  timetableSubjectReader
	teachers  timetableTeacherReader
	entries   scheduleEntryStore
	grid      *timetable.WeekGrid
	cache     *CacheService
	metrics   *MetricsService
	cfg       TimetableConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService wires the timetable service. A nil grid uses the default week.
func NewTimetableService(subjects timetableSubjectReader, teachers timetableTeacherReader, entries scheduleEntryStore, grid *timetable.WeekGrid, cache *CacheService, metrics *MetricsService, cfg TimetableConfig, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if grid == nil {
		grid = timetable.DefaultGrid()
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		subjects:  subjects,
		teachers:  teachers,
		entries:   entries,
		grid:      grid,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// Grid returns the configured week layout.
func (s *TimetableService) Grid() dto.GridView {
	periods := s.grid.Periods()
	view := dto.GridView{
		Days:     s.grid.Days(),
		Periods:  make([]dto.PeriodView, 0, len(periods)),
		Capacity: s.grid.Capacity(),
	}
	for _, p := range periods {
		view.Periods = append(view.Periods, dto.PeriodView{
			Number:    p.Number,
			StartTime: p.StartTime,
			EndTime:   p.EndTime,
			Label:     p.Label(),
		})
	}
	return view
}

// Generate builds the partition timetable and, unless the request asks for a
// preview, replaces the stored entries of that partition.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	req.Section = strings.TrimSpace(req.Section)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generate payload")
	}

	result, others, err := s.build(ctx, req.Year, req.Section)
	if err != nil {
		return nil, err
	}
	if !req.ShouldPersist() {
		result.Mode = modePreview
		return result, nil
	}

	if err := s.entries.ReplacePartition(ctx, req.Year, req.Section, result.Entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
	}
	s.invalidate(ctx, req.Year, req.Section)

	stored := append(append([]models.ScheduleEntry{}, others...), result.Entries...)
	s.metrics.SetConflicts(len(timetable.DetectConflicts(stored)))

	s.logger.Info("timetable generated",
		zap.Int("year", req.Year),
		zap.String("section", req.Section),
		zap.Int("entries", len(result.Entries)),
		zap.Int("shortfalls", len(result.Shortfalls)),
		zap.Int("conflicts", len(result.Conflicts)),
	)
	result.Mode = modePersisted
	return result, nil
}

// Preview runs the allocator without touching stored entries.
func (s *TimetableService) Preview(ctx context.Context, year int, section string) (*dto.GenerateTimetableResponse, error) {
	persist := false
	return s.Generate(ctx, dto.GenerateTimetableRequest{Year: year, Section: section, Persist: &persist})
}

// build loads catalog data, allocates and audits. It returns the result and
// the teacher-bearing entries of every other partition.
func (s *TimetableService) build(ctx context.Context, year int, section string) (*dto.GenerateTimetableResponse, []models.ScheduleEntry, error) {
	subjects, err := s.subjects.ListByPartition(ctx, year, section)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	teachers, err := s.teachers.ListAll(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	others, err := s.entries.ListOutsidePartition(ctx, year, section)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing timetables")
	}

	var opts []timetable.AllocateOption
	if s.cfg.ReserveTeachers {
		opts = append(opts, timetable.WithReservations(others))
	}

	start := time.Now()
	entries, err := timetable.Allocate(subjects, teachers, year, section, s.grid, opts...)
	elapsed := time.Since(start)
	if err != nil {
		var capErr *timetable.CapacityError
		if errors.As(err, &capErr) {
			s.metrics.RecordAllocation(AllocationCapacityExceeded, 0, elapsed)
			return nil, nil, appErrors.Wrap(err, appErrors.ErrCapacityExceeded.Code, appErrors.ErrCapacityExceeded.Status,
				fmt.Sprintf("subjects need %d hours but the week has %d slots", capErr.Needed, capErr.Available))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate timetable")
	}

	requested := 0
	for _, subject := range subjects {
		requested += subject.HoursPerWeek
	}
	shortfalls := timetable.Shortfalls(subjects, year, section, entries)
	unfilled := requested - len(entries)

	outcome := AllocationComplete
	if len(shortfalls) > 0 {
		outcome = AllocationPartial
		s.logger.Warn("timetable allocation incomplete",
			zap.Int("year", year),
			zap.String("section", section),
			zap.Int("unfilled_hours", unfilled),
		)
	}
	s.metrics.RecordAllocation(outcome, unfilled, elapsed)

	audit := append(append([]models.ScheduleEntry{}, others...), entries...)
	conflicts := touching(timetable.DetectConflicts(audit), entries)

	if shortfalls == nil {
		shortfalls = []models.Shortfall{}
	}
	return &dto.GenerateTimetableResponse{
		Year:       year,
		Section:    section,
		Entries:    entries,
		Conflicts:  conflictViews(conflicts),
		Shortfalls: shortfalls,
		Capacity: dto.CapacityStats{
			Slots:     s.grid.Capacity(),
			Requested: requested,
			Allocated: len(entries),
			Unfilled:  unfilled,
		},
	}, others, nil
}

// Get returns the stored partition timetable in grid order. The boolean
// reports a cache hit.
func (s *TimetableService) Get(ctx context.Context, query dto.TimetableQuery) (*dto.TimetableView, bool, error) {
	query.Section = strings.TrimSpace(query.Section)
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable query")
	}

	key := PartitionCacheKey(query.Year, query.Section)
	var cached dto.TimetableView
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	entries, err := s.entries.ListByPartition(ctx, query.Year, query.Section)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if entries == nil {
		entries = []models.ScheduleEntry{}
	}
	s.grid.SortEntries(entries)

	view := &dto.TimetableView{Year: query.Year, Section: query.Section, Entries: entries}
	_ = s.cache.Set(ctx, key, view, s.cfg.CacheTTL)
	return view, false, nil
}

// Conflicts audits every stored entry. When a year or section is given the
// report keeps only conflicts that involve that partition.
func (s *TimetableService) Conflicts(ctx context.Context, query dto.ConflictQuery) (*dto.ConflictReport, error) {
	query.Section = strings.TrimSpace(query.Section)
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict query")
	}

	entries, err := s.entries.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable entries")
	}
	conflicts := timetable.DetectConflicts(entries)
	s.metrics.SetConflicts(len(conflicts))

	if query.Year != 0 || query.Section != "" {
		var scoped []models.ScheduleEntry
		for _, e := range entries {
			if (query.Year == 0 || e.Year == query.Year) && (query.Section == "" || e.Section == query.Section) {
				scoped = append(scoped, e)
			}
		}
		conflicts = touching(conflicts, scoped)
	}
	return report(conflicts), nil
}

// Check audits caller-supplied entries without consulting storage.
func (s *TimetableService) Check(ctx context.Context, req dto.CheckConflictsRequest) (*dto.ConflictReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	entries := make([]models.ScheduleEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, models.ScheduleEntry{
			ID:        e.ID,
			SubjectID: e.SubjectID,
			TeacherID: strings.TrimSpace(e.TeacherID),
			Year:      e.Year,
			Section:   e.Section,
			Slot:      models.Slot{Day: e.Day, Period: e.Period},
		})
	}
	return report(timetable.DetectConflicts(entries)), nil
}

func (s *TimetableService) invalidate(ctx context.Context, year int, section string) {
	if err := s.cache.Invalidate(ctx, PartitionCacheKey(year, section)); err != nil {
		s.logger.Warn("timetable cache invalidation failed", zap.Int("year", year), zap.String("section", section), zap.Error(err))
	}
}

// touching keeps the conflicts that reference at least one of entries.
func touching(conflicts []models.TimetableConflict, entries []models.ScheduleEntry) []models.TimetableConflict {
	ids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		ids[e.ID] = struct{}{}
	}
	out := make([]models.TimetableConflict, 0, len(conflicts))
	for _, c := range conflicts {
		for _, id := range c.EntryIDs {
			if _, ok := ids[id]; ok {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

func conflictViews(conflicts []models.TimetableConflict) []dto.ConflictView {
	views := make([]dto.ConflictView, 0, len(conflicts))
	for _, c := range conflicts {
		views = append(views, dto.ConflictView{TimetableConflict: c, Message: timetable.Message(c)})
	}
	return views
}

func report(conflicts []models.TimetableConflict) *dto.ConflictReport {
	views := conflictViews(conflicts)
	return &dto.ConflictReport{Total: len(views), Conflicts: views}
}

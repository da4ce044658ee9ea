package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

const (
	emptyCell      = "-"
	unknownSubject = "Unknown"
	unassignedName = "TBA"
)

type timetableSource interface {
	Get(ctx context.Context, query dto.TimetableQuery) (*dto.TimetableView, bool, error)
}

type exportSubjects interface {
	ListByPartition(ctx context.Context, year int, section string) ([]models.Subject, error)
}

type exportTeachers interface {
	ListAll(ctx context.Context) ([]models.Teacher, error)
}

type sheetRenderer interface {
	Render(sheet export.Sheet) ([]byte, error)
	ContentType() string
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Path(name string) (string, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportFile is a rendered timetable ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportResult captures a stored export and its signed download link.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// ExportService renders partition timetables into CSV or PDF sheets and
// stores them for signed download.
type ExportService struct {
	timetables timetableSource
	subjects   exportSubjects
	teachers   exportTeachers
	grid       *timetable.WeekGrid
	renderers  map[models.ExportFormat]sheetRenderer
	storage    fileStorage
	signer     *storage.SignedURLSigner
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        ExportConfig
}

// NewExportService constructs an ExportService. storage and signer may be nil
// when only synchronous rendering is needed.
func NewExportService(timetables timetableSource, subjects exportSubjects, teachers exportTeachers, grid *timetable.WeekGrid, files fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if grid == nil {
		grid = timetable.DefaultGrid()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		timetables: timetables,
		subjects:   subjects,
		teachers:   teachers,
		grid:       grid,
		renderers: map[models.ExportFormat]sheetRenderer{
			models.ExportFormatCSV: export.NewCSVExporter(),
			models.ExportFormatPDF: export.NewPDFExporter(),
		},
		storage: files,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

// Render builds the export for one partition. An empty format means CSV.
func (s *ExportService) Render(ctx context.Context, year int, section string, format models.ExportFormat) (*ExportFile, error) {
	section = strings.TrimSpace(section)
	if format == "" {
		format = models.ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	sheet, err := s.buildSheet(ctx, year, section)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(sheet)
	s.metrics.RecordExport(format, err)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}
	return &ExportFile{
		Filename:    ExportFilename(year, section, format),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Generate renders the job's partition, stores the file and signs a link.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("export job is nil")
	}
	if s.storage == nil || s.signer == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	file, err := s.Render(ctx, job.Params.Year, job.Params.Section, job.Params.Format)
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(job.ID+"/"+file.Filename, file.Body)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          s.downloadURL(token),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Token, error) {
	if s.signer == nil {
		return storage.Token{}, storage.ErrInvalidToken
	}
	return s.signer.Parse(token, allowExpired)
}

// Locate returns the absolute path of a stored export.
func (s *ExportService) Locate(relPath string) (string, error) {
	return s.storage.Path(relPath)
}

// ContentType reports the MIME type used for format.
func (s *ExportService) ContentType(format models.ExportFormat) string {
	if r, ok := s.renderers[format]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}

// Cleanup removes stored files older than the result TTL.
func (s *ExportService) Cleanup() ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

// ExportFilename is the download name of a partition export.
func ExportFilename(year int, section string, format models.ExportFormat) string {
	return fmt.Sprintf("timetable_year%d_section%s%s", year, sanitizeFilename(section), format.Extension())
}

func (s *ExportService) downloadURL(token string) string {
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return prefix + "/exports/download/" + token
}

// buildSheet lays the partition out as one row per period and one column per
// day, in grid order.
func (s *ExportService) buildSheet(ctx context.Context, year int, section string) (export.Sheet, error) {
	view, _, err := s.timetables.Get(ctx, dto.TimetableQuery{Year: year, Section: section})
	if err != nil {
		return export.Sheet{}, err
	}
	subjects, err := s.subjects.ListByPartition(ctx, view.Year, view.Section)
	if err != nil {
		return export.Sheet{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	teachers, err := s.teachers.ListAll(ctx)
	if err != nil {
		return export.Sheet{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}

	subjectNames := make(map[string]string, len(subjects))
	for _, sub := range subjects {
		subjectNames[sub.ID] = sub.Name
	}
	teacherNames := make(map[string]string, len(teachers))
	for _, t := range teachers {
		teacherNames[t.ID] = t.Name
	}

	cells := make(map[string][]string, len(view.Entries))
	for _, e := range view.Entries {
		key := slotKey(e.Day, e.Period)
		cells[key] = append(cells[key], cellText(e, subjectNames, teacherNames))
	}

	days := s.grid.Days()
	sheet := export.Sheet{
		Title:   fmt.Sprintf("Year %d - Section %s Timetable", view.Year, view.Section),
		Headers: append([]string{"Time"}, days...),
	}
	for _, p := range s.grid.Periods() {
		row := make([]string, 0, len(days)+1)
		row = append(row, p.Label())
		for _, day := range days {
			texts := cells[slotKey(day, p.Number)]
			if len(texts) == 0 {
				row = append(row, emptyCell)
				continue
			}
			row = append(row, strings.Join(texts, " / "))
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

func slotKey(day string, period int) string {
	return fmt.Sprintf("%s#%d", day, period)
}

func cellText(e models.ScheduleEntry, subjects, teachers map[string]string) string {
	subject, ok := subjects[e.SubjectID]
	if !ok || subject == "" {
		subject = unknownSubject
	}
	teacher, ok := teachers[e.TeacherID]
	if !ok || teacher == "" {
		teacher = unassignedName
	}
	text := fmt.Sprintf("%s (%s)", subject, teacher)
	if e.Room != nil && *e.Room != "" {
		text += " [" + *e.Room + "]"
	}
	return text
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/palmistry/internal/analysis"
	"github.com/joseph-ayodele/palmistry/internal/entity"
	"github.com/joseph-ayodele/palmistry/internal/repository"
)

const (
	analysesSheet  = "Analyses"
	questionsSheet = "Questions"
	maxExportRows  = 500
)

// Service produces XLSX bytes for exports.
type Service struct {
	jobs      repository.JobRepository
	images    repository.ImageRepository
	followUps repository.FollowUpRepository
	logger    *slog.Logger
}

func NewService(jobs repository.JobRepository, images repository.ImageRepository, followUps repository.FollowUpRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{jobs: jobs, images: images, followUps: followUps, logger: logger}
}

// ExportAnalysesXLSX returns a workbook of the owner's analyses created in the
// given window. If only from is provided -> from..today (inclusive).
// If only to is provided -> beginning..to (inclusive). Neither -> everything.
func (s *Service) ExportAnalysesXLSX(ctx context.Context, ownerID string, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	lo, hi := window(from, to)

	jobs, err := s.jobs.ListByOwner(ctx, ownerID, maxExportRows)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", analysesSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(analysesSheet)
	f.SetActiveSheet(activeIndex)

	writeHeaders(f, analysesSheet, []string{
		"Created", "Status", "Hand", "Filename", "Summary", "Personality",
		"Life Line", "Heart Line", "Head Line", "Fate Line", "Confidence", "Error", "Analysis ID",
	})
	writeHeaders(f, questionsSheet, []string{"Analysis ID", "Asked", "Question", "Answer"})

	row, qrow, exported := 2, 2, 0
	for _, j := range jobs {
		created := j.CreatedAt.UTC()
		if (lo != nil && created.Before(*lo)) || (hi != nil && !created.Before(*hi)) {
			continue
		}

		hand, filename := "", ""
		if img, err := s.images.GetByID(ctx, j.ImageID); err == nil {
			hand, filename = img.Hand, img.Filename
		}
		var reading analysis.PalmReading
		if len(j.Result) > 0 {
			if err := json.Unmarshal(j.Result, &reading); err != nil {
				s.logger.Warn("export.result_unreadable", "job_id", j.ID, "error", err)
			}
		}

		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(analysesSheet, cell, v)
		}
		write(1, created.Format("2006-01-02 15:04"))
		write(2, string(j.Status))
		write(3, hand)
		write(4, filename)
		write(5, truncate(reading.Summary, 300))
		write(6, truncate(reading.Personality, 300))
		write(7, truncate(reading.LifeLine, 200))
		write(8, truncate(reading.HeartLine, 200))
		write(9, truncate(reading.HeadLine, 200))
		write(10, truncate(reading.FateLine, 200))
		if len(j.Result) > 0 {
			write(11, reading.Confidence)
		}
		if j.ErrorMessage != nil {
			write(12, *j.ErrorMessage)
		}
		write(13, j.ID.String())
		row++
		exported++

		qrow, err = s.writeQuestions(ctx, f, j, qrow)
		if err != nil {
			return nil, err
		}
	}

	_ = f.SetColWidth(analysesSheet, "A", "A", 17) // created
	_ = f.SetColWidth(analysesSheet, "B", "C", 12) // status, hand
	_ = f.SetColWidth(analysesSheet, "D", "D", 24)
	_ = f.SetColWidth(analysesSheet, "E", "F", 60)
	_ = f.SetColWidth(analysesSheet, "G", "J", 40) // lines
	_ = f.SetColWidth(analysesSheet, "L", "M", 38)
	_ = f.SetColWidth(questionsSheet, "A", "B", 38)
	_ = f.SetColWidth(questionsSheet, "C", "D", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"owner_id", ownerID,
		"rows", exported,
		"questions", qrow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeQuestions(ctx context.Context, f *excelize.File, j *entity.AnalysisJob, row int) (int, error) {
	if s.followUps == nil {
		return row, nil
	}
	list, err := s.followUps.ListByJob(ctx, j.ID)
	if err != nil {
		return row, fmt.Errorf("query questions: %w", err)
	}
	for _, fu := range list {
		for col, v := range []any{j.ID.String(), fu.CreatedAt.UTC().Format("2006-01-02 15:04"), fu.Question, truncate(fu.Answer, 2000)} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(questionsSheet, cell, v)
		}
		row++
	}
	return row, nil
}

func writeHeaders(f *excelize.File, sheet string, headers []string) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
}

// window returns [lo, hi) bounds at day granularity in UTC.
func window(from, to *time.Time) (*time.Time, *time.Time) {
	day := func(t time.Time) time.Time {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	var lo, hi *time.Time
	if from != nil {
		d := day(*from)
		lo = &d
	}
	if to != nil {
		d := day(*to).AddDate(0, 0, 1)
		hi = &d
	} else if from != nil {
		d := day(time.Now()).AddDate(0, 0, 1)
		hi = &d
	}
	return lo, hi
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

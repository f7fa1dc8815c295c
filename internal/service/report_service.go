package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
)

// SubmissionStore reads persisted submissions.
type SubmissionStore interface {
	ListByTest(ctx context.Context, testID string, limit, offset int) ([]model.Submission, int, error)
}

// ViolationStore reads persisted violations.
type ViolationStore interface {
	TallyByTest(ctx context.Context, testID string) ([]model.ViolationTally, error)
}

// ReportService serves the admin views of submissions and violations.
type ReportService struct {
	submissions SubmissionStore
	violations  ViolationStore
}

// NewReportService creates a new ReportService.
func NewReportService(submissions SubmissionStore, violations ViolationStore) *ReportService {
	return &ReportService{submissions: submissions, violations: violations}
}

// ListSubmissions returns a page of submissions for a test.
func (s *ReportService) ListSubmissions(ctx context.Context, testID string, page, perPage int) ([]model.Submission, *response.Pagination, error) {
	page, perPage, offset := response.Page(page, perPage)
	items, total, err := s.submissions.ListByTest(ctx, testID, perPage, offset)
	if err != nil {
		return nil, nil, err
	}
	return items, response.NewPagination(page, perPage, total), nil
}

// ViolationTallies returns per-learner violation counts for a test.
func (s *ReportService) ViolationTallies(ctx context.Context, testID string) ([]model.ViolationTally, error) {
	return s.violations.TallyByTest(ctx, testID)
}

// Snapshot is the initial state shown on the live monitor.
type Snapshot struct {
	Submitted       int                    `json:"submitted"`
	TotalViolations int64                  `json:"total_violations"`
	Violations      []model.ViolationTally `json:"violations"`
}

// Snapshot fetches the submission count and violation tallies concurrently.
// Violation tallies are best effort.
func (s *ReportService) Snapshot(ctx context.Context, testID string) (*Snapshot, error) {
	var (
		submitted int
		tallies   []model.ViolationTally
		subErr    error
		tallyErr  error
		wg        sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		_, submitted, subErr = s.submissions.ListByTest(ctx, testID, 1, 0)
	}()
	go func() {
		defer wg.Done()
		tallies, tallyErr = s.violations.TallyByTest(ctx, testID)
	}()
	wg.Wait()

	if subErr != nil {
		return nil, subErr
	}

	snap := &Snapshot{Submitted: submitted, Violations: []model.ViolationTally{}}
	if tallyErr == nil {
		snap.Violations = tallies
		for _, t := range tallies {
			snap.TotalViolations += t.Count
		}
	}
	return snap, nil
}

const (
	exportPageSize       = 500
	submissionsSheetName = "Submissions"
	violationsSheetName  = "Violations"
)

// ExportSubmissions renders every submission and violation tally of a test
// as an XLSX workbook.
func (s *ReportService) ExportSubmissions(ctx context.Context, testID string) ([]byte, error) {
	var subs []model.Submission
	for offset := 0; ; offset += exportPageSize {
		page, total, err := s.submissions.ListByTest(ctx, testID, exportPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		subs = append(subs, page...)
		if len(page) == 0 || offset+len(page) >= total {
			break
		}
	}

	tallies, err := s.violations.TallyByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("tally violations: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	// Rename the default sheet so the workbook opens on submissions.
	if err := f.SetSheetName(f.GetSheetName(0), submissionsSheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	rows := make([][]interface{}, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, []interface{}{
			sub.LearnerID,
			sub.SubmittedAt.UTC().Format("2006-01-02 15:04:05"),
			string(sub.Reason),
			sub.TimeTakenSeconds,
			len(sub.Answers),
			len(sub.Flagged),
			sub.ViolationCount,
		})
	}
	if err := writeSheet(f, submissionsSheetName, []interface{}{
		"Learner ID", "Submitted At (UTC)", "Reason", "Time Taken (s)", "Answered", "Flagged", "Violations",
	}, rows); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(violationsSheetName); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	rows = rows[:0]
	for _, t := range tallies {
		rows = append(rows, []interface{}{t.LearnerID, t.Name, t.Count})
	}
	if err := writeSheet(f, violationsSheetName, []interface{}{"Learner ID", "Name", "Violations"}, rows); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	return nil
}

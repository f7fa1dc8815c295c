package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/stemsi/exstem-session/internal/model"
)

func TestReportService_ListSubmissionsClampsPaging(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", 20, 0).Return([]model.Submission{{TestID: "chem-101"}}, 1, nil)

	svc := NewReportService(subs, new(MockViolationStore))
	items, page, err := svc.ListSubmissions(context.Background(), "chem-101", 0, 500)

	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 1, page.TotalPages)
}

func TestReportService_SnapshotSumsViolations(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", 1, 0).Return([]model.Submission{}, 12, nil)
	viols := new(MockViolationStore)
	viols.On("TallyByTest", mock.Anything, "chem-101").Return([]model.ViolationTally{
		{LearnerID: 1, Count: 3},
		{LearnerID: 2, Count: 1},
	}, nil)

	snap, err := NewReportService(subs, viols).Snapshot(context.Background(), "chem-101")

	require.NoError(t, err)
	assert.Equal(t, 12, snap.Submitted)
	assert.Equal(t, int64(4), snap.TotalViolations)
	assert.Len(t, snap.Violations, 2)
}

func TestReportService_SnapshotViolationsAreBestEffort(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", 1, 0).Return([]model.Submission{}, 2, nil)
	viols := new(MockViolationStore)
	viols.On("TallyByTest", mock.Anything, "chem-101").Return(nil, errors.New("timeout"))

	snap, err := NewReportService(subs, viols).Snapshot(context.Background(), "chem-101")

	require.NoError(t, err)
	assert.Equal(t, 2, snap.Submitted)
	assert.Empty(t, snap.Violations)
}

func TestReportService_SnapshotFailsWithoutSubmissions(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", 1, 0).Return(nil, 0, errors.New("db down"))
	viols := new(MockViolationStore)
	viols.On("TallyByTest", mock.Anything, "chem-101").Return([]model.ViolationTally{}, nil)

	_, err := NewReportService(subs, viols).Snapshot(context.Background(), "chem-101")

	assert.Error(t, err)
}

func TestReportService_ExportSubmissionsWritesWorkbook(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", exportPageSize, 0).Return([]model.Submission{{
		TestID:           "chem-101",
		LearnerID:        3,
		Answers:          map[string]string{"q1": "Electron"},
		Flagged:          []string{"q2"},
		ViolationCount:   2,
		TimeTakenSeconds: 239,
		Reason:           model.SubmitReasonLearner,
		SubmittedAt:      time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}}, 1, nil)
	viols := new(MockViolationStore)
	viols.On("TallyByTest", mock.Anything, "chem-101").Return([]model.ViolationTally{
		{LearnerID: 3, Name: "Ana", Count: 2},
	}, nil)

	data, err := NewReportService(subs, viols).ExportSubmissions(context.Background(), "chem-101")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(submissionsSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Learner ID", rows[0][0])
	assert.Equal(t, []string{"3", "2026-03-01 09:30:00", "LEARNER", "239", "1", "1", "2"}, rows[1])

	rows, err = f.GetRows(violationsSheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"3", "Ana", "2"}, rows[1])
}

func TestReportService_ExportSubmissionsPropagatesErrors(t *testing.T) {
	subs := new(MockSubmissionStore)
	subs.On("ListByTest", mock.Anything, "chem-101", exportPageSize, 0).Return(nil, 0, errors.New("db down"))

	_, err := NewReportService(subs, new(MockViolationStore)).ExportSubmissions(context.Background(), "chem-101")

	assert.ErrorContains(t, err, "db down")
}

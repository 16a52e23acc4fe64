// Package report implements triggering and reading the WOOP insight report.
package report

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
	"github.com/fsyrachel/FurtureSelf-V1/internal/worker"
)

// Result is a READY report with its parsed WOOP record.
type Result struct {
	Report *database.Report
	WOOP   gemini.WOOP
}

// Service holds the report operations.
type Service struct {
	store  *database.Store
	queue  *queue.Queue
	logger *slog.Logger
}

// NewService creates the report service.
func NewService(store *database.Store, q *queue.Queue, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		queue:  q,
		logger: logger.With("component", "report_service"),
	}
}

// Generate triggers report synthesis. A report already GENERATING is
// returned as-is so repeated triggers stay idempotent; otherwise a new
// report row and its job commit atomically.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID) (*database.Report, error) {
	latest, err := s.store.GetLatestReport(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest != nil && latest.Status == database.ReportStatusGenerating {
		s.logger.InfoContext(ctx, "Report generation already in progress", "user_id", userID, "report_id", latest.ID)
		return latest, nil
	}

	report := &database.Report{
		ID:     uuid.New(),
		UserID: userID,
		Status: database.ReportStatusGenerating,
	}
	err = database.WithTx(ctx, s.store.DB(), func(tx *sqlx.Tx) error {
		if err := s.store.CreateReport(ctx, tx, report); err != nil {
			return err
		}
		_, err := s.queue.Enqueue(ctx, tx, worker.JobGenerateReport, worker.ReportJobArgs{
			ReportID: report.ID,
			UserID:   userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Report generation enqueued", "user_id", userID, "report_id", report.ID)
	return report, nil
}

// Status returns the latest report's status for polling.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (string, error) {
	latest, err := s.store.GetLatestReport(ctx, userID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", apperr.Wrap(apperr.CodeReportNotFound, "no report found", apperr.ErrNotFound)
	}
	return latest.Status, nil
}

// Latest returns the most recent READY report with its parsed WOOP record.
func (s *Service) Latest(ctx context.Context, userID uuid.UUID) (*Result, error) {
	report, err := s.store.GetLatestReadyReport(ctx, userID)
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, apperr.Wrap(apperr.CodeReportNotReady, "report not ready", apperr.ErrNotFound)
	}

	var woop gemini.WOOP
	if err := json.Unmarshal([]byte(report.Content), &woop); err != nil {
		s.logger.ErrorContext(ctx, "Stored report content is not valid WOOP JSON",
			"report_id", report.ID, "error", err)
		return nil, apperr.Wrap(apperr.CodeInternal, "stored report content is malformed", err)
	}
	return &Result{Report: report, WOOP: woop}, nil
}

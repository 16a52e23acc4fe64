package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
)

// NewReportHandler builds the generate-report handler. It synthesizes the
// WOOP record from the letter, the structured profile, and the full chat
// history, then flips the report to READY. Terminal failure marks the report
// FAILED so it never sticks in GENERATING.
func NewReportHandler(deps Deps) queue.Handler {
	logger := deps.Logger.With("component", "report_worker")

	return queue.Handler{
		Run: func(ctx context.Context, raw []byte) error {
			var args ReportJobArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return apperr.Fatal(fmt.Errorf("invalid report job args: %w", err))
			}
			return runReport(ctx, deps, logger, args)
		},
		OnTerminalFailure: func(ctx context.Context, raw []byte, cause error) {
			var args ReportJobArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				logger.ErrorContext(ctx, "Cannot mark report failed, args unreadable", "error", err)
				return
			}
			logger.ErrorContext(ctx, "Report generation failed terminally, marking report FAILED",
				"report_id", args.ReportID, "cause", cause)
			if err := deps.Store.UpdateReportResult(ctx, deps.Store.DB(), args.ReportID, database.ReportStatusFailed, ""); err != nil {
				logger.ErrorContext(ctx, "Failed to mark report FAILED", "report_id", args.ReportID, "error", err)
			}
		},
	}
}

func runReport(ctx context.Context, deps Deps, logger *slog.Logger, args ReportJobArgs) error {
	report, err := deps.Store.GetReport(ctx, args.ReportID)
	if err != nil {
		return err
	}
	if report == nil || report.UserID != args.UserID {
		return apperr.Fatal(fmt.Errorf("report %s: %w", args.ReportID, apperr.ErrDataIncomplete))
	}
	if report.Status == database.ReportStatusReady {
		logger.InfoContext(ctx, "Report already ready, skipping", "report_id", report.ID)
		return nil
	}

	currentProfile, err := deps.Store.GetCurrentProfile(ctx, args.UserID)
	if err != nil {
		return err
	}
	letter, err := deps.Store.GetLatestLetter(ctx, args.UserID)
	if err != nil {
		return err
	}
	history, err := deps.Store.GetAllChatHistory(ctx, args.UserID)
	if err != nil {
		return err
	}
	// A report without profile, letter, or any conversation has nothing to
	// synthesize from; retrying will not change that.
	if currentProfile == nil || letter == nil || len(history) == 0 {
		return apperr.Fatal(fmt.Errorf("user %s inputs for report %s: %w",
			args.UserID, args.ReportID, apperr.ErrDataIncomplete))
	}

	woop, err := deps.Gen.GenerateReport(ctx, gemini.ReportContext{
		// Structured fields only; the narrative persona descriptions stay out
		// of the coach prompt.
		Profile: gemini.ProfileFields{
			DemoData: currentProfile.DemoData,
			ValsData: currentProfile.ValsData,
			BFIData:  currentProfile.BFIData,
		},
		LetterContent:  letter.Content,
		ChatTranscript: formatTranscript(history),
	})
	if err != nil {
		return fmt.Errorf("report generation for user %s: %w", args.UserID, err)
	}

	content, err := json.Marshal(woop)
	if err != nil {
		return apperr.Fatal(fmt.Errorf("failed to serialize WOOP record: %w", err))
	}

	if err := deps.Store.UpdateReportResult(ctx, deps.Store.DB(), report.ID, database.ReportStatusReady, string(content)); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Report generated", "report_id", report.ID, "history_messages", len(history))
	return nil
}

// formatTranscript renders the full cross-persona history as "sender:
// content" lines, chronologically.
func formatTranscript(messages []database.ChatMessage) string {
	lines := make([]string, len(messages))
	for i, m := range messages {
		lines[i] = m.Sender + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

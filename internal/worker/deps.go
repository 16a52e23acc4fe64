// Package worker implements the background job handlers: letter reply
// generation and WOOP report generation.
package worker

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
)

// Job names registered with the queue runner.
const (
	JobGenerateLetterReplies = "generate-letter-replies"
	JobGenerateReport        = "generate-report"
)

// LetterJobArgs is the payload of a generate-letter-replies job.
type LetterJobArgs struct {
	LetterID uuid.UUID `json:"letter_id"`
	UserID   uuid.UUID `json:"user_id"`
}

// ReportJobArgs is the payload of a generate-report job.
type ReportJobArgs struct {
	ReportID uuid.UUID `json:"report_id"`
	UserID   uuid.UUID `json:"user_id"`
}

// Deps bundles the dependencies shared by the job handlers.
type Deps struct {
	Store  *database.Store
	Gen    gemini.Client
	Logger *slog.Logger
}

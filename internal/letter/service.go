// Package letter implements letter submission and inbox reads. Submission
// is the entry point of the async reply pipeline: chunks are embedded and
// stored, and the generation job is enqueued, all in one transaction with
// the letter row.
package letter

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
	"github.com/fsyrachel/FurtureSelf-V1/internal/worker"
)

// Inbox is the latest letter together with its generated replies.
type Inbox struct {
	Letter  *database.Letter
	Replies []database.LetterReply
}

// Service holds the letter operations.
type Service struct {
	store  *database.Store
	memory *memory.Store
	queue  *queue.Queue
	logger *slog.Logger
}

// NewService creates the letter service.
func NewService(store *database.Store, mem *memory.Store, q *queue.Queue, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		memory: mem,
		queue:  q,
		logger: logger.With("component", "letter_service"),
	}
}

// Submit accepts the user's letter and enqueues reply generation. A user
// holds at most one non-FAILED letter; a FAILED letter is reset and reused
// instead of accumulating dead rows. The letter row, its memory chunks, and
// the job commit atomically, so a visible letter always has a job behind it.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, content string) (*database.Letter, error) {
	active, err := s.store.GetActiveLetter(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, apperr.New(apperr.CodeLetterSubmitted, "letter already submitted")
	}

	latest, err := s.store.GetLatestLetter(ctx, userID)
	if err != nil {
		return nil, err
	}

	var letter *database.Letter
	err = database.WithTx(ctx, s.store.DB(), func(tx *sqlx.Tx) error {
		if latest != nil && latest.Status == database.LetterStatusFailed {
			if err := s.store.ResetLetter(ctx, tx, latest.ID, content); err != nil {
				return err
			}
			letter = latest
			letter.Content = content
			letter.Status = database.LetterStatusPending
			letter.UpdatedAt = time.Now().UTC()
		} else {
			letter = &database.Letter{
				ID:      uuid.New(),
				UserID:  userID,
				Content: content,
				Status:  database.LetterStatusPending,
			}
			if err := s.store.CreateLetter(ctx, tx, letter); err != nil {
				return err
			}
		}

		// Fail-closed: if embedding fails, the submission fails whole.
		if err := s.memory.WriteLetterMemory(ctx, tx, userID, content); err != nil {
			return err
		}

		_, err := s.queue.Enqueue(ctx, tx, worker.JobGenerateLetterReplies, worker.LetterJobArgs{
			LetterID: letter.ID,
			UserID:   userID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Letter submitted, reply generation enqueued",
		"user_id", userID, "letter_id", letter.ID)
	return letter, nil
}

// Status returns the latest letter's status, or ErrNotFound when the user
// never submitted one.
func (s *Service) Status(ctx context.Context, userID uuid.UUID) (string, error) {
	latest, err := s.store.GetLatestLetter(ctx, userID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return "", apperr.Wrap(apperr.CodeNotFound, "no letter submitted", apperr.ErrNotFound)
	}
	return latest.Status, nil
}

// LatestInbox returns the latest letter and its replies.
func (s *Service) LatestInbox(ctx context.Context, userID uuid.UUID) (*Inbox, error) {
	latest, err := s.store.GetLatestLetter(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, "no letter submitted", apperr.ErrNotFound)
	}

	replies, err := s.store.GetLetterReplies(ctx, latest.ID)
	if err != nil {
		return nil, err
	}
	return &Inbox{Letter: latest, Replies: replies}, nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
)

// NewLetterRepliesHandler builds the generate-letter-replies handler. It
// produces one reply per persona and flips the letter to REPLIES_READY in
// the same transaction. When the job fails terminally the letter is marked
// FAILED so the user can resubmit.
func NewLetterRepliesHandler(deps Deps) queue.Handler {
	logger := deps.Logger.With("component", "letter_worker")

	return queue.Handler{
		Run: func(ctx context.Context, raw []byte) error {
			var args LetterJobArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return apperr.Fatal(fmt.Errorf("invalid letter job args: %w", err))
			}
			return runLetterReplies(ctx, deps, logger, args)
		},
		OnTerminalFailure: func(ctx context.Context, raw []byte, cause error) {
			var args LetterJobArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				logger.ErrorContext(ctx, "Cannot mark letter failed, args unreadable", "error", err)
				return
			}
			logger.ErrorContext(ctx, "Letter reply generation failed terminally, marking letter FAILED",
				"letter_id", args.LetterID, "cause", cause)
			if err := deps.Store.UpdateLetterStatus(ctx, deps.Store.DB(), args.LetterID, database.LetterStatusFailed); err != nil {
				logger.ErrorContext(ctx, "Failed to mark letter FAILED", "letter_id", args.LetterID, "error", err)
			}
		},
	}
}

func runLetterReplies(ctx context.Context, deps Deps, logger *slog.Logger, args LetterJobArgs) error {
	letter, err := deps.Store.GetLetter(ctx, args.LetterID)
	if err != nil {
		return err
	}
	if letter == nil || letter.UserID != args.UserID {
		return apperr.Fatal(fmt.Errorf("letter %s: %w", args.LetterID, apperr.ErrDataIncomplete))
	}
	if letter.Status == database.LetterStatusRepliesReady {
		logger.InfoContext(ctx, "Letter already has replies, skipping", "letter_id", letter.ID)
		return nil
	}

	currentProfile, err := deps.Store.GetCurrentProfile(ctx, args.UserID)
	if err != nil {
		return err
	}
	profiles, err := deps.Store.GetFutureProfiles(ctx, args.UserID)
	if err != nil {
		return err
	}
	// Missing reference data will not resolve itself on a retry.
	if currentProfile == nil || len(profiles) == 0 {
		return apperr.Fatal(fmt.Errorf("user %s reference data for letter %s: %w",
			args.UserID, args.LetterID, apperr.ErrDataIncomplete))
	}

	replied, err := deps.Store.RepliedProfileIDs(ctx, letter.ID)
	if err != nil {
		return err
	}

	profileFields := gemini.ProfileFields{
		DemoData: currentProfile.DemoData,
		ValsData: currentProfile.ValsData,
		BFIData:  currentProfile.BFIData,
	}

	newReplies := make([]*database.LetterReply, 0, len(profiles))
	for i := range profiles {
		profile := &profiles[i]
		if replied[profile.ID] {
			logger.InfoContext(ctx, "Reply already exists for persona, skipping",
				"letter_id", letter.ID, "future_profile_id", profile.ID)
			continue
		}

		content, err := deps.Gen.GenerateLetterReply(ctx, gemini.LetterContext{
			ProfileName:        profile.ProfileName,
			ProfileDescription: profile.Description,
			Profile:            profileFields,
			LetterContent:      letter.Content,
		})
		if err != nil {
			return fmt.Errorf("reply generation for persona %s: %w", profile.ID, err)
		}

		newReplies = append(newReplies, &database.LetterReply{
			ID:              uuid.New(),
			LetterID:        letter.ID,
			FutureProfileID: profile.ID,
			Content:         content,
			ChatStatus:      database.ChatStatusNotStarted,
		})
	}

	err = database.WithTx(ctx, deps.Store.DB(), func(tx *sqlx.Tx) error {
		for _, reply := range newReplies {
			if err := deps.Store.CreateLetterReply(ctx, tx, reply); err != nil {
				return err
			}
		}
		return deps.Store.UpdateLetterStatus(ctx, tx, letter.ID, database.LetterStatusRepliesReady)
	})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "Letter replies generated",
		"letter_id", letter.ID, "new_replies", len(newReplies), "personas", len(profiles))
	return nil
}

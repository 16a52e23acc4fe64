// Package chat implements the chat guard: the turn-limited, transactional
// conversation flow between a user and one future-self persona.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
)

// Turn is one transcript entry returned to the API.
type Turn struct {
	ID        uuid.UUID
	Sender    string
	Content   string
	CreatedAt time.Time
}

// Service runs chat turns. Each successful turn persists exactly one
// USER/AGENT message pair; a failed turn persists nothing and consumes no
// turn from the limit.
type Service struct {
	store          *database.Store
	memory         *memory.Store
	gen            gemini.Client
	turnLimit      int
	historyWindow  int
	retrievalLimit int
	logger         *slog.Logger
}

// NewService creates the chat service.
func NewService(store *database.Store, mem *memory.Store, gen gemini.Client, cfg config.ChatConfig, logger *slog.Logger) *Service {
	return &Service{
		store:          store,
		memory:         mem,
		gen:            gen,
		turnLimit:      cfg.TurnLimit,
		historyWindow:  cfg.HistoryWindow,
		retrievalLimit: cfg.RetrievalLimit,
		logger:         logger.With("component", "chat_service"),
	}
}

// SendTurn runs one guarded chat turn for (userID, futureProfileID).
//
// The turn limit is checked twice: once up front to avoid a wasted
// generation call, and again inside the write transaction so concurrent
// turns for the same pair cannot race past the limit. The generation call
// happens before the transaction opens; if it fails, nothing is written.
func (s *Service) SendTurn(ctx context.Context, userID, futureProfileID uuid.UUID, userText string) (*Turn, error) {
	count, err := s.store.CountUserMessages(ctx, s.store.DB(), userID, futureProfileID)
	if err != nil {
		return nil, err
	}
	if count >= s.turnLimit {
		return nil, apperr.ErrTurnLimitExceeded
	}

	currentProfile, err := s.store.GetCurrentProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	futureProfile, err := s.store.GetFutureProfile(ctx, futureProfileID)
	if err != nil {
		return nil, err
	}
	if currentProfile == nil || futureProfile == nil || futureProfile.UserID != userID {
		return nil, apperr.ErrProfileIncomplete
	}

	history, err := s.store.GetChatHistory(ctx, userID, futureProfileID)
	if err != nil {
		return nil, err
	}

	// Retrieval is fail-open: a degraded memory store costs context, not
	// the turn itself.
	chunks, err := s.memory.Search(ctx, userID, futureProfileID, userText, s.retrievalLimit)
	if err != nil {
		s.logger.WarnContext(ctx, "Memory retrieval failed, continuing without memory context",
			"user_id", userID, "future_profile_id", futureProfileID, "error", err)
		chunks = nil
	}

	reply, err := s.gen.GenerateChatReply(ctx, gemini.ChatContext{
		ProfileName:        futureProfile.ProfileName,
		ProfileDescription: futureProfile.Description,
		Profile: gemini.ProfileFields{
			DemoData: currentProfile.DemoData,
			ValsData: currentProfile.ValsData,
			BFIData:  currentProfile.BFIData,
		},
		MemoryBlock:  formatMemoryBlock(chunks),
		HistoryBlock: formatHistory(history, s.historyWindow),
		UserText:     userText,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeGenerationFailed, "chat reply generation failed", err)
	}

	now := time.Now().UTC()
	userMsg := &database.ChatMessage{
		ID:              uuid.New(),
		UserID:          userID,
		FutureProfileID: futureProfileID,
		Sender:          database.SenderUser,
		Content:         userText,
		CreatedAt:       now,
	}
	// The agent message sorts strictly after the user message it answers.
	agentMsg := &database.ChatMessage{
		ID:              uuid.New(),
		UserID:          userID,
		FutureProfileID: futureProfileID,
		Sender:          database.SenderAgent,
		Content:         reply,
		CreatedAt:       now.Add(time.Millisecond),
	}

	err = database.WithTx(ctx, s.store.DB(), func(tx *sqlx.Tx) error {
		return s.commitTurn(ctx, tx, userID, futureProfileID, userMsg, agentMsg)
	})
	if err != nil {
		return nil, err
	}

	return &Turn{
		ID:        agentMsg.ID,
		Sender:    agentMsg.Sender,
		Content:   agentMsg.Content,
		CreatedAt: agentMsg.CreatedAt,
	}, nil
}

// commitTurn persists the message pair. The re-count inside the transaction
// is the authoritative limit check; the first turn also flips the persona's
// letter reply to COMPLETED in the same commit.
func (s *Service) commitTurn(ctx context.Context, tx *sqlx.Tx, userID, futureProfileID uuid.UUID, userMsg, agentMsg *database.ChatMessage) error {
	count, err := s.store.CountUserMessages(ctx, tx, userID, futureProfileID)
	if err != nil {
		return err
	}
	if count >= s.turnLimit {
		return apperr.ErrTurnLimitExceeded
	}

	if count == 0 {
		flipped, err := s.store.MarkReplyCompleted(ctx, tx, futureProfileID)
		if err != nil {
			return err
		}
		if !flipped {
			// Data-integrity anomaly: first turn without a NOT_STARTED
			// reply row. Logged, not fatal.
			s.logger.WarnContext(ctx, "First chat turn found no letter reply to mark completed",
				"user_id", userID, "future_profile_id", futureProfileID)
		}
	}

	if err := s.store.InsertChatMessage(ctx, tx, userMsg); err != nil {
		return err
	}
	if err := s.store.InsertChatMessage(ctx, tx, agentMsg); err != nil {
		return err
	}
	return nil
}

// History returns the ordered transcript for a (user, persona) pair.
func (s *Service) History(ctx context.Context, userID, futureProfileID uuid.UUID) ([]Turn, error) {
	profile, err := s.store.GetFutureProfile(ctx, futureProfileID)
	if err != nil {
		return nil, err
	}
	if profile == nil || profile.UserID != userID {
		return nil, apperr.Wrap(apperr.CodeNotFound, fmt.Sprintf("future profile %s not found", futureProfileID), apperr.ErrNotFound)
	}

	messages, err := s.store.GetChatHistory(ctx, userID, futureProfileID)
	if err != nil {
		return nil, err
	}

	turns := make([]Turn, len(messages))
	for i, m := range messages {
		turns[i] = Turn{ID: m.ID, Sender: m.Sender, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	return turns, nil
}

// RemainingTurns reports how many USER turns are left for the pair.
func (s *Service) RemainingTurns(ctx context.Context, userID, futureProfileID uuid.UUID) (int, error) {
	count, err := s.store.CountUserMessages(ctx, s.store.DB(), userID, futureProfileID)
	if err != nil {
		return 0, err
	}
	remaining := s.turnLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/chat"
	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
)

const turnLimit = 5

// fakeGen scripts the generation client. Unset hooks fall back to canned
// successful responses.
type fakeGen struct {
	chatReply   func(gemini.ChatContext) (string, error)
	letterReply func(gemini.LetterContext) (string, error)
	report      func(gemini.ReportContext) (gemini.WOOP, error)
	embedErr    error
}

func (f *fakeGen) GenerateChatReply(_ context.Context, cc gemini.ChatContext) (string, error) {
	if f.chatReply != nil {
		return f.chatReply(cc)
	}
	return "canned chat reply", nil
}

func (f *fakeGen) GenerateLetterReply(_ context.Context, lc gemini.LetterContext) (string, error) {
	if f.letterReply != nil {
		return f.letterReply(lc)
	}
	return "canned letter reply", nil
}

func (f *fakeGen) GenerateReport(_ context.Context, rc gemini.ReportContext) (gemini.WOOP, error) {
	if f.report != nil {
		return f.report(rc)
	}
	return gemini.WOOP{Wish: "w", Outcome: "o", Obstacle: "ob", Plan: "p"}, nil
}

func (f *fakeGen) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3, 4}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db      *sqlx.DB
	store   *database.Store
	gen     *fakeGen
	service *chat.Service
	userID  uuid.UUID
	persona uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := discardLogger()
	store := database.NewStore(db, logger)
	gen := &fakeGen{}
	memStore := memory.NewStore(db, gen, config.MemoryConfig{ChunkSize: 1000, ChunkOverlap: 200, EmbeddingDim: 4}, logger)
	svc := chat.NewService(store, memStore, gen,
		config.ChatConfig{TurnLimit: turnLimit, HistoryWindow: 10, RetrievalLimit: 5}, logger)

	ctx := context.Background()
	userID := uuid.New()
	persona := uuid.New()

	if err := store.CreateUser(ctx, &database.User{ID: userID, Status: database.UserStatusActive}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	err = store.CreateCurrentProfile(ctx, db, &database.CurrentProfile{
		ID: uuid.New(), UserID: userID, DemoData: "demo", ValsData: "vals", BFIData: "bfi",
	})
	if err != nil {
		t.Fatalf("seed current profile: %v", err)
	}
	err = store.CreateFutureProfile(ctx, db, &database.FutureProfile{
		ID: persona, UserID: userID, ProfileName: "Future Me", Description: "a calm engineer",
	})
	if err != nil {
		t.Fatalf("seed future profile: %v", err)
	}

	letterID := uuid.New()
	err = store.CreateLetter(ctx, db, &database.Letter{
		ID: letterID, UserID: userID, Content: "dear future me", Status: database.LetterStatusRepliesReady,
	})
	if err != nil {
		t.Fatalf("seed letter: %v", err)
	}
	err = store.CreateLetterReply(ctx, db, &database.LetterReply{
		ID: uuid.New(), LetterID: letterID, FutureProfileID: persona,
		Content: "hello from the future", ChatStatus: database.ChatStatusNotStarted,
	})
	if err != nil {
		t.Fatalf("seed letter reply: %v", err)
	}

	return &fixture{db: db, store: store, gen: gen, service: svc, userID: userID, persona: persona}
}

func (f *fixture) userMessageCount(t *testing.T) int {
	t.Helper()
	count, err := f.store.CountUserMessages(context.Background(), f.db, f.userID, f.persona)
	if err != nil {
		t.Fatalf("CountUserMessages: %v", err)
	}
	return count
}

func (f *fixture) replyChatStatus(t *testing.T) string {
	t.Helper()
	var status string
	err := f.db.GetContext(context.Background(), &status,
		`SELECT chat_status FROM letter_replies WHERE future_profile_id = ?`, f.persona)
	if err != nil {
		t.Fatalf("read chat_status: %v", err)
	}
	return status
}

func TestSendTurnPersistsMessagePair(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	turn, err := f.service.SendTurn(ctx, f.userID, f.persona, "hi future me")
	if err != nil {
		t.Fatalf("SendTurn: %v", err)
	}
	if turn.Sender != database.SenderAgent {
		t.Errorf("turn sender = %q, want AGENT", turn.Sender)
	}
	if turn.Content != "canned chat reply" {
		t.Errorf("turn content = %q", turn.Content)
	}

	history, err := f.service.History(ctx, f.userID, f.persona)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Sender != database.SenderUser || history[1].Sender != database.SenderAgent {
		t.Errorf("history order = %q, %q; want USER, AGENT", history[0].Sender, history[1].Sender)
	}
}

func TestTurnLimitEnforced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < turnLimit; i++ {
		if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "turn"); err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
	}

	_, err := f.service.SendTurn(ctx, f.userID, f.persona, "one too many")
	if !errors.Is(err, apperr.ErrTurnLimitExceeded) {
		t.Fatalf("error = %v, want ErrTurnLimitExceeded", err)
	}
	if got := f.userMessageCount(t); got != turnLimit {
		t.Errorf("user message count = %d, want %d", got, turnLimit)
	}

	remaining, err := f.service.RemainingTurns(ctx, f.userID, f.persona)
	if err != nil {
		t.Fatalf("RemainingTurns: %v", err)
	}
	if remaining != 0 {
		t.Errorf("remaining turns = %d, want 0", remaining)
	}
}

func TestFirstTurnFlipsChatStatusOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if got := f.replyChatStatus(t); got != database.ChatStatusNotStarted {
		t.Fatalf("initial chat_status = %q", got)
	}

	if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "first"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if got := f.replyChatStatus(t); got != database.ChatStatusCompleted {
		t.Errorf("chat_status after first turn = %q, want COMPLETED", got)
	}

	if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "second"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if got := f.replyChatStatus(t); got != database.ChatStatusCompleted {
		t.Errorf("chat_status after second turn = %q, want COMPLETED", got)
	}
}

func TestGenerationFailureCommitsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gen.chatReply = func(gemini.ChatContext) (string, error) {
		return "", errors.New("model unavailable")
	}
	ctx := context.Background()

	_, err := f.service.SendTurn(ctx, f.userID, f.persona, "hello")
	if err == nil {
		t.Fatal("SendTurn should fail when generation fails")
	}
	if apperr.Code(err) != apperr.CodeGenerationFailed {
		t.Errorf("error code = %q, want %q", apperr.Code(err), apperr.CodeGenerationFailed)
	}

	// The failed turn consumed nothing.
	if got := f.userMessageCount(t); got != 0 {
		t.Errorf("user message count = %d, want 0", got)
	}
	if got := f.replyChatStatus(t); got != database.ChatStatusNotStarted {
		t.Errorf("chat_status = %q, want NOT_STARTED", got)
	}

	// The user can retry immediately.
	f.gen.chatReply = nil
	if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "hello again"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestRetrievalFailureIsFailOpen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.gen.embedErr = errors.New("embedding service down")

	var sawMemory string
	f.gen.chatReply = func(cc gemini.ChatContext) (string, error) {
		sawMemory = cc.MemoryBlock
		return "still works", nil
	}

	turn, err := f.service.SendTurn(context.Background(), f.userID, f.persona, "hello")
	if err != nil {
		t.Fatalf("SendTurn with broken retrieval: %v", err)
	}
	if turn.Content != "still works" {
		t.Errorf("turn content = %q", turn.Content)
	}
	if sawMemory != "" {
		t.Errorf("memory block = %q, want empty", sawMemory)
	}
}

func TestMissingProfileAborts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// Unknown persona.
	_, err := f.service.SendTurn(ctx, f.userID, uuid.New(), "hello")
	if !errors.Is(err, apperr.ErrProfileIncomplete) {
		t.Fatalf("error = %v, want ErrProfileIncomplete", err)
	}

	// Another user's persona.
	otherUser := uuid.New()
	if err := f.store.CreateUser(ctx, &database.User{ID: otherUser, Status: database.UserStatusActive}); err != nil {
		t.Fatalf("seed other user: %v", err)
	}
	err = f.store.CreateCurrentProfile(ctx, f.db, &database.CurrentProfile{
		ID: uuid.New(), UserID: otherUser, DemoData: "d", ValsData: "v", BFIData: "b",
	})
	if err != nil {
		t.Fatalf("seed other profile: %v", err)
	}
	_, err = f.service.SendTurn(ctx, otherUser, f.persona, "hello")
	if !errors.Is(err, apperr.ErrProfileIncomplete) {
		t.Fatalf("cross-user error = %v, want ErrProfileIncomplete", err)
	}
}

func TestHistoryWindowPassedToGeneration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var lastHistory string
	f.gen.chatReply = func(cc gemini.ChatContext) (string, error) {
		lastHistory = cc.HistoryBlock
		return "ok", nil
	}

	if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "first message"); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if lastHistory != "" {
		t.Errorf("first turn history = %q, want empty", lastHistory)
	}

	if _, err := f.service.SendTurn(ctx, f.userID, f.persona, "second message"); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	want := "USER: first message\nAGENT: ok"
	if lastHistory != want {
		t.Errorf("second turn history = %q, want %q", lastHistory, want)
	}
}

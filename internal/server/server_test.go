package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/chat"
	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/gemini"
	"github.com/fsyrachel/FurtureSelf-V1/internal/letter"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
	"github.com/fsyrachel/FurtureSelf-V1/internal/queue"
	"github.com/fsyrachel/FurtureSelf-V1/internal/report"
	"github.com/fsyrachel/FurtureSelf-V1/internal/server"
	"github.com/fsyrachel/FurtureSelf-V1/internal/user"
	"github.com/fsyrachel/FurtureSelf-V1/internal/worker"
)

const turnLimit = 5

type fakeGen struct{}

func (fakeGen) GenerateLetterReply(_ context.Context, lc gemini.LetterContext) (string, error) {
	return "reply from " + lc.ProfileName, nil
}

func (fakeGen) GenerateChatReply(_ context.Context, _ gemini.ChatContext) (string, error) {
	return "chat reply", nil
}

func (fakeGen) GenerateReport(_ context.Context, _ gemini.ReportContext) (gemini.WOOP, error) {
	return gemini.WOOP{Wish: "w", Outcome: "o", Obstacle: "ob", Plan: "p"}, nil
}

func (fakeGen) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3, 4}
	}
	return out, nil
}

// app wires the whole API against an in-memory database. Jobs are drained
// synchronously instead of running the background workers.
type app struct {
	router   http.Handler
	queue    *queue.Queue
	handlers map[string]queue.Handler
}

func newApp(t *testing.T) *app {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)
	gen := fakeGen{}
	memStore := memory.NewStore(db, gen, config.MemoryConfig{ChunkSize: 1000, ChunkOverlap: 200, EmbeddingDim: 4}, logger)
	q := queue.New(db, logger)

	users := user.NewService(store, memStore, logger)
	letters := letter.NewService(store, memStore, q, logger)
	chats := chat.NewService(store, memStore, gen,
		config.ChatConfig{TurnLimit: turnLimit, HistoryWindow: 10, RetrievalLimit: 5}, logger)
	reports := report.NewService(store, q, logger)

	deps := worker.Deps{Store: store, Gen: gen, Logger: logger}
	handlers := map[string]queue.Handler{
		worker.JobGenerateLetterReplies: worker.NewLetterRepliesHandler(deps),
		worker.JobGenerateReport:        worker.NewReportHandler(deps),
	}

	h := server.NewHandler(users, letters, chats, reports, logger)
	return &app{router: h.Router(), queue: q, handlers: handlers}
}

// drainJobs claims and runs every due job to completion.
func (a *app) drainJobs(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		job, err := a.queue.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job == nil {
			return
		}
		h, ok := a.handlers[job.Name]
		if !ok {
			t.Fatalf("no handler for job %q", job.Name)
		}
		if err := h.Run(ctx, []byte(job.Args)); err != nil {
			t.Fatalf("job %s failed: %v", job.Name, err)
		}
		if err := a.queue.MarkDone(ctx, job.ID); err != nil {
			t.Fatalf("MarkDone: %v", err)
		}
	}
}

func (a *app) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func wantStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, want, rec.Body.String())
	}
}

func TestFullJourney(t *testing.T) {
	t.Parallel()

	a := newApp(t)

	// Anonymous init.
	rec := a.do(t, http.MethodPost, "/api/v1/user/init", "", nil)
	wantStatus(t, rec, http.StatusOK)
	var initResp struct {
		UserID uuid.UUID `json:"user_id"`
		Status string    `json:"status"`
	}
	decodeBody(t, rec, &initResp)
	if initResp.Status != database.UserStatusOnboarding {
		t.Fatalf("init status = %q, want ONBOARDING", initResp.Status)
	}
	uid := initResp.UserID.String()

	// Re-init with the same ID keeps the user.
	rec = a.do(t, http.MethodPost, "/api/v1/user/init", "", map[string]string{"anonymous_user_id": uid})
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &initResp)
	if initResp.UserID.String() != uid {
		t.Fatalf("re-init returned %s, want %s", initResp.UserID, uid)
	}

	// Onboarding.
	rec = a.do(t, http.MethodPost, "/api/v1/profile/current", uid, map[string]string{
		"demo_data": "demo", "vals_data": "vals", "bfi_data": "bfi",
	})
	wantStatus(t, rec, http.StatusOK)

	rec = a.do(t, http.MethodPost, "/api/v1/profile/future", uid, map[string]any{
		"profiles": []map[string]string{
			{"profile_name": "Teacher", "future_values": "patience", "future_vision": "teaching", "future_obstacles": "doubt"},
			{"profile_name": "Writer", "future_values": "honesty", "future_vision": "writing", "future_obstacles": "time"},
		},
	})
	wantStatus(t, rec, http.StatusOK)
	var profResp struct {
		Status          string `json:"status"`
		CreatedProfiles []struct {
			FutureProfileID uuid.UUID `json:"future_profile_id"`
		} `json:"created_profiles"`
	}
	decodeBody(t, rec, &profResp)
	if profResp.Status != database.UserStatusActive {
		t.Fatalf("profile status = %q, want ACTIVE", profResp.Status)
	}
	if len(profResp.CreatedProfiles) != 2 {
		t.Fatalf("created %d profiles, want 2", len(profResp.CreatedProfiles))
	}

	// Letter submission kicks off the async pipeline.
	rec = a.do(t, http.MethodPost, "/api/v1/letters/submit", uid, map[string]string{"content": "dear future me"})
	wantStatus(t, rec, http.StatusAccepted)

	rec = a.do(t, http.MethodGet, "/api/v1/letters/status", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	var statusResp struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &statusResp)
	if statusResp.Status != database.LetterStatusPending {
		t.Fatalf("letter status = %q, want PENDING", statusResp.Status)
	}

	a.drainJobs(t)

	rec = a.do(t, http.MethodGet, "/api/v1/letters/status", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &statusResp)
	if statusResp.Status != database.LetterStatusRepliesReady {
		t.Fatalf("letter status after worker = %q, want REPLIES_READY", statusResp.Status)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/letters/inbox/latest", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	var inbox struct {
		Replies []struct {
			FutureProfileID uuid.UUID `json:"future_profile_id"`
			Content         string    `json:"content"`
			ChatStatus      string    `json:"chat_status"`
		} `json:"replies"`
	}
	decodeBody(t, rec, &inbox)
	if len(inbox.Replies) != 2 {
		t.Fatalf("inbox has %d replies, want 2", len(inbox.Replies))
	}
	persona := inbox.Replies[0].FutureProfileID

	// Chat with one persona up to the turn limit.
	chatPath := "/api/v1/chat/" + persona.String()
	for i := 0; i < turnLimit; i++ {
		rec = a.do(t, http.MethodPost, chatPath+"/send", uid, map[string]string{"content": "hello"})
		wantStatus(t, rec, http.StatusOK)
		var turn struct {
			Sender  string `json:"sender"`
			Content string `json:"content"`
		}
		decodeBody(t, rec, &turn)
		if turn.Sender != database.SenderAgent {
			t.Fatalf("turn %d sender = %q, want AGENT", i+1, turn.Sender)
		}
	}

	rec = a.do(t, http.MethodPost, chatPath+"/send", uid, map[string]string{"content": "one too many"})
	wantStatus(t, rec, http.StatusForbidden)
	var errResp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &errResp)
	if errResp.Error != apperr.CodeTurnLimitExceeded {
		t.Fatalf("error code = %q, want %q", errResp.Error, apperr.CodeTurnLimitExceeded)
	}

	rec = a.do(t, http.MethodGet, chatPath+"/history", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	var history []struct {
		Sender string `json:"sender"`
	}
	decodeBody(t, rec, &history)
	if len(history) != turnLimit*2 {
		t.Fatalf("history length = %d, want %d", len(history), turnLimit*2)
	}

	// Report.
	rec = a.do(t, http.MethodPost, "/api/v1/report/generate", uid, nil)
	wantStatus(t, rec, http.StatusAccepted)

	rec = a.do(t, http.MethodGet, "/api/v1/report/latest", uid, nil)
	wantStatus(t, rec, http.StatusNotFound)
	decodeBody(t, rec, &errResp)
	if errResp.Error != apperr.CodeReportNotReady {
		t.Fatalf("error code = %q, want %q", errResp.Error, apperr.CodeReportNotReady)
	}

	a.drainJobs(t)

	rec = a.do(t, http.MethodGet, "/api/v1/report/status", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	decodeBody(t, rec, &statusResp)
	if statusResp.Status != database.ReportStatusReady {
		t.Fatalf("report status = %q, want READY", statusResp.Status)
	}

	rec = a.do(t, http.MethodGet, "/api/v1/report/latest", uid, nil)
	wantStatus(t, rec, http.StatusOK)
	var reportResp struct {
		Status  string      `json:"status"`
		Content gemini.WOOP `json:"content"`
	}
	decodeBody(t, rec, &reportResp)
	if reportResp.Content.Wish == "" || reportResp.Content.Plan == "" {
		t.Fatalf("report content incomplete: %+v", reportResp.Content)
	}
}

func TestIdentityHeaderRequired(t *testing.T) {
	t.Parallel()

	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/api/v1/letters/status", "", nil)
	wantStatus(t, rec, http.StatusUnauthorized)

	rec = a.do(t, http.MethodGet, "/api/v1/letters/status", "not-a-uuid", nil)
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestValidationErrors(t *testing.T) {
	t.Parallel()

	a := newApp(t)
	uid := uuid.New().String()

	// Empty letter content.
	rec := a.do(t, http.MethodPost, "/api/v1/letters/submit", uid, map[string]string{"content": ""})
	wantStatus(t, rec, http.StatusBadRequest)

	// Too many personas.
	profiles := make([]map[string]string, 4)
	for i := range profiles {
		profiles[i] = map[string]string{
			"profile_name": "P", "future_values": "v", "future_vision": "v", "future_obstacles": "o",
		}
	}
	rec = a.do(t, http.MethodPost, "/api/v1/profile/future", uid, map[string]any{"profiles": profiles})
	wantStatus(t, rec, http.StatusBadRequest)

	// Bad persona ID in the chat path.
	rec = a.do(t, http.MethodPost, "/api/v1/chat/not-a-uuid/send", uid, map[string]string{"content": "hi"})
	wantStatus(t, rec, http.StatusBadRequest)
}

func TestDuplicateSubmissionsRejected(t *testing.T) {
	t.Parallel()

	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/api/v1/user/init", "", nil)
	wantStatus(t, rec, http.StatusOK)
	var initResp struct {
		UserID uuid.UUID `json:"user_id"`
	}
	decodeBody(t, rec, &initResp)
	uid := initResp.UserID.String()

	profileBody := map[string]string{"demo_data": "d", "vals_data": "v", "bfi_data": "b"}
	rec = a.do(t, http.MethodPost, "/api/v1/profile/current", uid, profileBody)
	wantStatus(t, rec, http.StatusOK)
	rec = a.do(t, http.MethodPost, "/api/v1/profile/current", uid, profileBody)
	wantStatus(t, rec, http.StatusBadRequest)
	var errResp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &errResp)
	if errResp.Error != apperr.CodeProfileExists {
		t.Fatalf("error code = %q, want %q", errResp.Error, apperr.CodeProfileExists)
	}

	futureBody := map[string]any{"profiles": []map[string]string{
		{"profile_name": "P", "future_values": "v", "future_vision": "v", "future_obstacles": "o"},
	}}
	rec = a.do(t, http.MethodPost, "/api/v1/profile/future", uid, futureBody)
	wantStatus(t, rec, http.StatusOK)
	rec = a.do(t, http.MethodPost, "/api/v1/profile/future", uid, futureBody)
	wantStatus(t, rec, http.StatusBadRequest)
	decodeBody(t, rec, &errResp)
	if errResp.Error != apperr.CodeProfilesExist {
		t.Fatalf("error code = %q, want %q", errResp.Error, apperr.CodeProfilesExist)
	}

	letterBody := map[string]string{"content": "dear future me"}
	rec = a.do(t, http.MethodPost, "/api/v1/letters/submit", uid, letterBody)
	wantStatus(t, rec, http.StatusAccepted)
	rec = a.do(t, http.MethodPost, "/api/v1/letters/submit", uid, letterBody)
	wantStatus(t, rec, http.StatusBadRequest)
	decodeBody(t, rec, &errResp)
	if errResp.Error != apperr.CodeLetterSubmitted {
		t.Fatalf("error code = %q, want %q", errResp.Error, apperr.CodeLetterSubmitted)
	}
}

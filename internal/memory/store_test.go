package memory_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
)

const testDim = 4

// fakeEmbedder maps known texts to fixed vectors; unknown texts get the
// default vector.
type fakeEmbedder struct {
	vectors    map[string][]float32
	defaultVec []float32
	err        error
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out[i] = vec
		} else {
			out[i] = f.defaultVec
		}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	return db
}

func newMemoryStore(db *sqlx.DB, emb memory.Embedder) *memory.Store {
	cfg := config.MemoryConfig{ChunkSize: 10, ChunkOverlap: 2, EmbeddingDim: testDim}
	return memory.NewStore(db, emb, cfg, discardLogger())
}

func TestSearchOrderingAndVisibility(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	userID := uuid.New()
	personaA := uuid.New()
	personaB := uuid.New()

	emb := &fakeEmbedder{
		vectors: map[string][]float32{
			"near":       {1, 0, 0, 0},
			"far":        {10, 0, 0, 0},
			"other":      {1.5, 0, 0, 0},
			"letter txt": {2, 0, 0, 0},
			"query":      {0, 0, 0, 0},
		},
		defaultVec: []float32{5, 5, 5, 5},
	}
	store := newMemoryStore(db, emb)
	ctx := context.Background()

	if err := store.WriteProfileMemory(ctx, db, userID, personaA, "near"); err != nil {
		t.Fatalf("WriteProfileMemory(near): %v", err)
	}
	if err := store.WriteProfileMemory(ctx, db, userID, personaA, "far"); err != nil {
		t.Fatalf("WriteProfileMemory(far): %v", err)
	}
	// Another persona's memory must stay invisible to persona A.
	if err := store.WriteProfileMemory(ctx, db, userID, personaB, "other"); err != nil {
		t.Fatalf("WriteProfileMemory(other): %v", err)
	}
	// Letter chunks are user-global.
	if err := store.WriteLetterMemory(ctx, db, userID, "letter txt"); err != nil {
		t.Fatalf("WriteLetterMemory: %v", err)
	}

	got, err := store.Search(ctx, userID, personaA, "query", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := []string{"near", "letter txt", "far"}
	if len(got) != len(want) {
		t.Fatalf("Search returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSearchLimit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	userID := uuid.New()
	persona := uuid.New()
	emb := &fakeEmbedder{defaultVec: []float32{1, 1, 1, 1}}
	store := newMemoryStore(db, emb)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.WriteProfileMemory(ctx, db, userID, persona, string(rune('a'+i))); err != nil {
			t.Fatalf("WriteProfileMemory: %v", err)
		}
	}

	got, err := store.Search(ctx, userID, persona, "anything", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Search returned %d results, want 2", len(got))
	}
}

func TestWriteLetterMemoryChunks(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	userID := uuid.New()
	emb := &fakeEmbedder{defaultVec: []float32{1, 2, 3, 4}}
	store := newMemoryStore(db, emb)
	ctx := context.Background()

	// 18 runes with chunk size 10 and overlap 2 produces 3 chunks.
	if err := store.WriteLetterMemory(ctx, db, userID, "abcdefghijklmnopqr"); err != nil {
		t.Fatalf("WriteLetterMemory: %v", err)
	}

	var rows []database.VectorMemory
	if err := db.SelectContext(ctx, &rows, `SELECT * FROM vector_memories WHERE user_id = ?`, userID); err != nil {
		t.Fatalf("select memories: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(rows))
	}
	for _, row := range rows {
		if row.DocType != database.DocTypeLetterChunk {
			t.Errorf("doc_type = %q, want %q", row.DocType, database.DocTypeLetterChunk)
		}
		if row.FutureProfileID.Valid {
			t.Error("letter chunk should not be persona-scoped")
		}
		if len(row.Embedding) != testDim*4 {
			t.Errorf("embedding blob length = %d, want %d", len(row.Embedding), testDim*4)
		}
	}
}

func TestWriteFailsClosedOnEmbedderError(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	userID := uuid.New()
	emb := &fakeEmbedder{err: errors.New("embedding service down")}
	store := newMemoryStore(db, emb)
	ctx := context.Background()

	if err := store.WriteLetterMemory(ctx, db, userID, "content"); err == nil {
		t.Fatal("WriteLetterMemory should fail when the embedder fails")
	}
	if err := store.WriteProfileMemory(ctx, db, userID, uuid.New(), "content"); err == nil {
		t.Fatal("WriteProfileMemory should fail when the embedder fails")
	}

	var count int
	if err := db.GetContext(ctx, &count, `SELECT COUNT(id) FROM vector_memories`); err != nil {
		t.Fatalf("count memories: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no rows persisted, got %d", count)
	}
}

func TestWriteRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	emb := &fakeEmbedder{defaultVec: []float32{1, 2}} // wrong dimension
	store := newMemoryStore(db, emb)

	err := store.WriteProfileMemory(context.Background(), db, uuid.New(), uuid.New(), "text")
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

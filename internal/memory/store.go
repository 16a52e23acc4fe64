package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/config"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
)

// Embedder turns texts into fixed-dimension vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store persists embedded text chunks and answers similarity queries.
// Writes are fail-closed: an embedding or insert failure aborts the caller's
// transaction. Read-path failure policy is the caller's decision.
type Store struct {
	db           *sqlx.DB
	embedder     Embedder
	dim          int
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// NewStore creates a memory Store.
func NewStore(db *sqlx.DB, embedder Embedder, cfg config.MemoryConfig, logger *slog.Logger) *Store {
	return &Store{
		db:           db,
		embedder:     embedder,
		dim:          cfg.EmbeddingDim,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       logger.With("component", "memory_store"),
	}
}

// WriteProfileMemory stores a persona description as a single embedded
// chunk, scoped to that persona.
func (s *Store) WriteProfileMemory(ctx context.Context, q sqlx.ExtContext, userID, futureProfileID uuid.UUID, text string) error {
	vectors, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("failed to embed profile memory: %w", err)
	}

	row := &database.VectorMemory{
		ID:              uuid.New(),
		UserID:          userID,
		FutureProfileID: uuid.NullUUID{UUID: futureProfileID, Valid: true},
		DocType:         database.DocTypeFutureProfile,
		TextChunk:       text,
		Embedding:       EncodeVector(vectors[0]),
		CreatedAt:       time.Now().UTC(),
	}
	if err := insertMemory(ctx, q, row); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "Profile memory written", "user_id", userID, "future_profile_id", futureProfileID)
	return nil
}

// WriteLetterMemory chunks the letter, embeds each chunk, and stores the
// chunks without a persona scope so every persona of the user can see them.
func (s *Store) WriteLetterMemory(ctx context.Context, q sqlx.ExtContext, userID uuid.UUID, text string) error {
	chunks := SplitText(text, s.chunkSize, s.chunkOverlap)
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := s.embedTexts(ctx, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed letter memory: %w", err)
	}

	now := time.Now().UTC()
	for i, chunk := range chunks {
		row := &database.VectorMemory{
			ID:        uuid.New(),
			UserID:    userID,
			DocType:   database.DocTypeLetterChunk,
			TextChunk: chunk,
			Embedding: EncodeVector(vectors[i]),
			CreatedAt: now,
		}
		if err := insertMemory(ctx, q, row); err != nil {
			return err
		}
	}

	s.logger.DebugContext(ctx, "Letter memory written", "user_id", userID, "chunk_count", len(chunks))
	return nil
}

// Search embeds the query and returns up to limit chunk texts ordered by
// ascending L2 distance. Candidates are the persona-scoped rows plus every
// LETTER_CHUNK row of the user, which are visible to all personas.
func (s *Store) Search(ctx context.Context, userID, futureProfileID uuid.UUID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}

	vectors, err := s.embedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}
	queryVec := vectors[0]

	var rows []database.VectorMemory
	err = s.db.SelectContext(ctx, &rows,
		`SELECT * FROM vector_memories
		 WHERE user_id = ? AND (future_profile_id = ? OR doc_type = ?)`,
		userID, futureProfileID, database.DocTypeLetterChunk)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory candidates for user %s: %w", userID, err)
	}

	type scored struct {
		text string
		dist float64
	}
	results := make([]scored, 0, len(rows))
	for _, row := range rows {
		vec, err := DecodeVector(row.Embedding, s.dim)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping memory row with malformed embedding", "memory_id", row.ID, "error", err)
			continue
		}
		results = append(results, scored{text: row.TextChunk, dist: l2Distance(queryVec, vec)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > limit {
		results = results[:limit]
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.text
	}
	return texts, nil
}

// embedTexts runs the embedder and re-checks the dimension invariant before
// anything reaches the table.
func (s *Store) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, vec := range vectors {
		if len(vec) != s.dim {
			return nil, fmt.Errorf("embedder returned %d-dimension vector at index %d, expected %d", len(vec), i, s.dim)
		}
	}
	return vectors, nil
}

func insertMemory(ctx context.Context, q sqlx.ExtContext, row *database.VectorMemory) error {
	query := `INSERT INTO vector_memories (id, user_id, future_profile_id, doc_type, text_chunk, embedding, created_at)
	          VALUES (:id, :user_id, :future_profile_id, :doc_type, :text_chunk, :embedding, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, row); err != nil {
		return fmt.Errorf("failed to insert memory chunk for user %s: %w", row.UserID, err)
	}
	return nil
}

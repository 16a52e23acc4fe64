package database

import (
	"time"

	"github.com/google/uuid"
)

// User lifecycle statuses.
const (
	UserStatusOnboarding = "ONBOARDING"
	UserStatusActive     = "ACTIVE"
)

// Letter statuses.
const (
	LetterStatusPending      = "PENDING"
	LetterStatusRepliesReady = "REPLIES_READY"
	LetterStatusFailed       = "FAILED"
)

// LetterReply chat statuses.
const (
	ChatStatusNotStarted = "NOT_STARTED"
	ChatStatusCompleted  = "COMPLETED"
)

// ChatMessage senders.
const (
	SenderUser  = "USER"
	SenderAgent = "AGENT"
)

// Report statuses.
const (
	ReportStatusGenerating = "GENERATING"
	ReportStatusReady      = "READY"
	ReportStatusFailed     = "FAILED"
)

// Vector memory document types.
const (
	DocTypeFutureProfile = "FUTURE_PROFILE"
	DocTypeLetterChunk   = "LETTER_CHUNK"
)

// User owns every other entity by foreign key.
type User struct {
	ID        uuid.UUID `db:"id"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CurrentProfile stores the structured onboarding questionnaire results.
// Immutable once created; the core only reads it.
type CurrentProfile struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	DemoData  string    `db:"demo_data"`
	ValsData  string    `db:"vals_data"`
	BFIData   string    `db:"bfi_data"`
	CreatedAt time.Time `db:"created_at"`
}

// FutureProfile is one "future self" persona with a synthesized description.
type FutureProfile struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	ProfileName string    `db:"profile_name"`
	Description string    `db:"profile_description"`
	CreatedAt   time.Time `db:"created_at"`
}

// Letter is the user's letter to their future selves. A user holds at most
// one letter with status != FAILED at a time (enforced at submission).
type Letter struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Content   string    `db:"content"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LetterReply is one persona's generated reply to a letter. ChatStatus flips
// to COMPLETED on the first chat turn with that persona.
type LetterReply struct {
	ID              uuid.UUID `db:"id"`
	LetterID        uuid.UUID `db:"letter_id"`
	FutureProfileID uuid.UUID `db:"future_profile_id"`
	Content         string    `db:"content"`
	ChatStatus      string    `db:"chat_status"`
	CreatedAt       time.Time `db:"created_at"`
}

// ChatMessage is one append-only transcript entry, ordered by CreatedAt.
type ChatMessage struct {
	ID              uuid.UUID `db:"id"`
	UserID          uuid.UUID `db:"user_id"`
	FutureProfileID uuid.UUID `db:"future_profile_id"`
	Sender          string    `db:"sender"`
	Content         string    `db:"content"`
	CreatedAt       time.Time `db:"created_at"`
}

// Report is the synthesized insight report. Content holds the serialized
// WOOP record once status is READY.
type Report struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Status    string    `db:"status"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// VectorMemory is one embedded text chunk. FutureProfileID is null for
// letter-derived chunks, which are visible to every persona of the user.
type VectorMemory struct {
	ID              uuid.UUID     `db:"id"`
	UserID          uuid.UUID     `db:"user_id"`
	FutureProfileID uuid.NullUUID `db:"future_profile_id"`
	DocType         string        `db:"doc_type"`
	TextChunk       string        `db:"text_chunk"`
	Embedding       []byte        `db:"embedding"`
	CreatedAt       time.Time     `db:"created_at"`
}

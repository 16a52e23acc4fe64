package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store is the data access layer. Read methods run against the pool; write
// methods take an sqlx.ExtContext so callers can compose them inside one
// transaction (see WithTx). *sqlx.DB and *sqlx.Tx both satisfy ExtContext.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by a connected sqlx.DB.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// DB exposes the underlying pool for WithTx composition.
func (s *Store) DB() *sqlx.DB { return s.db }

// --- Users ---

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (id, status, created_at, updated_at)
	          VALUES (:id, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, s.db, query, user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.ID, err)
	}
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil if not found.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// UpdateUserStatus transitions a user's lifecycle status.
func (s *Store) UpdateUserStatus(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, status string) error {
	query := `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update user %s status: %w", id, err)
	}
	return nil
}

// --- Profiles ---

// CreateCurrentProfile inserts the user's immutable questionnaire profile.
func (s *Store) CreateCurrentProfile(ctx context.Context, q sqlx.ExtContext, profile *CurrentProfile) error {
	profile.CreatedAt = time.Now().UTC()
	query := `INSERT INTO current_profiles (id, user_id, demo_data, vals_data, bfi_data, created_at)
	          VALUES (:id, :user_id, :demo_data, :vals_data, :bfi_data, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, profile); err != nil {
		return fmt.Errorf("failed to create current profile for user %s: %w", profile.UserID, err)
	}
	return nil
}

// GetCurrentProfile retrieves the user's current profile. Returns nil, nil
// if not found.
func (s *Store) GetCurrentProfile(ctx context.Context, userID uuid.UUID) (*CurrentProfile, error) {
	var profile CurrentProfile
	err := s.db.GetContext(ctx, &profile, `SELECT * FROM current_profiles WHERE user_id = ?`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get current profile for user %s: %w", userID, err)
	}
	return &profile, nil
}

// CreateFutureProfile inserts one persona row.
func (s *Store) CreateFutureProfile(ctx context.Context, q sqlx.ExtContext, profile *FutureProfile) error {
	profile.CreatedAt = time.Now().UTC()
	query := `INSERT INTO future_profiles (id, user_id, profile_name, profile_description, created_at)
	          VALUES (:id, :user_id, :profile_name, :profile_description, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, profile); err != nil {
		return fmt.Errorf("failed to create future profile %q for user %s: %w", profile.ProfileName, profile.UserID, err)
	}
	return nil
}

// GetFutureProfile retrieves one persona by ID. Returns nil, nil if not found.
func (s *Store) GetFutureProfile(ctx context.Context, id uuid.UUID) (*FutureProfile, error) {
	var profile FutureProfile
	err := s.db.GetContext(ctx, &profile, `SELECT * FROM future_profiles WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get future profile %s: %w", id, err)
	}
	return &profile, nil
}

// GetFutureProfiles retrieves all personas for a user, oldest first.
func (s *Store) GetFutureProfiles(ctx context.Context, userID uuid.UUID) ([]FutureProfile, error) {
	var profiles []FutureProfile
	err := s.db.SelectContext(ctx, &profiles,
		`SELECT * FROM future_profiles WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get future profiles for user %s: %w", userID, err)
	}
	return profiles, nil
}

// --- Letters ---

// CreateLetter inserts a new letter row.
func (s *Store) CreateLetter(ctx context.Context, q sqlx.ExtContext, letter *Letter) error {
	now := time.Now().UTC()
	letter.CreatedAt = now
	letter.UpdatedAt = now
	query := `INSERT INTO letters (id, user_id, content, status, created_at, updated_at)
	          VALUES (:id, :user_id, :content, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, letter); err != nil {
		return fmt.Errorf("failed to create letter for user %s: %w", letter.UserID, err)
	}
	return nil
}

// GetLetter retrieves a letter by ID. Returns nil, nil if not found.
func (s *Store) GetLetter(ctx context.Context, id uuid.UUID) (*Letter, error) {
	var letter Letter
	err := s.db.GetContext(ctx, &letter, `SELECT * FROM letters WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get letter %s: %w", id, err)
	}
	return &letter, nil
}

// GetLatestLetter retrieves the user's most recent letter regardless of
// status. Returns nil, nil if the user never submitted one.
func (s *Store) GetLatestLetter(ctx context.Context, userID uuid.UUID) (*Letter, error) {
	var letter Letter
	err := s.db.GetContext(ctx, &letter,
		`SELECT * FROM letters WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get latest letter for user %s: %w", userID, err)
	}
	return &letter, nil
}

// GetActiveLetter retrieves the user's letter with status != FAILED, if any.
func (s *Store) GetActiveLetter(ctx context.Context, userID uuid.UUID) (*Letter, error) {
	var letter Letter
	err := s.db.GetContext(ctx, &letter,
		`SELECT * FROM letters WHERE user_id = ? AND status != ? ORDER BY created_at DESC LIMIT 1`,
		userID, LetterStatusFailed)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get active letter for user %s: %w", userID, err)
	}
	return &letter, nil
}

// ResetLetter rewrites a FAILED letter's content and returns it to PENDING
// so the user can resubmit without accumulating dead rows.
func (s *Store) ResetLetter(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, content string) error {
	query := `UPDATE letters SET content = ?, status = ?, updated_at = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, content, LetterStatusPending, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to reset letter %s: %w", id, err)
	}
	return nil
}

// UpdateLetterStatus transitions a letter's status.
func (s *Store) UpdateLetterStatus(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, status string) error {
	query := `UPDATE letters SET status = ?, updated_at = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, status, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update letter %s status to %s: %w", id, status, err)
	}
	return nil
}

// --- Letter replies ---

// CreateLetterReply inserts one generated reply row.
func (s *Store) CreateLetterReply(ctx context.Context, q sqlx.ExtContext, reply *LetterReply) error {
	reply.CreatedAt = time.Now().UTC()
	query := `INSERT INTO letter_replies (id, letter_id, future_profile_id, content, chat_status, created_at)
	          VALUES (:id, :letter_id, :future_profile_id, :content, :chat_status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, reply); err != nil {
		return fmt.Errorf("failed to create letter reply for letter %s: %w", reply.LetterID, err)
	}
	return nil
}

// GetLetterReplies retrieves all replies for a letter, oldest first.
func (s *Store) GetLetterReplies(ctx context.Context, letterID uuid.UUID) ([]LetterReply, error) {
	var replies []LetterReply
	err := s.db.SelectContext(ctx, &replies,
		`SELECT * FROM letter_replies WHERE letter_id = ? ORDER BY created_at ASC`, letterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get replies for letter %s: %w", letterID, err)
	}
	return replies, nil
}

// RepliedProfileIDs returns the persona IDs that already hold a reply for
// the letter. The letter worker uses this to make re-delivery idempotent.
func (s *Store) RepliedProfileIDs(ctx context.Context, letterID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := s.db.SelectContext(ctx, &ids,
		`SELECT future_profile_id FROM letter_replies WHERE letter_id = ?`, letterID)
	if err != nil {
		return nil, fmt.Errorf("failed to get replied profiles for letter %s: %w", letterID, err)
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// MarkReplyCompleted flips the persona's reply from NOT_STARTED to
// COMPLETED. Returns false when no row changed (already flipped or missing).
func (s *Store) MarkReplyCompleted(ctx context.Context, q sqlx.ExtContext, futureProfileID uuid.UUID) (bool, error) {
	query := `UPDATE letter_replies SET chat_status = ?
	          WHERE future_profile_id = ? AND chat_status = ?`
	res, err := q.ExecContext(ctx, query, ChatStatusCompleted, futureProfileID, ChatStatusNotStarted)
	if err != nil {
		return false, fmt.Errorf("failed to mark reply completed for profile %s: %w", futureProfileID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

// --- Chat messages ---

// CountUserMessages counts USER-sender rows for a (user, persona) pair. It
// accepts an ExtContext so the chat guard can repeat the check inside the
// commit transaction.
func (s *Store) CountUserMessages(ctx context.Context, q sqlx.ExtContext, userID, futureProfileID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count,
		`SELECT COUNT(id) FROM chat_messages WHERE user_id = ? AND future_profile_id = ? AND sender = ?`,
		userID, futureProfileID, SenderUser)
	if err != nil {
		return 0, fmt.Errorf("failed to count user messages for profile %s: %w", futureProfileID, err)
	}
	return count, nil
}

// InsertChatMessage appends one transcript row.
func (s *Store) InsertChatMessage(ctx context.Context, q sqlx.ExtContext, msg *ChatMessage) error {
	query := `INSERT INTO chat_messages (id, user_id, future_profile_id, sender, content, created_at)
	          VALUES (:id, :user_id, :future_profile_id, :sender, :content, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, msg); err != nil {
		return fmt.Errorf("failed to insert chat message for profile %s: %w", msg.FutureProfileID, err)
	}
	return nil
}

// GetChatHistory retrieves the full transcript for a (user, persona) pair,
// oldest first.
func (s *Store) GetChatHistory(ctx context.Context, userID, futureProfileID uuid.UUID) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := s.db.SelectContext(ctx, &messages,
		`SELECT * FROM chat_messages WHERE user_id = ? AND future_profile_id = ?
		 ORDER BY created_at ASC, id ASC`, userID, futureProfileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history for profile %s: %w", futureProfileID, err)
	}
	return messages, nil
}

// GetAllChatHistory retrieves every transcript row for a user across all
// personas, chronologically. The report worker aggregates over this.
func (s *Store) GetAllChatHistory(ctx context.Context, userID uuid.UUID) ([]ChatMessage, error) {
	var messages []ChatMessage
	err := s.db.SelectContext(ctx, &messages,
		`SELECT * FROM chat_messages WHERE user_id = ? ORDER BY created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history for user %s: %w", userID, err)
	}
	return messages, nil
}

// --- Reports ---

// CreateReport inserts a new report row in GENERATING state.
func (s *Store) CreateReport(ctx context.Context, q sqlx.ExtContext, report *Report) error {
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
	query := `INSERT INTO reports (id, user_id, status, content, created_at, updated_at)
	          VALUES (:id, :user_id, :status, :content, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, report); err != nil {
		return fmt.Errorf("failed to create report for user %s: %w", report.UserID, err)
	}
	return nil
}

// GetReport retrieves a report by ID. Returns nil, nil if not found.
func (s *Store) GetReport(ctx context.Context, id uuid.UUID) (*Report, error) {
	var report Report
	err := s.db.GetContext(ctx, &report, `SELECT * FROM reports WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return &report, nil
}

// GetLatestReport retrieves the user's most recent report of any status.
func (s *Store) GetLatestReport(ctx context.Context, userID uuid.UUID) (*Report, error) {
	var report Report
	err := s.db.GetContext(ctx, &report,
		`SELECT * FROM reports WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get latest report for user %s: %w", userID, err)
	}
	return &report, nil
}

// GetLatestReadyReport retrieves the user's most recent READY report.
func (s *Store) GetLatestReadyReport(ctx context.Context, userID uuid.UUID) (*Report, error) {
	var report Report
	err := s.db.GetContext(ctx, &report,
		`SELECT * FROM reports WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, userID, ReportStatusReady)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get ready report for user %s: %w", userID, err)
	}
	return &report, nil
}

// UpdateReportResult writes the report's terminal status and content.
func (s *Store) UpdateReportResult(ctx context.Context, q sqlx.ExtContext, id uuid.UUID, status, content string) error {
	query := `UPDATE reports SET status = ?, content = ?, updated_at = ? WHERE id = ?`
	if _, err := q.ExecContext(ctx, query, status, content, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update report %s to %s: %w", id, status, err)
	}
	return nil
}

// --- Maintenance ---

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *Store) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

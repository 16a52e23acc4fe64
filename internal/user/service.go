// Package user implements onboarding: anonymous user init, the immutable
// current profile, and future-self persona creation.
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/database"
	"github.com/fsyrachel/FurtureSelf-V1/internal/memory"
)

// MaxFutureProfiles caps how many personas a user can create.
const MaxFutureProfiles = 3

// FutureProfileInput is one persona's raw onboarding answers. The
// description stored on the persona is synthesized from these.
type FutureProfileInput struct {
	ProfileName     string
	FutureValues    string
	FutureVision    string
	FutureObstacles string
}

// Service holds the onboarding operations.
type Service struct {
	store  *database.Store
	memory *memory.Store
	logger *slog.Logger
}

// NewService creates the onboarding service.
func NewService(store *database.Store, mem *memory.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		memory: mem,
		logger: logger.With("component", "user_service"),
	}
}

// Init returns the existing user when a known ID is supplied, otherwise
// creates a fresh anonymous user in ONBOARDING state.
func (s *Service) Init(ctx context.Context, anonymousID uuid.NullUUID) (*database.User, error) {
	if anonymousID.Valid {
		existing, err := s.store.GetUser(ctx, anonymousID.UUID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	user := &database.User{
		ID:     uuid.New(),
		Status: database.UserStatusOnboarding,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "New user created", "user_id", user.ID)
	return user, nil
}

// CreateCurrentProfile stores the questionnaire results. The profile is
// immutable; a second submission is rejected.
func (s *Service) CreateCurrentProfile(ctx context.Context, userID uuid.UUID, demoData, valsData, bfiData string) error {
	existing, err := s.store.GetCurrentProfile(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperr.New(apperr.CodeProfileExists, "current profile already exists")
	}

	profile := &database.CurrentProfile{
		ID:       uuid.New(),
		UserID:   userID,
		DemoData: demoData,
		ValsData: valsData,
		BFIData:  bfiData,
	}
	if err := s.store.CreateCurrentProfile(ctx, s.store.DB(), profile); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Current profile saved", "user_id", userID)
	return nil
}

// CreateFutureProfiles creates all personas in one transaction, writes each
// persona's memory chunk (fail-closed; an embedding failure rolls everything
// back), and activates the user. Personas can only be created once.
func (s *Service) CreateFutureProfiles(ctx context.Context, userID uuid.UUID, inputs []FutureProfileInput) ([]database.FutureProfile, error) {
	if len(inputs) == 0 || len(inputs) > MaxFutureProfiles {
		return nil, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("between 1 and %d future profiles required", MaxFutureProfiles))
	}

	existing, err := s.store.GetFutureProfiles(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, apperr.New(apperr.CodeProfilesExist, "future profiles already exist")
	}

	created := make([]database.FutureProfile, 0, len(inputs))
	err = database.WithTx(ctx, s.store.DB(), func(tx *sqlx.Tx) error {
		for _, input := range inputs {
			profile := &database.FutureProfile{
				ID:          uuid.New(),
				UserID:      userID,
				ProfileName: input.ProfileName,
				Description: synthesizeDescription(input),
			}
			if err := s.store.CreateFutureProfile(ctx, tx, profile); err != nil {
				return err
			}
			if err := s.memory.WriteProfileMemory(ctx, tx, userID, profile.ID, profile.Description); err != nil {
				return err
			}
			created = append(created, *profile)
		}
		return s.store.UpdateUserStatus(ctx, tx, userID, database.UserStatusActive)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Future profiles saved, user activated", "user_id", userID, "count", len(created))
	return created, nil
}

// synthesizeDescription folds the persona's onboarding answers into the
// description text used by prompts and the memory store.
func synthesizeDescription(input FutureProfileInput) string {
	return strings.TrimSpace(fmt.Sprintf(`# My Core Values
%s
# My Vision
%s
# My Obstacles
%s`, input.FutureValues, input.FutureVision, input.FutureObstacles))
}

package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
	"github.com/fsyrachel/FurtureSelf-V1/internal/user"
)

type initUserRequest struct {
	AnonymousUserID string `json:"anonymous_user_id"`
}

type initUserResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"`
}

func (h *Handler) initUser(w http.ResponseWriter, r *http.Request) {
	// Body is optional on first contact.
	var req initUserRequest
	_ = decodeLenient(r, &req)

	var anonymousID uuid.NullUUID
	if req.AnonymousUserID != "" {
		id, err := uuid.Parse(req.AnonymousUserID)
		if err != nil {
			Error(w, http.StatusBadRequest, apperr.CodeValidation, "invalid anonymous_user_id")
			return
		}
		anonymousID = uuid.NullUUID{UUID: id, Valid: true}
	}

	u, err := h.users.Init(r.Context(), anonymousID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, initUserResponse{UserID: u.ID, Status: u.Status})
}

type currentProfileRequest struct {
	DemoData string `json:"demo_data" validate:"required"`
	ValsData string `json:"vals_data" validate:"required"`
	BFIData  string `json:"bfi_data"  validate:"required"`
}

func (h *Handler) createCurrentProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	var req currentProfileRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.users.CreateCurrentProfile(r.Context(), userID, req.DemoData, req.ValsData, req.BFIData); err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "CURRENT_PROFILE_SAVED"})
}

type futureProfileItem struct {
	ProfileName     string `json:"profile_name"     validate:"required"`
	FutureValues    string `json:"future_values"    validate:"required"`
	FutureVision    string `json:"future_vision"    validate:"required"`
	FutureObstacles string `json:"future_obstacles" validate:"required"`
}

type futureProfilesRequest struct {
	Profiles []futureProfileItem `json:"profiles" validate:"required,min=1,max=3,dive"`
}

type createdProfileInfo struct {
	FutureProfileID uuid.UUID `json:"future_profile_id"`
	ProfileName     string    `json:"profile_name"`
	CreatedAt       time.Time `json:"created_at"`
}

type futureProfilesResponse struct {
	Status          string               `json:"status"`
	UserID          uuid.UUID            `json:"user_id"`
	CreatedProfiles []createdProfileInfo `json:"created_profiles"`
}

func (h *Handler) createFutureProfiles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	var req futureProfilesRequest
	if !h.decode(w, r, &req) {
		return
	}

	inputs := make([]user.FutureProfileInput, len(req.Profiles))
	for i, p := range req.Profiles {
		inputs[i] = user.FutureProfileInput{
			ProfileName:     p.ProfileName,
			FutureValues:    p.FutureValues,
			FutureVision:    p.FutureVision,
			FutureObstacles: p.FutureObstacles,
		}
	}

	created, err := h.users.CreateFutureProfiles(r.Context(), userID, inputs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	infos := make([]createdProfileInfo, len(created))
	for i, p := range created {
		infos[i] = createdProfileInfo{FutureProfileID: p.ID, ProfileName: p.ProfileName, CreatedAt: p.CreatedAt}
	}
	JSON(w, http.StatusOK, futureProfilesResponse{Status: "ACTIVE", UserID: userID, CreatedProfiles: infos})
}

package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

type submitLetterRequest struct {
	Content string `json:"content" validate:"required,min=1,max=20000"`
}

type submitLetterResponse struct {
	LetterID uuid.UUID `json:"letter_id"`
	Status   string    `json:"status"`
}

func (h *Handler) submitLetter(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	var req submitLetterRequest
	if !h.decode(w, r, &req) {
		return
	}

	l, err := h.letters.Submit(r.Context(), userID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusAccepted, submitLetterResponse{LetterID: l.ID, Status: "SUBMITTED"})
}

func (h *Handler) letterStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	status, err := h.letters.Status(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": status})
}

type letterReplyView struct {
	ReplyID         uuid.UUID `json:"reply_id"`
	FutureProfileID uuid.UUID `json:"future_profile_id"`
	Content         string    `json:"content"`
	ChatStatus      string    `json:"chat_status"`
	CreatedAt       time.Time `json:"created_at"`
}

type inboxResponse struct {
	LetterID      uuid.UUID         `json:"letter_id"`
	LetterContent string            `json:"letter_content"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	Replies       []letterReplyView `json:"replies"`
}

func (h *Handler) latestInbox(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	inbox, err := h.letters.LatestInbox(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	replies := make([]letterReplyView, len(inbox.Replies))
	for i, reply := range inbox.Replies {
		replies[i] = letterReplyView{
			ReplyID:         reply.ID,
			FutureProfileID: reply.FutureProfileID,
			Content:         reply.Content,
			ChatStatus:      reply.ChatStatus,
			CreatedAt:       reply.CreatedAt,
		}
	}
	JSON(w, http.StatusOK, inboxResponse{
		LetterID:      inbox.Letter.ID,
		LetterContent: inbox.Letter.Content,
		Status:        inbox.Letter.Status,
		CreatedAt:     inbox.Letter.CreatedAt,
		Replies:       replies,
	})
}

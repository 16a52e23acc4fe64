package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fsyrachel/FurtureSelf-V1/internal/apperr"
)

type chatMessageView struct {
	MessageID uuid.UUID `json:"message_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) futureProfileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "futureProfileID"))
	if err != nil {
		Error(w, http.StatusBadRequest, apperr.CodeValidation, "invalid future profile id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) chatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	profileID, ok := h.futureProfileID(w, r)
	if !ok {
		return
	}

	turns, err := h.chats.History(r.Context(), userID, profileID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]chatMessageView, len(turns))
	for i, t := range turns {
		views[i] = chatMessageView{MessageID: t.ID, Sender: t.Sender, Content: t.Content, CreatedAt: t.CreatedAt}
	}
	JSON(w, http.StatusOK, views)
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,min=1,max=4000"`
}

func (h *Handler) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}
	profileID, ok := h.futureProfileID(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	turn, err := h.chats.SendTurn(r.Context(), userID, profileID, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, chatMessageView{
		MessageID: turn.ID,
		Sender:    turn.Sender,
		Content:   turn.Content,
		CreatedAt: turn.CreatedAt,
	})
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// GET /api/v1/chat/messages returns the caller's own thread.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Chat.ListMessages(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message      string  `json:"message"`
		SpecialistID *string `json:"specialist_id"`
	}
	if !decode(w, r, "api.SendMessage", &req) {
		return
	}
	msg, err := h.svc.Chat.SendMessage(r.Context(), userID(r), req.Message, req.SpecialistID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/v1/chat/read {"ids": [...]}
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decode(w, r, "api.MarkRead", &req) {
		return
	}
	n, err := h.svc.Chat.MarkRead(r.Context(), userID(r), req.IDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.svc.Chat.Inbox(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// POST /api/v1/chat/threads/{userID}/reply
func (h *Handler) Reply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if !decode(w, r, "api.Reply", &req) {
		return
	}
	msg, err := h.svc.Chat.Reply(r.Context(), userID(r), mux.Vars(r)["userID"], req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.Community.ListPosts(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// POST /api/v1/posts {"content": "...", "image": "..."}
func (h *Handler) AddPost(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string  `json:"content"`
		Image   *string `json:"image"`
	}
	if !decode(w, r, "api.AddPost", &req) {
		return
	}
	post, err := h.svc.Community.AddPost(r.Context(), userID(r), req.Content, req.Image)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Community.DeletePost(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	liked, likes, err := h.svc.Community.ToggleLike(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"liked": liked, "likes": likes})
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.svc.Community.ListComments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if !decode(w, r, "api.AddComment", &req) {
		return
	}
	comment, err := h.svc.Community.AddComment(r.Context(), userID(r), mux.Vars(r)["id"], req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

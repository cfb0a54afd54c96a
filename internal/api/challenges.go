package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/reconectar/internal/apperr"
)

const defaultSearchLimit = 5

// GET /api/v1/challenges/catalog
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.Challenges.Templates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

// GET /api/v1/challenges/search?q=&limit=
func (h *Handler) SearchChallenges(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("api.SearchChallenges", "limit must be a positive number"))
			return
		}
		limit = n
	}

	found, err := h.svc.Challenges.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handler) ActiveChallenges(w http.ResponseWriter, r *http.Request) {
	active, err := h.svc.Challenges.Active(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, active)
}

func (h *Handler) CompletedChallenges(w http.ResponseWriter, r *http.Request) {
	completed, err := h.svc.Challenges.Completed(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completed)
}

// POST /api/v1/challenges {"template_id": "..."}
func (h *Handler) StartChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if !decode(w, r, "api.StartChallenge", &req) {
		return
	}
	c, err := h.svc.Challenges.Start(r.Context(), userID(r), req.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// POST /api/v1/challenges/{id}/toggle {"date": "2006-01-02"}
func (h *Handler) ToggleDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if !decode(w, r, "api.ToggleDay", &req) {
		return
	}
	c, ok, err := h.svc.Challenges.Toggle(r.Context(), userID(r), mux.Vars(r)["id"], req.Date)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"changed": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"changed": true, "challenge": c})
}

// POST /api/v1/challenges/{id}/complete
func (h *Handler) CompleteChallenge(w http.ResponseWriter, r *http.Request) {
	xp, p, err := h.svc.Challenges.Complete(r.Context(), userID(r), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, map[string]int{"xp": 0})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"xp": xp, "profile": p})
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/reconectar/internal/models"
)

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Admin.ListUsers(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// POST /api/v1/admin/users/{id}/block {"reason": "..."}
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 && !decode(w, r, "api.BlockUser", &req) {
		return
	}
	block, err := h.svc.Admin.BlockUser(r.Context(), userID(r), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Admin.UnblockUser(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PATCH /api/v1/admin/users/{id}/profile accepts every profile field,
// including lowering level and xp.
func (h *Handler) CorrectProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if !decode(w, r, "api.CorrectProfile", &patch) {
		return
	}
	p, err := h.svc.Admin.CorrectProfile(r.Context(), userID(r), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role models.Role `json:"role"`
	}
	if !decode(w, r, "api.GrantRole", &req) {
		return
	}
	if err := h.svc.Admin.GrantRole(r.Context(), userID(r), mux.Vars(r)["id"], req.Role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.svc.Admin.RevokeRole(r.Context(), userID(r), vars["id"], models.Role(vars["role"])); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateCatalogChallenge(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCatalogChallengeRequest
	if !decode(w, r, "api.CreateCatalogChallenge", &req) {
		return
	}
	row, err := h.svc.Admin.CreateCatalogChallenge(r.Context(), userID(r), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *Handler) DeleteCatalogChallenge(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Admin.DeleteCatalogChallenge(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"io"
	"net/http"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/models"
)

// profileUpdate is the subset of the profile a user may edit. Gamification
// fields only move through challenges or admin correction.
type profileUpdate struct {
	Name   *string `json:"name"`
	Bio    *string `json:"bio"`
	Avatar *string `json:"avatar"`
}

// GET /api/v1/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	p, err := h.svc.Profiles.Get(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	roles, err := h.svc.Roles.Roles(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"profile": p, "roles": roles})
}

// PATCH /api/v1/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileUpdate
	if !decode(w, r, "api.UpdateProfile", &req) {
		return
	}
	p, err := h.svc.Profiles.Update(r.Context(), userID(r), models.ProfilePatch{
		Name:   req.Name,
		Bio:    req.Bio,
		Avatar: req.Avatar,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PUT /api/v1/profile/avatar with the raw image as body.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, h.opts.MaxUploadBytes+1))
	if err != nil {
		writeError(w, apperr.Validation("api.UploadAvatar", "failed to read image"))
		return
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		writeError(w, apperr.Validation("api.UploadAvatar", "image is too large"))
		return
	}

	p, err := h.svc.Profiles.SetAvatar(r.Context(), userID(r), data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/v1/profile/detox-day
func (h *Handler) DetoxDay(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Profiles.IncrementDetoxDays(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// POST /api/v1/profile/password
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req models.PasswordChangeRequest
	if !decode(w, r, "api.ChangePassword", &req) {
		return
	}
	if err := h.svc.Users.ChangePassword(r.Context(), userID(r), &req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

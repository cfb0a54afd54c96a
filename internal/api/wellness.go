package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/reconectar/internal/models"
)

func (h *Handler) AppLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := h.svc.Wellness.AppLimits(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

func (h *Handler) AddAppLimit(w http.ResponseWriter, r *http.Request) {
	var req models.AppLimit
	if !decode(w, r, "api.AddAppLimit", &req) {
		return
	}
	limit, err := h.svc.Wellness.AddAppLimit(r.Context(), userID(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, limit)
}

// PATCH /api/v1/wellness/limits/{id} {"dailyLimit": 30}
func (h *Handler) UpdateAppLimit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DailyLimit int `json:"dailyLimit"`
	}
	if !decode(w, r, "api.UpdateAppLimit", &req) {
		return
	}
	limit, err := h.svc.Wellness.UpdateAppLimit(r.Context(), userID(r), mux.Vars(r)["id"], req.DailyLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limit)
}

func (h *Handler) RemoveAppLimit(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Wellness.RemoveAppLimit(r.Context(), userID(r), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.svc.Wellness.Usage(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// POST /api/v1/wellness/usage {"date": "2006-01-02", "appId": "...", "minutes": 10}
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date    string `json:"date"`
		AppID   string `json:"appId"`
		Minutes int    `json:"minutes"`
	}
	if !decode(w, r, "api.RecordUsage", &req) {
		return
	}
	day, err := h.svc.Wellness.RecordUsage(r.Context(), userID(r), req.Date, req.AppID, req.Minutes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (h *Handler) WeeklyReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Wellness.WeeklyReport(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

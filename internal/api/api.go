package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/auth"
	"github.com/tahcohcat/reconectar/internal/metrics"
	"github.com/tahcohcat/reconectar/internal/realtime"
	"github.com/tahcohcat/reconectar/internal/services"
	"github.com/tahcohcat/reconectar/internal/state"
)

// Services bundles the domain services the handlers call into.
type Services struct {
	Users      *services.UserService
	Roles      *services.RoleService
	Profiles   *services.ProfileService
	Challenges *services.ChallengeService
	Community  *services.CommunityService
	Chat       *services.ChatService
	Wellness   *services.WellnessService
	Admin      *services.AdminService
}

type Options struct {
	// MaxUploadBytes caps request bodies for avatar uploads before validation.
	MaxUploadBytes int64
	Retry          state.RetryPolicy
	// AllowedOrigins may open live views from another host.
	AllowedOrigins []string
}

type Handler struct {
	svc      Services
	broker   state.Subscriber
	metrics  *metrics.Metrics
	upgrader *realtime.Upgrader
	opts     Options
}

func NewHandler(svc Services, broker state.Subscriber, m *metrics.Metrics, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 8 << 20
	}
	return &Handler{
		svc:      svc,
		broker:   broker,
		metrics:  m,
		upgrader: realtime.NewUpgrader(opts.AllowedOrigins),
		opts:     opts,
	}
}

// RegisterRoutes mounts the account endpoints, the JSON API under /api/v1
// and the live views under /ws on r. The auth middleware must already wrap r.
func RegisterRoutes(r *mux.Router, h *Handler, am *auth.Manager) {
	r.HandleFunc("/auth/register", am.RegisterHandler).Methods("POST")
	r.HandleFunc("/auth/login", am.LoginHandler).Methods("POST")
	r.HandleFunc("/auth/logout", am.LogoutHandler).Methods("POST")
	r.Handle("/auth/me", auth.Require(http.HandlerFunc(am.MeHandler))).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(auth.Require)

	v1.HandleFunc("/profile", h.GetProfile).Methods("GET")
	v1.HandleFunc("/profile", h.UpdateProfile).Methods("PATCH")
	v1.HandleFunc("/profile/avatar", h.UploadAvatar).Methods("PUT")
	v1.HandleFunc("/profile/detox-day", h.DetoxDay).Methods("POST")
	v1.HandleFunc("/profile/password", h.ChangePassword).Methods("POST")

	v1.HandleFunc("/challenges/catalog", h.Catalog).Methods("GET")
	v1.HandleFunc("/challenges/search", h.SearchChallenges).Methods("GET")
	v1.HandleFunc("/challenges/active", h.ActiveChallenges).Methods("GET")
	v1.HandleFunc("/challenges/completed", h.CompletedChallenges).Methods("GET")
	v1.HandleFunc("/challenges", h.StartChallenge).Methods("POST")
	v1.HandleFunc("/challenges/{id}/toggle", h.ToggleDay).Methods("POST")
	v1.HandleFunc("/challenges/{id}/complete", h.CompleteChallenge).Methods("POST")

	v1.HandleFunc("/posts", h.ListPosts).Methods("GET")
	v1.HandleFunc("/posts", h.AddPost).Methods("POST")
	v1.HandleFunc("/posts/{id}", h.DeletePost).Methods("DELETE")
	v1.HandleFunc("/posts/{id}/like", h.ToggleLike).Methods("POST")
	v1.HandleFunc("/posts/{id}/comments", h.ListComments).Methods("GET")
	v1.HandleFunc("/posts/{id}/comments", h.AddComment).Methods("POST")

	v1.HandleFunc("/chat/messages", h.ListMessages).Methods("GET")
	v1.HandleFunc("/chat/messages", h.SendMessage).Methods("POST")
	v1.HandleFunc("/chat/read", h.MarkRead).Methods("POST")
	v1.HandleFunc("/chat/inbox", h.Inbox).Methods("GET")
	v1.HandleFunc("/chat/threads/{userID}/reply", h.Reply).Methods("POST")

	v1.HandleFunc("/wellness/limits", h.AppLimits).Methods("GET")
	v1.HandleFunc("/wellness/limits", h.AddAppLimit).Methods("POST")
	v1.HandleFunc("/wellness/limits/{id}", h.UpdateAppLimit).Methods("PATCH")
	v1.HandleFunc("/wellness/limits/{id}", h.RemoveAppLimit).Methods("DELETE")
	v1.HandleFunc("/wellness/usage", h.Usage).Methods("GET")
	v1.HandleFunc("/wellness/usage", h.RecordUsage).Methods("POST")
	v1.HandleFunc("/wellness/report", h.WeeklyReport).Methods("GET")

	v1.HandleFunc("/admin/users", h.ListUsers).Methods("GET")
	v1.HandleFunc("/admin/users/{id}/block", h.BlockUser).Methods("POST")
	v1.HandleFunc("/admin/users/{id}/block", h.UnblockUser).Methods("DELETE")
	v1.HandleFunc("/admin/users/{id}/profile", h.CorrectProfile).Methods("PATCH")
	v1.HandleFunc("/admin/users/{id}/roles", h.GrantRole).Methods("POST")
	v1.HandleFunc("/admin/users/{id}/roles/{role}", h.RevokeRole).Methods("DELETE")
	v1.HandleFunc("/admin/challenges", h.CreateCatalogChallenge).Methods("POST")
	v1.HandleFunc("/admin/challenges/{id}", h.DeleteCatalogChallenge).Methods("DELETE")

	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(auth.Require)
	ws.HandleFunc("/feed", h.LiveFeed)
	ws.HandleFunc("/chat", h.LiveChat)
	ws.HandleFunc("/inbox", h.LiveInbox)
	ws.HandleFunc("/challenges", h.LiveChallenges)
}

func userID(r *http.Request) string {
	return auth.SessionFromRequest(r).UserID
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	auth.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, op string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperr.Validation(op, "invalid request body"))
		return false
	}
	return true
}

// changed lists the tables a view depends on, for every user.
func changed(tables ...string) []realtime.Topic {
	topics := make([]realtime.Topic, 0, len(tables))
	for _, t := range tables {
		topics = append(topics, realtime.Topic{Table: t})
	}
	return topics
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/challenge"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
	"github.com/tahcohcat/reconectar/internal/state"
)

// liveAction is an inbound frame on a live view. Only the fields of the named
// action are read.
type liveAction struct {
	Action      string   `json:"action"`
	PostID      string   `json:"post_id"`
	Content     string   `json:"content"`
	Image       *string  `json:"image"`
	Message     string   `json:"message"`
	UserID      string   `json:"user_id"`
	IDs         []string `json:"ids"`
	TemplateID  string   `json:"template_id"`
	ChallengeID string   `json:"challenge_id"`
	Date        string   `json:"date"`
}

// liveRejection is sent back when an action fails. The view itself is
// re-sent by the re-fetch that follows every write.
type liveRejection struct {
	Action   string `json:"action"`
	Rejected struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"rejected"`
}

// A mutation is the optimistic edit and the write for one action. A nil
// optimistic func skips the local edit.
type mutation[T any] struct {
	optimistic func(T) T
	write      func(ctx context.Context) error
}

// mutations maps an action to its mutation for the signed-in uid. ok is
// false for actions the view does not know.
type mutations[T any] func(uid string, act liveAction) (m mutation[T], ok bool)

// GET /ws/feed streams the community feed as seen by the caller.
// Actions: like, post, comment.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	serveLive(h, w, r, state.Config[[]models.PostView]{
		Name:  "feed",
		Fetch: h.svc.Community.ListPosts,
		Topics: func(string) []realtime.Topic {
			return changed(realtime.TableCommunityPosts, realtime.TablePostLikes,
				realtime.TablePostComments, realtime.TableProfiles, realtime.TableUserRoles)
		},
		Zero: func() []models.PostView { return []models.PostView{} },
	}, h.feedMutations)
}

func (h *Handler) feedMutations(uid string, act liveAction) (mutation[[]models.PostView], bool) {
	community := h.svc.Community
	switch act.Action {
	case "like":
		return mutation[[]models.PostView]{
			optimistic: func(posts []models.PostView) []models.PostView {
				return likeFlipped(posts, act.PostID)
			},
			write: func(ctx context.Context) error {
				_, _, err := community.ToggleLike(ctx, uid, act.PostID)
				return err
			},
		}, true
	case "post":
		return mutation[[]models.PostView]{write: func(ctx context.Context) error {
			_, err := community.AddPost(ctx, uid, act.Content, act.Image)
			return err
		}}, true
	case "comment":
		return mutation[[]models.PostView]{
			optimistic: func(posts []models.PostView) []models.PostView {
				return edited(posts, act.PostID, func(p *models.PostView) { p.Comments++ })
			},
			write: func(ctx context.Context) error {
				_, err := community.AddComment(ctx, uid, act.PostID, act.Content)
				return err
			},
		}, true
	}
	return mutation[[]models.PostView]{}, false
}

func likeFlipped(posts []models.PostView, postID string) []models.PostView {
	return edited(posts, postID, func(p *models.PostView) {
		if p.LikedByUser {
			p.Likes = max(p.Likes-1, 0)
		} else {
			p.Likes++
		}
		p.LikedByUser = !p.LikedByUser
	})
}

// edited returns a copy of posts with fn applied to postID.
func edited(posts []models.PostView, postID string, fn func(*models.PostView)) []models.PostView {
	out := make([]models.PostView, len(posts))
	copy(out, posts)
	for i := range out {
		if out[i].ID == postID {
			fn(&out[i])
		}
	}
	return out
}

// GET /ws/chat streams the caller's own thread. Actions: send.
func (h *Handler) LiveChat(w http.ResponseWriter, r *http.Request) {
	serveLive(h, w, r, state.Config[[]models.ChatMessage]{
		Name:  "chat",
		Fetch: h.svc.Chat.ListMessages,
		Topics: func(uid string) []realtime.Topic {
			return []realtime.Topic{{Table: realtime.TableChatMessages, UserID: uid}}
		},
		Zero: func() []models.ChatMessage { return []models.ChatMessage{} },
	}, h.chatMutations)
}

func (h *Handler) chatMutations(uid string, act liveAction) (mutation[[]models.ChatMessage], bool) {
	if act.Action != "send" {
		return mutation[[]models.ChatMessage]{}, false
	}
	return mutation[[]models.ChatMessage]{
		optimistic: func(msgs []models.ChatMessage) []models.ChatMessage {
			// ListMessages is oldest first
			return append(append([]models.ChatMessage{}, msgs...), models.ChatMessage{
				UserID:     uid,
				Message:    act.Message,
				IsFromUser: true,
				CreatedAt:  time.Now().UTC(),
			})
		},
		write: func(ctx context.Context) error {
			_, err := h.svc.Chat.SendMessage(ctx, uid, act.Message, nil)
			return err
		},
	}, true
}

// GET /ws/inbox streams the specialist inbox. Actions: reply, read.
func (h *Handler) LiveInbox(w http.ResponseWriter, r *http.Request) {
	serveLive(h, w, r, state.Config[[]models.InboxMessage]{
		Name:  "inbox",
		Fetch: h.svc.Chat.Inbox,
		Topics: func(string) []realtime.Topic {
			return changed(realtime.TableChatMessages, realtime.TableProfiles)
		},
		Zero: func() []models.InboxMessage { return []models.InboxMessage{} },
	}, h.inboxMutations)
}

func (h *Handler) inboxMutations(uid string, act liveAction) (mutation[[]models.InboxMessage], bool) {
	chat := h.svc.Chat
	switch act.Action {
	case "reply":
		return mutation[[]models.InboxMessage]{write: func(ctx context.Context) error {
			_, err := chat.Reply(ctx, uid, act.UserID, act.Message)
			return err
		}}, true
	case "read":
		return mutation[[]models.InboxMessage]{
			optimistic: func(msgs []models.InboxMessage) []models.InboxMessage {
				ids := make(map[string]bool, len(act.IDs))
				for _, id := range act.IDs {
					ids[id] = true
				}
				out := make([]models.InboxMessage, len(msgs))
				copy(out, msgs)
				for i := range out {
					if ids[out[i].ID] {
						out[i].Read = true
					}
				}
				return out
			},
			write: func(ctx context.Context) error {
				_, err := chat.MarkRead(ctx, uid, act.IDs)
				return err
			},
		}, true
	}
	return mutation[[]models.InboxMessage]{}, false
}

// GET /ws/challenges streams the caller's active and completed challenges.
// Actions: start, toggle, complete.
func (h *Handler) LiveChallenges(w http.ResponseWriter, r *http.Request) {
	serveLive(h, w, r, state.Config[challenge.State]{
		Name:  "challenges",
		Fetch: h.svc.Challenges.State,
		Topics: func(uid string) []realtime.Topic {
			return []realtime.Topic{{
				Table:  realtime.TableLocalState,
				UserID: uid,
				Types:  []realtime.EventType{realtime.EventUpdate},
			}}
		},
		Zero: func() challenge.State {
			return challenge.State{Active: []challenge.Challenge{}, Completed: []challenge.CompletedChallenge{}}
		},
	}, h.challengeMutations)
}

func (h *Handler) challengeMutations(uid string, act liveAction) (mutation[challenge.State], bool) {
	challenges := h.svc.Challenges
	switch act.Action {
	case "start":
		return mutation[challenge.State]{write: func(ctx context.Context) error {
			_, err := challenges.Start(ctx, uid, act.TemplateID)
			return err
		}}, true
	case "toggle":
		return mutation[challenge.State]{
			optimistic: func(st challenge.State) challenge.State {
				return taskFlipped(st, act.ChallengeID, act.Date)
			},
			write: func(ctx context.Context) error {
				_, _, err := challenges.Toggle(ctx, uid, act.ChallengeID, act.Date)
				return err
			},
		}, true
	case "complete":
		return mutation[challenge.State]{write: func(ctx context.Context) error {
			_, _, err := challenges.Complete(ctx, uid, act.ChallengeID)
			return err
		}}, true
	}
	return mutation[challenge.State]{}, false
}

// taskFlipped flips one task's done flag in a copy of st. Progress is left
// to the re-fetch.
func taskFlipped(st challenge.State, challengeID, date string) challenge.State {
	active := make([]challenge.Challenge, len(st.Active))
	copy(active, st.Active)
	for i := range active {
		if active[i].ID != challengeID {
			continue
		}
		tasks := make([]challenge.DailyTask, len(active[i].DailyTasks))
		copy(tasks, active[i].DailyTasks)
		for j := range tasks {
			if tasks[j].Date == date {
				tasks[j].Completed = !tasks[j].Completed
			}
		}
		active[i].DailyTasks = tasks
	}
	return challenge.State{Active: active, Completed: st.Completed}
}

// serveLive upgrades the request, mounts one adapter for the connection and
// pushes every view to the peer until it disconnects. Inbound action frames
// go through the adapter's Mutate; {"action":"sync"} re-sends the last view.
func serveLive[T any](h *Handler, w http.ResponseWriter, r *http.Request, cfg state.Config[T], muts mutations[T]) {
	uid := userID(r)
	client, err := h.upgrader.Upgrade(w, r)
	if err != nil {
		// the upgrader already replied
		logger.New().WithError(err).With("view", cfg.Name).Warn("Websocket upgrade failed")
		return
	}
	defer client.Close()

	if h.metrics != nil {
		release := h.metrics.ViewOpened(cfg.Name)
		defer release()
	}

	cfg.Retry = h.opts.Retry
	cfg.OnChange = func(v state.View[T]) {
		if !client.Send(v) {
			logger.New().With("view", cfg.Name).With("user_id", uid).Debug("Dropped live view frame")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-client.Done()
		cancel()
	}()

	adapter := state.New(h.broker, cfg)
	defer adapter.Unmount()

	// frames queue until the write pump starts
	if err := adapter.Mount(ctx, uid); err != nil {
		logger.New().WithError(err).With("view", cfg.Name).With("user_id", uid).Warn("Live view hydrate failed")
	}

	client.Serve(func(data []byte) {
		var act liveAction
		if err := json.Unmarshal(data, &act); err != nil {
			client.Send(rejection("", apperr.Validation("api.LiveAction", "invalid action frame")))
			return
		}
		if act.Action == "sync" {
			client.Send(adapter.Snapshot())
			return
		}

		mounted := adapter.UserID()
		if mounted == "" {
			client.Send(rejection(act.Action, apperr.Unauthenticated("api.LiveAction")))
			return
		}
		m, ok := muts(mounted, act)
		if !ok {
			client.Send(rejection(act.Action, apperr.Validation("api.LiveAction", "unknown action")))
			return
		}
		if err := adapter.Mutate(ctx, m.optimistic, m.write); err != nil {
			logger.New().WithError(err).With("view", cfg.Name).With("action", act.Action).
				With("user_id", mounted).Debug("Live action failed")
			client.Send(rejection(act.Action, err))
		}
	})
}

func rejection(action string, err error) liveRejection {
	out := liveRejection{Action: action}
	out.Rejected.Kind = string(apperr.KindOf(err))
	out.Rejected.Message = apperr.MessageOf(err)
	return out
}

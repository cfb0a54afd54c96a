// Package realtime fans row-level change notifications out to subscribers.
package realtime

import (
	"context"
	"sync"

	"github.com/tahcohcat/reconectar/internal/logger"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Tables that publish change events.
const (
	TableProfiles       = "profiles"
	TableUserRoles      = "user_roles"
	TableChatMessages   = "chat_messages"
	TableCommunityPosts = "community_posts"
	TablePostLikes      = "post_likes"
	TablePostComments   = "post_comments"
	TableUserBlocks     = "user_blocks"
	TableChallenges     = "challenges"
	TableLocalState     = "local_state"
)

// ChangeEvent signals that a row changed. UserID is the account the row
// belongs to, when there is one.
type ChangeEvent struct {
	Table  string    `json:"table"`
	Type   EventType `json:"type"`
	RowID  string    `json:"row_id"`
	UserID string    `json:"user_id,omitempty"`
}

// Topic selects events. An empty UserID matches every row of the table and an
// empty Table matches nothing.
type Topic struct {
	Table  string `json:"table"`
	UserID string `json:"user_id,omitempty"`
	// Types limits the event types delivered; empty means all.
	Types []EventType `json:"types,omitempty"`
}

func (t Topic) matches(e ChangeEvent) bool {
	if t.Table == "" || t.Table != e.Table {
		return false
	}
	if t.UserID != "" && t.UserID != e.UserID {
		return false
	}
	if len(t.Types) == 0 {
		return true
	}
	for _, typ := range t.Types {
		if typ == e.Type {
			return true
		}
	}
	return false
}

// Publisher is what write paths depend on.
type Publisher interface {
	Publish(e ChangeEvent)
}

const subscriptionBuffer = 16

// Subscription delivers matching events until Close is called.
type Subscription struct {
	broker *Broker
	topic  Topic
	send   chan ChangeEvent
	once   sync.Once
}

// C returns the event channel. It is closed after Close or broker shutdown.
func (s *Subscription) C() <-chan ChangeEvent {
	return s.send
}

func (s *Subscription) Topic() Topic {
	return s.topic
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		select {
		case s.broker.unregister <- s:
		case <-s.broker.done:
		}
	})
}

// Broker owns the subscription set. Run must be running for Subscribe,
// Publish and Close to make progress.
type Broker struct {
	subs       map[*Subscription]bool
	publish    chan ChangeEvent
	register   chan *Subscription
	unregister chan *Subscription
	count      chan chan int
	done       chan struct{}
	log        *logger.Log
}

func NewBroker() *Broker {
	return &Broker{
		subs:       make(map[*Subscription]bool),
		publish:    make(chan ChangeEvent),
		register:   make(chan *Subscription),
		unregister: make(chan *Subscription),
		count:      make(chan chan int),
		done:       make(chan struct{}),
		log:        logger.New().With("component", "realtime"),
	}
}

// Run dispatches until ctx is cancelled, then closes every subscription.
func (b *Broker) Run(ctx context.Context) {
	defer func() {
		close(b.done)
		for sub := range b.subs {
			delete(b.subs, sub)
			close(sub.send)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case sub := <-b.register:
			b.subs[sub] = true
			b.log.With("table", sub.topic.Table).With("total", len(b.subs)).Debug("Subscription opened")

		case sub := <-b.unregister:
			if _, ok := b.subs[sub]; ok {
				delete(b.subs, sub)
				close(sub.send)
				b.log.With("table", sub.topic.Table).With("total", len(b.subs)).Debug("Subscription closed")
			}

		case e := <-b.publish:
			for sub := range b.subs {
				if !sub.topic.matches(e) {
					continue
				}
				select {
				case sub.send <- e:
				default:
					// subscriber already has pending signals; it re-fetches on the next one
				}
			}

		case reply := <-b.count:
			reply <- len(b.subs)
		}
	}
}

// Subscribe registers a subscription for topic.
func (b *Broker) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{broker: b, topic: topic, send: make(chan ChangeEvent, subscriptionBuffer)}
	select {
	case b.register <- sub:
	case <-b.done:
		close(sub.send)
		sub.once.Do(func() {})
	}
	return sub
}

// Publish hands e to the dispatch loop. It returns immediately once the
// broker has stopped.
func (b *Broker) Publish(e ChangeEvent) {
	select {
	case b.publish <- e:
	case <-b.done:
	}
}

// Subscribers reports the number of open subscriptions.
func (b *Broker) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
		return <-reply
	case <-b.done:
		return 0
	}
}

// Package state keeps a view-model in sync with the row store for one
// signed-in identity. An Adapter hydrates once on Mount, re-fetches whenever
// a subscribed table changes, and re-fetches after every write so the store
// always wins over optimistic local edits.
package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/logger"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

// View is what consumers render.
type View[T any] struct {
	Data    T
	Loading bool
	Err     error
}

func (v View[T]) MarshalJSON() ([]byte, error) {
	out := struct {
		Data    T      `json:"data"`
		Loading bool   `json:"loading"`
		Error   string `json:"error,omitempty"`
	}{Data: v.Data, Loading: v.Loading}
	if v.Err != nil {
		out.Error = apperr.MessageOf(v.Err)
	}
	return json.Marshal(out)
}

// Subscriber is satisfied by *realtime.Broker.
type Subscriber interface {
	Subscribe(topic realtime.Topic) *realtime.Subscription
}

type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var DefaultRetry = RetryPolicy{MaxTries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second}

type Config[T any] struct {
	Name string
	// Fetch loads the authoritative view-model for userID.
	Fetch func(ctx context.Context, userID string) (T, error)
	// Topics lists the tables to watch for userID.
	Topics func(userID string) []realtime.Topic
	// Zero builds the empty view-model. Defaults to the zero value of T.
	Zero  func() T
	Retry RetryPolicy
	// OnChange is called with every new view, serialized.
	OnChange func(View[T])
}

type Adapter[T any] struct {
	cfg    Config[T]
	broker Subscriber
	log    *logger.Log

	mu      sync.Mutex
	userID  string
	mounted bool
	view    View[T]
	subs    []*realtime.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// serializes fetch+publish so views are delivered in order
	refreshMu sync.Mutex
}

func New[T any](broker Subscriber, cfg Config[T]) *Adapter[T] {
	if cfg.Retry.MaxTries == 0 {
		cfg.Retry = DefaultRetry
	}
	a := &Adapter[T]{
		cfg:    cfg,
		broker: broker,
		log:    logger.New().With("adapter", cfg.Name),
	}
	a.view = View[T]{Data: a.zero()}
	return a
}

func (a *Adapter[T]) zero() T {
	if a.cfg.Zero != nil {
		return a.cfg.Zero()
	}
	var z T
	return z
}

// Mount binds the adapter to userID. An empty userID resets to the empty
// view without fetching. Mounting again unmounts the previous identity first.
func (a *Adapter[T]) Mount(ctx context.Context, userID string) error {
	a.Unmount()

	if userID == "" {
		a.set(View[T]{Data: a.zero()})
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.userID = userID
	a.mounted = true
	a.cancel = cancel
	a.view = View[T]{Data: a.zero(), Loading: true}
	a.mu.Unlock()

	// subscribe before hydrating so no change between the two is lost
	if a.broker != nil && a.cfg.Topics != nil {
		for _, topic := range a.cfg.Topics(userID) {
			sub := a.broker.Subscribe(topic)
			a.mu.Lock()
			a.subs = append(a.subs, sub)
			a.mu.Unlock()
			a.wg.Add(1)
			go a.watch(watchCtx, sub)
		}
	}

	return a.Refresh(ctx)
}

func (a *Adapter[T]) watch(ctx context.Context, sub *realtime.Subscription) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			// coalesce a burst into one fetch
			drain(sub)
			if err := a.Refresh(ctx); err != nil && ctx.Err() == nil {
				a.log.WithError(err).With("table", sub.Topic().Table).Warn("Re-fetch after change failed")
			}
		}
	}
}

func drain(sub *realtime.Subscription) {
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Refresh re-fetches the view. A fetch that fails after retries degrades to
// the empty view with the error recorded.
func (a *Adapter[T]) Refresh(ctx context.Context) error {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.Lock()
	userID, mounted := a.userID, a.mounted
	a.mu.Unlock()
	if !mounted {
		return apperr.Unauthenticated("state.Refresh")
	}

	data, err := a.fetch(ctx, userID)

	a.mu.Lock()
	if !a.mounted || a.userID != userID {
		// unmounted or remounted while fetching
		a.mu.Unlock()
		return err
	}
	if err != nil {
		a.view = View[T]{Data: a.zero(), Err: err}
	} else {
		a.view = View[T]{Data: data}
	}
	view := a.view
	a.mu.Unlock()

	a.notify(view)
	return err
}

func (a *Adapter[T]) fetch(ctx context.Context, userID string) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.cfg.Retry.InitialInterval
	b.MaxInterval = a.cfg.Retry.MaxInterval

	op := func() (T, error) {
		data, err := a.cfg.Fetch(ctx, userID)
		if err != nil && apperr.KindOf(err) != apperr.KindBackend {
			// caller errors do not get better with retries
			return data, backoff.Permanent(err)
		}
		return data, err
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(a.cfg.Retry.MaxTries))
}

// Mutate applies optimistic to the current view, runs write, then re-fetches
// so the store's state replaces the optimistic one. The write error is
// returned; a failed write still re-fetches.
func (a *Adapter[T]) Mutate(ctx context.Context, optimistic func(T) T, write func(ctx context.Context) error) error {
	a.mu.Lock()
	if !a.mounted {
		a.mu.Unlock()
		return apperr.Unauthenticated("state.Mutate")
	}
	var view View[T]
	if optimistic != nil {
		a.view.Data = optimistic(a.view.Data)
		view = a.view
	}
	a.mu.Unlock()

	if optimistic != nil {
		a.notify(view)
	}

	werr := write(ctx)
	if err := a.Refresh(ctx); err != nil && werr == nil {
		return err
	}
	return werr
}

// Snapshot returns the current view.
func (a *Adapter[T]) Snapshot() View[T] {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

func (a *Adapter[T]) UserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID
}

// Unmount releases every subscription and waits for the watchers to stop.
// The last view is kept. It is a no-op when nothing is mounted.
func (a *Adapter[T]) Unmount() {
	a.mu.Lock()
	subs, cancel := a.subs, a.cancel
	a.subs, a.cancel = nil, nil
	a.mounted = false
	a.userID = ""
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, sub := range subs {
		sub.Close()
	}
	a.wg.Wait()
}

func (a *Adapter[T]) set(v View[T]) {
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
	a.notify(v)
}

func (a *Adapter[T]) notify(v View[T]) {
	if a.cfg.OnChange != nil {
		a.cfg.OnChange(v)
	}
}

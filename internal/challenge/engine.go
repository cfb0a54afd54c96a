package challenge

import (
	"strings"
	"sync"
	"time"

	"github.com/tahcohcat/reconectar/internal/apperr"
)

var (
	ErrAlreadyActive   = apperr.New("challenge.Start", apperr.KindConflict, "challenge already active")
	ErrInvalidTemplate = apperr.New("challenge.Start", apperr.KindValidation, "template must have an id and at least one day")
	ErrNotComplete     = apperr.New("challenge.Complete", apperr.KindConflict, "challenge is not fully completed")
)

// State is the persisted form of an engine.
type State struct {
	Active    []Challenge          `json:"active"`
	Completed []CompletedChallenge `json:"completed"`
}

// Engine owns one profile's challenges. All methods are safe for concurrent
// use and mutations on the engine are serialised, so every caller sees either
// the state before or after a mutation, never in between.
type Engine struct {
	mu        sync.Mutex
	now       func() time.Time
	active    []Challenge
	completed []CompletedChallenge
}

type Option func(*Engine)

// WithClock overrides time.Now, used for task dates and completion stamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Toggle flips the completion flag of the task dated date in the named challenge.
// An unknown challenge or date is a no-op and reports false; the caller may be
// racing against a challenge that was just completed.
func (e *Engine) Toggle(challengeID, date string) (Challenge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(challengeID)
	if i < 0 {
		return Challenge{}, false
	}

	// work on a copy so a missing date leaves the stored challenge untouched
	c := e.active[i].clone()
	found := false
	for j := range c.DailyTasks {
		if c.DailyTasks[j].Date == date {
			c.DailyTasks[j].Completed = !c.DailyTasks[j].Completed
			found = true
			break
		}
	}
	if !found {
		return Challenge{}, false
	}

	c.recompute()
	e.active[i] = c
	return c.clone(), true
}

// Start instantiates a template with TotalDays tasks dated from today onwards.
func (e *Engine) Start(t Template) (Challenge, error) {
	if strings.TrimSpace(t.ID) == "" || t.TotalDays < 1 {
		return Challenge{}, ErrInvalidTemplate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.indexOf(t.ID) >= 0 {
		return Challenge{}, ErrAlreadyActive
	}

	today := e.now()
	tasks := make([]DailyTask, t.TotalDays)
	for i := range tasks {
		tasks[i] = DailyTask{Date: today.AddDate(0, 0, i).Format(DateLayout)}
	}

	c := Challenge{
		ID:         t.ID,
		Title:      t.Title,
		TotalDays:  t.TotalDays,
		Icon:       t.Icon,
		Reward:     t.Reward,
		DailyTasks: tasks,
	}
	c.recompute()

	e.active = append(e.active, c)
	return c.clone(), nil
}

// Complete claims a fully completed challenge: it moves it to the completed list
// and returns the XP parsed from its reward. An unknown id returns 0 and changes
// nothing.
func (e *Engine) Complete(challengeID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(challengeID)
	if i < 0 {
		return 0, nil
	}

	c := e.active[i]
	if c.Progress < 100 {
		return 0, ErrNotComplete
	}

	xp := ParseRewardXP(c.Reward)
	record := CompletedChallenge{
		ID:          c.ID,
		Title:       c.Title,
		CompletedAt: e.now().Format(CompletedAtLayout),
		XP:          xp,
	}

	// newest first
	e.completed = append([]CompletedChallenge{record}, e.completed...)
	e.active = append(e.active[:i:i], e.active[i+1:]...)
	return xp, nil
}

// Get returns a copy of one active challenge.
func (e *Engine) Get(challengeID string) (Challenge, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := e.indexOf(challengeID)
	if i < 0 {
		return Challenge{}, false
	}
	return e.active[i].clone(), true
}

// IsActive reports whether a challenge with this id is in the active set.
func (e *Engine) IsActive(challengeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexOf(challengeID) >= 0
}

// Active returns the active set, including challenges at 100% awaiting Complete.
func (e *Engine) Active() []Challenge {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Challenge, len(e.active))
	for i, c := range e.active {
		out[i] = c.clone()
	}
	return out
}

// ActiveCount counts active challenges that are not yet at 100%.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range e.active {
		if !c.Completed {
			n++
		}
	}
	return n
}

func (e *Engine) Completed() []CompletedChallenge {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]CompletedChallenge, len(e.completed))
	copy(out, e.completed)
	return out
}

func (e *Engine) Snapshot() State {
	return State{Active: e.Active(), Completed: e.Completed()}
}

// Restore replaces the engine contents. Derived fields are recomputed and
// duplicate ids keep their first occurrence.
func (e *Engine) Restore(s State) {
	active := make([]Challenge, 0, len(s.Active))
	seen := make(map[string]bool, len(s.Active))
	for _, c := range s.Active {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		c = c.clone()
		if c.TotalDays != len(c.DailyTasks) && len(c.DailyTasks) > 0 {
			c.TotalDays = len(c.DailyTasks)
		}
		c.recompute()
		active = append(active, c)
	}

	completed := make([]CompletedChallenge, len(s.Completed))
	copy(completed, s.Completed)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = active
	e.completed = completed
}

func (e *Engine) indexOf(challengeID string) int {
	for i := range e.active {
		if e.active[i].ID == challengeID {
			return i
		}
	}
	return -1
}

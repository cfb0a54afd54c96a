package challenge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.October, 14, 9, 30, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

func assertConsistent(t *testing.T, c Challenge) {
	t.Helper()
	done := 0
	for _, task := range c.DailyTasks {
		if task.Completed {
			done++
		}
	}
	assert.Equal(t, done, c.CurrentDay)
	assert.Equal(t, progressOf(done, c.TotalDays), c.Progress)
	assert.Equal(t, c.Progress == 100, c.Completed)
	assert.Equal(t, DaysLabel(done, c.TotalDays), c.Days)
}

func TestStartBuildsConsecutiveTasks(t *testing.T) {
	e := newTestEngine()

	c, err := e.Start(Template{ID: "walk", Title: "Caminhada", TotalDays: 7, Reward: "Medalha Bronze + 500 XP"})
	require.NoError(t, err)

	require.Len(t, c.DailyTasks, 7)
	for i, task := range c.DailyTasks {
		assert.False(t, task.Completed)
		assert.Equal(t, fixedNow.AddDate(0, 0, i).Format(DateLayout), task.Date)
	}
	assert.Equal(t, "2026-10-14", c.DailyTasks[0].Date)
	assert.Equal(t, "2026-10-20", c.DailyTasks[6].Date)
	assert.Equal(t, 0, c.Progress)
	assert.Equal(t, "0/7 dias", c.Days)
	assert.False(t, c.Completed)
	assert.Len(t, e.Active(), 1)
}

func TestStartRejectsDuplicateAndEmptyTemplates(t *testing.T) {
	e := newTestEngine()
	tpl := Template{ID: "walk", TotalDays: 3}

	_, err := e.Start(tpl)
	require.NoError(t, err)

	_, err = e.Start(tpl)
	assert.True(t, errors.Is(err, ErrAlreadyActive))
	assert.Len(t, e.Active(), 1)

	_, err = e.Start(Template{ID: "zero", TotalDays: 0})
	assert.True(t, errors.Is(err, ErrInvalidTemplate))

	_, err = e.Start(Template{ID: " ", TotalDays: 4})
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

func TestTemplateIsCopiedOnStart(t *testing.T) {
	e := newTestEngine()
	tpl := Template{ID: "read", Title: "Leitura", TotalDays: 2}

	_, err := e.Start(tpl)
	require.NoError(t, err)
	tpl.Title = "changed"

	c, ok := e.Get("read")
	require.True(t, ok)
	assert.Equal(t, "Leitura", c.Title)
}

func TestToggleKeepsDerivedFieldsConsistent(t *testing.T) {
	e := newTestEngine()
	c, err := e.Start(Template{ID: "detox", TotalDays: 3})
	require.NoError(t, err)

	for _, task := range c.DailyTasks {
		updated, ok := e.Toggle("detox", task.Date)
		require.True(t, ok)
		assertConsistent(t, updated)
	}

	final, _ := e.Get("detox")
	assert.Equal(t, 100, final.Progress)
	assert.True(t, final.Completed)
	assert.Equal(t, "3/3 dias", final.Days)
}

func TestToggleRounding(t *testing.T) {
	e := newTestEngine()
	c, err := e.Start(Template{ID: "social-media", TotalDays: 30})
	require.NoError(t, err)

	for _, task := range c.DailyTasks[:12] {
		_, ok := e.Toggle("social-media", task.Date)
		require.True(t, ok)
	}

	got, _ := e.Get("social-media")
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, "12/30 dias", got.Days)
	assert.Equal(t, 12, got.CurrentDay)

	// 1/3 rounds to 33, 2/3 rounds to 67
	e2 := newTestEngine()
	c2, _ := e2.Start(Template{ID: "three", TotalDays: 3})
	one, _ := e2.Toggle("three", c2.DailyTasks[0].Date)
	assert.Equal(t, 33, one.Progress)
	two, _ := e2.Toggle("three", c2.DailyTasks[1].Date)
	assert.Equal(t, 67, two.Progress)
}

func TestToggleTwiceRestoresState(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "meditation", TotalDays: 15})
	date := c.DailyTasks[4].Date

	before, _ := e.Get("meditation")
	e.Toggle("meditation", date)
	after, ok := e.Toggle("meditation", date)
	require.True(t, ok)

	assert.Equal(t, before, after)
}

func TestToggleUnknownIsNoop(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "walk", TotalDays: 7, Reward: "500 XP"})
	_, _ = e.Toggle("walk", c.DailyTasks[0].Date)

	before := e.Snapshot()

	_, ok := e.Toggle("missing", c.DailyTasks[1].Date)
	assert.False(t, ok)
	_, ok = e.Toggle("walk", "1999-01-01")
	assert.False(t, ok)

	assert.Equal(t, before, e.Snapshot())
}

func TestCompleteRequiresFullProgress(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "walk", TotalDays: 2, Reward: "Medalha Prata + 800 XP"})
	e.Toggle("walk", c.DailyTasks[0].Date)

	xp, err := e.Complete("walk")
	assert.True(t, errors.Is(err, ErrNotComplete))
	assert.Equal(t, 0, xp)
	assert.True(t, e.IsActive("walk"))
	assert.Empty(t, e.Completed())
}

func TestCompleteAwardsRewardOnce(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "reading", Title: "Leitura diária", TotalDays: 7, Reward: "Medalha Ouro + 1000 XP"})
	for _, task := range c.DailyTasks {
		e.Toggle("reading", task.Date)
	}

	xp, err := e.Complete("reading")
	require.NoError(t, err)
	assert.Equal(t, 1000, xp)
	assert.False(t, e.IsActive("reading"))

	done := e.Completed()
	require.Len(t, done, 1)
	assert.Equal(t, CompletedChallenge{ID: "reading", Title: "Leitura diária", CompletedAt: "14/10/2026", XP: 1000}, done[0])

	xp, err = e.Complete("reading")
	require.NoError(t, err)
	assert.Equal(t, 0, xp)
	assert.Len(t, e.Completed(), 1)
}

func TestEndToEndSevenDayChallenge(t *testing.T) {
	e := newTestEngine()
	c, err := e.Start(Template{ID: "bronze", TotalDays: 7, Reward: "Medalha Bronze + 500 XP"})
	require.NoError(t, err)

	var last Challenge
	for _, task := range c.DailyTasks {
		last, _ = e.Toggle("bronze", task.Date)
	}
	assert.Equal(t, 100, last.Progress)
	assert.True(t, last.Completed)
	assert.Equal(t, 0, e.ActiveCount())

	xp, err := e.Complete("bronze")
	require.NoError(t, err)
	assert.Equal(t, 500, xp)
	assert.Empty(t, e.Active())
	require.Len(t, e.Completed(), 1)
	assert.Equal(t, 500, e.Completed()[0].XP)
}

func TestCompletedListIsNewestFirst(t *testing.T) {
	e := newTestEngine()
	for _, id := range []string{"a", "b"} {
		c, _ := e.Start(Template{ID: id, TotalDays: 1, Reward: "100 XP"})
		e.Toggle(id, c.DailyTasks[0].Date)
		_, err := e.Complete(id)
		require.NoError(t, err)
	}

	done := e.Completed()
	require.Len(t, done, 2)
	assert.Equal(t, "b", done[0].ID)
	assert.Equal(t, "a", done[1].ID)
}

func TestReturnedValuesDoNotAlias(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "walk", TotalDays: 2})
	c.DailyTasks[0].Completed = true

	active := e.Active()
	active[0].DailyTasks[1].Completed = true

	got, _ := e.Get("walk")
	assert.False(t, got.DailyTasks[0].Completed)
	assert.False(t, got.DailyTasks[1].Completed)
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	e := newTestEngine()
	c, _ := e.Start(Template{ID: "social-media", TotalDays: 30, Reward: "Medalha Bronze + 500 XP"})
	for _, task := range c.DailyTasks[:12] {
		e.Toggle("social-media", task.Date)
	}
	d, _ := e.Start(Template{ID: "one", TotalDays: 1, Reward: "50 XP"})
	e.Toggle("one", d.DailyTasks[0].Date)
	_, err := e.Complete("one")
	require.NoError(t, err)

	raw, err := json.Marshal(e.Snapshot())
	require.NoError(t, err)

	var state State
	require.NoError(t, json.Unmarshal(raw, &state))
	restored := newTestEngine()
	restored.Restore(state)

	assert.Equal(t, e.Snapshot(), restored.Snapshot())
}

func TestRestoreRecomputesDerivedFields(t *testing.T) {
	e := newTestEngine()
	e.Restore(State{Active: []Challenge{
		{ID: "x", TotalDays: 2, Progress: 99, Completed: true, DailyTasks: []DailyTask{{Date: "2026-10-14", Completed: true}, {Date: "2026-10-15"}}},
		{ID: "x", TotalDays: 1},
	}})

	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, 50, active[0].Progress)
	assert.False(t, active[0].Completed)
	assert.Equal(t, "1/2 dias", active[0].Days)
}

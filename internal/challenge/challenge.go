// Package challenge tracks multi-day challenges for one profile: the active set,
// per-day completion and the append-only list of completed challenges.
package challenge

import (
	"fmt"
	"math"
)

// DateLayout is the calendar-day format used for DailyTask dates.
const DateLayout = "2006-01-02"

// CompletedAtLayout renders completion stamps the way the pt-BR interface shows them.
const CompletedAtLayout = "02/01/2006"

// Template is a read-only catalog entry a challenge is started from.
type Template struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	TotalDays   int    `json:"totalDays"`
	Icon        string `json:"icon"`
	Reward      string `json:"reward"`
}

type DailyTask struct {
	Date      string `json:"date"`
	Completed bool   `json:"completed"`
}

type Challenge struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Progress   int         `json:"progress"`
	Days       string      `json:"days"`
	CurrentDay int         `json:"currentDay"`
	TotalDays  int         `json:"totalDays"`
	Icon       string      `json:"icon"`
	Reward     string      `json:"reward"`
	Completed  bool        `json:"completed"`
	DailyTasks []DailyTask `json:"dailyTasks"`
}

// CompletedChallenge is an immutable record of a claimed challenge.
type CompletedChallenge struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	CompletedAt string `json:"completedAt"`
	XP          int    `json:"xp"`
}

// recompute derives CurrentDay, Progress, Days and Completed from the tasks.
func (c *Challenge) recompute() {
	done := 0
	for _, t := range c.DailyTasks {
		if t.Completed {
			done++
		}
	}
	c.CurrentDay = done
	c.Progress = progressOf(done, c.TotalDays)
	c.Days = DaysLabel(done, c.TotalDays)
	c.Completed = c.Progress == 100
}

func (c Challenge) clone() Challenge {
	tasks := make([]DailyTask, len(c.DailyTasks))
	copy(tasks, c.DailyTasks)
	c.DailyTasks = tasks
	return c
}

func progressOf(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// DaysLabel renders "12/30 dias".
func DaysLabel(done, total int) string {
	return fmt.Sprintf("%d/%d dias", done, total)
}

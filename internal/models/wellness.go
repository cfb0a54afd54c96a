package models

type AppCategory string

const (
	CategorySocial        AppCategory = "social"
	CategoryEntertainment AppCategory = "entertainment"
	CategoryProductivity  AppCategory = "productivity"
	CategoryOther         AppCategory = "other"
)

// AppLimit is a daily screen-time budget for one app, in minutes.
type AppLimit struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Icon         string      `json:"icon"`
	DailyLimit   int         `json:"dailyLimit"`
	CurrentUsage int         `json:"currentUsage"`
	Category     AppCategory `json:"category"`
}

type AppUsage struct {
	AppID   string `json:"appId"`
	Minutes int    `json:"minutes"`
}

type DailyUsage struct {
	Date         string     `json:"date"`
	TotalMinutes int        `json:"totalMinutes"`
	AppsUsage    []AppUsage `json:"appsUsage"`
}

type WeeklyReport struct {
	TotalScreenTime int    `json:"totalScreenTime"`
	AverageDaily    int    `json:"averageDaily"`
	MostUsedApp     string `json:"mostUsedApp"`
	LeastUsedDay    string `json:"leastUsedDay"`
	Streak          int    `json:"streak"`
	Improvement     int    `json:"improvement"`
}

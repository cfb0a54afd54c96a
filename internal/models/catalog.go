package models

import "time"

// CatalogChallenge is an admin-authored challenge template row.
type CatalogChallenge struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	TotalDays   int       `json:"total_days" db:"total_days"`
	RewardXP    int       `json:"reward_xp" db:"reward_xp"`
	RewardBadge *string   `json:"reward_badge" db:"reward_badge"`
	Icon        string    `json:"icon" db:"icon"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type CreateCatalogChallengeRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TotalDays   int    `json:"total_days"`
	RewardXP    int    `json:"reward_xp"`
	RewardBadge string `json:"reward_badge"`
	Icon        string `json:"icon"`
}

package models

import "time"

// Profile is one account's identity and gamification state.
type Profile struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	Username         string    `json:"username" db:"username"`
	Email            string    `json:"email" db:"email"`
	Avatar           *string   `json:"avatar,omitempty" db:"avatar"`
	Bio              *string   `json:"bio,omitempty" db:"bio"`
	Level            int       `json:"level" db:"level"`
	XP               int       `json:"xp" db:"xp"`
	DaysWithoutAI    int       `json:"days_without_ai" db:"digital_detox_days"`
	ActiveChallenges int       `json:"active_challenges" db:"active_challenges"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// ProfilePatch carries a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Name             *string `json:"name,omitempty"`
	Bio              *string `json:"bio,omitempty"`
	Avatar           *string `json:"avatar,omitempty"`
	Level            *int    `json:"level,omitempty"`
	XP               *int    `json:"xp,omitempty"`
	DaysWithoutAI    *int    `json:"days_without_ai,omitempty"`
	ActiveChallenges *int    `json:"active_challenges,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Bio == nil && p.Avatar == nil && p.Level == nil &&
		p.XP == nil && p.DaysWithoutAI == nil && p.ActiveChallenges == nil
}

// AdminUserView is a profile row as listed in the admin panel.
type AdminUserView struct {
	Profile
	IsBlocked bool `json:"is_blocked" db:"is_blocked"`
}

// UserBlock records that an account was blocked by a moderator.
type UserBlock struct {
	UserID    string    `json:"user_id" db:"user_id"`
	BlockedBy string    `json:"blocked_by" db:"blocked_by"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

package models

import "time"

type ChatMessage struct {
	ID           string    `json:"id" db:"id"`
	UserID       string    `json:"user_id" db:"user_id"`
	SpecialistID *string   `json:"specialist_id" db:"specialist_id"`
	Message      string    `json:"message" db:"message"`
	IsFromUser   bool      `json:"is_from_user" db:"is_from_user"`
	Read         bool      `json:"read" db:"read"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// InboxMessage is a chat message joined with the thread owner's profile, as a specialist sees it.
type InboxMessage struct {
	ChatMessage
	UserName   string  `json:"user_name" db:"user_name"`
	UserAvatar *string `json:"user_avatar" db:"user_avatar"`
}

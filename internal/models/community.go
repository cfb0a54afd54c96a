package models

import "time"

type Post struct {
	ID        string    `json:"id" db:"id"`
	AuthorID  string    `json:"author_id" db:"author_id"`
	Content   string    `json:"content" db:"content"`
	Image     *string   `json:"image" db:"image"`
	Likes     int       `json:"likes" db:"likes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type PostAuthor struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar"`
	Level  int     `json:"level"`
	Bio    *string `json:"bio,omitempty"`
}

// PostView is a post as seen by one viewer: joined author and viewer-relative flags.
type PostView struct {
	Post
	Author       PostAuthor `json:"author"`
	Comments     int        `json:"comments"`
	LikedByUser  bool       `json:"liked_by_user"`
	IsSpecialist bool       `json:"is_specialist"`
}

type Comment struct {
	ID         string    `json:"id" db:"id"`
	PostID     string    `json:"post_id" db:"post_id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Content    string    `json:"content" db:"content"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	AuthorName string    `json:"author_name" db:"author_name"`
}

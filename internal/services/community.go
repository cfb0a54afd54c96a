package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/tahcohcat/reconectar/internal/apperr"
	"github.com/tahcohcat/reconectar/internal/database"
	"github.com/tahcohcat/reconectar/internal/models"
	"github.com/tahcohcat/reconectar/internal/realtime"
)

const (
	MinPostLength           = 10
	MaxPostLength           = 500
	MaxSpecialistPostLength = 1000
	MaxCommentLength        = 2000
	feedLimit               = 100
)

type CommunityService struct {
	db     *database.DB
	roles  *RoleService
	events realtime.Publisher
	now    Clock
}

func NewCommunityService(db *database.DB, roles *RoleService, events realtime.Publisher) *CommunityService {
	return &CommunityService{db: db, roles: roles, events: events, now: utcNow}
}

// postRow is the flat shape of the feed query.
type postRow struct {
	models.Post
	AuthorName   string  `db:"author_name"`
	AuthorAvatar *string `db:"author_avatar"`
	AuthorLevel  int     `db:"author_level"`
	AuthorBio    *string `db:"author_bio"`
	Comments     int     `db:"comments"`
	LikedByUser  bool    `db:"liked_by_user"`
	IsSpecialist bool    `db:"is_specialist"`
}

// ListPosts returns the newest posts as seen by viewerID.
func (s *CommunityService) ListPosts(ctx context.Context, viewerID string) ([]models.PostView, error) {
	query := `
		SELECT
			p.id, p.author_id, p.content, p.image, p.likes, p.created_at,
			pr.name AS author_name, pr.avatar AS author_avatar, pr.level AS author_level, pr.bio AS author_bio,
			(SELECT COUNT(*) FROM post_comments c WHERE c.post_id = p.id) AS comments,
			EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = ?) AS liked_by_user,
			EXISTS (SELECT 1 FROM user_roles r WHERE r.user_id = p.author_id AND r.role IN ('specialist', 'admin')) AS is_specialist
		FROM community_posts p
		JOIN profiles pr ON pr.id = p.author_id
		ORDER BY p.created_at DESC, p.rowid DESC
		LIMIT ?
	`

	var rows []postRow
	if err := s.db.SelectContext(ctx, &rows, query, viewerID, feedLimit); err != nil {
		return nil, apperr.Backend("services.ListPosts", fmt.Errorf("failed to list posts: %w", err))
	}

	posts := make([]models.PostView, 0, len(rows))
	for _, row := range rows {
		posts = append(posts, models.PostView{
			Post: row.Post,
			Author: models.PostAuthor{
				Name:   row.AuthorName,
				Avatar: row.AuthorAvatar,
				Level:  row.AuthorLevel,
				Bio:    row.AuthorBio,
			},
			Comments:     row.Comments,
			LikedByUser:  row.LikedByUser,
			IsSpecialist: row.IsSpecialist,
		})
	}
	return posts, nil
}

func (s *CommunityService) AddPost(ctx context.Context, authorID, content string, image *string) (*models.Post, error) {
	const op = "services.AddPost"

	roles, err := s.roles.Roles(ctx, authorID)
	if err != nil {
		return nil, err
	}
	limit := MaxPostLength
	if roles.CanModerate() {
		limit = MaxSpecialistPostLength
	}
	content, err = text(op, "post", content, MinPostLength, limit)
	if err != nil {
		return nil, err
	}
	if err := requireNotBlocked(ctx, s.db, op, authorID); err != nil {
		return nil, err
	}
	if image != nil && strings.TrimSpace(*image) == "" {
		image = nil
	}

	post := &models.Post{
		ID:        uuid.NewString(),
		AuthorID:  authorID,
		Content:   content,
		Image:     image,
		CreatedAt: s.now(),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO community_posts (id, author_id, content, image, likes, created_at)
		VALUES (:id, :author_id, :content, :image, :likes, :created_at)`, post)
	if err != nil {
		return nil, apperr.Backend(op, fmt.Errorf("failed to create post: %w", err))
	}

	publish(s.events, realtime.TableCommunityPosts, realtime.EventInsert, post.ID, authorID)
	return post, nil
}

// ToggleLike likes the post, or removes the like when viewerID already liked
// it. It returns the new like state and count.
func (s *CommunityService) ToggleLike(ctx context.Context, viewerID, postID string) (bool, int, error) {
	const op = "services.ToggleLike"

	var liked bool
	var likes int
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM community_posts WHERE id = ?`, postID); err != nil {
			return apperr.Backend(op, err)
		}
		if exists == 0 {
			return apperr.NotFound(op, "post not found")
		}

		var already int
		if err := tx.GetContext(ctx, &already, `SELECT COUNT(*) FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, viewerID); err != nil {
			return apperr.Backend(op, err)
		}

		delta := 1
		if already > 0 {
			delta = -1
			_, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, viewerID)
			if err != nil {
				return apperr.Backend(op, err)
			}
		} else {
			_, err := tx.ExecContext(ctx, `INSERT INTO post_likes (post_id, user_id) VALUES (?, ?)`, postID, viewerID)
			if err != nil {
				return apperr.Backend(op, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE community_posts SET likes = MAX(likes + ?, 0) WHERE id = ?`, delta, postID); err != nil {
			return apperr.Backend(op, err)
		}
		if err := tx.GetContext(ctx, &likes, `SELECT likes FROM community_posts WHERE id = ?`, postID); err != nil {
			return apperr.Backend(op, err)
		}
		liked = delta > 0
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	typ := realtime.EventInsert
	if !liked {
		typ = realtime.EventDelete
	}
	publish(s.events, realtime.TablePostLikes, typ, postID, viewerID)
	publish(s.events, realtime.TableCommunityPosts, realtime.EventUpdate, postID, "")
	return liked, likes, nil
}

// DeletePost removes a post. Only its author or an admin may do so.
func (s *CommunityService) DeletePost(ctx context.Context, actorID, postID string) error {
	const op = "services.DeletePost"

	var authorID string
	err := s.db.GetContext(ctx, &authorID, `SELECT author_id FROM community_posts WHERE id = ?`, postID)
	if isNoRows(err) {
		return apperr.NotFound(op, "post not found")
	} else if err != nil {
		return apperr.Backend(op, err)
	}

	if authorID != actorID {
		err := s.roles.RequireAdmin(ctx, op, actorID)
		if apperr.KindOf(err) == apperr.KindForbidden {
			return apperr.Forbidden(op, "only the author or an admin can delete a post")
		} else if err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM community_posts WHERE id = ?`, postID); err != nil {
		return apperr.Backend(op, err)
	}
	publish(s.events, realtime.TableCommunityPosts, realtime.EventDelete, postID, authorID)
	return nil
}

func (s *CommunityService) AddComment(ctx context.Context, userID, postID, content string) (*models.Comment, error) {
	const op = "services.AddComment"

	content, err := text(op, "comment", content, 1, MaxCommentLength)
	if err != nil {
		return nil, err
	}
	if err := requireNotBlocked(ctx, s.db, op, userID); err != nil {
		return nil, err
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM community_posts WHERE id = ?`, postID); err != nil {
		return nil, apperr.Backend(op, err)
	}
	if exists == 0 {
		return nil, apperr.NotFound(op, "post not found")
	}

	comment := &models.Comment{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.db.GetContext(ctx, &comment.AuthorName, `SELECT name FROM profiles WHERE id = ?`, userID); err != nil {
		return nil, apperr.Backend(op, err)
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO post_comments (id, post_id, user_id, content, created_at)
		VALUES (:id, :post_id, :user_id, :content, :created_at)`, comment)
	if err != nil {
		return nil, apperr.Backend(op, fmt.Errorf("failed to create comment: %w", err))
	}

	publish(s.events, realtime.TablePostComments, realtime.EventInsert, comment.ID, userID)
	return comment, nil
}

// ListComments returns the comments of a post, oldest first.
func (s *CommunityService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	query := `
		SELECT c.id, c.post_id, c.user_id, c.content, c.created_at, pr.name AS author_name
		FROM post_comments c
		JOIN profiles pr ON pr.id = c.user_id
		WHERE c.post_id = ?
		ORDER BY c.created_at ASC, c.rowid ASC
	`
	comments := []models.Comment{}
	if err := s.db.SelectContext(ctx, &comments, query, postID); err != nil {
		return nil, apperr.Backend("services.ListComments", err)
	}
	return comments, nil
}
